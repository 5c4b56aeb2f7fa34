package scene

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helper: point feature with an id.
func pointFeature(id string, lng, lat float64) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{lng, lat})
	f.ID = id
	return f
}

func collection(feats ...*geojson.Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range feats {
		fc.Append(f)
	}
	return fc
}

func baseSnapshot() *Snapshot {
	return &Snapshot{
		DroppedObjects: []DroppedObject{
			{ID: "d1", Type: "chair", Name: "Folding Chair", Position: At(-74.0, 40.7)},
			{ID: "d2", Type: "grill", Position: At(-73.99, 40.71)},
		},
		Infrastructure: map[string]*geojson.FeatureCollection{
			"hydrants": collection(pointFeature("h1", -74.00006, 40.70006)),
		},
		Layers: map[string]LayerState{"hydrants": {Visible: true}},
	}
}

var layers = []string{"hydrants", "trees"}

func TestComputeSignature_Stable(t *testing.T) {
	a := ComputeSignature(baseSnapshot(), layers, 0)
	b := ComputeSignature(baseSnapshot(), layers, 0)
	assert.Equal(t, a, b)
	assert.Equal(t, a.String(), b.String())
}

func TestComputeSignature_NameWithSeparators(t *testing.T) {
	a := baseSnapshot()
	a.DroppedObjects[0].Name = "a|b"
	b := baseSnapshot()
	b.DroppedObjects[0].Name = "a"
	assert.NotEqual(t, ComputeSignature(a, layers, 0).Objects, ComputeSignature(b, layers, 0).Objects)
}

// Every input that can change an object or proximity outcome, including
// message text and output order, must change the signature.
func TestComputeSignature_Sensitivity(t *testing.T) {
	base := ComputeSignature(baseSnapshot(), layers, 0)

	tests := []struct {
		name   string
		mutate func(s *Snapshot)
		gen    uint64
		part   func(Signature) string
	}{
		{"object-moved", func(s *Snapshot) { s.DroppedObjects[0].Position = At(-74.00001, 40.7) }, 0, func(g Signature) string { return g.Objects }},
		{"object-retyped", func(s *Snapshot) { s.DroppedObjects[0].Type = "table" }, 0, func(g Signature) string { return g.Objects }},
		{"object-added", func(s *Snapshot) {
			s.DroppedObjects = append(s.DroppedObjects, DroppedObject{ID: "d3", Type: "speaker", Position: At(-73.9, 40.8)})
		}, 0, func(g Signature) string { return g.Objects }},
		{"object-renamed", func(s *Snapshot) { s.DroppedObjects[0].Name = "Folding chair" }, 0, func(g Signature) string { return g.Objects }},
		{"objects-reordered", func(s *Snapshot) {
			s.DroppedObjects[0], s.DroppedObjects[1] = s.DroppedObjects[1], s.DroppedObjects[0]
		}, 0, func(g Signature) string { return g.Objects }},
		{"object-removed", func(s *Snapshot) { s.DroppedObjects = s.DroppedObjects[:1] }, 0, func(g Signature) string { return g.Objects }},
		{"layer-hidden", func(s *Snapshot) { s.Layers["hydrants"] = LayerState{Visible: false} }, 0, func(g Signature) string { return g.Layers }},
		{"layer-shown", func(s *Snapshot) { s.Layers["trees"] = LayerState{Visible: true} }, 0, func(g Signature) string { return g.Layers }},
		{"feature-added", func(s *Snapshot) {
			s.Infrastructure["hydrants"].Append(pointFeature("h2", -74.1, 40.7))
		}, 0, func(g Signature) string { return g.Infrastructure }},
		{"first-feature-replaced", func(s *Snapshot) {
			s.Infrastructure["hydrants"] = collection(pointFeature("h9", -74.2, 40.7))
		}, 0, func(g Signature) string { return g.Infrastructure }},
		{"layer-loaded", func(s *Snapshot) {
			s.Infrastructure["trees"] = collection(pointFeature("t1", -74.0, 40.7))
		}, 0, func(g Signature) string { return g.Infrastructure }},
		{"label-scan-requested", func(s *Snapshot) {}, 1, func(g Signature) string { return g.LabelScan }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := baseSnapshot()
			tt.mutate(s)
			got := ComputeSignature(s, layers, tt.gen)
			assert.NotEqual(t, base, got)
			assert.NotEqual(t, tt.part(base), tt.part(got), "expected the change to land in its own part")
		})
	}
}

func TestComputeSignature_IgnoresUnwatchedInputs(t *testing.T) {
	base := ComputeSignature(baseSnapshot(), layers, 0)

	s := baseSnapshot()
	s.Layers["unrelated"] = LayerState{Visible: true}
	s.Infrastructure["unrelated"] = collection(pointFeature("x", 0, 0))
	f := geojson.NewFeature(orb.Point{-74, 40.7})
	f.Properties["label"] = "glass"
	s.CustomShapes = append(s.CustomShapes, f)

	assert.Equal(t, base, ComputeSignature(s, layers, 0))
}

func TestComputeSignature_NilSnapshot(t *testing.T) {
	sig := ComputeSignature(nil, layers, 0)
	assert.Equal(t, "hydrants:false|trees:false", sig.Layers)
	assert.Equal(t, "hydrants:0:|trees:0:", sig.Infrastructure)
}

func TestDroppedObjectKey(t *testing.T) {
	assert.Equal(t, "d1", DroppedObject{ID: "d1", Type: "chair"}.Key())
	assert.Equal(t, "chair--74.000000-40.700000", DroppedObject{Type: "chair", Position: At(-74, 40.7)}.Key())
	assert.Equal(t, "chair", DroppedObject{Type: "chair"}.Key())
	assert.Equal(t, "chair", DroppedObject{Type: "chair"}.DisplayName())
	assert.Equal(t, "Big Chair", DroppedObject{Type: "chair", Name: "Big Chair"}.DisplayName())
}

func TestShapeHelpers(t *testing.T) {
	f := geojson.NewFeature(orb.Point{0, 0})
	assert.Empty(t, Label(f))
	assert.False(t, HasLabel(f))

	f.Properties["label"] = "no glass bottles"
	assert.True(t, HasLabel(f))
	assert.Equal(t, "no glass bottles", ShapeKey(f))

	f.ID = "s1"
	assert.Equal(t, "s1", ShapeKey(f))

	f.Properties["label"] = 42
	assert.Empty(t, Label(f))
	assert.Empty(t, Label(nil))
}

func TestDecode(t *testing.T) {
	const doc = `{
		"droppedObjects": [{"id": "d1", "type": "chair", "name": "Chair", "position": {"lng": -74.0, "lat": 40.7}}],
		"customShapes": [{"type": "Feature", "id": "s1", "geometry": {"type": "Point", "coordinates": [-74.0, 40.7]}, "properties": {"label": "beer tent"}}],
		"infrastructureData": {"hydrants": {"type": "FeatureCollection", "features": [
			{"type": "Feature", "id": "h1", "geometry": {"type": "Point", "coordinates": [-74.00006, 40.70006]}, "properties": {}}
		]}},
		"layers": {"hydrants": {"visible": true}}
	}`
	snap, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, snap.DroppedObjects, 1)
	assert.Equal(t, -74.0, snap.DroppedObjects[0].Position.Lng)
	require.Len(t, snap.CustomShapes, 1)
	assert.Equal(t, "beer tent", Label(snap.CustomShapes[0]))
	assert.True(t, snap.LayerVisible("hydrants"))
	require.Len(t, snap.LayerFeatures("hydrants"), 1)
	assert.Nil(t, snap.LayerFeatures("trees"))

	_, err = Decode(strings.NewReader("{"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	snap, err := LoadFile(filepath.Join("..", "..", "testdata", "scenes", "park.json"))
	require.NoError(t, err)
	assert.NotEmpty(t, snap.DroppedObjects)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

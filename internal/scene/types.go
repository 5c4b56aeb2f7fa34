package scene

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/sapo-planner/nudge-controller/internal/geo"
)

// #region types

// DroppedObject is an item the planner placed on the map.
type DroppedObject struct {
	ID       string      `json:"id"`
	Type     string      `json:"type"`
	Name     string      `json:"name,omitempty"`
	Position *geo.LngLat `json:"position,omitempty"`
}

// DisplayName is the object's name, falling back to its type.
func (o DroppedObject) DisplayName() string {
	if o.Name != "" {
		return o.Name
	}
	return o.Type
}

// Key is the object id, or type plus rounded position when the id is empty.
func (o DroppedObject) Key() string {
	if o.ID != "" {
		return o.ID
	}
	if o.Position == nil {
		return o.Type
	}
	return fmt.Sprintf("%s-%.6f-%.6f", o.Type, o.Position.Lng, o.Position.Lat)
}

// LayerState is the visibility of one infrastructure layer.
type LayerState struct {
	Visible bool `json:"visible"`
}

// Snapshot is the read-only bundle of scene facts at evaluation time.
// It is owned by the collaborators that produce it; the engine only reads it.
type Snapshot struct {
	DroppedObjects []DroppedObject                       `json:"droppedObjects"`
	CustomShapes   []*geojson.Feature                    `json:"customShapes"`
	Infrastructure map[string]*geojson.FeatureCollection `json:"infrastructureData"`
	Layers         map[string]LayerState                 `json:"layers"`
}

// At is shorthand for a position pointer.
func At(lng, lat float64) *geo.LngLat {
	return &geo.LngLat{Lng: lng, Lat: lat}
}

// #endregion types

// #region accessors

// LayerVisible reports whether layerID is present and visible. Nil-safe.
func (s *Snapshot) LayerVisible(layerID string) bool {
	if s == nil {
		return false
	}
	return s.Layers[layerID].Visible
}

// LayerFeatures returns the features loaded for layerID, or nil. Nil-safe.
func (s *Snapshot) LayerFeatures(layerID string) []*geojson.Feature {
	if s == nil || s.Infrastructure == nil {
		return nil
	}
	fc := s.Infrastructure[layerID]
	if fc == nil {
		return nil
	}
	return fc.Features
}

// Label returns properties.label of a drawn shape; empty when absent or not a string.
func Label(f *geojson.Feature) string {
	if f == nil || f.Properties == nil {
		return ""
	}
	s, _ := f.Properties["label"].(string)
	return s
}

// ShapeKey is the shape id, falling back to its label.
func ShapeKey(f *geojson.Feature) string {
	if id := geo.FeatureID(f); id != "" {
		return id
	}
	return Label(f)
}

// HasLabel reports whether the shape carries a non-blank label.
func HasLabel(f *geojson.Feature) bool {
	return strings.TrimSpace(Label(f)) != ""
}

// #endregion accessors

// #region decoding

// Decode reads a JSON scene snapshot.
func Decode(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode scene: %w", err)
	}
	return &s, nil
}

// LoadFile reads a JSON scene snapshot from disk.
func LoadFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scene %s: %w", path, err)
	}
	defer f.Close()
	return Decode(f)
}

// #endregion decoding

package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"

	"github.com/sapo-planner/nudge-controller/internal/orchestrator"
	"github.com/sapo-planner/nudge-controller/internal/scene"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string        `json:"description"`
	Steps       []FixtureStep `json:"steps"`
}

// FixtureStep is one scripted moment of a planning session. Scene changes
// are applied first, then the listed changes are notified and flushed, then
// dismissals and reset run, and finally the visible ids are checked.
type FixtureStep struct {
	StepID string `json:"step_id"`

	// Scene replaces the whole snapshot; SceneFile loads one relative to the
	// fixture file. Scene wins when both are set.
	Scene     *scene.Snapshot `json:"scene,omitempty"`
	SceneFile string          `json:"scene_file,omitempty"`

	// Overrides applied to the current snapshot.
	Layers  map[string]scene.LayerState `json:"layers,omitempty"`
	Labels  map[string]string           `json:"labels,omitempty"`
	Objects []scene.DroppedObject       `json:"add_objects,omitempty"`

	Changes []string `json:"changes,omitempty"`
	Dismiss []string `json:"dismiss,omitempty"`
	Reset   bool     `json:"reset,omitempty"`

	// Expect is the exact visible id list in order; nil skips the check.
	Expect       []string `json:"expect,omitempty"`
	ExpectAbsent []string `json:"expect_absent,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file. Scene files are resolved
// and loaded here so a replay never touches the filesystem.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for i := range f.Steps {
		st := &f.Steps[i]
		if st.Scene != nil || st.SceneFile == "" {
			continue
		}
		snap, err := scene.LoadFile(filepath.Join(dir, st.SceneFile))
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", st.StepID, err)
		}
		st.Scene = snap
	}
	return &f, nil
}

// ToChanges converts the step's change names. An empty list after a scene
// replacement notifies every input.
func (st *FixtureStep) ToChanges() ([]orchestrator.Change, error) {
	if len(st.Changes) == 0 && st.touchesScene() {
		return []orchestrator.Change{
			orchestrator.ChangeObjects,
			orchestrator.ChangeShapes,
			orchestrator.ChangeInfrastructure,
			orchestrator.ChangeLayers,
		}, nil
	}
	out := make([]orchestrator.Change, 0, len(st.Changes))
	for _, name := range st.Changes {
		c := orchestrator.Change(name)
		switch c {
		case orchestrator.ChangeObjects, orchestrator.ChangeShapes, orchestrator.ChangeInfrastructure,
			orchestrator.ChangeLayers, orchestrator.ChangeLabel:
			out = append(out, c)
		default:
			return nil, fmt.Errorf("step %s: unknown change %q", st.StepID, name)
		}
	}
	return out, nil
}

func (st *FixtureStep) touchesScene() bool {
	return st.Scene != nil || len(st.Layers) > 0 || len(st.Labels) > 0 || len(st.Objects) > 0
}

// Apply returns the snapshot after this step's scene edits. cur is not
// modified.
func (st *FixtureStep) Apply(cur *scene.Snapshot) *scene.Snapshot {
	if st.Scene != nil {
		cur = st.Scene
	}
	if cur == nil {
		cur = &scene.Snapshot{}
	}
	next := *cur

	if len(st.Layers) > 0 {
		next.Layers = make(map[string]scene.LayerState, len(cur.Layers)+len(st.Layers))
		for id, ls := range cur.Layers {
			next.Layers[id] = ls
		}
		for id, ls := range st.Layers {
			next.Layers[id] = ls
		}
	}

	if len(st.Labels) > 0 {
		next.CustomShapes = make([]*geojson.Feature, len(cur.CustomShapes))
		for i, f := range cur.CustomShapes {
			label, ok := st.Labels[scene.ShapeKey(f)]
			if !ok {
				next.CustomShapes[i] = f
				continue
			}
			relabelled := geojson.NewFeature(f.Geometry)
			relabelled.ID = f.ID
			for k, v := range f.Properties {
				relabelled.Properties[k] = v
			}
			relabelled.Properties["label"] = label
			next.CustomShapes[i] = relabelled
		}
	}

	if len(st.Objects) > 0 {
		next.DroppedObjects = append(append([]scene.DroppedObject(nil), cur.DroppedObjects...), st.Objects...)
	}
	return &next
}

// #endregion fixture-loader

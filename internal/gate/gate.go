package gate

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/sapo-planner/nudge-controller/internal/rules"
	"github.com/sapo-planner/nudge-controller/internal/scene"
)

// #region check-proximity
// CheckProximity decides whether a proximity rule may run against snap.
// A rule is eligible only when its target layer is visible and holds at
// least one feature. Non-point features are dropped from the targets; a layer
// with features but no points is ineligible too.
func CheckProximity(rule rules.ProximityRule, snap *scene.Snapshot) Decision {
	layerID := rule.Target.LayerID
	if layerID == "" {
		return Decision{Reason: SkipNoLayer}
	}
	if !snap.LayerVisible(layerID) {
		return Decision{Reason: SkipLayerHidden, LayerID: layerID}
	}
	feats := snap.LayerFeatures(layerID)
	if len(feats) == 0 {
		return Decision{Reason: SkipNoData, LayerID: layerID}
	}

	targets := pointFeatures(feats)
	if len(targets) == 0 {
		return Decision{Reason: SkipNoPoints, LayerID: layerID}
	}
	return Decision{Eligible: true, LayerID: layerID, Targets: targets}
}

// #endregion check-proximity

// #region helpers
func pointFeatures(feats []*geojson.Feature) []*geojson.Feature {
	out := make([]*geojson.Feature, 0, len(feats))
	for _, f := range feats {
		if f == nil {
			continue
		}
		if _, ok := f.Geometry.(orb.Point); ok {
			out = append(out, f)
		}
	}
	return out
}

// #endregion helpers

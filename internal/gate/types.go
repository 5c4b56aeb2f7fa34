package gate

import "github.com/paulmach/orb/geojson"

// #region skip-reason
// SkipReason enumerates why a proximity rule was not evaluated.
type SkipReason string

const (
	SkipNone        SkipReason = ""
	SkipNoLayer     SkipReason = "no_target_layer"
	SkipLayerHidden SkipReason = "layer_hidden"
	SkipNoData      SkipReason = "no_layer_data"
	SkipNoPoints    SkipReason = "no_point_features"
)

// #endregion skip-reason

// #region decision
// Decision is the output of a proximity eligibility check.
type Decision struct {
	Eligible bool
	Reason   SkipReason
	LayerID  string
	Targets  []*geojson.Feature // point features only; nil unless eligible
}

// #endregion decision

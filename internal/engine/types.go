package engine

// #region imports
import (
	"time"

	"github.com/sapo-planner/nudge-controller/internal/geo"
	"github.com/sapo-planner/nudge-controller/internal/rules"
)

// #endregion

// #region subject

// SubjectKind distinguishes placed objects from drawn shapes.
type SubjectKind string

const (
	SubjectDroppedObject SubjectKind = "droppedObject"
	SubjectCustomShape   SubjectKind = "customShape"
)

// Subject is what a nudge is about.
type Subject struct {
	Kind     SubjectKind `json:"kind"`
	ID       string      `json:"id,omitempty"`
	Type     string      `json:"type,omitempty"`
	Position *geo.LngLat `json:"position,omitempty"`
}

// #endregion

// #region target

// TargetKindInfrastructure is the only target kind.
const TargetKindInfrastructure = "infrastructure"

// Target is the infrastructure feature a proximity nudge measured against.
type Target struct {
	Kind      string `json:"kind"`
	LayerID   string `json:"layerId"`
	FeatureID string `json:"featureId,omitempty"`
}

// #endregion

// #region nudge

// Meta keys set by the evaluator.
const (
	MetaDistanceFeet        = "distanceFeet"
	MetaDistanceFeetRounded = "distanceFeetRounded"
	MetaThresholdFeet       = "thresholdFeet"
	MetaMatchedText         = "matchedText"
	MetaLabel               = "label"
)

// Nudge is one advisory produced by one rule for one subject (and target).
// Nudges are derived on every pass and never persisted.
type Nudge struct {
	ID          string         `json:"id"`
	RuleID      string         `json:"ruleId"`
	Severity    rules.Severity `json:"severity"`
	Message     string         `json:"message"`
	Type        rules.Kind     `json:"type"`
	Subject     Subject        `json:"subject"`
	Target      *Target        `json:"target,omitempty"`
	Meta        map[string]any `json:"meta"`
	CitationURL string         `json:"citationUrl,omitempty"`
	Actions     []string       `json:"actions,omitempty"`
}

// #endregion

// #region options

// Options controls one evaluation pass.
type Options struct {
	// TextScanEnabled gates text rules for this call.
	TextScanEnabled bool

	// Kinds restricts the pass to the listed rule kinds. Empty means all.
	Kinds []rules.Kind

	// TextCache memoizes regex results per (rule, shape, label). Optional;
	// results are identical with or without it.
	TextCache *TextMatchCache
}

func (o Options) includes(k rules.Kind) bool {
	if len(o.Kinds) == 0 {
		return true
	}
	for _, want := range o.Kinds {
		if want == k {
			return true
		}
	}
	return false
}

// #endregion

// #region result

// SkipReason explains why a rule produced nothing for reasons other than
// "no subject matched".
type SkipReason string

const (
	SkipMalformed   SkipReason = "malformed"
	SkipBadPattern  SkipReason = "bad_pattern"
	SkipIneligible  SkipReason = "ineligible"
	SkipTextScanOff SkipReason = "text_scan_off"
	SkipUnknownType SkipReason = "unknown_type"
)

// Skip records one rule that did not run.
type Skip struct {
	RuleID string
	Reason SkipReason
	Detail string
}

// Perf carries timing for a pass.
type Perf struct {
	Took           time.Duration
	RulesEvaluated int
}

// Result is the output of Evaluate. ByRule is parallel to the catalog;
// Nudges is ByRule flattened in catalog order.
type Result struct {
	Nudges []Nudge
	ByRule [][]Nudge
	Skips  []Skip
	Perf   Perf
}

// #endregion

package engine

// #region imports
import (
	"math"
	"regexp"
	"slices"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/sapo-planner/nudge-controller/internal/gate"
	"github.com/sapo-planner/nudge-controller/internal/geo"
	"github.com/sapo-planner/nudge-controller/internal/rules"
	"github.com/sapo-planner/nudge-controller/internal/scene"
)

// #endregion

// #region evaluate

// Evaluate runs every rule in catalog against snap and returns the nudges
// that currently hold, in catalog order and then subject discovery order.
// It never mutates its inputs and never panics on malformed rules or missing
// scene data: such rules are listed in Result.Skips and contribute nothing.
func Evaluate(catalog []rules.Rule, snap *scene.Snapshot, opts Options) Result {
	start := time.Now()
	res := Result{ByRule: make([][]Nudge, len(catalog))}
	if snap == nil {
		snap = &scene.Snapshot{}
	}
	objects := snap.DroppedObjects

	for i, r := range catalog {
		if r == nil {
			res.Skips = append(res.Skips, Skip{Reason: SkipMalformed, Detail: "nil rule"})
			continue
		}
		if !opts.includes(r.Kind()) {
			continue
		}

		switch rule := r.(type) {
		case rules.ObjectRule:
			if err := rule.Validate(); err != nil {
				res.Skips = append(res.Skips, Skip{RuleID: rule.ID, Reason: SkipMalformed, Detail: err.Error()})
				continue
			}
			res.ByRule[i] = evalObject(rule, objects)
		case rules.ProximityRule:
			if err := rule.Validate(); err != nil {
				res.Skips = append(res.Skips, Skip{RuleID: rule.ID, Reason: SkipMalformed, Detail: err.Error()})
				continue
			}
			d := gate.CheckProximity(rule, snap)
			if !d.Eligible {
				res.Skips = append(res.Skips, Skip{RuleID: rule.ID, Reason: SkipIneligible, Detail: string(d.Reason)})
				continue
			}
			res.ByRule[i] = evalProximity(rule, objects, d)
		case rules.TextRule:
			if !opts.TextScanEnabled {
				res.Skips = append(res.Skips, Skip{RuleID: rule.ID, Reason: SkipTextScanOff})
				continue
			}
			re, err := opts.TextCache.compile(rule)
			if err != nil {
				res.Skips = append(res.Skips, Skip{RuleID: rule.ID, Reason: SkipBadPattern, Detail: err.Error()})
				continue
			}
			res.ByRule[i] = evalText(rule, re, snap.CustomShapes, opts.TextCache)
		default:
			res.Skips = append(res.Skips, Skip{RuleID: r.Info().ID, Reason: SkipUnknownType})
			continue
		}
		res.Perf.RulesEvaluated++
	}

	res.Nudges = Flatten(res.ByRule)
	res.Perf.Took = time.Since(start)
	return res
}

// Flatten concatenates per-rule nudge lists in order.
func Flatten(byRule [][]Nudge) []Nudge {
	n := 0
	for _, ns := range byRule {
		n += len(ns)
	}
	out := make([]Nudge, 0, n)
	for _, ns := range byRule {
		out = append(out, ns...)
	}
	return out
}

// #endregion

// #region object

func evalObject(rule rules.ObjectRule, objects []scene.DroppedObject) []Nudge {
	var out []Nudge
	for _, o := range objects {
		if !rule.Subject.Matches(o.Type) {
			continue
		}
		vars := map[string]any{"objectName": o.DisplayName()}
		out = append(out, Nudge{
			ID:          NudgeID(rule.ID, o.Key(), ""),
			RuleID:      rule.ID,
			Severity:    rule.SeverityOr(rules.SeverityInfo),
			Message:     rules.Interpolate(rule.Message, vars),
			Type:        rules.KindObject,
			Subject:     objectSubject(o),
			Meta:        map[string]any{},
			CitationURL: rule.CitationURL,
			Actions:     slices.Clone(rule.Actions),
		})
	}
	return out
}

// #endregion

// #region proximity

// evalProximity keeps only the nearest target per subject and fires when it
// is strictly closer than the threshold.
func evalProximity(rule rules.ProximityRule, objects []scene.DroppedObject, d gate.Decision) []Nudge {
	threshold := rule.Threshold()
	var out []Nudge
	for _, o := range objects {
		if !rule.Subject.Matches(o.Type) || o.Position == nil {
			continue
		}
		nearest, dist := nearestTarget(*o.Position, d.Targets)
		if nearest == nil || !(dist < threshold) {
			continue
		}
		rounded := int(math.Round(dist))
		meta := map[string]any{
			MetaDistanceFeet:        dist,
			MetaDistanceFeetRounded: rounded,
			MetaThresholdFeet:       threshold,
		}
		out = append(out, Nudge{
			ID:          NudgeID(rule.ID, o.Key(), geo.FeatureKey(nearest)),
			RuleID:      rule.ID,
			Severity:    rule.SeverityOr(rules.SeverityWarning),
			Message:     rules.Interpolate(rule.Message, meta),
			Type:        rules.KindProximity,
			Subject:     objectSubject(o),
			Target:      &Target{Kind: TargetKindInfrastructure, LayerID: d.LayerID, FeatureID: geo.FeatureID(nearest)},
			Meta:        meta,
			CitationURL: rule.CitationURL,
			Actions:     slices.Clone(rule.Actions),
		})
	}
	return out
}

func nearestTarget(from geo.LngLat, targets []*geojson.Feature) (*geojson.Feature, float64) {
	var best *geojson.Feature
	bestDist := math.Inf(1)
	for _, f := range targets {
		p, ok := geo.RepresentativePoint(f)
		if !ok {
			continue
		}
		if d := geo.DistanceFeet(from, p); d < bestDist {
			best, bestDist = f, d
		}
	}
	return best, bestDist
}

// #endregion

// #region text

func evalText(rule rules.TextRule, re *regexp.Regexp, shapes []*geojson.Feature, cache *TextMatchCache) []Nudge {
	var out []Nudge
	for _, f := range shapes {
		label := scene.Label(f)
		if label == "" {
			continue
		}
		key := scene.ShapeKey(f)
		snippet, ok := cache.match(rule.ID, re, key, label)
		if !ok {
			continue
		}
		sub := Subject{Kind: SubjectCustomShape, ID: geo.FeatureID(f)}
		if p, ok := geo.RepresentativePoint(f); ok {
			sub.Position = &p
		}
		vars := map[string]any{"labelSnippet": snippet, MetaMatchedText: snippet}
		out = append(out, Nudge{
			ID:          NudgeID(rule.ID, key, snippet),
			RuleID:      rule.ID,
			Severity:    rule.SeverityOr(rules.SeverityInfo),
			Message:     rules.Interpolate(rule.Message, vars),
			Type:        rules.KindText,
			Subject:     sub,
			Meta:        map[string]any{MetaMatchedText: snippet, MetaLabel: label},
			CitationURL: rule.CitationURL,
			Actions:     slices.Clone(rule.Actions),
		})
	}
	return out
}

// #endregion

// #region helpers

// NudgeID builds ruleID::subjectKey[::targetKey].
func NudgeID(ruleID, subjectKey, targetKey string) string {
	id := ruleID + "::" + subjectKey
	if targetKey != "" {
		id += "::" + targetKey
	}
	return id
}

func objectSubject(o scene.DroppedObject) Subject {
	s := Subject{Kind: SubjectDroppedObject, ID: o.ID, Type: o.Type}
	if o.Position != nil {
		p := *o.Position
		s.Position = &p
	}
	return s
}

// #endregion

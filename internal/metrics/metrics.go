package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// #region collectors

// Pass results.
const (
	PassEvaluated = "evaluated"
	PassMemoHit   = "memo_hit"
	PassDisabled  = "disabled"
)

// Metrics holds the nudge engine collectors. A nil *Metrics is a no-op.
type Metrics struct {
	passes        *prometheus.CounterVec
	passDuration  prometheus.Histogram
	visible       prometheus.Gauge
	dismissals    prometheus.Counter
	ruleSkips     *prometheus.CounterVec
	textCacheHits prometheus.Counter
	textCacheMiss prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nudges",
			Name:      "passes_total",
			Help:      "Recompute passes by result (evaluated, memo_hit, disabled).",
		}, []string{"result"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nudges",
			Name:      "pass_duration_seconds",
			Help:      "Wall time of one recompute pass.",
			Buckets:   []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .05},
		}),
		visible: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nudges",
			Name:      "visible",
			Help:      "Nudges currently published (after dismissals).",
		}),
		dismissals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nudges",
			Name:      "dismissals_total",
			Help:      "Distinct nudge ids dismissed.",
		}),
		ruleSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nudges",
			Name:      "rule_skips_total",
			Help:      "Rules that did not run in a pass, by reason.",
		}, []string{"reason"}),
		textCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nudges",
			Name:      "text_cache_hits_total",
			Help:      "Label regex lookups served from the match cache.",
		}),
		textCacheMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nudges",
			Name:      "text_cache_misses_total",
			Help:      "Label regex lookups that ran the pattern.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.passes, m.passDuration, m.visible, m.dismissals, m.ruleSkips, m.textCacheHits, m.textCacheMiss,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// #endregion collectors

// #region observers

// ObservePass records one pass and its duration.
func (m *Metrics) ObservePass(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(result).Inc()
	m.passDuration.Observe(took.Seconds())
}

// SetVisible records the published nudge count.
func (m *Metrics) SetVisible(n int) {
	if m == nil {
		return
	}
	m.visible.Set(float64(n))
}

// IncDismissals counts one new dismissal.
func (m *Metrics) IncDismissals() {
	if m == nil {
		return
	}
	m.dismissals.Inc()
}

// IncRuleSkip counts one skipped rule.
func (m *Metrics) IncRuleSkip(reason string) {
	if m == nil {
		return
	}
	m.ruleSkips.WithLabelValues(reason).Inc()
}

// AddTextCache adds cache hit/miss deltas.
func (m *Metrics) AddTextCache(hits, misses uint64) {
	if m == nil {
		return
	}
	m.textCacheHits.Add(float64(hits))
	m.textCacheMiss.Add(float64(misses))
}

// #endregion observers

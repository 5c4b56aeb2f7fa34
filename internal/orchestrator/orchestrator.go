package orchestrator

// #region imports
import (
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sapo-planner/nudge-controller/internal/engine"
	"github.com/sapo-planner/nudge-controller/internal/logging"
	"github.com/sapo-planner/nudge-controller/internal/metrics"
	"github.com/sapo-planner/nudge-controller/internal/rules"
	"github.com/sapo-planner/nudge-controller/internal/scene"
)

// #endregion

var (
	spatialKinds = []rules.Kind{rules.KindObject, rules.KindProximity}
	textKinds    = []rules.Kind{rules.KindText}
)

// #region orchestrator-struct

// Orchestrator keeps the visible nudge list in step with the scene. It
// debounces change notifications, skips object and proximity evaluation when
// the scene signature is unchanged, owns the session ignore set, and runs
// the highlight timers. All methods are safe for concurrent use.
type Orchestrator struct {
	cfg       Config
	src       SceneSource
	catalog   []rules.Rule
	proxLayer []string
	textCache *engine.TextMatchCache
	sessionID string

	camera   Camera
	log      *zap.Logger
	metrics  *metrics.Metrics
	recorder Recorder

	passMu sync.Mutex // serializes passes

	mu           sync.Mutex
	closed       bool
	pending      bool
	debounce     *time.Timer
	debounceSeq  uint64
	labelScanGen uint64
	lastSig      scene.Signature
	hasSig       bool
	spatial      [][]engine.Nudge // object and proximity results for lastSig, by rule
	full         []engine.Nudge
	visible      []engine.Nudge
	ignored      map[string]struct{}
	highlighted  map[string]struct{}
	timers       map[*time.Timer]struct{}
	warned       map[string]struct{}
	subscribers  []func([]engine.Nudge)
	outbox       [][]engine.Nudge
	draining     bool
}

// #endregion

// #region constructor

// New creates an orchestrator over src and catalog. Nothing is evaluated
// until the first Notify.
func New(cfg Config, src SceneSource, catalog []rules.Rule, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:         cfg.withDefaults(),
		src:         src,
		catalog:     slices.Clone(catalog),
		proxLayer:   rules.ProximityLayers(catalog),
		textCache:   engine.NewTextMatchCache(),
		sessionID:   uuid.NewString(),
		log:         zap.NewNop(),
		ignored:     make(map[string]struct{}),
		highlighted: make(map[string]struct{}),
		timers:      make(map[*time.Timer]struct{}),
		warned:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.src == nil {
		o.src = SourceFunc(func() *scene.Snapshot { return nil })
	}
	o.log.Info("orchestrator ready",
		zap.String("session", o.sessionID),
		zap.Int("rules", len(o.catalog)),
		zap.Bool("enabled", o.cfg.Enabled))
	return o
}

// #endregion

// #region accessors

// SessionID identifies this orchestrator in the audit trail.
func (o *Orchestrator) SessionID() string {
	return o.sessionID
}

// Enabled reports whether the kill switch is off.
func (o *Orchestrator) Enabled() bool {
	return o.cfg.Enabled
}

// Nudges returns the current visible list.
func (o *Orchestrator) Nudges() []engine.Nudge {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.visible)
}

// Subscribe registers fn to receive the visible list after every change.
// Deliveries happen in order and outside the orchestrator's lock, so fn may
// call back into the orchestrator.
func (o *Orchestrator) Subscribe(fn func([]engine.Nudge)) {
	if fn == nil {
		return
	}
	o.mu.Lock()
	o.subscribers = append(o.subscribers, fn)
	o.mu.Unlock()
}

// #endregion

// #region notify

// Notify reports that a watched input changed. Passes are trailing-edge
// debounced: each call cancels the pending timer and schedules a new one.
func (o *Orchestrator) Notify(c Change) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if c == ChangeLabel {
		o.labelScanGen++
	}
	o.pending = true
	if o.debounce != nil {
		o.debounce.Stop()
	}
	o.debounceSeq++
	seq := o.debounceSeq
	o.debounce = time.AfterFunc(o.cfg.Debounce, func() { o.fire(seq) })
}

// fire runs the pass scheduled as seq unless a later Notify or a Flush
// superseded it.
func (o *Orchestrator) fire(seq uint64) {
	o.mu.Lock()
	if o.closed || seq != o.debounceSeq || !o.pending {
		o.mu.Unlock()
		return
	}
	o.pending = false
	o.debounce = nil
	o.mu.Unlock()
	o.runPass()
}

// Flush runs the pending pass now instead of waiting for the debounce
// window. It reports whether a pass ran.
func (o *Orchestrator) Flush() bool {
	o.mu.Lock()
	if o.closed || !o.pending {
		o.mu.Unlock()
		return false
	}
	o.pending = false
	o.debounceSeq++
	if o.debounce != nil {
		o.debounce.Stop()
		o.debounce = nil
	}
	o.mu.Unlock()
	o.runPass()
	return true
}

// #endregion

// #region pass

func (o *Orchestrator) runPass() {
	o.passMu.Lock()
	snap := o.src.Snapshot()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		o.passMu.Unlock()
		return
	}
	entry := o.recomputeLocked(snap)
	o.mu.Unlock()
	o.passMu.Unlock()

	if o.recorder != nil {
		if err := o.recorder.RecordPass(entry); err != nil {
			o.log.Warn("record pass", zap.String("pass", entry.PassID), zap.Error(err))
		}
	}
	o.drain()
}

// recomputeLocked refreshes full and visible from snap. Object and proximity
// results are reused while the signature holds; text rules always run, with
// regex outcomes served from the per-shape match cache.
func (o *Orchestrator) recomputeLocked(snap *scene.Snapshot) logging.PassEntry {
	start := time.Now()
	entry := logging.PassEntry{
		PassID:       uuid.NewString(),
		SessionID:    o.sessionID,
		LabelScanGen: o.labelScanGen,
	}

	if !o.cfg.Enabled {
		o.full = nil
		entry.Result = metrics.PassDisabled
	} else {
		sig := scene.ComputeSignature(snap, o.proxLayer, o.labelScanGen)
		entry.Signature = sig.String()

		var skips []engine.Skip
		if o.hasSig && sig == o.lastSig {
			entry.Result = metrics.PassMemoHit
		} else {
			res := engine.Evaluate(o.catalog, snap, engine.Options{Kinds: spatialKinds})
			o.spatial = res.ByRule
			o.lastSig, o.hasSig = sig, true
			skips = res.Skips
			entry.Result = metrics.PassEvaluated
		}

		hits0, misses0, _ := o.textCache.Stats()
		o.textCache.BeginPass()
		text := engine.Evaluate(o.catalog, snap, engine.Options{
			Kinds:           textKinds,
			TextScanEnabled: true,
			TextCache:       o.textCache,
		})
		pruned := o.textCache.EndPass()
		hits1, misses1, _ := o.textCache.Stats()
		o.metrics.AddTextCache(hits1-hits0, misses1-misses0)

		skips = append(skips, text.Skips...)
		o.logSkipsLocked(skips)
		entry.SkipsJSON = skipsJSON(skips)
		o.full = merge(o.spatial, text.ByRule)

		if pruned > 0 {
			o.log.Debug("text cache pruned", zap.Int("entries", pruned))
		}
	}

	o.visible = o.filterLocked(o.full)
	took := time.Since(start)
	entry.NudgeCount = len(o.full)
	entry.VisibleCount = len(o.visible)
	entry.TookMicros = took.Microseconds()

	o.metrics.ObservePass(entry.Result, took)
	o.enqueueLocked()

	o.log.Debug("pass",
		zap.String("pass", entry.PassID),
		zap.String("result", entry.Result),
		zap.Int("nudges", entry.NudgeCount),
		zap.Int("visible", entry.VisibleCount),
		zap.Duration("took", took))
	return entry
}

// merge takes text results where present and cached spatial results
// elsewhere, keeping catalog order.
func merge(spatial, text [][]engine.Nudge) []engine.Nudge {
	byRule := make([][]engine.Nudge, max(len(spatial), len(text)))
	for i := range byRule {
		switch {
		case i < len(text) && text[i] != nil:
			byRule[i] = text[i]
		case i < len(spatial):
			byRule[i] = spatial[i]
		}
	}
	return engine.Flatten(byRule)
}

func (o *Orchestrator) filterLocked(all []engine.Nudge) []engine.Nudge {
	out := make([]engine.Nudge, 0, len(all))
	for _, n := range all {
		if _, ok := o.ignored[n.ID]; ok {
			continue
		}
		out = append(out, n)
	}
	return out
}

// logSkipsLocked warns once per rule and reason for broken rules; repeats and
// ordinary ineligibility go to debug.
func (o *Orchestrator) logSkipsLocked(skips []engine.Skip) {
	for _, s := range skips {
		o.metrics.IncRuleSkip(string(s.Reason))
		fields := []zap.Field{
			zap.String("rule", s.RuleID),
			zap.String("reason", string(s.Reason)),
			zap.String("detail", s.Detail),
		}
		if s.Reason != engine.SkipMalformed && s.Reason != engine.SkipBadPattern && s.Reason != engine.SkipUnknownType {
			o.log.Debug("rule skipped", fields...)
			continue
		}
		key := s.RuleID + "|" + string(s.Reason)
		if _, seen := o.warned[key]; seen {
			o.log.Debug("rule skipped", fields...)
			continue
		}
		o.warned[key] = struct{}{}
		o.log.Warn("rule skipped", fields...)
	}
}

func skipsJSON(skips []engine.Skip) string {
	if len(skips) == 0 {
		return ""
	}
	recs := make([]logging.SkipRecord, len(skips))
	for i, s := range skips {
		recs[i] = logging.SkipRecord{RuleID: s.RuleID, Reason: string(s.Reason), Detail: s.Detail}
	}
	b, err := json.Marshal(recs)
	if err != nil {
		return ""
	}
	return string(b)
}

// #endregion

// #region publish

// enqueueLocked queues the current visible list for subscribers. Queuing
// inside the critical section that changed the list keeps deliveries in
// mutation order.
func (o *Orchestrator) enqueueLocked() {
	o.metrics.SetVisible(len(o.visible))
	if len(o.subscribers) == 0 {
		return
	}
	o.outbox = append(o.outbox, slices.Clone(o.visible))
}

// drain delivers queued lists. Only one goroutine drains at a time; a
// subscriber that triggers another change has it delivered by the same loop.
func (o *Orchestrator) drain() {
	o.mu.Lock()
	if o.draining {
		o.mu.Unlock()
		return
	}
	o.draining = true
	for len(o.outbox) > 0 {
		list := o.outbox[0]
		o.outbox = o.outbox[1:]
		subs := slices.Clone(o.subscribers)
		o.mu.Unlock()
		for _, fn := range subs {
			fn(slices.Clone(list))
		}
		o.mu.Lock()
	}
	o.draining = false
	o.mu.Unlock()
}

// #endregion

// #region reset-close

// Reset empties the ignore set and the evaluation caches, then republishes
// the last full result without any dismissals applied. The next pass
// re-evaluates every rule.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.ignored = make(map[string]struct{})
	o.warned = make(map[string]struct{})
	o.hasSig = false
	o.spatial = nil
	o.textCache.Reset()
	o.visible = o.filterLocked(o.full)
	o.enqueueLocked()
	o.mu.Unlock()

	o.log.Info("reset", zap.String("session", o.sessionID))
	o.drain()
}

// Close stops the debounce timer and every highlight timer. Later calls to
// any mutating method are no-ops.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.pending = false
	if o.debounce != nil {
		o.debounce.Stop()
		o.debounce = nil
	}
	for t := range o.timers {
		t.Stop()
	}
	o.timers = make(map[*time.Timer]struct{})
	o.outbox = nil
}

// #endregion

package orchestrator

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sapo-planner/nudge-controller/internal/engine"
	"github.com/sapo-planner/nudge-controller/internal/logging"
	"github.com/sapo-planner/nudge-controller/internal/metrics"
	"github.com/sapo-planner/nudge-controller/internal/rules"
	"github.com/sapo-planner/nudge-controller/internal/scene"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// #region fixtures

const (
	idObject    = "r-object::d1"
	idProximity = "r-prox::d1::h1"
	idText      = "r-glass::s1::glass"
)

type fakeScene struct {
	mu    sync.Mutex
	snap  *scene.Snapshot
	calls int
}

func (f *fakeScene) Snapshot() *scene.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.snap
}

func (f *fakeScene) set(s *scene.Snapshot) {
	f.mu.Lock()
	f.snap = s
	f.mu.Unlock()
}

func (f *fakeScene) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRecorder struct {
	mu         sync.Mutex
	passes     []logging.PassEntry
	dismissals []logging.DismissalEntry
	err        error
}

func (r *fakeRecorder) RecordPass(e logging.PassEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passes = append(r.passes, e)
	return r.err
}

func (r *fakeRecorder) RecordDismissal(e logging.DismissalEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dismissals = append(r.dismissals, e)
	return r.err
}

func (r *fakeRecorder) results() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.passes))
	for i, p := range r.passes {
		out[i] = p.Result
	}
	return out
}

type subscriber struct {
	mu    sync.Mutex
	lists [][]engine.Nudge
}

func (s *subscriber) fn(ns []engine.Nudge) {
	s.mu.Lock()
	s.lists = append(s.lists, ns)
	s.mu.Unlock()
}

func (s *subscriber) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lists)
}

func (s *subscriber) last() []engine.Nudge {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lists) == 0 {
		return nil
	}
	return s.lists[len(s.lists)-1]
}

func testCatalog() []rules.Rule {
	return []rules.Rule{
		rules.ObjectRule{
			Base:    rules.Base{ID: "r-object", Message: "Place ${objectName}"},
			Subject: rules.Subject{WhereType: "chair"},
		},
		rules.ProximityRule{
			Base:          rules.Base{ID: "r-prox", Message: "${distanceFeetRounded} ft from a hydrant"},
			Subject:       rules.Subject{WhereType: "chair"},
			Target:        rules.Target{LayerID: "hydrants"},
			ThresholdFeet: 35,
		},
		rules.TextRule{
			Base:  rules.Base{ID: "r-glass", Message: `Found "${labelSnippet}"`},
			Match: rules.Match{Mode: rules.MatchModeRegex, Pattern: `\bglass\b`, Flags: "i"},
		},
	}
}

// testScene has a chair about 27.7 ft from hydrant h1 and a shape labelled
// with "glass".
func testScene() *scene.Snapshot {
	h1 := geojson.NewFeature(orb.Point{-74.0001, 40.7})
	h1.ID = "h1"
	fc := geojson.NewFeatureCollection()
	fc.Append(h1)

	s1 := geojson.NewFeature(orb.Point{-74.0002, 40.7001})
	s1.ID = "s1"
	s1.Properties["label"] = "glass bottles"

	return &scene.Snapshot{
		DroppedObjects: []scene.DroppedObject{{ID: "d1", Type: "chair", Position: scene.At(-74, 40.7)}},
		CustomShapes:   []*geojson.Feature{s1},
		Infrastructure: map[string]*geojson.FeatureCollection{"hydrants": fc},
		Layers:         map[string]scene.LayerState{"hydrants": {Visible: true}},
	}
}

// manualConfig never fires the debounce timer on its own; tests drive
// passes with Flush.
func manualConfig() Config {
	return Config{Enabled: true, Debounce: time.Hour, HighlightWindow: time.Hour, ZoomDuration: DefaultZoomDuration}
}

func newManual(t *testing.T, src SceneSource, opts ...Option) *Orchestrator {
	t.Helper()
	o := New(manualConfig(), src, testCatalog(), opts...)
	t.Cleanup(o.Close)
	return o
}

func ids(ns []engine.Nudge) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.ID
	}
	return out
}

func withLabel(s *scene.Snapshot, label string) *scene.Snapshot {
	f := geojson.NewFeature(s.CustomShapes[0].Geometry)
	f.ID = s.CustomShapes[0].ID
	f.Properties["label"] = label
	out := *s
	out.CustomShapes = []*geojson.Feature{f}
	return &out
}

// #endregion

// #region pass-tests

func TestFlush_RunsPendingPass(t *testing.T) {
	src := &fakeScene{snap: testScene()}
	o := newManual(t, src)

	assert.False(t, o.Flush(), "nothing pending before Notify")
	assert.Empty(t, o.Nudges())

	o.Notify(ChangeObjects)
	require.True(t, o.Flush())
	assert.Equal(t, []string{idObject, idProximity, idText}, ids(o.Nudges()))
	assert.False(t, o.Flush())
	assert.Equal(t, 1, src.callCount())
}

func TestNotify_DebounceCoalesces(t *testing.T) {
	src := &fakeScene{snap: testScene()}
	sub := &subscriber{}
	cfg := manualConfig()
	cfg.Debounce = 20 * time.Millisecond
	o := New(cfg, src, testCatalog())
	defer o.Close()
	o.Subscribe(sub.fn)

	for _, c := range []Change{ChangeObjects, ChangeShapes, ChangeLayers, ChangeInfrastructure, ChangeObjects} {
		o.Notify(c)
	}

	require.Eventually(t, func() bool { return sub.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, sub.count())
	assert.Equal(t, 1, src.callCount())
	assert.Len(t, sub.last(), 3)
}

func TestNotify_TrailingEdge(t *testing.T) {
	src := &fakeScene{snap: testScene()}
	cfg := manualConfig()
	cfg.Debounce = 100 * time.Millisecond
	o := New(cfg, src, testCatalog())
	defer o.Close()

	o.Notify(ChangeObjects)
	time.Sleep(50 * time.Millisecond)
	o.Notify(ChangeObjects)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, src.callCount(), "second notify restarts the window")

	require.Eventually(t, func() bool { return src.callCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSignature_MemoAndLabelScan(t *testing.T) {
	src := &fakeScene{snap: testScene()}
	rec := &fakeRecorder{}
	o := newManual(t, src, WithRecorder(rec))

	o.Notify(ChangeObjects)
	o.Flush()
	o.Notify(ChangeLayers) // nothing actually changed
	o.Flush()
	o.Notify(ChangeLabel)
	o.Flush()

	moved := testScene()
	moved.DroppedObjects[0].Position = scene.At(-73.99, 40.7)
	src.set(moved)
	o.Notify(ChangeObjects)
	o.Flush()

	assert.Equal(t, []string{metrics.PassEvaluated, metrics.PassMemoHit, metrics.PassEvaluated, metrics.PassEvaluated}, rec.results())
	assert.Equal(t, []string{idObject, idText}, ids(o.Nudges()), "moved chair is ~2800 ft away")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, uint64(1), rec.passes[2].LabelScanGen)
	assert.Equal(t, o.SessionID(), rec.passes[0].SessionID)
	assert.NotEqual(t, rec.passes[0].PassID, rec.passes[1].PassID)
}

func TestTextNudgesSurviveNonLabelChange(t *testing.T) {
	src := &fakeScene{snap: testScene()}
	o := newManual(t, src)

	o.Notify(ChangeObjects)
	o.Flush()
	require.Contains(t, ids(o.Nudges()), idText)

	snap := testScene()
	snap.DroppedObjects = append(snap.DroppedObjects, scene.DroppedObject{ID: "d2", Type: "bench", Position: scene.At(-73, 41)})
	src.set(snap)
	o.Notify(ChangeObjects)
	o.Flush()
	assert.Contains(t, ids(o.Nudges()), idText)

	// a label edit without the label-scan signal is still picked up
	src.set(withLabel(snap, "cans only"))
	o.Notify(ChangeShapes)
	o.Flush()
	assert.NotContains(t, ids(o.Nudges()), idText)

	src.set(withLabel(snap, "Glass jars"))
	o.Notify(ChangeShapes)
	o.Flush()
	assert.Contains(t, ids(o.Nudges()), "r-glass::s1::Glass")
}

func TestRenameAndReorderRepublish(t *testing.T) {
	src := &fakeScene{snap: testScene()}
	rec := &fakeRecorder{}
	o := newManual(t, src, WithRecorder(rec))

	o.Notify(ChangeObjects)
	o.Flush()
	require.Equal(t, "Place chair", o.Nudges()[0].Message)

	renamed := testScene()
	renamed.DroppedObjects[0].Name = "Folding chair"
	src.set(renamed)
	o.Notify(ChangeObjects)
	o.Flush()
	assert.Equal(t, "Place Folding chair", o.Nudges()[0].Message)

	two := testScene()
	two.DroppedObjects = append(two.DroppedObjects, scene.DroppedObject{ID: "d2", Type: "chair", Position: scene.At(-73, 41)})
	src.set(two)
	o.Notify(ChangeObjects)
	o.Flush()
	require.Equal(t, []string{idObject, "r-object::d2", idProximity, idText}, ids(o.Nudges()))

	swapped := testScene()
	swapped.DroppedObjects = []scene.DroppedObject{two.DroppedObjects[1], two.DroppedObjects[0]}
	src.set(swapped)
	o.Notify(ChangeObjects)
	o.Flush()
	assert.Equal(t, []string{"r-object::d2", idObject, idProximity, idText}, ids(o.Nudges()))
	assert.Equal(t, ids(engine.Evaluate(testCatalog(), swapped, engine.Options{TextScanEnabled: true}).Nudges), ids(o.Nudges()))

	assert.Equal(t, []string{metrics.PassEvaluated, metrics.PassEvaluated, metrics.PassEvaluated, metrics.PassEvaluated}, rec.results())
}

func TestProximityGatedByLayerVisibility(t *testing.T) {
	src := &fakeScene{snap: testScene()}
	o := newManual(t, src)

	hidden := testScene()
	hidden.Layers["hydrants"] = scene.LayerState{Visible: false}
	src.set(hidden)
	o.Notify(ChangeLayers)
	o.Flush()
	assert.NotContains(t, ids(o.Nudges()), idProximity)

	src.set(testScene())
	o.Notify(ChangeLayers)
	o.Flush()
	assert.Contains(t, ids(o.Nudges()), idProximity)
}

func TestKillSwitch(t *testing.T) {
	src := &fakeScene{snap: testScene()}
	rec := &fakeRecorder{}
	sub := &subscriber{}
	cfg := manualConfig()
	cfg.Enabled = false
	o := New(cfg, src, testCatalog(), WithRecorder(rec))
	defer o.Close()
	o.Subscribe(sub.fn)

	assert.False(t, o.Enabled())
	o.Notify(ChangeObjects)
	o.Flush()
	assert.Empty(t, o.Nudges())
	assert.Equal(t, []string{metrics.PassDisabled}, rec.results())
	require.Equal(t, 1, sub.count())
	assert.Empty(t, sub.last())
}

func TestDefaultConfig_KillSwitchEnv(t *testing.T) {
	t.Setenv("NUDGES_ENABLED", "false")
	assert.False(t, DefaultConfig().Enabled)

	t.Setenv("NUDGES_ENABLED", "")
	cfg := DefaultConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 100*time.Millisecond, cfg.Debounce)
	assert.Equal(t, 1500*time.Millisecond, cfg.HighlightWindow)
	assert.Equal(t, 600*time.Millisecond, cfg.ZoomDuration)
}

func TestMalformedRuleWarnsOnce(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	src := &fakeScene{snap: testScene()}
	catalog := append(testCatalog(), rules.TextRule{
		Base:  rules.Base{ID: "r-bad"},
		Match: rules.Match{Mode: rules.MatchModeRegex, Pattern: "(unclosed"},
	})
	o := New(manualConfig(), src, catalog, WithLogger(zap.New(core)))
	defer o.Close()

	for i := 0; i < 3; i++ {
		o.Notify(ChangeLabel)
		o.Flush()
	}

	warns := logs.FilterMessage("rule skipped").FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warns, 1)
	assert.Equal(t, "r-bad", warns[0].ContextMap()["rule"])
	assert.Equal(t, []string{idObject, idProximity, idText}, ids(o.Nudges()))
}

func TestRecorderErrorsAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	rec := &fakeRecorder{err: errors.New("disk full")}
	o := newManual(t, &fakeScene{snap: testScene()}, WithRecorder(rec), WithLogger(zap.New(core)))

	o.Notify(ChangeObjects)
	o.Flush()
	o.Dismiss(idObject)

	assert.Equal(t, 1, logs.FilterMessage("record pass").Len())
	assert.Equal(t, 1, logs.FilterMessage("record dismissal").Len())
	assert.NotContains(t, ids(o.Nudges()), idObject)
}

func TestNilSource(t *testing.T) {
	o := newManual(t, nil)
	o.Notify(ChangeObjects)
	assert.True(t, o.Flush())
	assert.Empty(t, o.Nudges())
}

// #endregion

// #region lifecycle-tests

func TestReset(t *testing.T) {
	src := &fakeScene{snap: testScene()}
	rec := &fakeRecorder{}
	sub := &subscriber{}
	o := newManual(t, src, WithRecorder(rec))
	o.Subscribe(sub.fn)

	o.Notify(ChangeObjects)
	o.Flush()
	o.Dismiss(idProximity)
	require.NotContains(t, ids(o.Nudges()), idProximity)

	o.Reset()
	assert.Contains(t, ids(o.Nudges()), idProximity)
	assert.Empty(t, o.Dismissed())
	assert.Contains(t, ids(sub.last()), idProximity)

	o.Notify(ChangeObjects)
	o.Flush()
	assert.Equal(t, metrics.PassEvaluated, rec.results()[1], "reset drops the signature memo")
}

func TestClose_StopsTimers(t *testing.T) {
	src := &fakeScene{snap: testScene()}
	cfg := manualConfig()
	cfg.Debounce = 10 * time.Millisecond
	cfg.HighlightWindow = 10 * time.Millisecond
	o := New(cfg, src, testCatalog())

	o.Notify(ChangeObjects)
	o.Highlight(engine.Nudge{ID: "x"})
	o.Close()
	o.Close()

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 0, src.callCount())
	assert.False(t, o.Flush())

	o.Notify(ChangeObjects)
	o.Dismiss("x")
	assert.Empty(t, o.Dismissed())
}

func TestSubscriberMayCallBack(t *testing.T) {
	src := &fakeScene{snap: testScene()}
	o := newManual(t, src)

	var mu sync.Mutex
	var seen [][]string
	o.Subscribe(func(ns []engine.Nudge) {
		mu.Lock()
		seen = append(seen, ids(ns))
		mu.Unlock()
		for _, n := range ns {
			if n.RuleID == "r-object" {
				o.Dismiss(n.ID)
			}
		}
	})

	o.Notify(ChangeObjects)
	o.Flush()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	assert.Equal(t, []string{idObject, idProximity, idText}, seen[0])
	assert.Equal(t, []string{idProximity, idText}, seen[1])
}

func TestMetricsWired(t *testing.T) {
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	o := newManual(t, &fakeScene{snap: testScene()}, WithMetrics(m))

	o.Notify(ChangeObjects)
	o.Flush()
	o.Dismiss(idText)
	assert.Len(t, o.Nudges(), 2)
}

// #endregion

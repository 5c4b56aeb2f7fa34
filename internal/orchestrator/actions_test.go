package orchestrator

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sapo-planner/nudge-controller/internal/engine"
	"github.com/sapo-planner/nudge-controller/internal/geo"
	"github.com/sapo-planner/nudge-controller/internal/scene"
)

// #region dismiss-tests

func TestDismiss_StableIdentity(t *testing.T) {
	src := &fakeScene{snap: testScene()}
	o := newManual(t, src)

	o.Notify(ChangeObjects)
	o.Flush()
	o.Dismiss(idProximity)
	assert.Equal(t, []string{idObject, idText}, ids(o.Nudges()))

	// an unrelated object elsewhere forces a full evaluation
	snap := testScene()
	snap.DroppedObjects = append(snap.DroppedObjects, scene.DroppedObject{ID: "d9", Type: "chair", Position: scene.At(-73, 41)})
	src.set(snap)
	o.Notify(ChangeObjects)
	o.Flush()

	assert.Equal(t, []string{idObject, "r-object::d9", idText}, ids(o.Nudges()))
}

func TestDismiss_Idempotent(t *testing.T) {
	rec := &fakeRecorder{}
	sub := &subscriber{}
	o := newManual(t, &fakeScene{snap: testScene()}, WithRecorder(rec))
	o.Subscribe(sub.fn)

	o.Notify(ChangeObjects)
	o.Flush()
	o.Dismiss(idText)
	after := o.Nudges()
	o.Dismiss(idText)

	assert.Equal(t, after, o.Nudges())
	assert.Equal(t, []string{idText}, o.Dismissed())
	assert.Equal(t, 2, sub.count(), "one pass and one dismissal")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.dismissals, 1)
	assert.Equal(t, "r-glass", rec.dismissals[0].RuleID)
	assert.Equal(t, o.SessionID(), rec.dismissals[0].SessionID)
}

func TestDismiss_UnknownIDIsRemembered(t *testing.T) {
	src := &fakeScene{snap: &scene.Snapshot{}}
	sub := &subscriber{}
	o := newManual(t, src)
	o.Subscribe(sub.fn)

	o.Dismiss("")
	o.Dismiss(idObject)
	assert.Equal(t, 0, sub.count(), "nothing visible changed")
	assert.Equal(t, []string{idObject}, o.Dismissed())

	src.set(testScene())
	o.Notify(ChangeObjects)
	o.Flush()
	assert.Equal(t, []string{idProximity, idText}, ids(o.Nudges()))
}

// #endregion

// #region zoom-tests

type fakeCamera struct {
	mu    sync.Mutex
	calls []geo.LngLat
	dur   time.Duration
}

func (c *fakeCamera) EaseTo(center geo.LngLat, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, center)
	c.dur = d
}

func TestZoomToSubject(t *testing.T) {
	cam := &fakeCamera{}
	o := newManual(t, &fakeScene{snap: testScene()}, WithCamera(cam))
	o.Notify(ChangeObjects)
	o.Flush()

	var prox engine.Nudge
	for _, n := range o.Nudges() {
		if n.ID == idProximity {
			prox = n
		}
	}
	o.ZoomToSubject(prox)
	o.ZoomToSubject(engine.Nudge{ID: "no-position"})

	require.Len(t, cam.calls, 1)
	assert.Equal(t, geo.LngLat{Lng: -74, Lat: 40.7}, cam.calls[0])
	assert.Equal(t, 600*time.Millisecond, cam.dur)
}

func TestZoomToSubject_NoCamera(t *testing.T) {
	o := newManual(t, &fakeScene{snap: testScene()})
	assert.NotPanics(t, func() {
		o.ZoomToSubject(engine.Nudge{Subject: engine.Subject{Position: scene.At(1, 2)}})
	})
}

// #endregion

// #region highlight-tests

func TestHighlight_ExpiresAfterWindow(t *testing.T) {
	cfg := manualConfig()
	cfg.HighlightWindow = 30 * time.Millisecond
	o := New(cfg, &fakeScene{snap: testScene()}, testCatalog())
	defer o.Close()

	o.Highlight(engine.Nudge{ID: "b"})
	o.Highlight(engine.Nudge{ID: "a"})
	o.Highlight(engine.Nudge{})
	assert.Equal(t, []string{"a", "b"}, o.Highlighted())
	assert.True(t, o.IsHighlighted("a"))

	require.Eventually(t, func() bool { return len(o.Highlighted()) == 0 }, time.Second, 5*time.Millisecond)
}

// A second highlight does not extend the first: whichever timer fires first
// clears the id.
func TestHighlight_FirstTimerWins(t *testing.T) {
	cfg := manualConfig()
	cfg.HighlightWindow = 200 * time.Millisecond
	o := New(cfg, &fakeScene{snap: testScene()}, testCatalog())
	defer o.Close()

	n := engine.Nudge{ID: idObject}
	o.Highlight(n)
	time.Sleep(120 * time.Millisecond)
	second := time.Now()
	o.Highlight(n)
	require.True(t, o.IsHighlighted(idObject))

	require.Eventually(t, func() bool { return !o.IsHighlighted(idObject) }, time.Second, 5*time.Millisecond)
	assert.Less(t, time.Since(second), cfg.HighlightWindow, "cleared by the first timer")
}

// #endregion

package orchestrator

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sapo-planner/nudge-controller/internal/engine"
	"github.com/sapo-planner/nudge-controller/internal/logging"
)

// #region dismiss

// Dismiss adds id to the session ignore set and drops it from the visible
// list. The id is remembered even if it is not currently visible, so a nudge
// dismissed from a stale list stays hidden when it comes back. Idempotent.
func (o *Orchestrator) Dismiss(id string) {
	if id == "" {
		return
	}
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	if _, ok := o.ignored[id]; ok {
		o.mu.Unlock()
		return
	}
	o.ignored[id] = struct{}{}
	before := len(o.visible)
	o.visible = o.filterLocked(o.visible)
	changed := len(o.visible) != before
	if changed {
		o.enqueueLocked()
	}
	entry := logging.DismissalEntry{
		SessionID: o.sessionID,
		NudgeID:   id,
		RuleID:    o.ruleIDLocked(id),
		CreatedAt: time.Now().UTC(),
	}
	o.mu.Unlock()

	o.metrics.IncDismissals()
	o.log.Info("dismiss", zap.String("nudge", id), zap.Bool("visible", changed))
	if o.recorder != nil {
		if err := o.recorder.RecordDismissal(entry); err != nil {
			o.log.Warn("record dismissal", zap.String("nudge", id), zap.Error(err))
		}
	}
	if changed {
		o.drain()
	}
}

// ruleIDLocked finds the rule behind id, falling back to the id prefix.
func (o *Orchestrator) ruleIDLocked(id string) string {
	for _, n := range o.full {
		if n.ID == id {
			return n.RuleID
		}
	}
	if i := strings.Index(id, "::"); i > 0 {
		return id[:i]
	}
	return ""
}

// Dismissed returns the ignore set, sorted.
func (o *Orchestrator) Dismissed() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.ignored))
	for id := range o.ignored {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// #endregion

// #region zoom

// ZoomToSubject eases the camera to the nudge's subject. No-op without a
// camera or a subject position.
func (o *Orchestrator) ZoomToSubject(n engine.Nudge) {
	if o.camera == nil || n.Subject.Position == nil {
		return
	}
	o.camera.EaseTo(*n.Subject.Position, o.cfg.ZoomDuration)
}

// #endregion

// #region highlight

// Highlight marks the nudge for the highlight window. Every call starts its
// own timer and none cancels another, so the first timer to fire clears the
// id even if the nudge was highlighted again since.
func (o *Orchestrator) Highlight(n engine.Nudge) {
	if n.ID == "" {
		return
	}
	id := n.ID
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.highlighted[id] = struct{}{}

	var t *time.Timer
	t = time.AfterFunc(o.cfg.HighlightWindow, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.timers, t)
		if o.closed {
			return
		}
		delete(o.highlighted, id)
	})
	o.timers[t] = struct{}{}
}

// Highlighted returns the highlighted ids, sorted.
func (o *Orchestrator) Highlighted() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.highlighted))
	for id := range o.highlighted {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IsHighlighted reports whether id is currently highlighted.
func (o *Orchestrator) IsHighlighted(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.highlighted[id]
	return ok
}

// #endregion

package replay

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sapo-planner/nudge-controller/internal/engine"
	"github.com/sapo-planner/nudge-controller/internal/orchestrator"
	"github.com/sapo-planner/nudge-controller/internal/rules"
	"github.com/sapo-planner/nudge-controller/internal/scene"
)

// #region types

// StepResult captures the outcome of replaying one fixture step.
type StepResult struct {
	StepID     string
	Ran        bool // a pass ran during this step
	Visible    []string
	Passed     bool
	Missing    []string // expected but not visible
	Unexpected []string // visible but not expected, or listed as absent
	Reason     string
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalSteps int
	Passed     int
	Failed     int
	Passes     int
	Final      []string
}

// #endregion types

// #region source

// stepSource is the scene the harness swaps between steps.
type stepSource struct {
	mu   sync.Mutex
	snap *scene.Snapshot
}

func (s *stepSource) Snapshot() *scene.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *stepSource) set(snap *scene.Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

// #endregion source

// #region replay

// Replay drives the fixture through a fresh orchestrator over catalog. Each
// step is flushed synchronously, so results never depend on timer timing.
// opts are passed through to the orchestrator (recorder, metrics, logger,
// session id).
func Replay(f *Fixture, catalog []rules.Rule, opts ...orchestrator.Option) ([]StepResult, error) {
	cfg := orchestrator.DefaultConfig()
	cfg.Enabled = true
	cfg.Debounce = 24 * time.Hour

	src := &stepSource{}
	o := orchestrator.New(cfg, src, catalog, opts...)
	defer o.Close()

	results := make([]StepResult, 0, len(f.Steps))
	for i := range f.Steps {
		st := &f.Steps[i]
		changes, err := st.ToChanges()
		if err != nil {
			return results, err
		}

		if st.touchesScene() {
			src.set(st.Apply(src.Snapshot()))
		}
		for _, c := range changes {
			o.Notify(c)
		}
		ran := o.Flush()
		for _, id := range st.Dismiss {
			o.Dismiss(id)
		}
		if st.Reset {
			o.Reset()
		}

		res := check(st, o.Nudges())
		res.Ran = ran
		results = append(results, res)
	}
	return results, nil
}

func check(st *FixtureStep, visible []engine.Nudge) StepResult {
	res := StepResult{StepID: st.StepID, Visible: make([]string, len(visible))}
	for i, n := range visible {
		res.Visible[i] = n.ID
	}

	if st.Expect != nil {
		for _, id := range st.Expect {
			if !slices.Contains(res.Visible, id) {
				res.Missing = append(res.Missing, id)
			}
		}
		for _, id := range res.Visible {
			if !slices.Contains(st.Expect, id) {
				res.Unexpected = append(res.Unexpected, id)
			}
		}
	}
	for _, id := range st.ExpectAbsent {
		if slices.Contains(res.Visible, id) && !slices.Contains(res.Unexpected, id) {
			res.Unexpected = append(res.Unexpected, id)
		}
	}

	switch {
	case len(res.Missing) > 0 || len(res.Unexpected) > 0:
		res.Reason = fmt.Sprintf("missing %v, unexpected %v", res.Missing, res.Unexpected)
	case st.Expect != nil && !slices.Equal(st.Expect, res.Visible):
		res.Reason = fmt.Sprintf("order: want %v, got %v", st.Expect, res.Visible)
	default:
		res.Passed = true
	}
	return res
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []StepResult) ReplaySummary {
	s := ReplaySummary{TotalSteps: len(results)}
	for _, r := range results {
		if r.Passed {
			s.Passed++
		} else {
			s.Failed++
		}
		if r.Ran {
			s.Passes++
		}
	}
	if len(results) > 0 {
		s.Final = results[len(results)-1].Visible
	}
	return s
}

// #endregion replay

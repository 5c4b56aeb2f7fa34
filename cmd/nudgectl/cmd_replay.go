package main

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sapo-planner/nudge-controller/internal/metrics"
	"github.com/sapo-planner/nudge-controller/internal/orchestrator"
	"github.com/sapo-planner/nudge-controller/internal/replay"
	"github.com/sapo-planner/nudge-controller/internal/store"
)

// #region replay

func newReplayCmd(a *app) *cobra.Command {
	var (
		fixturePath string
		dbPath      string
		showMetrics bool
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Drive a scripted session fixture through the orchestrator",
		Long: `Replays a JSON fixture of scene steps (scene swaps, layer toggles,
relabels, dismissals, resets) through a fresh orchestrator and checks the
visible nudge ids after every step. With --db the session is written to the
audit store; with --metrics the prometheus counters are printed at the end.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, source, err := a.catalog()
			if err != nil {
				return err
			}
			f, err := replay.LoadFixture(fixturePath)
			if err != nil {
				return err
			}

			sessionID := uuid.NewString()
			opts := []orchestrator.Option{
				orchestrator.WithLogger(a.logger),
				orchestrator.WithSessionID(sessionID),
			}

			if dbPath == "" {
				dbPath = a.cfg.DB
			}
			if dbPath != "" {
				st, err := store.NewStore(dbPath)
				if err != nil {
					return fmt.Errorf("open audit store: %w", err)
				}
				defer st.Close()
				if err := st.StartSession(store.SessionRecord{
					SessionID:   sessionID,
					RulesSource: source,
					RuleCount:   len(catalog),
				}); err != nil {
					return err
				}
				opts = append(opts, orchestrator.WithRecorder(st))
			}

			reg := prometheus.NewRegistry()
			if showMetrics || a.cfg.Metrics.Enabled {
				m, err := metrics.New(reg)
				if err != nil {
					return fmt.Errorf("register metrics: %w", err)
				}
				opts = append(opts, orchestrator.WithMetrics(m))
			}

			results, err := replay.Replay(f, catalog, opts...)
			if err != nil {
				return err
			}
			sum := replay.Summarize(results)
			a.logger.Info("replay finished",
				zap.String("session", sessionID),
				zap.Int("steps", sum.TotalSteps),
				zap.Int("failed", sum.Failed))

			out := cmd.OutOrStdout()
			printSteps(out, results)
			fmt.Fprintf(out, "\n%d/%d steps passed, %d passes, session %s\n",
				sum.Passed, sum.TotalSteps, sum.Passes, sessionID)

			if showMetrics || a.cfg.Metrics.Enabled {
				if err := dumpMetrics(out, reg); err != nil {
					return err
				}
			}
			if sum.Failed > 0 {
				return fmt.Errorf("%d of %d steps failed", sum.Failed, sum.TotalSteps)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fixturePath, "fixture", "", "Replay fixture JSON (required)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite audit db (default: config db)")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "Print prometheus metrics after the replay")
	_ = cmd.MarkFlagRequired("fixture")
	return cmd
}

// #endregion

// #region output

func printSteps(w io.Writer, results []replay.StepResult) {
	for _, r := range results {
		status := "ok  "
		if !r.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(w, "%s %-16s %d visible\n", status, r.StepID, len(r.Visible))
		if !r.Passed {
			fmt.Fprintf(w, "     %s\n", r.Reason)
		}
	}
}

func dumpMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	fmt.Fprintln(w)
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

// #endregion

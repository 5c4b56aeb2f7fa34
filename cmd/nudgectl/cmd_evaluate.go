package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sapo-planner/nudge-controller/internal/engine"
	"github.com/sapo-planner/nudge-controller/internal/scene"
)

// #region evaluate

func newEvaluateCmd(a *app) *cobra.Command {
	var (
		scenePath string
		textScan  bool
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run the rule catalog once against a scene snapshot",
		Long: `Evaluates every rule against a scene JSON file (droppedObjects,
customShapes, infrastructureData, layers) and prints the nudges in catalog
order. Text rules run only with --text-scan.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, _, err := a.catalog()
			if err != nil {
				return err
			}
			snap, err := scene.LoadFile(scenePath)
			if err != nil {
				return err
			}

			res := engine.Evaluate(catalog, snap, engine.Options{TextScanEnabled: textScan})
			for _, s := range res.Skips {
				a.logger.Debug("rule skipped",
					zap.String("rule", s.RuleID),
					zap.String("reason", string(s.Reason)),
					zap.String("detail", s.Detail))
			}
			a.logger.Info("evaluated",
				zap.Int("rules", res.Perf.RulesEvaluated),
				zap.Int("nudges", len(res.Nudges)),
				zap.Duration("took", res.Perf.Took))

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res.Nudges)
			}
			printNudges(cmd.OutOrStdout(), res.Nudges)
			return nil
		},
	}
	cmd.Flags().StringVar(&scenePath, "scene", "", "Scene snapshot JSON (required)")
	cmd.Flags().BoolVar(&textScan, "text-scan", false, "Evaluate text rules against shape labels")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print nudges as JSON")
	_ = cmd.MarkFlagRequired("scene")
	return cmd
}

// #endregion

// #region output

func printNudges(w io.Writer, nudges []engine.Nudge) {
	if len(nudges) == 0 {
		fmt.Fprintln(w, "no nudges")
		return
	}
	for _, n := range nudges {
		fmt.Fprintf(w, "[%s] %s\n", n.Severity, n.ID)
		fmt.Fprintf(w, "    %s\n", n.Message)
		if n.CitationURL != "" {
			fmt.Fprintf(w, "    see %s\n", n.CitationURL)
		}
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// #endregion

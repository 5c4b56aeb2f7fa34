package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sapo-planner/nudge-controller/internal/config"
	"github.com/sapo-planner/nudge-controller/internal/logging"
	"github.com/sapo-planner/nudge-controller/internal/rules"
)

// #region app

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	rulesPath  string
	logLevel   string
	verbose    bool

	cfg    config.Config
	logger *zap.Logger
}

// catalog returns the rule file named by --rules, NUDGES_RULES or the
// config, else the shipped catalog.
func (a *app) catalog() ([]rules.Rule, string, error) {
	path := a.cfg.Rules
	if path == "" {
		return rules.DefaultCatalog(), "default", nil
	}
	catalog, err := rules.LoadFile(path)
	if err != nil {
		return nil, path, err
	}
	a.logger.Debug("catalog loaded", zap.String("path", path), zap.Int("rules", len(catalog)))
	return catalog, path, nil
}

// #endregion

// #region root

func newRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "nudgectl",
		Short: "Evaluate, replay and audit compliance nudges for a planning scene",
		Long: `nudgectl runs the compliance nudge engine outside the map.

It evaluates a rule catalog against a scene snapshot, replays scripted
planning sessions through the orchestrator, validates rule files and
inspects the SQLite audit trail.

Configuration is read from --config (YAML) and overridden by NUDGES_RULES,
NUDGES_DB, NUDGES_LOG_LEVEL, NUDGES_LOG_JSON and NUDGES_ENABLED.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.rulesPath != "" {
				cfg.Rules = a.rulesPath
			}
			if a.logLevel != "" {
				cfg.Log.Level = a.logLevel
			}
			if a.verbose {
				cfg.Log.Level = "debug"
			}
			a.cfg = cfg

			logger, err := logging.New(cfg.Log.Level, cfg.Log.JSON)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "nudges.yaml", "Config file (missing file means defaults)")
	root.PersistentFlags().StringVar(&a.rulesPath, "rules", "", "Rule catalog YAML (default: shipped catalog)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newEvaluateCmd(a))
	root.AddCommand(newReplayCmd(a))
	root.AddCommand(newRulesCmd(a))
	root.AddCommand(newInspectCmd(a))
	return root
}

// #endregion

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

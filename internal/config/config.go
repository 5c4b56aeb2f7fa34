package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/sapo-planner/nudge-controller/internal/orchestrator"
)

// #region types

// Config models nudges.yaml. Timing windows are fixed and deliberately not
// configurable here.
type Config struct {
	Version int           `yaml:"version"`
	Rules   string        `yaml:"rules,omitempty"`
	DB      string        `yaml:"db,omitempty"`
	Enabled *bool         `yaml:"enabled,omitempty"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MetricsConfig controls the prometheus dump after a replay.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration: the shipped catalog and no
// audit db.
func Default() Config {
	enabled := true
	return Config{
		Version: 1,
		Enabled: &enabled,
		Log:     LogConfig{Level: "info"},
	}
}

// #endregion

// #region load

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error when path is empty or the file does not
// exist; the defaults and environment are used instead.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Rules = envOr("NUDGES_RULES", c.Rules)
	c.DB = envOr("NUDGES_DB", c.DB)
	c.Log.Level = envOr("NUDGES_LOG_LEVEL", c.Log.Level)
	if v := os.Getenv("NUDGES_LOG_JSON"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("NUDGES_LOG_JSON: %w", err)
		}
		c.Log.JSON = b
	}
	// kill switch: only the literal "false" disables
	if v := os.Getenv("NUDGES_ENABLED"); v == "false" {
		off := false
		c.Enabled = &off
	}
	return nil
}

// #endregion

// #region accessors

// IsEnabled reports the kill switch; unset means enabled.
func (c Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Orchestrator returns the orchestrator settings for this config.
func (c Config) Orchestrator() orchestrator.Config {
	oc := orchestrator.DefaultConfig()
	oc.Enabled = c.IsEnabled()
	return oc
}

// #endregion

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
// #endregion helpers

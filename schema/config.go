package schema

import (
	"errors"
	"time"
)

// SessionConfig defines defaults for an investigation session.
type SessionConfig struct {
	Scenario ScenarioID
	// VisualizationTimeout bounds a single visualization fetch.
	VisualizationTimeout time.Duration
	// HistoryTitleMax truncates the title derived from the alert text.
	HistoryTitleMax int
}

// DefaultScenario is used when no scenario is configured.
const DefaultScenario ScenarioID = "default"

// DefaultVisualizationTimeout is the default per-fetch timeout.
const DefaultVisualizationTimeout = 30 * time.Second

// NormalizeSessionConfig applies defaults and validates the config.
func NormalizeSessionConfig(cfg SessionConfig) (SessionConfig, error) {
	if cfg.Scenario == "" {
		cfg.Scenario = DefaultScenario
	}
	scenario, err := NormalizeScenario(string(cfg.Scenario))
	if err != nil {
		return SessionConfig{}, err
	}
	cfg.Scenario = scenario
	if cfg.VisualizationTimeout < 0 {
		return SessionConfig{}, errors.New("visualization timeout must not be negative")
	}
	if cfg.VisualizationTimeout == 0 {
		cfg.VisualizationTimeout = DefaultVisualizationTimeout
	}
	if cfg.HistoryTitleMax <= 0 {
		cfg.HistoryTitleMax = 80
	}
	return cfg, nil
}

package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/noctrace/internal/orchestrator"
	"pkt.systems/noctrace/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int                `mapstructure:"config_version" yaml:"config_version"`
	Orchestrator  OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	Session       SessionConfig      `mapstructure:"session" yaml:"session"`
	HTTP          HTTPConfig         `mapstructure:"http" yaml:"http"`
	Mock          MockConfig         `mapstructure:"mock" yaml:"mock"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// OrchestratorConfig points the engine at the investigation backend.
type OrchestratorConfig struct {
	BaseURL               string            `mapstructure:"base_url" yaml:"base_url"`
	InvestigatePath       string            `mapstructure:"investigate_path" yaml:"investigate_path"`
	VisualizationPath     string            `mapstructure:"visualization_path" yaml:"visualization_path"`
	HistoryPath           string            `mapstructure:"history_path" yaml:"history_path"`
	Token                 string            `mapstructure:"token" yaml:"token"`
	Headers               map[string]string `mapstructure:"headers" yaml:"headers"`
	RequestTimeoutSeconds int               `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`
}

// SessionConfig controls session behavior.
type SessionConfig struct {
	Scenario                    string `mapstructure:"scenario" yaml:"scenario"`
	VisualizationTimeoutSeconds int    `mapstructure:"visualization_timeout_seconds" yaml:"visualization_timeout_seconds"`
	HistoryTitleMax             int    `mapstructure:"history_title_max" yaml:"history_title_max"`
}

// HTTPConfig configures the engine HTTP facade.
type HTTPConfig struct {
	Addr       string `mapstructure:"addr" yaml:"addr"`
	HubHistory int    `mapstructure:"hub_history" yaml:"hub_history"`
}

// MockConfig configures the bundled mock orchestrator.
type MockConfig struct {
	Addr          string `mapstructure:"addr" yaml:"addr"`
	Scenario      string `mapstructure:"scenario" yaml:"scenario"`
	StepDelayMS   int    `mapstructure:"step_delay_ms" yaml:"step_delay_ms"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Orchestrator: OrchestratorConfig{
			BaseURL:               "http://127.0.0.1:27590",
			InvestigatePath:       orchestrator.DefaultInvestigatePath,
			VisualizationPath:     orchestrator.DefaultVisualizationPath,
			HistoryPath:           orchestrator.DefaultHistoryPath,
			Token:                 "",
			Headers:               map[string]string{},
			RequestTimeoutSeconds: int(orchestrator.DefaultRequestTimeout.Seconds()),
		},
		Session: SessionConfig{
			Scenario:                    string(schema.DefaultScenario),
			VisualizationTimeoutSeconds: int(schema.DefaultVisualizationTimeout.Seconds()),
			HistoryTitleMax:             80,
		},
		HTTP: HTTPConfig{
			Addr:       ":27580",
			HubHistory: 500,
		},
		Mock: MockConfig{
			Addr:          ":27590",
			Scenario:      "normal",
			StepDelayMS:   400,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".noctrace", "config.yaml"), nil
}

package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
	"pkt.systems/noctrace/internal/orchestrator"
	"pkt.systems/noctrace/schema"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("NOCTRACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("orchestrator.base_url", cfg.Orchestrator.BaseURL)
	v.SetDefault("orchestrator.investigate_path", cfg.Orchestrator.InvestigatePath)
	v.SetDefault("orchestrator.visualization_path", cfg.Orchestrator.VisualizationPath)
	v.SetDefault("orchestrator.history_path", cfg.Orchestrator.HistoryPath)
	v.SetDefault("orchestrator.token", cfg.Orchestrator.Token)
	v.SetDefault("orchestrator.headers", cfg.Orchestrator.Headers)
	v.SetDefault("orchestrator.request_timeout_seconds", cfg.Orchestrator.RequestTimeoutSeconds)
	v.SetDefault("session.scenario", cfg.Session.Scenario)
	v.SetDefault("session.visualization_timeout_seconds", cfg.Session.VisualizationTimeoutSeconds)
	v.SetDefault("session.history_title_max", cfg.Session.HistoryTitleMax)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.hub_history", cfg.HTTP.HubHistory)
	v.SetDefault("mock.addr", cfg.Mock.Addr)
	v.SetDefault("mock.scenario", cfg.Mock.Scenario)
	v.SetDefault("mock.step_delay_ms", cfg.Mock.StepDelayMS)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
		if !v.IsSet("orchestrator.base_url") {
			return Config{}, fmt.Errorf("orchestrator.base_url is required for config_version %d", CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	baseURL := strings.TrimSpace(cfg.Orchestrator.BaseURL)
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("orchestrator.base_url must include scheme and host (e.g. https://noc.example.com)")
	}
	for _, path := range []struct {
		key   string
		value string
	}{
		{"orchestrator.investigate_path", cfg.Orchestrator.InvestigatePath},
		{"orchestrator.visualization_path", cfg.Orchestrator.VisualizationPath},
		{"orchestrator.history_path", cfg.Orchestrator.HistoryPath},
	} {
		if strings.Contains(path.value, "://") {
			return fmt.Errorf("%s must be a path, not a URL", path.key)
		}
		if strings.ContainsAny(path.value, "?#") {
			return fmt.Errorf("%s must not include query or fragment", path.key)
		}
	}
	if _, err := schema.NormalizeScenario(cfg.Session.Scenario); err != nil {
		return fmt.Errorf("session.scenario: %w", err)
	}
	if cfg.Session.VisualizationTimeoutSeconds < 0 {
		return fmt.Errorf("session.visualization_timeout_seconds must not be negative")
	}
	if cfg.Orchestrator.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("orchestrator.request_timeout_seconds must not be negative")
	}
	if cfg.HTTP.HubHistory < 0 {
		return fmt.Errorf("http.hub_history must not be negative")
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.Orchestrator.BaseURL = expandEnv(cfg.Orchestrator.BaseURL)
	cfg.Orchestrator.Token = expandEnv(cfg.Orchestrator.Token)
	for key, value := range cfg.Orchestrator.Headers {
		cfg.Orchestrator.Headers[key] = expandEnv(value)
	}
	cfg.HTTP.Addr = expandEnv(cfg.HTTP.Addr)
	cfg.Mock.Addr = expandEnv(cfg.Mock.Addr)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// SessionSettings converts the session section into a schema.SessionConfig.
func (c Config) SessionSettings() schema.SessionConfig {
	return schema.SessionConfig{
		Scenario:             schema.ScenarioID(c.Session.Scenario),
		VisualizationTimeout: time.Duration(c.Session.VisualizationTimeoutSeconds) * time.Second,
		HistoryTitleMax:      c.Session.HistoryTitleMax,
	}
}

// ClientSettings converts the orchestrator section into a client config.
func (c Config) ClientSettings() orchestrator.Config {
	headers := make(map[string]string, len(c.Orchestrator.Headers))
	for key, value := range c.Orchestrator.Headers {
		headers[key] = value
	}
	return orchestrator.Config{
		BaseURL:           c.Orchestrator.BaseURL,
		InvestigatePath:   c.Orchestrator.InvestigatePath,
		VisualizationPath: c.Orchestrator.VisualizationPath,
		HistoryPath:       c.Orchestrator.HistoryPath,
		Token:             c.Orchestrator.Token,
		Headers:           headers,
		RequestTimeout:    time.Duration(c.Orchestrator.RequestTimeoutSeconds) * time.Second,
	}
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

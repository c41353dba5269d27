package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ConfigVersion != CurrentConfigVersion || cfg.HTTP.Addr != ":27580" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadReadsFile(t *testing.T) {
	t.Setenv("NOC_TOKEN", "s3cret")
	path := writeConfig(t, `
config_version: 1
orchestrator:
  base_url: https://noc.example.com/agents
  token: $NOC_TOKEN
  headers:
    x-tenant: blue
session:
  scenario: Action
  visualization_timeout_seconds: 12
http:
  addr: 127.0.0.1:9000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Orchestrator.BaseURL != "https://noc.example.com/agents" {
		t.Fatalf("unexpected base url %q", cfg.Orchestrator.BaseURL)
	}
	if cfg.Orchestrator.Token != "s3cret" {
		t.Fatalf("expected token expansion, got %q", cfg.Orchestrator.Token)
	}
	if cfg.Orchestrator.Headers["x-tenant"] != "blue" {
		t.Fatalf("unexpected headers %+v", cfg.Orchestrator.Headers)
	}
	if cfg.Orchestrator.InvestigatePath != "/api/investigate" {
		t.Fatalf("expected default investigate path, got %q", cfg.Orchestrator.InvestigatePath)
	}
	session := cfg.SessionSettings()
	if session.VisualizationTimeout != 12*time.Second {
		t.Fatalf("unexpected visualization timeout %s", session.VisualizationTimeout)
	}
	if cfg.HTTP.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected http addr %q", cfg.HTTP.Addr)
	}
}

func TestLoadRejectsUnsupportedConfigVersion(t *testing.T) {
	path := writeConfig(t, `
config_version: 3
orchestrator:
  base_url: http://127.0.0.1:8080
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unsupported config_version") {
		t.Fatalf("expected config_version error, got %v", err)
	}
}

func TestLoadRequiresConfigVersion(t *testing.T) {
	path := writeConfig(t, `
orchestrator:
  base_url: http://127.0.0.1:8080
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "config_version is required") {
		t.Fatalf("expected config_version required error, got %v", err)
	}
}

func TestLoadRejectsInvalidBaseURL(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
orchestrator:
  base_url: noc.example.com
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "orchestrator.base_url") {
		t.Fatalf("expected base_url error, got %v", err)
	}
}

func TestLoadRejectsInvalidScenario(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
orchestrator:
  base_url: http://127.0.0.1:8080
session:
  scenario: "bad scenario"
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "session.scenario") {
		t.Fatalf("expected scenario error, got %v", err)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("FOO", "bar")
	value := expandEnv("$FOO/$UID/$GID/$MISSING")
	if !strings.HasPrefix(value, "bar/") {
		t.Fatalf("expected env expansion, got %q", value)
	}
	if strings.Contains(value, "$UID") || strings.Contains(value, "$GID") {
		t.Fatalf("expected UID/GID expansion, got %q", value)
	}
	if !strings.HasSuffix(value, "/$MISSING") {
		t.Fatalf("expected missing vars to remain, got %q", value)
	}
}

func TestWriteDefaultRespectsOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")
	written, err := WriteDefault(path, false)
	if err != nil {
		t.Fatalf("write default: %v", err)
	}
	if written != path {
		t.Fatalf("expected path %q, got %q", path, written)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("expected written default to load: %v", err)
	}
	if _, err := WriteDefault(path, false); err == nil {
		t.Fatalf("expected error when config exists")
	}
	if _, err := WriteDefault(path, true); err != nil {
		t.Fatalf("expected overwrite to succeed: %v", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

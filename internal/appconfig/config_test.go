package appconfig

import (
	"testing"
	"time"

	"pkt.systems/noctrace/schema"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("validate default config: %v", err)
	}
	session, err := schema.NormalizeSessionConfig(cfg.SessionSettings())
	if err != nil {
		t.Fatalf("normalize session config: %v", err)
	}
	if session.VisualizationTimeout != schema.DefaultVisualizationTimeout {
		t.Fatalf("expected default visualization timeout, got %s", session.VisualizationTimeout)
	}
}

func TestClientSettingsCopiesHeaders(t *testing.T) {
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Orchestrator.Headers = map[string]string{"X-Tenant": "noc"}
	cfg.Orchestrator.RequestTimeoutSeconds = 5
	client := cfg.ClientSettings()
	client.Headers["X-Tenant"] = "changed"
	if cfg.Orchestrator.Headers["X-Tenant"] != "noc" {
		t.Fatalf("expected headers to be copied")
	}
	if client.RequestTimeout != 5*time.Second {
		t.Fatalf("expected request timeout 5s, got %s", client.RequestTimeout)
	}
}

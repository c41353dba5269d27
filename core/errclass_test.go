package core

import (
	"errors"
	"strings"
	"testing"

	"pkt.systems/noctrace/schema"
)

func TestClassifyGatewayTimeout(t *testing.T) {
	info := Classify("FAILED: [tool_server_error] 504 Gateway Timeout")
	if info.Kind != schema.ErrorGatewayTimeout {
		t.Fatalf("expected gateway-timeout, got %s", info.Kind)
	}
	if !strings.Contains(info.Summary, "Gateway timeout") {
		t.Fatalf("expected summary to mention gateway timeout, got %q", info.Summary)
	}
	if info.Code != "tool_server_error" {
		t.Fatalf("expected bracketed code, got %q", info.Code)
	}
}

func TestClassifyPrecedence(t *testing.T) {
	cases := []struct {
		raw  string
		want schema.ErrorKind
	}{
		{"upstream request timed out", schema.ErrorGatewayTimeout},
		{"context deadline exceeded", schema.ErrorGatewayTimeout},
		{"502 Bad Gateway after 504", schema.ErrorGatewayTimeout},
		{"orchestrator returned 502 Bad Gateway", schema.ErrorBadGateway},
		{"404 page not found", schema.ErrorNotFound},
		{"HTTP 401", schema.ErrorAuthFailure},
		{"403 Forbidden", schema.ErrorAuthFailure},
		{"Unauthorized: token expired", schema.ErrorAuthFailure},
		{"error 429 from model", schema.ErrorRateLimited},
		{"Too Many Requests", schema.ErrorRateLimited},
		{"rate limit exceeded", schema.ErrorRateLimited},
		{"random junk", schema.ErrorGeneric},
		{"port 15040 closed", schema.ErrorGeneric},
	}
	for _, tc := range cases {
		if got := Classify(tc.raw).Kind; got != tc.want {
			t.Fatalf("Classify(%q) = %s, want %s", tc.raw, got, tc.want)
		}
	}
}

func TestClassifyGenericKeepsRawDetail(t *testing.T) {
	info := Classify("random junk")
	if info.Kind != schema.ErrorGeneric || info.Detail != "random junk" {
		t.Fatalf("unexpected generic info %+v", info)
	}
	if info.Code != "" {
		t.Fatalf("did not expect a code, got %q", info.Code)
	}
}

func TestClassifyGenericStripsLeadingCodeAndTruncates(t *testing.T) {
	raw := "[agent_crash] " + strings.Repeat("x", 300)
	info := Classify(raw)
	if info.Code != "agent_crash" {
		t.Fatalf("expected code, got %q", info.Code)
	}
	if strings.HasPrefix(info.Detail, "[") {
		t.Fatalf("expected leading code to be stripped, got %q", info.Detail[:20])
	}
	if len([]rune(info.Detail)) != genericDetailMax {
		t.Fatalf("expected detail truncated to %d, got %d", genericDetailMax, len([]rune(info.Detail)))
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	raw := "FAILED: [tool_server_error] 429 slow down"
	first := Classify(raw)
	for i := 0; i < 10; i++ {
		if Classify(raw) != first {
			t.Fatalf("classification changed between calls")
		}
	}
	if first.Kind != schema.ErrorRateLimited || first.Code != "tool_server_error" {
		t.Fatalf("unexpected info %+v", first)
	}
}

func TestClassifyErrorUsesMessage(t *testing.T) {
	err := NewRunError(RunErrorEnded, schema.ErrStreamEnded)
	info := ClassifyError(err)
	if info.Kind != schema.ErrorGeneric || !strings.Contains(info.Detail, "stream ended") {
		t.Fatalf("unexpected info %+v", info)
	}
	if !errors.Is(err, schema.ErrStreamEnded) {
		t.Fatalf("expected run error to unwrap")
	}
	if ClassifyError(nil).Kind != schema.ErrorGeneric {
		t.Fatalf("expected nil error to classify as generic")
	}
}

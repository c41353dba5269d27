package core

import (
	"strings"
	"testing"
)

func TestAlertHistoryMovesRepeatedAlertToEnd(t *testing.T) {
	h := newAlertHistory(0)
	for _, alert := range []string{"core-sw-01 down", "bgp peer lost", "core-sw-01   down"} {
		h.Append(alert)
	}
	got := strings.Join(h.Entries(), "|")
	if got != "bgp peer lost|core-sw-01   down" {
		t.Fatalf("unexpected entries %q", got)
	}
	if h.Last() != "core-sw-01   down" {
		t.Fatalf("expected last alert as raised, got %q", h.Last())
	}
	if h.Append(" core-sw-01 down ") {
		t.Fatalf("expected repeat of the newest alert to be a no-op")
	}
	if h.Append("  \n ") {
		t.Fatalf("expected blank alert to be ignored")
	}
}

func TestAlertHistoryLimit(t *testing.T) {
	h := newAlertHistory(2)
	for _, alert := range []string{"a", "b", "c"} {
		h.Append(alert)
	}
	if got := strings.Join(h.Entries(), "|"); got != "b|c" {
		t.Fatalf("expected oldest alert to be dropped, got %q", got)
	}
	var missing *alertHistory
	if missing.Append("x") || missing.Last() != "" || missing.Entries() != nil {
		t.Fatalf("expected nil history to be inert")
	}
}

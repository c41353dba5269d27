package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pkt.systems/noctrace/internal/orchestrator"
	"pkt.systems/noctrace/schema"
)

func TestNewMockOrchestratorRejectsUnknownScenario(t *testing.T) {
	if _, err := newMockOrchestrator(mockConfig{scenario: "teleport"}); err == nil {
		t.Fatalf("expected error for unknown scenario")
	}
}

func TestMockStreamDecodesThroughClient(t *testing.T) {
	_, ts := startMock(t, "normal")
	client, err := orchestrator.New(orchestrator.Config{BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := client.StartRun(ctx, schema.StartRunRequest{AlertText: "core-sw-01 down", Scenario: "action", SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	defer stream.Close()
	var names []schema.EventName
	for {
		evt, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		names = append(names, evt.Name())
		if start, ok := evt.(schema.RunStartEvent); ok && start.SessionID != "sess-1" {
			t.Fatalf("expected session id to be echoed, got %q", start.SessionID)
		}
	}
	if len(names) == 0 || names[0] != schema.EventRunStart || names[len(names)-1] != schema.EventRunComplete {
		t.Fatalf("unexpected event order %v", names)
	}
	actions := 0
	for _, name := range names {
		if name == schema.EventStepComplete {
			actions++
		}
	}
	if actions != 3 {
		t.Fatalf("expected action scenario to be selected by request, got %d step completions", actions)
	}
}

func TestMockHistoryAndVisualization(t *testing.T) {
	mock, ts := startMock(t, "normal")
	client, err := orchestrator.New(orchestrator.Config{BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()
	id, err := client.SaveHistory(ctx, schema.HistoryRecord{SessionID: "sess-1", Title: "core-sw-01 down"})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if mock.historyLen() != 1 {
		t.Fatalf("expected one record")
	}
	if err := client.DeleteHistory(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := client.DeleteHistory(ctx, id); err == nil {
		t.Fatalf("expected second delete to fail")
	}
	data, err := client.FetchVisualization(ctx, schema.VisualizationRequest{SessionID: "sess-1", Step: 1, Agent: "netbox"})
	if err != nil {
		t.Fatalf("visualization: %v", err)
	}
	if !strings.Contains(string(data), `"topology"`) {
		t.Fatalf("unexpected visualization %s", data)
	}
}

func TestMockRejectsEmptyAlert(t *testing.T) {
	_, ts := startMock(t, "normal")
	resp, err := http.Post(ts.URL+orchestrator.DefaultInvestigatePath, "application/json", strings.NewReader(`{"alert":""}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestMockStopsWhenClientLeaves(t *testing.T) {
	mock, err := newMockOrchestrator(mockConfig{scenario: "slow"})
	if err != nil {
		t.Fatalf("new mock: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, orchestrator.DefaultInvestigatePath, strings.NewReader(`{"alert":"core-sw-01 down"}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		mock.Handler().ServeHTTP(w, req)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected slow stream to stop after client left")
	}
}

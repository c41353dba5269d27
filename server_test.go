package noctrace

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"pkt.systems/noctrace/core"
	"pkt.systems/noctrace/schema"
)

type scriptedStream struct {
	events []schema.Event
}

func (s *scriptedStream) Next(ctx context.Context) (schema.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.events) == 0 {
		return nil, io.EOF
	}
	evt := s.events[0]
	s.events = s.events[1:]
	return evt, nil
}

func (s *scriptedStream) Close() error { return nil }

type scriptedOrchestrator struct {
	events []schema.Event
}

func (o *scriptedOrchestrator) StartRun(context.Context, schema.StartRunRequest) (core.EventStream, error) {
	return &scriptedStream{events: append([]schema.Event(nil), o.events...)}, nil
}

func (o *scriptedOrchestrator) FetchVisualization(context.Context, schema.VisualizationRequest) (json.RawMessage, error) {
	return json.RawMessage(`{"nodes":[]}`), nil
}

type countingSink struct {
	events chan schema.SessionEvent
}

func (c *countingSink) OnSessionEvent(event schema.SessionEvent) {
	select {
	case c.events <- event:
	default:
	}
}

func scriptedRun() []schema.Event {
	return []schema.Event{
		schema.RunStartEvent{},
		schema.StepStartEvent{Agent: "netbox", Step: 1},
		schema.StepCompleteEvent{Agent: "netbox", Step: 1, Response: "rack A3"},
		schema.MessageEvent{Text: "Line card failure"},
		schema.RunCompleteEvent{},
	}
}

func TestNewRequiresServices(t *testing.T) {
	if _, err := New(ServerConfig{}, ServerDeps{Orchestrator: &scriptedOrchestrator{}}); err == nil {
		t.Fatalf("expected error without services")
	}
	if _, err := New(ServerConfig{}, ServerDeps{}, WithEventBus()); err == nil {
		t.Fatalf("expected error without orchestrator")
	}
}

func TestServerFansOutToBusAndSink(t *testing.T) {
	sink := &countingSink{events: make(chan schema.SessionEvent, 64)}
	srv, err := New(ServerConfig{}, ServerDeps{Orchestrator: &scriptedOrchestrator{events: scriptedRun()}, EventSink: sink}, WithEventBus())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	updates, unsubscribe := srv.Bus().Subscribe(srv.Engine().ID())
	defer unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := srv.Engine().Start(ctx, "core-sw-01 down"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := srv.Engine().Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := srv.Engine().Snapshot().State; got != schema.RunCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
	select {
	case <-updates:
	default:
		t.Fatalf("expected bus update")
	}
	select {
	case <-sink.events:
	default:
		t.Fatalf("expected sink update")
	}
}

func TestServerServesHTTP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv, err := New(ServerConfig{}, ServerDeps{Orchestrator: &scriptedOrchestrator{events: scriptedRun()}, Listener: ln}, WithHTTP())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := srv.Start(ctx); err == nil {
		t.Fatalf("expected second start to fail")
	}
	base := "http://" + ln.Addr().String()

	resp, err := http.Post(base+"/api/runs", "application/json", strings.NewReader(`{"alert":"core-sw-01 down"}`))
	if err != nil {
		t.Fatalf("post run: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	if err := srv.Engine().Wait(waitCtx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	resp, err = http.Get(base + "/api/session")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	defer resp.Body.Close()
	var snapshot struct {
		State    schema.RunState   `json:"state"`
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot.State != schema.RunCompleted || len(snapshot.Messages) != 2 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := srv.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := srv.Wait(); err != nil {
		t.Fatalf("Wait after stop: %v", err)
	}
}

func TestServerStopCancelsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	engine := &trackingEngine{}
	server := &compositeServer{
		session: engine,
		ctx:     ctx,
		cancel:  cancel,
		started: true,
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := server.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if engine.cancelled != 1 {
		t.Fatalf("expected run cancel, got %d", engine.cancelled)
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatalf("expected server context to be canceled")
	}
}

type trackingEngine struct {
	core.Engine
	cancelled int
}

func (t *trackingEngine) Cancel(context.Context) error {
	t.cancelled++
	return errors.New("cancel failed")
}

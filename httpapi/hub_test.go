package httpapi

import (
	"testing"
	"time"

	"pkt.systems/noctrace/schema"
)

func TestHubAssignsSequenceAndTrimsHistory(t *testing.T) {
	hub := NewHub(2)
	for i := 0; i < 3; i++ {
		hub.OnSessionEvent(schema.SessionEvent{Type: schema.SessionEventState, SessionID: "sess-1", State: schema.RunActive})
	}
	if hub.Seq() != 3 {
		t.Fatalf("expected seq 3, got %d", hub.Seq())
	}
	replay := hub.Replay("", 0)
	if len(replay) != 2 || replay[0].Seq != 2 || replay[1].Seq != 3 {
		t.Fatalf("unexpected replay %+v", replay)
	}
	if got := hub.Replay("", 2); len(got) != 1 || got[0].Seq != 3 {
		t.Fatalf("unexpected replay after 2: %+v", got)
	}
}

func TestHubFiltersBySession(t *testing.T) {
	hub := NewHub(10)
	ch, unsubscribe, _, _ := hub.Subscribe("sess-2")
	defer unsubscribe()

	hub.OnSessionEvent(schema.SessionEvent{Type: schema.SessionEventState, SessionID: "sess-1"})
	hub.OnSessionEvent(schema.SessionEvent{Type: schema.SessionEventThinking, SessionID: "sess-2", Thinking: &schema.ThinkingIndicator{Agent: "netbox", Status: "looking up"}})

	select {
	case event := <-ch:
		if event.SessionID != "sess-2" || event.Seq != 2 {
			t.Fatalf("unexpected event %+v", event)
		}
		if event.Thinking == nil || event.Thinking.Agent != "netbox" {
			t.Fatalf("expected thinking payload, got %+v", event.Thinking)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for event")
	}
	if got := hub.Replay("sess-1", 0); len(got) != 1 {
		t.Fatalf("expected one event for sess-1, got %d", len(got))
	}
}

func TestHubSubscribeReturnsHistory(t *testing.T) {
	hub := NewHub(10)
	hub.OnSessionEvent(schema.SessionEvent{Type: schema.SessionEventState, SessionID: "sess-1"})
	_, unsubscribe, seq, history := hub.Subscribe("")
	unsubscribe()
	unsubscribe()
	if seq != 1 || len(history) != 1 {
		t.Fatalf("expected seq 1 with one history event, got %d %d", seq, len(history))
	}
}

func TestHubDoesNotBlockOnSlowSubscriber(t *testing.T) {
	hub := NewHub(10)
	_, unsubscribe, _, _ := hub.Subscribe("")
	defer unsubscribe()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 300; i++ {
			hub.OnSessionEvent(schema.SessionEvent{Type: schema.SessionEventState, SessionID: "sess-1"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on full subscriber")
	}
}

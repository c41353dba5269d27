package eventbus

import (
	"testing"
	"time"

	"pkt.systems/noctrace/schema"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("sess-1")
	defer cancel()

	event := schema.SessionEvent{Type: schema.SessionEventState, SessionID: "sess-1", Generation: 2, State: schema.RunActive}
	bus.OnSessionEvent(event)

	select {
	case got := <-ch:
		if got.Session.Type != schema.SessionEventState {
			t.Fatalf("expected state event, got %v", got.Session.Type)
		}
		if got.Session.Generation != 2 || got.Session.State != schema.RunActive {
			t.Fatalf("unexpected payload: %+v", got.Session)
		}
		if got.Seq != 1 {
			t.Fatalf("expected seq 1, got %d", got.Seq)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for event")
	}
}

func TestSubscribeAllSessions(t *testing.T) {
	bus := New(nil)
	all, cancelAll := bus.Subscribe(AllSessions)
	defer cancelAll()
	other, cancelOther := bus.Subscribe("sess-2")
	defer cancelOther()

	bus.OnSessionEvent(schema.SessionEvent{Type: schema.SessionEventThinking, SessionID: "sess-1"})
	select {
	case got := <-all:
		if got.Session.SessionID != "sess-1" {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for event")
	}
	select {
	case got := <-other:
		t.Fatalf("did not expect event for other session: %+v", got)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("sess-1")
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed")
	}
	bus.OnSessionEvent(schema.SessionEvent{SessionID: "sess-1"})
}

func TestPublishDoesNotBlockWhenFull(t *testing.T) {
	bus := New(nil)
	bus.depth = 1
	_, cancel := bus.Subscribe("sess-1")
	defer cancel()

	var sendCh chan Event
	bus.mu.Lock()
	for ch := range bus.subs["sess-1"] {
		sendCh = ch
		break
	}
	bus.mu.Unlock()
	if sendCh == nil {
		t.Fatalf("expected subscriber channel")
	}
	sendCh <- Event{}
	done := make(chan struct{})
	go func() {
		bus.OnSessionEvent(schema.SessionEvent{SessionID: "sess-1"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("publish blocked on full channel")
	}
}

package eventbus

import (
	"context"
	"sync"

	"pkt.systems/noctrace/schema"
	"pkt.systems/pslog"
)

// AllSessions subscribes to the events of every session.
const AllSessions schema.SessionID = ""

// Event represents a UI-facing session update.
type Event struct {
	Seq     uint64
	Session schema.SessionEvent
}

// Bus fanouts session events to per-session subscribers.
type Bus struct {
	mu    sync.Mutex
	subs  map[schema.SessionID]map[chan Event]struct{}
	seq   uint64
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[schema.SessionID]map[chan Event]struct{}),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber for the session, or for all sessions with
// AllSessions, and returns a channel + cancel.
func (b *Bus) Subscribe(sessionID schema.SessionID) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	sessionSubs := b.subs[sessionID]
	if sessionSubs == nil {
		sessionSubs = make(map[chan Event]struct{})
		b.subs[sessionID] = sessionSubs
	}
	sessionSubs[ch] = struct{}{}
	count := len(sessionSubs)
	b.mu.Unlock()
	if b.log != nil {
		b.log.With("session", sessionID).Debug("eventbus subscribe", "subs", count)
	}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if subs := b.subs[sessionID]; subs != nil {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.subs, sessionID)
				}
			}
			close(ch)
			b.mu.Unlock()
			if b.log != nil {
				b.log.With("session", sessionID).Debug("eventbus unsubscribe")
			}
		})
	}
}

// OnSessionEvent publishes a session event.
func (b *Bus) OnSessionEvent(event schema.SessionEvent) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.seq++
	out := Event{Seq: b.seq, Session: event}
	dropped := 0
	for _, topic := range []schema.SessionID{event.SessionID, AllSessions} {
		for sub := range b.subs[topic] {
			select {
			case sub <- out:
			default:
				dropped++
			}
		}
		if event.SessionID == AllSessions {
			break
		}
	}
	b.mu.Unlock()
	if dropped > 0 && b.log != nil {
		b.log.With("session", event.SessionID).Trace("eventbus dropped", "count", dropped, "type", event.Type)
	}
}

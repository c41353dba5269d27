package httpapi

import (
	"context"
	"sync"
	"time"

	"pkt.systems/noctrace/internal/logx"
	"pkt.systems/noctrace/schema"
)

// StreamEvent is sent to SSE clients.
type StreamEvent struct {
	Seq        uint64                    `json:"seq"`
	Type       string                    `json:"type"`
	SessionID  schema.SessionID          `json:"session_id,omitempty"`
	Generation uint64                    `json:"generation,omitempty"`
	State      schema.RunState           `json:"state,omitempty"`
	Thinking   *schema.ThinkingIndicator `json:"thinking,omitempty"`
	Message    schema.Message            `json:"message,omitempty"`
	Error      *schema.ErrorInfo         `json:"error,omitempty"`
	Snapshot   *schema.SessionSnapshot   `json:"snapshot,omitempty"`
	Timestamp  time.Time                 `json:"timestamp"`
}

// Hub broadcasts session events and keeps a bounded replay history. Sequence
// numbers are shared by all sessions so a stream survives a session id change.
type Hub struct {
	mu          sync.Mutex
	seq         uint64
	history     []StreamEvent
	subs        map[chan StreamEvent]schema.SessionID
	historySize int
	now         func() time.Time
}

// NewHub constructs a hub with the given history size.
func NewHub(historySize int) *Hub {
	if historySize <= 0 {
		historySize = 1000
	}
	return &Hub{
		subs:        make(map[chan StreamEvent]schema.SessionID),
		historySize: historySize,
		now:         time.Now,
	}
}

// OnSessionEvent implements core.EventSink.
func (h *Hub) OnSessionEvent(event schema.SessionEvent) {
	log := logx.WithSessionID(context.Background(), event.SessionID)
	log.Trace("hub session event", "type", event.Type, "generation", event.Generation, "state", event.State)
	out := StreamEvent{
		Type:       string(event.Type),
		SessionID:  event.SessionID,
		Generation: event.Generation,
		State:      event.State,
		Message:    event.Message,
		Timestamp:  h.now(),
	}
	if event.Thinking != nil {
		thinking := *event.Thinking
		out.Thinking = &thinking
	}
	if event.Error != nil {
		info := *event.Error
		out.Error = &info
	}
	h.publish(out)
}

// Subscribe registers a subscriber for one session, or for every session when
// sessionID is empty, and returns the matching retained history atomically
// with the registration.
func (h *Hub) Subscribe(sessionID schema.SessionID) (<-chan StreamEvent, func(), uint64, []StreamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan StreamEvent, 256)
	h.subs[ch] = sessionID
	history := filterEvents(h.history, sessionID, 0)
	seq := h.seq
	log := logx.WithSessionID(context.Background(), sessionID)
	log.Info("hub subscribe", "subs", len(h.subs), "history", len(history))
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			remaining := len(h.subs)
			h.mu.Unlock()
			log.Info("hub unsubscribe", "subs", remaining)
		})
	}
	return ch, unsub, seq, history
}

// Replay returns retained events after the provided seq.
func (h *Hub) Replay(sessionID schema.SessionID, after uint64) []StreamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	events := filterEvents(h.history, sessionID, after)
	logx.WithSessionID(context.Background(), sessionID).Debug("hub replay", "after", after, "count", len(events))
	return events
}

// Seq returns the last published sequence number.
func (h *Hub) Seq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}

func filterEvents(history []StreamEvent, sessionID schema.SessionID, after uint64) []StreamEvent {
	events := make([]StreamEvent, 0, len(history))
	for _, event := range history {
		if event.Seq > after && matches(sessionID, event) {
			events = append(events, event)
		}
	}
	return events
}

func matches(sessionID schema.SessionID, event StreamEvent) bool {
	return sessionID == "" || event.SessionID == sessionID
}

func (h *Hub) publish(event StreamEvent) {
	h.mu.Lock()
	h.seq++
	event.Seq = h.seq
	h.history = append(h.history, event)
	if len(h.history) > h.historySize {
		h.history = h.history[len(h.history)-h.historySize:]
	}
	dropped := 0
	for sub, sessionID := range h.subs {
		if !matches(sessionID, event) {
			continue
		}
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	h.mu.Unlock()

	if dropped > 0 {
		logx.WithSessionID(context.Background(), event.SessionID).Warn("hub event dropped", "type", event.Type, "dropped", dropped)
	}
}

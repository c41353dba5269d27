package core

import "pkt.systems/noctrace/schema"

// EventSink receives session updates from a running session.
type EventSink interface {
	OnSessionEvent(event schema.SessionEvent)
}

package core

import (
	"github.com/google/uuid"

	"pkt.systems/noctrace/schema"
)

func newID() string {
	return uuid.NewString()
}

func newMessageID() schema.MessageID {
	return schema.MessageID(newID())
}

func newSessionID() schema.SessionID {
	return schema.SessionID(newID())
}

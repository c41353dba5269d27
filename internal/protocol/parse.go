// Package protocol maps orchestrator stream frames to typed events.
package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"pkt.systems/noctrace/internal/sse"
	"pkt.systems/noctrace/schema"
	"pkt.systems/pslog"
)

// ErrUnknownEvent indicates a frame with an unrecognized event name.
var ErrUnknownEvent = errors.New("unknown event")

// DecodeError is returned for frames whose payload could not be decoded or
// failed validation.
type DecodeError struct {
	Event string
	line  []byte
	err   error
}

func (e *DecodeError) Error() string {
	if e == nil || e.err == nil {
		return "protocol decode error"
	}
	if e.Event != "" {
		return fmt.Sprintf("%s: %v", e.Event, e.err)
	}
	return e.err.Error()
}

func (e *DecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Line returns the raw data line.
func (e *DecodeError) Line() []byte {
	if e == nil {
		return nil
	}
	return e.line
}

func decodeErr(frame sse.Frame, err error) error {
	return &DecodeError{Event: frame.Event, line: []byte(frame.Data), err: err}
}

// Decode maps one frame to a typed event.
func Decode(frame sse.Frame) (schema.Event, error) {
	name := schema.EventName(strings.TrimSpace(frame.Event))
	data := bytes.TrimSpace([]byte(frame.Data))
	if len(data) == 0 {
		data = []byte("{}")
	}
	switch name {
	case schema.EventRunStart:
		var evt schema.RunStartEvent
		if err := unmarshal(data, &evt); err != nil {
			return nil, decodeErr(frame, err)
		}
		return evt, nil
	case schema.EventStepThinking:
		var evt schema.StepThinkingEvent
		if err := unmarshal(data, &evt); err != nil {
			return nil, decodeErr(frame, err)
		}
		return evt, nil
	case schema.EventStepStart:
		var evt schema.StepStartEvent
		if err := unmarshal(data, &evt); err != nil {
			return nil, decodeErr(frame, err)
		}
		if evt.Step < 0 {
			return nil, decodeErr(frame, fmt.Errorf("invalid step %d", evt.Step))
		}
		return evt, nil
	case schema.EventStepComplete:
		var evt schema.StepCompleteEvent
		if err := unmarshal(data, &evt); err != nil {
			return nil, decodeErr(frame, err)
		}
		if evt.Step < 1 {
			return nil, decodeErr(frame, fmt.Errorf("invalid step %d", evt.Step))
		}
		if evt.IsAction && evt.Action == nil {
			evt.Action = &schema.Action{}
		}
		if !evt.IsAction {
			evt.Action = nil
		}
		return evt, nil
	case schema.EventStepSubStep:
		var evt schema.SubStepEvent
		if err := unmarshal(data, &evt); err != nil {
			return nil, decodeErr(frame, err)
		}
		if evt.Step < 1 {
			return nil, decodeErr(frame, fmt.Errorf("invalid step %d", evt.Step))
		}
		return evt, nil
	case schema.EventMessageDelta:
		var evt schema.MessageDeltaEvent
		if err := unmarshal(data, &evt); err != nil {
			return nil, decodeErr(frame, err)
		}
		return evt, nil
	case schema.EventMessage:
		var evt schema.MessageEvent
		if err := unmarshal(data, &evt); err != nil {
			return nil, decodeErr(frame, err)
		}
		return evt, nil
	case schema.EventRunComplete:
		if !json.Valid(data) {
			return nil, decodeErr(frame, errors.New("invalid JSON payload"))
		}
		return schema.RunCompleteEvent{}, nil
	case schema.EventError:
		var evt schema.ErrorEvent
		if err := unmarshal(data, &evt); err != nil {
			return nil, decodeErr(frame, err)
		}
		if strings.TrimSpace(evt.Message) == "" {
			evt.Message = "Unknown error"
		}
		return evt, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownEvent, frame.Event)
	}
}

func unmarshal(data []byte, v any) error {
	if len(data) == 0 || data[0] != '{' {
		return errors.New("payload is not a JSON object")
	}
	return json.Unmarshal(data, v)
}

// Parser decodes frames and logs the ones it drops.
type Parser struct {
	log pslog.Logger
}

// NewParser constructs a parser logging to the context logger.
func NewParser(ctx context.Context) Parser {
	return Parser{log: pslog.Ctx(ctx)}
}

// Parse returns the event for frame, or false when the frame is dropped.
func (p Parser) Parse(frame sse.Frame) (schema.Event, bool) {
	evt, err := Decode(frame)
	if err == nil {
		return evt, true
	}
	if p.log == nil {
		return nil, false
	}
	if errors.Is(err, ErrUnknownEvent) {
		p.log.Debug("protocol frame ignored", "name", frame.Event)
		return nil, false
	}
	preview := previewText(frame.Data, 200)
	p.log.Warn("protocol frame dropped", "name", frame.Event, "preview", preview, "truncated", len(preview) < len(frame.Data), "err", err)
	return nil, false
}

// previewText keeps at most max bytes of value without splitting a rune.
func previewText(value string, max int) string {
	if max <= 0 || len(value) <= max {
		return value
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}

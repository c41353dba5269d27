package protocol

import (
	"context"
	"io"
	"sync"

	"pkt.systems/noctrace/internal/sse"
	"pkt.systems/noctrace/schema"
)

// Stream yields typed events from an orchestrator event stream. Frames that
// fail to decode are logged and skipped.
type Stream struct {
	frames  *sse.Reader
	parser  Parser
	body    io.Closer
	once    sync.Once
	dropped int
}

// NewStream wraps body. Close closes body when it implements io.Closer.
func NewStream(ctx context.Context, body io.Reader) *Stream {
	stream := &Stream{
		frames: sse.NewReader(body),
		parser: NewParser(ctx),
	}
	if closer, ok := body.(io.Closer); ok {
		stream.body = closer
	}
	return stream
}

// Next returns the next decoded event, io.EOF at end of stream, or the
// transport or context error.
func (s *Stream) Next(ctx context.Context) (schema.Event, error) {
	for {
		frame, err := s.frames.Next(ctx)
		if err != nil {
			return nil, err
		}
		if evt, ok := s.parser.Parse(frame); ok {
			return evt, nil
		}
		s.dropped++
	}
}

// Dropped reports how many frames were skipped.
func (s *Stream) Dropped() int {
	return s.dropped
}

// Close releases the underlying body.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		if s.body != nil {
			err = s.body.Close()
		}
	})
	return err
}

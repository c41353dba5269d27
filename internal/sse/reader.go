package sse

import (
	"context"
	"errors"
	"io"
)

const defaultChunkSize = 4096

// Reader yields frames from an io.Reader in arrival order.
type Reader struct {
	src     io.Reader
	dec     Decoder
	queue   []Frame
	chunk   []byte
	err     error
	flushed bool
}

// NewReader wraps r. Chunk boundaries of r do not influence the frames returned.
func NewReader(r io.Reader) *Reader {
	return &Reader{src: r, chunk: make([]byte, defaultChunkSize)}
}

// Next returns the next frame. It returns io.EOF once the source is drained,
// and the context error if ctx is done before a frame is available.
func (r *Reader) Next(ctx context.Context) (Frame, error) {
	for {
		if len(r.queue) > 0 {
			frame := r.queue[0]
			r.queue = r.queue[1:]
			return frame, nil
		}
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}
		if r.err != nil {
			if !r.flushed {
				r.flushed = true
				if errors.Is(r.err, io.EOF) {
					r.queue = append(r.queue, r.dec.Flush()...)
					continue
				}
			}
			return Frame{}, r.err
		}
		n, err := r.src.Read(r.chunk)
		if n > 0 {
			r.queue = append(r.queue, r.dec.Feed(r.chunk[:n])...)
		}
		if err != nil {
			r.err = err
		}
	}
}

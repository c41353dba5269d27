// Package sse decodes the line-oriented event-stream framing used by the
// orchestrator into (event, data) frames.
package sse

import (
	"bytes"
	"strings"
)

// Frame is one data line paired with the event name that preceded it.
type Frame struct {
	Event string
	Data  string
}

// Decoder reassembles frames from incrementally delivered chunks. It keeps a
// carry-over buffer for a partial trailing line and the pending event name.
// The zero value is ready to use.
type Decoder struct {
	buf     []byte
	pending string
}

// Feed appends chunk to the carry-over buffer and returns the frames
// completed by it, in arrival order.
func (d *Decoder) Feed(chunk []byte) []Frame {
	if len(chunk) == 0 {
		return nil
	}
	d.buf = append(d.buf, chunk...)
	var frames []Frame
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(d.buf[:idx])
		d.buf = d.buf[idx+1:]
		if frame, ok := d.line(line); ok {
			frames = append(frames, frame)
		}
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return frames
}

// Flush treats any buffered partial line as complete. Call it once the
// underlying stream reached EOF.
func (d *Decoder) Flush() []Frame {
	if len(d.buf) == 0 {
		return nil
	}
	line := string(d.buf)
	d.buf = nil
	if frame, ok := d.line(line); ok {
		return []Frame{frame}
	}
	return nil
}

// Pending reports the number of buffered bytes not yet terminated by a newline.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// Reset drops buffered state.
func (d *Decoder) Reset() {
	d.buf = nil
	d.pending = ""
}

func (d *Decoder) line(line string) (Frame, bool) {
	line = strings.TrimSuffix(line, "\r")
	if line == "" {
		d.pending = ""
		return Frame{}, false
	}
	if strings.HasPrefix(line, ":") {
		return Frame{}, false
	}
	field, value := splitField(line)
	switch field {
	case "event":
		d.pending = value
	case "data":
		return Frame{Event: d.pending, Data: value}, true
	}
	return Frame{}, false
}

// splitField splits "name: value" per the event-stream rules: one optional
// space after the colon is removed.
func splitField(line string) (string, string) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return line, ""
	}
	value := line[idx+1:]
	value = strings.TrimPrefix(value, " ")
	return line[:idx], value
}

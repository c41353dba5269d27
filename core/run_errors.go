package core

import "fmt"

// RunErrorOp names the transport stage that failed.
type RunErrorOp string

const (
	// RunErrorOpen is a failure to open the investigation stream.
	RunErrorOpen RunErrorOp = "open"
	// RunErrorRead is a failure while reading the stream.
	RunErrorRead RunErrorOp = "read"
	// RunErrorEnded is a stream that closed before a terminal event.
	RunErrorEnded RunErrorOp = "ended"
)

// RunError wraps transport failures of a run with the stage they happened in.
type RunError struct {
	Op  RunErrorOp
	Err error
}

// NewRunError constructs a run error.
func NewRunError(op RunErrorOp, err error) *RunError {
	return &RunError{Op: op, Err: err}
}

func (e *RunError) Error() string {
	if e == nil {
		return "run error"
	}
	if e.Err == nil {
		return fmt.Sprintf("run %s failed", e.Op)
	}
	switch e.Op {
	case RunErrorOpen:
		return fmt.Sprintf("start investigation: %v", e.Err)
	case RunErrorRead:
		return fmt.Sprintf("stream error: %v", e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *RunError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

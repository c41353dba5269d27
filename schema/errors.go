package schema

import "errors"

var (
	// ErrEmptyAlert indicates the alert text was empty.
	ErrEmptyAlert = errors.New("empty alert")
	// ErrNoRun indicates no run was started in the session.
	ErrNoRun = errors.New("no run")
	// ErrRunActive indicates the operation needs the run to be finished.
	ErrRunActive = errors.New("run is active")
	// ErrStepNotFound indicates a tool call step does not exist.
	ErrStepNotFound = errors.New("step not found")
	// ErrOrchestratorUnavailable indicates no orchestrator is configured.
	ErrOrchestratorUnavailable = errors.New("orchestrator not configured")
	// ErrHistoryUnavailable indicates no history collaborator is configured.
	ErrHistoryUnavailable = errors.New("history not configured")
	// ErrStreamEnded indicates the stream closed before a terminal event.
	ErrStreamEnded = errors.New("stream ended before the run completed")
	// ErrInvalidSessionID indicates a malformed session identifier.
	ErrInvalidSessionID = errors.New("invalid session id")
	// ErrInvalidHistoryID indicates a missing or malformed history identifier.
	ErrInvalidHistoryID = errors.New("invalid history id")
	// ErrInvalidScenario indicates a malformed scenario identifier.
	ErrInvalidScenario = errors.New("invalid scenario")
)

package schema

// RunState is the state of the session's current run.
type RunState string

const (
	// RunIdle means no run was started.
	RunIdle RunState = "idle"
	// RunStarting means the stream is being opened.
	RunStarting RunState = "starting"
	// RunActive means run_start was received.
	RunActive RunState = "active"
	// RunCompleted means the run produced its diagnosis.
	RunCompleted RunState = "completed"
	// RunErrored means the run or its transport failed.
	RunErrored RunState = "errored"
	// RunCancelled means the user cancelled the run.
	RunCancelled RunState = "cancelled"
)

// Live reports whether the run may still receive events.
func (s RunState) Live() bool {
	return s == RunStarting || s == RunActive
}

// ThinkingIndicator is the ephemeral "currently thinking" status.
type ThinkingIndicator struct {
	Agent  AgentName `json:"agent"`
	Status string    `json:"status"`
}

// SessionSnapshot is a read-only view of a session for transports.
type SessionSnapshot struct {
	SessionID    SessionID          `json:"session_id"`
	Generation   uint64             `json:"generation"`
	State        RunState           `json:"state"`
	Thinking     *ThinkingIndicator `json:"thinking,omitempty"`
	AlertText    string             `json:"alert_text,omitempty"`
	Error        *ErrorInfo         `json:"error,omitempty"`
	Messages     []Message          `json:"messages"`
	RecentAlerts []string           `json:"recent_alerts,omitempty"`
}

// SessionEventType describes a session update.
type SessionEventType string

const (
	// SessionEventState reports a run state transition.
	SessionEventState SessionEventType = "state"
	// SessionEventMessage reports an appended or updated transcript entry.
	SessionEventMessage SessionEventType = "message"
	// SessionEventThinking reports a change of the thinking indicator.
	SessionEventThinking SessionEventType = "thinking"
)

// SessionEvent is emitted to sinks after the session changed.
type SessionEvent struct {
	Type       SessionEventType   `json:"type"`
	SessionID  SessionID          `json:"session_id"`
	Generation uint64             `json:"generation"`
	State      RunState           `json:"state"`
	Thinking   *ThinkingIndicator `json:"thinking,omitempty"`
	Message    Message            `json:"message,omitempty"`
	Error      *ErrorInfo         `json:"error,omitempty"`
}

// ErrorKind is the classification of a user-facing error.
type ErrorKind string

const (
	// ErrorGatewayTimeout is a 504 or timeout.
	ErrorGatewayTimeout ErrorKind = "gateway-timeout"
	// ErrorBadGateway is a 502.
	ErrorBadGateway ErrorKind = "bad-gateway"
	// ErrorNotFound is a 404.
	ErrorNotFound ErrorKind = "not-found"
	// ErrorAuthFailure is a 401 or 403.
	ErrorAuthFailure ErrorKind = "auth-failure"
	// ErrorRateLimited is a 429.
	ErrorRateLimited ErrorKind = "rate-limited"
	// ErrorGeneric is anything else.
	ErrorGeneric ErrorKind = "generic"
)

// ErrorInfo is a classified error for display.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Summary string    `json:"summary"`
	Detail  string    `json:"detail"`
	Code    string    `json:"code,omitempty"`
	Icon    string    `json:"icon"`
}

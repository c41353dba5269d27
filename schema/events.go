package schema

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// EventName is the event field of an orchestrator stream frame.
type EventName string

const (
	// EventRunStart indicates the orchestrator accepted the run.
	EventRunStart EventName = "run_start"
	// EventStepThinking carries an ephemeral "agent is thinking" status.
	EventStepThinking EventName = "step_thinking"
	// EventStepStart indicates an agent invocation started.
	EventStepStart EventName = "step_start"
	// EventStepComplete carries the final fields of an agent invocation.
	EventStepComplete EventName = "step_complete"
	// EventStepSubStep carries one internal fan-out query of a step.
	EventStepSubStep EventName = "step_substep"
	// EventMessageDelta carries partial diagnosis text.
	EventMessageDelta EventName = "message_delta"
	// EventMessage carries the final diagnosis.
	EventMessage EventName = "message"
	// EventRunComplete indicates the orchestrator finished the run.
	EventRunComplete EventName = "run_complete"
	// EventError indicates the run failed.
	EventError EventName = "error"
)

// Event is a decoded orchestrator event. The set of implementations is closed.
type Event interface {
	Name() EventName
	isEvent()
}

// RunStartEvent moves a run from starting to active.
type RunStartEvent struct {
	SessionID SessionID `json:"session_id,omitempty"`
}

// StepThinkingEvent sets the ephemeral thinking indicator.
type StepThinkingEvent struct {
	Agent  AgentName `json:"agent"`
	Status string    `json:"status"`
}

// StepStartEvent marks a tool call as running. Step is optional on the wire.
type StepStartEvent struct {
	Agent AgentName `json:"agent"`
	Step  int       `json:"step,omitempty"`
	Query string    `json:"query,omitempty"`
}

// StepCompleteEvent upserts a tool call into a terminal status.
type StepCompleteEvent struct {
	Step      int             `json:"step"`
	Agent     AgentName       `json:"agent"`
	Duration  DisplayDuration `json:"duration,omitempty"`
	Query     string          `json:"query,omitempty"`
	Response  string          `json:"response,omitempty"`
	Error     bool            `json:"error,omitempty"`
	Reasoning string          `json:"reasoning,omitempty"`
	IsAction  bool            `json:"is_action,omitempty"`
	Action    *Action         `json:"action,omitempty"`
	SubSteps  []SubStep       `json:"sub_steps,omitempty"`
}

// SubStepEvent appends a sub-step to the tool call identified by Step.
type SubStepEvent struct {
	Step          int       `json:"step"`
	Query         string    `json:"query"`
	ResultSummary string    `json:"result_summary"`
	Agent         AgentName `json:"agent,omitempty"`
}

// MessageDeltaEvent appends partial diagnosis text.
type MessageDeltaEvent struct {
	Text string `json:"text"`
}

// MessageEvent carries the final diagnosis text.
type MessageEvent struct {
	Text string `json:"text"`
}

// RunCompleteEvent marks the end of the orchestrator stream.
type RunCompleteEvent struct{}

// ErrorEvent carries a run failure.
type ErrorEvent struct {
	Message string `json:"message"`
}

func (RunStartEvent) Name() EventName     { return EventRunStart }
func (StepThinkingEvent) Name() EventName { return EventStepThinking }
func (StepStartEvent) Name() EventName    { return EventStepStart }
func (StepCompleteEvent) Name() EventName { return EventStepComplete }
func (SubStepEvent) Name() EventName      { return EventStepSubStep }
func (MessageDeltaEvent) Name() EventName { return EventMessageDelta }
func (MessageEvent) Name() EventName      { return EventMessage }
func (RunCompleteEvent) Name() EventName  { return EventRunComplete }
func (ErrorEvent) Name() EventName        { return EventError }

func (RunStartEvent) isEvent()     {}
func (StepThinkingEvent) isEvent() {}
func (StepStartEvent) isEvent()    {}
func (StepCompleteEvent) isEvent() {}
func (SubStepEvent) isEvent()      {}
func (MessageDeltaEvent) isEvent() {}
func (MessageEvent) isEvent()      {}
func (RunCompleteEvent) isEvent()  {}
func (ErrorEvent) isEvent()        {}

// DisplayDuration is a step duration rendered for display. The orchestrator
// sends either a preformatted string or a number of seconds.
type DisplayDuration string

// UnmarshalJSON accepts strings and numbers.
func (d *DisplayDuration) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*d = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = DisplayDuration(strings.TrimSpace(s))
		return nil
	}
	seconds, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*d = DisplayDuration(strconv.FormatFloat(seconds, 'f', 1, 64) + "s")
	return nil
}

package schema

import (
	"encoding/json"
	"time"
)

// MessageRole tags the transcript entry variant.
type MessageRole string

const (
	// RoleUser marks a user-authored alert or follow-up.
	RoleUser MessageRole = "user"
	// RoleAssistant marks an orchestrator run.
	RoleAssistant MessageRole = "assistant"
)

// AssistantStatus is the lifecycle of an assistant entry.
type AssistantStatus string

const (
	// AssistantPending means the run was started but nothing was streamed yet.
	AssistantPending AssistantStatus = "pending"
	// AssistantStreaming means partial diagnosis text arrived.
	AssistantStreaming AssistantStatus = "streaming"
	// AssistantDone means the final diagnosis arrived.
	AssistantDone AssistantStatus = "done"
	// AssistantError means the run failed.
	AssistantError AssistantStatus = "error"
)

// Terminal reports whether the status is final.
func (s AssistantStatus) Terminal() bool {
	return s == AssistantDone || s == AssistantError
}

// ToolCallStatus is the lifecycle of one agent invocation.
type ToolCallStatus string

const (
	// ToolCallPending is a tool call that is known but not started.
	ToolCallPending ToolCallStatus = "pending"
	// ToolCallRunning is a started tool call.
	ToolCallRunning ToolCallStatus = "running"
	// ToolCallComplete is a successful tool call.
	ToolCallComplete ToolCallStatus = "complete"
	// ToolCallError is a failed tool call.
	ToolCallError ToolCallStatus = "error"
)

// Terminal reports whether the status is final.
func (s ToolCallStatus) Terminal() bool {
	return s == ToolCallComplete || s == ToolCallError
}

// Advances reports whether moving from s to next goes forward.
func (s ToolCallStatus) Advances(next ToolCallStatus) bool {
	return toolCallRank(next) > toolCallRank(s)
}

func toolCallRank(s ToolCallStatus) int {
	switch s {
	case ToolCallPending:
		return 1
	case ToolCallRunning:
		return 2
	case ToolCallComplete, ToolCallError:
		return 3
	default:
		return 0
	}
}

// Message is a transcript entry: *UserMessage or *AssistantMessage.
type Message interface {
	MessageID() MessageID
	Role() MessageRole
	CloneMessage() Message
}

// UserMessage is an alert or follow-up typed by a human. Immutable.
type UserMessage struct {
	ID        MessageID `json:"id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageID implements Message.
func (m *UserMessage) MessageID() MessageID { return m.ID }

// Role implements Message.
func (m *UserMessage) Role() MessageRole { return RoleUser }

// CloneMessage implements Message.
func (m *UserMessage) CloneMessage() Message {
	if m == nil {
		return (*UserMessage)(nil)
	}
	out := *m
	return &out
}

// MarshalJSON adds the role tag.
func (m *UserMessage) MarshalJSON() ([]byte, error) {
	type alias UserMessage
	return json.Marshal(struct {
		Role MessageRole `json:"role"`
		*alias
	}{Role: RoleUser, alias: (*alias)(m)})
}

// RunMeta summarizes a completed run.
type RunMeta struct {
	StepCount    int    `json:"step_count"`
	ElapsedLabel string `json:"elapsed_label"`
}

// AssistantMessage is the transcript entry for one orchestrator run.
type AssistantMessage struct {
	ID               MessageID       `json:"id"`
	Status           AssistantStatus `json:"status"`
	ToolCalls        []ToolCall      `json:"tool_calls"`
	Content          string          `json:"content,omitempty"`
	StreamingContent string          `json:"streaming_content,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	RunMeta          *RunMeta        `json:"run_meta,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
}

// MessageID implements Message.
func (m *AssistantMessage) MessageID() MessageID { return m.ID }

// Role implements Message.
func (m *AssistantMessage) Role() MessageRole { return RoleAssistant }

// CloneMessage implements Message.
func (m *AssistantMessage) CloneMessage() Message {
	if m == nil {
		return (*AssistantMessage)(nil)
	}
	return m.Clone()
}

// Clone returns a deep copy.
func (m *AssistantMessage) Clone() *AssistantMessage {
	out := *m
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i := range m.ToolCalls {
			out.ToolCalls[i] = m.ToolCalls[i].Clone()
		}
	}
	if m.RunMeta != nil {
		meta := *m.RunMeta
		out.RunMeta = &meta
	}
	return &out
}

// CompletedSteps counts terminal tool calls.
func (m *AssistantMessage) CompletedSteps() int {
	count := 0
	for _, call := range m.ToolCalls {
		if call.Status.Terminal() {
			count++
		}
	}
	return count
}

// MarshalJSON adds the role tag.
func (m *AssistantMessage) MarshalJSON() ([]byte, error) {
	type alias AssistantMessage
	return json.Marshal(struct {
		Role MessageRole `json:"role"`
		*alias
	}{Role: RoleAssistant, alias: (*alias)(m)})
}

// ToolCall is one agent invocation within a run.
type ToolCall struct {
	Step      int            `json:"step"`
	Agent     AgentName      `json:"agent"`
	Status    ToolCallStatus `json:"status"`
	Query     string         `json:"query,omitempty"`
	Response  string         `json:"response,omitempty"`
	Reasoning string         `json:"reasoning,omitempty"`
	Duration  string         `json:"duration,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Error     bool           `json:"error"`
	IsAction  bool           `json:"is_action"`
	Action    *Action        `json:"action,omitempty"`
	SubSteps  []SubStep      `json:"sub_steps,omitempty"`
}

// Clone returns a deep copy.
func (c ToolCall) Clone() ToolCall {
	out := c
	if c.Action != nil {
		action := *c.Action
		out.Action = &action
	}
	if c.SubSteps != nil {
		out.SubSteps = append([]SubStep(nil), c.SubSteps...)
	}
	return out
}

// SubStep is an internal fan-out query made by a tool call.
type SubStep struct {
	Index         int       `json:"index"`
	Query         string    `json:"query"`
	ResultSummary string    `json:"result_summary"`
	Agent         AgentName `json:"agent,omitempty"`
}

// Action is the dispatch payload of a side-effecting tool call.
type Action struct {
	Engineer      string `json:"engineer,omitempty"`
	EngineerEmail string `json:"engineer_email,omitempty"`
	Destination   string `json:"destination,omitempty"`
	DispatchID    string `json:"dispatch_id,omitempty"`
	DispatchTime  string `json:"dispatch_time,omitempty"`
	Urgency       string `json:"urgency,omitempty"`
	EmailSubject  string `json:"email_subject,omitempty"`
	EmailBody     string `json:"email_body,omitempty"`
}

// CloneMessages deep copies a transcript.
func CloneMessages(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	out := make([]Message, len(messages))
	for i, msg := range messages {
		out[i] = msg.CloneMessage()
	}
	return out
}

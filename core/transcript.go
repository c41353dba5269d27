package core

import (
	"fmt"
	"time"

	"pkt.systems/noctrace/schema"
)

// applyResult reports what a reducer step changed.
type applyResult struct {
	// Changed is true when the open assistant entry was mutated.
	Changed bool
	// Closed is true when the event finalized the open entry.
	Closed bool
	// Ignored explains why an event left the transcript untouched.
	Ignored string
}

// transcript is the ordered message list of one session and the reducer that
// folds run events into its open assistant entry.
type transcript struct {
	messages []schema.Message
	open     *schema.AssistantMessage
	// steps maps a step number to its index in open.ToolCalls.
	steps map[int]int
	// provisional marks steps assigned locally to a step_start without a step.
	provisional map[int]bool
	maxStep     int
}

func newTranscript() *transcript {
	return &transcript{}
}

// Begin appends a user entry and a pending assistant entry, which becomes the
// only entry the reducer mutates. The previously open entry is detached as is.
func (t *transcript) Begin(alert string, now time.Time) (*schema.UserMessage, *schema.AssistantMessage) {
	user := &schema.UserMessage{ID: newMessageID(), Text: alert, Timestamp: now}
	assistant := &schema.AssistantMessage{
		ID:        newMessageID(),
		Status:    schema.AssistantPending,
		ToolCalls: []schema.ToolCall{},
		Timestamp: now,
	}
	t.messages = append(t.messages, user, assistant)
	t.open = assistant
	t.steps = make(map[int]int)
	t.provisional = make(map[int]bool)
	t.maxStep = 0
	return user, assistant
}

// Detach stops routing events to the open entry without changing it.
func (t *transcript) Detach() {
	t.open = nil
	t.steps = nil
	t.provisional = nil
	t.maxStep = 0
}

// Open returns the entry currently receiving events, or nil.
func (t *transcript) Open() *schema.AssistantMessage {
	return t.open
}

// Len returns the number of entries.
func (t *transcript) Len() int {
	return len(t.messages)
}

// Messages returns a deep copy of the entries.
func (t *transcript) Messages() []schema.Message {
	return schema.CloneMessages(t.messages)
}

// LastAssistant returns the most recent assistant entry, open or not.
func (t *transcript) LastAssistant() *schema.AssistantMessage {
	for i := len(t.messages) - 1; i >= 0; i-- {
		if msg, ok := t.messages[i].(*schema.AssistantMessage); ok {
			return msg
		}
	}
	return nil
}

// ToolCall returns the tool call for step, preferring the open entry and then
// the most recent earlier entry that has it.
func (t *transcript) ToolCall(step int) (schema.ToolCall, bool) {
	if t.open != nil {
		if idx, ok := t.steps[step]; ok {
			return t.open.ToolCalls[idx].Clone(), true
		}
	}
	for i := len(t.messages) - 1; i >= 0; i-- {
		msg, ok := t.messages[i].(*schema.AssistantMessage)
		if !ok || msg == t.open {
			continue
		}
		for _, call := range msg.ToolCalls {
			if call.Step == step {
				return call.Clone(), true
			}
		}
	}
	return schema.ToolCall{}, false
}

// Apply folds one event into the open entry. elapsed is the wall time since
// the run started and feeds the run summary.
func (t *transcript) Apply(evt schema.Event, now time.Time, elapsed time.Duration) applyResult {
	msg := t.open
	if msg == nil {
		return applyResult{Ignored: "no open entry"}
	}
	if msg.Status.Terminal() {
		return applyResult{Ignored: "entry is final"}
	}
	switch e := evt.(type) {
	case schema.StepStartEvent:
		return t.applyStepStart(msg, e, now)
	case schema.StepCompleteEvent:
		return t.applyStepComplete(msg, e, now)
	case schema.SubStepEvent:
		return t.applySubStep(msg, e)
	case schema.MessageDeltaEvent:
		if e.Text == "" {
			return applyResult{Ignored: "empty delta"}
		}
		msg.StreamingContent += e.Text
		msg.Status = schema.AssistantStreaming
		return applyResult{Changed: true}
	case schema.MessageEvent:
		t.finish(msg, e.Text, elapsed)
		return applyResult{Changed: true, Closed: true}
	case schema.RunCompleteEvent:
		// A run may end without a diagnosis; the entry still closes.
		t.finish(msg, msg.StreamingContent, elapsed)
		return applyResult{Changed: true, Closed: true}
	case schema.ErrorEvent:
		msg.ErrorMessage = e.Message
		msg.Status = schema.AssistantError
		t.Detach()
		return applyResult{Changed: true, Closed: true}
	default:
		return applyResult{Ignored: "no transcript effect"}
	}
}

func (t *transcript) finish(msg *schema.AssistantMessage, content string, elapsed time.Duration) {
	msg.Content = content
	msg.StreamingContent = ""
	msg.Status = schema.AssistantDone
	msg.RunMeta = &schema.RunMeta{
		StepCount:    len(msg.ToolCalls),
		ElapsedLabel: formatElapsed(elapsed),
	}
	t.Detach()
}

func (t *transcript) applyStepStart(msg *schema.AssistantMessage, e schema.StepStartEvent, now time.Time) applyResult {
	step := e.Step
	provisional := false
	if step == 0 {
		step = t.maxStep + 1
		provisional = true
	}
	if idx, ok := t.steps[step]; ok {
		call := &msg.ToolCalls[idx]
		if !call.Status.Advances(schema.ToolCallRunning) {
			return applyResult{Ignored: "step already started"}
		}
		call.Status = schema.ToolCallRunning
		if call.Agent == "" {
			call.Agent = e.Agent
		}
		if call.Query == "" {
			call.Query = e.Query
		}
		return applyResult{Changed: true}
	}
	t.appendCall(msg, schema.ToolCall{
		Step:      step,
		Agent:     e.Agent,
		Status:    schema.ToolCallRunning,
		Query:     e.Query,
		Timestamp: now,
	})
	if provisional {
		t.provisional[step] = true
	}
	return applyResult{Changed: true}
}

func (t *transcript) applyStepComplete(msg *schema.AssistantMessage, e schema.StepCompleteEvent, now time.Time) applyResult {
	idx, ok := t.steps[e.Step]
	if !ok {
		idx, ok = t.rebindProvisional(msg, e.Step, e.Agent)
	}
	if !ok {
		t.appendCall(msg, schema.ToolCall{Step: e.Step, Agent: e.Agent, Status: schema.ToolCallPending, Timestamp: now})
		idx = t.steps[e.Step]
	}
	call := &msg.ToolCalls[idx]
	if call.Status.Terminal() {
		return applyResult{Ignored: "step already final"}
	}
	delete(t.provisional, e.Step)
	if e.Agent != "" {
		call.Agent = e.Agent
	}
	if e.Query != "" {
		call.Query = e.Query
	}
	call.Response = e.Response
	call.Reasoning = e.Reasoning
	call.Duration = string(e.Duration)
	call.Error = e.Error
	call.IsAction = e.IsAction
	call.Action = nil
	if e.IsAction && e.Action != nil {
		action := *e.Action
		call.Action = &action
	}
	if len(e.SubSteps) > len(call.SubSteps) {
		for _, sub := range e.SubSteps[len(call.SubSteps):] {
			appendSubStep(call, sub.Query, sub.ResultSummary, sub.Agent)
		}
	}
	if e.Error {
		call.Status = schema.ToolCallError
	} else {
		call.Status = schema.ToolCallComplete
	}
	return applyResult{Changed: true}
}

func (t *transcript) applySubStep(msg *schema.AssistantMessage, e schema.SubStepEvent) applyResult {
	idx, ok := t.steps[e.Step]
	if !ok {
		return applyResult{Ignored: "unknown step"}
	}
	call := &msg.ToolCalls[idx]
	if call.Status.Terminal() {
		return applyResult{Ignored: "step already final"}
	}
	appendSubStep(call, e.Query, e.ResultSummary, e.Agent)
	return applyResult{Changed: true}
}

// rebindProvisional moves the earliest running provisional call of agent to
// the step number the orchestrator reported for it.
func (t *transcript) rebindProvisional(msg *schema.AssistantMessage, step int, agent schema.AgentName) (int, bool) {
	best := -1
	oldStep := 0
	for provisionalStep := range t.provisional {
		idx := t.steps[provisionalStep]
		call := msg.ToolCalls[idx]
		if call.Status != schema.ToolCallRunning || (agent != "" && call.Agent != agent) {
			continue
		}
		if best == -1 || idx < best {
			best = idx
			oldStep = provisionalStep
		}
	}
	if best == -1 {
		return 0, false
	}
	delete(t.provisional, oldStep)
	delete(t.steps, oldStep)
	msg.ToolCalls[best].Step = step
	t.steps[step] = best
	if step > t.maxStep {
		t.maxStep = step
	}
	return best, true
}

func (t *transcript) appendCall(msg *schema.AssistantMessage, call schema.ToolCall) {
	msg.ToolCalls = append(msg.ToolCalls, call)
	t.steps[call.Step] = len(msg.ToolCalls) - 1
	if call.Step > t.maxStep {
		t.maxStep = call.Step
	}
}

func appendSubStep(call *schema.ToolCall, query, summary string, agent schema.AgentName) {
	call.SubSteps = append(call.SubSteps, schema.SubStep{
		Index:         len(call.SubSteps),
		Query:         query,
		ResultSummary: summary,
		Agent:         agent,
	})
}

func formatElapsed(duration time.Duration) string {
	if duration < 0 {
		duration = 0
	}
	if duration < time.Minute {
		return fmt.Sprintf("%.1fs", duration.Seconds())
	}
	if duration < time.Hour {
		minutes := int(duration / time.Minute)
		seconds := int((duration % time.Minute) / time.Second)
		return fmt.Sprintf("%dm %02ds", minutes, seconds)
	}
	hours := int(duration / time.Hour)
	minutes := int((duration % time.Hour) / time.Minute)
	return fmt.Sprintf("%dh %02dm", hours, minutes)
}

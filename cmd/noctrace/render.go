package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"pkt.systems/noctrace/internal/markdown"
	"pkt.systems/noctrace/schema"
)

const responsePreview = 160

// progressPrinter writes one line per visible change of a run.
type progressPrinter struct {
	w       io.Writer
	quiet   bool
	state   schema.RunState
	steps   map[int]schema.ToolCallStatus
	subs    map[int]int
	thought schema.ThinkingIndicator
}

func newProgressPrinter(w io.Writer, quiet bool) *progressPrinter {
	return &progressPrinter{
		w:     w,
		quiet: quiet,
		steps: make(map[int]schema.ToolCallStatus),
		subs:  make(map[int]int),
	}
}

func (p *progressPrinter) Print(event schema.SessionEvent) {
	if p.quiet || p.w == nil {
		return
	}
	switch event.Type {
	case schema.SessionEventState:
		if event.State == p.state {
			return
		}
		p.state = event.State
		if event.Error != nil && event.State == schema.RunErrored {
			p.printf("! %s: %s\n", event.Error.Summary, event.Error.Detail)
			return
		}
		p.printf("* %s\n", event.State)
	case schema.SessionEventThinking:
		if event.Thinking == nil || *event.Thinking == p.thought {
			return
		}
		p.thought = *event.Thinking
		p.printf("  %s: %s\n", event.Thinking.Agent, event.Thinking.Status)
	case schema.SessionEventMessage:
		msg, ok := event.Message.(*schema.AssistantMessage)
		if !ok {
			return
		}
		for _, call := range msg.ToolCalls {
			p.printCall(call)
		}
	}
}

func (p *progressPrinter) printCall(call schema.ToolCall) {
	if p.steps[call.Step] != call.Status {
		p.steps[call.Step] = call.Status
		line := fmt.Sprintf("  [%d] %s %s", call.Step, call.Agent, call.Status)
		if call.Duration != "" {
			line += " (" + call.Duration + ")"
		}
		p.printf("%s\n", line)
	}
	for i := p.subs[call.Step]; i < len(call.SubSteps); i++ {
		sub := call.SubSteps[i]
		p.printf("      - %s: %s\n", sub.Query, sub.ResultSummary)
	}
	p.subs[call.Step] = len(call.SubSteps)
}

func (p *progressPrinter) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.w, format, args...)
}

func renderSnapshotText(w io.Writer, snapshot schema.SessionSnapshot) error {
	var b strings.Builder
	ansi := isTerminalWriter(w)
	for _, msg := range snapshot.Messages {
		switch m := msg.(type) {
		case *schema.UserMessage:
			fmt.Fprintf(&b, "Alert: %s\n", m.Text)
		case *schema.AssistantMessage:
			renderAssistant(&b, m, ansi)
		}
	}
	if snapshot.Error != nil && snapshot.State == schema.RunErrored {
		fmt.Fprintf(&b, "Error: %s\n", snapshot.Error.Summary)
		if snapshot.Error.Code != "" {
			fmt.Fprintf(&b, "Code: %s\n", snapshot.Error.Code)
		}
		fmt.Fprintf(&b, "%s\n", snapshot.Error.Detail)
	}
	fmt.Fprintf(&b, "Session: %s (%s)\n", snapshot.SessionID, snapshot.State)
	_, err := io.WriteString(w, b.String())
	return err
}

func renderAssistant(b *strings.Builder, msg *schema.AssistantMessage, ansi bool) {
	if len(msg.ToolCalls) > 0 {
		b.WriteString("Steps:\n")
	}
	for _, call := range msg.ToolCalls {
		fmt.Fprintf(b, "  %d. %s [%s]", call.Step, call.Agent, call.Status)
		if call.Duration != "" {
			fmt.Fprintf(b, " %s", call.Duration)
		}
		b.WriteString("\n")
		if call.Query != "" {
			fmt.Fprintf(b, "     query: %s\n", call.Query)
		}
		if call.Response != "" {
			fmt.Fprintf(b, "     %s\n", preview(call.Response, responsePreview))
		}
		if call.IsAction && call.Action != nil {
			fmt.Fprintf(b, "     dispatch %s: %s -> %s (%s)\n", call.Action.DispatchID, call.Action.Engineer, call.Action.Destination, call.Action.Urgency)
		}
	}
	content := msg.Content
	if content == "" {
		content = msg.StreamingContent
	}
	if content != "" {
		fmt.Fprintf(b, "Diagnosis:\n%s\n", markdown.Render(strings.TrimSpace(content), markdown.Options{ANSI: ansi}))
	}
	if msg.RunMeta != nil {
		fmt.Fprintf(b, "(%d steps, %s)\n", msg.RunMeta.StepCount, msg.RunMeta.ElapsedLabel)
	}
	if msg.Status == schema.AssistantError && msg.ErrorMessage != "" {
		fmt.Fprintf(b, "Run failed: %s\n", msg.ErrorMessage)
	}
}

func isTerminalWriter(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

func preview(value string, max int) string {
	value = strings.Join(strings.Fields(value), " ")
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max]) + "..."
}

package markdown

import (
	"strings"
)

const (
	ansiBold  = "\x1b[1m"
	ansiCode  = "\x1b[36m"
	ansiReset = "\x1b[0m"
)

// Options controls terminal rendering.
type Options struct {
	// ANSI enables bold and colored spans.
	ANSI bool
	// Indent is prepended to every rendered line.
	Indent string
}

// Render renders text as terminal lines joined by newlines.
func Render(text string, opts Options) string {
	blocks := Parse(text)
	var b strings.Builder
	for i, block := range blocks {
		if i > 0 {
			b.WriteByte('\n')
		}
		if block.Kind == BlockBlank {
			continue
		}
		b.WriteString(opts.Indent)
		switch block.Kind {
		case BlockHeading:
			writeSpans(&b, block.Spans, opts, true)
			continue
		case BlockBullet:
			b.WriteString(strings.Repeat(" ", block.Indent))
			b.WriteString("• ")
		case BlockNumbered:
			b.WriteString(strings.Repeat(" ", block.Indent))
			b.WriteString(block.Marker)
			b.WriteByte(' ')
		case BlockCode:
			b.WriteString("    ")
		}
		writeSpans(&b, block.Spans, opts, false)
	}
	return b.String()
}

func writeSpans(b *strings.Builder, spans []Span, opts Options, bold bool) {
	for _, span := range spans {
		text := span.Text
		if span.Link != "" && span.Link != span.Text {
			text += " (" + span.Link + ")"
		}
		if !opts.ANSI {
			b.WriteString(text)
			continue
		}
		switch {
		case span.Code:
			b.WriteString(ansiCode + text + ansiReset)
		case span.Bold || bold:
			b.WriteString(ansiBold + text + ansiReset)
		default:
			b.WriteString(text)
		}
	}
}

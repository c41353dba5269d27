// Package markdown renders the markdown subset found in diagnoses for a
// terminal.
package markdown

import "strings"

// Span is a styled slice of inline text.
type Span struct {
	Text string
	Bold bool
	Code bool
	// Link is the target of a [text](target) link.
	Link string
}

// BlockKind is the kind of one rendered line.
type BlockKind int

const (
	// BlockText is a paragraph line.
	BlockText BlockKind = iota
	// BlockHeading is a # heading of any level.
	BlockHeading
	// BlockBullet is a "-", "*" or "+" list item.
	BlockBullet
	// BlockNumbered is a "1." list item; Marker keeps the number.
	BlockNumbered
	// BlockCode is a line inside a ``` fence, kept verbatim.
	BlockCode
	// BlockBlank separates paragraphs.
	BlockBlank
)

// Block is one source line classified by kind.
type Block struct {
	Kind   BlockKind
	Marker string
	Indent int
	Spans  []Span
}

// Parse splits text into blocks. Unclosed fences run to the end of text.
func Parse(text string) []Block {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	blocks := make([]Block, 0, len(lines))
	fenced := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			fenced = !fenced
			continue
		}
		if fenced {
			blocks = append(blocks, Block{Kind: BlockCode, Spans: []Span{{Text: line, Code: true}}})
			continue
		}
		if trimmed == "" {
			if n := len(blocks); n == 0 || blocks[n-1].Kind == BlockBlank {
				continue
			}
			blocks = append(blocks, Block{Kind: BlockBlank})
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		blocks = append(blocks, classify(trimmed, indent))
	}
	for len(blocks) > 0 && blocks[len(blocks)-1].Kind == BlockBlank {
		blocks = blocks[:len(blocks)-1]
	}
	return blocks
}

func classify(line string, indent int) Block {
	if level := headingLevel(line); level > 0 {
		return Block{Kind: BlockHeading, Spans: ParseInline(strings.TrimSpace(line[level:]))}
	}
	if len(line) > 1 && strings.ContainsRune("-*+", rune(line[0])) && line[1] == ' ' {
		return Block{Kind: BlockBullet, Indent: indent, Spans: ParseInline(strings.TrimSpace(line[2:]))}
	}
	if n := numberPrefix(line); n > 0 {
		return Block{Kind: BlockNumbered, Indent: indent, Marker: line[:n], Spans: ParseInline(strings.TrimSpace(line[n+1:]))}
	}
	return Block{Kind: BlockText, Spans: ParseInline(line)}
}

func headingLevel(line string) int {
	level := 0
	for level < len(line) && level < 6 && line[level] == '#' {
		level++
	}
	if level == 0 || level >= len(line) || line[level] != ' ' {
		return 0
	}
	return level
}

// numberPrefix returns the length of "12" in "12. item", or 0.
func numberPrefix(line string) int {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i+1 >= len(line) || line[i] != '.' || line[i+1] != ' ' {
		return 0
	}
	return i + 1
}

// ParseInline parses bold (**text** or __text__), `code` and [text](link).
// Single * and _ are left literal since agent output uses them in globs and
// identifiers. Unclosed markers are literal.
func ParseInline(input string) []Span {
	if input == "" {
		return nil
	}
	var spans []Span
	var buf strings.Builder
	bold := false
	code := false

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		spans = append(spans, Span{Text: buf.String(), Bold: bold, Code: code})
		buf.Reset()
	}

	for i := 0; i < len(input); {
		ch := input[i]
		if ch == '\\' && i+1 < len(input) && !code {
			buf.WriteByte(input[i+1])
			i += 2
			continue
		}
		if ch == '`' && (code || strings.Contains(input[i+1:], "`")) {
			flush()
			code = !code
			i++
			continue
		}
		if code {
			buf.WriteByte(ch)
			i++
			continue
		}
		if marker := input[i:min(i+2, len(input))]; marker == "**" || marker == "__" {
			if bold || strings.Contains(input[i+2:], marker) {
				flush()
				bold = !bold
				i += 2
				continue
			}
			buf.WriteString(marker)
			i += 2
			continue
		}
		if ch == '[' {
			if text, link, n := parseLink(input[i:]); n > 0 {
				flush()
				spans = append(spans, Span{Text: text, Bold: bold, Link: link})
				i += n
				continue
			}
		}
		buf.WriteByte(ch)
		i++
	}
	flush()
	return spans
}

// parseLink reads "[text](link)" at the start of s and returns its length.
func parseLink(s string) (string, string, int) {
	closeText := strings.Index(s, "](")
	if closeText <= 1 {
		return "", "", 0
	}
	closeLink := strings.IndexByte(s[closeText+2:], ')')
	if closeLink <= 0 {
		return "", "", 0
	}
	text := s[1:closeText]
	if strings.ContainsAny(text, "[]") {
		return "", "", 0
	}
	return text, s[closeText+2 : closeText+2+closeLink], closeText + 3 + closeLink
}

package core

import (
	"regexp"
	"strings"

	"pkt.systems/noctrace/schema"
)

const genericDetailMax = 200

var (
	bracketCode = regexp.MustCompile(`\[([^\[\]]+)\]`)
	leadingCode = regexp.MustCompile(`^\s*\[[^\[\]]*\]\s*`)
)

type errorRule struct {
	kind    schema.ErrorKind
	match   *regexp.Regexp
	summary string
	detail  string
	icon    string
}

// Rules are evaluated in order; the first match wins.
var errorRules = []errorRule{
	{
		kind:    schema.ErrorGatewayTimeout,
		match:   regexp.MustCompile(`(?i)\b504\b|timed?\s?out|deadline exceeded`),
		summary: "Gateway timeout",
		detail:  "The orchestrator did not answer in time. The investigation may still be running upstream; try again in a moment.",
		icon:    "clock",
	},
	{
		kind:    schema.ErrorBadGateway,
		match:   regexp.MustCompile(`(?i)\b502\b|bad gateway`),
		summary: "Bad gateway",
		detail:  "The orchestrator could not reach one of its upstream services. Check that the agent backends are up and retry.",
		icon:    "plug",
	},
	{
		kind:    schema.ErrorNotFound,
		match:   regexp.MustCompile(`(?i)\b404\b|not found`),
		summary: "Not found",
		detail:  "The orchestrator does not know the requested endpoint or resource. Check the configured base URL and paths.",
		icon:    "search",
	},
	{
		kind:    schema.ErrorAuthFailure,
		match:   regexp.MustCompile(`(?i)\b40[13]\b|unauthori[sz]ed|forbidden|authentication`),
		summary: "Authentication failed",
		detail:  "The orchestrator rejected the request credentials. Check the configured token or headers.",
		icon:    "lock",
	},
	{
		kind:    schema.ErrorRateLimited,
		match:   regexp.MustCompile(`(?i)\b429\b|rate.?limit|too many requests`),
		summary: "Rate limited",
		detail:  "Too many requests reached the orchestrator. Wait a little before retrying.",
		icon:    "hourglass",
	},
}

// Classify maps a raw error text to a display taxonomy entry.
func Classify(raw string) schema.ErrorInfo {
	text := strings.TrimSpace(raw)
	code := ""
	if m := bracketCode.FindStringSubmatch(text); m != nil {
		code = strings.TrimSpace(m[1])
	}
	for _, rule := range errorRules {
		if rule.match.MatchString(text) {
			return schema.ErrorInfo{
				Kind:    rule.kind,
				Summary: rule.summary,
				Detail:  rule.detail,
				Code:    code,
				Icon:    rule.icon,
			}
		}
	}
	detail := strings.TrimSpace(leadingCode.ReplaceAllString(text, ""))
	if detail == "" {
		detail = "An unexpected error occurred."
	}
	return schema.ErrorInfo{
		Kind:    schema.ErrorGeneric,
		Summary: "Something went wrong",
		Detail:  truncateRunes(detail, genericDetailMax),
		Code:    code,
		Icon:    "alert",
	}
}

// ClassifyError classifies err by its message.
func ClassifyError(err error) schema.ErrorInfo {
	if err == nil {
		return Classify("")
	}
	return Classify(err.Error())
}

func truncateRunes(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max])
}

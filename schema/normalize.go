package schema

import (
	"strings"
	"unicode"
)

// NormalizeAlert trims surrounding whitespace from an alert.
func NormalizeAlert(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrEmptyAlert
	}
	return trimmed, nil
}

// NormalizeScenario validates and normalizes a scenario identifier.
// Allowed characters: a-z, 0-9, '.', '_', '-'. Input is lower-cased.
func NormalizeScenario(scenario string) (ScenarioID, error) {
	trimmed := strings.ToLower(strings.TrimSpace(scenario))
	if trimmed == "" {
		return "", ErrInvalidScenario
	}
	for _, r := range trimmed {
		if r == '.' || r == '_' || r == '-' {
			continue
		}
		if r <= unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			continue
		}
		return "", ErrInvalidScenario
	}
	return ScenarioID(trimmed), nil
}

// ValidateSessionID ensures a session id is printable with no whitespace.
func ValidateSessionID(id SessionID) error {
	raw := string(id)
	if raw == "" || len(raw) > 128 {
		return ErrInvalidSessionID
	}
	for _, r := range raw {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return ErrInvalidSessionID
		}
	}
	return nil
}

// TitleFromAlert derives a history title from the first line of an alert.
func TitleFromAlert(alert string, max int) string {
	title := strings.TrimSpace(alert)
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = strings.TrimSpace(title[:idx])
	}
	runes := []rune(title)
	if max > 0 && len(runes) > max {
		return strings.TrimSpace(string(runes[:max])) + "..."
	}
	return title
}

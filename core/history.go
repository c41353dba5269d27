package core

import "strings"

const defaultAlertHistoryMax = 50

// alertHistory is the session's recent alerts, newest last. An alert that is
// raised again moves to the end instead of appearing twice; alerts that differ
// only in whitespace count as the same alert.
type alertHistory struct {
	alerts []string
	limit  int
}

func newAlertHistory(limit int) *alertHistory {
	if limit <= 0 {
		limit = defaultAlertHistoryMax
	}
	return &alertHistory{limit: limit}
}

func alertKey(alert string) string {
	return strings.Join(strings.Fields(alert), " ")
}

// Append records alert and reports whether the list changed.
func (h *alertHistory) Append(alert string) bool {
	if h == nil {
		return false
	}
	key := alertKey(alert)
	if key == "" {
		return false
	}
	n := len(h.alerts)
	if n > 0 && alertKey(h.alerts[n-1]) == key {
		return false
	}
	for i, existing := range h.alerts {
		if alertKey(existing) == key {
			h.alerts = append(h.alerts[:i], h.alerts[i+1:]...)
			break
		}
	}
	h.alerts = append(h.alerts, alert)
	if over := len(h.alerts) - h.limit; over > 0 {
		h.alerts = append([]string(nil), h.alerts[over:]...)
	}
	return true
}

// Last returns the most recent alert as it was raised.
func (h *alertHistory) Last() string {
	if h == nil || len(h.alerts) == 0 {
		return ""
	}
	return h.alerts[len(h.alerts)-1]
}

// Entries returns a copy, oldest first.
func (h *alertHistory) Entries() []string {
	if h == nil {
		return nil
	}
	return append([]string(nil), h.alerts...)
}

package schema

import "time"

// Orchestrator calls.

// StartRunRequest opens an investigation stream.
type StartRunRequest struct {
	AlertText string     `json:"alert"`
	Scenario  ScenarioID `json:"scenario,omitempty"`
	SessionID SessionID  `json:"session_id,omitempty"`
}

// VisualizationRequest looks up the visualization of one tool call.
type VisualizationRequest struct {
	SessionID SessionID `json:"session_id"`
	Step      int       `json:"step"`
	Agent     AgentName `json:"agent"`
	Query     string    `json:"query,omitempty"`
}

// History calls.

// HistoryRecord is a transcript handed to the history collaborator.
type HistoryRecord struct {
	SessionID SessionID `json:"session_id"`
	Title     string    `json:"title"`
	AlertText string    `json:"alert_text"`
	SavedAt   time.Time `json:"saved_at"`
	Messages  []Message `json:"messages"`
}

// SaveHistoryResponse reports the id of a saved transcript.
type SaveHistoryResponse struct {
	ID HistoryID `json:"id"`
}

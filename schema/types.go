package schema

// SessionID identifies an investigation session. It is assigned by the
// orchestrator on run_start or generated locally.
type SessionID string

// MessageID identifies a transcript entry.
type MessageID string

// AgentName names an orchestrator sub-agent.
type AgentName string

// ScenarioID selects an orchestrator scenario for a run.
type ScenarioID string

// HistoryID identifies a transcript persisted by the history collaborator.
type HistoryID string

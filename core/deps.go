package core

import (
	"time"

	"pkt.systems/noctrace/schema"
	"pkt.systems/pslog"
)

// SessionDeps captures the collaborators of a session. Only Orchestrator is
// required to start runs.
type SessionDeps struct {
	Orchestrator   Orchestrator
	History        HistoryStore
	EventSink      EventSink
	Visualizations *VisualizationCache
	Logger         pslog.Logger
	// SessionID seeds the session identity; a random id is used when empty.
	SessionID schema.SessionID
	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

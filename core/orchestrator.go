package core

import (
	"context"
	"encoding/json"

	"pkt.systems/noctrace/schema"
)

// Orchestrator opens investigation streams and answers visualization lookups.
type Orchestrator interface {
	StartRun(ctx context.Context, req schema.StartRunRequest) (EventStream, error)
	FetchVisualization(ctx context.Context, req schema.VisualizationRequest) (json.RawMessage, error)
}

// EventStream yields decoded orchestrator events in arrival order.
type EventStream interface {
	Next(ctx context.Context) (schema.Event, error)
	Close() error
}

// HistoryStore persists transcripts outside the engine.
type HistoryStore interface {
	SaveHistory(ctx context.Context, record schema.HistoryRecord) (schema.HistoryID, error)
	DeleteHistory(ctx context.Context, id schema.HistoryID) error
}

package core

import (
	"context"

	"pkt.systems/noctrace/schema"
)

// Engine is the transport-agnostic API of an investigation session.
type Engine interface {
	ID() schema.SessionID
	Start(ctx context.Context, alert string) (uint64, error)
	Cancel(ctx context.Context) error
	Retry(ctx context.Context) (uint64, error)
	Wait(ctx context.Context) error
	Snapshot() schema.SessionSnapshot
	SaveHistory(ctx context.Context) (schema.HistoryID, error)
	DeleteHistory(ctx context.Context, id schema.HistoryID) error
	Visualization(ctx context.Context, step int) (schema.VisualizationEntry, error)
	RetryVisualization(ctx context.Context, step int) (schema.VisualizationEntry, error)
}

var _ Engine = (*Session)(nil)

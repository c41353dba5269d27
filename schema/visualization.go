package schema

import (
	"encoding/json"
	"strconv"
)

// VisualizationKey identifies the visualization of one tool call.
type VisualizationKey struct {
	SessionID SessionID
	Step      int
}

// String renders the key as sessionId:step.
func (k VisualizationKey) String() string {
	return string(k.SessionID) + ":" + strconv.Itoa(k.Step)
}

// VisualizationStatus is the lifecycle of a cached visualization.
type VisualizationStatus string

const (
	// VisualizationIdle means nothing was requested for the key.
	VisualizationIdle VisualizationStatus = "idle"
	// VisualizationLoading means a fetch is in flight.
	VisualizationLoading VisualizationStatus = "loading"
	// VisualizationLoaded means data is cached.
	VisualizationLoaded VisualizationStatus = "loaded"
	// VisualizationFailed means the last fetch failed.
	VisualizationFailed VisualizationStatus = "error"
)

// VisualizationEntry is the cached state for one key.
type VisualizationEntry struct {
	Key    string              `json:"key"`
	Status VisualizationStatus `json:"status"`
	Data   json.RawMessage     `json:"data,omitempty"`
	Error  string              `json:"error,omitempty"`
}

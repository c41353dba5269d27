package httpapi

import "time"

// Config defines the engine HTTP facade settings.
type Config struct {
	Addr string
	// HeartbeatInterval is the idle interval between SSE keepalive comments.
	HeartbeatInterval time.Duration
}

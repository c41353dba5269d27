package logx

import (
	"context"

	"pkt.systems/noctrace/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	sessionKey contextKey = iota
	generationKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithSessionID annotates the context logger with the session id if present.
func WithSessionID(ctx context.Context, sessionID schema.SessionID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if sessionID != "" {
		if current, ok := ctx.Value(sessionKey).(schema.SessionID); ok && current == sessionID {
			return log
		}
		log = log.With("session", sessionID)
	}
	return log
}

// WithSessionRun annotates the logger with session and run generation.
func WithSessionRun(ctx context.Context, sessionID schema.SessionID, generation uint64) pslog.Logger {
	log := WithSessionID(ctx, sessionID)
	if generation != 0 {
		if current, ok := ctx.Value(generationKey).(uint64); ok && current == generation {
			return log
		}
		log = log.With("generation", generation)
	}
	return log
}

// WithSession annotates the logger with a session id when available.
func WithSession(log pslog.Logger, sessionID schema.SessionID) pslog.Logger {
	if sessionID != "" {
		log = log.With("session", sessionID)
	}
	return log
}

// WithStep annotates the logger with a step number and agent when available.
func WithStep(log pslog.Logger, step int, agent schema.AgentName) pslog.Logger {
	if step > 0 {
		log = log.With("step", step)
	}
	if agent != "" {
		log = log.With("agent", agent)
	}
	return log
}

// ContextWithSession stores the session marker on the context for log de-duplication.
func ContextWithSession(ctx context.Context, sessionID schema.SessionID) context.Context {
	if ctx == nil || sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sessionID)
}

// ContextWithGeneration stores the run generation marker on the context.
func ContextWithGeneration(ctx context.Context, generation uint64) context.Context {
	if ctx == nil || generation == 0 {
		return ctx
	}
	return context.WithValue(ctx, generationKey, generation)
}

// ContextWithSessionLogger attaches the logger and session marker to the context.
func ContextWithSessionLogger(ctx context.Context, log pslog.Logger, sessionID schema.SessionID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithSession(ctx, sessionID)
}

// ContextWithRunLogger attaches the logger and session/generation markers to the context.
func ContextWithRunLogger(ctx context.Context, log pslog.Logger, sessionID schema.SessionID, generation uint64) context.Context {
	ctx = ContextWithSessionLogger(ctx, log, sessionID)
	return ContextWithGeneration(ctx, generation)
}

// CopyContextFields copies session/generation markers from src to dst.
func CopyContextFields(dst context.Context, src context.Context) context.Context {
	if src == nil {
		return dst
	}
	if sessionID, ok := src.Value(sessionKey).(schema.SessionID); ok && sessionID != "" {
		dst = ContextWithSession(dst, sessionID)
	}
	if generation, ok := src.Value(generationKey).(uint64); ok && generation != 0 {
		dst = ContextWithGeneration(dst, generation)
	}
	return dst
}

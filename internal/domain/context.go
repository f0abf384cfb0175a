package domain

import "context"

type ctxKey string

const (
	sessionCtxKey ctxKey = "session_id"
	turnCtxKey    ctxKey = "turn_id"
)

// ContextWithSessionID returns a new context carrying the session ID.
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionCtxKey, sessionID)
}

// SessionIDFromContext extracts the session ID from the context.
// Returns empty string if not set.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionCtxKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithTurnID returns a new context carrying the per-turn invocation ID.
func ContextWithTurnID(ctx context.Context, turnID string) context.Context {
	return context.WithValue(ctx, turnCtxKey, turnID)
}

// TurnIDFromContext extracts the turn invocation ID from the context.
func TurnIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(turnCtxKey).(string); ok {
		return v
	}
	return ""
}

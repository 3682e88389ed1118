package middleware

import "context"

type contextKey string

const ContextKeyActor contextKey = "actor"

// ActorFromContext returns the actor set by the Actor middleware.
func ActorFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ContextKeyActor).(string)
	return v, ok && v != ""
}

package logger

import "context"

type requestIDKey struct{}
type actorIDKey struct{}

// WithRequestID returns a new context with the given request ID stored.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID extracts the request ID from the context.
// Returns an empty string if no request ID is set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithActorID stores the authenticated actor so every log line of the
// request carries it.
func WithActorID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, actorIDKey{}, id)
}

// ActorID returns the actor stored by WithActorID, or 0.
func ActorID(ctx context.Context) int64 {
	id, _ := ctx.Value(actorIDKey{}).(int64)
	return id
}

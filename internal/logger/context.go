package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// ContextWithLogger stores a logger in the context.
func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext extracts a logger from the context.
// Returns zap.NewNop() if no logger is found.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return l
	}
	return zap.NewNop()
}

// WithOperation returns a context whose logger tags every entry with the
// operation name and id.
func WithOperation(ctx context.Context, op, id string) context.Context {
	return ContextWithLogger(ctx, FromContext(ctx).With(zap.String("op", op), zap.String("op_id", id)))
}

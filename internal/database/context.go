package database

import (
	"context"
	"time"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	// ContextKeyQueryTimeout overrides the driver's timeout for one call.
	ContextKeyQueryTimeout ContextKey = "db_query_timeout"
)

// WithQueryTimeout returns a context that overrides the store's query timeout.
func WithQueryTimeout(ctx context.Context, timeout time.Duration) context.Context {
	return context.WithValue(ctx, ContextKeyQueryTimeout, timeout)
}

// getTimeoutFromContext applies the timeout carried by ctx, or defaultTimeout
// when there is none, and returns the derived context.
func getTimeoutFromContext(ctx context.Context, defaultTimeout time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := defaultTimeout
	if v, ok := ctx.Value(ContextKeyQueryTimeout).(time.Duration); ok && v > 0 {
		timeout = v
	}
	return context.WithTimeout(ctx, timeout)
}

package utils

import (
	"context"
	"time"
)

const (
	// DefaultTimeout bounds most single database operations.
	DefaultTimeout = 10 * time.Second

	// LongTimeout is for full-collection scans and exports.
	LongTimeout = 30 * time.Second

	// ShortTimeout is for quick lookups such as rate-limit counters.
	ShortTimeout = 2 * time.Second
)

// WithTimeout derives a context with the default operation timeout.
func WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultTimeout)
}

// WithLongTimeout derives a context for slow operations.
func WithLongTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, LongTimeout)
}

// WithShortTimeout derives a context for operations that must stay cheap.
func WithShortTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ShortTimeout)
}

package events

import (
	"context"
	"os"
)

type contextKey int

const (
	loggerKey contextKey = iota
	opIDKey
	lockSessionKey
)

// FromContext extracts the logger from context.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	// Return default logger
	return defaultLogger
}

// WithLogger adds a logger to context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithOperationID tags the context and its logger with the correlation
// id of one CLI invocation.
func WithOperationID(ctx context.Context, id string) context.Context {
	logger := FromContext(ctx).WithField("op_id", id)
	ctx = context.WithValue(ctx, opIDKey, id)
	return WithLogger(ctx, logger)
}

// WithLockSession tags the context and its logger with the lock file
// the current work runs under, so log lines from a held-lock section
// are attributable to that claim.
func WithLockSession(ctx context.Context, name string) context.Context {
	logger := FromContext(ctx).WithField("lock_file", name)
	ctx = context.WithValue(ctx, lockSessionKey, name)
	return WithLogger(ctx, logger)
}

// GetOperationID retrieves the correlation id from context.
func GetOperationID(ctx context.Context) string {
	if id, ok := ctx.Value(opIDKey).(string); ok {
		return id
	}
	return ""
}

// GetLockSession retrieves the lock file name from context.
func GetLockSession(ctx context.Context) string {
	if name, ok := ctx.Value(lockSessionKey).(string); ok {
		return name
	}
	return ""
}

var defaultLogger = &Logger{
	level:  InfoLevel,
	format: "text",
	output: os.Stdout,
	fields: make(map[string]interface{}),
}

// SetDefault sets the logger FromContext falls back to when the context
// carries none.
func SetDefault(logger *Logger) {
	defaultLogger = logger
}

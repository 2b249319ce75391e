package callflow

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// WithLogger returns a context carrying the logger node executors log to.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFromContext returns the context logger, or a discarding logger.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return NewDiscardLogger()
}

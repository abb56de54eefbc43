// Package ctxlog carries a slog.Logger through context.Context so that every
// task, pipeline and server callback logs with the App's configured handler.
package ctxlog

import (
	"context"
	"log/slog"
)

type key struct{}

// WithLogger returns a child context that carries logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, key{}, logger)
}

// FromContext returns the logger stored in ctx, or slog.Default when the
// context carries none. Background goroutines started by the watcher and
// the dev server rely on the fallback during shutdown.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(key{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// With returns a context whose logger has args attached.
func With(ctx context.Context, args ...any) context.Context {
	return WithLogger(ctx, FromContext(ctx).With(args...))
}

// Package logger provides the structured, levelled logger built on log/slog.
//
// Production uses the JSON handler for log aggregation; every other
// environment gets the human-readable text handler. Request-scoped loggers
// (pre-tagged with request_id) travel in the request context:
//
//	log := logger.FromContext(c.Request.Context())
//	log.Info("order created", "order_number", o.OrderNumber)
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// New builds a logger for the given environment writing to w.
func New(env string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	switch env {
	case "production", "prod":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type ctxKey struct{}

// WithContext stores log in ctx.
func WithContext(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// FromContext returns the request logger stored in ctx, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if log, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && log != nil {
			return log
		}
	}
	return slog.Default()
}

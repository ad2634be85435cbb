// Package logging holds the slog helpers shared by every component: a logger
// carried in the request context, uniform error and operation records, and
// close/rollback wrappers that log instead of dropping errors.
package logging

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
)

type ctxKey struct{}

// NewLogger builds the process logger. Production gets JSON output; other
// environments get the text handler. verbose lowers the level to debug.
func NewLogger(production, verbose bool) *slog.Logger {
	return NewLoggerTo(os.Stdout, production, verbose)
}

// NewLoggerTo is NewLogger writing to w.
func NewLoggerTo(w io.Writer, production, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if production {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return slog.Default()
}

// LogError writes an error-level record with the error attached.
func LogError(logger *slog.Logger, msg string, err error, attrs ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	args := make([]any, 0, len(attrs)+1)
	args = append(args, slog.Any("error", err))
	args = append(args, attrs...)
	logger.Error(msg, args...)
}

// LogOperation records a named step at info level.
func LogOperation(logger *slog.Logger, operation string, attrs ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	args := make([]any, 0, len(attrs)+1)
	args = append(args, slog.String("operation", operation))
	args = append(args, attrs...)
	logger.Info(operation, args...)
}

// LogHTTPRequest records one served request. Server errors log at error
// level, client errors at warn.
func LogHTTPRequest(logger *slog.Logger, method, path string, status int, durationMs float64, attrs ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	args := make([]any, 0, len(attrs)+4)
	args = append(args,
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("duration_ms", durationMs))
	args = append(args, attrs...)

	switch {
	case status >= 500:
		logger.Error("http_request", args...)
	case status >= 400:
		logger.Warn("http_request", args...)
	default:
		logger.Info("http_request", args...)
	}
}

// SafeCloseWithLogging closes c and logs a failure instead of returning it.
func SafeCloseWithLogging(c io.Closer, logger *slog.Logger, name string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		LogError(logger, "failed to close resource", err, slog.String("resource", name))
	}
}

// Rollbacker is satisfied by *sql.Tx and *sqlx.Tx.
type Rollbacker interface {
	Rollback() error
}

// SafeRollbackWithLogging rolls tx back, ignoring the error produced when the
// transaction was already committed.
func SafeRollbackWithLogging(tx Rollbacker, logger *slog.Logger, operation string) {
	if tx == nil {
		return
	}
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		LogError(logger, "failed to roll back transaction", err, slog.String("operation", operation))
	}
}

// Package slogadapter bridges pgx query logging to log/slog.
package slogadapter

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v4"
)

// Logger implements pgx.Logger on top of a slog.Logger.
type Logger struct {
	logger *slog.Logger
}

// NewLogger wraps l for use as a pgx connection logger. A nil l falls back
// to slog.Default().
func NewLogger(l *slog.Logger) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return &Logger{logger: l}
}

func (l *Logger) Log(ctx context.Context, level pgx.LogLevel, msg string, data map[string]interface{}) {
	attrs := make([]any, 0, 2*len(data))
	for k, v := range data {
		attrs = append(attrs, slog.Any(k, v))
	}

	var slogLevel slog.Level
	switch level {
	case pgx.LogLevelTrace, pgx.LogLevelDebug:
		slogLevel = slog.LevelDebug
	case pgx.LogLevelInfo:
		slogLevel = slog.LevelInfo
	case pgx.LogLevelWarn:
		slogLevel = slog.LevelWarn
	default:
		slogLevel = slog.LevelError
	}

	l.logger.Log(ctx, slogLevel, msg, attrs...)
}

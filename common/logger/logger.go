package logger

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Logger is a thin wrapper over slog so packages can hold a concrete type
// and attach domain fields without importing slog everywhere
type Logger struct {
	*slog.Logger
}

// New builds a logger for the given level and format. Format "json" emits
// machine-readable lines; anything else gets the tinted console handler.
func New(level, format string) *Logger {
	lvl := parseLevel(level)

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      lvl,
			TimeFormat: time.TimeOnly,
		})
	}

	return &Logger{Logger: slog.New(handler)}
}

// WithShare returns a logger carrying the share attempt id
func (l *Logger) WithShare(shareID int64) *Logger {
	return &Logger{Logger: l.With("share_id", shareID)}
}

// WithUser returns a logger carrying the acting user id
func (l *Logger) WithUser(userID int64) *Logger {
	return &Logger{Logger: l.With("user_id", userID)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

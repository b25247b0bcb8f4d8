// Package logger provides the shared slog setup and attribute helpers.
//
// All services log through *slog.Logger; use Scope to tag a child logger with
// the component name and Error to attach an error value under a stable key.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process logger from the environment.
//
// LOG_LEVEL selects the minimum level (debug, info, warn/warning, error;
// default info). GO_ENV=production switches to the JSON handler; anything
// else gets the human-readable text handler.
func NewLogger() *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("GO_ENV"), "production") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Scope returns the attribute identifying the emitting component, e.g.
// log.With(logger.Scope("indexjobs.worker")).
func Scope(scope string) slog.Attr {
	return slog.String("scope", scope)
}

// Error returns the canonical error attribute.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

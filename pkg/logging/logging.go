// Package logging sets up the gateway's structured logger: colored tint
// output on a terminal, JSON on anything else (container runtimes, CI).
package logging

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Level is the global atomic log level, adjustable at runtime.
var Level = new(slog.LevelVar) // default: INFO

// Setup initializes the global slog logger.
func Setup() {
	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      Level,
			TimeFormat: time.TimeOnly,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: Level,
		})
	}
	slog.SetDefault(slog.New(handler))
}

// SetLevel changes the global log level.
func SetLevel(l slog.Level) {
	Level.Set(l)
}

// ParseLevel converts a string like "debug", "info", "warn", "error" to the
// corresponding slog.Level, case-insensitively.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(strings.ToUpper(s)))
	return l, err
}

// WithTask returns a logger annotated with the task/session identifiers
// common to nearly every log line this gateway emits.
func WithTask(taskID, sessionID string) *slog.Logger {
	return slog.With("task_id", taskID, "session_id", sessionID)
}

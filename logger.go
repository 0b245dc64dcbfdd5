package docstore

import (
	"log/slog"
	"os"
)

// NewTextLogger returns a logger that writes human-readable text to stderr.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewTextLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewJSONLogger returns a logger that writes JSON-formatted logs to stderr.
func NewJSONLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger returns a logger that discards all output. Containers use this
// when no logger is configured.
func NoopLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// Package slogx configures log/slog for SDK binaries and gives library
// code a quiet no-op default.
package slogx

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type Config struct {
	Component string // e.g. "sentinel-cli"
	Version   string
	Level     string // e.g. "debug", "info", "warn", "error"
	Format    string // e.g. "json", "text"
}

// New returns a configured slog.Logger writing to stdout.
func New(cfg Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler).With(
		"component", cfg.Component,
		"version", cfg.Version,
	)
}

// Nop returns a logger that discards everything. Library types fall
// back to it when the embedding application supplies no logger.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// parseLevel maps a string to slog.Level.
func parseLevel(lvl string) slog.Level {
	switch strings.ToLower(lvl) {
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

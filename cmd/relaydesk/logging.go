package main

import (
	"io"
	"log/slog"
	"time"

	charmlog "github.com/charmbracelet/log"

	"github.com/foxzi/relaydesk/internal/config"
)

// newLogger builds the process logger. "pretty" renders colored output
// for terminals, "text" and "json" use the slog handlers.
func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	level := parseLogLevel(cfg.Level)

	var handler slog.Handler
	switch cfg.Format {
	case "pretty":
		handler = charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmlog.Level(level),
			ReportTimestamp: true,
			TimeFormat:      time.TimeOnly,
		})
	case "text":
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	default:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

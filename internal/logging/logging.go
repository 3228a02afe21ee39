// Package logging configures the engine's structured diagnostics logger:
// slog to stderr for interactive use, plus an optional rotating file sink
// for long-running daemons (spec §6.1 BONES_LOG).
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds a slog.Logger at the given level ("debug", "info", "warn",
// "error"), writing to stderr and, if logPath is non-empty, additionally to
// a size-rotated file via lumberjack.
func New(level, logPath string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	if logPath != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}

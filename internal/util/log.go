// Package util provides shared utility functions for logging and retries.
package util

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// NewLogger builds the process logger according to the configured format.
// "json" emits slog's JSONHandler straight to stdout, suited to a
// daemon/supervisor log collector. Anything else falls back to a
// TextHandler written to both stdout and a dated /tmp/<program>-<date>.log
// file, the dual-writer convention every cmd entrypoint used to hand-roll
// individually. Supported levels: "debug", "info", "warn", "error"; an
// unrecognised level defaults to "info".
func NewLogger(level, format string) *slog.Logger {
	slevel := parseLevel(level)

	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slevel}))
	}

	program := strings.TrimSuffix(filepath.Base(os.Args[0]), filepath.Ext(os.Args[0]))
	logFileName := fmt.Sprintf("/tmp/%s-%s.log", program, time.Now().Format("2006-01-02"))

	var w io.Writer = os.Stdout
	if logFile, err := os.Create(logFileName); err == nil {
		w = io.MultiWriter(os.Stdout, logFile)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slevel}))
}

// SetDefault configures the provided logger as the default slog logger.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}

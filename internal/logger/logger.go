// Package logger configures the process-wide slog logger.
//
// All output goes to stderr (or an optional log file) so the STDIO MCP
// transport keeps stdout reserved for protocol frames.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

var level = new(slog.LevelVar)

// Setup initialises the default slog logger. logLevel is one of
// DEBUG, INFO, WARNING or ERROR; logFile, when non-empty, receives a
// copy of all log output.
func Setup(logLevel, logFile string) error {
	lvl, err := ParseLevel(logLevel)
	if err != nil {
		return err
	}
	level.Set(lvl)

	var w io.Writer = os.Stderr
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
	return nil
}

// SetVerbose lowers the log level to debug. Used by the --verbose flag.
func SetVerbose(verbose bool) {
	if verbose {
		level.Set(slog.LevelDebug)
	}
}

// ParseLevel converts a config log level string to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(s) {
	case "", "INFO":
		return slog.LevelInfo, nil
	case "DEBUG":
		return slog.LevelDebug, nil
	case "WARNING", "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q (valid: DEBUG, INFO, WARNING, ERROR)", s)
	}
}

// Package logging builds the process-wide structured logger. Diagnostics go
// to stderr; stdout belongs to command output such as printed YAML.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// New returns a logger at the given level (debug, info, warn, error) and
// format (json or text). Unknown levels fall back to info, unknown formats to
// text.
func New(level, format string) *slog.Logger {
	return slog.New(handler(os.Stderr, level, format))
}

// Setup builds the default logger, teeing output to a date-stamped file under
// logDir when logDir is non-empty. The returned logger is installed as the
// slog default.
func Setup(level, format, logDir string) (*slog.Logger, error) {
	writers := []io.Writer{os.Stderr}

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, fmt.Errorf("logging: create log directory: %w", err)
		}
		name := fmt.Sprintf("flowreg-session-%s.log", time.Now().Format("2006-01-02"))
		file, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logging: open log file: %w", err)
		}
		writers = append(writers, file)
	}

	logger := slog.New(handler(io.MultiWriter(writers...), level, format))
	slog.SetDefault(logger)
	return logger, nil
}

func handler(w io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// Package cli implements the flowreg-session command tree. Commands share a
// Root carrying the application configuration and logger; the heavy lifting
// lives in the runner, server, and session packages.
package cli

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/FlowRegSuite/flowreg-session-gui/internal/config"
	"github.com/FlowRegSuite/flowreg-session-gui/internal/logging"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/session"
)

// Version is reported by the root command.
const Version = "0.1.0"

// schemaVersion stamps exported OpenAPI documents.
const schemaVersion = "1.0.0"

// defaultSessionFile is assumed when a command takes no session path.
const defaultSessionFile = "session.yaml"

// Root carries state shared by every command. The persistent pre-run resolves
// the application configuration and logger before a subcommand executes.
type Root struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *slog.Logger
}

// Execute runs the command tree and maps errors to a process exit code. A
// worker's non-zero exit is forwarded unchanged so scripts can branch on it.
func Execute() int {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		return 1
	}
	return 0
}

// exitError carries a specific process exit code through cobra's error path.
type exitError struct {
	code    int
	message string
}

func (e *exitError) Error() string { return e.message }

func (r *Root) init() error {
	cfg, err := config.Load(r.configPath)
	if err != nil {
		return err
	}
	if r.logLevel != "" {
		cfg.LogLevel = r.logLevel
	}
	if r.logFormat != "" {
		cfg.LogFormat = r.logFormat
	}
	r.cfg = cfg
	r.logger = logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(r.logger)
	return nil
}

// setupFileLogging swaps the logger for one teeing into the data directory.
// Only commands that launch or supervise workers write diagnostic log files.
func (r *Root) setupFileLogging() error {
	logger, err := logging.Setup(r.cfg.LogLevel, r.cfg.LogFormat, r.cfg.LogsDir())
	if err != nil {
		return err
	}
	r.logger = logger
	return nil
}

// saveOptions translates app settings into session save options.
func (r *Root) saveOptions() []session.SaveOption {
	if r.cfg != nil && !r.cfg.PreferRelativePaths {
		return []session.SaveOption{session.WithAbsolutePaths()}
	}
	return nil
}

// sessionPath resolves the optional positional session file argument.
func sessionPath(args []string) string {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return args[0]
	}
	return defaultSessionFile
}

// loadSession reads the YAML at path. When allowMissing is set a missing file
// yields worker defaults instead of an error.
func loadSession(path string, allowMissing bool) (session.Config, error) {
	cfg, err := session.Load(path)
	if err == nil {
		return cfg, nil
	}
	if allowMissing && errors.Is(err, os.ErrNotExist) {
		return session.Default(), nil
	}
	return session.Config{}, err
}

// Package config holds user-editable settings for the session shell: where
// the worker lives, where run data goes, and how surfaces render. Settings
// load from a JSON file and may be overridden per-variable from the
// environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

const defaultConfigPath = "~/.config/flowreg-session/config.json"

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "FLOWREG_SESSION_CONFIG"

// Config is the application configuration. JSON tags drive the file format,
// env tags the per-variable overrides.
type Config struct {
	// WorkerCommand is the argv prefix launching the pipeline worker. Each run
	// appends the serialized config path and the run mode.
	WorkerCommand []string `json:"worker_command" env:"FLOWREG_SESSION_WORKER_COMMAND" envSeparator:" "`
	// DataDir receives the run journal and per-run log files.
	DataDir    string `json:"data_dir" env:"FLOWREG_SESSION_DATA_DIR"`
	ListenAddr string `json:"listen_addr" env:"FLOWREG_SESSION_LISTEN_ADDR"`
	LogLevel   string `json:"log_level" env:"FLOWREG_SESSION_LOG_LEVEL"`
	LogFormat  string `json:"log_format" env:"FLOWREG_SESSION_LOG_FORMAT"`
	// DefaultRenderer picks the editing surface when a command does not.
	DefaultRenderer string `json:"default_renderer" env:"FLOWREG_SESSION_RENDERER"`
	ThemeName       string `json:"theme" env:"FLOWREG_SESSION_THEME"`
	ThemeVariant    string `json:"theme_variant" env:"FLOWREG_SESSION_THEME_VARIANT"`
	// PreferRelativePaths keeps output paths nested under the session root
	// relative when saving YAML.
	PreferRelativePaths bool `json:"prefer_relative_paths" env:"FLOWREG_SESSION_RELATIVE_PATHS"`
}

// Default returns the built-in settings. DataDir stays in "~" form until Load
// expands it.
func Default() *Config {
	return &Config{
		WorkerCommand:       []string{"python3", "-u", "-m", "flowreg_worker"},
		DataDir:             "~/.local/share/flowreg-session",
		ListenAddr:          "127.0.0.1:8787",
		LogLevel:            "info",
		LogFormat:           "text",
		DefaultRenderer:     "tui",
		ThemeName:           "flowreg",
		ThemeVariant:        "light",
		PreferRelativePaths: true,
	}
}

// Load reads configuration from disk, falling back to defaults when the file
// does not exist, then applies environment overrides. The returned DataDir is
// always expanded.
func Load(path string) (*Config, error) {
	cfg := Default()

	resolved, err := Path(path)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", resolved, err)
	default:
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", resolved, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}

	dataDir, err := expandUser(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("config: expand data dir: %w", err)
	}
	cfg.DataDir = dataDir
	return cfg, nil
}

// Save writes the configuration as indented JSON, creating parent directories
// as needed. It returns the resolved path it wrote to.
func Save(cfg *Config, path string) (string, error) {
	if cfg == nil {
		return "", errors.New("config: nothing to save")
	}
	resolved, err := Path(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", fmt.Errorf("config: create config directory: %w", err)
	}
	payload, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("config: encode: %w", err)
	}
	if err := os.WriteFile(resolved, append(payload, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("config: write %s: %w", resolved, err)
	}
	return resolved, nil
}

// Path resolves the config file location: explicit override, then the
// FLOWREG_SESSION_CONFIG variable, then the default, with "~" expanded.
func Path(override string) (string, error) {
	path := override
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = defaultConfigPath
	}
	expanded, err := expandUser(path)
	if err != nil {
		return "", fmt.Errorf("config: expand path: %w", err)
	}
	return expanded, nil
}

// LogsDir is where per-run worker logs are written.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// JournalPath is the run journal database location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.DataDir, "journal.db")
}

func expandUser(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}

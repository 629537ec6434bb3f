package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type saveConfig struct {
	preferRelative bool
}

// SaveOption adjusts how a configuration is serialized.
type SaveOption func(*saveConfig)

// WithAbsolutePaths disables the relative-path rewrite, writing every path
// exactly as held in memory.
func WithAbsolutePaths() SaveOption {
	return func(sc *saveConfig) { sc.preferRelative = false }
}

// Save writes the configuration as YAML, creating parent directories as
// needed. When Root is absolute, output paths nested under it (output_root,
// final_results, center, and flow_options when it is a file path) are
// rewritten relative to Root so the file stays valid when the session
// directory moves. Keys appear in field declaration order.
func Save(cfg Config, path string, opts ...SaveOption) error {
	sc := saveConfig{preferRelative: true}
	for _, opt := range opts {
		opt(&sc)
	}
	out := cfg.Clone()
	if sc.preferRelative && filepath.IsAbs(out.Root) {
		out.OutputRoot = relativeTo(out.OutputRoot, out.Root)
		out.FinalResults = relativeTo(out.FinalResults, out.Root)
		if out.Center != nil {
			center := relativeTo(*out.Center, out.Root)
			out.Center = &center
		}
		if out.FlowOptions.IsFile() {
			out.FlowOptions.File = relativeTo(out.FlowOptions.File, out.Root)
		}
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("session: create directory %s: %w", dir, err)
		}
	}
	raw, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("session: encode configuration: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("session: write %s: %w", path, err)
	}
	return nil
}

// relativeTo rewrites path relative to root when both are absolute and path
// sits inside root. Anything else passes through untouched.
func relativeTo(path, root string) string {
	if path == "" || !filepath.IsAbs(path) || !filepath.IsAbs(root) {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}

// Load reads a YAML configuration. Absent keys keep their defaults, unknown
// keys are ignored so files written by newer workers still open. The result
// is validated before it is returned.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("session: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("session: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

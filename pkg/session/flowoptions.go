package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// FlowOptions configures the optical-flow solver. The worker accepts it in
// two shapes: an inline option mapping, or a path to a JSON file it loads
// itself. Exactly one shape is active; File wins when both are set.
type FlowOptions struct {
	// Inline holds solver options embedded in the session configuration.
	Inline map[string]any `form:"-"`
	// File points at a JSON file carrying the options.
	File string `form:"-"`
}

// IsFile reports whether the options refer to an external JSON file.
func (f FlowOptions) IsFile() bool {
	return strings.TrimSpace(f.File) != ""
}

// Value returns the wire shape: the file path string when File is set,
// otherwise the inline mapping (never nil).
func (f FlowOptions) Value() any {
	if f.IsFile() {
		return f.File
	}
	if f.Inline == nil {
		return map[string]any{}
	}
	return f.Inline
}

func (f FlowOptions) clone() FlowOptions {
	out := FlowOptions{File: f.File}
	if f.Inline != nil {
		out.Inline = deepCopyMap(f.Inline)
	}
	return out
}

func (f FlowOptions) validate() error {
	if f.IsFile() && len(f.Inline) > 0 {
		return fmt.Errorf("inline options and a file path are mutually exclusive")
	}
	return nil
}

// MarshalYAML emits a scalar when File is set and a mapping otherwise, so the
// worker sees the same two shapes its loader accepts.
func (f FlowOptions) MarshalYAML() (any, error) {
	return f.Value(), nil
}

// UnmarshalYAML accepts a scalar path, a mapping, or null.
func (f *FlowOptions) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*f = FlowOptions{Inline: map[string]any{}}
			return nil
		}
		var path string
		if err := value.Decode(&path); err != nil {
			return err
		}
		*f = FlowOptions{File: path}
		return nil
	case yaml.MappingNode:
		var m map[string]any
		if err := value.Decode(&m); err != nil {
			return err
		}
		*f = FlowOptions{Inline: m}
		return nil
	default:
		return fmt.Errorf("flow_options must be a mapping or a file path, got %s", value.Tag)
	}
}

// MarshalJSON mirrors MarshalYAML for the HTTP surface.
func (f FlowOptions) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Value())
}

// UnmarshalJSON accepts an object, a string path, or null.
func (f *FlowOptions) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*f = FlowOptions{Inline: map[string]any{}}
		return nil
	}
	switch trimmed[0] {
	case '{':
		var m map[string]any
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return err
		}
		*f = FlowOptions{Inline: m}
		return nil
	case '"':
		var path string
		if err := json.Unmarshal(trimmed, &path); err != nil {
			return err
		}
		*f = FlowOptions{File: path}
		return nil
	default:
		return fmt.Errorf("flow_options must be a JSON object or a file path string")
	}
}

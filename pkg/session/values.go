package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Values snapshots the configuration as a wire-name keyed map. Pointer fields
// appear as nil when unset; FlowOptions appears in its wire shape. The map
// shares no mutable state with the receiver.
func (c Config) Values() map[string]any {
	out := c.Clone()
	values := map[string]any{
		"root":               out.Root,
		"raw_subdir":         out.RawSubdir,
		"output_root":        out.OutputRoot,
		"final_results":      out.FinalResults,
		"center":             nil,
		"file_extension":     out.FileExtension,
		"output_format":      string(out.OutputFormat),
		"bin_size":           out.BinSize,
		"buffer_size":        out.BufferSize,
		"n_reference_frames": nil,
		"mask_threshold":     out.MaskThreshold,
		"overwrite":          out.Overwrite,
		"verbose":            out.Verbose,
		"flow_options":       out.FlowOptions.Value(),
		"stage_params":       out.StageParams,
		"notes":              nil,
	}
	if out.Center != nil {
		values["center"] = *out.Center
	}
	if out.ReferenceFrames != nil {
		values["n_reference_frames"] = *out.ReferenceFrames
	}
	if out.Notes != nil {
		values["notes"] = *out.Notes
	}
	return values
}

// optionalStringKeys are pointer-typed string fields on the wire. A blank
// form answer for one of them means "unset", never a pointer to "".
var optionalStringKeys = []string{"center", "notes"}

// New builds a validated configuration from a wire-name keyed map, filling
// absent keys with defaults. Unknown keys are ignored; values with the wrong
// shape fail decoding. Blank strings supplied for optional fields clear them
// to nil instead of storing an empty value.
func New(values map[string]any) (Config, error) {
	cfg := Default()
	values = normalizeOptionals(values)
	raw, err := json.Marshal(values)
	if err != nil {
		return Config{}, fmt.Errorf("session: encode values: %w", err)
	}
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("session: apply values: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// normalizeOptionals maps blank optional strings to explicit nulls without
// mutating the caller's map.
func normalizeOptionals(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	for _, key := range optionalStringKeys {
		if s, ok := out[key].(string); ok && strings.TrimSpace(s) == "" {
			out[key] = nil
		}
	}
	if s, ok := out["n_reference_frames"].(string); ok && strings.TrimSpace(s) == "" {
		out["n_reference_frames"] = nil
	}
	return out
}

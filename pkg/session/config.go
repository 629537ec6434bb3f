// Package session holds the typed mirror of the pipeline worker's session
// configuration together with its YAML persistence rules.
package session

import (
	"fmt"
	"strings"
)

// OutputFormat names the container format stage outputs are written in. The
// set of values is owned by the pipeline worker; it is mirrored here so forms
// can offer a closed choice.
type OutputFormat string

const (
	FormatHDF5 OutputFormat = "hdf5"
	FormatTIFF OutputFormat = "tiff"
	FormatMAT  OutputFormat = "mat"
)

// EnumValues lists the accepted output formats. Field reflection uses this to
// classify the field as an enumeration.
func (OutputFormat) EnumValues() []string {
	return []string{string(FormatHDF5), string(FormatTIFF), string(FormatMAT)}
}

// Valid reports whether the format is one of the known values.
func (f OutputFormat) Valid() bool {
	for _, v := range (OutputFormat("")).EnumValues() {
		if string(f) == v {
			return true
		}
	}
	return false
}

// Config is the session configuration consumed by the motion-compensation
// worker. The schema is defined by the worker; this mirror exists so the shell
// can reflect over it, edit it, and round-trip it through YAML. Field order
// matters: serialization preserves declaration order.
type Config struct {
	// Root anchors the session on disk. Output paths nested under an absolute
	// Root are serialized relative to it.
	Root string `yaml:"root" json:"root" form:"required,format=dir-path" help:"Session root directory"`

	RawSubdir    string `yaml:"raw_subdir" json:"raw_subdir" form:"format=dir-path" help:"Subdirectory of root holding raw recordings"`
	OutputRoot   string `yaml:"output_root" json:"output_root" form:"format=dir-path" help:"Directory receiving per-stage outputs"`
	FinalResults string `yaml:"final_results" json:"final_results" form:"format=dir-path" help:"Directory receiving final stage 3 artifacts"`

	// Center pins the recording the inter-recording stage aligns against.
	// Nil lets the worker pick the middle recording.
	Center *string `yaml:"center" json:"center" form:"format=file-path" help:"Recording used as the alignment center"`

	FileExtension string       `yaml:"file_extension" json:"file_extension" form:"enum=.tif|.tiff|.h5|.hdf5" help:"Extension of the raw recordings stage 1 discovers"`
	OutputFormat  OutputFormat `yaml:"output_format" json:"output_format" help:"Container format for stage outputs"`
	BinSize       int          `yaml:"bin_size" json:"bin_size" form:"min=1" help:"Temporal binning factor applied before registration"`
	BufferSize    int          `yaml:"buffer_size" json:"buffer_size" form:"min=1" help:"Frames read per IO batch"`

	// ReferenceFrames overrides how many frames the reference average uses.
	ReferenceFrames *int `yaml:"n_reference_frames" json:"n_reference_frames" form:"min=1" help:"Frames averaged into the registration reference"`

	MaskThreshold float64 `yaml:"mask_threshold" json:"mask_threshold" form:"min=0,max=1" help:"Stage 3 valid-mask acceptance threshold"`
	Overwrite     bool    `yaml:"overwrite" json:"overwrite" help:"Replace outputs left by earlier runs"`
	Verbose       bool    `yaml:"verbose" json:"verbose" help:"Forward the worker's verbose flag"`

	// FlowOptions carries solver options, either inline or as a path to a
	// JSON file the worker loads itself.
	FlowOptions FlowOptions `yaml:"flow_options" json:"flow_options" form:"kind=json-or-path" help:"Optical-flow solver options, inline JSON or a path to a JSON file"`

	// StageParams is passed through to the worker verbatim. The key is
	// omitted when no overrides are set so a nil map survives a Save/Load
	// round-trip; yaml would otherwise write it back as an empty mapping.
	StageParams map[string]any `yaml:"stage_params,omitempty" json:"stage_params" help:"Free-form per-stage overrides"`

	Notes *string `yaml:"notes" json:"notes" help:"Operator notes, ignored by the worker"`
}

// Default returns a fully populated configuration carrying the worker's
// defaults. Field reflection reads per-field defaults from this instance.
func Default() Config {
	return Config{
		RawSubdir:     "raw",
		OutputRoot:    "motion_corrected",
		FinalResults:  "final_results",
		FileExtension: ".tif",
		OutputFormat:  FormatHDF5,
		BinSize:       1,
		BufferSize:    500,
		MaskThreshold: 0.95,
		Verbose:       true,
		FlowOptions:   FlowOptions{Inline: map[string]any{}},
	}
}

// Validate checks required fields, enum membership, and numeric ranges. It
// never mutates the receiver.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Root) == "" {
		return fmt.Errorf("session: root is required")
	}
	switch c.FileExtension {
	case ".tif", ".tiff", ".h5", ".hdf5":
	default:
		return fmt.Errorf("session: file_extension %q is not one of .tif|.tiff|.h5|.hdf5", c.FileExtension)
	}
	if !c.OutputFormat.Valid() {
		return fmt.Errorf("session: output_format %q is not one of %s", c.OutputFormat, strings.Join((OutputFormat("")).EnumValues(), "|"))
	}
	if c.BinSize < 1 {
		return fmt.Errorf("session: bin_size must be >= 1, got %d", c.BinSize)
	}
	if c.BufferSize < 1 {
		return fmt.Errorf("session: buffer_size must be >= 1, got %d", c.BufferSize)
	}
	if c.ReferenceFrames != nil && *c.ReferenceFrames < 1 {
		return fmt.Errorf("session: n_reference_frames must be >= 1, got %d", *c.ReferenceFrames)
	}
	if c.MaskThreshold < 0 || c.MaskThreshold > 1 {
		return fmt.Errorf("session: mask_threshold must be within [0,1], got %v", c.MaskThreshold)
	}
	if err := c.FlowOptions.validate(); err != nil {
		return fmt.Errorf("session: flow_options: %w", err)
	}
	return nil
}

// Clone returns a deep copy sharing no mutable state with the receiver.
func (c Config) Clone() Config {
	out := c
	if c.Center != nil {
		v := *c.Center
		out.Center = &v
	}
	if c.ReferenceFrames != nil {
		v := *c.ReferenceFrames
		out.ReferenceFrames = &v
	}
	if c.Notes != nil {
		v := *c.Notes
		out.Notes = &v
	}
	out.FlowOptions = c.FlowOptions.clone()
	if c.StageParams != nil {
		out.StageParams = deepCopyMap(c.StageParams)
	}
	return out
}

func deepCopyMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return t
	}
}

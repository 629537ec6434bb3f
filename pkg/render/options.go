package render

import "github.com/goliatone/go-theme"

// RenderOptions describe per-request data that renderers can use to customise
// their output without mutating the form model pipeline.
type RenderOptions struct {
	// Values pre-populates rendered controls using dotted field paths (e.g.
	// "flow_options.file"). Renderers decide how to surface nested values.
	Values map[string]any
	// Errors surfaces validation feedback keyed by field path. Renderers map
	// these into inline messages next to the offending control; interactive
	// renderers replay them before prompting for the field again. The empty
	// key carries form-level messages with no owning field.
	Errors map[string][]string
	// Theme carries the resolved theme configuration (tokens, CSS variables,
	// partial overrides) when the caller selected one. Nil means the renderer
	// falls back to its built-in presentation.
	Theme *theme.RendererConfig
}

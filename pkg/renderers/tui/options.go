package tui

// OutputFormat controls how collected values are serialized.
type OutputFormat string

const (
	// OutputFormatJSON emits the collected values as application/json.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatPrettyText emits a human-friendly path=value summary.
	OutputFormatPrettyText OutputFormat = "pretty"
)

// Theme captures optional formatting prefixes applied when printing messages.
// Kept minimal to avoid coupling editor logic to ANSI specifics.
type Theme struct {
	PromptPrefix string
	InfoPrefix   string
	ErrorPrefix  string
}

// Option configures the terminal editor.
type Option func(*Editor)

// WithPromptDriver overrides the prompt driver used by the editor.
func WithPromptDriver(driver PromptDriver) Option {
	return func(e *Editor) {
		if driver != nil {
			e.driver = driver
		}
	}
}

// WithOutputFormat selects the output serialization format.
func WithOutputFormat(format OutputFormat) Option {
	return func(e *Editor) {
		if format != "" {
			e.outputFormat = format
		}
	}
}

// WithSkipConfirm disables the trailing "save?" confirmation. Scripted
// callers use it to collect values without an extra prompt.
func WithSkipConfirm(skip bool) Option {
	return func(e *Editor) {
		e.skipConfirm = skip
	}
}

// WithTheme applies optional message prefixes.
func WithTheme(theme Theme) Option {
	return func(e *Editor) {
		e.theme = theme
	}
}

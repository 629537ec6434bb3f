package orchestrator

import (
	"strings"

	theme "github.com/goliatone/go-theme"
)

// WithThemeSelector passes a go-theme selector through to the orchestrator so
// theme/variant choices can be resolved ahead of rendering.
func WithThemeSelector(selector theme.ThemeSelector) Option {
	return func(o *Orchestrator) {
		o.themeSelector = selector
	}
}

// WithThemeProvider registers a go-theme provider together with the theme and
// variant used when a request does not name one. Selection goes through
// go-theme's Selector, so plain registries work as providers.
func WithThemeProvider(provider theme.ThemeProvider, defaultTheme, defaultVariant string) Option {
	return func(o *Orchestrator) {
		if provider == nil {
			return
		}
		o.defaultTheme = strings.TrimSpace(defaultTheme)
		o.defaultVariant = strings.TrimSpace(defaultVariant)
		o.themeSelector = theme.Selector{
			Registry:       provider,
			DefaultTheme:   o.defaultTheme,
			DefaultVariant: o.defaultVariant,
		}
	}
}

// WithThemeFallbacks overrides the fallback partials merged into every
// resolved theme configuration.
func WithThemeFallbacks(fallbacks map[string]string) Option {
	return func(o *Orchestrator) {
		if len(fallbacks) == 0 {
			return
		}
		o.themeFallbacks = fallbacks
	}
}

func defaultThemeFallbacks() map[string]string {
	return map[string]string{
		"forms.input":    "templates/partials/input.tpl",
		"forms.checkbox": "templates/partials/checkbox.tpl",
		"forms.textarea": "templates/partials/textarea.tpl",
	}
}

// DefaultManifest returns the built-in flowreg theme. Its tokens mirror the
// CSS variables the bundled stylesheet declares, so selecting it restyles the
// HTML renderer without extra assets.
func DefaultManifest() *theme.Manifest {
	return &theme.Manifest{
		Name:    "flowreg",
		Version: "1.0.0",
		Tokens: map[string]string{
			"sf-bg":      "#f6f7f9",
			"sf-surface": "#ffffff",
			"sf-border":  "#d4d8de",
			"sf-text":    "#1d2430",
			"sf-muted":   "#5c6676",
			"sf-accent":  "#2563eb",
			"sf-error":   "#b91c1c",
		},
		Variants: map[string]theme.Variant{
			"light": {},
			"dark": {
				Tokens: map[string]string{
					"sf-bg":      "#11151c",
					"sf-surface": "#1a202b",
					"sf-border":  "#2c3442",
					"sf-text":    "#e5e9f0",
					"sf-muted":   "#8b94a3",
					"sf-accent":  "#3b82f6",
					"sf-error":   "#f87171",
				},
			},
		},
	}
}

// resolveTheme turns the requested theme/variant pair into a renderer
// configuration. Without a selector, or when neither the request nor the
// defaults name a theme, rendering proceeds unthemed.
func (o *Orchestrator) resolveTheme(name, variant string) (*theme.RendererConfig, error) {
	if o.themeSelector == nil {
		return nil, nil
	}
	if strings.TrimSpace(name) == "" {
		name = o.defaultTheme
	}
	if strings.TrimSpace(variant) == "" {
		variant = o.defaultVariant
	}
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}

	selection, err := o.themeSelector.Select(name, variant)
	if err != nil {
		return nil, err
	}
	if selection == nil {
		return nil, nil
	}
	return buildThemeConfig(selection, o.themeFallbacks), nil
}

// buildThemeConfig flattens a selection into the renderer-facing view: variant
// tokens and templates win over the base manifest, fallback partials fill the
// gaps, and CSS variables are derived from the merged tokens.
func buildThemeConfig(selection *theme.Selection, fallbacks map[string]string) *theme.RendererConfig {
	cfg := &theme.RendererConfig{
		Theme:   selection.Theme,
		Variant: selection.Variant,
	}

	partials := make(map[string]string, len(fallbacks))
	for key, value := range fallbacks {
		partials[key] = value
	}
	tokens := make(map[string]string)
	files := make(map[string]string)
	prefix := ""

	if manifest := selection.Manifest; manifest != nil {
		for key, value := range manifest.Templates {
			partials[key] = value
		}
		for key, value := range manifest.Tokens {
			tokens[key] = value
		}
		for key, value := range manifest.Assets.Files {
			files[key] = value
		}
		prefix = manifest.Assets.Prefix

		if variant, ok := manifest.Variants[selection.Variant]; ok {
			for key, value := range variant.Templates {
				partials[key] = value
			}
			for key, value := range variant.Tokens {
				tokens[key] = value
			}
			for key, value := range variant.Assets.Files {
				files[key] = value
			}
			if variant.Assets.Prefix != "" {
				prefix = variant.Assets.Prefix
			}
		}
	}

	cfg.Partials = partials
	cfg.Tokens = tokens

	cssVars := make(map[string]string, len(tokens))
	for key, value := range tokens {
		cssVars["--"+key] = value
	}
	cfg.CSSVars = cssVars

	assetPrefix := strings.TrimRight(prefix, "/")
	cfg.AssetURL = func(key string) string {
		file, ok := files[key]
		if !ok || file == "" {
			return ""
		}
		if assetPrefix == "" {
			return file
		}
		return assetPrefix + "/" + file
	}
	return cfg
}

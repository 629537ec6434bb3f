// Package sessiongui assembles the form pipeline around the FlowReg session
// configuration: reflect the config into a form model, edit it in the
// terminal, or render it with any registered renderer. The subpackages do the
// real work; this package wires them together for the common cases.
package sessiongui

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	theme "github.com/goliatone/go-theme"

	"github.com/FlowRegSuite/flowreg-session-gui/pkg/fields"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/model"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/orchestrator"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/render"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/renderers/html"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/renderers/tui"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/session"
)

// Labels applied to the canonical session form.
const (
	FormName        = "session"
	FormTitle       = "FlowReg Session"
	FormDescription = "Motion compensation session configuration"
)

// Config is the session configuration consumed by the pipeline worker.
type Config = session.Config

// FormModel is the renderer-agnostic form description.
type FormModel = model.FormModel

// RenderOptions carries per-request overrides such as prefilled values and
// validation errors.
type RenderOptions = render.RenderOptions

// FieldSubset narrows rendering to named fields or sections.
type FieldSubset = render.FieldSubset

// ErrAborted reports that the operator declined the closing save
// confirmation. Callers should treat it as a clean cancel, not a failure.
var ErrAborted = tui.ErrAborted

// NewOrchestrator exposes the orchestrator constructor from the root package
// so applications embedding the form pipeline need a single import.
func NewOrchestrator(options ...orchestrator.Option) *orchestrator.Orchestrator {
	return orchestrator.New(options...)
}

// WithThemeSelector passes a go-theme selector through to the orchestrator so
// theme and variant choices are resolved ahead of rendering.
func WithThemeSelector(selector theme.ThemeSelector) orchestrator.Option {
	return orchestrator.WithThemeSelector(selector)
}

// WithThemeProvider constructs a go-theme selector from a ThemeProvider and
// registers it with the orchestrator so renderers receive resolved partials,
// tokens, and assets.
func WithThemeProvider(provider theme.ThemeProvider, defaultTheme, defaultVariant string) orchestrator.Option {
	return orchestrator.WithThemeProvider(provider, defaultTheme, defaultVariant)
}

// WithThemeFallbacks forwards fallback partials used when deriving renderer
// configuration from a theme selection.
func WithThemeFallbacks(fallbacks map[string]string) orchestrator.Option {
	return orchestrator.WithThemeFallbacks(fallbacks)
}

// SessionForm reflects the session configuration into the canonical form
// model, using cfg's field values as per-field defaults.
func SessionForm(cfg session.Config) (model.FormModel, error) {
	specs, err := fields.List(reflect.TypeOf(cfg), fields.WithDefaults(cfg))
	if err != nil {
		return model.FormModel{}, err
	}
	return model.NewBuilder().Build(model.Source{
		Name:        FormName,
		Title:       FormTitle,
		Description: FormDescription,
		Specs:       specs,
	})
}

// GenerateForm renders a form model with the named renderer. Both built-in
// renderers (tui, html) are available; callers needing custom registries or
// themes should construct an orchestrator themselves.
func GenerateForm(ctx context.Context, form model.FormModel, renderer string) ([]byte, error) {
	registry := render.NewRegistry()
	terminal, err := tui.New()
	if err != nil {
		return nil, err
	}
	registry.MustRegister(terminal)
	web, err := html.New()
	if err != nil {
		return nil, err
	}
	registry.MustRegister(web)

	gen := orchestrator.New(
		orchestrator.WithRegistry(registry),
		orchestrator.WithDefaultRenderer(web.Name()),
	)
	return gen.Generate(ctx, orchestrator.Request{
		Form:     &form,
		Renderer: renderer,
	})
}

// EditOption adjusts an EditConfig session.
type EditOption func(*editSettings)

type editSettings struct {
	driver tui.PromptDriver
	theme  tui.Theme
}

// WithPromptDriver substitutes the terminal prompt driver. The default asks
// on the real terminal; tests provide scripted drivers.
func WithPromptDriver(driver tui.PromptDriver) EditOption {
	return func(s *editSettings) { s.driver = driver }
}

// WithEditTheme applies message prefixes to the editor prompts.
func WithEditTheme(t tui.Theme) EditOption {
	return func(s *editSettings) { s.theme = t }
}

// EditConfig walks every configuration field in the terminal and returns the
// edited result once it validates. Values failing cross-field validation
// re-open the form with the offending field marked, so the operator fixes the
// value instead of losing the whole session. Declining the closing
// confirmation returns ErrAborted.
func EditConfig(ctx context.Context, cfg session.Config, opts ...EditOption) (session.Config, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var settings editSettings
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}

	tuiOpts := []tui.Option{tui.WithOutputFormat(tui.OutputFormatJSON)}
	if settings.driver != nil {
		tuiOpts = append(tuiOpts, tui.WithPromptDriver(settings.driver))
	}
	if settings.theme != (tui.Theme{}) {
		tuiOpts = append(tuiOpts, tui.WithTheme(settings.theme))
	}
	editor, err := tui.New(tuiOpts...)
	if err != nil {
		return session.Config{}, err
	}

	registry := render.NewRegistry()
	registry.MustRegister(editor)
	gen := orchestrator.New(
		orchestrator.WithRegistry(registry),
		orchestrator.WithDefaultRenderer(editor.Name()),
	)

	values := cfg.Values()
	var fieldErrs map[string][]string

	for {
		payload, err := gen.Generate(ctx, orchestrator.Request{
			Model:       cfg,
			Name:        FormName,
			Title:       FormTitle,
			Description: FormDescription,
			Values:      values,
			Errors:      fieldErrs,
		})
		if err != nil {
			return session.Config{}, err
		}

		var edited map[string]any
		if err := json.Unmarshal(payload, &edited); err != nil {
			return session.Config{}, fmt.Errorf("sessiongui: decode edited values: %w", err)
		}

		next, err := session.New(edited)
		if err == nil {
			return next, nil
		}

		key := offendingField(err, edited)
		if key == "" {
			return session.Config{}, err
		}
		values = edited
		fieldErrs = map[string][]string{key: {strings.TrimPrefix(err.Error(), "session: ")}}
	}
}

// offendingField maps a validation error back to the wire key it names.
// Messages from the session package lead with the field name, so the first
// token is the key when it matches a known field.
func offendingField(err error, values map[string]any) string {
	msg := strings.TrimPrefix(err.Error(), "session: ")
	token := msg
	if idx := strings.IndexAny(token, " :"); idx > 0 {
		token = token[:idx]
	}
	if _, ok := values[token]; ok {
		return token
	}
	if _, ok := session.Default().Values()[token]; ok {
		return token
	}
	return ""
}

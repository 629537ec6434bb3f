package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"reflect"
	"strings"

	theme "github.com/goliatone/go-theme"

	"github.com/FlowRegSuite/flowreg-session-gui/pkg/fields"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/model"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/render"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/renderers/tui"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/uischema"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/widgets"
)

const defaultRendererName = "tui"

// Option customises the orchestrator configuration.
type Option func(*Orchestrator)

// WithModelBuilder injects a custom form model builder.
func WithModelBuilder(builder model.Builder) Option {
	return func(o *Orchestrator) {
		o.builder = builder
	}
}

// WithFieldOptions appends reflection options applied when a request supplies
// a struct model instead of a pre-built form.
func WithFieldOptions(options ...fields.Option) Option {
	return func(o *Orchestrator) {
		o.fieldOptions = append(o.fieldOptions, options...)
	}
}

// WithRegistry injects a renderer registry.
func WithRegistry(registry *render.Registry) Option {
	return func(o *Orchestrator) {
		o.registry = registry
	}
}

// WithDefaultRenderer overrides the renderer used when a request omits an
// explicit Renderer field.
func WithDefaultRenderer(name string) Option {
	return func(o *Orchestrator) {
		o.defaultRenderer = name
	}
}

// WithWidgetRegistry overrides the widget registry that annotates fields with
// control hints before rendering.
func WithWidgetRegistry(registry *widgets.Registry) Option {
	return func(o *Orchestrator) {
		if registry != nil {
			o.widgetRegistry = registry
		}
	}
}

// WithTransformer registers a Transformer that can mutate form models after
// building but before decorators run.
func WithTransformer(t Transformer) Option {
	return func(o *Orchestrator) {
		o.transformer = t
	}
}

// WithUIDecorators registers decorators that run against the generated form
// model before rendering.
func WithUIDecorators(decorators ...model.Decorator) Option {
	return func(o *Orchestrator) {
		if len(decorators) == 0 {
			return
		}
		o.decorators = append(o.decorators, decorators...)
	}
}

// WithUISchemaFS supplies an fs.FS holding UI schema documents. Pass nil to
// disable the embedded defaults.
func WithUISchemaFS(fsys fs.FS) Option {
	return func(o *Orchestrator) {
		o.uiSchemaFS = fsys
		o.uiSchemaSpecified = true
	}
}

// WithLogger sets the logger used by the built-in decorators.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Orchestrator coordinates the full pipeline from a config struct to rendered
// output. It applies sensible defaults (terminal renderer, embedded UI schema)
// while remaining open to dependency injection for advanced callers.
type Orchestrator struct {
	builder               model.Builder
	fieldOptions          []fields.Option
	registry              *render.Registry
	defaultRenderer       string
	widgetRegistry        *widgets.Registry
	decorators            []model.Decorator
	transformer           Transformer
	uiSchemaFS            fs.FS
	uiSchemaSpecified     bool
	uiDecoratorConfigured bool
	themeSelector         theme.ThemeSelector
	defaultTheme          string
	defaultVariant        string
	themeFallbacks        map[string]string
	logger                *slog.Logger
	initialiseErr         error
	defaultsApplied       bool
}

// New constructs an Orchestrator applying any provided options. Missing
// dependencies are initialised with the built-in implementations so callers
// can start with a single constructor call.
func New(options ...Option) *Orchestrator {
	o := &Orchestrator{
		defaultRenderer: defaultRendererName,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(o)
	}
	o.applyDefaults()
	return o
}

// Request describes the inputs required to render an editable form.
type Request struct {
	// Model is the struct instance to reflect over. Its populated field values
	// become the form defaults, so a config loaded from disk renders with its
	// current settings filled in.
	Model any

	// Form bypasses reflection when the caller already holds a form model.
	Form *model.FormModel

	// Name identifies the form; UI schema overlays are keyed by it. Empty
	// falls back to the lowercased struct type name.
	Name string

	// Title and Description override the generated form header.
	Title       string
	Description string

	// Renderer names the renderer to use. If empty, the orchestrator falls
	// back to the configured default renderer.
	Renderer string

	// Values prefill rendered controls using dotted field paths; Errors replay
	// validation feedback next to the offending fields. The empty Errors key
	// carries form-level messages.
	Values map[string]any
	Errors map[string][]string

	// Theme and Variant select a theme when a selector is configured. Empty
	// values fall back to the configured defaults.
	Theme   string
	Variant string

	// Subset narrows rendering to the named fields or sections.
	Subset render.FieldSubset
}

// Generate executes the reflect → build → decorate → render sequence and
// returns the rendered bytes.
func (o *Orchestrator) Generate(ctx context.Context, req Request) ([]byte, error) {
	if ctx == nil {
		return nil, errors.New("orchestrator: context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := o.initialiseErr; err != nil {
		return nil, err
	}
	if !o.defaultsApplied {
		o.applyDefaults()
		if err := o.initialiseErr; err != nil {
			return nil, err
		}
	}

	form, err := o.resolveForm(req)
	if err != nil {
		return nil, err
	}

	if err := o.applyTransformer(ctx, &form); err != nil {
		return nil, err
	}
	if err := o.widgetRegistry.Decorate(&form); err != nil {
		return nil, fmt.Errorf("orchestrator: resolve widgets: %w", err)
	}
	if err := o.applyDecorators(&form); err != nil {
		return nil, err
	}

	render.ApplySubset(&form, req.Subset)

	themeConfig, err := o.resolveTheme(req.Theme, req.Variant)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: resolve theme: %w", err)
	}

	renderer, err := o.rendererFor(req.Renderer)
	if err != nil {
		return nil, err
	}

	output, err := renderer.Render(ctx, form, render.RenderOptions{
		Values: req.Values,
		Errors: resolveErrors(form, req.Errors),
		Theme:  themeConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: render output: %w", err)
	}
	return output, nil
}

// resolveErrors maps raw error payload keys (wire names, JSON pointers such
// as "/flow_options/file") onto the form's dotted field paths. Messages that
// match no rendered field surface as form-level errors under the empty key
// rather than being dropped.
func resolveErrors(form model.FormModel, payload map[string][]string) map[string][]string {
	if len(payload) == 0 {
		return nil
	}
	mapping := render.MapErrorPayload(form, payload)
	out := make(map[string][]string, len(mapping.Fields)+1)
	for path, messages := range mapping.Fields {
		out[path] = messages
	}
	if len(mapping.Form) > 0 {
		out[""] = render.MergeFormErrors(nil, mapping.Form...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (o *Orchestrator) resolveForm(req Request) (model.FormModel, error) {
	if req.Form != nil {
		form := *req.Form
		applyHeaderOverrides(&form, req)
		return form, nil
	}
	if req.Model == nil {
		return model.FormModel{}, errors.New("orchestrator: model or form is required")
	}

	specs, err := fields.List(reflect.TypeOf(req.Model), append([]fields.Option{fields.WithDefaults(req.Model)}, o.fieldOptions...)...)
	if err != nil {
		return model.FormModel{}, fmt.Errorf("orchestrator: reflect model: %w", err)
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = defaultFormName(req.Model)
	}

	form, err := o.builder.Build(model.Source{
		Name:        name,
		Title:       req.Title,
		Description: req.Description,
		Specs:       specs,
	})
	if err != nil {
		return model.FormModel{}, fmt.Errorf("orchestrator: build form model: %w", err)
	}
	return form, nil
}

func applyHeaderOverrides(form *model.FormModel, req Request) {
	if name := strings.TrimSpace(req.Name); name != "" {
		form.Name = name
	}
	if title := strings.TrimSpace(req.Title); title != "" {
		form.Title = title
	}
	if desc := strings.TrimSpace(req.Description); desc != "" {
		form.Description = desc
	}
}

func defaultFormName(instance any) string {
	t := reflect.TypeOf(instance)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return "form"
	}
	return strings.ToLower(t.Name())
}

func (o *Orchestrator) rendererFor(name string) (render.Renderer, error) {
	if o.registry == nil {
		return nil, errors.New("orchestrator: renderer registry is nil")
	}

	target := name
	if target == "" {
		target = o.defaultRenderer
	}

	if target != "" {
		renderer, err := o.registry.Get(target)
		if err == nil {
			return renderer, nil
		}
		if name != "" {
			return nil, fmt.Errorf("orchestrator: renderer %q: %w", name, err)
		}
	}

	names := o.registry.List()
	if len(names) == 0 {
		return nil, errors.New("orchestrator: no renderers registered")
	}

	renderer, err := o.registry.Get(names[0])
	if err != nil {
		return nil, fmt.Errorf("orchestrator: renderer %q: %w", names[0], err)
	}
	return renderer, nil
}

func (o *Orchestrator) applyDecorators(form *model.FormModel) error {
	if len(o.decorators) == 0 || form == nil {
		return nil
	}
	for _, decorator := range o.decorators {
		if decorator == nil {
			continue
		}
		if err := decorator.Decorate(form); err != nil {
			return fmt.Errorf("orchestrator: decorate form: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) applyTransformer(ctx context.Context, form *model.FormModel) error {
	if o.transformer == nil || form == nil {
		return nil
	}
	if err := o.transformer.Transform(ctx, form); err != nil {
		return fmt.Errorf("orchestrator: transform form: %w", err)
	}
	return nil
}

func (o *Orchestrator) applyDefaults() {
	if o.defaultsApplied {
		return
	}

	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.builder == nil {
		o.builder = model.NewBuilder()
	}
	if o.widgetRegistry == nil {
		o.widgetRegistry = widgets.NewRegistry()
	}
	if o.registry == nil {
		o.registry = render.NewRegistry()
		renderer, err := tui.New()
		if err != nil {
			o.initialiseErr = fmt.Errorf("orchestrator: default renderer: %w", err)
		} else {
			o.registry.MustRegister(renderer)
		}
	}
	if o.defaultRenderer == "" {
		o.defaultRenderer = defaultRendererName
	}
	if o.themeFallbacks == nil {
		o.themeFallbacks = defaultThemeFallbacks()
	}

	o.ensureUIDecorator()

	o.defaultsApplied = true
}

func (o *Orchestrator) ensureUIDecorator() {
	if o.uiDecoratorConfigured {
		return
	}
	o.uiDecoratorConfigured = true

	if !o.uiSchemaSpecified && o.uiSchemaFS == nil {
		o.uiSchemaFS = uischema.EmbeddedFS()
	}
	if o.uiSchemaFS == nil {
		return
	}

	store, err := uischema.LoadFS(o.uiSchemaFS)
	if err != nil {
		o.initialiseErr = fmt.Errorf("orchestrator: load ui schema: %w", err)
		return
	}
	if store.Empty() {
		return
	}

	o.decorators = append(o.decorators, uischema.NewDecorator(store, o.logger))
}

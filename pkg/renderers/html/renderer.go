// Package html renders a form model as a self-contained HTML document. The
// page shell comes from an embedded template bundle while individual controls
// are built in Go, so swapping the shell never changes control semantics.
package html

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/goliatone/go-theme"

	"github.com/FlowRegSuite/flowreg-session-gui/pkg/model"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/render"
	rendertemplate "github.com/FlowRegSuite/flowreg-session-gui/pkg/render/template"
	gotemplate "github.com/FlowRegSuite/flowreg-session-gui/pkg/render/template/gotemplate"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/widgets"
)

const formTemplate = "templates/form.tpl"

type Option func(*config)

type config struct {
	templateFS       fs.FS
	templateRenderer rendertemplate.TemplateRenderer
	registry         *widgets.Registry
	action           string
	method           string
	stylesheet       string
	defaultStyles    bool
}

// WithTemplatesFS supplies an alternate template bundle via fs.FS.
func WithTemplatesFS(files fs.FS) Option {
	return func(cfg *config) {
		cfg.templateFS = files
	}
}

// WithTemplatesDir loads templates from a directory on disk.
func WithTemplatesDir(path string) Option {
	return func(cfg *config) {
		if path == "" {
			return
		}
		cfg.templateFS = os.DirFS(path)
	}
}

// WithTemplateRenderer injects a custom template renderer implementation.
func WithTemplateRenderer(renderer rendertemplate.TemplateRenderer) Option {
	return func(cfg *config) {
		if renderer != nil {
			cfg.templateRenderer = renderer
		}
	}
}

// WithWidgetRegistry overrides the widget registry used to pick controls.
func WithWidgetRegistry(registry *widgets.Registry) Option {
	return func(cfg *config) {
		if registry != nil {
			cfg.registry = registry
		}
	}
}

// WithAction sets the form's submit target.
func WithAction(action string) Option {
	return func(cfg *config) {
		cfg.action = strings.TrimSpace(action)
	}
}

// WithMethod sets the form's submit method. Defaults to post.
func WithMethod(method string) Option {
	return func(cfg *config) {
		if trimmed := strings.TrimSpace(method); trimmed != "" {
			cfg.method = strings.ToLower(trimmed)
		}
	}
}

// WithStylesheet links an external stylesheet by href.
func WithStylesheet(href string) Option {
	return func(cfg *config) {
		cfg.stylesheet = strings.TrimSpace(href)
	}
}

// WithDefaultStyles inlines the bundled stylesheet into the document head.
func WithDefaultStyles() Option {
	return func(cfg *config) {
		cfg.defaultStyles = true
	}
}

type Renderer struct {
	templates  rendertemplate.TemplateRenderer
	registry   *widgets.Registry
	action     string
	method     string
	stylesheet string
	inlineCSS  string
}

// New constructs the HTML renderer applying any provided options.
func New(options ...Option) (*Renderer, error) {
	cfg := config{
		templateFS: TemplatesFS(),
		method:     "post",
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	if cfg.templateFS == nil {
		cfg.templateFS = TemplatesFS()
	}

	renderer := cfg.templateRenderer
	if renderer == nil {
		engine, err := gotemplate.New(
			gotemplate.WithFS(cfg.templateFS),
			gotemplate.WithExtension(".tpl"),
		)
		if err != nil {
			return nil, fmt.Errorf("html renderer: configure template renderer: %w", err)
		}
		renderer = engine
	}

	registry := cfg.registry
	if registry == nil {
		registry = widgets.NewRegistry()
	}

	inlineCSS := ""
	if cfg.defaultStyles {
		inlineCSS = defaultStylesheet()
	}

	return &Renderer{
		templates:  renderer,
		registry:   registry,
		action:     cfg.action,
		method:     cfg.method,
		stylesheet: cfg.stylesheet,
		inlineCSS:  inlineCSS,
	}, nil
}

func (r *Renderer) Name() string {
	return "html"
}

func (r *Renderer) ContentType() string {
	return "text/html; charset=utf-8"
}

func (r *Renderer) Render(ctx context.Context, form model.FormModel, opts render.RenderOptions) ([]byte, error) {
	if r.templates == nil {
		return nil, fmt.Errorf("html renderer: template renderer is nil")
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	builder := newMarkupBuilder(r.registry, opts.Values, opts.Errors)

	data := map[string]any{
		"form": map[string]any{
			"name":        form.Name,
			"title":       titleFor(form),
			"subtitle":    form.Metadata["layout.subtitle"],
			"description": sanitizeMarkup(form.Description),
		},
		"action":      r.action,
		"method":      r.method,
		"sections":    buildSections(form, builder),
		"form_errors": opts.Errors[""],
		"stylesheet":  r.stylesheet,
		"inline_css":  r.inlineCSS,
		"theme_css":   themeStyle(opts.Theme),
	}

	result, err := r.templates.RenderTemplate(formTemplate, data)
	if err != nil {
		return nil, fmt.Errorf("html renderer: render template: %w", err)
	}
	return []byte(result), nil
}

func titleFor(form model.FormModel) string {
	if title := strings.TrimSpace(form.Title); title != "" {
		return title
	}
	return form.Name
}

type sectionMeta struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Order       int    `json:"order"`
}

// buildSections groups top-level fields by their layout section, preserving
// the field order the decorator already established. Fields without a known
// section land in a trailing untitled group.
func buildSections(form model.FormModel, builder *markupBuilder) []map[string]any {
	declared := declaredSections(form)

	grouped := make(map[string][]string, len(declared))
	var loose []string
	known := make(map[string]struct{}, len(declared))
	for _, section := range declared {
		known[section.ID] = struct{}{}
	}

	for _, field := range form.Fields {
		markup := builder.field(field, "")
		sectionID := ""
		if field.Metadata != nil {
			sectionID = strings.TrimSpace(field.Metadata["layout.section"])
		}
		if _, ok := known[sectionID]; ok && sectionID != "" {
			grouped[sectionID] = append(grouped[sectionID], markup)
			continue
		}
		loose = append(loose, markup)
	}

	sections := make([]map[string]any, 0, len(declared)+1)
	for _, section := range declared {
		fields := grouped[section.ID]
		if len(fields) == 0 {
			continue
		}
		sections = append(sections, map[string]any{
			"id":          section.ID,
			"title":       section.Title,
			"description": sanitizeMarkup(section.Description),
			"fields":      fields,
		})
	}
	if len(loose) > 0 {
		sections = append(sections, map[string]any{
			"id":          "",
			"title":       "",
			"description": "",
			"fields":      loose,
		})
	}
	return sections
}

func declaredSections(form model.FormModel) []sectionMeta {
	raw := strings.TrimSpace(form.Metadata["layout.sections"])
	if raw == "" {
		return nil
	}
	var sections []sectionMeta
	if err := json.Unmarshal([]byte(raw), &sections); err != nil {
		return nil
	}
	return sections
}

func themeStyle(cfg *theme.RendererConfig) string {
	if cfg == nil || len(cfg.CSSVars) == 0 {
		return ""
	}
	keys := make([]string, 0, len(cfg.CSSVars))
	for key := range cfg.CSSVars {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(":root {\n")
	for _, key := range keys {
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(cfg.CSSVars[key])
		b.WriteString(";\n")
	}
	b.WriteString("}")
	return b.String()
}

// Package gotemplate adapts the go-template pongo2 engine to the
// TemplateRenderer seam the renderers consume.
package gotemplate

import (
	"fmt"
	"io/fs"
	"strings"

	gotemplatepkg "github.com/goliatone/go-template"

	"github.com/FlowRegSuite/flowreg-session-gui/pkg/render/template"
)

// Option configures the engine before construction.
type Option func(*config)

type config struct {
	opts []gotemplatepkg.Option
}

// WithBaseDir loads templates from a directory on disk.
func WithBaseDir(dir string) Option {
	return func(cfg *config) {
		if dir = strings.TrimSpace(dir); dir != "" {
			cfg.opts = append(cfg.opts, gotemplatepkg.WithBaseDir(dir))
		}
	}
}

// WithFS loads templates from an fs.FS, typically an embedded bundle.
func WithFS(files fs.FS) Option {
	return func(cfg *config) {
		if files != nil {
			cfg.opts = append(cfg.opts, gotemplatepkg.WithFS(files))
		}
	}
}

// WithExtension overrides the ".tpl" default appended to template names.
func WithExtension(ext string) Option {
	return func(cfg *config) {
		if ext = strings.TrimSpace(ext); ext != "" {
			cfg.opts = append(cfg.opts, gotemplatepkg.WithExtension(ext))
		}
	}
}

// WithTemplateFunc registers helper functions or filters when the engine
// loads. Values implementing pongo2's filter signature become filters;
// everything else lands in the global context.
func WithTemplateFunc(funcs map[string]any) Option {
	return func(cfg *config) {
		if len(funcs) > 0 {
			cfg.opts = append(cfg.opts, gotemplatepkg.WithTemplateFunc(funcs))
		}
	}
}

// WithGlobalData seeds context values available to every template.
func WithGlobalData(data map[string]any) Option {
	return func(cfg *config) {
		if len(data) > 0 {
			cfg.opts = append(cfg.opts, gotemplatepkg.WithGlobalData(data))
		}
	}
}

// WithGoTemplateOptions forwards raw engine options for anything the wrappers
// above do not cover.
func WithGoTemplateOptions(opts ...gotemplatepkg.Option) Option {
	return func(cfg *config) {
		cfg.opts = append(cfg.opts, opts...)
	}
}

// Engine satisfies the TemplateRenderer contract by embedding the go-template
// engine; Render, RenderTemplate, RenderString, RegisterFilter, and
// GlobalContext all come from it.
type Engine struct {
	*gotemplatepkg.Engine
}

var _ template.TemplateRenderer = (*Engine)(nil)

// New constructs an Engine. At least one template source (WithFS or
// WithBaseDir) is required; construction fails without one.
func New(options ...Option) (*Engine, error) {
	cfg := &config{}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(cfg)
	}

	engine, err := gotemplatepkg.NewRenderer(cfg.opts...)
	if err != nil {
		return nil, fmt.Errorf("gotemplate: configure engine: %w", err)
	}
	return &Engine{Engine: engine}, nil
}

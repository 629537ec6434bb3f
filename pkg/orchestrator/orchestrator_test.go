package orchestrator_test

import (
	"context"
	"strings"
	"testing"

	"github.com/FlowRegSuite/flowreg-session-gui/pkg/model"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/orchestrator"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/render"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/session"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/testsupport"
)

func TestOrchestratorGeneratesFromModel(t *testing.T) {
	t.Parallel()

	capture := &captureRenderer{}
	registry := render.NewRegistry()
	registry.MustRegister(capture)

	orch := orchestrator.New(
		orchestrator.WithRegistry(registry),
		orchestrator.WithDefaultRenderer(capture.Name()),
		orchestrator.WithUISchemaFS(nil),
	)

	values := map[string]any{"root": "/data/session-01"}
	errs := map[string][]string{"bin_size": {"must be at least 1"}}

	out, err := orch.Generate(testsupport.Context(), orchestrator.Request{
		Model:  session.Default(),
		Name:   "session",
		Values: values,
		Errors: errs,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if string(out) != "session" {
		t.Fatalf("output = %q, want form name", string(out))
	}

	form := capture.form
	if len(form.Fields) != 16 {
		t.Fatalf("field count = %d, want 16", len(form.Fields))
	}
	if form.Fields[0].Name != "root" {
		t.Fatalf("first field = %q, want root", form.Fields[0].Name)
	}

	verbose := mustField(t, form, "verbose")
	if verbose.Metadata["widget"] != "toggle" {
		t.Fatalf("verbose widget = %q, want toggle", verbose.Metadata["widget"])
	}
	flow := mustField(t, form, "flow_options")
	if flow.Metadata["widget"] != "json-or-path" {
		t.Fatalf("flow_options widget = %q, want json-or-path", flow.Metadata["widget"])
	}

	if got := capture.options.Values["root"]; got != "/data/session-01" {
		t.Fatalf("values not passed through, got %v", got)
	}
	if got := capture.options.Errors["bin_size"]; len(got) != 1 {
		t.Fatalf("errors not passed through, got %v", got)
	}
}

func TestOrchestratorMapsErrorPaths(t *testing.T) {
	t.Parallel()

	capture := &captureRenderer{}
	registry := render.NewRegistry()
	registry.MustRegister(capture)

	orch := orchestrator.New(
		orchestrator.WithRegistry(registry),
		orchestrator.WithDefaultRenderer(capture.Name()),
		orchestrator.WithUISchemaFS(nil),
	)

	_, err := orch.Generate(testsupport.Context(), orchestrator.Request{
		Model: session.Default(),
		Name:  "session",
		Errors: map[string][]string{
			"/config/bin_size": {"must be at least 1"},
			"no_such_field":    {"unrecognised value"},
		},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if got := capture.options.Errors["bin_size"]; len(got) != 1 || got[0] != "must be at least 1" {
		t.Fatalf("pointer path not mapped onto field: %v", capture.options.Errors)
	}
	if got := capture.options.Errors[""]; len(got) != 1 || got[0] != "unrecognised value" {
		t.Fatalf("unmatched path should surface form-level: %v", capture.options.Errors)
	}
}

func TestOrchestratorAppliesEmbeddedOverlay(t *testing.T) {
	t.Parallel()

	capture := &captureRenderer{}
	registry := render.NewRegistry()
	registry.MustRegister(capture)

	// No WithUISchemaFS: the embedded session overlay applies.
	orch := orchestrator.New(
		orchestrator.WithRegistry(registry),
		orchestrator.WithDefaultRenderer(capture.Name()),
	)

	_, err := orch.Generate(testsupport.Context(), orchestrator.Request{
		Model: session.Default(),
		Name:  "session",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	form := capture.form
	if form.Title != "FlowReg Session" {
		t.Fatalf("title = %q", form.Title)
	}
	if form.Metadata["layout.subtitle"] == "" {
		t.Fatal("subtitle metadata missing")
	}
	if !strings.Contains(form.Metadata["layout.sections"], `"paths"`) {
		t.Fatalf("sections metadata missing: %q", form.Metadata["layout.sections"])
	}

	root := mustField(t, form, "root")
	if root.Label != "Session root" {
		t.Fatalf("root label = %q", root.Label)
	}
	if root.Metadata["layout.section"] != "paths" {
		t.Fatalf("root section = %q", root.Metadata["layout.section"])
	}
}

func TestOrchestratorFormBypassAndSubset(t *testing.T) {
	t.Parallel()

	capture := &captureRenderer{}
	registry := render.NewRegistry()
	registry.MustRegister(capture)

	orch := orchestrator.New(
		orchestrator.WithRegistry(registry),
		orchestrator.WithDefaultRenderer(capture.Name()),
		orchestrator.WithUISchemaFS(nil),
	)

	form := model.FormModel{
		Name: "session",
		Fields: []model.Field{
			{Name: "root", Type: model.FieldTypeString},
			{Name: "bin_size", Type: model.FieldTypeInteger},
			{Name: "verbose", Type: model.FieldTypeBoolean},
		},
	}

	_, err := orch.Generate(testsupport.Context(), orchestrator.Request{
		Form:   &form,
		Title:  "Narrowed",
		Subset: render.FieldSubset{Fields: []string{"root", "verbose"}},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	got := capture.form
	if got.Title != "Narrowed" {
		t.Fatalf("title override lost: %q", got.Title)
	}
	if len(got.Fields) != 2 {
		t.Fatalf("subset kept %d fields, want 2", len(got.Fields))
	}
	if got.Fields[0].Name != "root" || got.Fields[1].Name != "verbose" {
		t.Fatalf("unexpected subset fields: %s, %s", got.Fields[0].Name, got.Fields[1].Name)
	}
	// The request form must stay untouched.
	if len(form.Fields) != 3 {
		t.Fatalf("caller form mutated: %d fields", len(form.Fields))
	}
}

func TestOrchestratorRunsTransformerBeforeDecorators(t *testing.T) {
	t.Parallel()

	capture := &captureRenderer{}
	registry := render.NewRegistry()
	registry.MustRegister(capture)

	var order []string
	transformer := orchestrator.TransformerFunc(func(_ context.Context, form *model.FormModel) error {
		order = append(order, "transform")
		form.Description = "patched"
		return nil
	})
	decorator := model.DecoratorFunc(func(form *model.FormModel) error {
		order = append(order, "decorate")
		return nil
	})

	orch := orchestrator.New(
		orchestrator.WithRegistry(registry),
		orchestrator.WithDefaultRenderer(capture.Name()),
		orchestrator.WithUISchemaFS(nil),
		orchestrator.WithTransformer(transformer),
		orchestrator.WithUIDecorators(decorator),
	)

	_, err := orch.Generate(testsupport.Context(), orchestrator.Request{
		Model: session.Default(),
		Name:  "session",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if len(order) != 2 || order[0] != "transform" || order[1] != "decorate" {
		t.Fatalf("stage order = %v", order)
	}
	if capture.form.Description != "patched" {
		t.Fatalf("transformer change lost: %q", capture.form.Description)
	}
}

func TestOrchestratorRendererResolution(t *testing.T) {
	t.Parallel()

	capture := &captureRenderer{}
	registry := render.NewRegistry()
	registry.MustRegister(capture)

	orch := orchestrator.New(
		orchestrator.WithRegistry(registry),
		orchestrator.WithDefaultRenderer("missing"),
		orchestrator.WithUISchemaFS(nil),
	)

	// Unknown default falls back to the first registered renderer.
	if _, err := orch.Generate(testsupport.Context(), orchestrator.Request{Model: session.Default()}); err != nil {
		t.Fatalf("generate with fallback: %v", err)
	}

	// An explicitly named unknown renderer is an error.
	_, err := orch.Generate(testsupport.Context(), orchestrator.Request{
		Model:    session.Default(),
		Renderer: "nope",
	})
	if err == nil || !strings.Contains(err.Error(), `renderer "nope"`) {
		t.Fatalf("expected named renderer error, got %v", err)
	}
}

func TestOrchestratorRequiresModelOrForm(t *testing.T) {
	t.Parallel()

	capture := &captureRenderer{}
	registry := render.NewRegistry()
	registry.MustRegister(capture)

	orch := orchestrator.New(
		orchestrator.WithRegistry(registry),
		orchestrator.WithDefaultRenderer(capture.Name()),
		orchestrator.WithUISchemaFS(nil),
	)

	if _, err := orch.Generate(testsupport.Context(), orchestrator.Request{}); err == nil {
		t.Fatal("expected error for empty request")
	}
}

func TestOrchestratorDerivesFormNameFromType(t *testing.T) {
	t.Parallel()

	capture := &captureRenderer{}
	registry := render.NewRegistry()
	registry.MustRegister(capture)

	orch := orchestrator.New(
		orchestrator.WithRegistry(registry),
		orchestrator.WithDefaultRenderer(capture.Name()),
		orchestrator.WithUISchemaFS(nil),
	)

	if _, err := orch.Generate(testsupport.Context(), orchestrator.Request{Model: session.Default()}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if capture.form.Name != "config" {
		t.Fatalf("derived name = %q, want config", capture.form.Name)
	}
}

func mustField(t *testing.T, form model.FormModel, name string) model.Field {
	t.Helper()
	for _, field := range form.Fields {
		if field.Name == name {
			return field
		}
	}
	t.Fatalf("field %q not found", name)
	return model.Field{}
}

type captureRenderer struct {
	form    model.FormModel
	options render.RenderOptions
}

func (r *captureRenderer) Name() string {
	return "capture"
}

func (r *captureRenderer) ContentType() string {
	return "text/plain"
}

func (r *captureRenderer) Render(_ context.Context, form model.FormModel, opts render.RenderOptions) ([]byte, error) {
	r.form = form
	r.options = opts
	return []byte(form.Name), nil
}

package html_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/goliatone/go-theme"

	"github.com/FlowRegSuite/flowreg-session-gui/pkg/model"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/render"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/renderers/html"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/testsupport"
)

func TestRendererRendersSessionDocument(t *testing.T) {
	form := testsupport.SessionFormModel(t)

	renderer, err := html.New()
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	if renderer.Name() != "html" {
		t.Fatalf("renderer name = %q, want %q", renderer.Name(), "html")
	}
	if renderer.ContentType() != "text/html; charset=utf-8" {
		t.Fatalf("content type = %q", renderer.ContentType())
	}

	out, err := renderer.Render(context.Background(), form, render.RenderOptions{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	doc := string(out)

	wantContains(t, doc,
		"<title>FlowReg Session</title>",
		`name="session"`,
		`method="post"`,
		// root: required directory path
		`id="sf-root"`,
		`data-path-kind="dir"`,
		`<span class="sf-required">*</span>`,
		"Session root directory",
		// file_extension: enum select with the default preselected
		`<select class="sf-input sf-select" id="sf-file_extension"`,
		`<option value=".tif" selected>.tif</option>`,
		`<option value=".hdf5">.hdf5</option>`,
		// output_format: enum provided by the Enumerated interface
		`<option value="hdf5" selected>hdf5</option>`,
		// verbose defaults on, overwrite defaults off
		`name="verbose" value="true" checked`,
		// numeric bounds surface as input attributes
		`id="sf-bin_size"`,
		`step="1" min="1"`,
		`id="sf-mask_threshold"`,
		`value="0.95" step="any" min="0" max="1"`,
		// flow_options: composite control, inline mode by default
		`name="flow_options__mode" value="inline" checked`,
		`name="flow_options__mode" value="path"`,
		`name="flow_options__inline"`,
		`name="flow_options__path"`,
		// stage_params: free-form JSON editor
		`<textarea class="sf-input sf-json" id="sf-stage_params"`,
		// notes: optional plain string falls back to a text input
		`id="sf-notes"`,
	)

	if strings.Contains(doc, `name="overwrite" value="true" checked`) {
		t.Fatalf("overwrite should not start checked:\n%s", doc)
	}
}

func TestRendererGroupsSections(t *testing.T) {
	form := model.FormModel{
		Name:  "session",
		Title: "FlowReg Session",
		Metadata: map[string]string{
			"layout.subtitle": "Motion-compensation session configuration",
			"layout.sections": `[{"id":"paths","title":"Paths","order":0},{"id":"motion","title":"Motion","description":"Registration <b>tuning</b> knobs.","order":1}]`,
		},
		Fields: []model.Field{
			{Name: "root", Type: model.FieldTypeString, Format: "dir-path", Label: "Session root", Required: true, Metadata: map[string]string{"layout.section": "paths"}},
			{Name: "bin_size", Type: model.FieldTypeInteger, Label: "Bin Size", Metadata: map[string]string{"layout.section": "motion"}},
			{Name: "notes", Type: model.FieldTypeString, Label: "Notes", Optional: true},
		},
	}

	renderer, err := html.New()
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	out, err := renderer.Render(context.Background(), form, render.RenderOptions{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	doc := string(out)

	wantContains(t, doc,
		"Motion-compensation session configuration",
		`id="sf-section-paths"`,
		"<legend>Paths</legend>",
		"<legend>Motion</legend>",
		"Registration <b>tuning</b> knobs.",
		`class="sf-section sf-section-untitled"`,
	)

	paths := strings.Index(doc, "<legend>Paths</legend>")
	motion := strings.Index(doc, "<legend>Motion</legend>")
	loose := strings.Index(doc, "sf-section-untitled")
	if !(paths < motion && motion < loose) {
		t.Fatalf("section order wrong: paths=%d motion=%d loose=%d", paths, motion, loose)
	}

	rootAt := strings.Index(doc, `data-field="root"`)
	if rootAt == -1 || rootAt > motion {
		t.Fatalf("root field should render inside the Paths section")
	}
}

func TestRendererValuesAndErrors(t *testing.T) {
	form := testsupport.SessionFormModel(t)

	renderer, err := html.New()
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	out, err := renderer.Render(context.Background(), form, render.RenderOptions{
		Values: map[string]any{
			"root":         "/data/session-01",
			"flow_options": "params/flow.json",
			"bin_size":     4,
		},
		Errors: map[string][]string{
			"root": {"directory does not exist"},
			"":     {"fix the highlighted fields"},
		},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	doc := string(out)

	wantContains(t, doc,
		`value="/data/session-01"`,
		// a string value flips the composite control into path mode
		`name="flow_options__mode" value="path" checked`,
		`name="flow_options__path" data-path-kind="file" value="params/flow.json"`,
		`value="4"`,
		`<li>directory does not exist</li>`,
		`class="sf-form-errors"`,
		"fix the highlighted fields",
	)

	if strings.Contains(doc, `name="flow_options__mode" value="inline" checked`) {
		t.Fatalf("inline mode should not be checked when a path value is set:\n%s", doc)
	}
}

func TestRendererThemeAndStylesheet(t *testing.T) {
	form := testsupport.SessionFormModel(t)

	renderer, err := html.New(
		html.WithDefaultStyles(),
		html.WithStylesheet("/assets/"+html.StylesheetName),
		html.WithAction("/sessions"),
		html.WithMethod("POST"),
	)
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}

	out, err := renderer.Render(context.Background(), form, render.RenderOptions{
		Theme: &theme.RendererConfig{
			Theme:   "acme",
			Variant: "dark",
			CSSVars: map[string]string{"--sf-accent": "#123456"},
		},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	doc := string(out)

	wantContains(t, doc,
		`href="/assets/session-form.css"`,
		"--sf-accent: #123456;",
		`action="/sessions"`,
		`method="post"`,
		".sf-form {",
	)
}

func TestRendererNestedObjectFieldset(t *testing.T) {
	form := model.FormModel{
		Name: "session",
		Fields: []model.Field{
			{
				Name:  "advanced",
				Type:  model.FieldTypeObject,
				Label: "Advanced",
				Nested: []model.Field{
					{Name: "alpha", Type: model.FieldTypeNumber, Label: "Alpha"},
					{Name: "iterations", Type: model.FieldTypeInteger, Label: "Iterations"},
				},
			},
		},
	}

	renderer, err := html.New()
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	out, err := renderer.Render(context.Background(), form, render.RenderOptions{
		Values: map[string]any{"advanced": map[string]any{"alpha": 4.5}},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	doc := string(out)

	wantContains(t, doc,
		`<fieldset class="sf-group" data-field="advanced">`,
		`<legend class="sf-legend">Advanced</legend>`,
		`name="advanced.alpha"`,
		`id="sf-advanced-alpha"`,
		`value="4.5"`,
		`name="advanced.iterations"`,
	)
}

func TestRendererSanitizesDescriptions(t *testing.T) {
	form := model.FormModel{
		Name: "session",
		Fields: []model.Field{
			{
				Name:        "root",
				Type:        model.FieldTypeString,
				Label:       "Root",
				Description: `Keep it <b>absolute</b><script>alert("x")</script>`,
			},
		},
	}

	renderer, err := html.New()
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	out, err := renderer.Render(context.Background(), form, render.RenderOptions{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	doc := string(out)

	wantContains(t, doc, "Keep it <b>absolute</b>")
	if strings.Contains(doc, "<script>") {
		t.Fatalf("script tag survived sanitization:\n%s", doc)
	}
}

func TestRendererCustomTemplateRenderer(t *testing.T) {
	form := testsupport.SessionFormModel(t)
	stub := &stubTemplateRenderer{output: "stub-output"}

	renderer, err := html.New(html.WithTemplateRenderer(stub))
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	out, err := renderer.Render(context.Background(), form, render.RenderOptions{})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if string(out) != "stub-output" {
		t.Fatalf("output = %q, want stub output", string(out))
	}
	if stub.lastName != "templates/form.tpl" {
		t.Fatalf("template name = %q, want templates/form.tpl", stub.lastName)
	}

	data, ok := stub.lastData.(map[string]any)
	if !ok {
		t.Fatalf("template data type = %T", stub.lastData)
	}
	formData, ok := data["form"].(map[string]any)
	if !ok {
		t.Fatalf("form data type = %T", data["form"])
	}
	if formData["name"] != "session" {
		t.Fatalf("form name = %v", formData["name"])
	}
	sections, ok := data["sections"].([]map[string]any)
	if !ok || len(sections) == 0 {
		t.Fatalf("sections missing from template data: %T", data["sections"])
	}
}

func TestRendererHonorsContextCancellation(t *testing.T) {
	form := testsupport.SessionFormModel(t)
	renderer, err := html.New()
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := renderer.Render(ctx, form, render.RenderOptions{}); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func wantContains(t *testing.T, doc string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q", want)
		}
	}
	if t.Failed() {
		t.Logf("document:\n%s", doc)
	}
}

type stubTemplateRenderer struct {
	output   string
	lastName string
	lastData any
}

func (s *stubTemplateRenderer) Render(name string, data any, _ ...io.Writer) (string, error) {
	return s.RenderTemplate(name, data)
}

func (s *stubTemplateRenderer) RenderTemplate(name string, data any, _ ...io.Writer) (string, error) {
	s.lastName = name
	s.lastData = data
	return s.output, nil
}

func (s *stubTemplateRenderer) RenderString(content string, _ any, _ ...io.Writer) (string, error) {
	return content, nil
}

func (s *stubTemplateRenderer) RegisterFilter(string, func(any, any) (any, error)) error {
	return nil
}

func (s *stubTemplateRenderer) GlobalContext(any) error {
	return nil
}

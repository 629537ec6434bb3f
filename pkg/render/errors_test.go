package render_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/FlowRegSuite/flowreg-session-gui/pkg/model"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/render"
)

func TestMapErrorPayload_PointerPaths(t *testing.T) {
	form := model.FormModel{
		Fields: []model.Field{
			{Name: "root", Type: model.FieldTypeString},
			{Name: "bin_size", Type: model.FieldTypeInteger},
			{
				Name: "flow_options",
				Type: model.FieldTypeObject,
				Nested: []model.Field{
					{Name: "file", Type: model.FieldTypeString},
					{Name: "inline", Type: model.FieldTypeJSON},
				},
			},
			{Name: "stage_params", Type: model.FieldTypeJSON},
		},
	}

	payload := map[string][]string{
		"/config/root":               {"root directory is required"},
		"config.flow_options.file":   {"file does not exist"},
		"$.config.stage_params[0]":   {"stage params must be an object"},
		"session.payload.bin_size":   {"bin size must be at least 1"},
		"non_field_errors":           {"config could not be saved"},
		"config/flow_options/~1path": {"path malformed"},
		"session/config/unknown":     {"should fall back to form errors"},
		"":                           {"unscoped form error"},
	}

	mapped := render.MapErrorPayload(form, payload)

	wantFields := map[string][]string{
		"root":              {"root directory is required"},
		"flow_options.file": {"file does not exist"},
		"stage_params":      {"stage params must be an object"},
		"bin_size":          {"bin size must be at least 1"},
		"flow_options":      {"path malformed"},
	}
	if diff := cmp.Diff(wantFields, mapped.Fields); diff != "" {
		t.Fatalf("field errors mismatch (-want +got):\n%s", diff)
	}

	wantForm := []string{"config could not be saved", "should fall back to form errors", "unscoped form error"}
	if diff := cmp.Diff(wantForm, mapped.Form, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Fatalf("form errors mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeFormErrors(t *testing.T) {
	merged := render.MergeFormErrors([]string{" First ", "Second"}, "Second", "third", "  ")
	want := []string{"First", "Second", "third"}

	if diff := cmp.Diff(want, merged); diff != "" {
		t.Fatalf("merged form errors mismatch (-want +got):\n%s", diff)
	}
}

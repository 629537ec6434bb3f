package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/getkin/kin-openapi/openapi3"
)

// ValidateValues checks a wire-name keyed value map against the component
// schema of an exported document: required fields, enum membership, numeric
// ranges, and value shapes. All violations are collected into one error.
func ValidateValues(doc *openapi3.T, values map[string]any) error {
	if doc == nil {
		return errors.New("schema: document is required")
	}
	ref, name := componentSchema(doc)
	if ref == nil || ref.Value == nil {
		return errors.New("schema: document carries no component schemas")
	}
	normalized, err := normalizeValues(values)
	if err != nil {
		return err
	}
	if err := ref.Value.VisitJSON(normalized, openapi3.MultiErrors()); err != nil {
		return fmt.Errorf("schema: values do not satisfy %s: %w", name, err)
	}
	return nil
}

// componentSchema returns the document's component schema. Exported documents
// carry exactly one; if several are present the first by name wins.
func componentSchema(doc *openapi3.T) (*openapi3.SchemaRef, string) {
	if doc.Components == nil || len(doc.Components.Schemas) == 0 {
		return nil, ""
	}
	names := make([]string, 0, len(doc.Components.Schemas))
	for name := range doc.Components.Schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return doc.Components.Schemas[names[0]], names[0]
}

// normalizeValues round-trips the map through JSON so typed values (named
// enums, FlowOptions wrappers) collapse to the wire shapes schema validation
// understands.
func normalizeValues(values map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("schema: encode values: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("schema: decode values: %w", err)
	}
	return out, nil
}

package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"github.com/FlowRegSuite/flowreg-session-gui/pkg/model"
)

// Info carries document-level metadata. Zero values fall back to the form's
// title and version "1.0.0".
type Info struct {
	Title       string
	Version     string
	Description string
}

// Export builds an OpenAPI 3.0 document from a form model: one component
// schema named after the form, plus a single resource path whose GET returns
// and POST accepts that schema. The document is validated before it is
// returned, so callers can marshal it without further checks.
func Export(form model.FormModel, info Info) (*openapi3.T, error) {
	if len(form.Fields) == 0 {
		return nil, fmt.Errorf("schema: form %q has no fields", form.Name)
	}

	component, err := componentFor(form)
	if err != nil {
		return nil, err
	}
	name := componentName(form.Name)

	title := info.Title
	if title == "" {
		title = form.Title
	}
	if title == "" {
		title = name
	}
	version := info.Version
	if version == "" {
		version = "1.0.0"
	}

	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       title,
			Version:     version,
			Description: info.Description,
		},
		Components: &openapi3.Components{
			Schemas: openapi3.Schemas{name: openapi3.NewSchemaRef("", component)},
		},
		Paths: openapi3.NewPaths(
			openapi3.WithPath(resourcePath(name), pathItem(name, component)),
		),
	}
	if err := doc.Validate(context.Background(), openapi3.DisableExamplesValidation()); err != nil {
		return nil, fmt.Errorf("schema: exported document is invalid: %w", err)
	}
	return doc, nil
}

// MarshalJSON renders the document as indented JSON.
func MarshalJSON(doc *openapi3.T) ([]byte, error) {
	raw, err := doc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("schema: marshal document: %w", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("schema: indent document: %w", err)
	}
	return buf.Bytes(), nil
}

// MarshalYAML renders the document as YAML. The document is marshaled through
// its JSON form first so extension handling matches the JSON output.
func MarshalYAML(doc *openapi3.T) ([]byte, error) {
	raw, err := doc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("schema: marshal document: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("schema: convert document to yaml: %w", err)
	}
	out, err := yaml.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("schema: encode document yaml: %w", err)
	}
	return out, nil
}

func componentFor(form model.FormModel) (*openapi3.Schema, error) {
	object := &openapi3.Schema{
		Type:        &openapi3.Types{openapi3.TypeObject},
		Title:       form.Title,
		Description: form.Description,
		Properties:  make(openapi3.Schemas, len(form.Fields)),
	}
	for _, field := range form.Fields {
		property, err := propertySchema(field)
		if err != nil {
			return nil, err
		}
		object.Properties[field.Name] = openapi3.NewSchemaRef("", property)
		if field.Required {
			object.Required = append(object.Required, field.Name)
		}
	}
	return object, nil
}

func propertySchema(field model.Field) (*openapi3.Schema, error) {
	schema := &openapi3.Schema{Description: field.Description}
	switch field.Type {
	case model.FieldTypeBoolean:
		schema.Type = &openapi3.Types{openapi3.TypeBoolean}
	case model.FieldTypeInteger:
		schema.Type = &openapi3.Types{openapi3.TypeInteger}
	case model.FieldTypeNumber:
		schema.Type = &openapi3.Types{openapi3.TypeNumber}
	case model.FieldTypeObject:
		schema.Type = &openapi3.Types{openapi3.TypeObject}
		schema.Properties = make(openapi3.Schemas, len(field.Nested))
		for _, nested := range field.Nested {
			child, err := propertySchema(nested)
			if err != nil {
				return nil, err
			}
			schema.Properties[nested.Name] = openapi3.NewSchemaRef("", child)
			if nested.Required {
				schema.Required = append(schema.Required, nested.Name)
			}
		}
	case model.FieldTypeJSON:
		// Free-form mappings round-trip as null when unset.
		schema.Type = &openapi3.Types{openapi3.TypeObject}
		schema.Nullable = true
	case model.FieldTypeJSONOrPath:
		inline := &openapi3.Schema{Type: &openapi3.Types{openapi3.TypeObject}}
		file := &openapi3.Schema{
			Type:   &openapi3.Types{openapi3.TypeString},
			Format: "file-path",
		}
		schema.OneOf = openapi3.SchemaRefs{
			openapi3.NewSchemaRef("", inline),
			openapi3.NewSchemaRef("", file),
		}
		schema.Nullable = true
	default:
		schema.Type = &openapi3.Types{openapi3.TypeString}
		schema.Format = field.Format
	}
	if field.Optional {
		schema.Nullable = true
	}
	if len(field.Enum) > 0 {
		values := make([]any, len(field.Enum))
		for i, v := range field.Enum {
			values[i] = v
		}
		schema.Enum = values
	}
	if field.Default != nil {
		schema.Default = field.Default
	}
	if err := applyRules(schema, field); err != nil {
		return nil, err
	}
	return schema, nil
}

// applyRules translates builder validation rules onto the schema. Numeric
// bounds keep their threshold in Params["value"], pattern rules in
// Params["pattern"].
func applyRules(schema *openapi3.Schema, field model.Field) error {
	for _, rule := range field.Validations {
		switch rule.Kind {
		case model.ValidationRuleMin:
			v, err := ruleFloat(field.Name, rule)
			if err != nil {
				return err
			}
			schema.Min = openapi3.Float64Ptr(v)
		case model.ValidationRuleMax:
			v, err := ruleFloat(field.Name, rule)
			if err != nil {
				return err
			}
			schema.Max = openapi3.Float64Ptr(v)
		case model.ValidationRuleMinLength:
			v, err := ruleFloat(field.Name, rule)
			if err != nil {
				return err
			}
			schema.MinLength = uint64(v)
		case model.ValidationRuleMaxLength:
			v, err := ruleFloat(field.Name, rule)
			if err != nil {
				return err
			}
			schema.MaxLength = openapi3.Uint64Ptr(uint64(v))
		case model.ValidationRulePattern:
			schema.Pattern = rule.Params["pattern"]
		}
	}
	return nil
}

func ruleFloat(name string, rule model.ValidationRule) (float64, error) {
	raw := rule.Params["value"]
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("schema: field %s: %s bound %q: %w", name, rule.Kind, raw, err)
	}
	return v, nil
}

func pathItem(component string, schema *openapi3.Schema) *openapi3.PathItem {
	ref := openapi3.NewSchemaRef("#/components/schemas/"+component, schema)
	return &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "get" + component,
			Summary:     "Fetch the current configuration values.",
			Responses: openapi3.NewResponses(openapi3.WithStatus(200, &openapi3.ResponseRef{
				Value: openapi3.NewResponse().
					WithDescription("Current configuration.").
					WithJSONSchemaRef(ref),
			})),
		},
		Post: &openapi3.Operation{
			OperationID: "save" + component,
			Summary:     "Replace the configuration with the submitted values.",
			RequestBody: &openapi3.RequestBodyRef{
				Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchemaRef(ref),
			},
			Responses: openapi3.NewResponses(openapi3.WithStatus(200, &openapi3.ResponseRef{
				Value: openapi3.NewResponse().
					WithDescription("Stored configuration.").
					WithJSONSchemaRef(ref),
			})),
		},
	}
}

// componentName turns a wire-style form name into a schema component name:
// "session" becomes "Session", "session_config" becomes "SessionConfig".
func componentName(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	var b strings.Builder
	for _, w := range words {
		b.WriteString(strings.ToUpper(w[:1]) + w[1:])
	}
	if b.Len() == 0 {
		return "Form"
	}
	return b.String()
}

func resourcePath(component string) string {
	name := strings.ToLower(component)
	if !strings.HasSuffix(name, "s") {
		name += "s"
	}
	return "/" + name
}

package model

import (
	"fmt"
	"strconv"

	"github.com/FlowRegSuite/flowreg-session-gui/pkg/fields"
)

// Source describes one struct-derived form: an identifying wire name plus the
// reflected field specs the form edits.
type Source struct {
	Name        string
	Title       string
	Description string
	Specs       []fields.Spec
}

// Builder converts reflected field specs into form models.
type Builder struct {
	opts Options
}

// New creates a Builder with the supplied options.
func New(options Options) *Builder {
	opts := defaultOptions()
	if options.Labeler != nil {
		opts.Labeler = options.Labeler
	}
	return &Builder{opts: opts}
}

// Build transforms a reflected source into a FormModel suitable for
// rendering. Field order follows spec order, which follows struct
// declaration order.
func (b *Builder) Build(src Source) (FormModel, error) {
	if err := validateSource(src); err != nil {
		return FormModel{}, err
	}

	form := FormModel{
		Name:        src.Name,
		Title:       src.Title,
		Description: src.Description,
	}
	if form.Title == "" {
		form.Title = b.opts.Labeler(src.Name)
	}

	form.Fields = make([]Field, 0, len(src.Specs))
	for _, spec := range src.Specs {
		field, err := b.fieldFromSpec(spec)
		if err != nil {
			return FormModel{}, err
		}
		form.Fields = append(form.Fields, field)
	}
	return form, nil
}

func (b *Builder) fieldFromSpec(spec fields.Spec) (Field, error) {
	field := Field{
		Name:        spec.Name,
		Type:        typeFor(spec.Kind),
		Format:      spec.Format,
		Required:    spec.Required,
		Optional:    spec.Optional,
		Label:       b.opts.Labeler(spec.Name),
		Description: spec.Help,
		Validations: rulesFor(spec),
	}
	if !fields.IsMissing(spec.Default) && spec.Default != nil {
		field.Default = spec.Default
	}
	if len(spec.Enum) > 0 {
		field.Enum = append([]string(nil), spec.Enum...)
	}
	if spec.Kind == fields.KindObject {
		nestedSpecs, err := fields.List(spec.Type)
		if err != nil {
			return Field{}, fmt.Errorf("model builder: nested field %s: %w", spec.Name, err)
		}
		field.Nested = make([]Field, 0, len(nestedSpecs))
		for _, nested := range nestedSpecs {
			nestedField, err := b.fieldFromSpec(nested)
			if err != nil {
				return Field{}, err
			}
			field.Nested = append(field.Nested, nestedField)
		}
	}
	return field, nil
}

func typeFor(kind fields.Kind) FieldType {
	switch kind {
	case fields.KindBool:
		return FieldTypeBoolean
	case fields.KindInt:
		return FieldTypeInteger
	case fields.KindFloat:
		return FieldTypeNumber
	case fields.KindObject:
		return FieldTypeObject
	case fields.KindJSON:
		return FieldTypeJSON
	case fields.KindJSONOrPath:
		return FieldTypeJSONOrPath
	default:
		// Enums stay strings; Enum carries the closed value set.
		return FieldTypeString
	}
}

func rulesFor(spec fields.Spec) []ValidationRule {
	var rules []ValidationRule
	if spec.Min != nil {
		rules = append(rules, ValidationRule{
			Kind:   ValidationRuleMin,
			Params: map[string]string{"value": strconv.FormatFloat(*spec.Min, 'g', -1, 64)},
		})
	}
	if spec.Max != nil {
		rules = append(rules, ValidationRule{
			Kind:   ValidationRuleMax,
			Params: map[string]string{"value": strconv.FormatFloat(*spec.Max, 'g', -1, 64)},
		})
	}
	return rules
}

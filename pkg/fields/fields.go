// Package fields reflects over configuration structs and classifies their
// fields into editor categories. Every editing surface in this module (the
// terminal form, the HTTP form, schema export) works from the same Spec list
// and Binding closures instead of hand-written per-field glue.
package fields

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Missing is the sentinel default for fields whose value must be supplied by
// the user. It is distinct from nil, which is a real default for optional
// fields.
var Missing = missingValue{}

type missingValue struct{}

func (missingValue) String() string { return "<missing>" }

// Enumerated is implemented by named types with a closed value set, such as
// output formats. Fields of such types are classified as KindEnum.
type Enumerated interface {
	EnumValues() []string
}

// Kind is the editor category a field dispatches to.
type Kind int

const (
	// KindString covers free text and paths; Spec.Format distinguishes paths.
	KindString Kind = iota
	KindBool
	KindInt
	KindFloat
	// KindEnum is a closed string choice, from an enum tag or an Enumerated type.
	KindEnum
	// KindObject is a nested struct edited as a sub-form.
	KindObject
	// KindJSON is a free-form mapping edited as JSON text.
	KindJSON
	// KindJSONOrPath holds either an inline JSON mapping or a path to a JSON
	// file, decided by what the user types.
	KindJSONOrPath
)

var kindNames = map[Kind]string{
	KindString:     "string",
	KindBool:       "bool",
	KindInt:        "integer",
	KindFloat:      "float",
	KindEnum:       "enum",
	KindObject:     "object",
	KindJSON:       "json",
	KindJSONOrPath: "json-or-path",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Spec describes one editable field.
type Spec struct {
	// Name is the wire name, taken from the yaml tag.
	Name string
	// GoName is the struct field name.
	GoName string
	// Label is a human-readable title derived from Name.
	Label string
	// Help is the field's help text, from the help struct tag.
	Help string
	// Type is the declared field type, pointers included.
	Type reflect.Type
	// Kind selects the editor category.
	Kind Kind
	// Required marks fields that must be supplied; their Default is Missing.
	Required bool
	// Optional marks pointer fields; clearing them stores nil.
	Optional bool
	// Default is the field's default value, or Missing when none is known.
	Default any
	// Enum lists the accepted values when Kind is KindEnum.
	Enum []string
	// Format refines KindString: "dir-path" and "file-path" select pickers.
	Format string
	// Min and Max bound numeric fields when set.
	Min *float64
	Max *float64

	index []int
}

// List walks a struct type and returns a Spec per exported field, in
// declaration order. The type may be a struct or pointer to struct. Fields
// tagged form:"-" are skipped.
func List(t reflect.Type, opts ...Option) ([]Spec, error) {
	o := applyOptions(opts)
	if t == nil {
		return nil, fmt.Errorf("fields: nil type")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("fields: %s is not a struct", t)
	}
	var defaults reflect.Value
	if o.defaults != nil {
		defaults = reflect.Indirect(reflect.ValueOf(o.defaults))
		if defaults.Type() != t {
			return nil, fmt.Errorf("fields: defaults instance is %s, want %s", defaults.Type(), t)
		}
	}

	var specs []Spec
	for _, sf := range reflect.VisibleFields(t) {
		if sf.Anonymous || sf.PkgPath != "" {
			continue
		}
		tag := parseFormTag(sf.Tag.Get("form"))
		if tag.skip {
			continue
		}
		name := wireName(sf)
		if name == "" {
			continue
		}
		spec := Spec{
			Name:     name,
			GoName:   sf.Name,
			Label:    labelFor(name),
			Help:     sf.Tag.Get("help"),
			Type:     sf.Type,
			Required: tag.required,
			Default:  Missing,
			Format:   tag.format,
			Min:      tag.min,
			Max:      tag.max,
			index:    sf.Index,
		}
		if err := classify(&spec, sf.Type, tag, o); err != nil {
			return nil, fmt.Errorf("fields: %s: %w", name, err)
		}
		if defaults.IsValid() && !spec.Required {
			spec.Default = defaultFrom(defaults.FieldByIndex(sf.Index), spec)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// classify assigns the editor category. Overrides from options and tags win
// over the type switch so path and json-or-path fields keep their special
// editors even though they are plain strings underneath.
func classify(spec *Spec, t reflect.Type, tag formTag, o options) error {
	if tag.kind == "json-or-path" || o.jsonOrPath[spec.Name] {
		spec.Kind = KindJSONOrPath
		return nil
	}
	if format, ok := o.pathFields[spec.Name]; ok {
		spec.Format = format
	}
	if t.Kind() == reflect.Pointer {
		spec.Optional = true
		t = t.Elem()
	}
	if len(tag.enum) > 0 {
		if t.Kind() != reflect.String {
			return fmt.Errorf("enum tag on non-string type %s", t)
		}
		spec.Kind = KindEnum
		spec.Enum = tag.enum
		return nil
	}
	if values := enumValues(t); len(values) > 0 {
		spec.Kind = KindEnum
		spec.Enum = values
		return nil
	}
	switch t.Kind() {
	case reflect.Bool:
		spec.Kind = KindBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		spec.Kind = KindInt
	case reflect.Float32, reflect.Float64:
		spec.Kind = KindFloat
	case reflect.Map, reflect.Interface:
		spec.Kind = KindJSON
	case reflect.Struct:
		spec.Kind = KindObject
	case reflect.String:
		spec.Kind = KindString
	default:
		spec.Kind = KindString
	}
	return nil
}

func enumValues(t reflect.Type) []string {
	enumType := reflect.TypeOf((*Enumerated)(nil)).Elem()
	if t.Implements(enumType) {
		return reflect.Zero(t).Interface().(Enumerated).EnumValues()
	}
	if reflect.PointerTo(t).Implements(enumType) {
		return reflect.New(t).Interface().(Enumerated).EnumValues()
	}
	return nil
}

// defaultFrom converts the instance's field value to the wire shape used by
// bindings: pointers collapse to nil or their element, named enums to plain
// strings.
func defaultFrom(v reflect.Value, spec Spec) any {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	switch spec.Kind {
	case KindEnum:
		return v.String()
	case KindJSON, KindJSONOrPath, KindObject:
		return wireValue(v.Interface())
	default:
		return v.Interface()
	}
}

type formTag struct {
	skip     bool
	required bool
	kind     string
	format   string
	enum     []string
	min      *float64
	max      *float64
}

func parseFormTag(raw string) formTag {
	var tag formTag
	if raw == "-" {
		tag.skip = true
		return tag
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, hasValue := strings.Cut(part, "=")
		switch key {
		case "required":
			tag.required = true
		case "kind":
			tag.kind = value
		case "format":
			tag.format = value
		case "enum":
			if hasValue {
				tag.enum = strings.Split(value, "|")
			}
		case "min":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				tag.min = &f
			}
		case "max":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				tag.max = &f
			}
		}
	}
	return tag
}

func wireName(sf reflect.StructField) string {
	for _, key := range []string{"yaml", "json"} {
		if tag, ok := sf.Tag.Lookup(key); ok {
			name, _, _ := strings.Cut(tag, ",")
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
	}
	return snakeCase(sf.Name)
}

func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func labelFor(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' })
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

package fields

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Binding couples a Spec with closures that read and write the field on one
// struct instance. Set accepts loosely typed input (prompt strings, decoded
// JSON) and coerces it; Reset restores the default, or a category fallback
// when no default is known.
type Binding struct {
	Spec  Spec
	Get   func() any
	Set   func(any) error
	Reset func() error
}

// IsMissing reports whether v is the Missing sentinel.
func IsMissing(v any) bool {
	_, ok := v.(missingValue)
	return ok
}

// Bind attaches a Spec to a field of target, which must be a non-nil pointer
// to the struct the Spec was listed from.
func Bind(target any, spec Spec) (Binding, error) {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return Binding{}, fmt.Errorf("fields: target must be a non-nil struct pointer, got %T", target)
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return Binding{}, fmt.Errorf("fields: target must point at a struct, got %T", target)
	}
	index := spec.index
	if len(index) == 0 {
		sf, ok := v.Type().FieldByName(spec.GoName)
		if !ok {
			return Binding{}, fmt.Errorf("fields: %s has no field %s", v.Type(), spec.GoName)
		}
		index = sf.Index
	}
	field := v.FieldByIndex(index)
	if !field.CanSet() {
		return Binding{}, fmt.Errorf("fields: field %s is not settable", spec.GoName)
	}

	set := func(value any) error {
		coerced, err := coerce(value, spec, field.Type())
		if err != nil {
			return err
		}
		field.Set(coerced)
		return nil
	}
	return Binding{
		Spec: spec,
		Get:  func() any { return valueOf(field, spec) },
		Set:  set,
		Reset: func() error {
			if !IsMissing(spec.Default) {
				return set(spec.Default)
			}
			switch {
			case spec.Optional:
				return set(nil)
			case spec.Kind == KindEnum && len(spec.Enum) > 0:
				return set(spec.Enum[0])
			case spec.Kind == KindJSON || spec.Kind == KindJSONOrPath:
				return set(map[string]any{})
			default:
				field.Set(reflect.Zero(field.Type()))
				return nil
			}
		},
	}, nil
}

// BindAll lists the target's fields and binds each one, in declaration order.
func BindAll(target any, opts ...Option) ([]Binding, error) {
	specs, err := List(reflect.TypeOf(target), opts...)
	if err != nil {
		return nil, err
	}
	bindings := make([]Binding, 0, len(specs))
	for _, spec := range specs {
		b, err := Bind(target, spec)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}
	return bindings, nil
}

// Apply writes a wire-name keyed value map onto target. Names without a
// matching field are skipped.
func Apply(target any, values map[string]any, opts ...Option) error {
	bindings, err := BindAll(target, opts...)
	if err != nil {
		return err
	}
	for _, b := range bindings {
		value, ok := values[b.Spec.Name]
		if !ok {
			continue
		}
		if err := b.Set(value); err != nil {
			return err
		}
	}
	return nil
}

// valueOf converts the stored field to its wire shape: pointers collapse to
// nil or their element, enums to strings, json-ish kinds to decoded JSON.
func valueOf(field reflect.Value, spec Spec) any {
	v := field
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

// wireValue round-trips a value through JSON, yielding plain maps, slices,
// strings, and float64 numbers. Types with custom marshalers come back in
// their wire shape.
func wireValue(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func coerce(value any, spec Spec, t reflect.Type) (reflect.Value, error) {
	if IsMissing(value) {
		return reflect.Value{}, fmt.Errorf("field %q has no value", spec.Name)
	}
	elem := t
	wrap := t.Kind() == reflect.Pointer
	if wrap {
		elem = t.Elem()
	}
	if value == nil || (spec.Optional && isBlankString(value)) {
		switch {
		case wrap:
			return reflect.Zero(t), nil
		case spec.Kind == KindJSON:
			return reflect.Zero(t), nil
		case spec.Kind == KindJSONOrPath:
			return decodeJSONInto([]byte("null"), elem, spec)
		default:
			return reflect.Value{}, fmt.Errorf("field %q is not optional", spec.Name)
		}
	}

	out, err := coerceElem(value, spec, elem)
	if err != nil {
		return reflect.Value{}, err
	}
	if !wrap {
		return out, nil
	}
	p := reflect.New(elem)
	p.Elem().Set(out)
	return p, nil
}

func coerceElem(value any, spec Spec, elem reflect.Type) (reflect.Value, error) {
	switch spec.Kind {
	case KindBool:
		return coerceBool(value, spec, elem)
	case KindInt:
		return coerceInt(value, spec, elem)
	case KindFloat:
		return coerceFloat(value, spec, elem)
	case KindEnum:
		return coerceEnum(value, spec, elem)
	case KindJSON:
		return coerceJSON(value, spec, elem)
	case KindJSONOrPath:
		return coerceJSONOrPath(value, spec, elem)
	case KindObject:
		return coerceObject(value, spec, elem)
	default:
		s, ok := value.(string)
		if !ok {
			return reflect.Value{}, fmt.Errorf("field %q expects a string, got %T", spec.Name, value)
		}
		out := reflect.New(elem).Elem()
		out.SetString(s)
		return out, nil
	}
}

func coerceBool(value any, spec Spec, elem reflect.Type) (reflect.Value, error) {
	var b bool
	switch v := value.(type) {
	case bool:
		b = v
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return reflect.Value{}, fmt.Errorf("field %q expects a boolean, got %q", spec.Name, v)
		}
		b = parsed
	default:
		return reflect.Value{}, fmt.Errorf("field %q expects a boolean, got %T", spec.Name, value)
	}
	out := reflect.New(elem).Elem()
	out.SetBool(b)
	return out, nil
}

func coerceInt(value any, spec Spec, elem reflect.Type) (reflect.Value, error) {
	n, err := toInt64(value)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("field %q expects an integer, got %v", spec.Name, value)
	}
	if err := checkBounds(float64(n), spec); err != nil {
		return reflect.Value{}, err
	}
	out := reflect.New(elem).Elem()
	switch elem.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if n < 0 || out.OverflowUint(uint64(n)) {
			return reflect.Value{}, fmt.Errorf("field %q cannot hold %d", spec.Name, n)
		}
		out.SetUint(uint64(n))
	default:
		if out.OverflowInt(n) {
			return reflect.Value{}, fmt.Errorf("field %q cannot hold %d", spec.Name, n)
		}
		out.SetInt(n)
	}
	return out, nil
}

func coerceFloat(value any, spec Spec, elem reflect.Type) (reflect.Value, error) {
	f, err := toFloat64(value)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("field %q expects a number, got %v", spec.Name, value)
	}
	if err := checkBounds(f, spec); err != nil {
		return reflect.Value{}, err
	}
	out := reflect.New(elem).Elem()
	if out.OverflowFloat(f) {
		return reflect.Value{}, fmt.Errorf("field %q cannot hold %v", spec.Name, f)
	}
	out.SetFloat(f)
	return out, nil
}

func coerceEnum(value any, spec Spec, elem reflect.Type) (reflect.Value, error) {
	s, err := toString(value)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("field %q expects one of %s", spec.Name, strings.Join(spec.Enum, ", "))
	}
	s = strings.TrimSpace(s)
	for _, allowed := range spec.Enum {
		if s == allowed {
			out := reflect.New(elem).Elem()
			out.SetString(s)
			return out, nil
		}
	}
	return reflect.Value{}, fmt.Errorf("field %q must be one of %s, got %q", spec.Name, strings.Join(spec.Enum, ", "), s)
}

func coerceJSON(value any, spec Spec, elem reflect.Type) (reflect.Value, error) {
	var m map[string]any
	switch v := value.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return reflect.Zero(elem), nil
		}
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
			return reflect.Value{}, fmt.Errorf("invalid JSON for %q: %w", spec.Name, err)
		}
		obj, ok := decoded.(map[string]any)
		if !ok {
			return reflect.Value{}, fmt.Errorf("field %q expects a JSON object", spec.Name)
		}
		m = obj
	case map[string]any:
		m = deepCopyJSON(v)
	default:
		return reflect.Value{}, fmt.Errorf("field %q expects a JSON object, got %T", spec.Name, value)
	}
	if elem == reflect.TypeOf(map[string]any(nil)) || elem.Kind() == reflect.Interface {
		return reflect.ValueOf(m), nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("field %q: %w", spec.Name, err)
	}
	return decodeJSONInto(raw, elem, spec)
}

// coerceJSONOrPath resolves the two-shape union the way the worker does:
// text that parses as a JSON object is stored inline, anything else is kept
// as a path to a JSON file.
func coerceJSONOrPath(value any, spec Spec, elem reflect.Type) (reflect.Value, error) {
	var wire any
	switch v := value.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			wire = map[string]any{}
			break
		}
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			if obj, ok := decoded.(map[string]any); ok {
				wire = obj
				break
			}
		}
		wire = trimmed
	case map[string]any:
		wire = v
	default:
		wire = v
	}
	raw, err := json.Marshal(wire)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("field %q: %w", spec.Name, err)
	}
	return decodeJSONInto(raw, elem, spec)
}

func coerceObject(value any, spec Spec, elem reflect.Type) (reflect.Value, error) {
	if v := reflect.ValueOf(value); v.IsValid() && v.Type() == elem {
		return v, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("field %q: %w", spec.Name, err)
	}
	return decodeJSONInto(raw, elem, spec)
}

func decodeJSONInto(raw []byte, elem reflect.Type, spec Spec) (reflect.Value, error) {
	p := reflect.New(elem)
	if err := json.Unmarshal(raw, p.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("field %q: %w", spec.Name, err)
	}
	return p.Elem(), nil
}

func isBlankString(value any) bool {
	s, ok := value.(string)
	return ok && strings.TrimSpace(s) == ""
}

func checkBounds(f float64, spec Spec) error {
	if spec.Min != nil && f < *spec.Min {
		return fmt.Errorf("field %q must be at least %s", spec.Name, formatBound(*spec.Min))
	}
	if spec.Max != nil && f > *spec.Max {
		return fmt.Errorf("field %q must be at most %s", spec.Name, formatBound(*spec.Max))
	}
	return nil
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", v)
		}
		return int64(v), nil
	case float32:
		return floatToInt64(float64(v))
	case float64:
		return floatToInt64(v)
	case string:
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", value)
	}
}

func floatToInt64(f float64) (int64, error) {
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	return int64(f), nil
}

func toFloat64(value any) (float64, error) {
	switch v := value.(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		n, err := toInt64(value)
		if err != nil {
			return 0, err
		}
		return float64(n), nil
	}
}

func toString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("unsupported type %T", value)
	}
}

func deepCopyJSON(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		switch t := v.(type) {
		case map[string]any:
			out[k] = deepCopyJSON(t)
		case []any:
			list := make([]any, len(t))
			for i, e := range t {
				if m, ok := e.(map[string]any); ok {
					list[i] = deepCopyJSON(m)
				} else {
					list[i] = e
				}
			}
			out[k] = list
		default:
			out[k] = v
		}
	}
	return out
}

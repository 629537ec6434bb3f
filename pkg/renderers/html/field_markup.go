package html

import (
	"encoding/json"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/FlowRegSuite/flowreg-session-gui/pkg/model"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/widgets"
)

// widgetText is the fallback control for fields no registry rule claims.
const widgetText = "text"

// Name suffixes for the composite json-or-path control. The three inputs
// post back together and the decoder reassembles them from the mode value.
const (
	modeSuffix   = "__mode"
	inlineSuffix = "__inline"
	pathSuffix   = "__path"
)

type markupBuilder struct {
	registry *widgets.Registry
	values   map[string]any
	errors   map[string][]string
}

func newMarkupBuilder(registry *widgets.Registry, values map[string]any, errors map[string][]string) *markupBuilder {
	if registry == nil {
		registry = widgets.NewRegistry()
	}
	return &markupBuilder{registry: registry, values: values, errors: errors}
}

func (b *markupBuilder) field(field model.Field, prefix string) string {
	path := joinPath(prefix, field.Name)

	if field.Type == model.FieldTypeObject && len(field.Nested) > 0 {
		return b.group(field, path)
	}

	widget, ok := b.registry.Resolve(field)
	if !ok || widget == "" {
		widget = widgetText
	}

	var builder strings.Builder
	builder.Grow(512)

	builder.WriteString(`<div class="sf-field sf-field-`)
	builder.WriteString(html.EscapeString(widget))
	builder.WriteString(`" data-field="`)
	builder.WriteString(html.EscapeString(path))
	builder.WriteString(`" data-widget="`)
	builder.WriteString(html.EscapeString(widget))
	builder.WriteString("\">\n")

	if widget != widgets.WidgetToggle {
		builder.WriteString(`    <label class="sf-label" for="`)
		builder.WriteString(idFor(path))
		builder.WriteString(`">`)
		builder.WriteString(html.EscapeString(labelFor(field)))
		if field.Required {
			builder.WriteString(`<span class="sf-required">*</span>`)
		}
		builder.WriteString("</label>\n")
	}

	control := b.control(field, path, widget)
	for _, line := range strings.Split(control, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		builder.WriteString("    ")
		builder.WriteString(line)
		builder.WriteByte('\n')
	}

	if desc := strings.TrimSpace(field.Description); desc != "" {
		builder.WriteString(`    <p class="sf-help">`)
		builder.WriteString(sanitizeMarkup(desc))
		builder.WriteString("</p>\n")
	}

	b.writeErrors(&builder, path)

	builder.WriteString("</div>\n")
	return builder.String()
}

// group renders a struct-backed field as a nested fieldset with its own
// legend; children keep the dotted path prefix so posted names stay unique.
func (b *markupBuilder) group(field model.Field, path string) string {
	var builder strings.Builder
	builder.Grow(1024)

	builder.WriteString(`<fieldset class="sf-group" data-field="`)
	builder.WriteString(html.EscapeString(path))
	builder.WriteString("\">\n")
	builder.WriteString(`    <legend class="sf-legend">`)
	builder.WriteString(html.EscapeString(labelFor(field)))
	builder.WriteString("</legend>\n")

	if desc := strings.TrimSpace(field.Description); desc != "" {
		builder.WriteString(`    <p class="sf-help">`)
		builder.WriteString(sanitizeMarkup(desc))
		builder.WriteString("</p>\n")
	}

	for _, nested := range field.Nested {
		for _, line := range strings.Split(b.field(nested, path), "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			builder.WriteString("    ")
			builder.WriteString(line)
			builder.WriteByte('\n')
		}
	}

	b.writeErrors(&builder, path)

	builder.WriteString("</fieldset>\n")
	return builder.String()
}

func (b *markupBuilder) control(field model.Field, path, widget string) string {
	switch widget {
	case widgets.WidgetToggle:
		return b.toggle(field, path)
	case widgets.WidgetSelect:
		return b.selectBox(field, path)
	case widgets.WidgetNumber:
		return b.number(field, path)
	case widgets.WidgetPath:
		return b.pathInput(field, path)
	case widgets.WidgetJSONEditor:
		return b.jsonEditor(field, path)
	case widgets.WidgetJSONOrPath:
		return b.jsonOrPath(field, path)
	case widgets.WidgetTextArea:
		return b.textArea(field, path)
	default:
		return b.textInput(field, path)
	}
}

func (b *markupBuilder) toggle(field model.Field, path string) string {
	var builder strings.Builder
	builder.WriteString(`<label class="sf-toggle"><input type="checkbox" id="`)
	builder.WriteString(idFor(path))
	builder.WriteString(`" name="`)
	builder.WriteString(html.EscapeString(path))
	builder.WriteString(`" value="true"`)
	if on, _ := b.currentValue(field, path).(bool); on {
		builder.WriteString(` checked`)
	}
	builder.WriteString(`> `)
	builder.WriteString(html.EscapeString(labelFor(field)))
	builder.WriteString(`</label>`)
	return builder.String()
}

func (b *markupBuilder) selectBox(field model.Field, path string) string {
	selected := formatScalar(b.currentValue(field, path))

	var builder strings.Builder
	builder.WriteString(`<select class="sf-input sf-select" id="`)
	builder.WriteString(idFor(path))
	builder.WriteString(`" name="`)
	builder.WriteString(html.EscapeString(path))
	builder.WriteString(`"`)
	if field.Required {
		builder.WriteString(` required`)
	}
	builder.WriteString(">\n")

	if field.Optional || !field.Required {
		builder.WriteString(`    <option value=""`)
		if selected == "" {
			builder.WriteString(` selected`)
		}
		builder.WriteString("></option>\n")
	}
	for _, option := range field.Enum {
		builder.WriteString(`    <option value="`)
		builder.WriteString(html.EscapeString(option))
		builder.WriteString(`"`)
		if option == selected {
			builder.WriteString(` selected`)
		}
		builder.WriteString(`>`)
		builder.WriteString(html.EscapeString(option))
		builder.WriteString("</option>\n")
	}
	builder.WriteString(`</select>`)
	return builder.String()
}

func (b *markupBuilder) number(field model.Field, path string) string {
	var builder strings.Builder
	builder.WriteString(`<input type="number" class="sf-input sf-number" id="`)
	builder.WriteString(idFor(path))
	builder.WriteString(`" name="`)
	builder.WriteString(html.EscapeString(path))
	builder.WriteString(`"`)
	if value := formatScalar(b.currentValue(field, path)); value != "" {
		builder.WriteString(attr("value", value))
	}
	if field.Type == model.FieldTypeInteger {
		builder.WriteString(` step="1"`)
	} else {
		builder.WriteString(` step="any"`)
	}
	if min, ok := ruleParam(field, model.ValidationRuleMin, "value"); ok {
		builder.WriteString(attr("min", min))
	}
	if max, ok := ruleParam(field, model.ValidationRuleMax, "value"); ok {
		builder.WriteString(attr("max", max))
	}
	if field.Required {
		builder.WriteString(` required`)
	}
	builder.WriteString(`>`)
	return builder.String()
}

func (b *markupBuilder) pathInput(field model.Field, path string) string {
	kind := "file"
	if strings.EqualFold(strings.TrimSpace(field.Format), "dir-path") {
		kind = "dir"
	}

	var builder strings.Builder
	builder.WriteString(`<input type="text" class="sf-input sf-path" id="`)
	builder.WriteString(idFor(path))
	builder.WriteString(`" name="`)
	builder.WriteString(html.EscapeString(path))
	builder.WriteString(`" data-path-kind="`)
	builder.WriteString(kind)
	builder.WriteString(`"`)
	if value := formatScalar(b.currentValue(field, path)); value != "" {
		builder.WriteString(attr("value", value))
	}
	if field.Placeholder != "" {
		builder.WriteString(attr("placeholder", field.Placeholder))
	}
	if field.Required {
		builder.WriteString(` required`)
	}
	builder.WriteString(` spellcheck="false">`)
	return builder.String()
}

func (b *markupBuilder) jsonEditor(field model.Field, path string) string {
	var builder strings.Builder
	builder.WriteString(`<textarea class="sf-input sf-json" id="`)
	builder.WriteString(idFor(path))
	builder.WriteString(`" name="`)
	builder.WriteString(html.EscapeString(path))
	builder.WriteString(`" rows="6"`)
	if field.Placeholder != "" {
		builder.WriteString(attr("placeholder", field.Placeholder))
	}
	builder.WriteString(` spellcheck="false">`)
	if value := b.currentValue(field, path); value != nil {
		builder.WriteString(html.EscapeString(jsonText(value)))
	}
	builder.WriteString(`</textarea>`)
	return builder.String()
}

// jsonOrPath renders the composite control: a mode switch plus one input per
// mode. The current value's shape picks the active mode; maps mean inline
// JSON and strings mean a file path.
func (b *markupBuilder) jsonOrPath(field model.Field, path string) string {
	value := b.currentValue(field, path)
	inlineText := ""
	pathText := ""
	mode := "inline"
	switch v := value.(type) {
	case map[string]any:
		inlineText = jsonText(v)
	case string:
		mode = "path"
		pathText = v
	}

	var builder strings.Builder
	builder.WriteString(`<div class="sf-json-or-path" id="`)
	builder.WriteString(idFor(path))
	builder.WriteString("\">\n")

	builder.WriteString(`    <label class="sf-choice"><input type="radio" name="`)
	builder.WriteString(html.EscapeString(path + modeSuffix))
	builder.WriteString(`" value="inline"`)
	if mode == "inline" {
		builder.WriteString(` checked`)
	}
	builder.WriteString("> Inline JSON</label>\n")

	builder.WriteString(`    <label class="sf-choice"><input type="radio" name="`)
	builder.WriteString(html.EscapeString(path + modeSuffix))
	builder.WriteString(`" value="path"`)
	if mode == "path" {
		builder.WriteString(` checked`)
	}
	builder.WriteString("> JSON file path</label>\n")

	builder.WriteString(`    <textarea class="sf-input sf-json" name="`)
	builder.WriteString(html.EscapeString(path + inlineSuffix))
	builder.WriteString(`" rows="6" spellcheck="false">`)
	builder.WriteString(html.EscapeString(inlineText))
	builder.WriteString("</textarea>\n")

	builder.WriteString(`    <input type="text" class="sf-input sf-path" name="`)
	builder.WriteString(html.EscapeString(path + pathSuffix))
	builder.WriteString(`" data-path-kind="file"`)
	if pathText != "" {
		builder.WriteString(attr("value", pathText))
	}
	builder.WriteString(" spellcheck=\"false\">\n")

	builder.WriteString(`</div>`)
	return builder.String()
}

func (b *markupBuilder) textArea(field model.Field, path string) string {
	var builder strings.Builder
	builder.WriteString(`<textarea class="sf-input sf-textarea" id="`)
	builder.WriteString(idFor(path))
	builder.WriteString(`" name="`)
	builder.WriteString(html.EscapeString(path))
	builder.WriteString(`" rows="4"`)
	if field.Placeholder != "" {
		builder.WriteString(attr("placeholder", field.Placeholder))
	}
	if field.Required {
		builder.WriteString(` required`)
	}
	builder.WriteString(`>`)
	builder.WriteString(html.EscapeString(formatScalar(b.currentValue(field, path))))
	builder.WriteString(`</textarea>`)
	return builder.String()
}

func (b *markupBuilder) textInput(field model.Field, path string) string {
	var builder strings.Builder
	builder.WriteString(`<input type="text" class="sf-input" id="`)
	builder.WriteString(idFor(path))
	builder.WriteString(`" name="`)
	builder.WriteString(html.EscapeString(path))
	builder.WriteString(`"`)
	if value := formatScalar(b.currentValue(field, path)); value != "" {
		builder.WriteString(attr("value", value))
	}
	if field.Placeholder != "" {
		builder.WriteString(attr("placeholder", field.Placeholder))
	}
	if pattern, ok := ruleParam(field, model.ValidationRulePattern, "pattern"); ok {
		builder.WriteString(attr("pattern", pattern))
	}
	if minLen, ok := ruleParam(field, model.ValidationRuleMinLength, "value"); ok {
		builder.WriteString(attr("minlength", minLen))
	}
	if maxLen, ok := ruleParam(field, model.ValidationRuleMaxLength, "value"); ok {
		builder.WriteString(attr("maxlength", maxLen))
	}
	if field.Required {
		builder.WriteString(` required`)
	}
	builder.WriteString(`>`)
	return builder.String()
}

func (b *markupBuilder) writeErrors(builder *strings.Builder, path string) {
	messages := b.errors[path]
	if len(messages) == 0 {
		return
	}
	builder.WriteString("    <ul class=\"sf-errors\">\n")
	for _, message := range messages {
		builder.WriteString(`        <li>`)
		builder.WriteString(html.EscapeString(message))
		builder.WriteString("</li>\n")
	}
	builder.WriteString("    </ul>\n")
}

// currentValue prefers a posted-back value over the model default. Values
// are looked up by the exact dotted path first, then by walking nested maps.
func (b *markupBuilder) currentValue(field model.Field, path string) any {
	if value, ok := valueAt(b.values, path); ok {
		return value
	}
	return field.Default
}

func valueAt(values map[string]any, path string) (any, bool) {
	if len(values) == 0 || path == "" {
		return nil, false
	}
	if value, ok := values[path]; ok {
		return value, true
	}
	segments := strings.Split(path, ".")
	current := any(values)
	for _, segment := range segments {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func labelFor(field model.Field) string {
	if label := strings.TrimSpace(field.Label); label != "" {
		return label
	}
	return field.Name
}

func idFor(path string) string {
	return "sf-" + strings.ReplaceAll(html.EscapeString(path), ".", "-")
}

func attr(name, value string) string {
	return ` ` + name + `="` + html.EscapeString(value) + `"`
}

func ruleParam(field model.Field, kind, param string) (string, bool) {
	for _, rule := range field.Validations {
		if rule.Kind != kind {
			continue
		}
		value, ok := rule.Params[param]
		if !ok || strings.TrimSpace(value) == "" {
			return "", false
		}
		return value, true
	}
	return "", false
}

func formatScalar(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func jsonText(value any) string {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(payload)
}

func joinPath(parent, child string) string {
	parent = strings.TrimSpace(parent)
	child = strings.TrimSpace(child)
	if parent == "" {
		return child
	}
	if child == "" {
		return parent
	}
	return parent + "." + child
}

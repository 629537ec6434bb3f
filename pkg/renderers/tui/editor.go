package tui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/FlowRegSuite/flowreg-session-gui/pkg/model"
	"github.com/FlowRegSuite/flowreg-session-gui/pkg/render"
)

// numberLimit bounds every numeric field the editor accepts. Parsed values
// outside [-numberLimit, numberLimit] are clamped rather than rejected.
const numberLimit = 1e9

// floatDecimals caps how many fraction digits numeric defaults are displayed
// with; trailing zeros are trimmed.
const floatDecimals = 6

const (
	flowSourceInline = "Inline JSON"
	flowSourceFile   = "JSON file path"
)

// Editor implements render.Renderer for terminal-driven editing sessions. It
// walks the form model in order, prompting per field category and collecting
// answers into a dotted-path state.
type Editor struct {
	driver       PromptDriver
	outputFormat OutputFormat
	skipConfirm  bool
	theme        Theme
}

// New constructs a terminal editor with defaults (survey driver, JSON output).
func New(options ...Option) (render.Renderer, error) {
	driver, err := newSurveyDriver()
	if err != nil {
		return nil, err
	}

	e := &Editor{
		driver:       driver,
		outputFormat: OutputFormatJSON,
	}

	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(e)
	}

	if e.driver == nil {
		e.driver, err = newSurveyDriver()
		if err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Name reports the renderer identifier.
func (e *Editor) Name() string {
	return "tui"
}

// ContentType reports the serialization format used by Render.
func (e *Editor) ContentType() string {
	if e.outputFormat == OutputFormatPrettyText {
		return "text/plain"
	}
	return "application/json"
}

// Render prompts for every field in the form and returns the collected values.
// Prefilled values and validation errors arrive through opts; answers are
// serialized according to the configured output format.
func (e *Editor) Render(ctx context.Context, form model.FormModel, opts render.RenderOptions) ([]byte, error) {
	if ctx == nil {
		return nil, errors.New("tui: context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.driver == nil {
		return nil, errors.New("tui: prompt driver is nil")
	}

	state := NewState(opts.Values, opts.Errors)
	rulesCache := make(map[string]validationRules)

	if form.Title != "" {
		e.info(ctx, form.Title)
	}

	titles := sectionTitles(form)
	lastSection := ""
	for _, field := range form.Fields {
		if section := strings.TrimSpace(field.Metadata["layout.section"]); section != "" && section != lastSection {
			if title := titles[section]; title != "" {
				e.info(ctx, "-- "+title+" --")
			}
			lastSection = section
		}
		if err := e.promptField(ctx, field, field.Name, state, rulesCache); err != nil {
			return nil, err
		}
	}

	if !e.skipConfirm {
		message := "Save configuration?"
		if form.Name != "" {
			message = fmt.Sprintf("Save %s configuration?", form.Name)
		}
		ok, err := e.driver.Confirm(ctx, ConfirmConfig{Message: message, Default: true})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrAborted
		}
	}

	return e.serialize(state.Values())
}

func (e *Editor) promptField(ctx context.Context, field model.Field, path string, state *State, rulesCache map[string]validationRules) error {
	for _, msg := range state.ErrorsFor(path) {
		e.invalid(ctx, path, msg)
	}

	switch field.Type {
	case model.FieldTypeBoolean:
		return e.promptBool(ctx, field, path, state)
	case model.FieldTypeInteger, model.FieldTypeNumber:
		return e.promptNumber(ctx, field, path, state, rulesCache)
	case model.FieldTypeObject:
		return e.promptObject(ctx, field, path, state, rulesCache)
	case model.FieldTypeJSON:
		return e.promptJSON(ctx, field, path, state)
	case model.FieldTypeJSONOrPath:
		return e.promptJSONOrPath(ctx, field, path, state)
	default:
		if len(field.Enum) > 0 {
			return e.promptEnum(ctx, field, path, state)
		}
		if isPathField(field) {
			return e.promptPath(ctx, field, path, state, rulesCache)
		}
		return e.promptString(ctx, field, path, state, rulesCache)
	}
}

func (e *Editor) promptBool(ctx context.Context, field model.Field, path string, state *State) error {
	resp, err := e.driver.Confirm(ctx, ConfirmConfig{
		Message: e.promptMessage(field),
		Default: boolDefault(state, path, field.Default),
		Help:    field.Description,
	})
	if err != nil {
		return err
	}
	return state.SetValue(path, resp)
}

func (e *Editor) promptNumber(ctx context.Context, field model.Field, path string, state *State, rulesCache map[string]validationRules) error {
	rules := collectValidationRules(field, rulesCache)
	integer := field.Type == model.FieldTypeInteger
	defaultStr := numberDefault(state, path, field.Default, integer)

	for {
		input, err := e.driver.Input(ctx, InputConfig{
			Message: e.promptMessage(field),
			Default: defaultStr,
			Help:    field.Description,
		})
		if err != nil {
			return err
		}

		trimmed := strings.TrimSpace(input)
		if trimmed == "" {
			if rules.required {
				e.invalid(ctx, path, "required")
				continue
			}
			return state.SetValue(path, nil)
		}

		var parsed any
		if integer {
			i, err := strconv.ParseInt(trimmed, 10, 64)
			if err != nil {
				e.invalid(ctx, path, "expects an integer")
				continue
			}
			parsed = clampInt(i)
		} else {
			f, err := strconv.ParseFloat(trimmed, 64)
			if err != nil {
				e.invalid(ctx, path, "expects a number")
				continue
			}
			parsed = clampFloat(f)
		}

		if err := rules.validateNumber(parsed); err != nil {
			e.invalid(ctx, path, err)
			continue
		}

		return state.SetValue(path, parsed)
	}
}

func (e *Editor) promptEnum(ctx context.Context, field model.Field, path string, state *State) error {
	options := field.Enum
	defaultIdx := 0
	if v, ok := state.GetValue(path); ok {
		if s, ok := v.(string); ok {
			if idx := indexOf(options, s); idx >= 0 {
				defaultIdx = idx
			}
		}
	} else if s, ok := field.Default.(string); ok {
		if idx := indexOf(options, s); idx >= 0 {
			defaultIdx = idx
		}
	}

	for {
		idx, err := e.driver.Select(ctx, SelectConfig{
			Message:      e.promptMessage(field),
			Options:      options,
			DefaultIndex: defaultIdx,
			Help:         field.Description,
		})
		if err != nil {
			return err
		}
		if idx < 0 || idx >= len(options) {
			e.invalid(ctx, path, "not one of the accepted values")
			continue
		}
		return state.SetValue(path, options[idx])
	}
}

func (e *Editor) promptPath(ctx context.Context, field model.Field, path string, state *State, rulesCache map[string]validationRules) error {
	rules := collectValidationRules(field, rulesCache)
	help := field.Description
	if hint := pathHint(field.Format); hint != "" {
		help = joinHelp(help, hint)
	}

	for {
		input, err := e.driver.Input(ctx, InputConfig{
			Message: e.promptMessage(field),
			Default: stringDefault(state, path, field.Default),
			Help:    help,
		})
		if err != nil {
			return err
		}

		value := strings.TrimSpace(input)
		if value == "" {
			if rules.required {
				e.invalid(ctx, path, "required")
				continue
			}
			if field.Optional {
				return state.SetValue(path, nil)
			}
			return state.SetValue(path, "")
		}
		if err := rules.validateString(value); err != nil {
			e.invalid(ctx, path, err)
			continue
		}

		// Missing targets are fine; the pipeline may create them later.
		if _, err := os.Stat(value); errors.Is(err, os.ErrNotExist) {
			e.info(ctx, fmt.Sprintf("%s: %s does not exist yet", path, value))
		}
		return state.SetValue(path, value)
	}
}

func (e *Editor) promptString(ctx context.Context, field model.Field, path string, state *State, rulesCache map[string]validationRules) error {
	rules := collectValidationRules(field, rulesCache)
	multiline := field.Format == "textarea" || field.Metadata["widget"] == "textarea"

	for {
		var (
			input string
			err   error
		)
		if multiline {
			input, err = e.driver.TextArea(ctx, TextAreaConfig{
				Message: e.promptMessage(field),
				Default: stringDefault(state, path, field.Default),
				Help:    field.Description,
			})
		} else {
			input, err = e.driver.Input(ctx, InputConfig{
				Message: e.promptMessage(field),
				Default: stringDefault(state, path, field.Default),
				Help:    field.Description,
			})
		}
		if err != nil {
			return err
		}

		if strings.TrimSpace(input) == "" {
			if rules.required {
				e.invalid(ctx, path, "required")
				continue
			}
			if field.Optional {
				return state.SetValue(path, nil)
			}
			return state.SetValue(path, "")
		}
		if err := rules.validateString(input); err != nil {
			e.invalid(ctx, path, err)
			continue
		}
		return state.SetValue(path, input)
	}
}

func (e *Editor) promptJSON(ctx context.Context, field model.Field, path string, state *State) error {
	for {
		input, err := e.driver.TextArea(ctx, TextAreaConfig{
			Message: e.promptMessage(field),
			Default: jsonDefault(state, path, field.Default),
			Help:    field.Description,
		})
		if err != nil {
			return err
		}

		trimmed := strings.TrimSpace(input)
		if trimmed == "" {
			if field.Optional {
				return state.SetValue(path, nil)
			}
			return state.SetValue(path, map[string]any{})
		}

		parsed, err := parseJSONObject(trimmed)
		if err != nil {
			e.invalid(ctx, path, "expects a JSON object")
			continue
		}
		return state.SetValue(path, parsed)
	}
}

// promptJSONOrPath edits fields that hold either an inline JSON mapping or a
// path to a JSON file. The current value's shape picks the default source:
// mappings select inline, strings select the file path.
func (e *Editor) promptJSONOrPath(ctx context.Context, field model.Field, path string, state *State) error {
	defaultIdx := 0
	inlineDefault := "{}"
	fileDefault := ""
	current, ok := state.GetValue(path)
	if !ok {
		current = field.Default
	}
	switch v := current.(type) {
	case map[string]any:
		if raw, err := json.Marshal(v); err == nil {
			inlineDefault = string(raw)
		}
	case string:
		if strings.TrimSpace(v) != "" {
			defaultIdx = 1
			fileDefault = v
		}
	}

	idx, err := e.driver.Select(ctx, SelectConfig{
		Message:      e.promptMessage(field) + " source",
		Options:      []string{flowSourceInline, flowSourceFile},
		DefaultIndex: defaultIdx,
		Help:         field.Description,
	})
	if err != nil {
		return err
	}

	if idx == 1 {
		for {
			input, err := e.driver.Input(ctx, InputConfig{
				Message: e.promptMessage(field) + " file",
				Default: fileDefault,
				Help:    joinHelp(field.Description, "path to a JSON file"),
			})
			if err != nil {
				return err
			}
			value := strings.TrimSpace(input)
			if value == "" {
				e.invalid(ctx, path, "file path required")
				continue
			}
			if _, err := os.Stat(value); errors.Is(err, os.ErrNotExist) {
				e.info(ctx, fmt.Sprintf("%s: %s does not exist yet", path, value))
			}
			return state.SetValue(path, value)
		}
	}

	for {
		input, err := e.driver.TextArea(ctx, TextAreaConfig{
			Message: e.promptMessage(field),
			Default: inlineDefault,
			Help:    field.Description,
		})
		if err != nil {
			return err
		}
		trimmed := strings.TrimSpace(input)
		if trimmed == "" {
			return state.SetValue(path, map[string]any{})
		}
		parsed, err := parseJSONObject(trimmed)
		if err != nil {
			e.invalid(ctx, path, "expects a JSON object")
			continue
		}
		return state.SetValue(path, parsed)
	}
}

func (e *Editor) promptObject(ctx context.Context, field model.Field, path string, state *State, rulesCache map[string]validationRules) error {
	for _, child := range field.Nested {
		childPath := path + "." + child.Name
		if err := e.promptField(ctx, child, childPath, state, rulesCache); err != nil {
			return err
		}
	}
	return nil
}

func (e *Editor) serialize(values map[string]any) ([]byte, error) {
	if e.outputFormat == OutputFormatPrettyText {
		return []byte(prettyPrint(values)), nil
	}
	return json.Marshal(values)
}

func (e *Editor) promptMessage(field model.Field) string {
	label := field.Label
	if label == "" {
		label = field.Name
	}
	if e.theme.PromptPrefix != "" {
		label = e.theme.PromptPrefix + " " + label
	}
	return label
}

func (e *Editor) info(ctx context.Context, msg string) {
	if e.theme.InfoPrefix != "" {
		msg = e.theme.InfoPrefix + " " + msg
	}
	_ = e.driver.Info(ctx, msg)
}

func (e *Editor) invalid(ctx context.Context, path string, problem any) {
	msg := fmt.Sprintf("Invalid %s: %v", path, problem)
	if e.theme.ErrorPrefix != "" {
		msg = e.theme.ErrorPrefix + " " + msg
	}
	_ = e.driver.Info(ctx, msg)
}

func isPathField(field model.Field) bool {
	return field.Format == "dir-path" || field.Format == "file-path"
}

func pathHint(format string) string {
	switch format {
	case "dir-path":
		return "directory path"
	case "file-path":
		return "file path"
	default:
		return ""
	}
}

func joinHelp(help, hint string) string {
	if help == "" {
		return hint
	}
	if hint == "" {
		return help
	}
	return help + " (" + hint + ")"
}

func sectionTitles(form model.FormModel) map[string]string {
	raw := strings.TrimSpace(form.Metadata["layout.sections"])
	if raw == "" {
		return nil
	}
	var sections []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(raw), &sections); err != nil {
		return nil
	}
	out := make(map[string]string, len(sections))
	for _, section := range sections {
		out[section.ID] = section.Title
	}
	return out
}

func parseJSONObject(raw string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func clampInt(v int64) int64 {
	if v > int64(numberLimit) {
		return int64(numberLimit)
	}
	if v < -int64(numberLimit) {
		return -int64(numberLimit)
	}
	return v
}

func clampFloat(v float64) float64 {
	if v > numberLimit {
		return numberLimit
	}
	if v < -numberLimit {
		return -numberLimit
	}
	return v
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', floatDecimals, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

func stringDefault(state *State, path string, def any) string {
	if v, ok := state.GetValue(path); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	if s, ok := def.(string); ok {
		return s
	}
	return ""
}

func boolDefault(state *State, path string, def any) bool {
	if v, ok := state.GetValue(path); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	if b, ok := def.(bool); ok {
		return b
	}
	return false
}

func numberDefault(state *State, path string, def any, integer bool) string {
	if v, ok := state.GetValue(path); ok {
		if s, ok := numberDisplay(v, integer); ok {
			return s
		}
	}
	if s, ok := numberDisplay(def, integer); ok {
		return s
	}
	return ""
}

func numberDisplay(value any, integer bool) (string, bool) {
	var f float64
	switch n := value.(type) {
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return "", false
		}
		f = parsed
	default:
		return "", false
	}
	if integer {
		return strconv.FormatInt(int64(f), 10), true
	}
	return formatFloat(f), true
}

func jsonDefault(state *State, path string, def any) string {
	value, ok := state.GetValue(path)
	if !ok {
		value = def
	}
	if m, ok := value.(map[string]any); ok {
		if raw, err := json.Marshal(m); err == nil {
			return string(raw)
		}
	}
	return "{}"
}

type validationRules struct {
	required bool
	min      *float64
	max      *float64
	minLen   *int
	maxLen   *int
	pattern  *regexp.Regexp
}

func collectValidationRules(field model.Field, cache map[string]validationRules) validationRules {
	if rules, ok := cache[field.Name]; ok {
		return rules
	}
	rules := validationRules{required: field.Required}
	for _, v := range field.Validations {
		switch v.Kind {
		case model.ValidationRuleMin:
			if val, ok := parseFloat(v.Params["value"]); ok {
				rules.min = &val
			}
		case model.ValidationRuleMax:
			if val, ok := parseFloat(v.Params["value"]); ok {
				rules.max = &val
			}
		case model.ValidationRuleMinLength:
			if val, ok := parseInt(v.Params["value"]); ok {
				rules.minLen = &val
			}
		case model.ValidationRuleMaxLength:
			if val, ok := parseInt(v.Params["value"]); ok {
				rules.maxLen = &val
			}
		case model.ValidationRulePattern:
			if expr := v.Params["pattern"]; expr != "" {
				if re, err := regexp.Compile(expr); err == nil {
					rules.pattern = re
				}
			}
		}
	}
	cache[field.Name] = rules
	return rules
}

func (r validationRules) validateString(value string) error {
	if r.required && strings.TrimSpace(value) == "" {
		return errors.New("required")
	}
	if r.minLen != nil && len(value) < *r.minLen {
		return fmt.Errorf("min length %d", *r.minLen)
	}
	if r.maxLen != nil && len(value) > *r.maxLen {
		return fmt.Errorf("max length %d", *r.maxLen)
	}
	if r.pattern != nil && !r.pattern.MatchString(value) {
		return errors.New("does not match required pattern")
	}
	return nil
}

func (r validationRules) validateNumber(value any) error {
	var v float64
	switch n := value.(type) {
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	case float64:
		v = n
	default:
		return fmt.Errorf("expected number, got %T", value)
	}
	if r.min != nil && v < *r.min {
		return fmt.Errorf("must be at least %v", *r.min)
	}
	if r.max != nil && v > *r.max {
		return fmt.Errorf("must be at most %v", *r.max)
	}
	return nil
}

func parseFloat(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	val, err := strconv.ParseFloat(raw, 64)
	return val, err == nil
}

func parseInt(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	val, err := strconv.Atoi(raw)
	return val, err == nil
}

func prettyPrint(values map[string]any) string {
	var b strings.Builder
	writePretty(&b, "", values)
	return b.String()
}

func writePretty(b *strings.Builder, prefix string, value any) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			next := key
			if prefix != "" {
				next = prefix + "." + key
			}
			writePretty(b, next, v[key])
		}
	case []any:
		for idx, val := range v {
			writePretty(b, fmt.Sprintf("%s[%d]", prefix, idx), val)
		}
	case nil:
		if prefix != "" {
			fmt.Fprintf(b, "%s=\n", prefix)
		}
	default:
		if prefix != "" {
			fmt.Fprintf(b, "%s=%v\n", prefix, v)
		}
	}
}

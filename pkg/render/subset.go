package render

import (
	"encoding/json"
	"strings"

	"github.com/FlowRegSuite/flowreg-session-gui/pkg/model"
)

const (
	layoutSectionsKey     = "layout.sections"
	layoutSectionFieldKey = "layout.section"
)

// FieldSubset narrows a form model to a subset of its fields, either by wire
// name or by the section assigned through the UI schema. Empty filters leave
// the form untouched.
type FieldSubset struct {
	Fields   []string
	Sections []string
}

// ApplySubset removes fields that do not match the supplied subset filters. It
// operates on top-level fields and prunes section metadata so renderers do not
// render empty sections after filtering. When subset is empty or form is nil,
// the form is returned unchanged.
func ApplySubset(form *model.FormModel, subset FieldSubset) {
	if form == nil {
		return
	}

	matcher := newSubsetMatcher(subset)
	if matcher.empty() {
		return
	}

	filtered := make([]model.Field, 0, len(form.Fields))
	for _, field := range form.Fields {
		if matcher.matches(field) {
			filtered = append(filtered, field)
		}
	}
	form.Fields = filtered
	if len(form.Fields) == 0 {
		form.Fields = nil
	}

	pruneSectionMetadata(form, form.Fields)
}

type subsetMatcher struct {
	fields   map[string]struct{}
	sections map[string]struct{}
}

func newSubsetMatcher(subset FieldSubset) subsetMatcher {
	return subsetMatcher{
		fields:   normaliseTokens(subset.Fields),
		sections: normaliseTokens(subset.Sections),
	}
}

func (m subsetMatcher) empty() bool {
	return len(m.fields) == 0 && len(m.sections) == 0
}

func (m subsetMatcher) matches(field model.Field) bool {
	if len(m.fields) > 0 {
		if _, ok := m.fields[normaliseToken(field.Name)]; ok {
			return true
		}
	}

	if len(m.sections) > 0 {
		if section := normaliseToken(fieldSection(field)); section != "" {
			if _, ok := m.sections[section]; ok {
				return true
			}
		}
	}

	return false
}

func fieldSection(field model.Field) string {
	if field.Metadata == nil {
		return ""
	}
	if candidate := strings.TrimSpace(field.Metadata[layoutSectionFieldKey]); candidate != "" {
		return candidate
	}
	return strings.TrimSpace(field.Metadata["section"])
}

func normaliseTokens(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]struct{}, len(values))
	for _, value := range values {
		token := normaliseToken(value)
		if token == "" {
			continue
		}
		result[token] = struct{}{}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func normaliseToken(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func pruneSectionMetadata(form *model.FormModel, fields []model.Field) {
	if form == nil || len(form.Metadata) == 0 {
		return
	}

	usedSections := collectUsedSections(fields)
	if len(usedSections) == 0 {
		delete(form.Metadata, layoutSectionsKey)
		if len(form.Metadata) == 0 {
			form.Metadata = nil
		}
		return
	}

	rawSections := strings.TrimSpace(form.Metadata[layoutSectionsKey])
	if rawSections == "" {
		return
	}

	sections := parseSections(rawSections)
	if len(sections) == 0 {
		delete(form.Metadata, layoutSectionsKey)
		if len(form.Metadata) == 0 {
			form.Metadata = nil
		}
		return
	}

	filtered := make([]sectionMetadata, 0, len(sections))
	for _, section := range sections {
		if _, ok := usedSections[normaliseToken(section.ID)]; ok {
			filtered = append(filtered, section)
		}
	}

	if len(filtered) == 0 {
		delete(form.Metadata, layoutSectionsKey)
	} else if payload, err := json.Marshal(filtered); err == nil {
		form.Metadata[layoutSectionsKey] = string(payload)
	}

	if len(form.Metadata) == 0 {
		form.Metadata = nil
	}
}

func collectUsedSections(fields []model.Field) map[string]struct{} {
	if len(fields) == 0 {
		return nil
	}
	used := make(map[string]struct{})
	for _, field := range fields {
		if section := normaliseToken(fieldSection(field)); section != "" {
			used[section] = struct{}{}
		}
	}
	if len(used) == 0 {
		return nil
	}
	return used
}

func parseSections(raw string) []sectionMetadata {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var sections []sectionMetadata
	if err := json.Unmarshal([]byte(raw), &sections); err != nil {
		return nil
	}
	return sections
}

type sectionMetadata struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Order       int    `json:"order"`
}

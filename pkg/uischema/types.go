package uischema

import "strings"

// Store keeps the parsed documents from UI schema files, keyed by form name.
// It is safe for concurrent readers when treated as immutable after
// construction.
type Store struct {
	documents map[string]Document
}

// Document describes the UI schema overrides for one form.
type Document struct {
	Name     string
	Source   string
	Form     FormConfig
	Sections []SectionConfig
	Fields   map[string]FieldConfig
}

// FormConfig captures form-level presentation overrides.
type FormConfig struct {
	Title    string `json:"title" yaml:"title"`
	Subtitle string `json:"subtitle" yaml:"subtitle"`
}

// SectionConfig groups related fields into titled blocks. Order defaults to
// declaration position when unset.
type SectionConfig struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Order       *int   `json:"order,omitempty" yaml:"order,omitempty"`
}

// FieldConfig customises how a single field is presented. Keys in the
// document are dotted field paths; nested fields use "parent.child".
type FieldConfig struct {
	Section      string `json:"section,omitempty" yaml:"section,omitempty"`
	Order        *int   `json:"order,omitempty" yaml:"order,omitempty"`
	Label        string `json:"label,omitempty" yaml:"label,omitempty"`
	Help         string `json:"help,omitempty" yaml:"help,omitempty"`
	Placeholder  string `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Widget       string `json:"widget,omitempty" yaml:"widget,omitempty"`
	OriginalPath string `json:"-" yaml:"-"`
}

// Document returns the configuration for the supplied form name.
func (s *Store) Document(name string) (Document, bool) {
	if s == nil {
		return Document{}, false
	}
	doc, ok := s.documents[name]
	return doc, ok
}

// Empty reports whether the store holds any documents.
func (s *Store) Empty() bool {
	return s == nil || len(s.documents) == 0
}

// normalizeFieldPath trims whitespace and collapses redundant separators in a
// dotted field path.
func normalizeFieldPath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	for strings.Contains(trimmed, "..") {
		trimmed = strings.ReplaceAll(trimmed, "..", ".")
	}
	return strings.Trim(trimmed, ".")
}

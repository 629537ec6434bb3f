package uischema

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFS walks the provided filesystem and parses JSON/YAML UI schema files.
// When fsys is nil or no schema files are present, the returned store is
// empty.
func LoadFS(fsys fs.FS) (*Store, error) {
	store := &Store{documents: make(map[string]Document)}
	if fsys == nil {
		return store, nil
	}

	err := fs.WalkDir(fsys, ".", func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() {
			return nil
		}
		if !isSchemaFile(path) {
			return nil
		}

		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("uischema: read %s: %w", path, err)
		}

		doc, err := parseDocument(data, path)
		if err != nil {
			return err
		}

		for formName, raw := range doc.Forms {
			name := strings.TrimSpace(formName)
			if name == "" {
				return fmt.Errorf("uischema: file %s defines an empty form name", path)
			}
			if _, exists := store.documents[name]; exists {
				return fmt.Errorf("uischema: duplicate form %q (file %s)", name, path)
			}

			normalised, err := normaliseDocument(raw, name, path)
			if err != nil {
				return err
			}
			store.documents[name] = normalised
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return store, nil
}

type documentFile struct {
	Forms map[string]formFile `json:"forms" yaml:"forms"`
}

type formFile struct {
	Form     FormConfig             `json:"form" yaml:"form"`
	Sections []SectionConfig        `json:"sections" yaml:"sections"`
	Fields   map[string]FieldConfig `json:"fields" yaml:"fields"`
}

func parseDocument(data []byte, source string) (documentFile, error) {
	var doc documentFile
	if len(strings.TrimSpace(string(data))) == 0 {
		return documentFile{}, fmt.Errorf("uischema: file %s is empty", source)
	}

	if err := json.Unmarshal(data, &doc); err == nil {
		return doc, nil
	}

	if err := yaml.Unmarshal(data, &doc); err == nil {
		return doc, nil
	}

	return documentFile{}, fmt.Errorf("uischema: parse %s: invalid JSON or YAML", source)
}

func normaliseDocument(raw formFile, name, source string) (Document, error) {
	doc := Document{
		Name:     name,
		Source:   source,
		Form:     raw.Form,
		Sections: append([]SectionConfig(nil), raw.Sections...),
		Fields:   make(map[string]FieldConfig, len(raw.Fields)),
	}

	seenSections := make(map[string]struct{}, len(doc.Sections))
	for idx, section := range doc.Sections {
		id := strings.TrimSpace(section.ID)
		if id == "" {
			return Document{}, fmt.Errorf("uischema: form %q (file %s) defines a section without id", name, source)
		}
		if _, exists := seenSections[id]; exists {
			return Document{}, fmt.Errorf("uischema: form %q (file %s) defines duplicate section id %q", name, source, id)
		}
		seenSections[id] = struct{}{}
		doc.Sections[idx].ID = id
	}

	for key, cfg := range raw.Fields {
		normalised := normalizeFieldPath(key)
		if normalised == "" {
			return Document{}, fmt.Errorf("uischema: form %q (file %s) field key %q normalises to empty path", name, source, key)
		}
		if _, exists := doc.Fields[normalised]; exists {
			return Document{}, fmt.Errorf("uischema: form %q (file %s) defines duplicate field path %q", name, source, normalised)
		}
		cfg.OriginalPath = key
		doc.Fields[normalised] = cfg
	}

	return doc, nil
}

func isSchemaFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

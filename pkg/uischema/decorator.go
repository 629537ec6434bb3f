package uischema

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	pkgmodel "github.com/FlowRegSuite/flowreg-session-gui/pkg/model"
)

const (
	layoutSectionKey  = "layout.section"
	layoutOrderKey    = "layout.order"
	layoutSectionsKey = "layout.sections"
	layoutSubtitleKey = "layout.subtitle"
	widgetKey         = "widget"
)

// Decorator applies UI schema metadata to a form model.
type Decorator struct {
	store  *Store
	logger *slog.Logger
}

// NewDecorator builds a Decorator backed by the provided store. When store is
// nil or empty the decorator becomes a no-op. Unknown fields or sections in
// the schema are logged and skipped rather than failing the form; a stale
// overlay should never block editing.
func NewDecorator(store *Store, logger *slog.Logger) *Decorator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decorator{store: store, logger: logger}
}

// Decorate augments the supplied form model with UI schema metadata. When no
// matching document is found the form is left untouched.
func (d *Decorator) Decorate(form *pkgmodel.FormModel) error {
	if d == nil || d.store == nil || d.store.Empty() || form == nil {
		return nil
	}

	doc, ok := d.store.Document(form.Name)
	if !ok {
		return nil
	}

	if err := applyFormConfig(form, doc); err != nil {
		return err
	}
	return d.applyFieldConfig(form, doc)
}

func applyFormConfig(form *pkgmodel.FormModel, doc Document) error {
	if doc.Form.Title != "" {
		form.Title = doc.Form.Title
	}
	if doc.Form.Subtitle != "" {
		form.Metadata = ensureMetadata(form.Metadata)
		form.Metadata[layoutSubtitleKey] = doc.Form.Subtitle
	}

	if len(doc.Sections) > 0 {
		exported, err := buildSectionsMetadata(doc)
		if err != nil {
			return err
		}
		form.Metadata = ensureMetadata(form.Metadata)
		form.Metadata[layoutSectionsKey] = exported
	}

	return nil
}

type sectionMetadata struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Order       int    `json:"order"`
}

func buildSectionsMetadata(doc Document) (string, error) {
	sections := make([]sectionMetadata, 0, len(doc.Sections))
	for idx, section := range doc.Sections {
		order := idx
		if section.Order != nil {
			order = *section.Order
		}
		sections = append(sections, sectionMetadata{
			ID:          section.ID,
			Title:       section.Title,
			Description: section.Description,
			Order:       order,
		})
	}

	sort.SliceStable(sections, func(i, j int) bool {
		if sections[i].Order != sections[j].Order {
			return sections[i].Order < sections[j].Order
		}
		return sections[i].ID < sections[j].ID
	})

	payload, err := json.Marshal(sections)
	if err != nil {
		return "", fmt.Errorf("uischema: marshal sections for form %q: %w", doc.Name, err)
	}
	return string(payload), nil
}

func (d *Decorator) applyFieldConfig(form *pkgmodel.FormModel, doc Document) error {
	fieldRefs := make(map[string]*pkgmodel.Field)
	collectFieldRefs(form.Fields, "", fieldRefs)

	knownSections := make(map[string]struct{}, len(doc.Sections))
	for _, section := range doc.Sections {
		knownSections[section.ID] = struct{}{}
	}

	paths := make([]string, 0, len(doc.Fields))
	for path := range doc.Fields {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	explicitOrders := make(map[string]int, len(doc.Fields))
	for _, path := range paths {
		cfg := doc.Fields[path]
		field, ok := fieldRefs[path]
		if !ok {
			d.logger.Warn("ui schema references unknown field",
				"form", doc.Name,
				"field", cfg.OriginalPath,
				"source", doc.Source,
			)
			continue
		}

		if cfg.Section != "" {
			if _, exists := knownSections[cfg.Section]; !exists && len(doc.Sections) > 0 {
				d.logger.Warn("ui schema references unknown section",
					"form", doc.Name,
					"field", cfg.OriginalPath,
					"section", cfg.Section,
					"source", doc.Source,
				)
			} else {
				field.Metadata = ensureMetadata(field.Metadata)
				field.Metadata[layoutSectionKey] = cfg.Section
			}
		}

		if cfg.Order != nil {
			explicitOrders[path] = *cfg.Order
			field.Metadata = ensureMetadata(field.Metadata)
			field.Metadata[layoutOrderKey] = strconv.Itoa(*cfg.Order)
		}

		applyFieldCopy(field, cfg)
	}

	if len(doc.Sections) > 0 || len(explicitOrders) > 0 {
		reorderTopLevel(form, doc, explicitOrders)
	}
	return nil
}

func applyFieldCopy(field *pkgmodel.Field, cfg FieldConfig) {
	if cfg.Label != "" {
		field.Label = cfg.Label
	}
	if cfg.Help != "" {
		field.Description = sanitizeHelpMarkup(cfg.Help)
	}
	if cfg.Placeholder != "" {
		field.Placeholder = cfg.Placeholder
	}
	if cfg.Widget != "" {
		field.Metadata = ensureMetadata(field.Metadata)
		field.Metadata[widgetKey] = cfg.Widget
	}
}

// reorderTopLevel sorts the form's top-level fields so section members stay
// contiguous: section rank first, explicit order within a section, original
// declaration order last. Nested fields keep struct order.
func reorderTopLevel(form *pkgmodel.FormModel, doc Document, explicitOrders map[string]int) {
	ranks := sectionRanks(doc)
	unsectioned := len(ranks)

	originals := make(map[string]int, len(form.Fields))
	for idx, field := range form.Fields {
		originals[field.Name] = idx
	}

	rankOf := func(field pkgmodel.Field) int {
		if field.Metadata == nil {
			return unsectioned
		}
		if rank, ok := ranks[field.Metadata[layoutSectionKey]]; ok {
			return rank
		}
		return unsectioned
	}

	sort.SliceStable(form.Fields, func(i, j int) bool {
		fi, fj := form.Fields[i], form.Fields[j]
		ri, rj := rankOf(fi), rankOf(fj)
		if ri != rj {
			return ri < rj
		}

		oi, hasI := explicitOrders[fi.Name]
		oj, hasJ := explicitOrders[fj.Name]
		switch {
		case hasI && hasJ:
			if oi != oj {
				return oi < oj
			}
		case hasI:
			return true
		case hasJ:
			return false
		}
		return originals[fi.Name] < originals[fj.Name]
	})
}

func sectionRanks(doc Document) map[string]int {
	type ranked struct {
		id    string
		order int
	}
	entries := make([]ranked, 0, len(doc.Sections))
	for idx, section := range doc.Sections {
		order := idx
		if section.Order != nil {
			order = *section.Order
		}
		entries = append(entries, ranked{id: section.ID, order: order})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].order != entries[j].order {
			return entries[i].order < entries[j].order
		}
		return entries[i].id < entries[j].id
	})

	ranks := make(map[string]int, len(entries))
	for idx, entry := range entries {
		ranks[entry.id] = idx
	}
	return ranks
}

func collectFieldRefs(fields []pkgmodel.Field, parentPath string, refs map[string]*pkgmodel.Field) {
	for idx := range fields {
		field := &fields[idx]
		path := joinPath(parentPath, field.Name)
		refs[path] = field

		if len(field.Nested) > 0 {
			collectFieldRefs(field.Nested, path, refs)
		}
	}
}

func ensureMetadata(m map[string]string) map[string]string {
	if m == nil {
		return make(map[string]string)
	}
	return m
}

func joinPath(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}

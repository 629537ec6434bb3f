// Package model defines the typed form model consumed by renderers. Builders
// reside in internal/model but return the types defined here. Forms are
// derived from configuration structs via pkg/fields, so a FormModel carries
// the struct's wire name plus one Field per editable struct field, in
// declaration order. Validation rules expose canonical identifiers (min/max,
// minLength/maxLength, pattern) with string parameters so renderers can map
// numeric bounds and textual constraints onto prompt retries or HTML
// attributes without sacrificing deterministic JSON snapshots. Presentation
// overrides from pkg/uischema land in `Field.Metadata` under curated keys
// such as `widget`, `placeholder`, and `group`.
package model

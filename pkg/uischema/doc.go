// Package uischema loads and applies UI schema overlays that enrich form
// models with layout metadata: section grouping, field ordering, labels, help
// text, and widget hints. The package keeps the core model builder unaware of
// presentation concerns; callers opt in by passing a store to the decorator.
// A default overlay for the session form ships embedded.
package uischema

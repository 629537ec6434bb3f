// Package orchestrator wires the reflect → build → decorate → render pipeline
// behind a single entry point, with dependency-injection friendly options for
// callers that need to swap any stage.
package orchestrator

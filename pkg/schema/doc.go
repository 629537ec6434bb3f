// Package schema exports form models as OpenAPI documents. The export runs
// the form pipeline in reverse: field categories become component schemas, so
// external tools see the same shape the editor edits. ValidateValues checks a
// value map against an exported document for strict validation.
package schema

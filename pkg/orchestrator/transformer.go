package orchestrator

import (
	"context"

	"github.com/FlowRegSuite/flowreg-session-gui/pkg/model"
)

// Transformer mutates a form model after building but before the decorators
// run. Implementations can rename fields, inject metadata, or perform
// arbitrary rewrites.
type Transformer interface {
	Transform(ctx context.Context, form *model.FormModel) error
}

// TransformerFunc adapts plain functions to the Transformer interface.
type TransformerFunc func(ctx context.Context, form *model.FormModel) error

// Transform executes the wrapped function when non-nil.
func (fn TransformerFunc) Transform(ctx context.Context, form *model.FormModel) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, form)
}

package render

import (
	"context"

	"github.com/FlowRegSuite/flowreg-session-gui/pkg/model"
)

// Renderer converts a FormModel into a byte representation (terminal
// transcript, HTML document, etc.).
type Renderer interface {
	Name() string
	ContentType() string
	Render(ctx context.Context, model model.FormModel, options RenderOptions) ([]byte, error)
}

package interfaces

import (
	"context"

	"github.com/GSejas/mermaid-export-pro/internal/models"
)

// RenderStrategy is an interchangeable backend that turns mermaid source
// text into image bytes. The engine is strategy-agnostic beyond preferring
// a CLI-backed strategy by name when several are available.
type RenderStrategy interface {
	// Name identifies the strategy ("CLI", "Web").
	Name() string

	// IsAvailable reports whether the backend can render right now
	// (tool installed, browser reachable).
	IsAvailable(ctx context.Context) bool

	// Export renders diagram source into bytes for the requested format.
	Export(ctx context.Context, content string, opts models.RenderOptions) ([]byte, error)
}

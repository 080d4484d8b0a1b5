package interfaces

import (
	"context"

	"github.com/GSejas/mermaid-export-pro/internal/models"
)

// DiscoveryOptions controls a diagram discovery run.
type DiscoveryOptions struct {
	// Root is the directory to walk.
	Root string
	// MaxDepth limits directory recursion depth (1 = root only).
	MaxDepth int
	// IncludeMMD includes standalone .mmd files.
	IncludeMMD bool
	// ExcludeGlobs are path patterns to skip (node_modules, .git are always skipped).
	ExcludeGlobs []string
}

// DiscoveryService finds source files carrying mermaid diagrams, with
// per-diagram complexity already computed.
type DiscoveryService interface {
	// DiscoverFiles walks the tree and returns files containing at least
	// one diagram.
	DiscoverFiles(ctx context.Context, opts DiscoveryOptions) ([]*models.SourceFile, error)

	// ExtractDiagrams parses a single file's content.
	ExtractDiagrams(path string, content []byte) (*models.SourceFile, error)
}

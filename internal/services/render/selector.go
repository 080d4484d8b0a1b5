package render

import (
	"context"
	"strings"

	"github.com/GSejas/mermaid-export-pro/internal/interfaces"
	"github.com/GSejas/mermaid-export-pro/internal/models"
)

// SelectStrategy picks the rendering backend for a batch: the first
// available strategy whose name contains "CLI", otherwise the first
// available one. Returns a NO_STRATEGY_AVAILABLE error when none can render.
func SelectStrategy(ctx context.Context, strategies []interfaces.RenderStrategy) (interfaces.RenderStrategy, *models.ExportError) {
	var available []interfaces.RenderStrategy
	for _, strategy := range strategies {
		if strategy.IsAvailable(ctx) {
			available = append(available, strategy)
		}
	}

	if len(available) == 0 {
		return nil, &models.ExportError{
			Code:     models.CodeNoStrategyAvailable,
			Message:  "no rendering backend is available",
			Category: models.ErrorConfiguration,
			Severity: models.SeverityCritical,
			Phase:    models.PhasePlanning,
			Suggestions: []string{
				"Install the mermaid CLI (npm install -g @mermaid-js/mermaid-cli)",
				"Install Chrome or Chromium for in-process rendering",
			},
		}
	}

	for _, strategy := range available {
		if strings.Contains(strategy.Name(), "CLI") {
			return strategy, nil
		}
	}
	return available[0], nil
}

// -----------------------------------------------------------------------
// Job Planner - Turns discovered diagrams into an ordered export batch
// -----------------------------------------------------------------------

package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/GSejas/mermaid-export-pro/internal/models"
)

// formatSpeedRank orders formats by expected rendering cost, fastest first.
// Used as the final tie-break so cheap jobs surface feedback quickly.
var formatSpeedRank = map[models.ExportFormat]int{
	models.FormatSVG:  0,
	models.FormatPNG:  1,
	models.FormatJPG:  2,
	models.FormatJPEG: 2,
	models.FormatWebP: 3,
	models.FormatPDF:  4,
}

// complexityPriorityBonus maps complexity category to its priority delta.
var complexityPriorityBonus = map[models.ComplexityCategory]int{
	models.ComplexitySimple:      2,
	models.ComplexityModerate:    1,
	models.ComplexityComplex:     -1,
	models.ComplexityVeryComplex: -2,
}

// formatPriorityBonus maps format to its priority delta.
var formatPriorityBonus = map[models.ExportFormat]int{
	models.FormatSVG:  2,
	models.FormatPNG:  1,
	models.FormatJPG:  1,
	models.FormatJPEG: 1,
	models.FormatWebP: 0,
	models.FormatPDF:  -1,
}

// Planner builds batches from discovered source files.
type Planner struct {
	logger arbor.ILogger
}

// NewPlanner creates a new planner.
func NewPlanner(logger arbor.ILogger) *Planner {
	return &Planner{logger: logger}
}

// CreateBatch enumerates file x diagram x format jobs, orders them, picks
// an execution strategy, and creates the output directory tree. Fails fast
// on invalid configuration, before any filesystem side effects.
func (p *Planner) CreateBatch(files []*models.SourceFile, config models.ExportConfig) (*models.Batch, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	namer := newNamer(config)
	var jobs []*models.ExportJob

	for _, file := range files {
		if file.Options != nil && file.Options.Skip {
			continue
		}
		formats := effectiveFormats(config, file)
		for diagramIdx, diagram := range file.Diagrams {
			for _, format := range formats {
				job := &models.ExportJob{
					ID:                 models.NewJobID(),
					SourceFile:         file.Path,
					DiagramContent:     diagram.Content,
					DiagramType:        diagram.Type,
					DiagramLine:        diagram.Line,
					ComplexityScore:    diagram.ComplexityScore,
					ComplexityCategory: diagram.ComplexityCategory,
					Format:             format,
					RenderOptions:      mergeRenderOptions(config, file, format),
					OutputPath:         namer.outputPath(file, diagramIdx, diagram, format),
					Priority:           computePriority(diagram.ComplexityCategory, format),
					RetryPolicy:        models.DefaultRetryConfig(),
					CreatedAt:          time.Now(),
				}
				jobs = append(jobs, job)
			}
		}
	}

	jobs = OptimizeJobOrder(jobs)

	batch := &models.Batch{
		ID:                models.NewBatchID(),
		Jobs:              jobs,
		Config:            config,
		ExecutionStrategy: selectExecutionStrategy(len(jobs)),
		CreatedAt:         time.Now(),
	}

	if errs := ValidateBatch(batch); len(errs) > 0 {
		return nil, errs[0]
	}

	if err := createOutputDirs(config); err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("batch_id", batch.ID).
		Int("jobs", len(jobs)).
		Str("strategy", string(batch.ExecutionStrategy)).
		Msg("Batch planned")

	return batch, nil
}

// validateConfig enforces the planner's fail-fast configuration rules.
func validateConfig(config models.ExportConfig) error {
	if len(config.Formats) == 0 {
		return &models.ExportError{
			Code:        models.CodeInvalidConfig,
			Message:     "at least one export format is required",
			Category:    models.ErrorConfiguration,
			Severity:    models.SeverityError,
			Phase:       models.PhasePlanning,
			Suggestions: []string{"Add a format such as svg or png to the configuration"},
		}
	}
	if config.OutputDirectory == "" {
		return &models.ExportError{
			Code:        models.CodeInvalidConfig,
			Message:     "output directory must not be empty",
			Category:    models.ErrorConfiguration,
			Severity:    models.SeverityError,
			Phase:       models.PhasePlanning,
			Suggestions: []string{"Set output_directory in the export configuration"},
		}
	}
	if config.MaxDepth < 1 {
		return &models.ExportError{
			Code:     models.CodeInvalidConfig,
			Message:  fmt.Sprintf("max depth must be at least 1, got %d", config.MaxDepth),
			Category: models.ErrorConfiguration,
			Severity: models.SeverityError,
			Phase:    models.PhasePlanning,
		}
	}
	return nil
}

// effectiveFormats applies per-file frontmatter format overrides.
func effectiveFormats(config models.ExportConfig, file *models.SourceFile) []models.ExportFormat {
	if file.Options == nil || len(file.Options.Formats) == 0 {
		return config.Formats
	}
	formats := make([]models.ExportFormat, 0, len(file.Options.Formats))
	for _, f := range file.Options.Formats {
		formats = append(formats, models.ExportFormat(f))
	}
	return formats
}

// mergeRenderOptions merges global config with per-file overrides.
func mergeRenderOptions(config models.ExportConfig, file *models.SourceFile, format models.ExportFormat) models.RenderOptions {
	opts := models.RenderOptions{
		Format:     format,
		Theme:      config.Theme,
		Background: config.BackgroundColor,
		Width:      config.Width,
		Height:     config.Height,
	}
	if file.Options != nil {
		if file.Options.Theme != "" {
			opts.Theme = file.Options.Theme
		}
		if file.Options.Background != "" {
			opts.Background = file.Options.Background
		}
	}
	return opts
}

// computePriority derives job priority from complexity and format.
// Base 5, adjusted by complexity and format bonuses, clamped to [1,10].
func computePriority(category models.ComplexityCategory, format models.ExportFormat) int {
	priority := 5 + complexityPriorityBonus[category] + formatPriorityBonus[format]
	if priority < 1 {
		priority = 1
	}
	if priority > 10 {
		priority = 10
	}
	return priority
}

// OptimizeJobOrder stable-sorts jobs by priority descending, then
// complexity ascending, then format speed rank ascending.
func OptimizeJobOrder(jobs []*models.ExportJob) []*models.ExportJob {
	sort.SliceStable(jobs, func(i, j int) bool {
		a, b := jobs[i], jobs[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.ComplexityScore != b.ComplexityScore {
			return a.ComplexityScore < b.ComplexityScore
		}
		return formatSpeedRank[a.Format] < formatSpeedRank[b.Format]
	})
	return jobs
}

// selectExecutionStrategy picks the concurrency pattern by job count:
// up to 5 sequential, up to 20 mixed, beyond that parallel.
func selectExecutionStrategy(jobCount int) models.ExecutionStrategy {
	switch {
	case jobCount <= 5:
		return models.StrategySequential
	case jobCount <= 20:
		return models.StrategyMixed
	default:
		return models.StrategyParallel
	}
}

// createOutputDirs creates the output directory tree, including one
// subdirectory per format when organize-by-format is set.
func createOutputDirs(config models.ExportConfig) error {
	if err := os.MkdirAll(config.OutputDirectory, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if config.OrganizeByFormat {
		for _, format := range config.Formats {
			dir := filepath.Join(config.OutputDirectory, string(format))
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create format directory %s: %w", dir, err)
			}
		}
	}
	return nil
}

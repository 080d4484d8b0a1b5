// -----------------------------------------------------------------------
// Export Job - Immutable unit of work produced by the batch planner
// -----------------------------------------------------------------------

package models

import (
	"time"

	"github.com/google/uuid"
)

// ExportFormat is a supported output image format.
type ExportFormat string

const (
	FormatSVG  ExportFormat = "svg"
	FormatPNG  ExportFormat = "png"
	FormatJPG  ExportFormat = "jpg"
	FormatJPEG ExportFormat = "jpeg"
	FormatWebP ExportFormat = "webp"
	FormatPDF  ExportFormat = "pdf"
)

// ExecutionStrategy is the concurrency pattern used to run a batch's jobs.
type ExecutionStrategy string

const (
	StrategySequential  ExecutionStrategy = "sequential"
	StrategyParallel    ExecutionStrategy = "parallel"
	StrategyMixed       ExecutionStrategy = "mixed"
	StrategyPrioritized ExecutionStrategy = "prioritized"
)

// NamingStrategy selects how output file names are derived.
type NamingStrategy string

const (
	NamingSequential  NamingStrategy = "sequential"
	NamingDescriptive NamingStrategy = "descriptive"
	NamingSourceLine  NamingStrategy = "source-line"
	NamingTemplate    NamingStrategy = "template"
)

// RetryConfig is a static per-job retry policy attached at planning time.
type RetryConfig struct {
	MaxAttempts       int           `json:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	MaxDelay          time.Duration `json:"max_delay"`
}

// DefaultRetryConfig returns the standard retry policy: 3 attempts,
// 1s initial delay, doubling per attempt, capped at 10s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      time.Second,
		BackoffMultiplier: 2.0,
		MaxDelay:          10 * time.Second,
	}
}

// RenderOptions are the merged per-job rendering parameters handed to a
// render strategy.
type RenderOptions struct {
	Format     ExportFormat `json:"format"`
	Theme      string       `json:"theme"`
	Background string       `json:"background"`
	Width      int          `json:"width,omitempty"`
	Height     int          `json:"height,omitempty"`
}

// ExportJob is one (file, diagram, format) export unit. Jobs are immutable
// once created by the planner and consumed exactly once by the executor.
type ExportJob struct {
	ID                 string             `json:"id"`
	SourceFile         string             `json:"source_file"`
	DiagramContent     string             `json:"diagram_content"`
	DiagramType        string             `json:"diagram_type,omitempty"`
	DiagramLine        int                `json:"diagram_line,omitempty"`
	ComplexityScore    int                `json:"complexity_score"`
	ComplexityCategory ComplexityCategory `json:"complexity_category"`
	Format             ExportFormat       `json:"format"`
	RenderOptions      RenderOptions      `json:"render_options"`
	OutputPath         string             `json:"output_path"`
	// Priority ranges 1 (lowest) to 10 (highest).
	Priority int `json:"priority"`
	// Dependencies lists job IDs that must complete first. The planner never
	// populates this today; the validation machinery guards future use.
	Dependencies []string    `json:"dependencies,omitempty"`
	RetryPolicy  RetryConfig `json:"retry_policy"`
	CreatedAt    time.Time   `json:"created_at"`
}

// NewJobID generates a unique job ID with the "job_" prefix.
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewBatchID generates a unique batch ID with the "batch_" prefix.
func NewBatchID() string {
	return "batch_" + uuid.New().String()
}

// Batch is an ordered collection of jobs plus the config and execution
// strategy chosen at planning time. The jobs slice is the execution order.
// A Batch is owned by exactly one ExecuteBatch invocation.
type Batch struct {
	ID                string            `json:"id"`
	Jobs              []*ExportJob      `json:"jobs"`
	Config            ExportConfig      `json:"config"`
	ExecutionStrategy ExecutionStrategy `json:"execution_strategy"`
	CreatedAt         time.Time         `json:"created_at"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// ExportConfig is the planner-facing configuration surface.
type ExportConfig struct {
	OutputDirectory  string         `json:"output_directory" validate:"required"`
	Formats          []ExportFormat `json:"formats" validate:"required,min=1"`
	Theme            string         `json:"theme"`
	BackgroundColor  string         `json:"background_color"`
	NamingStrategy   NamingStrategy `json:"naming_strategy"`
	NameTemplate     string         `json:"name_template,omitempty"`
	OrganizeByFormat bool           `json:"organize_by_format"`
	Overwrite        bool           `json:"overwrite"`
	MaxDepth         int            `json:"max_depth" validate:"min=1"`
	Width            int            `json:"width,omitempty"`
	Height           int            `json:"height,omitempty"`
}

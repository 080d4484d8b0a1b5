package models

import "time"

// ExportPhase is a stage of batch execution.
type ExportPhase string

const (
	PhasePlanning     ExportPhase = "planning"
	PhaseExporting    ExportPhase = "exporting"
	PhaseVerification ExportPhase = "verification"
	PhaseCleanup      ExportPhase = "cleanup"
	PhaseCompleted    ExportPhase = "completed"
	PhaseFailed       ExportPhase = "failed"
)

// ResourceMetadata captures process resource usage around a single job.
type ResourceMetadata struct {
	MemoryBefore uint64 `json:"memory_before"`
	MemoryAfter  uint64 `json:"memory_after"`
}

// JobResult is the outcome of executing one job. Results accumulate in
// completion order, which under parallel execution differs from job order.
type JobResult struct {
	Job           *ExportJob       `json:"job"`
	Success       bool             `json:"success"`
	Skipped       bool             `json:"skipped,omitempty"`
	OutputPath    string           `json:"output_path,omitempty"`
	OutputSize    int64            `json:"output_size,omitempty"`
	Duration      time.Duration    `json:"duration"`
	RetryAttempts int              `json:"retry_attempts"`
	Error         *ExportError     `json:"error,omitempty"`
	Resources     ResourceMetadata `json:"resources"`
	CompletedAt   time.Time        `json:"completed_at"`
}

// BatchSummary holds per-batch result counts.
type BatchSummary struct {
	TotalJobs  int   `json:"total_jobs"`
	Succeeded  int   `json:"succeeded"`
	Failed     int   `json:"failed"`
	Skipped    int   `json:"skipped"`
	TotalBytes int64 `json:"total_bytes"`
}

// PerformanceStats holds aggregate execution performance figures.
type PerformanceStats struct {
	TotalDuration  time.Duration `json:"total_duration"`
	AverageJobTime time.Duration `json:"average_job_time"`
	JobsPerSecond  float64       `json:"jobs_per_second"`
	PeakMemory     uint64        `json:"peak_memory"`
}

// TimelineEvent records one phase transition during batch execution.
type TimelineEvent struct {
	Phase     ExportPhase `json:"phase"`
	Timestamp time.Time   `json:"timestamp"`
	Message   string      `json:"message,omitempty"`
}

// BatchResult is the immutable aggregate produced by ExecuteBatch. It is
// fully populated even when the batch fails at the top level, preserving
// partial per-job results.
type BatchResult struct {
	BatchID     string            `json:"batch_id"`
	Success     bool              `json:"success"`
	Strategy    ExecutionStrategy `json:"strategy"`
	Results     []*JobResult      `json:"results"`
	Summary     BatchSummary      `json:"summary"`
	Performance PerformanceStats  `json:"performance"`
	// OutputsByFormat indexes successful output paths by format.
	OutputsByFormat map[ExportFormat][]string `json:"outputs_by_format"`
	// OutputsByFile indexes successful output paths by source file.
	OutputsByFile map[string][]string `json:"outputs_by_file"`
	Timeline      []TimelineEvent     `json:"timeline"`
	StartedAt     time.Time           `json:"started_at"`
	CompletedAt   time.Time           `json:"completed_at"`
	Error         *ExportError        `json:"error,omitempty"`
	// ErrorReport groups job failures by category; nil when nothing failed.
	ErrorReport *ErrorReport `json:"error_report,omitempty"`
}

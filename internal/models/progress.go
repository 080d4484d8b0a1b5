package models

import "time"

// JobCounts tracks job state populations within a batch.
type JobCounts struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// ProgressTiming is the recomputed timing model for a batch.
type ProgressTiming struct {
	StartedAt           time.Time     `json:"started_at"`
	EstimatedCompletion time.Time     `json:"estimated_completion"`
	AverageJobTime      time.Duration `json:"average_job_time"`
	RemainingTime       time.Duration `json:"remaining_time"`
}

// CurrentOperation describes what a batch is doing right now.
type CurrentOperation struct {
	Phase       ExportPhase `json:"phase"`
	Message     string      `json:"message"`
	SubProgress float64     `json:"sub_progress"`
}

// ProgressPerformance carries the per-tick performance metrics.
type ProgressPerformance struct {
	JobsPerSecond   float64 `json:"jobs_per_second"`
	TotalThroughput int64   `json:"total_throughput"`
	MemoryUsage     uint64  `json:"memory_usage"`
}

// PerformanceSnapshot is one ring-buffer entry of batch performance history.
type PerformanceSnapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	CompletedJobs int       `json:"completed_jobs"`
	JobsPerSecond float64   `json:"jobs_per_second"`
	MemoryUsage   uint64    `json:"memory_usage"`
	ActiveJobs    int       `json:"active_jobs"`
}

// ProgressState is the mutable per-batch progress record owned by the
// progress tracking service. Callers receive copies, never the live record.
type ProgressState struct {
	BatchID string `json:"batch_id"`
	// OverallProgress is completedJobs/totalJobs in [0,1].
	OverallProgress float64             `json:"overall_progress"`
	CurrentJob      string              `json:"current_job,omitempty"`
	CompletedJobs   int                 `json:"completed_jobs"`
	TotalJobs       int                 `json:"total_jobs"`
	JobCounts       JobCounts           `json:"job_counts"`
	Timing          ProgressTiming      `json:"timing"`
	Operation       CurrentOperation    `json:"current_operation"`
	Performance     ProgressPerformance `json:"performance"`
	Cancelled       bool                `json:"cancelled"`
	LastUpdated     time.Time           `json:"last_updated"`
}

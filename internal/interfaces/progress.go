package interfaces

import "github.com/GSejas/mermaid-export-pro/internal/models"

// ProgressCallback receives a snapshot of a batch's progress state.
type ProgressCallback func(state models.ProgressState)

// ProgressReporter is the write-side handle a batch executor uses to push
// progress into the tracking service.
type ProgressReporter interface {
	// InitializeBatch seeds the pending job count.
	InitializeBatch(totalJobs int)

	// SetPhase records the current execution phase.
	SetPhase(phase models.ExportPhase, message string)

	// SetCurrentJob records the job currently being rendered.
	SetCurrentJob(jobID string)

	// StartJob moves one job from pending to running.
	StartJob(jobID string)

	// CompleteJob moves one job from running to completed or failed and
	// recomputes overall progress.
	CompleteJob(jobID string, success bool)

	// SkipJob moves one job from pending to skipped.
	SkipJob(jobID string)

	// AddOutputBytes accumulates bytes written by successful jobs into the
	// batch throughput total.
	AddOutputBytes(n int64)

	// ReportError attaches a non-fatal error message to the current state.
	ReportError(message string)

	// IsCancelled reports whether the batch has been cancelled. Execution
	// strategies poll this before starting each unit of work.
	IsCancelled() bool

	// BatchID returns the owning batch id.
	BatchID() string
}

// ProgressService maintains one mutable progress record per active batch
// and fans out updates to subscribers.
type ProgressService interface {
	// CreateReporter registers a batch and returns its reporter handle.
	CreateReporter(batchID string) ProgressReporter

	// GetProgress returns a snapshot of a batch's state.
	GetProgress(batchID string) (models.ProgressState, bool)

	// OnProgress subscribes to updates for a batch. The callback fires
	// immediately with the current snapshot, then on every update.
	OnProgress(batchID string, cb ProgressCallback) error

	// RegisterCleanup adds a callback invoked when the batch is cancelled.
	RegisterCleanup(batchID string, fn func())

	// Cancel marks a batch cancelled, runs cleanup callbacks, and
	// schedules removal after a grace period.
	Cancel(batchID string, reason string)

	// Cleanup removes a batch's state immediately.
	Cleanup(batchID string)

	// Close stops the tick and sweep loops.
	Close()
}

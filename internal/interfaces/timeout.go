package interfaces

import "time"

// OperationType selects the default timeout thresholds for an operation's
// expected duration class.
type OperationType string

const (
	OperationExport      OperationType = "export"
	OperationBatchExport OperationType = "batchExport"
	OperationDebug       OperationType = "debug"
)

// TimeoutConfig holds the four escalation thresholds. Zero values fall back
// to the defaults for the operation type.
type TimeoutConfig struct {
	Soft    time.Duration
	Medium  time.Duration
	Hard    time.Duration
	Nuclear time.Duration
}

// TimeoutCallbacks are the owner-supplied hooks invoked as an operation
// escalates. Any callback may be nil.
type TimeoutCallbacks struct {
	// OnSoftTimeout fires a non-blocking "still working" notice.
	OnSoftTimeout func(id string, elapsed time.Duration)
	// OnMediumTimeout asks whether to keep waiting. Returning false cancels
	// the operation. When nil, KeepWaiting decides; when that is also nil,
	// the operation is cancelled.
	OnMediumTimeout func(id string, elapsed time.Duration) bool
	// KeepWaiting is the user-decision fallback for the medium tier.
	KeepWaiting func(id string) bool
	// OnHardTimeout fires before the forced cancellation at the hard tier.
	OnHardTimeout func(id string, elapsed time.Duration)
	// OnNuclearTimeout fires before emergency cleanup of all operations.
	OnNuclearTimeout func(id string, elapsed time.Duration)
	// Cleanup releases the operation's resources on any terminal transition.
	Cleanup func(id string, reason string)
}

// ActiveOperation is a read-only snapshot of one supervised operation.
type ActiveOperation struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	IsWarned bool          `json:"is_warned"`
}

// TimeoutService supervises arbitrary long-running operations through four
// escalating timeout tiers.
type TimeoutService interface {
	// StartOperation begins supervising an operation. Starting a new
	// operation with an id already in use completes and replaces the old one.
	StartOperation(id, name string, opType OperationType, config *TimeoutConfig, callbacks TimeoutCallbacks) error

	// UpdateProgress marks the operation alive, re-arming only the soft timer.
	UpdateProgress(id, message string)

	// CompleteOperation ends an operation successfully.
	CompleteOperation(id string)

	// CancelOperation ends an operation with a reason.
	CancelOperation(id, reason string)

	// GetActiveOperations snapshots all live operations.
	GetActiveOperations() []ActiveOperation

	// EmergencyCleanup cancels every tracked operation and clears the map.
	EmergencyCleanup()

	// CanStartExport enforces the cooldown between export launches.
	CanStartExport() bool
}

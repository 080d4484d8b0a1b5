// -----------------------------------------------------------------------
// Operation Timeout Manager - Four-tier escalating watchdog
// -----------------------------------------------------------------------

package timeout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/GSejas/mermaid-export-pro/internal/interfaces"
)

// typeDefaults maps each operation type to its escalation thresholds.
var typeDefaults = map[interfaces.OperationType]interfaces.TimeoutConfig{
	interfaces.OperationExport: {
		Soft:    10 * time.Second,
		Medium:  30 * time.Second,
		Hard:    60 * time.Second,
		Nuclear: 120 * time.Second,
	},
	interfaces.OperationBatchExport: {
		Soft:    30 * time.Second,
		Medium:  90 * time.Second,
		Hard:    180 * time.Second,
		Nuclear: 300 * time.Second,
	},
	interfaces.OperationDebug: {
		Soft:    45 * time.Second,
		Medium:  120 * time.Second,
		Hard:    300 * time.Second,
		Nuclear: 600 * time.Second,
	},
}

// operation is one supervised operation. Each owns its four timer handles;
// clearTimers is the single teardown path for every terminal transition.
type operation struct {
	id        string
	name      string
	config    interfaces.TimeoutConfig
	callbacks interfaces.TimeoutCallbacks
	startedAt time.Time
	warned    bool

	softTimer    *time.Timer
	mediumTimer  *time.Timer
	hardTimer    *time.Timer
	nuclearTimer *time.Timer
}

func (op *operation) clearTimers() {
	for _, t := range []*time.Timer{op.softTimer, op.mediumTimer, op.hardTimer, op.nuclearTimer} {
		if t != nil {
			t.Stop()
		}
	}
}

// Manager implements interfaces.TimeoutService. The operations map is
// owned exclusively by the manager and guarded by its mutex.
type Manager struct {
	mu         sync.Mutex
	operations map[string]*operation
	limiter    *rate.Limiter
	events     interfaces.EventService
	logger     arbor.ILogger
}

// NewManager creates the timeout manager. The export-start limiter allows
// one launch per cooldown interval.
func NewManager(exportCooldown time.Duration, events interfaces.EventService, logger arbor.ILogger) *Manager {
	if exportCooldown <= 0 {
		exportCooldown = time.Second
	}
	return &Manager{
		operations: make(map[string]*operation),
		limiter:    rate.NewLimiter(rate.Every(exportCooldown), 1),
		events:     events,
		logger:     logger,
	}
}

// StartOperation begins supervising an operation, arming all four timers.
// Reusing a live id completes and replaces the previous operation.
func (m *Manager) StartOperation(id, name string, opType interfaces.OperationType, config *interfaces.TimeoutConfig, callbacks interfaces.TimeoutCallbacks) error {
	m.mu.Lock()

	if prev, exists := m.operations[id]; exists {
		prev.clearTimers()
		delete(m.operations, id)
		m.mu.Unlock()
		m.runCleanup(prev, "replaced")
		m.mu.Lock()
	}

	cfg := resolveConfig(opType, config)
	op := &operation{
		id:        id,
		name:      name,
		config:    cfg,
		callbacks: callbacks,
		startedAt: time.Now(),
	}
	op.softTimer = time.AfterFunc(cfg.Soft, func() { m.onSoft(id) })
	op.mediumTimer = time.AfterFunc(cfg.Medium, func() { m.onMedium(id) })
	op.hardTimer = time.AfterFunc(cfg.Hard, func() { m.onHard(id) })
	op.nuclearTimer = time.AfterFunc(cfg.Nuclear, func() { m.onNuclear(id) })
	m.operations[id] = op
	m.mu.Unlock()

	m.logger.Debug().
		Str("operation_id", id).
		Str("operation_name", name).
		Str("operation_type", string(opType)).
		Msg("Operation supervision started")
	return nil
}

// UpdateProgress re-arms only the soft timer. The medium, hard, and
// nuclear timers keep counting so an operation reporting tiny progress
// forever is still escalated toward forced cleanup.
func (m *Manager) UpdateProgress(id, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	op, ok := m.operations[id]
	if !ok {
		return
	}
	op.warned = false
	if op.softTimer != nil {
		op.softTimer.Stop()
	}
	op.softTimer = time.AfterFunc(op.config.Soft, func() { m.onSoft(id) })
	if message != "" {
		m.logger.Debug().Str("operation_id", id).Str("message", message).Msg("Operation progress")
	}
}

// CompleteOperation ends an operation successfully.
func (m *Manager) CompleteOperation(id string) {
	m.finish(id, "completed")
}

// CancelOperation ends an operation with a reason.
func (m *Manager) CancelOperation(id, reason string) {
	m.finish(id, reason)
}

// GetActiveOperations snapshots all live operations.
func (m *Manager) GetActiveOperations() []interfaces.ActiveOperation {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	out := make([]interfaces.ActiveOperation, 0, len(m.operations))
	for _, op := range m.operations {
		out = append(out, interfaces.ActiveOperation{
			ID:       op.id,
			Name:     op.name,
			Duration: now.Sub(op.startedAt),
			IsWarned: op.warned,
		})
	}
	return out
}

// EmergencyCleanup cancels every tracked operation and clears the map.
func (m *Manager) EmergencyCleanup() {
	m.mu.Lock()
	ops := make([]*operation, 0, len(m.operations))
	for _, op := range m.operations {
		op.clearTimers()
		ops = append(ops, op)
	}
	m.operations = make(map[string]*operation)
	m.mu.Unlock()

	m.logger.Warn().Int("operation_count", len(ops)).Msg("Emergency cleanup of all operations")
	for _, op := range ops {
		m.runCleanup(op, "timeout")
	}
}

// CanStartExport enforces the cooldown between export launches.
func (m *Manager) CanStartExport() bool {
	return m.limiter.Allow()
}

// finish clears an operation's timers, runs its cleanup callback, and
// removes it from the active map.
func (m *Manager) finish(id, reason string) {
	m.mu.Lock()
	op, ok := m.operations[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	op.clearTimers()
	delete(m.operations, id)
	m.mu.Unlock()

	m.logger.Debug().
		Str("operation_id", id).
		Str("reason", reason).
		Dur("duration", time.Since(op.startedAt)).
		Msg("Operation supervision ended")
	m.runCleanup(op, reason)
}

func (m *Manager) onSoft(id string) {
	m.mu.Lock()
	op, ok := m.operations[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	op.warned = true
	elapsed := time.Since(op.startedAt)
	cb := op.callbacks.OnSoftTimeout
	m.mu.Unlock()

	m.logger.Info().Str("operation_id", id).Dur("elapsed", elapsed).Msg("Operation still running")
	if cb != nil {
		cb(id, elapsed)
	}
}

func (m *Manager) onMedium(id string) {
	m.mu.Lock()
	op, ok := m.operations[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	elapsed := time.Since(op.startedAt)
	callbacks := op.callbacks
	m.mu.Unlock()

	m.logger.Warn().Str("operation_id", id).Dur("elapsed", elapsed).Msg("Operation exceeded medium threshold")
	m.publishStuck(id)

	keepWaiting := false
	switch {
	case callbacks.OnMediumTimeout != nil:
		keepWaiting = callbacks.OnMediumTimeout(id, elapsed)
	case callbacks.KeepWaiting != nil:
		keepWaiting = callbacks.KeepWaiting(id)
	}
	if !keepWaiting {
		m.CancelOperation(id, "medium timeout")
	}
}

func (m *Manager) onHard(id string) {
	m.mu.Lock()
	op, ok := m.operations[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	elapsed := time.Since(op.startedAt)
	cb := op.callbacks.OnHardTimeout
	m.mu.Unlock()

	m.logger.Error().Str("operation_id", id).Dur("elapsed", elapsed).Msg("Operation exceeded hard threshold, forcing cancellation")
	if cb != nil {
		cb(id, elapsed)
	}
	m.CancelOperation(id, "hard timeout")
}

func (m *Manager) onNuclear(id string) {
	m.mu.Lock()
	op, ok := m.operations[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	elapsed := time.Since(op.startedAt)
	cb := op.callbacks.OnNuclearTimeout
	m.mu.Unlock()

	m.logger.Error().Str("operation_id", id).Dur("elapsed", elapsed).Msg("Operation exceeded nuclear threshold, cleaning up all operations")
	if cb != nil {
		cb(id, elapsed)
	}
	m.EmergencyCleanup()
}

func (m *Manager) runCleanup(op *operation, reason string) {
	if op.callbacks.Cleanup == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Str("operation_id", op.id).Str("panic", fmt.Sprint(r)).Msg("Operation cleanup panicked")
		}
	}()
	op.callbacks.Cleanup(op.id, reason)
}

func (m *Manager) publishStuck(id string) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(context.Background(), interfaces.Event{Type: interfaces.EventOperationStuck, Payload: id}); err != nil {
		m.logger.Warn().Err(err).Str("operation_id", id).Msg("Failed to publish stuck-operation event")
	}
}

// resolveConfig fills zero thresholds from the operation type's defaults.
func resolveConfig(opType interfaces.OperationType, config *interfaces.TimeoutConfig) interfaces.TimeoutConfig {
	defaults, ok := typeDefaults[opType]
	if !ok {
		defaults = typeDefaults[interfaces.OperationExport]
	}
	if config == nil {
		return defaults
	}
	cfg := *config
	if cfg.Soft == 0 {
		cfg.Soft = defaults.Soft
	}
	if cfg.Medium == 0 {
		cfg.Medium = defaults.Medium
	}
	if cfg.Hard == 0 {
		cfg.Hard = defaults.Hard
	}
	if cfg.Nuclear == 0 {
		cfg.Nuclear = defaults.Nuclear
	}
	return cfg
}

var _ interfaces.TimeoutService = (*Manager)(nil)

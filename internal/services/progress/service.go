// -----------------------------------------------------------------------
// Progress Tracking Service - Per-batch progress state and fan-out
// -----------------------------------------------------------------------

package progress

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/GSejas/mermaid-export-pro/internal/common"
	"github.com/GSejas/mermaid-export-pro/internal/interfaces"
	"github.com/GSejas/mermaid-export-pro/internal/models"
)

// cancelGrace is how long a cancelled batch's state stays visible before
// removal, so subscribers can render the cancelled state.
const cancelGrace = time.Second

// batchState is the live record for one tracked batch. The service owns
// every batchState; callers only ever see copies of the embedded
// ProgressState.
type batchState struct {
	state        models.ProgressState
	subscribers  []interfaces.ProgressCallback
	cleanups     []func()
	history      []models.PerformanceSnapshot
	memoryWarned bool
}

// Service implements interfaces.ProgressService. All state lives behind a
// single mutex; the tick and sweep loops are the only background writers.
type Service struct {
	mu      sync.Mutex
	batches map[string]*batchState

	config common.ProgressConfig
	events interfaces.EventService
	logger arbor.ILogger

	tickRunning bool
	tickStop    chan struct{}
	sweepStop   chan struct{}
	closed      bool
}

// NewService creates the progress tracking service and starts the stale
// sweep loop. The metrics tick starts lazily with the first reporter.
func NewService(config common.ProgressConfig, events interfaces.EventService, logger arbor.ILogger) *Service {
	s := &Service{
		batches:   make(map[string]*batchState),
		config:    config,
		events:    events,
		logger:    logger,
		sweepStop: make(chan struct{}),
	}
	common.SafeGo(logger, "progress-sweep", s.sweepLoop)
	return s
}

// CreateReporter registers a batch and returns its reporter handle. The
// first reporter starts the metrics tick.
func (s *Service) CreateReporter(batchID string) interfaces.ProgressReporter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.batches[batchID]; !exists {
		s.batches[batchID] = &batchState{
			state: models.ProgressState{
				BatchID:     batchID,
				Timing:      models.ProgressTiming{StartedAt: time.Now()},
				Operation:   models.CurrentOperation{Phase: models.PhasePlanning},
				LastUpdated: time.Now(),
			},
		}
		s.logger.Debug().Str("batch_id", batchID).Msg("Progress tracking started")
	}

	if !s.tickRunning && !s.closed {
		s.tickRunning = true
		s.tickStop = make(chan struct{})
		stop := s.tickStop
		common.SafeGo(s.logger, "progress-tick", func() { s.tickLoop(stop) })
	}

	return &reporter{service: s, batchID: batchID}
}

// GetProgress returns a snapshot of a batch's state.
func (s *Service) GetProgress(batchID string) (models.ProgressState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bs, ok := s.batches[batchID]
	if !ok {
		return models.ProgressState{}, false
	}
	return bs.state, true
}

// OnProgress subscribes to a batch's updates. The callback fires
// immediately with the current snapshot, then on every subsequent update.
func (s *Service) OnProgress(batchID string, cb interfaces.ProgressCallback) error {
	s.mu.Lock()
	bs, ok := s.batches[batchID]
	if !ok {
		s.mu.Unlock()
		return &models.ExportError{
			Code:     models.CodeInvalidConfig,
			Message:  "unknown batch: " + batchID,
			Category: models.ErrorConfiguration,
			Severity: models.SeverityWarning,
		}
	}
	bs.subscribers = append(bs.subscribers, cb)
	snapshot := bs.state
	s.mu.Unlock()

	s.invoke(cb, snapshot)
	return nil
}

// RegisterCleanup adds a callback invoked when the batch is cancelled.
func (s *Service) RegisterCleanup(batchID string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bs, ok := s.batches[batchID]; ok {
		bs.cleanups = append(bs.cleanups, fn)
	}
}

// Cancel marks a batch cancelled, runs all registered cleanup callbacks,
// notifies subscribers, and schedules removal after a grace period.
func (s *Service) Cancel(batchID string, reason string) {
	s.mu.Lock()
	bs, ok := s.batches[batchID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if bs.state.Cancelled {
		s.mu.Unlock()
		return
	}

	bs.state.Cancelled = true
	bs.state.Operation.Phase = models.PhaseFailed
	bs.state.Operation.Message = "cancelled: " + reason
	bs.state.LastUpdated = time.Now()

	cleanups := bs.cleanups
	bs.cleanups = nil
	s.mu.Unlock()

	for _, fn := range cleanups {
		s.runCleanup(batchID, fn)
	}

	s.logger.Info().Str("batch_id", batchID).Str("reason", reason).Msg("Batch cancelled")
	s.notify(batchID)
	s.publish(interfaces.EventBatchCancelled, batchID)

	time.AfterFunc(cancelGrace, func() { s.Cleanup(batchID) })
}

// Cleanup removes a batch's state immediately.
func (s *Service) Cleanup(batchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[batchID]; ok {
		delete(s.batches, batchID)
		s.logger.Debug().Str("batch_id", batchID).Msg("Progress state removed")
	}
}

// Close stops the tick and sweep loops and drops all state.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.sweepStop)
	if s.tickRunning {
		close(s.tickStop)
		s.tickRunning = false
	}
	s.batches = make(map[string]*batchState)
}

// tickLoop recomputes performance metrics and re-notifies subscribers for
// every non-cancelled batch. It exits when the batch map empties.
func (s *Service) tickLoop(stop chan struct{}) {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if s.tick() {
				return
			}
		}
	}
}

// tick runs one metrics pass. Returns true when there is nothing left to
// track and the loop should stop.
func (s *Service) tick() bool {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	now := time.Now()

	s.mu.Lock()
	if len(s.batches) == 0 {
		s.tickRunning = false
		s.mu.Unlock()
		return true
	}

	var memoryWarnings []string
	var active []string
	for id, bs := range s.batches {
		if bs.state.Cancelled {
			continue
		}

		elapsed := now.Sub(bs.state.Timing.StartedAt)
		if elapsed > 0 {
			bs.state.Performance.JobsPerSecond = float64(bs.state.CompletedJobs) / elapsed.Seconds()
		}
		bs.state.Performance.MemoryUsage = memStats.HeapInuse

		snapshot := models.PerformanceSnapshot{
			Timestamp:     now,
			CompletedJobs: bs.state.CompletedJobs,
			JobsPerSecond: bs.state.Performance.JobsPerSecond,
			MemoryUsage:   memStats.HeapInuse,
			ActiveJobs:    bs.state.JobCounts.Running,
		}
		bs.history = append(bs.history, snapshot)
		if len(bs.history) > s.config.HistorySize {
			bs.history = bs.history[len(bs.history)-s.config.HistorySize:]
		}

		if memStats.HeapInuse > s.config.MemoryThreshold && !bs.memoryWarned {
			bs.memoryWarned = true
			memoryWarnings = append(memoryWarnings, id)
		}

		active = append(active, id)
	}
	s.mu.Unlock()

	for _, id := range memoryWarnings {
		s.logger.Warn().Str("batch_id", id).Int64("heap_in_use", int64(memStats.HeapInuse)).Msg("Memory usage above threshold")
		s.publish(interfaces.EventMemoryWarning, id)
	}
	for _, id := range active {
		s.notify(id)
	}
	return false
}

// sweepLoop removes batches whose lastUpdated is older than the stale
// threshold, guarding against leaked state from abandoned batches.
func (s *Service) sweepLoop() {
	ticker := time.NewTicker(s.config.StaleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-s.sweepStop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Service) sweep() {
	threshold := time.Now().Add(-s.config.StaleTimeout)

	s.mu.Lock()
	var stale []string
	for id, bs := range s.batches {
		if bs.state.LastUpdated.Before(threshold) {
			stale = append(stale, id)
			delete(s.batches, id)
		}
	}
	s.mu.Unlock()

	for _, id := range stale {
		s.logger.Warn().Str("batch_id", id).Msg("Removed stale progress state")
	}
}

// GetHistory returns a copy of a batch's performance snapshot ring.
func (s *Service) GetHistory(batchID string) []models.PerformanceSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	bs, ok := s.batches[batchID]
	if !ok {
		return nil
	}
	out := make([]models.PerformanceSnapshot, len(bs.history))
	copy(out, bs.history)
	return out
}

// notify fans a snapshot out to a batch's subscribers in registration
// order. Callbacks run outside the lock and each is panic-isolated.
func (s *Service) notify(batchID string) {
	s.mu.Lock()
	bs, ok := s.batches[batchID]
	if !ok {
		s.mu.Unlock()
		return
	}
	snapshot := bs.state
	subscribers := make([]interfaces.ProgressCallback, len(bs.subscribers))
	copy(subscribers, bs.subscribers)
	s.mu.Unlock()

	for _, cb := range subscribers {
		s.invoke(cb, snapshot)
	}
}

func (s *Service) invoke(cb interfaces.ProgressCallback, state models.ProgressState) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("batch_id", state.BatchID).Str("panic", fmt.Sprint(r)).Msg("Progress subscriber panicked")
		}
	}()
	cb(state)
}

func (s *Service) runCleanup(batchID string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("batch_id", batchID).Str("panic", fmt.Sprint(r)).Msg("Cleanup callback panicked")
		}
	}()
	fn()
}

func (s *Service) publish(eventType interfaces.EventType, payload interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(context.Background(), interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish event")
	}
}

var _ interfaces.ProgressService = (*Service)(nil)

// -----------------------------------------------------------------------
// Scheduler Service - Cron-driven folder re-export
// -----------------------------------------------------------------------

package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// ExportFunc runs one full folder export. The scheduler does not retry a
// failed run; the next tick tries again.
type ExportFunc func() error

// Service runs a configured folder export on a cron schedule.
type Service struct {
	cron   *cron.Cron
	logger arbor.ILogger
	export ExportFunc

	mu        sync.Mutex
	running   bool
	executing bool
	entryID   cron.EntryID
	lastRun   time.Time
	lastError string
}

// NewService creates a scheduler service around the given export function.
func NewService(export ExportFunc, logger arbor.ILogger) *Service {
	return &Service{
		cron:   cron.New(),
		logger: logger,
		export: export,
	}
}

// Start registers the export job under the given cron expression and
// starts the cron runner.
func (s *Service) Start(cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if cronExpr == "" {
		cronExpr = "0 * * * *" // Default: hourly
	}

	entryID, err := s.cron.AddFunc(cronExpr, s.runExport)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	s.entryID = entryID
	s.cron.Start()
	s.running = true

	s.logger.Info().Str("schedule", cronExpr).Msg("Scheduled export started")
	return nil
}

// Stop halts the cron runner, waiting for an in-flight run to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Scheduled export stopped")
}

// IsRunning reports whether the scheduler is active.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled fire time, or zero when stopped.
func (s *Service) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// runExport executes one scheduled export, skipping the tick when the
// previous run is still in flight.
func (s *Service) runExport() {
	s.mu.Lock()
	if s.executing {
		s.mu.Unlock()
		s.logger.Warn().Msg("Previous scheduled export still running, skipping tick")
		return
	}
	s.executing = true
	s.mu.Unlock()

	start := time.Now()
	s.logger.Info().Msg("Scheduled export starting")
	err := s.export()

	s.mu.Lock()
	s.executing = false
	s.lastRun = start
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("Scheduled export failed")
		return
	}
	s.logger.Info().Dur("duration", time.Since(start)).Msg("Scheduled export completed")
}

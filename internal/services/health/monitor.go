// -----------------------------------------------------------------------
// Health Monitor - Periodic system health checks
// -----------------------------------------------------------------------

package health

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/GSejas/mermaid-export-pro/internal/common"
	"github.com/GSejas/mermaid-export-pro/internal/interfaces"
)

// Status is the overall health verdict of one check pass.
type Status string

const (
	StatusOK             Status = "ok"
	StatusStuck          Status = "stuck-operations"
	StatusMemoryPressure Status = "memory-pressure"
)

// Report is the outcome of one health check pass.
type Report struct {
	Status      Status        `json:"status"`
	ActiveOps   int           `json:"active_ops"`
	StuckOps    int           `json:"stuck_ops"`
	OldestOpAge time.Duration `json:"oldest_op_age,omitempty"`
	HeapInUse   uint64        `json:"heap_in_use"`
	Goroutines  int           `json:"goroutines"`
	CheckedAt   time.Time     `json:"checked_at"`
}

// Monitor periodically combines timeout-manager state with runtime memory
// statistics and publishes health transitions on the event bus.
type Monitor struct {
	timeouts        interfaces.TimeoutService
	events          interfaces.EventService
	logger          arbor.ILogger
	interval        time.Duration
	memoryThreshold uint64

	mu     sync.Mutex
	last   Report
	stopCh chan struct{}
	once   sync.Once
}

// NewMonitor creates a health monitor polling at the given interval.
func NewMonitor(timeouts interfaces.TimeoutService, events interfaces.EventService, interval time.Duration, memoryThreshold uint64, logger arbor.ILogger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		timeouts:        timeouts,
		events:          events,
		logger:          logger,
		interval:        interval,
		memoryThreshold: memoryThreshold,
		stopCh:          make(chan struct{}),
	}
}

// Start launches the poll loop.
func (m *Monitor) Start() {
	common.SafeGo(m.logger, "health-monitor", m.loop)
}

// Stop terminates the poll loop.
func (m *Monitor) Stop() {
	m.once.Do(func() { close(m.stopCh) })
}

// LastReport returns the most recent check result.
func (m *Monitor) LastReport() Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Check()
		}
	}
}

// Check runs one health pass and publishes an event when the status
// changes from the previous pass.
func (m *Monitor) Check() Report {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	report := Report{
		HeapInUse:  memStats.HeapInuse,
		Goroutines: runtime.NumGoroutine(),
		CheckedAt:  time.Now(),
		Status:     StatusOK,
	}

	ops := m.timeouts.GetActiveOperations()
	report.ActiveOps = len(ops)
	for _, op := range ops {
		if op.IsWarned {
			report.StuckOps++
		}
		if op.Duration > report.OldestOpAge {
			report.OldestOpAge = op.Duration
		}
	}

	switch {
	case report.StuckOps > 0:
		report.Status = StatusStuck
	case m.memoryThreshold > 0 && memStats.HeapInuse > m.memoryThreshold:
		report.Status = StatusMemoryPressure
	}

	m.mu.Lock()
	previous := m.last.Status
	m.last = report
	m.mu.Unlock()

	if report.Status != StatusOK {
		m.logger.Warn().
			Str("status", string(report.Status)).
			Int("active_ops", report.ActiveOps).
			Int("stuck_ops", report.StuckOps).
			Int64("heap_in_use", int64(report.HeapInUse)).
			Msg("Health check degraded")
	}

	if report.Status != previous && m.events != nil {
		event := interfaces.Event{Type: interfaces.EventHealthChanged, Payload: report}
		if err := m.events.Publish(context.Background(), event); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to publish health event")
		}
	}

	return report
}

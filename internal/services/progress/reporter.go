// -----------------------------------------------------------------------
// Progress Reporter - Write-side handle for batch executors
// -----------------------------------------------------------------------

package progress

import (
	"time"

	"github.com/GSejas/mermaid-export-pro/internal/interfaces"
	"github.com/GSejas/mermaid-export-pro/internal/models"
)

// reporter pushes updates for one batch into the owning service. Every
// mutation recomputes the timing model and notifies subscribers.
type reporter struct {
	service *Service
	batchID string
}

func (r *reporter) BatchID() string {
	return r.batchID
}

func (r *reporter) InitializeBatch(totalJobs int) {
	r.mutate(func(state *models.ProgressState) {
		state.TotalJobs = totalJobs
		state.JobCounts = models.JobCounts{Pending: totalJobs}
		state.Timing.StartedAt = time.Now()
	})
}

func (r *reporter) SetPhase(phase models.ExportPhase, message string) {
	r.mutate(func(state *models.ProgressState) {
		state.Operation.Phase = phase
		state.Operation.Message = message
		state.Operation.SubProgress = 0
	})
}

func (r *reporter) SetCurrentJob(jobID string) {
	r.mutate(func(state *models.ProgressState) {
		state.CurrentJob = jobID
	})
}

func (r *reporter) StartJob(jobID string) {
	r.mutate(func(state *models.ProgressState) {
		if state.JobCounts.Pending > 0 {
			state.JobCounts.Pending--
		}
		state.JobCounts.Running++
	})
}

func (r *reporter) CompleteJob(jobID string, success bool) {
	r.mutate(func(state *models.ProgressState) {
		if state.JobCounts.Running > 0 {
			state.JobCounts.Running--
		}
		if success {
			state.JobCounts.Completed++
		} else {
			state.JobCounts.Failed++
		}
		state.CompletedJobs = state.JobCounts.Completed + state.JobCounts.Failed
		if state.TotalJobs > 0 {
			state.OverallProgress = float64(state.CompletedJobs) / float64(state.TotalJobs)
		}
		if state.CurrentJob == jobID {
			state.CurrentJob = ""
		}
	})
}

func (r *reporter) SkipJob(jobID string) {
	r.mutate(func(state *models.ProgressState) {
		if state.JobCounts.Pending > 0 {
			state.JobCounts.Pending--
		}
		state.JobCounts.Skipped++
	})
}

func (r *reporter) AddOutputBytes(n int64) {
	if n <= 0 {
		return
	}
	r.mutate(func(state *models.ProgressState) {
		state.Performance.TotalThroughput += n
	})
}

func (r *reporter) ReportError(message string) {
	r.mutate(func(state *models.ProgressState) {
		state.Operation.Message = message
	})
}

func (r *reporter) IsCancelled() bool {
	state, ok := r.service.GetProgress(r.batchID)
	return ok && state.Cancelled
}

// mutate applies fn to the live state under the service lock, recomputes
// timing, then notifies subscribers outside the lock.
func (r *reporter) mutate(fn func(*models.ProgressState)) {
	s := r.service

	s.mu.Lock()
	bs, ok := s.batches[r.batchID]
	if !ok {
		s.mu.Unlock()
		return
	}
	fn(&bs.state)
	recomputeTiming(&bs.state)
	bs.state.LastUpdated = time.Now()
	s.mu.Unlock()

	s.notify(r.batchID)
}

// recomputeTiming derives average job time, remaining time, and the
// estimated completion from completed-job counts.
func recomputeTiming(state *models.ProgressState) {
	if state.CompletedJobs == 0 {
		return
	}
	now := time.Now()
	elapsed := now.Sub(state.Timing.StartedAt)
	state.Timing.AverageJobTime = elapsed / time.Duration(state.CompletedJobs)
	state.Timing.RemainingTime = time.Duration(state.TotalJobs-state.CompletedJobs) * state.Timing.AverageJobTime
	state.Timing.EstimatedCompletion = now.Add(state.Timing.RemainingTime)
}

var _ interfaces.ProgressReporter = (*reporter)(nil)

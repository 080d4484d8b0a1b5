package progress

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/GSejas/mermaid-export-pro/internal/common"
	"github.com/GSejas/mermaid-export-pro/internal/models"
)

func testService(t *testing.T) *Service {
	t.Helper()
	s := NewService(common.ProgressConfig{
		TickInterval:    10 * time.Millisecond,
		StaleTimeout:    time.Minute,
		MemoryThreshold: 1 << 40,
		HistorySize:     100,
	}, nil, arbor.NewLogger())
	t.Cleanup(s.Close)
	return s
}

func TestProgressMonotonicity(t *testing.T) {
	s := testService(t)
	reporter := s.CreateReporter("batch_p4")
	reporter.InitializeBatch(5)

	var last float64
	for i := 0; i < 5; i++ {
		jobID := models.NewJobID()
		reporter.StartJob(jobID)
		reporter.CompleteJob(jobID, true)

		state, ok := s.GetProgress("batch_p4")
		if !ok {
			t.Fatal("batch state missing")
		}
		if state.OverallProgress < last {
			t.Fatalf("progress decreased: %f -> %f", last, state.OverallProgress)
		}
		last = state.OverallProgress
	}

	state, _ := s.GetProgress("batch_p4")
	if state.OverallProgress != 1.0 {
		t.Errorf("expected progress 1.0 after all jobs, got %f", state.OverallProgress)
	}
	if state.CompletedJobs != 5 {
		t.Errorf("expected 5 completed jobs, got %d", state.CompletedJobs)
	}
}

func TestOutputBytesAccumulateIntoThroughput(t *testing.T) {
	s := testService(t)
	reporter := s.CreateReporter("batch_bytes")
	reporter.InitializeBatch(2)

	reporter.AddOutputBytes(1024)
	reporter.AddOutputBytes(512)
	reporter.AddOutputBytes(0)
	reporter.AddOutputBytes(-5)

	state, _ := s.GetProgress("batch_bytes")
	if state.Performance.TotalThroughput != 1536 {
		t.Errorf("total throughput: expected 1536, got %d", state.Performance.TotalThroughput)
	}
}

func TestJobCountTransitions(t *testing.T) {
	s := testService(t)
	reporter := s.CreateReporter("batch_counts")
	reporter.InitializeBatch(4)

	reporter.StartJob("j1")
	reporter.StartJob("j2")
	reporter.CompleteJob("j1", true)
	reporter.CompleteJob("j2", false)
	reporter.SkipJob("j3")

	state, _ := s.GetProgress("batch_counts")
	if state.JobCounts.Pending != 1 {
		t.Errorf("pending: expected 1, got %d", state.JobCounts.Pending)
	}
	if state.JobCounts.Running != 0 {
		t.Errorf("running: expected 0, got %d", state.JobCounts.Running)
	}
	if state.JobCounts.Completed != 1 {
		t.Errorf("completed: expected 1, got %d", state.JobCounts.Completed)
	}
	if state.JobCounts.Failed != 1 {
		t.Errorf("failed: expected 1, got %d", state.JobCounts.Failed)
	}
	if state.JobCounts.Skipped != 1 {
		t.Errorf("skipped: expected 1, got %d", state.JobCounts.Skipped)
	}
}

func TestOnProgressFiresImmediately(t *testing.T) {
	s := testService(t)
	reporter := s.CreateReporter("batch_sub")
	reporter.InitializeBatch(2)

	var calls int32
	err := s.OnProgress("batch_sub", func(state models.ProgressState) {
		atomic.AddInt32(&calls, 1)
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected immediate snapshot, got %d calls", calls)
	}

	reporter.StartJob("j1")
	if atomic.LoadInt32(&calls) < 2 {
		t.Errorf("expected a notification after update, got %d calls", calls)
	}
}

func TestOnProgressUnknownBatch(t *testing.T) {
	s := testService(t)
	if err := s.OnProgress("batch_missing", func(models.ProgressState) {}); err == nil {
		t.Fatal("expected an error for an unknown batch")
	}
}

func TestSubscriberPanicIsIsolated(t *testing.T) {
	s := testService(t)
	reporter := s.CreateReporter("batch_panic")
	reporter.InitializeBatch(1)

	var healthyCalls int32
	s.OnProgress("batch_panic", func(models.ProgressState) {
		panic("bad subscriber")
	})
	s.OnProgress("batch_panic", func(models.ProgressState) {
		atomic.AddInt32(&healthyCalls, 1)
	})

	reporter.StartJob("j1")

	// The second subscriber still fires after the first one panics.
	if atomic.LoadInt32(&healthyCalls) < 2 {
		t.Errorf("healthy subscriber starved: %d calls", healthyCalls)
	}
}

func TestCancelRunsCleanupsAndExpiresState(t *testing.T) {
	s := testService(t)
	reporter := s.CreateReporter("batch_cancel")
	reporter.InitializeBatch(3)

	var mu sync.Mutex
	cleanupCalls := map[string]int{}
	s.RegisterCleanup("batch_cancel", func() {
		mu.Lock()
		cleanupCalls["first"]++
		mu.Unlock()
	})
	s.RegisterCleanup("batch_cancel", func() {
		mu.Lock()
		cleanupCalls["second"]++
		mu.Unlock()
	})

	s.Cancel("batch_cancel", "user request")

	mu.Lock()
	if cleanupCalls["first"] != 1 || cleanupCalls["second"] != 1 {
		t.Errorf("expected each cleanup exactly once, got %v", cleanupCalls)
	}
	mu.Unlock()

	state, ok := s.GetProgress("batch_cancel")
	if !ok {
		t.Fatal("state should survive the grace period")
	}
	if !state.Cancelled {
		t.Error("expected cancelled flag")
	}
	if state.Operation.Phase != models.PhaseFailed {
		t.Errorf("expected failed phase, got %s", state.Operation.Phase)
	}
	if !reporter.IsCancelled() {
		t.Error("reporter should observe cancellation")
	}

	// A second cancel is a no-op, cleanups do not rerun.
	s.Cancel("batch_cancel", "again")
	mu.Lock()
	if cleanupCalls["first"] != 1 {
		t.Errorf("cleanup ran again on duplicate cancel: %v", cleanupCalls)
	}
	mu.Unlock()

	// The grace period removes the state.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := s.GetProgress("batch_cancel"); !ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("cancelled batch was not removed after the grace period")
}

func TestCleanupRemovesStateImmediately(t *testing.T) {
	s := testService(t)
	s.CreateReporter("batch_gone")
	s.Cleanup("batch_gone")

	if _, ok := s.GetProgress("batch_gone"); ok {
		t.Error("expected state to be removed")
	}
}

func TestTimingModelRecomputed(t *testing.T) {
	s := testService(t)
	reporter := s.CreateReporter("batch_timing")
	reporter.InitializeBatch(4)

	reporter.StartJob("j1")
	time.Sleep(20 * time.Millisecond)
	reporter.CompleteJob("j1", true)

	state, _ := s.GetProgress("batch_timing")
	if state.Timing.AverageJobTime <= 0 {
		t.Error("expected a positive average job time")
	}
	if state.Timing.RemainingTime <= 0 {
		t.Error("expected a positive remaining time with 3 jobs left")
	}
	if state.Timing.EstimatedCompletion.Before(time.Now().Add(-time.Second)) {
		t.Error("estimated completion should be in the future")
	}
}

func TestTickPopulatesPerformanceHistory(t *testing.T) {
	s := testService(t)
	reporter := s.CreateReporter("batch_history")
	reporter.InitializeBatch(2)
	reporter.StartJob("j1")
	reporter.CompleteJob("j1", true)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(s.GetHistory("batch_history")) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	history := s.GetHistory("batch_history")
	if len(history) == 0 {
		t.Fatal("expected performance snapshots from the tick loop")
	}
	latest := history[len(history)-1]
	if latest.CompletedJobs != 1 {
		t.Errorf("snapshot completed jobs: expected 1, got %d", latest.CompletedJobs)
	}
	if latest.MemoryUsage == 0 {
		t.Error("expected a memory reading in the snapshot")
	}
}

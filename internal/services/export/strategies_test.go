package export

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/GSejas/mermaid-export-pro/internal/models"
)

// fakeReporter records reporter calls and can flip to cancelled after a
// configured number of completions.
type fakeReporter struct {
	mu          sync.Mutex
	batchID     string
	started     []string
	completed   []string
	skipped     []string
	cancelAfter int
	cancelled   bool
	bytes       int64
}

func (r *fakeReporter) BatchID() string                 { return r.batchID }
func (r *fakeReporter) InitializeBatch(totalJobs int)   {}
func (r *fakeReporter) SetPhase(models.ExportPhase, string) {}
func (r *fakeReporter) SetCurrentJob(jobID string)      {}
func (r *fakeReporter) ReportError(message string)      {}

func (r *fakeReporter) StartJob(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, jobID)
}

func (r *fakeReporter) CompleteJob(jobID string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, jobID)
	if r.cancelAfter > 0 && len(r.completed) >= r.cancelAfter {
		r.cancelled = true
	}
}

func (r *fakeReporter) SkipJob(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped = append(r.skipped, jobID)
}

func (r *fakeReporter) AddOutputBytes(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bytes += n
}

func (r *fakeReporter) IsCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

func makeJobs(t *testing.T, n int, sourceFiles ...string) []*models.ExportJob {
	t.Helper()
	dir := t.TempDir()
	jobs := make([]*models.ExportJob, 0, n)
	for i := 0; i < n; i++ {
		source := "docs/a.md"
		if len(sourceFiles) > 0 {
			source = sourceFiles[i%len(sourceFiles)]
		}
		jobs = append(jobs, &models.ExportJob{
			ID:             models.NewJobID(),
			SourceFile:     source,
			DiagramContent: "graph TD\n  A --> B",
			Format:         models.FormatSVG,
			OutputPath:     filepath.Join(dir, models.NewJobID()+".svg"),
			RetryPolicy:    models.DefaultRetryConfig(),
		})
	}
	return jobs
}

func newRunner(reporter *fakeReporter) (*runner, *stubStrategy) {
	executor, _ := newTestExecutor()
	strategy := &stubStrategy{name: "CLI", available: true}
	return &runner{executor: executor, strategy: strategy, reporter: reporter}, strategy
}

func TestRunSequentialCompletesAllJobs(t *testing.T) {
	reporter := &fakeReporter{batchID: "batch_test"}
	run, _ := newRunner(reporter)
	jobs := makeJobs(t, 4)

	results := run.runSequential(context.Background(), jobs)

	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	var totalBytes int64
	for i, result := range results {
		if !result.Success {
			t.Errorf("job %d failed: %v", i, result.Error)
		}
		// Sequential preserves batch order.
		if result.Job.ID != jobs[i].ID {
			t.Errorf("result %d out of order", i)
		}
		totalBytes += result.OutputSize
	}
	if reporter.bytes != totalBytes || reporter.bytes == 0 {
		t.Errorf("expected %d output bytes reported, got %d", totalBytes, reporter.bytes)
	}
}

func TestRunSequentialSkipsAfterCancellation(t *testing.T) {
	reporter := &fakeReporter{batchID: "batch_test", cancelAfter: 2}
	run, _ := newRunner(reporter)
	jobs := makeJobs(t, 5)

	results := run.runSequential(context.Background(), jobs)

	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	var skipped int
	for _, result := range results {
		if result.Skipped {
			skipped++
			if result.Error == nil || result.Error.Code != models.CodeCancelled {
				t.Errorf("skipped result missing cancellation error: %+v", result.Error)
			}
		}
	}
	if skipped != 3 {
		t.Errorf("expected 3 skipped results, got %d", skipped)
	}
}

func TestRunParallelCompletesAllJobs(t *testing.T) {
	reporter := &fakeReporter{batchID: "batch_test"}
	run, strategy := newRunner(reporter)
	jobs := makeJobs(t, 10)

	results := run.runParallel(context.Background(), jobs)

	if len(results) != 10 {
		t.Fatalf("expected 10 results, got %d", len(results))
	}
	if strategy.callCount() != 10 {
		t.Errorf("expected 10 renders, got %d", strategy.callCount())
	}
	for _, result := range results {
		if !result.Success {
			t.Errorf("job failed: %v", result.Error)
		}
	}
}

func TestRunMixedGroupsBySourceFile(t *testing.T) {
	reporter := &fakeReporter{batchID: "batch_test"}
	run, _ := newRunner(reporter)
	jobs := makeJobs(t, 6, "docs/a.md", "docs/b.md", "docs/c.md")

	results := run.runMixed(context.Background(), jobs)

	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}

	// Files run serially, so all of one file's results precede the next
	// file's. The first-appearance order is a, b, c.
	seen := make(map[string]bool)
	var fileOrder []string
	for _, result := range results {
		if !seen[result.Job.SourceFile] {
			seen[result.Job.SourceFile] = true
			fileOrder = append(fileOrder, result.Job.SourceFile)
		}
	}
	want := []string{"docs/a.md", "docs/b.md", "docs/c.md"}
	for i := range want {
		if fileOrder[i] != want[i] {
			t.Fatalf("file group order: expected %v, got %v", want, fileOrder)
		}
	}
}

func TestRunMixedStopsBetweenFilesOnCancellation(t *testing.T) {
	// Cancel after the first file group's two jobs complete.
	reporter := &fakeReporter{batchID: "batch_test", cancelAfter: 2}
	run, _ := newRunner(reporter)

	jobs := makeJobs(t, 6, "docs/a.md", "docs/b.md", "docs/c.md")
	// Regroup so each file owns two consecutive jobs.
	jobs[1].SourceFile = "docs/a.md"
	jobs[2].SourceFile = "docs/b.md"
	jobs[3].SourceFile = "docs/b.md"
	jobs[4].SourceFile = "docs/c.md"
	jobs[5].SourceFile = "docs/c.md"
	jobs[0].SourceFile = "docs/a.md"

	results := run.runMixed(context.Background(), jobs)

	var executed, skipped int
	for _, result := range results {
		if result.Skipped {
			skipped++
		} else {
			executed++
		}
	}
	if executed != 2 {
		t.Errorf("expected 2 executed jobs, got %d", executed)
	}
	if skipped != 4 {
		t.Errorf("expected 4 skipped jobs, got %d", skipped)
	}
}

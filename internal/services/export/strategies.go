// -----------------------------------------------------------------------
// Execution Strategies - Sequential, parallel, mixed, and prioritized runs
// -----------------------------------------------------------------------

package export

import (
	"context"
	"sync"

	"github.com/GSejas/mermaid-export-pro/internal/interfaces"
	"github.com/GSejas/mermaid-export-pro/internal/models"
)

// maxConcurrency caps concurrently scheduled jobs under parallel execution.
const maxConcurrency = 4

// runner executes a batch's already-ordered jobs under one concurrency
// pattern. Cancellation is cooperative: IsCancelled is polled before each
// unit of work (job, chunk, or file group); in-flight jobs finish.
type runner struct {
	executor *JobExecutor
	strategy interfaces.RenderStrategy
	reporter interfaces.ProgressReporter
}

// run dispatches on the batch's execution strategy. Results accumulate in
// completion order.
func (r *runner) run(ctx context.Context, batch *models.Batch) []*models.JobResult {
	switch batch.ExecutionStrategy {
	case models.StrategyParallel:
		return r.runParallel(ctx, batch.Jobs)
	case models.StrategyMixed:
		return r.runMixed(ctx, batch.Jobs)
	default:
		// Prioritized ordering is already encoded by the planner, so it
		// reduces to a sequential pass.
		return r.runSequential(ctx, batch.Jobs)
	}
}

// runSequential runs jobs one at a time in batch order.
func (r *runner) runSequential(ctx context.Context, jobs []*models.ExportJob) []*models.JobResult {
	results := make([]*models.JobResult, 0, len(jobs))
	for _, job := range jobs {
		if r.reporter.IsCancelled() {
			results = append(results, r.skipRemaining(jobs[len(results):])...)
			break
		}
		results = append(results, r.executeOne(ctx, job))
	}
	return results
}

// runParallel chunks the sorted jobs into groups of min(maxConcurrency, n)
// and runs each chunk fully concurrently. One failing job doesn't cancel
// its siblings; cancellation is checked between chunks.
func (r *runner) runParallel(ctx context.Context, jobs []*models.ExportJob) []*models.JobResult {
	chunkSize := maxConcurrency
	if len(jobs) < chunkSize {
		chunkSize = len(jobs)
	}

	results := make([]*models.JobResult, 0, len(jobs))
	for start := 0; start < len(jobs); start += chunkSize {
		if r.reporter.IsCancelled() {
			results = append(results, r.skipRemaining(jobs[start:])...)
			break
		}
		end := start + chunkSize
		if end > len(jobs) {
			end = len(jobs)
		}
		results = append(results, r.runGroup(ctx, jobs[start:end])...)
	}
	return results
}

// runMixed groups jobs by source file: all of a file's format-jobs run
// concurrently, files proceed sequentially.
func (r *runner) runMixed(ctx context.Context, jobs []*models.ExportJob) []*models.JobResult {
	// Group by source file, preserving first-appearance order.
	var order []string
	groups := make(map[string][]*models.ExportJob)
	for _, job := range jobs {
		if _, ok := groups[job.SourceFile]; !ok {
			order = append(order, job.SourceFile)
		}
		groups[job.SourceFile] = append(groups[job.SourceFile], job)
	}

	results := make([]*models.JobResult, 0, len(jobs))
	for i, file := range order {
		if r.reporter.IsCancelled() {
			for _, rest := range order[i:] {
				results = append(results, r.skipRemaining(groups[rest])...)
			}
			break
		}
		results = append(results, r.runGroup(ctx, groups[file])...)
	}
	return results
}

// runGroup runs a set of jobs concurrently, collecting results in
// completion order.
func (r *runner) runGroup(ctx context.Context, jobs []*models.ExportJob) []*models.JobResult {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make([]*models.JobResult, 0, len(jobs))
	)
	for _, job := range jobs {
		wg.Add(1)
		go func(job *models.ExportJob) {
			defer wg.Done()
			result := r.executeOne(ctx, job)
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		}(job)
	}
	wg.Wait()
	return results
}

// executeOne wraps a single job execution with progress reporting.
func (r *runner) executeOne(ctx context.Context, job *models.ExportJob) *models.JobResult {
	r.reporter.StartJob(job.ID)
	r.reporter.SetCurrentJob(job.ID)
	result := r.executor.ExecuteJob(ctx, job, r.strategy)
	if result.Success {
		r.reporter.AddOutputBytes(result.OutputSize)
	}
	r.reporter.CompleteJob(job.ID, result.Success)
	return result
}

// skipRemaining marks never-started jobs skipped after cancellation.
func (r *runner) skipRemaining(jobs []*models.ExportJob) []*models.JobResult {
	results := make([]*models.JobResult, 0, len(jobs))
	for _, job := range jobs {
		r.reporter.SkipJob(job.ID)
		results = append(results, &models.JobResult{
			Job:     job,
			Success: false,
			Skipped: true,
			Error: &models.ExportError{
				Code:     models.CodeCancelled,
				Message:  "batch cancelled before job started",
				Category: models.ErrorTransient,
				Severity: models.SeverityWarning,
				Phase:    models.PhaseExporting,
				File:     job.SourceFile,
				Format:   job.Format,
			},
		})
	}
	return results
}

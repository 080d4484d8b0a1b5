// -----------------------------------------------------------------------
// Job Executor - Runs one export job with retry and backoff
// -----------------------------------------------------------------------

package export

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/GSejas/mermaid-export-pro/internal/interfaces"
	"github.com/GSejas/mermaid-export-pro/internal/models"
)

// sleepFunc waits for a backoff delay, honoring context cancellation.
// Injected so tests can observe delays without real sleeping.
type sleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// JobExecutor runs single jobs against a chosen rendering strategy.
type JobExecutor struct {
	logger arbor.ILogger
	sleep  sleepFunc
}

// NewJobExecutor creates a job executor.
func NewJobExecutor(logger arbor.ILogger) *JobExecutor {
	return &JobExecutor{
		logger: logger,
		sleep:  defaultSleep,
	}
}

// ExecuteJob renders one job, writing the result to its output path.
// Transient failures are retried with exponential backoff per the job's
// retry policy; the returned result carries the accumulated retry count
// and, on failure, the categorized error.
func (e *JobExecutor) ExecuteJob(ctx context.Context, job *models.ExportJob, strategy interfaces.RenderStrategy) *models.JobResult {
	start := time.Now()
	result := &models.JobResult{
		Job:       job,
		Resources: models.ResourceMetadata{MemoryBefore: heapInUse()},
	}

	var lastErr *models.ExportError
	policy := job.RetryPolicy

	for attempt := 0; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(policy, attempt)
			e.logger.Debug().
				Str("job_id", job.ID).
				Int("attempt", attempt).
				Dur("backoff", delay).
				Msg("Retrying job after backoff")
			if err := e.sleep(ctx, delay); err != nil {
				lastErr = &models.ExportError{
					Code:     models.CodeCancelled,
					Message:  "job cancelled during retry backoff",
					Category: models.ErrorTransient,
					Severity: models.SeverityWarning,
					Phase:    models.PhaseExporting,
					File:     job.SourceFile,
					Format:   job.Format,
				}
				break
			}
			result.RetryAttempts = attempt
		}

		err := e.attempt(ctx, job, strategy, result)
		if err == nil {
			result.Success = true
			result.Duration = time.Since(start)
			result.Resources.MemoryAfter = heapInUse()
			result.CompletedAt = time.Now()
			return result
		}

		lastErr = models.ClassifyError(err, models.PhaseExporting, job.SourceFile, job.Format)
		if !lastErr.Retryable {
			break
		}
	}

	result.Success = false
	result.Error = lastErr
	result.Duration = time.Since(start)
	result.Resources.MemoryAfter = heapInUse()
	result.CompletedAt = time.Now()

	e.logger.Warn().
		Str("job_id", job.ID).
		Str("file", job.SourceFile).
		Str("format", string(job.Format)).
		Int("retries", result.RetryAttempts).
		Str("error", lastErr.Message).
		Msg("Job failed")

	return result
}

// attempt performs one render-and-write cycle.
func (e *JobExecutor) attempt(ctx context.Context, job *models.ExportJob, strategy interfaces.RenderStrategy, result *models.JobResult) error {
	data, err := strategy.Export(ctx, job.DiagramContent, job.RenderOptions)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(job.OutputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(job.OutputPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	info, err := os.Stat(job.OutputPath)
	if err != nil {
		return fmt.Errorf("failed to stat output: %w", err)
	}

	result.OutputPath = job.OutputPath
	result.OutputSize = info.Size()
	return nil
}

// backoffDelay computes min(initial * multiplier^(attempt-1), max).
func backoffDelay(policy models.RetryConfig, attempt int) time.Duration {
	delay := float64(policy.InitialDelay) * math.Pow(policy.BackoffMultiplier, float64(attempt-1))
	if capped := float64(policy.MaxDelay); delay > capped {
		delay = capped
	}
	return time.Duration(delay)
}

// heapInUse reads the current heap footprint.
func heapInUse() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapInuse
}

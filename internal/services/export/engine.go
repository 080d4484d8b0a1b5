// -----------------------------------------------------------------------
// Batch Export Engine - Composes planner, strategies, and executor
// -----------------------------------------------------------------------

package export

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/GSejas/mermaid-export-pro/internal/interfaces"
	"github.com/GSejas/mermaid-export-pro/internal/models"
	"github.com/GSejas/mermaid-export-pro/internal/services/render"
)

// Duration estimation constants. Advisory only; never used to enforce
// deadlines.
const (
	defaultBaseTime     = 3000 * time.Millisecond
	defaultMultiplier   = 1.5
	maxEstimateOverhead = 5000 * time.Millisecond
)

// baseTimePerFormat is the per-job rendering estimate by format.
var baseTimePerFormat = map[models.ExportFormat]time.Duration{
	models.FormatSVG:  1500 * time.Millisecond,
	models.FormatPNG:  2500 * time.Millisecond,
	models.FormatJPG:  2500 * time.Millisecond,
	models.FormatJPEG: 2500 * time.Millisecond,
	models.FormatWebP: 3000 * time.Millisecond,
	models.FormatPDF:  4000 * time.Millisecond,
}

// complexityMultiplier scales the base estimate by diagram complexity.
var complexityMultiplier = map[models.ComplexityCategory]float64{
	models.ComplexitySimple:      1.0,
	models.ComplexityModerate:    1.5,
	models.ComplexityComplex:     2.5,
	models.ComplexityVeryComplex: 4.0,
}

// Engine is the batch export engine: planning, execution, verification,
// and result aggregation.
type Engine struct {
	planner    *Planner
	executor   *JobExecutor
	strategies []interfaces.RenderStrategy
	events     interfaces.EventService
	history    interfaces.ExportHistoryStorage
	logger     arbor.ILogger
}

// NewEngine creates a batch export engine. The history storage is optional;
// a nil store disables record persistence.
func NewEngine(strategies []interfaces.RenderStrategy, events interfaces.EventService, history interfaces.ExportHistoryStorage, logger arbor.ILogger) *Engine {
	return &Engine{
		planner:    NewPlanner(logger),
		executor:   NewJobExecutor(logger),
		strategies: strategies,
		events:     events,
		history:    history,
		logger:     logger,
	}
}

// CreateBatch plans a batch from discovered source files.
func (e *Engine) CreateBatch(files []*models.SourceFile, config models.ExportConfig) (*models.Batch, error) {
	return e.planner.CreateBatch(files, config)
}

// EstimateDuration sums per-job estimates, scales by execution strategy,
// and adds a capped fixed overhead.
func (e *Engine) EstimateDuration(batch *models.Batch) time.Duration {
	var total time.Duration
	for _, job := range batch.Jobs {
		base, ok := baseTimePerFormat[job.Format]
		if !ok {
			base = defaultBaseTime
		}
		mult, ok := complexityMultiplier[job.ComplexityCategory]
		if !ok {
			mult = defaultMultiplier
		}
		total += time.Duration(float64(base) * mult)
	}

	switch batch.ExecutionStrategy {
	case models.StrategyParallel:
		divisor := maxConcurrency
		if len(batch.Jobs) < divisor {
			divisor = len(batch.Jobs)
		}
		if divisor > 1 {
			total /= time.Duration(divisor)
		}
	case models.StrategyMixed:
		total = time.Duration(float64(total) * 0.6)
	}

	overhead := total / 10
	if overhead > maxEstimateOverhead {
		overhead = maxEstimateOverhead
	}
	return total + overhead
}

// ExecuteBatch drives the five execution phases and returns a fully
// populated BatchResult even on top-level failure, preserving partial
// per-job results.
func (e *Engine) ExecuteBatch(ctx context.Context, batch *models.Batch, reporter interfaces.ProgressReporter) *models.BatchResult {
	start := time.Now()
	result := &models.BatchResult{
		BatchID:         batch.ID,
		Strategy:        batch.ExecutionStrategy,
		OutputsByFormat: make(map[models.ExportFormat][]string),
		OutputsByFile:   make(map[string][]string),
		StartedAt:       start,
	}

	phase := func(p models.ExportPhase, msg string) {
		reporter.SetPhase(p, msg)
		result.Timeline = append(result.Timeline, models.TimelineEvent{
			Phase:     p,
			Timestamp: time.Now(),
			Message:   msg,
		})
	}

	reporter.InitializeBatch(len(batch.Jobs))
	phase(models.PhasePlanning, fmt.Sprintf("preparing %d jobs", len(batch.Jobs)))

	e.publish(ctx, interfaces.EventBatchStarted, batch.ID)

	strategy, selErr := render.SelectStrategy(ctx, e.strategies)
	if selErr != nil {
		phase(models.PhaseFailed, selErr.Message)
		result.Error = selErr
		return e.finalize(ctx, batch, result, start)
	}

	e.logger.Info().
		Str("batch_id", batch.ID).
		Str("render_strategy", strategy.Name()).
		Str("execution_strategy", string(batch.ExecutionStrategy)).
		Msg("Batch execution starting")

	phase(models.PhaseExporting, "rendering diagrams")
	run := &runner{executor: e.executor, strategy: strategy, reporter: reporter}
	result.Results = run.run(ctx, batch)

	phase(models.PhaseVerification, "verifying outputs")
	e.verifyOutputs(result)

	phase(models.PhaseCleanup, "aggregating results")
	if reporter.IsCancelled() {
		result.Error = &models.ExportError{
			Code:     models.CodeCancelled,
			Message:  "batch was cancelled",
			Category: models.ErrorTransient,
			Severity: models.SeverityWarning,
			Phase:    models.PhaseCleanup,
		}
		phase(models.PhaseFailed, "batch cancelled")
	} else {
		phase(models.PhaseCompleted, "batch completed")
	}

	return e.finalize(ctx, batch, result, start)
}

// verifyOutputs re-stats every claimed-successful output path, flipping
// silently missing outputs to failed. PDF outputs are additionally checked
// for structural validity.
func (e *Engine) verifyOutputs(result *models.BatchResult) {
	for _, jr := range result.Results {
		if !jr.Success {
			continue
		}
		if _, err := os.Stat(jr.OutputPath); err != nil {
			jr.Success = false
			jr.Error = &models.ExportError{
				Code:     models.CodeOutputMissing,
				Message:  fmt.Sprintf("output file missing after export: %s", jr.OutputPath),
				Category: models.ErrorUnknown,
				Severity: models.SeverityError,
				Phase:    models.PhaseVerification,
				File:     jr.Job.SourceFile,
				Format:   jr.Job.Format,
			}
			continue
		}
		if jr.Job.Format == models.FormatPDF {
			data, err := os.ReadFile(jr.OutputPath)
			if err == nil {
				err = render.ValidatePDF(data)
			}
			if err != nil {
				jr.Success = false
				jr.Error = models.ClassifyError(err, models.PhaseVerification, jr.Job.SourceFile, jr.Job.Format)
			}
		}
	}
}

// finalize computes summary counts, performance stats, and output indexes,
// persists the export record, and publishes the completion event.
func (e *Engine) finalize(ctx context.Context, batch *models.Batch, result *models.BatchResult, start time.Time) *models.BatchResult {
	result.CompletedAt = time.Now()
	result.Summary.TotalJobs = len(batch.Jobs)

	var peak uint64
	for _, jr := range result.Results {
		switch {
		case jr.Success:
			result.Summary.Succeeded++
			result.Summary.TotalBytes += jr.OutputSize
			result.OutputsByFormat[jr.Job.Format] = append(result.OutputsByFormat[jr.Job.Format], jr.OutputPath)
			result.OutputsByFile[jr.Job.SourceFile] = append(result.OutputsByFile[jr.Job.SourceFile], jr.OutputPath)
		case jr.Skipped:
			result.Summary.Skipped++
		default:
			result.Summary.Failed++
		}
		if jr.Resources.MemoryAfter > peak {
			peak = jr.Resources.MemoryAfter
		}
	}

	result.Success = result.Error == nil && result.Summary.Failed == 0

	if result.Summary.Failed > 0 {
		failures := make([]*models.ExportError, 0, result.Summary.Failed)
		for _, jr := range result.Results {
			if !jr.Success && !jr.Skipped {
				failures = append(failures, jr.Error)
			}
		}
		result.ErrorReport = models.BuildErrorReport(failures)
	}

	duration := result.CompletedAt.Sub(start)
	result.Performance = models.PerformanceStats{
		TotalDuration: duration,
		PeakMemory:    peak,
	}
	if completed := result.Summary.Succeeded + result.Summary.Failed; completed > 0 {
		result.Performance.AverageJobTime = duration / time.Duration(completed)
		result.Performance.JobsPerSecond = float64(completed) / duration.Seconds()
	}

	if e.history != nil {
		if err := e.history.SaveRecord(ctx, models.NewExportRecord(batch, result)); err != nil {
			e.logger.Warn().Err(err).Str("batch_id", batch.ID).Msg("Failed to persist export record")
		}
	}

	// Completion is published synchronously so subscribers observe the
	// final result before ExecuteBatch returns to its caller.
	e.publishSync(ctx, interfaces.EventBatchCompleted, result)

	e.logger.Info().
		Str("batch_id", batch.ID).
		Bool("success", result.Success).
		Int("succeeded", result.Summary.Succeeded).
		Int("failed", result.Summary.Failed).
		Int("skipped", result.Summary.Skipped).
		Dur("duration", duration).
		Msg("Batch execution finished")

	return result
}

func (e *Engine) publish(ctx context.Context, eventType interfaces.EventType, payload interface{}) {
	if e.events == nil {
		return
	}
	if err := e.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		e.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish event")
	}
}

func (e *Engine) publishSync(ctx context.Context, eventType interfaces.EventType, payload interface{}) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishSync(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		e.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish event")
	}
}

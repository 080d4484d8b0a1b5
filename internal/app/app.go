// -----------------------------------------------------------------------
// Application - Service construction and lifecycle
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/GSejas/mermaid-export-pro/internal/common"
	"github.com/GSejas/mermaid-export-pro/internal/interfaces"
	"github.com/GSejas/mermaid-export-pro/internal/models"
	"github.com/GSejas/mermaid-export-pro/internal/services/discovery"
	"github.com/GSejas/mermaid-export-pro/internal/services/events"
	"github.com/GSejas/mermaid-export-pro/internal/services/export"
	"github.com/GSejas/mermaid-export-pro/internal/services/health"
	"github.com/GSejas/mermaid-export-pro/internal/services/notify"
	"github.com/GSejas/mermaid-export-pro/internal/services/progress"
	"github.com/GSejas/mermaid-export-pro/internal/services/render"
	"github.com/GSejas/mermaid-export-pro/internal/services/scheduler"
	"github.com/GSejas/mermaid-export-pro/internal/services/timeout"
	"github.com/GSejas/mermaid-export-pro/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	EventService     interfaces.EventService
	Notifier         interfaces.Notifier
	DiscoveryService interfaces.DiscoveryService
	ProgressService  interfaces.ProgressService
	TimeoutService   interfaces.TimeoutService
	Engine           *export.Engine
	HealthMonitor    *health.Monitor
	SchedulerService *scheduler.Service

	db          *badger.BadgerDB
	History     interfaces.ExportHistoryStorage
	webStrategy *render.WebStrategy
	gcStop      chan struct{}
}

// New constructs all services in dependency order. History storage is
// optional; a badger open failure degrades to no persistence.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{Config: config, Logger: logger}

	a.EventService = events.NewService(logger)
	a.Notifier = notify.NewLogNotifier(logger)
	a.DiscoveryService = discovery.NewService(logger)
	a.ProgressService = progress.NewService(config.Progress, a.EventService, logger)
	a.TimeoutService = timeout.NewManager(config.Timeout.ExportCooldown, a.EventService, logger)

	db, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		logger.Warn().Err(err).Msg("Export history disabled, continuing without persistence")
	} else {
		a.db = db
		a.History = badger.NewExportHistoryStorage(db, logger)
	}

	a.webStrategy = render.NewWebStrategy(&config.Render, logger)
	strategies := []interfaces.RenderStrategy{
		render.NewCLIStrategy(&config.Render, logger),
		a.webStrategy,
	}
	a.Engine = export.NewEngine(strategies, a.EventService, a.History, logger)

	a.HealthMonitor = health.NewMonitor(a.TimeoutService, a.EventService, 30*time.Second, config.Progress.MemoryThreshold, logger)

	if config.Scheduler.Enabled {
		root := config.Scheduler.Root
		a.SchedulerService = scheduler.NewService(func() error {
			_, err := a.ExportFolder(context.Background(), root)
			return err
		}, logger)
	}

	return a, nil
}

// Start launches the background services.
func (a *App) Start() error {
	a.HealthMonitor.Start()
	if a.db != nil {
		a.gcStop = make(chan struct{})
		common.SafeGo(a.Logger, "badgerGC", func() {
			ticker := time.NewTicker(10 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					a.db.RunValueLogGC()
				case <-a.gcStop:
					return
				}
			}
		})
	}
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Start(a.Config.Scheduler.Schedule); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}
	return nil
}

// ExportFolder discovers diagrams under root and runs one supervised
// batch export. It is the single entry point used by the CLI command,
// the scheduler, and the status server.
func (a *App) ExportFolder(ctx context.Context, root string) (*models.BatchResult, error) {
	if !a.TimeoutService.CanStartExport() {
		return nil, &models.ExportError{
			Code:     models.CodeInvalidConfig,
			Message:  "an export was started too recently, try again shortly",
			Category: models.ErrorTransient,
			Severity: models.SeverityWarning,
		}
	}

	files, err := a.DiscoveryService.DiscoverFiles(ctx, interfaces.DiscoveryOptions{
		Root:       root,
		MaxDepth:   a.Config.Export.MaxDepth,
		IncludeMMD: true,
	})
	if err != nil {
		return nil, fmt.Errorf("discovery failed: %w", err)
	}
	if len(files) == 0 {
		a.Logger.Info().Str("root", root).Msg("No mermaid diagrams found")
		return &models.BatchResult{Success: true}, nil
	}

	batch, err := a.Engine.CreateBatch(files, a.exportConfig())
	if err != nil {
		return nil, err
	}

	a.Logger.Info().
		Str("batch_id", batch.ID).
		Int("file_count", len(files)).
		Int("job_count", len(batch.Jobs)).
		Dur("estimated", a.Engine.EstimateDuration(batch)).
		Msg("Starting folder export")

	reporter := a.ProgressService.CreateReporter(batch.ID)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	a.ProgressService.RegisterCleanup(batch.ID, cancelRun)

	opID := common.NewOperationID()
	err = a.TimeoutService.StartOperation(opID, "folder export "+root, interfaces.OperationBatchExport, a.timeoutThresholds(), interfaces.TimeoutCallbacks{
		OnSoftTimeout: func(id string, elapsed time.Duration) {
			a.Notifier.Notify(interfaces.NotifyInfo, fmt.Sprintf("Export still running after %s", elapsed.Round(time.Second)))
		},
		OnMediumTimeout: func(id string, elapsed time.Duration) bool {
			choice := a.Notifier.Notify(interfaces.NotifyWarning,
				fmt.Sprintf("Export has been running for %s", elapsed.Round(time.Second)),
				"Keep Waiting", "Cancel")
			return choice == "Keep Waiting"
		},
		OnHardTimeout: func(id string, elapsed time.Duration) {
			a.Notifier.Notify(interfaces.NotifyError, "Export is unresponsive, cancelling")
			a.ProgressService.Cancel(batch.ID, "hard timeout")
		},
	})
	if err != nil {
		return nil, err
	}

	if err := a.ProgressService.OnProgress(batch.ID, func(state models.ProgressState) {
		a.TimeoutService.UpdateProgress(opID, state.Operation.Message)
	}); err != nil {
		a.Logger.Warn().Err(err).Str("batch_id", batch.ID).Msg("Failed to subscribe timeout supervision to progress")
	}

	result := a.Engine.ExecuteBatch(runCtx, batch, reporter)
	a.TimeoutService.CompleteOperation(opID)
	a.ProgressService.Cleanup(batch.ID)

	if result.Error != nil {
		return result, result.Error
	}
	return result, nil
}

// timeoutThresholds maps the [timeout] section onto the watchdog config.
// Zero thresholds are left zero so the operation-type defaults apply.
func (a *App) timeoutThresholds() *interfaces.TimeoutConfig {
	t := a.Config.Timeout
	if t.SoftTimeout == 0 && t.MediumTimeout == 0 && t.HardTimeout == 0 && t.NuclearTimeout == 0 {
		return nil
	}
	return &interfaces.TimeoutConfig{
		Soft:    t.SoftTimeout,
		Medium:  t.MediumTimeout,
		Hard:    t.HardTimeout,
		Nuclear: t.NuclearTimeout,
	}
}

// exportConfig maps the TOML export section onto the planner's config.
func (a *App) exportConfig() models.ExportConfig {
	e := a.Config.Export
	formats := make([]models.ExportFormat, 0, len(e.Formats))
	for _, f := range e.Formats {
		formats = append(formats, models.ExportFormat(f))
	}
	return models.ExportConfig{
		OutputDirectory:  e.OutputDirectory,
		Formats:          formats,
		Theme:            e.Theme,
		BackgroundColor:  e.BackgroundColor,
		NamingStrategy:   models.NamingStrategy(e.NamingStrategy),
		NameTemplate:     e.NameTemplate,
		OrganizeByFormat: e.OrganizeByFormat,
		Overwrite:        e.Overwrite,
		MaxDepth:         e.MaxDepth,
		Width:            e.Width,
		Height:           e.Height,
	}
}

// Close shuts down services in reverse dependency order.
func (a *App) Close() error {
	if a.SchedulerService != nil {
		a.SchedulerService.Stop()
	}
	if a.gcStop != nil {
		close(a.gcStop)
	}
	a.HealthMonitor.Stop()
	a.ProgressService.Close()
	a.TimeoutService.EmergencyCleanup()
	if a.webStrategy != nil {
		a.webStrategy.Shutdown()
	}
	if err := a.EventService.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Event service close failed")
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}
	return nil
}

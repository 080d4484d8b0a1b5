// -----------------------------------------------------------------------
// mermaid-export - Batch mermaid diagram export tool
// -----------------------------------------------------------------------

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/GSejas/mermaid-export-pro/internal/app"
	"github.com/GSejas/mermaid-export-pro/internal/common"
	"github.com/GSejas/mermaid-export-pro/internal/interfaces"
	"github.com/GSejas/mermaid-export-pro/internal/server"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	outputDir    = flag.String("output", "", "Output directory (overrides config)")
	serveMode    = flag.Bool("serve", false, "Run the status server and scheduler instead of a one-shot export")
	historyCount = flag.Int("history", 0, "Show the N most recent export records and exit")
	historyFails = flag.Bool("fails", false, "With -history, show only batches that had failures")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	config *common.Config
	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("mermaid-export version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Startup sequence:
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner
	if len(configFiles) == 0 {
		if _, err := os.Stat("mermaid-export.toml"); err == nil {
			configFiles = append(configFiles, "mermaid-export.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	if *outputDir != "" {
		config.Export.OutputDirectory = *outputDir
	}

	logger = common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn().Err(err).Msg("Shutdown cleanup failed")
		}
	}()

	if *historyCount > 0 {
		runHistory(application)
		return
	}
	if *serveMode {
		runServer(application)
		return
	}
	runExport(application)
}

// runHistory prints recent export records from the history store.
func runHistory(application *app.App) {
	if application.History == nil {
		logger.Error().Msg("Export history is disabled (storage unavailable)")
		os.Exit(1)
	}

	records, err := application.History.ListRecords(context.Background(), &interfaces.HistoryListOptions{
		Limit:     *historyCount,
		OnlyFails: *historyFails,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list export history")
		os.Exit(1)
	}
	if len(records) == 0 {
		logger.Info().Msg("No export records found")
		return
	}

	for _, record := range records {
		logger.Info().
			Str("batch_id", record.BatchID).
			Str("strategy", string(record.Strategy)).
			Int("succeeded", record.Succeeded).
			Int("failed", record.Failed).
			Int("skipped", record.Skipped).
			Dur("duration", record.Duration).
			Str("completed_at", record.CompletedAt.Format(time.RFC3339)).
			Msg("Export record")
	}
}

// runExport performs one folder export and exits non-zero on failure.
func runExport(application *app.App) {
	root := flag.Arg(0)
	if root == "" {
		root = "."
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := application.ExportFolder(ctx, root)
	if err != nil {
		logger.Error().Err(err).Str("root", root).Msg("Export failed")
		os.Exit(1)
	}

	logger.Info().
		Int("succeeded", result.Summary.Succeeded).
		Int("failed", result.Summary.Failed).
		Int("skipped", result.Summary.Skipped).
		Msg("Export finished")
	if result.Summary.Failed > 0 {
		if result.ErrorReport != nil {
			for _, suggestion := range result.ErrorReport.Suggestions {
				logger.Warn().Str("suggestion", suggestion).Msg("Recovery hint")
			}
		}
		os.Exit(1)
	}
}

// runServer starts the background services and status server, blocking
// until an interrupt arrives.
func runServer(application *app.App) {
	if err := application.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start background services")
		os.Exit(1)
	}

	statusServer := server.NewServer(config.Server, application.ProgressService, application.EventService, application.HealthMonitor, application.History, logger)

	errCh := make(chan error, 1)
	common.SafeGo(logger, "status-server", func() {
		errCh <- statusServer.Start()
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("Status server stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := statusServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Status server shutdown failed")
	}
}

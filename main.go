package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/leadscout/hiring-feed-collector/internal/batch"
	"github.com/leadscout/hiring-feed-collector/internal/config"
	"github.com/leadscout/hiring-feed-collector/internal/export"
	"github.com/leadscout/hiring-feed-collector/internal/filter"
	"github.com/leadscout/hiring-feed-collector/internal/gateway"
	"github.com/leadscout/hiring-feed-collector/internal/models"
	"github.com/leadscout/hiring-feed-collector/internal/pagedriver"
	"github.com/leadscout/hiring-feed-collector/internal/scheduler"
	"github.com/leadscout/hiring-feed-collector/internal/server"
	"github.com/leadscout/hiring-feed-collector/internal/session"
	"github.com/leadscout/hiring-feed-collector/internal/storage"
)

// options are the command-line flags; everything else comes from the environment
type options struct {
	Settings string `long:"settings" env:"SETTINGS_FILE" description:"YAML file seeding settings, provider and prompt template"`
	Once     bool   `long:"once" description:"Run a single session, write the CSV export and exit"`
	Resume   bool   `long:"resume" description:"Keep stored leads when the --once session starts"`
	Schedule string `long:"schedule" env:"SCHEDULE" description:"Cron spec for automatic sessions (e.g. @every 6h)"`
	FeedURL  string `long:"feed-url" description:"Override the feed URL"`
	Export   string `long:"export" default:"hiring-leads.csv" description:"CSV path written in --once mode"`
	Debug    bool   `long:"debug" description:"Enable debug logging"`
}

func main() {
	opts := parseOptions()
	if opts == nil {
		// Help was shown
		return
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	if opts.FeedURL != "" {
		cfg.Browser.FeedURL = opts.FeedURL
	}

	logger, err := newLogger(cfg.Debug || opts.Debug)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	undo := zap.ReplaceGlobals(logger)

	err = run(cfg, opts, openBrowser)
	if err != nil {
		zap.L().Error("Exiting with error", zap.Error(err))
	}
	undo()
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// browserOpener starts the page driver
type browserOpener func(ctx context.Context, cfg config.BrowserConfig) (pagedriver.Driver, error)

func openBrowser(ctx context.Context, cfg config.BrowserConfig) (pagedriver.Driver, error) {
	driver, err := pagedriver.NewPlaywrightDriver(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return driver, nil
}

// run wires the components and blocks until shutdown. Every resource it
// opens is released before it returns.
func run(cfg *config.Config, opts *options, open browserOpener) error {
	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	store := openStorage(ctx, cfg.Storage)
	defer store.Close()

	defaultProvider := models.ProviderSelection{Kind: models.ProviderKind(cfg.Gateway.Provider)}
	repo := storage.NewRepository(store, gateway.DefaultPromptTemplate, defaultProvider)

	if opts.Settings != "" {
		if err := seedSettings(ctx, repo, opts.Settings); err != nil {
			return fmt.Errorf("failed to apply settings file %s: %w", opts.Settings, err)
		}
	}

	// Initialize browser
	driver, err := open(ctx, cfg.Browser)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer driver.Close()

	controller := session.NewController(
		driver,
		repo,
		classifierFactory(cfg.Gateway),
		session.TimingFromConfig(cfg.Pipeline),
		batchOptions(cfg.Pipeline),
	)
	exporter := export.NewWriter(
		export.DefaultNotes(),
		export.NewClientList(cfg.Export.ClientAllowList, cfg.Export.ClientBlockList),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if opts.Once {
		return runOnce(ctx, controller, repo, exporter, opts, sigChan)
	}

	// Initialize HTTP server for API endpoints
	httpServer := server.NewServer(cfg.Server, controller, repo, exporter)

	serverErr := make(chan error, 1)
	go func() {
		zap.L().Info("Starting HTTP server", zap.Int("port", cfg.Server.Port))
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if opts.Schedule != "" {
		sched := scheduler.New(controller, opts.Schedule)
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer sched.Stop()
	}

	// Wait for shutdown signal
	var runErr error
	select {
	case <-sigChan:
		zap.L().Info("Shutdown signal received, gracefully shutting down...")
	case err := <-serverErr:
		runErr = fmt.Errorf("HTTP server error: %w", err)
	}

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown services
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := controller.Stop(); err == nil {
		controller.Wait()
	}

	cancel()
	zap.L().Info("Shutdown complete")
	return runErr
}

// parseOptions parses command-line flags, returning nil when help was requested
func parseOptions() *options {
	var opts options

	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return nil
		}
		log.Fatalf("Failed to parse flags: %v", err)
	}

	return &opts
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openStorage connects the configured backend behind a memory fallback.
// An unreachable backend starts the fallback degraded instead of failing.
func openStorage(ctx context.Context, cfg config.StorageConfig) *storage.Fallback {
	primary, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		zap.L().Warn("Storage unavailable, keeping state in memory",
			zap.String("type", cfg.Type), zap.Error(err))
		return storage.NewFallback(nil)
	}
	zap.L().Info("Storage initialized", zap.String("type", cfg.Type))
	return storage.NewFallback(primary)
}

// seedSettings writes the values present in a YAML settings file to storage
func seedSettings(ctx context.Context, repo *storage.Repository, path string) error {
	file, err := config.LoadSettingsFile(path)
	if err != nil {
		return err
	}

	if file.Settings != nil {
		if err := repo.SaveSettings(ctx, *file.Settings); err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}
	}
	if file.Provider != nil {
		if err := repo.SaveProviderSelection(ctx, *file.Provider); err != nil {
			return fmt.Errorf("failed to save provider: %w", err)
		}
	}
	if file.PromptTemplate != "" {
		if err := repo.SavePromptTemplate(ctx, file.PromptTemplate); err != nil {
			return fmt.Errorf("failed to save prompt template: %w", err)
		}
	}

	zap.L().Info("Settings file applied", zap.String("path", path))
	return nil
}

func classifierFactory(cfg config.GatewayConfig) session.ClassifierFactory {
	return func(selection models.ProviderSelection, template string) (batch.Classifier, error) {
		provider, err := gateway.NewProvider(selection, cfg)
		if err != nil {
			return nil, err
		}
		return gateway.NewGateway(provider, template, cfg.CallTimeout), nil
	}
}

func batchOptions(cfg config.PipelineConfig) batch.Options {
	opts := batch.DefaultOptions()
	if cfg.InitialBatchWidth > 0 {
		opts.InitialWidth = min(max(cfg.InitialBatchWidth, opts.MinWidth), opts.MaxWidth)
	}
	opts.Cooldown = cfg.BatchCooldown
	return opts
}

// runOnce runs one session to completion and writes the date-filtered export
func runOnce(ctx context.Context, controller *session.Controller, repo *storage.Repository, exporter *export.Writer, opts *options, sigChan <-chan os.Signal) error {
	if err := controller.Start(ctx, session.StartOptions{Resume: opts.Resume}); err != nil {
		return err
	}
	zap.L().Info("Session started", zap.Bool("resume", opts.Resume))

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-sigChan:
			zap.L().Info("Shutdown signal received, stopping session...")
			controller.Stop()
		case <-finished:
		}
	}()

	if err := controller.Wait(); err != nil {
		zap.L().Warn("Session ended abnormally", zap.Error(err))
	}
	snap := controller.Snapshot()
	zap.L().Info("Session complete",
		zap.String("status", snap.Status),
		zap.Int("analyzed", snap.TotalAnalyzed),
		zap.Int("leads", snap.LeadCount))

	settings := repo.LoadSettings(ctx)
	leads := filter.ByDate(controller.Leads(), settings.DateFilterDays, time.Now())

	f, err := os.Create(opts.Export)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	if err := exporter.WriteCSV(f, leads, export.Summary{AnalyzedCount: controller.TotalAnalyzed()}); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}

	zap.L().Info("Export written", zap.String("path", opts.Export), zap.Int("leads", len(leads)))
	return nil
}

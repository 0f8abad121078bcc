package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/siteprobe/internal/common"
	"github.com/ternarybob/siteprobe/internal/interfaces"
	"github.com/ternarybob/siteprobe/internal/models"
	"github.com/ternarybob/siteprobe/internal/scenarios"
	"github.com/ternarybob/siteprobe/internal/services/browser"
	"github.com/ternarybob/siteprobe/internal/services/evidence"
	"github.com/ternarybob/siteprobe/internal/services/locator"
	"github.com/ternarybob/siteprobe/internal/services/probe"
	"github.com/ternarybob/siteprobe/internal/services/report"
	"github.com/ternarybob/siteprobe/internal/services/scenario"
	"github.com/ternarybob/siteprobe/internal/services/scheduler"
	"github.com/ternarybob/siteprobe/internal/services/suite"
	"github.com/ternarybob/siteprobe/internal/storage"
	"github.com/ternarybob/siteprobe/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	Driver         interfaces.Driver
	Runner         *scenario.Runner
	Suite          *suite.Suite
	Definitions    []scenario.Definition // Catalog plus loaded files, before filtering
	StorageManager *badger.Manager       // nil when storage is disabled
	History        interfaces.RunHistoryStorage

	SchedulerService interfaces.SchedulerService

	driverStarted bool
}

// New wires the application. The driver is built but not started.
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initDefinitions(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to load scenario definitions: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return app, nil
}

func (a *App) initStorage(ctx context.Context) error {
	manager, err := storage.NewStorageManager(ctx, a.Logger, a.Config)
	if err != nil {
		return err
	}
	if manager != nil {
		a.StorageManager = manager
		a.History = manager.RunHistory()
	}
	return nil
}

func (a *App) initDefinitions() error {
	extra, err := scenarios.LoadDir(a.Config.Suite.DefinitionsDir, a.Logger)
	if err != nil {
		return err
	}
	a.Definitions = scenarios.Merge(scenarios.Catalog(a.Config.Target), extra)
	a.Logger.Debug().
		Int("definitions", len(a.Definitions)).
		Int("from_files", len(extra)).
		Msg("Scenario definitions loaded")
	return nil
}

func (a *App) initServices() error {
	driver, err := browser.NewDriver(a.Config, a.Logger)
	if err != nil {
		return err
	}
	a.Driver = driver

	options, err := suite.OptionsFromConfig(a.Config)
	if err != nil {
		return err
	}

	reporters, err := report.NewReporters(a.Config.Report.Formats, a.Config.Report.OutputDir, nil, a.Logger)
	if err != nil {
		return err
	}

	resolver := locator.NewResolver(a.Logger)
	collector := evidence.NewCollector(evidence.CollectorConfig{
		Screenshots:       evidence.ScreenshotMode(a.Config.Report.Screenshots),
		FullPage:          a.Config.Report.FullPage,
		MarkdownSnapshots: a.Config.Report.MarkdownSnapshots,
		OutputDir:         a.Config.Report.OutputDir,
	}, a.Logger)

	a.Runner = scenario.NewRunner(
		driver,
		resolver,
		probe.NewEvaluator(resolver, a.Logger, a.Config.Suite.ProbeParallelism),
		collector,
		suite.NewLimiter(a.Config.Suite.NavigationsPerSecond),
		a.Logger,
	)
	a.Suite = suite.New(a.Runner, driver, options, reporters, a.History, a.Logger)
	a.SchedulerService = scheduler.NewService(a.RunSuite, a.Logger)
	return nil
}

// Selected returns the definitions matching the configured filter
func (a *App) Selected() ([]scenario.Definition, error) {
	return scenarios.Select(a.Definitions, a.Config.Suite.Filter)
}

// StartDriver starts the browser driver once
func (a *App) StartDriver(ctx context.Context) error {
	if a.driverStarted {
		return nil
	}
	if err := a.Driver.Start(ctx); err != nil {
		return fmt.Errorf("failed to start %s driver: %w", a.Driver.Name(), err)
	}
	a.driverStarted = true
	return nil
}

// RunSuite executes the selected scenarios once
func (a *App) RunSuite(ctx context.Context) (*models.SuiteResult, error) {
	defs, err := a.Selected()
	if err != nil {
		return nil, err
	}
	if err := a.StartDriver(ctx); err != nil {
		return nil, err
	}
	return a.Suite.Execute(ctx, defs)
}

// Close stops the scheduler, the driver and storage, in that order
func (a *App) Close() error {
	if a.SchedulerService != nil && a.SchedulerService.IsRunning() {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	if a.Driver != nil && a.driverStarted {
		if err := a.Driver.Stop(); err != nil {
			a.Logger.Warn().Err(err).Str("driver", a.Driver.Name()).Msg("Failed to stop browser driver")
		} else {
			a.Logger.Debug().Str("driver", a.Driver.Name()).Msg("Browser driver stopped")
		}
		a.driverStarted = false
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.StorageManager = nil
		a.Logger.Debug().Msg("Storage closed")
	}
	return nil
}

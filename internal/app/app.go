package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/handlers"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/metrics"
	"github.com/ternarybob/jobpilot/internal/services/auth"
	"github.com/ternarybob/jobpilot/internal/services/browser"
	"github.com/ternarybob/jobpilot/internal/services/credentials"
	"github.com/ternarybob/jobpilot/internal/services/events"
	"github.com/ternarybob/jobpilot/internal/services/extraction"
	"github.com/ternarybob/jobpilot/internal/services/pagination"
	"github.com/ternarybob/jobpilot/internal/services/pdf"
	"github.com/ternarybob/jobpilot/internal/services/profiles"
	"github.com/ternarybob/jobpilot/internal/services/quota"
	"github.com/ternarybob/jobpilot/internal/services/scheduler"
	"github.com/ternarybob/jobpilot/internal/services/session"
	"github.com/ternarybob/jobpilot/internal/services/walker"
	"github.com/ternarybob/jobpilot/internal/storage"
)

// sweepJobName is the scheduler job that stops idle sessions
const sweepJobName = "session-sweep"

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Event-driven services
	EventService     interfaces.EventService
	SchedulerService interfaces.SchedulerService
	Metrics          *metrics.Collector

	// Browser and site services
	Launcher    *browser.Launcher
	AuthService *auth.Service
	Extractor   *extraction.Engine
	Walker      *walker.Walker

	// Per-user data
	Credentials     *credentials.Store
	ProfileService  *profiles.Service
	ResumeService   *pdf.Service
	QuotaService    *quota.Service
	PaginationState *pagination.Tracker

	// Session orchestration
	SessionManager *session.Manager

	// HTTP handlers
	APIHandler       *handlers.APIHandler
	LiveHandler      *handlers.LiveHandler
	SessionHandler   *handlers.SessionHandler
	AccountHandler   *handlers.AccountHandler
	SchedulerHandler *handlers.SchedulerHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize database
	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app.EventService = events.NewService(app.Logger)
	if err := events.SubscribeLoggerToAllEvents(app.EventService, app.Logger); err != nil {
		return nil, fmt.Errorf("failed to subscribe event logger: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	if err := app.SchedulerService.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	logger.Info().
		Str("storage", cfg.Storage.Type).
		Bool("headless", cfg.Browser.Headless).
		Int("daily_limit", cfg.Quota.DailyLimit).
		Int("credential_version", app.Credentials.Version()).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the configured storage backend
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(context.Background(), a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", a.Config.Storage.Type).
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")
	return nil
}

// initServices initializes all business services in dependency order:
// storage-backed data services, then browser services, then the session
// manager that drives them, then periodic maintenance and metrics.
func (a *App) initServices() error {
	var err error

	a.Credentials, err = credentials.NewStore(a.StorageManager.CredentialStorage(), &a.Config.Credentials, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}
	a.ProfileService = profiles.NewService(a.StorageManager.ProfileStorage(), a.Logger)
	a.ResumeService = pdf.NewService(a.Config.Session.ResumeDir, a.Logger)
	a.QuotaService = quota.NewService(a.StorageManager.ApplicationStorage(), a.Config.Quota.DailyLimit, a.Logger)
	a.PaginationState = pagination.NewTracker(a.StorageManager.JobStorage(), a.StorageManager.SwipeStorage(), a.Logger)

	a.Launcher = browser.NewLauncher(&a.Config.Browser, a.Logger)
	a.AuthService = auth.NewService(&a.Config.Browser, a.Logger)
	a.Extractor, err = extraction.NewEngine(&a.Config.Extraction, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize extraction engine: %w", err)
	}
	a.Walker = walker.NewWalker(walker.Config{
		StepLimit:   a.Config.Session.StepLimit,
		Settle:      common.ParseDurationOr(a.Config.Session.StepSettle, 500*time.Millisecond),
		WaitTimeout: common.ParseDurationOr(a.Config.Browser.NavigationTimeout, 30*time.Second),
	}, a.ProfileService, a.ResumeService, a.Logger)

	a.SessionManager, err = session.NewManager(session.Dependencies{
		Launcher:     a.Launcher,
		Auth:         a.AuthService,
		Credentials:  a.Credentials,
		Profiles:     a.ProfileService,
		Quota:        a.QuotaService,
		Applications: a.StorageManager.ApplicationStorage(),
		Jobs:         a.StorageManager.JobStorage(),
		Tracker:      a.PaginationState,
		Extractor:    a.Extractor,
		Walker:       a.Walker,
		Events:       a.EventService,
		Retry:        browser.NewRetryPolicy(a.Config.Browser.RetryAttempts),
	}, session.OptionsFromConfig(a.Config), a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize session manager: %w", err)
	}

	a.Metrics = metrics.NewCollector(a.SessionManager.ActiveSessions, a.Launcher.Active)
	if err := a.Metrics.Subscribe(a.EventService); err != nil {
		return fmt.Errorf("failed to subscribe metrics: %w", err)
	}

	a.SchedulerService = scheduler.NewService(a.Logger)
	sweep := "@every " + a.Config.Session.SweepInterval
	if err := a.SchedulerService.RegisterJob(sweepJobName, sweep, "Stop sessions idle past session.idle_timeout", func() error {
		if stopped := a.SessionManager.SweepIdle(); stopped > 0 {
			a.Logger.Info().Int("stopped", stopped).Msg("Idle sessions swept")
		}
		return nil
	}); err != nil {
		return fmt.Errorf("failed to register %s job: %w", sweepJobName, err)
	}

	a.Logger.Debug().
		Str("sweep_interval", a.Config.Session.SweepInterval).
		Str("jobs_url", a.Config.Browser.JobsURL).
		Msg("Services initialized")
	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() error {
	a.APIHandler = handlers.NewAPIHandler(a.Logger, a.SessionManager.ActiveSessions)
	a.LiveHandler = handlers.NewLiveHandler(a.SessionManager, a.Logger)
	a.SessionHandler = handlers.NewSessionHandler(
		a.SessionManager,
		a.PaginationState,
		a.QuotaService,
		a.StorageManager.SwipeStorage(),
		a.Logger,
	)
	a.AccountHandler = handlers.NewAccountHandler(a.ProfileService, a.Credentials, a.Logger)
	a.SchedulerHandler = handlers.NewSchedulerHandler(a.SchedulerService)
	return nil
}

// Close stops sessions, releases browsers and closes storage
func (a *App) Close() error {
	// Stop scheduler service
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	// Stop every session before the browsers go away
	if a.SessionManager != nil {
		timeout := 2*common.ParseDurationOr(a.Config.Browser.KillTimeout, 5*time.Second) + time.Second
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := a.SessionManager.Shutdown(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Sessions did not stop cleanly")
		}
		cancel()
	}

	if a.Launcher != nil {
		a.Launcher.ReleaseAll()
		a.Logger.Info().Msg("Browser handles released")
	}

	// Close event service
	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	// Close storage
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}

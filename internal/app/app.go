package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/spabas/libreo-bridge/internal/common"
	"github.com/spabas/libreo-bridge/internal/handlers"
	"github.com/spabas/libreo-bridge/internal/httpclient"
	"github.com/spabas/libreo-bridge/internal/interfaces"
	"github.com/spabas/libreo-bridge/internal/services/controls"
	"github.com/spabas/libreo-bridge/internal/services/events"
	"github.com/spabas/libreo-bridge/internal/services/mirror"
	"github.com/spabas/libreo-bridge/internal/services/realtime"
	"github.com/spabas/libreo-bridge/internal/services/scheduler"
	"github.com/spabas/libreo-bridge/internal/services/session"
	badgerstorage "github.com/spabas/libreo-bridge/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	DB           *badgerstorage.BadgerDB
	EventService interfaces.EventService
	Store        interfaces.NodeStore

	HTTPClient      *httpclient.Client
	SessionService  *session.Service
	MirrorService   *mirror.Service
	RealtimeManager *realtime.Manager
	Dispatcher      *controls.Dispatcher
	Scheduler       *scheduler.Scheduler

	// HTTP handlers
	StatusHandler  *handlers.StatusHandler
	NodeHandler    *handlers.NodeHandler
	ControlHandler *handlers.ControlHandler
}

// New wires all components together. The event subscriptions connect the
// pieces: org activations open realtime channels, unconfirmed control
// writes become provider commands.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	db, err := badgerstorage.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	eventService := events.NewService(logger)
	store := badgerstorage.NewNodeStorage(db, eventService, logger)

	client, err := httpclient.New(30 * time.Second)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	sessionService := session.NewService(config, client, logger)
	mirrorService := mirror.NewService(config, client, sessionService, store, eventService, logger)
	realtimeManager := realtime.NewManager(config, client, sessionService, mirrorService, logger)
	dispatcher := controls.NewDispatcher(mirrorService, store, logger)
	pollScheduler := scheduler.NewScheduler(config, mirrorService, logger)

	if err := realtimeManager.Start(eventService); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to start realtime manager: %w", err)
	}
	if err := dispatcher.Start(eventService); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to start control dispatcher: %w", err)
	}

	app := &App{
		Config:          config,
		Logger:          logger,
		DB:              db,
		EventService:    eventService,
		Store:           store,
		HTTPClient:      client,
		SessionService:  sessionService,
		MirrorService:   mirrorService,
		RealtimeManager: realtimeManager,
		Dispatcher:      dispatcher,
		Scheduler:       pollScheduler,

		StatusHandler:  handlers.NewStatusHandler(sessionService, mirrorService, realtimeManager, logger),
		NodeHandler:    handlers.NewNodeHandler(store, logger),
		ControlHandler: handlers.NewControlHandler(store, logger),
	}

	logger.Info().Msg("Application components initialized")
	return app, nil
}

// Bootstrap performs the cold start: login, mirror the organizations, user
// info and session history, then start the polling jobs. A failed login is
// not fatal; every authenticated call retries it on the next 401.
func (a *App) Bootstrap(ctx context.Context) error {
	if !a.SessionService.Login(ctx) {
		a.Logger.Warn().Msg("Initial login failed, will retry on demand")
	}

	if err := a.MirrorService.SyncOrgs(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Initial organization sync failed")
	}
	if err := a.MirrorService.SyncUserInfo(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Initial user info sync failed")
	}

	from, until := a.MirrorService.SessionWindow(ctx)
	if err := a.MirrorService.SyncSessions(ctx, from, until); err != nil {
		a.Logger.Warn().Err(err).Msg("Initial charging session sync failed")
	}

	if err := a.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	a.Logger.Info().Msg("Bootstrap complete")
	return nil
}

// Close shuts the application down: timers first, then the realtime
// channels, then the store. No store writes happen after this returns.
func (a *App) Close() {
	a.Logger.Info().Msg("Shutting down application")

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.RealtimeManager != nil {
		if err := a.RealtimeManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close realtime manager")
		}
	}
	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close node store")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close database")
		}
	}

	a.Logger.Info().Msg("Application stopped")
}

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/telsalud/notefmt/internal/common"
	"github.com/telsalud/notefmt/internal/handlers"
	"github.com/telsalud/notefmt/internal/interfaces"
	"github.com/telsalud/notefmt/internal/models"
	"github.com/telsalud/notefmt/internal/queue"
	"github.com/telsalud/notefmt/internal/services/events"
	"github.com/telsalud/notefmt/internal/services/formatter"
	jobsvc "github.com/telsalud/notefmt/internal/services/jobs"
	badgerstorage "github.com/telsalud/notefmt/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager *badgerstorage.Manager
	EventService   interfaces.EventService

	QueueManager *queue.BadgerManager
	WorkerPool   *queue.WorkerPool
	Janitor      *queue.Janitor

	Provider   formatter.Provider
	JobService *jobsvc.Service
	Processor  *jobsvc.Processor

	NotifierBridge *events.NotifierBridge

	// HTTP handlers
	APIHandler *handlers.APIHandler
	JobHandler *handlers.JobHandler
	WSHandler  *handlers.WebSocketHandler
}

// New initializes the application with all dependencies via explicit
// constructor injection.
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
	}

	// Storage
	storageManager, err := badgerstorage.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.StorageManager = storageManager

	// Event bus
	a.EventService = events.NewService(logger)

	// Durable queue on the shared Badger instance
	queueConfig, err := queue.ConfigFromCommon(&cfg.Queue, &cfg.Retention)
	if err != nil {
		return nil, fmt.Errorf("invalid queue configuration: %w", err)
	}
	queueManager, err := queue.NewBadgerManager(storageManager.DB(), queueConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}
	a.QueueManager = queueManager

	// Formatter provider (fail-fast on missing generative credentials)
	provider, err := formatter.NewProvider(ctx, &cfg.Formatter, logger)
	if err != nil {
		return nil, err
	}
	a.Provider = provider

	// Job processing
	a.Processor = jobsvc.NewProcessor(
		storageManager.JobStorage(),
		storageManager.ProposalStorage(),
		storageManager.NoteStorage(),
		provider,
		a.EventService,
		logger,
	)

	a.WorkerPool = queue.NewWorkerPool(queueManager, queueConfig, logger)
	a.WorkerPool.RegisterHandler(models.JobTypeFormatNote, a.Processor.HandleFormatJob)

	// Retention janitor
	jobRetention := 30 * 24 * time.Hour
	if cfg.Retention.JobWindow != "" {
		jobRetention, err = time.ParseDuration(cfg.Retention.JobWindow)
		if err != nil {
			return nil, fmt.Errorf("invalid retention job_window %q: %w", cfg.Retention.JobWindow, err)
		}
	}
	a.Janitor = queue.NewJanitor(
		queueManager,
		storageManager.JobStorage(),
		queueConfig.QueueRetention,
		jobRetention,
		cfg.Retention.Sweep,
		logger,
	)

	// Job gate
	a.JobService = jobsvc.NewService(
		storageManager.JobStorage(),
		storageManager.ProposalStorage(),
		storageManager.NoteStorage(),
		queueManager,
		logger,
	)

	// HTTP handlers
	a.APIHandler = handlers.NewAPIHandler(logger)
	a.JobHandler = handlers.NewJobHandler(a.JobService, logger)
	a.WSHandler = handlers.NewWebSocketHandler(&cfg.WebSocket, logger)

	// Relay subscriber: disabled for worker-role and test deployments so a
	// single delivery path exists per environment
	if events.SubscriberEnabled(cfg) {
		bridge, err := events.NewNotifierBridge(a.EventService, a.WSHandler, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to wire notifier bridge: %w", err)
		}
		a.NotifierBridge = bridge
	} else {
		logger.Info().
			Str("role", cfg.Role).
			Str("environment", cfg.Environment).
			Msg("Notifier bridge disabled; clients recover via job polling")
	}

	return a, nil
}

// Start launches the background components
func (a *App) Start() error {
	if err := a.WorkerPool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	if err := a.Janitor.Start(); err != nil {
		return fmt.Errorf("failed to start janitor: %w", err)
	}
	return nil
}

// Shutdown stops background components and closes resources
func (a *App) Shutdown() error {
	a.Logger.Info().Msg("Shutting down application")

	if a.WorkerPool != nil {
		if err := a.WorkerPool.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Worker pool stop failed")
		}
	}
	if a.Janitor != nil {
		a.Janitor.Stop()
	}
	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Event service close failed")
		}
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage close failed")
			return err
		}
	}

	return nil
}

// Package app wires the shared dependencies of the API and worker processes.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/spec-kit/msp-sla/internal/cache"
	"github.com/spec-kit/msp-sla/internal/config"
	"github.com/spec-kit/msp-sla/internal/escalation"
	"github.com/spec-kit/msp-sla/internal/events"
	"github.com/spec-kit/msp-sla/internal/notify"
	"github.com/spec-kit/msp-sla/internal/observability"
	"github.com/spec-kit/msp-sla/internal/persistence"
	"github.com/spec-kit/msp-sla/internal/repository"
	"github.com/spec-kit/msp-sla/internal/service"
	"github.com/spec-kit/msp-sla/internal/sla"
	"github.com/spec-kit/msp-sla/internal/workflow"
	"github.com/spec-kit/msp-sla/migrations"
)

// App holds the long-lived collaborators of one process.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	Postgres *persistence.Postgres
	Redis    *persistence.Redis
	Kafka    *notify.KafkaPublisher

	StaffRepo repository.StaffRepository

	Policies      *service.PolicyService
	Tickets       *service.TicketService
	Workflows     *service.WorkflowService
	Notifications *service.NotificationService
	Escalations   *escalation.Engine
}

// New connects to the stores and builds the services.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), migrations.Files, logger); err != nil {
			pg.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	redis := persistence.NewRedis(ctx, cfg.Redis, logger)

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	queueRepo := repository.NewPriorityQueueRepository(pool)
	historyRepo := repository.NewTicketHistoryRepository(pool)
	policyRepo := repository.NewSLAPolicyRepository(pool)
	staffRepo := repository.NewStaffRepository(pool)
	clientRepo := repository.NewClientRepository(pool)
	transitionRepo := repository.NewWorkflowTransitionRepository(pool)

	var (
		policyLoader service.PolicyLoader = policyRepo
		invalidator  service.PolicyInvalidator
	)
	if cfg.Cache.Enabled {
		policyCache := cache.NewPolicyCache(redis.Client, policyRepo, cfg.Cache.PolicyTTL, cfg.Cache.KeyPrefix, logger)
		policyLoader = policyCache
		invalidator = policyCache
	}

	directory := service.NewDirectory(service.DirectoryDependencies{
		StaffRepo:         staffRepo,
		ClientRepo:        clientRepo,
		PolicyRepo:        policyRepo,
		OverloadThreshold: cfg.Escalation.OverloadThreshold,
		Logger:            logger,
	})
	resolver := sla.NewResolver(directory, policyLoader, logger)

	dispatcher := events.NewInMemoryDispatcher()
	var (
		kafkaPublisher *notify.KafkaPublisher
		publisher      service.Publisher
	)
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher = notify.NewKafkaPublisher(cfg.Kafka, cfg.Notification, metrics, logger)
		publisher = kafkaPublisher
	} else {
		logger.Info("no kafka brokers configured; notifications are logged only")
	}
	notifications := service.NewNotificationService(dispatcher, publisher, directory, logger, cfg.Notification, cfg.Kafka)
	notifications.RegisterHandlers()

	engine := escalation.NewEngine(escalation.Dependencies{
		Queue:    queueRepo,
		Tickets:  ticketRepo,
		History:  historyRepo,
		Policies: policyLoader,
		Users:    directory,
		Notifier: notifications,
		Metrics:  metrics,
		Logger:   logger,
	}, escalation.Config{
		Workers:             cfg.Escalation.Workers,
		ResponseLookahead:   cfg.Escalation.ResponseLookahead,
		ResolutionLookahead: cfg.Escalation.ResolutionLookahead,
	})

	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		QueueRepo:   queueRepo,
		HistoryRepo: historyRepo,
		Resolver:    resolver,
		Policies:    policyLoader,
		Escalations: engine,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	workflows := service.NewWorkflowService(service.WorkflowDependencies{
		TransitionRepo: transitionRepo,
		TicketRepo:     ticketRepo,
		HistoryRepo:    historyRepo,
		QueueRepo:      queueRepo,
		Policies:       policyLoader,
		Engine:         workflow.NewEngine(workflow.CompanyAuthorizer{}, logger),
		SLA:            tickets,
		Dispatcher:     dispatcher,
		Logger:         logger,
	})
	policies := service.NewPolicyService(service.PolicyDependencies{
		PolicyRepo: policyRepo,
		Cache:      invalidator,
		Logger:     logger,
	})

	return &App{
		Config:        cfg,
		Logger:        logger,
		Registry:      registry,
		Metrics:       metrics,
		Postgres:      pg,
		Redis:         redis,
		Kafka:         kafkaPublisher,
		StaffRepo:     staffRepo,
		Policies:      policies,
		Tickets:       tickets,
		Workflows:     workflows,
		Notifications: notifications,
		Escalations:   engine,
	}, nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	if a.Kafka != nil {
		if err := a.Kafka.Close(); err != nil {
			a.Logger.Warn("closing kafka publisher", zap.Error(err))
		}
	}
	a.Redis.Close()
	a.Postgres.Close()
}

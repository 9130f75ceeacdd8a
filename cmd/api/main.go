package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-engine/internal/api/http"
	"github.com/spec-kit/ticket-engine/internal/api/http/handlers"
	"github.com/spec-kit/ticket-engine/internal/archive"
	"github.com/spec-kit/ticket-engine/internal/auth"
	"github.com/spec-kit/ticket-engine/internal/category"
	"github.com/spec-kit/ticket-engine/internal/config"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/observability"
	"github.com/spec-kit/ticket-engine/internal/persistence"
	"github.com/spec-kit/ticket-engine/internal/platform"
	"github.com/spec-kit/ticket-engine/internal/scheduler"
	"github.com/spec-kit/ticket-engine/internal/service"
	"github.com/spec-kit/ticket-engine/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var redis *persistence.Redis
	var docs store.DocumentStore
	switch cfg.Store.Backend {
	case "redis":
		redis, err = persistence.NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		defer redis.Close()
		docs = store.NewRedisDocumentStore(redis.Client, cfg.Store.RedisKey)
	default:
		docs = store.NewFileDocumentStore(cfg.Store.FilePath)
	}

	tickets := store.NewTicketStore(docs, logger)
	if err := tickets.Load(ctx); err != nil {
		logger.Fatal("failed to load ticket document", zap.Error(err))
	}

	var pg *persistence.Postgres
	var transcriptRepo archive.TranscriptRepository
	if cfg.Postgres.DSN != "" {
		pg, err = persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()

		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		transcriptRepo = archive.NewTranscriptRepository(pg.PoolHandle())
	} else {
		logger.Warn("POSTGRES_DSN not set, transcript archive disabled")
	}

	gateway := platform.NewRESTGateway(cfg.Platform.BridgeURL, cfg.Platform.BridgeToken, logger)
	dispatcher := events.NewInMemoryDispatcher(logger)
	metrics := observability.NewMetrics()

	notifications := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	notifications.RegisterHandlers()

	notifier := service.NewPlatformNotifier(gateway, cfg.Platform.LogChannelID, cfg.Platform.ArchiveChannelID, logger)
	transcripts := service.NewTranscriptGenerator(gateway, logger)
	resolver := category.NewResolver(gateway, category.BuildDefinitions(cfg.Platform.Categories), logger)

	graceMin, graceMax := cfg.Rating.GraceWindow()
	finalizer := service.NewFinalizer(service.FinalizerDependencies{
		Store:       tickets,
		Gateway:     gateway,
		Transcripts: transcripts,
		Archive:     transcriptRepo,
		Notifier:    notifier,
		Dispatcher:  dispatcher,
		Logger:      logger,
		GraceMin:    graceMin,
		GraceMax:    graceMax,
	})

	ratings := service.NewRatingWorkflow(service.RatingDependencies{
		Store:      tickets,
		Gateway:    gateway,
		Notifier:   notifier,
		Dispatcher: dispatcher,
		Finalizer:  finalizer,
		Logger:     logger,
		Policy: service.RatingPolicy{
			Timeout:             cfg.Rating.Timeout(),
			TimeoutDefaultScore: cfg.Rating.TimeoutDefaultScore,
		},
		StaffRoleID: cfg.Platform.StaffRoleID,
		AdminRoleID: cfg.Platform.AdminRoleID,
	})

	lifecycle := service.NewTicketLifecycle(service.LifecycleDependencies{
		Store:       tickets,
		Resolver:    resolver,
		Gateway:     gateway,
		Notifier:    notifier,
		Dispatcher:  dispatcher,
		Finalizer:   finalizer,
		Ratings:     ratings,
		Logger:      logger,
		WorkspaceID: cfg.Platform.WorkspaceID,
		StaffRoleID: cfg.Platform.StaffRoleID,
		AdminRoleID: cfg.Platform.AdminRoleID,
		OpDelay:     cfg.Platform.OpDelay(),
	})

	reconciler := service.NewReconciliationService(service.ReconciliationDependencies{
		Store:       tickets,
		Gateway:     gateway,
		Lifecycle:   lifecycle,
		Ratings:     ratings,
		Metrics:     metrics,
		Logger:      logger,
		WorkspaceID: cfg.Platform.WorkspaceID,
		StaffRoleID: cfg.Platform.StaffRoleID,
		AdminRoleID: cfg.Platform.AdminRoleID,
	})

	sched := scheduler.New(logger)
	sched.Every("reconcile", cfg.Reconcile.Interval(), cfg.Reconcile.RunOnStart, reconciler.Run)
	defer sched.Stop()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authMiddleware := auth.NewAuthMiddleware(tokens)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: cfg.App.Env == "production",
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, tickets, pg, redis, metrics),
		Tickets:        handlers.NewTicketsHandler(lifecycle, ratings, tickets),
		Reconcile:      handlers.NewReconcileHandler(reconciler),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}

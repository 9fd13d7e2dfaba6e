package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-assistant/internal/api/http"
	"github.com/spec-kit/ticket-assistant/internal/api/http/handlers"
	"github.com/spec-kit/ticket-assistant/internal/auth"
	"github.com/spec-kit/ticket-assistant/internal/config"
	"github.com/spec-kit/ticket-assistant/internal/events"
	"github.com/spec-kit/ticket-assistant/internal/observability"
	"github.com/spec-kit/ticket-assistant/internal/persistence"
	"github.com/spec-kit/ticket-assistant/internal/repository"
	"github.com/spec-kit/ticket-assistant/internal/service"
	"github.com/spec-kit/ticket-assistant/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations && pg.Enabled() {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		if cfg.Triage.Transport == config.TransportRiver {
			if err := persistence.RunRiverMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				logger.Fatal("failed to run river migrations", zap.Error(err))
			}
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()

	var (
		ticketRepo repository.TicketRepository
		userRepo   repository.UserRepository
		locker     worker.Locker
	)
	if pg.Enabled() {
		ticketRepo = repository.NewTicketRepository(pg.PoolHandle())
		userRepo = repository.NewUserRepository(pg.PoolHandle())
		locker = pg
	} else {
		ticketRepo = repository.NewMemoryTicketRepository(nil)
		userRepo = repository.NewMemoryUserRepository()
	}

	publisher, dispatcher := buildPublisher(cfg, pg, redis, logger)
	if dispatcher != nil {
		defer dispatcher.Close()
		worker.StartTriageLogWorker(service.NewNotificationService(dispatcher, logger.Named("triage")))
	}

	gateway := events.NewGateway(events.GatewayDependencies{
		Publisher: publisher,
		Marker:    ticketRepo,
		Metrics:   metrics,
		Logger:    logger,
		Timeout:   cfg.Triage.PublishTimeout(),
	})

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: ticketRepo,
		UserRepo:   userRepo,
		Notifier:   gateway,
		Metrics:    metrics,
		Logger:     logger,
	})
	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo: userRepo,
		Logger:   logger,
	})

	if cfg.Auth.AdminEmail != "" {
		created, err := authService.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword)
		if err != nil {
			logger.Fatal("failed to bootstrap admin", zap.Error(err))
		}
		logger.Info("admin bootstrap", zap.String("email", cfg.Auth.AdminEmail), zap.Bool("created", created))
	}

	reconciler, err := worker.NewReconciler(worker.ReconcilerConfig{
		Schedule: cfg.Triage.ReconcileCron,
		Grace:    cfg.Triage.ReconcileGrace(),
		Batch:    cfg.Triage.ReconcileBatch,
	}, worker.ReconcilerDependencies{
		Tickets: ticketRepo,
		Emitter: gateway,
		Locker:  locker,
		Metrics: metrics,
		Logger:  logger.Named("reconciler"),
	})
	if err != nil {
		logger.Fatal("failed to configure reconciler", zap.Error(err))
	}
	reconciler.Start()
	defer reconciler.Stop()

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler(logger, metrics),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
		"postgres": pg,
		"redis":    redis,
	}, metrics)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         healthHandler,
		Users:          handlers.NewUsersHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}

// buildPublisher selects the triage transport. The in-memory dispatcher is
// returned separately so the caller can attach the local sink and drain it.
func buildPublisher(cfg *config.Config, pg *persistence.Postgres, redis *persistence.Redis, logger *zap.Logger) (events.Publisher, *events.MemoryDispatcher) {
	switch cfg.Triage.Transport {
	case config.TransportRedis:
		if !redis.Enabled() {
			logger.Fatal("redis transport selected without a redis client")
		}
		logger.Info("triage transport: redis stream", zap.String("stream", string(events.EventTicketCreated)))
		return events.NewRedisStreamPublisher(redis.Client, cfg.Triage.StreamMaxLen), nil
	case config.TransportRiver:
		if !pg.Enabled() {
			logger.Fatal("river transport selected without postgres")
		}
		publisher, err := events.NewRiverPublisher(pg.PoolHandle(), cfg.Triage.Queue, cfg.Triage.MaxAttempts)
		if err != nil {
			logger.Fatal("failed to create river publisher", zap.Error(err))
		}
		logger.Info("triage transport: river", zap.String("queue", cfg.Triage.Queue))
		return publisher, nil
	default:
		dispatcher := events.NewMemoryDispatcher(cfg.Triage.Buffer, logger)
		logger.Info("triage transport: in-memory", zap.Int("buffer", cfg.Triage.Buffer))
		return dispatcher, dispatcher
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}

package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/classboard/notification-engine/internal/config"
	"github.com/classboard/notification-engine/internal/directory"
	"github.com/classboard/notification-engine/internal/handler"
	"github.com/classboard/notification-engine/internal/infra/postgresql"
	"github.com/classboard/notification-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/classboard/notification-engine/internal/infra/redis"
	"github.com/classboard/notification-engine/internal/observability"
	"github.com/classboard/notification-engine/internal/provider"
	"github.com/classboard/notification-engine/internal/queue"
	"github.com/classboard/notification-engine/internal/render"
	"github.com/classboard/notification-engine/internal/repository"
	"github.com/classboard/notification-engine/internal/service"
	"github.com/classboard/notification-engine/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	publisher := queue.NewRabbitMQPublisher(rabbit)
	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.WorkerConcurrency, logger)

	senders, err := provider.NewWebhookRegistry(cfg.EmailWebhookURL, cfg.PushWebhookURL, cfg.InAppWebhookURL)
	if err != nil {
		logger.Fatal("webhook sender initialization failed", zap.Error(err))
	}

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec, cfg.ChannelRateLimits())
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	lookup, err := directory.NewHTTPLookup(cfg.DirectoryBaseURL)
	if err != nil {
		logger.Fatal("directory lookup initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	templateRepo := repository.NewGormTemplateRepo(db)
	scheduleRepo := repository.NewGormScheduleRepo(db)
	deliveryRepo := repository.NewGormDeliveryRepo(db)
	attemptRepo := repository.NewGormAttemptRepo(db)
	preferenceRepo := repository.NewGormPreferenceRepo(db)

	resolver, err := service.NewAudienceResolver(lookup)
	if err != nil {
		logger.Fatal("audience resolver initialization failed", zap.Error(err))
	}
	expander := service.NewExpander()
	renderer := render.NewPlaceholderRenderer()

	dispatcher, err := service.NewDispatcher(deliveryRepo, preferenceRepo, templateRepo, renderer, publisher, logger)
	if err != nil {
		logger.Fatal("dispatcher initialization failed", zap.Error(err))
	}

	scheduler, err := service.NewScheduler(
		scheduleRepo,
		templateRepo,
		resolver,
		dispatcher,
		expander,
		metrics,
		logger,
		time.Duration(cfg.SchedulerScanSeconds)*time.Second,
	)
	if err != nil {
		logger.Fatal("scheduler initialization failed", zap.Error(err))
	}

	retryScanner, err := service.NewRetryScanner(
		deliveryRepo,
		publisher,
		metrics,
		logger,
		time.Duration(cfg.RetryScanSeconds)*time.Second,
	)
	if err != nil {
		logger.Fatal("retry scanner initialization failed", zap.Error(err))
	}

	workers, err := service.NewWorkerService(deliveryRepo, attemptRepo, consumer, senders, limiter, metrics, logger)
	if err != nil {
		logger.Fatal("worker service initialization failed", zap.Error(err))
	}

	templateService, err := service.NewTemplateService(templateRepo, logger)
	if err != nil {
		logger.Fatal("template service initialization failed", zap.Error(err))
	}

	scheduleService, err := service.NewScheduleService(
		scheduleRepo,
		templateRepo,
		deliveryRepo,
		resolver,
		dispatcher,
		expander,
		logger,
	)
	if err != nil {
		logger.Fatal("schedule service initialization failed", zap.Error(err))
	}

	deliveryService, err := service.NewDeliveryService(deliveryRepo, attemptRepo, publisher, logger)
	if err != nil {
		logger.Fatal("delivery service initialization failed", zap.Error(err))
	}

	preferenceService, err := service.NewPreferenceService(preferenceRepo, logger)
	if err != nil {
		logger.Fatal("preference service initialization failed", zap.Error(err))
	}

	analyticsService, err := service.NewAnalyticsService(deliveryRepo, logger)
	if err != nil {
		logger.Fatal("analytics service initialization failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:      "notification-engine",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, sqlDB, rdb)

	if err := handler.RegisterTemplateRoutes(app, templateService); err != nil {
		logger.Fatal("template routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterScheduleRoutes(app, scheduleService); err != nil {
		logger.Fatal("schedule routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterDeliveryRoutes(app, deliveryService); err != nil {
		logger.Fatal("delivery routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterPreferenceRoutes(app, preferenceService); err != nil {
		logger.Fatal("preference routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterAnalyticsRoutes(app, analyticsService); err != nil {
		logger.Fatal("analytics routes registration failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		return retryScanner.Run(gctx)
	})
	g.Go(func() error {
		return workers.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("notification-engine api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal("service terminated", zap.Error(err))
	}

	logger.Info("notification-engine stopped")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/payment-engine/internal/config"
	"github.com/kursadbilgin/payment-engine/internal/handler"
	"github.com/kursadbilgin/payment-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/payment-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/payment-engine/internal/infra/redis"
	"github.com/kursadbilgin/payment-engine/internal/observability"
	"github.com/kursadbilgin/payment-engine/internal/queue"
	"github.com/kursadbilgin/payment-engine/internal/repository"
	"github.com/kursadbilgin/payment-engine/internal/sender"
	"github.com/kursadbilgin/payment-engine/internal/service"
	"github.com/kursadbilgin/payment-engine/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
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

	if err := run(cfg, logger); err != nil {
		logger.Fatal("payment-engine api exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer mq.Close()

	paymentRepo := repository.NewGormPaymentRepo(db)
	transactionRepo := repository.NewGormTransactionRepo(db)
	webhookRepo := repository.NewGormWebhookRepo(db)
	deliveryRepo := repository.NewGormDeliveryRepo(db)
	auditRepo := repository.NewGormAuditRepo(db)

	validator := sender.NewURLValidator()
	httpSender, err := sender.NewHTTPSender(validator)
	if err != nil {
		return fmt.Errorf("http sender init failed: %w", err)
	}

	deliverer, err := service.NewDeliverer(webhookRepo, deliveryRepo, httpSender, logger)
	if err != nil {
		return fmt.Errorf("deliverer init failed: %w", err)
	}

	dispatcher, err := service.NewDispatcher(webhookRepo, queue.NewRabbitMQPublisher(mq), logger)
	if err != nil {
		return fmt.Errorf("dispatcher init failed: %w", err)
	}

	paymentService, err := service.NewPaymentService(paymentRepo, transactionRepo, auditRepo, dispatcher, logger)
	if err != nil {
		return fmt.Errorf("payment service init failed: %w", err)
	}

	webhookService, err := service.NewWebhookService(webhookRepo, deliveryRepo, validator, deliverer, logger)
	if err != nil {
		return fmt.Errorf("webhook service init failed: %w", err)
	}

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		return fmt.Errorf("rate limiter init failed: %w", err)
	}

	consumer := queue.NewRabbitMQConsumer(mq, cfg.WorkerConcurrency, logger)
	worker, err := service.NewWorkerService(webhookRepo, deliverer, consumer, rateLimiter, cfg.WorkerConcurrency, logger)
	if err != nil {
		return fmt.Errorf("worker init failed: %w", err)
	}

	reconciler, err := service.NewReconciler(
		paymentService,
		time.Duration(cfg.ReconcileIntervalSec)*time.Second,
		cfg.StuckTimeoutMinutes,
		logger,
	)
	if err != nil {
		return fmt.Errorf("reconciler init failed: %w", err)
	}

	metrics := observability.NewMetrics()
	paymentService.SetMetrics(metrics)
	deliverer.SetMetrics(metrics)
	worker.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(transport.RequestLogger(logger))
	app.Use(metrics.HTTPMiddleware())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	handler.RegisterHealthRoutes(app, sqlDB, rdb, mq)
	if err := handler.RegisterPaymentRoutes(app, paymentService); err != nil {
		return fmt.Errorf("payment routes init failed: %w", err)
	}
	if err := handler.RegisterWebhookRoutes(app, webhookService); err != nil {
		return fmt.Errorf("webhook routes init failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("payment-engine api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})

	g.Go(func() error {
		return worker.Start(gctx)
	})

	g.Go(func() error {
		return reconciler.Start(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !isShutdownError(err) {
		return err
	}

	logger.Info("payment-engine api stopped")
	return nil
}

func isShutdownError(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

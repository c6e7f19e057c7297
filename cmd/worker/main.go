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
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rami-aouinti/shopware-sub000/internal/config"
	"github.com/rami-aouinti/shopware-sub000/internal/domain"
	"github.com/rami-aouinti/shopware-sub000/internal/handler"
	"github.com/rami-aouinti/shopware-sub000/internal/infra/postgresql"
	infraredis "github.com/rami-aouinti/shopware-sub000/internal/infra/redis"
	"github.com/rami-aouinti/shopware-sub000/internal/mainframe"
	"github.com/rami-aouinti/shopware-sub000/internal/observability"
	"github.com/rami-aouinti/shopware-sub000/internal/queue"
	"github.com/rami-aouinti/shopware-sub000/internal/repository"
	"github.com/rami-aouinti/shopware-sub000/internal/service"
	"github.com/rami-aouinti/shopware-sub000/internal/telemetry"
	"github.com/rami-aouinti/shopware-sub000/internal/token"
	"github.com/rami-aouinti/shopware-sub000/internal/transport"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, cfg.OTelServiceName+"-worker", cfg.OTelEndpoint, logger)
	if err != nil {
		logger.Fatal("tracing initialization failed", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	// The api process owns migrations.
	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.PoolOptions{})
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	locker, err := infraredis.NewRedisLocker(rdb)
	if err != nil {
		logger.Fatal("lock initialization failed", zap.Error(err))
	}
	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.MainframeRateLimit)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	broker, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer broker.Close()
	publisher := queue.NewRabbitMQPublisher(broker)
	consumer := queue.NewRabbitMQConsumer(broker, cfg.WorkerConcurrency, logger)

	metrics := observability.NewMetrics()

	client := mainframe.NewClient(mainframe.ProtocolParams{
		SessionID: cfg.MainframeSessionID,
		Company:   cfg.MainframeCompany,
		Product:   cfg.MainframeProduct,
		Mandant:   cfg.MainframeMandant,
		System:    cfg.MainframeSystem,
	}, logger)
	if cfg.MainframeBearerToken != "" {
		client = client.WithBearer(cfg.MainframeBearerToken)
	}

	strategy, err := domain.ParseStrategyFromString(cfg.ExportStrategy)
	if err != nil {
		logger.Fatal("invalid export strategy", zap.Error(err))
	}

	var signer service.TokenSigner
	if strategy == domain.StrategySignedURLPull {
		s, err := token.NewSigner(token.Options{
			Secret:               cfg.TransferSigningSecret,
			AllowInsecureDefault: cfg.IsTest(),
			Logger:               logger,
		})
		if err != nil {
			logger.Fatal("transfer token signer initialization failed", zap.Error(err))
		}
		signer = s
	}

	exportService, err := service.NewExportService(
		repository.NewGormOrderRepo(db),
		repository.NewGormExportRecordRepo(db),
		client, signer, locker, limiter,
		service.ExportSettings{
			BaseURL:       cfg.MainframeBaseURL,
			AuthToken:     cfg.MainframeAuthToken,
			WriteFunction: cfg.MainframeWriteFunction,
			Timeout:       cfg.MainframeTimeout(),
			Strategy:      strategy,
			PublicBaseURL: cfg.PublicBaseURL,
		}, logger)
	if err != nil {
		logger.Fatal("export service initialization failed", zap.Error(err))
	}
	exportService.SetMetrics(metrics)
	exportService.SetPublisher(publisher)

	importService, err := service.NewImportService(client, repository.NewGormExternalOrderRepo(db), locker, limiter, service.ImportSettings{
		BaseURL:      cfg.MainframeBaseURL,
		AuthToken:    cfg.MainframeAuthToken,
		ReadFunction: cfg.MainframeReadFunction,
		Timeout:      cfg.MainframeTimeout(),
	}, logger)
	if err != nil {
		logger.Fatal("import service initialization failed", zap.Error(err))
	}
	importService.SetMetrics(metrics)

	retryScanner, err := service.NewRetryScanner(exportService, cfg.RetryScanInterval(), logger)
	if err != nil {
		logger.Fatal("retry scanner initialization failed", zap.Error(err))
	}
	importScheduler, err := service.NewImportScheduler(importService, cfg.ImportInterval(), logger)
	if err != nil {
		logger.Fatal("import scheduler initialization failed", zap.Error(err))
	}
	exportWorker, err := service.NewExportWorker(consumer, exportService, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("export worker initialization failed", zap.Error(err))
	}
	exportWorker.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	handler.RegisterHealthRoutes(app,
		handler.PostgresCheck(sqlDB),
		handler.RedisCheck(rdb),
		handler.PingerCheck("rabbitmq", broker),
	)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	logger.Info("order sync worker started",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Duration("retryScanInterval", cfg.RetryScanInterval()),
		zap.Duration("importInterval", cfg.ImportInterval()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return retryScanner.Start(gctx) })
	g.Go(func() error { return importScheduler.Start(gctx) })
	g.Go(func() error { return exportWorker.Start(gctx) })
	g.Go(func() error {
		return app.Listen(fmt.Sprintf(":%d", cfg.WorkerMetricsPort))
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", zap.Error(err))
	}
}

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

	"github.com/rami-aouinti/shopware-sub000/internal/config"
	"github.com/rami-aouinti/shopware-sub000/internal/domain"
	"github.com/rami-aouinti/shopware-sub000/internal/handler"
	"github.com/rami-aouinti/shopware-sub000/internal/infra/postgresql"
	"github.com/rami-aouinti/shopware-sub000/internal/infra/postgresql/migrations"
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

	shutdownTracing, err := telemetry.Init(ctx, cfg.OTelServiceName, cfg.OTelEndpoint, logger)
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

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.PoolOptions{})
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

	metrics := observability.NewMetrics()

	orders := repository.NewGormOrderRepo(db)
	exports := repository.NewGormExportRecordRepo(db)
	external := repository.NewGormExternalOrderRepo(db)

	client := mainframe.NewClient(protocolParams(cfg), logger)
	if cfg.MainframeBearerToken != "" {
		client = client.WithBearer(cfg.MainframeBearerToken)
	}

	strategy, err := domain.ParseStrategyFromString(cfg.ExportStrategy)
	if err != nil {
		logger.Fatal("invalid export strategy", zap.Error(err))
	}

	signer, err := newSigner(cfg, strategy, logger)
	if err != nil {
		logger.Fatal("transfer token signer initialization failed", zap.Error(err))
	}

	exportService, err := service.NewExportService(orders, exports, client, signer, locker, limiter, service.ExportSettings{
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

	statusWriter, err := service.NewStatusWriter(orders, publisher, logger)
	if err != nil {
		logger.Fatal("status writer initialization failed", zap.Error(err))
	}
	statusWriter.SetMetrics(metrics)

	importService, err := service.NewImportService(client, external, locker, limiter, service.ImportSettings{
		BaseURL:      cfg.MainframeBaseURL,
		AuthToken:    cfg.MainframeAuthToken,
		ReadFunction: cfg.MainframeReadFunction,
		Timeout:      cfg.MainframeTimeout(),
	}, logger)
	if err != nil {
		logger.Fatal("import service initialization failed", zap.Error(err))
	}
	importService.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(transport.CorrelationID())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app,
		handler.PostgresCheck(sqlDB),
		handler.RedisCheck(rdb),
		handler.PingerCheck("rabbitmq", broker),
	)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if err := handler.RegisterOrderRoutes(app, exportService, statusWriter, importService); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Warn("api shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("order sync api started",
		zap.Int("port", cfg.APIPort),
		zap.String("strategy", strategy.String()),
	)

	if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
		logger.Error("api server stopped", zap.Error(err))
	}
}

func protocolParams(cfg *config.Config) mainframe.ProtocolParams {
	return mainframe.ProtocolParams{
		SessionID: cfg.MainframeSessionID,
		Company:   cfg.MainframeCompany,
		Product:   cfg.MainframeProduct,
		Mandant:   cfg.MainframeMandant,
		System:    cfg.MainframeSystem,
	}
}

// newSigner returns a nil signer when no secret is set and pull mode is off; the document route
// then answers 404 for everything.
func newSigner(cfg *config.Config, strategy domain.Strategy, logger *zap.Logger) (service.TokenSigner, error) {
	signer, err := token.NewSigner(token.Options{
		Secret:               cfg.TransferSigningSecret,
		AllowInsecureDefault: cfg.IsTest(),
		Logger:               logger,
	})
	if err == nil {
		return signer, nil
	}
	if strategy == domain.StrategySignedURLPull {
		return nil, err
	}
	logger.Warn("signed document endpoint disabled", zap.Error(err))
	return nil, nil
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/FulfillmentGo/pkg/database"
	"github.com/utafrali/FulfillmentGo/pkg/health"
	"github.com/utafrali/FulfillmentGo/pkg/httpclient"
	pkgkafka "github.com/utafrali/FulfillmentGo/pkg/kafka"
	"github.com/utafrali/FulfillmentGo/pkg/tracing"
	"github.com/utafrali/FulfillmentGo/services/order/internal/client"
	"github.com/utafrali/FulfillmentGo/services/order/internal/config"
	"github.com/utafrali/FulfillmentGo/services/order/internal/event"
	handler "github.com/utafrali/FulfillmentGo/services/order/internal/handler/http"
	"github.com/utafrali/FulfillmentGo/services/order/internal/repository/postgres"
	"github.com/utafrali/FulfillmentGo/services/order/internal/service"
	"github.com/utafrali/FulfillmentGo/services/order/migrations"
)

// App wires together all dependencies and runs the order service.
type App struct {
	cfg                *config.Config
	logger             *slog.Logger
	pool               *pgxpool.Pool
	redisClient        *redis.Client
	producer           *pkgkafka.Producer
	httpServer         *http.Server
	reservationExpired *pkgkafka.Consumer
	tracerShutdown     func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "order",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}

	pool, err := database.NewPostgresPoolWithLogger(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, "order")

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	if err := pingKafkaWithRetry(ctx, producer, logger); err != nil {
		logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Redis backs consumer idempotency tracking. When it is unreachable the
	// service falls back to an in-process store: duplicate suppression then
	// only holds within one instance, which the consumer's own idempotent
	// handling tolerates.
	var idempotencyStore pkgkafka.IdempotencyStore
	redisClient, err := database.NewRedisClient(ctx, database.RedisConfig{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logger.Warn("redis unavailable, using in-memory idempotency store",
			slog.String("error", err.Error()),
		)
		idempotencyStore = pkgkafka.NewMemoryIdempotencyStore(24 * time.Hour)
	} else {
		logger.Info("connected to Redis", slog.String("host", cfg.RedisHost))
		idempotencyStore = pkgkafka.NewRedisIdempotencyStore(redisClient, "order-service", 24*time.Hour)
	}

	// Downstream capability clients, each behind its own circuit breaker so
	// one failing dependency never trips calls to the others.
	baseClient := httpclient.New(httpclient.DefaultConfig())
	inventoryClient := client.NewInventoryClient(
		cfg.InventoryServiceURL,
		httpclient.NewCircuitBreakerClient(baseClient, httpclient.DefaultCircuitBreakerConfig("inventory"), logger),
		logger,
	)
	paymentClient := client.NewPaymentClient(
		cfg.PaymentServiceURL,
		httpclient.NewCircuitBreakerClient(baseClient, httpclient.DefaultCircuitBreakerConfig("payment"), logger),
		cfg.PaymentTimeout(),
		logger,
	)
	cartClient := client.NewCartClient(
		cfg.CartServiceURL,
		httpclient.NewCircuitBreakerClient(baseClient, httpclient.DefaultCircuitBreakerConfig("cart"), logger),
		logger,
	)

	// Build the dependency graph.
	orderRepo := postgres.NewOrderRepo(pool)
	eventProducer := event.NewProducer(producer, logger)
	orderService := service.NewOrderService(
		orderRepo, inventoryClient, paymentClient, cartClient, eventProducer, logger,
	)

	// Kafka consumer for reservation expiry events.
	eventConsumer := event.NewConsumer(orderService, logger)
	dlq := pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)

	reservationExpiredConsumer := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  "order-service-reservation-expired",
		Topic:    event.TopicReservationExpired,
		MinBytes: 1,
		MaxBytes: 10e6,
	}, pkgkafka.IdempotentHandler(idempotencyStore, eventConsumer.HandleReservationExpired, logger), logger).WithDLQ(dlq)

	// Health checks. Kafka and Redis are non-critical: the API keeps serving
	// while event delivery and duplicate suppression degrade.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})
	if redisClient != nil {
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	router := handler.NewRouter(orderService, healthHandler, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:                cfg,
		logger:             logger,
		pool:               pool,
		redisClient:        redisClient,
		producer:           producer,
		httpServer:         httpServer,
		reservationExpired: reservationExpiredConsumer,
		tracerShutdown:     tracerShutdown,
	}, nil
}

// Run starts the HTTP server and the Kafka consumer, then blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		if err := a.reservationExpired.Start(ctx); err != nil {
			errCh <- fmt.Errorf("reservation expired consumer: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka consumer
// 4. Kafka producer
// 5. Redis client
// 6. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.reservationExpired.Close(); err != nil {
		a.logger.Error("reservation expired consumer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// pingKafkaWithRetry attempts to ping the Kafka producer with exponential
// backoff (3 attempts, 1s/2s/4s with ±25% jitter).
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := producer.Ping(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < 2 {
			base := time.Duration(1<<uint(attempt)) * time.Second
			jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter for retry backoff
			wait := base + jitter
			logger.Warn("kafka producer ping failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", 3),
				slog.Duration("backoff", wait),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("kafka ping: context canceled during retry: %w", ctx.Err())
			case <-time.After(wait):
			}
		}
	}
	return fmt.Errorf("kafka producer ping failed after 3 attempts: %w", lastErr)
}

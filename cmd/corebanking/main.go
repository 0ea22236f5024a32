package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"corebanking/internal/app/ledger"
	"corebanking/internal/app/statement"
	"corebanking/internal/config"
	ledger_http "corebanking/internal/handler/http/ledger"
	kafka_handler "corebanking/internal/handler/kafka"
	"corebanking/internal/infrastructure/database"
	kafka_infra "corebanking/internal/infrastructure/kafka"
	"corebanking/internal/lock"
	"corebanking/internal/outbox"
	"corebanking/internal/store"
	"corebanking/internal/store/memory"
	"corebanking/internal/store/postgres"
	"corebanking/internal/telemetry"

	"github.com/cenkalti/backoff/v5"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "corebanking-ledger"

// ledgerStore is a store the outbox processor can also drain.
type ledgerStore interface {
	store.Store
	outbox.Repository
}

func connectPostgres(ctx context.Context, cfg database.DBConfig, logger *zap.Logger) (*sql.DB, error) {
	attempt := 0
	return backoff.Retry(ctx, func() (*sql.DB, error) {
		attempt++
		db, err := database.NewPostgresDB(cfg)
		if err != nil {
			logger.Warn("Failed to connect to database, retrying", zap.Int("attempt", attempt), zap.Error(err))
			return nil, err
		}
		return db, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(5*time.Second)),
		backoff.WithMaxTries(10),
	)
}

func runMigrations(migrationsPath, dsn string) error {
	m, err := migrate.New(migrationsPath, dsn)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ledgerStore, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Warn("Using in-memory ledger store; balances are lost on restart")
		return memory.New(), func() {}, nil
	}

	logger.Info("Waiting for database to be available...")
	db, err := connectPostgres(ctx, cfg.Database(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to database: %w", err)
	}
	logger.Info("Successfully connected to PostgreSQL database!")

	logger.Info("Running database migrations...", zap.String("path", cfg.MigrationsPath))
	if err := runMigrations(cfg.MigrationsPath, cfg.Database().MigrationURL()); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	logger.Info("Database migrations completed successfully (or no new migrations).")

	closeDB := func() {
		if err := db.Close(); err != nil {
			logger.Error("Error closing database connection", zap.Error(err))
		} else {
			logger.Info("Database connection closed.")
		}
	}
	return postgres.New(db, logger.With(zap.String("component", "PostgresStore"))), closeDB, nil
}

func newLocker(ctx context.Context, cfg *config.Config, logger *zap.Logger) (lock.Locker, func(), error) {
	if cfg.LockDriver == config.LockDriverLocal {
		return lock.NewLocal(cfg.LockTimeout), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
	}
	logger.Info("Using Redis account locks", zap.String("addr", cfg.RedisAddr))

	locker := lock.NewRedis(client, cfg.LockTimeout, cfg.LockExpiry, logger.With(zap.String("component", "RedisLocker")))
	return locker, func() { _ = client.Close() }, nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	appLogger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = appLogger.Sync() }()
	appLogger.Info("Ledger service starting...")

	ctxMain, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctxMain, serviceName, cfg.OTelEndpoint)
	if err != nil {
		appLogger.Fatal("Failed to set up tracing", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			appLogger.Error("Failed to flush traces", zap.Error(err))
		}
	}()

	st, closeStore, err := openStore(ctxMain, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to open ledger store", zap.Error(err))
	}
	defer closeStore()

	locker, closeLocker, err := newLocker(ctxMain, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to create account locker", zap.Error(err))
	}
	defer closeLocker()

	ledgerService := ledger.NewService(st, locker, ledger.Config{
		MaxAttempts:       cfg.LedgerMaxAttempts,
		CheckingOverdraft: &cfg.CheckingOverdraftLimit,
	}, appLogger)
	statementService := statement.NewService(st, appLogger)
	appLogger.Info("Ledger services initialized.")

	router := ledger_http.NewRouter(ledgerService, statementService, appLogger, ledger_http.RouterOptions{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RequestTimeout: cfg.HTTPRequestTimeout,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg sync.WaitGroup
	var commandsConsumer *kafka_infra.Consumer

	if cfg.KafkaEnabled {
		topicsCtx, cancel := context.WithTimeout(ctxMain, 10*time.Second)
		err := kafka_infra.EnsureTopics(topicsCtx, cfg.KafkaBrokers, []string{cfg.KafkaCommandsTopic, cfg.KafkaEventsTopic}, appLogger)
		cancel()
		if err != nil {
			appLogger.Fatal("Failed to ensure Kafka topics", zap.Error(err))
		}

		kafkaProducer := kafka_infra.NewProducer(cfg.KafkaBrokers, appLogger.With(zap.String("component", "KafkaProducer")))
		defer func() {
			if err := kafkaProducer.Close(); err != nil {
				appLogger.Error("Error closing Kafka producer", zap.Error(err))
			}
		}()

		outboxProcessor := outbox.NewProcessor(st, kafkaProducer, outbox.Config{
			Topic:        cfg.KafkaEventsTopic,
			PollInterval: cfg.OutboxPollInterval,
			PollTimeout:  cfg.OutboxPollTimeout,
			BatchSize:    cfg.OutboxBatchSize,
		}, appLogger.With(zap.String("component", "OutboxProcessor")))

		commandsConsumer = kafka_infra.NewConsumer(
			cfg.KafkaBrokers,
			cfg.KafkaCommandsTopic,
			cfg.KafkaConsumerGroup,
			kafka_handler.LedgerCommandHandler(ledgerService, appLogger.With(zap.String("component", "LedgerCommandHandler"))),
			appLogger.With(zap.String("component", "LedgerCommandsConsumer")),
		)

		wg.Add(2)
		go func() {
			defer wg.Done()
			outboxProcessor.Start(ctxMain)
		}()
		go func() {
			defer wg.Done()
			if err := commandsConsumer.Consume(ctxMain); err != nil && !errors.Is(err, context.Canceled) {
				appLogger.Error("Ledger commands consumer failed", zap.Error(err))
			}
			appLogger.Info("Ledger commands consumer stopped.")
		}()
	} else {
		appLogger.Warn("Kafka disabled; ledger events stay in the outbox and commands are not consumed")
	}

	go func() {
		appLogger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctxMain.Done()
	appLogger.Info("Shutting down application...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server graceful shutdown failed", zap.Error(err))
	} else {
		appLogger.Info("HTTP server gracefully shut down.")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		appLogger.Warn("Background workers did not stop before the shutdown deadline.")
	}

	if commandsConsumer != nil {
		if err := commandsConsumer.Close(); err != nil {
			appLogger.Error("Error closing ledger commands consumer", zap.Error(err))
		}
	}

	appLogger.Info("Application gracefully shut down.")
}

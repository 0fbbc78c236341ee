package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/feral-file/ff-ledger/internal/adapter"
	"github.com/feral-file/ff-ledger/internal/config"
	"github.com/feral-file/ff-ledger/internal/logger"
	"github.com/feral-file/ff-ledger/internal/payout"
	"github.com/feral-file/ff-ledger/internal/providers/jetstream"
	"github.com/feral-file/ff-ledger/internal/store"
	"github.com/feral-file/ff-ledger/internal/sweeper"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadPayoutSweeperConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Service:         "payout-sweeper",
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "payout-sweeper",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Payout Sweeper")

	// Open the ledger store
	var dataStore store.Store
	switch cfg.Storage.Driver {
	case store.DriverBadger:
		// The embedded store is single-process; this only works while the API is stopped
		// or runs with payout.enabled=false against a copy of the data directory.
		bs, err := store.OpenBadgerStore(ctx, cfg.Storage.BadgerPath)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to open badger store", zap.Error(err), zap.String("path", cfg.Storage.BadgerPath))
		}
		defer func() {
			if err := bs.Close(); err != nil {
				logger.Error(err)
			}
		}()
		dataStore = bs

	default:
		db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
		if err != nil {
			logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err), zap.String("host", cfg.Database.Host))
		}

		if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
			logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
		}
		logger.InfoCtx(ctx, "Connected to database",
			zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
			zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
		)
		dataStore = store.NewPGStore(db)
	}

	// Initialize adapters
	clock := adapter.NewClock()
	signer := payout.NewSigner(cfg.Payout.SigningSecret, clock, adapter.NewJSON(), adapter.NewJCS())

	// Connect to NATS JetStream
	publisher, err := jetstream.NewPublisher(ctx, jetstream.Config{
		URL:             cfg.NATS.URL,
		StreamName:      cfg.NATS.StreamName,
		MaxReconnects:   cfg.NATS.MaxReconnects,
		ReconnectWait:   cfg.NATS.ReconnectWait,
		ConnectionName:  cfg.NATS.ConnectionName,
		DuplicateWindow: cfg.NATS.DuplicateWindow,
	}, adapter.NewNatsJetStream(), signer)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create payout publisher", zap.Error(err), zap.String("url", cfg.NATS.URL))
	}
	defer publisher.Close()
	logger.InfoCtx(ctx, "Connected to NATS", zap.String("stream", cfg.NATS.StreamName))

	// Initialize payout sweeper
	payoutSweeper := sweeper.NewPayoutSweeper(&sweeper.PayoutSweeperConfig{
		BatchSize:            cfg.Payout.BatchSize,
		WorkerPoolSize:       cfg.Payout.Worker.WorkerPoolSize,
		MaxAttempts:          cfg.Payout.MaxAttempts,
		PollInterval:         cfg.Payout.PollInterval,
		PublishRetries:       cfg.Payout.PublishRetries,
		RetryInitialInterval: cfg.Payout.RetryInitialInterval,
		RetryMaxInterval:     cfg.Payout.RetryMaxInterval,
	}, dataStore, publisher, clock)

	// Start the sweeper in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := payoutSweeper.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	// Wait for interrupt signal or error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.ErrorCtx(ctx, err)
	}

	// Cancel context to stop the sweeper
	cancel()

	// Give the sweeper time to finish the in-flight batch
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := payoutSweeper.Stop(shutdownCtx); err != nil {
		logger.ErrorCtx(shutdownCtx, err)
	}

	logger.InfoCtx(shutdownCtx, "Payout sweeper stopped")
}

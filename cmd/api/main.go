package main

import (
	"context"
	"errors"
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
	"github.com/feral-file/ff-ledger/internal/api/middleware"
	"github.com/feral-file/ff-ledger/internal/api/server"
	"github.com/feral-file/ff-ledger/internal/config"
	"github.com/feral-file/ff-ledger/internal/domain"
	"github.com/feral-file/ff-ledger/internal/ledger"
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
	cfg, err := config.LoadAPIConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Service:         "ledger-api",
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "ledger-api",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Feral File Ledger API")

	// Open the ledger store
	dataStore, closeStore := openStore(ctx, cfg.Storage, cfg.Database)
	defer closeStore()

	clock := adapter.NewClock()

	// Initialize ledger
	ledgerConfig := ledger.Config{ListingFee: domain.MustParseAmount(cfg.Ledger.ListingFee)}
	l := ledger.New(ledgerConfig, dataStore, clock, adapter.NewJSON())

	if cfg.Ledger.PlatformWallet != "" {
		err := l.Initialize(ctx, domain.AccountID(cfg.Ledger.PlatformWallet))
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrAlreadyInitialized):
			logger.InfoCtx(ctx, "Ledger already initialized, ignoring configured platform wallet")
		default:
			logger.FatalCtx(ctx, "Failed to initialize ledger", zap.Error(err))
		}
	} else {
		logger.WarnCtx(ctx, "ledger.platform_wallet not configured, donations fail until the ledger is initialized")
	}

	// Optionally deliver transfer requests from this process
	var payoutSweeper sweeper.PayoutSweeper
	if cfg.Payout.Enabled {
		signer := payout.NewSigner(cfg.Payout.SigningSecret, clock, adapter.NewJSON(), adapter.NewJCS())
		publisher, err := jetstream.NewPublisher(ctx, jetstream.Config{
			URL:             cfg.NATS.URL,
			StreamName:      cfg.NATS.StreamName,
			MaxReconnects:   cfg.NATS.MaxReconnects,
			ReconnectWait:   cfg.NATS.ReconnectWait,
			ConnectionName:  cfg.NATS.ConnectionName,
			DuplicateWindow: cfg.NATS.DuplicateWindow,
		}, adapter.NewNatsJetStream(), signer)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to create payout publisher", zap.Error(err))
		}
		defer publisher.Close()

		payoutSweeper = sweeper.NewPayoutSweeper(&sweeper.PayoutSweeperConfig{
			BatchSize:            cfg.Payout.BatchSize,
			WorkerPoolSize:       cfg.Payout.Worker.WorkerPoolSize,
			MaxAttempts:          cfg.Payout.MaxAttempts,
			PollInterval:         cfg.Payout.PollInterval,
			PublishRetries:       cfg.Payout.PublishRetries,
			RetryInitialInterval: cfg.Payout.RetryInitialInterval,
			RetryMaxInterval:     cfg.Payout.RetryMaxInterval,
		}, dataStore, publisher, clock)
	}

	// Create server config
	serverConfig := server.Config{
		Debug:          cfg.Debug,
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    time.Duration(cfg.Server.IdleTimeout) * time.Second,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Auth: middleware.AuthConfig{
			JWTPublicKey: cfg.Auth.JWTPublicKey,
			APIKeys:      cfg.Auth.APIKeys,
		},
	}
	srv := server.New(serverConfig, l)

	errCh := make(chan error, 2)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()
	if payoutSweeper != nil {
		go func() {
			if err := payoutSweeper.Start(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "server"))
	}
	cancel()

	// Create shutdown context with timeout (don't use canceled ctx)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	logger.InfoCtx(shutdownCtx, "Shutting down server...")

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorCtx(shutdownCtx, err)
	}
	if payoutSweeper != nil {
		if err := payoutSweeper.Stop(shutdownCtx); err != nil {
			logger.ErrorCtx(shutdownCtx, err)
		}
	}

	// Use non-context logger for final message since original ctx is canceled
	logger.Info("API server stopped")
}

// openStore opens the configured ledger store and returns it with its close function
func openStore(ctx context.Context, storage config.StorageConfig, database config.DatabaseConfig) (store.Store, func()) {
	switch storage.Driver {
	case store.DriverBadger:
		bs, err := store.OpenBadgerStore(ctx, storage.BadgerPath)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to open badger store", zap.Error(err), zap.String("path", storage.BadgerPath))
		}
		logger.InfoCtx(ctx, "Opened badger store", zap.String("path", storage.BadgerPath))
		return bs, func() {
			if err := bs.Close(); err != nil {
				logger.Error(err)
			}
		}

	default:
		db, err := gorm.Open(postgres.Open(database.DSN()), &gorm.Config{})
		if err != nil {
			logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err), zap.String("host", database.Host))
		}

		if err := store.ConfigureConnectionPool(db, database.MaxOpenConns, database.MaxIdleConns, database.ConnMaxLifetime, database.ConnMaxIdleTime); err != nil {
			logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
		}
		logger.InfoCtx(ctx, "Connected to database",
			zap.Int("max_open_conns", database.MaxOpenConns),
			zap.Int("max_idle_conns", database.MaxIdleConns),
		)

		return store.NewPGStore(db), func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
	}
}

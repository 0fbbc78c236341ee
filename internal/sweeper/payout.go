package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/feral-file/ff-ledger/internal/adapter"
	"github.com/feral-file/ff-ledger/internal/logger"
	"github.com/feral-file/ff-ledger/internal/payout"
	"github.com/feral-file/ff-ledger/internal/store"
	"github.com/feral-file/ff-ledger/internal/store/schema"
)

const (
	DEFAULT_POLL_INTERVAL = 10 * time.Second // Time to sleep when the pending queue is drained
)

// PayoutSweeperConfig holds configuration for the payout sweeper
type PayoutSweeperConfig struct {
	BatchSize            int           // Pending transfers read per sweep
	WorkerPoolSize       int           // Concurrent publishers
	MaxAttempts          int           // Sweeps before a transfer is marked failed
	PollInterval         time.Duration // Sleep between sweeps when the queue is drained
	PublishRetries       int           // In-sweep publish retries for a single transfer
	RetryInitialInterval time.Duration // First backoff interval between in-sweep retries
	RetryMaxInterval     time.Duration // Backoff interval cap
}

// SweepResult summarizes one sweep
type SweepResult struct {
	Total  int
	Sent   int
	Failed int // marked failed, will not be retried
	Retry  int // still pending, retried on a later sweep
}

// PayoutSweeper publishes pending transfer requests to the payout network
type PayoutSweeper interface {
	Sweeper

	// SweepOnce publishes one batch of pending transfers and records the outcomes
	SweepOnce(ctx context.Context) (*SweepResult, error)
}

type payoutSweeper struct {
	config    *PayoutSweeperConfig
	store     store.Store
	publisher payout.Publisher
	clock     adapter.Clock
	running   atomic.Bool
	mu        sync.Mutex
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// NewPayoutSweeper creates a new payout sweeper
func NewPayoutSweeper(
	config *PayoutSweeperConfig,
	st store.Store,
	publisher payout.Publisher,
	clock adapter.Clock,
) PayoutSweeper {
	cfg := *config
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DEFAULT_POLL_INTERVAL
	}
	if cfg.PublishRetries < 0 {
		cfg.PublishRetries = 0
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = 500 * time.Millisecond
	}
	if cfg.RetryMaxInterval <= 0 {
		cfg.RetryMaxInterval = 10 * time.Second
	}

	return &payoutSweeper{
		config:    &cfg,
		store:     st,
		publisher: publisher,
		clock:     clock,
	}
}

// Name returns the sweeper's name
func (s *payoutSweeper) Name() string {
	return "payout-sweeper"
}

// Start runs sweeps until the context is canceled or Stop is called.
// A full batch that sent or failed transfers is followed immediately by another sweep;
// otherwise the sweeper sleeps for PollInterval. A stopped sweeper can be started again.
func (s *payoutSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running.Load() {
		s.mu.Unlock()
		return fmt.Errorf("sweeper already running")
	}
	s.running.Store(true)
	stopChan := make(chan struct{})
	stoppedCh := make(chan struct{})
	s.stopChan = stopChan
	s.stoppedCh = stoppedCh
	s.mu.Unlock()

	defer func() {
		s.running.Store(false)
		close(stoppedCh)
	}()

	logger.InfoCtx(ctx, "Starting payout sweeper",
		zap.Int("batch_size", s.config.BatchSize),
		zap.Int("worker_pool_size", s.config.WorkerPoolSize),
		zap.Int("max_attempts", s.config.MaxAttempts),
		zap.Duration("poll_interval", s.config.PollInterval),
	)

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Payout sweeper stopping due to context cancellation", zap.Error(ctx.Err()))
			return nil
		case <-stopChan:
			logger.InfoCtx(ctx, "Payout sweeper stop requested")
			return nil
		default:
			result, err := s.SweepOnce(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.ErrorCtx(ctx, err)
			}

			// Pending rows left behind by a failed publish wait for the next poll
			if err == nil && result.Total >= s.config.BatchSize && result.Sent+result.Failed > 0 {
				continue
			}

			if !s.sleep(ctx, stopChan, s.config.PollInterval) {
				return nil
			}
		}
	}
}

// Stop gracefully stops the sweeper, waiting for the in-flight sweep
func (s *payoutSweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running.Load() || s.stopChan == nil {
		s.mu.Unlock()
		return nil
	}
	stopChan, stoppedCh := s.stopChan, s.stoppedCh
	s.stopChan = nil
	s.mu.Unlock()

	logger.InfoCtx(ctx, "Stopping payout sweeper")
	close(stopChan)

	select {
	case <-stoppedCh:
		logger.InfoCtx(ctx, "Payout sweeper stopped gracefully")
		return nil
	case <-ctx.Done():
		logger.WarnCtx(ctx, "Payout sweeper stop interrupted by context timeout")
		return ctx.Err()
	}
}

// SweepOnce publishes one batch of pending transfers
func (s *payoutSweeper) SweepOnce(ctx context.Context) (*SweepResult, error) {
	startTime := s.clock.Now()

	transfers, err := s.store.GetPendingTransfers(ctx, s.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending transfers: %w", err)
	}

	result := &SweepResult{Total: len(transfers)}
	if len(transfers) == 0 {
		logger.DebugCtx(ctx, "No pending transfers")
		return result, nil
	}

	logger.InfoCtx(ctx, "Found pending transfers", zap.Int("count", len(transfers)))

	var sent, failed, retry atomic.Int32

	pool := pond.NewPool(
		s.config.WorkerPoolSize,
		pond.WithQueueSize(s.config.BatchSize),
		pond.WithContext(ctx),
	)
	for _, t := range transfers {
		pool.Submit(func() {
			switch s.processTransfer(ctx, t) {
			case schema.TransferStatusSent:
				sent.Add(1)
			case schema.TransferStatusFailed:
				failed.Add(1)
			default:
				retry.Add(1)
			}
		})
	}
	pool.StopAndWait()

	result.Sent = int(sent.Load())
	result.Failed = int(failed.Load())
	result.Retry = int(retry.Load())

	logger.InfoCtx(ctx, "Payout sweep completed",
		zap.Duration("duration", s.clock.Since(startTime)),
		zap.Int("total", result.Total),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.Int("retry", result.Retry),
	)

	return result, ctx.Err()
}

// processTransfer publishes a single transfer and records the outcome, returning the resulting status
func (s *payoutSweeper) processTransfer(ctx context.Context, t *schema.Transfer) schema.TransferStatus {
	attempts := t.Attempts + 1

	req, err := payout.RequestFromTransfer(t)
	if err != nil {
		// A malformed row never becomes publishable
		s.markFailed(ctx, t, attempts, err)
		return schema.TransferStatusFailed
	}

	if err := s.publishWithRetry(ctx, t.ID, func() error {
		return s.publisher.PublishTransfer(ctx, req)
	}); err != nil {
		if errors.Is(err, context.Canceled) {
			return schema.TransferStatusPending
		}

		if attempts >= s.config.MaxAttempts {
			s.markFailed(ctx, t, attempts, err)
			return schema.TransferStatusFailed
		}

		logger.WarnCtx(ctx, "Transfer publish failed, will retry on a later sweep",
			zap.String("transfer_id", t.ID),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		lastError := err.Error()
		if uerr := s.store.UpdateTransferStatus(ctx, store.UpdateTransferStatusInput{
			ID:        t.ID,
			Status:    schema.TransferStatusPending,
			Attempts:  attempts,
			LastError: &lastError,
		}); uerr != nil {
			logger.ErrorCtx(ctx, uerr, zap.String("transfer_id", t.ID))
		}
		return schema.TransferStatusPending
	}

	sentAt := s.clock.Now()
	if err := s.store.UpdateTransferStatus(ctx, store.UpdateTransferStatusInput{
		ID:       t.ID,
		Status:   schema.TransferStatusSent,
		Attempts: attempts,
		SentAt:   &sentAt,
	}); err != nil {
		// The broker de-duplicates on the transfer ID, so a republish on the next sweep is harmless
		logger.ErrorCtx(ctx, err, zap.String("transfer_id", t.ID))
		return schema.TransferStatusPending
	}

	logger.DebugCtx(ctx, "Transfer sent",
		zap.String("transfer_id", t.ID),
		zap.String("kind", t.Kind),
		zap.String("amount", t.Amount),
	)
	return schema.TransferStatusSent
}

// markFailed marks a transfer as failed and reports it through the error logger
func (s *payoutSweeper) markFailed(ctx context.Context, t *schema.Transfer, attempts int, cause error) {
	logger.ErrorCtx(ctx, fmt.Errorf("transfer %s failed after %d attempts: %w", t.ID, attempts, cause),
		zap.String("transfer_id", t.ID),
		zap.String("kind", t.Kind),
		zap.String("recipient", t.Recipient),
		zap.String("amount", t.Amount),
		zap.String("reference", t.Reference),
	)

	lastError := cause.Error()
	if err := s.store.UpdateTransferStatus(ctx, store.UpdateTransferStatusInput{
		ID:        t.ID,
		Status:    schema.TransferStatusFailed,
		Attempts:  attempts,
		LastError: &lastError,
	}); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("transfer_id", t.ID))
	}
}

// publishWithRetry runs the publish operation with exponential backoff retry
func (s *payoutSweeper) publishWithRetry(ctx context.Context, transferID string, operation func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.config.RetryInitialInterval
	b.MaxInterval = s.config.RetryMaxInterval
	b.MaxElapsedTime = 0 // bounded by retry count
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.5

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.config.PublishRetries)), ctx)

	var attemptCount int
	notifyOnError := func(err error, duration time.Duration) {
		attemptCount++
		logger.WarnCtx(ctx, "Transfer publish failed, retrying",
			zap.String("transfer_id", transferID),
			zap.Error(err),
			zap.Int("attempt", attemptCount),
			zap.Duration("next_retry_in", duration),
		)
	}

	if err := backoff.RetryNotify(operation, policy, notifyOnError); err != nil {
		return err
	}

	if attemptCount > 0 {
		logger.InfoCtx(ctx, "Transfer publish succeeded after retries",
			zap.String("transfer_id", transferID),
			zap.Int("total_attempts", attemptCount+1),
		)
	}

	return nil
}

// sleep sleeps for the given duration but can be interrupted by context cancellation or Stop
func (s *payoutSweeper) sleep(ctx context.Context, stopChan <-chan struct{}, duration time.Duration) bool {
	select {
	case <-s.clock.After(duration):
		return true
	case <-ctx.Done():
		return false
	case <-stopChan:
		return false
	}
}

package sweeper_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-ledger/internal/domain"
	"github.com/feral-file/ff-ledger/internal/logger"
	"github.com/feral-file/ff-ledger/internal/mocks"
	"github.com/feral-file/ff-ledger/internal/store"
	"github.com/feral-file/ff-ledger/internal/store/schema"
	"github.com/feral-file/ff-ledger/internal/sweeper"
)

// testSweeperMocks holds a payout sweeper over an in-memory store with mocked publisher and clock
type testSweeperMocks struct {
	ctrl      *gomock.Controller
	store     store.Store
	publisher *mocks.MockPublisher
	clock     *mocks.MockClock
	sweeper   sweeper.PayoutSweeper
	now       time.Time
}

func setupTestSweeper(t *testing.T, config *sweeper.PayoutSweeperConfig) *testSweeperMocks {
	err := logger.Initialize(logger.Config{
		Debug: true,
	})
	if err != nil {
		t.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bs, err := store.OpenBadgerStore(ctx, "")
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		_ = bs.Close()
	})

	ctrl := gomock.NewController(t)
	tm := &testSweeperMocks{
		ctrl:      ctrl,
		store:     bs,
		publisher: mocks.NewMockPublisher(ctrl),
		clock:     mocks.NewMockClock(ctrl),
		now:       time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}
	tm.clock.EXPECT().Now().Return(tm.now).AnyTimes()
	tm.clock.EXPECT().Since(gomock.Any()).Return(time.Second).AnyTimes()

	tm.sweeper = sweeper.NewPayoutSweeper(config, tm.store, tm.publisher, tm.clock)
	return tm
}

func defaultTestConfig() *sweeper.PayoutSweeperConfig {
	return &sweeper.PayoutSweeperConfig{
		BatchSize:            10,
		WorkerPoolSize:       2,
		MaxAttempts:          3,
		PollInterval:         time.Minute,
		PublishRetries:       0,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     5 * time.Millisecond,
	}
}

// seedTransfer writes a pending transfer request
func (tm *testSweeperMocks) seedTransfer(t *testing.T, kind domain.TransferKind, amount string, attempts int) *schema.Transfer {
	transfer := &schema.Transfer{
		ID:        ulid.Make().String(),
		Kind:      string(kind),
		Payer:     "donor.near",
		Recipient: "creator.near",
		Amount:    amount,
		Reference: "campaign:0",
		Meta:      []byte(`{"campaign_id":0,"payment":"1000"}`),
		Status:    schema.TransferStatusPending,
		Attempts:  attempts,
		CreatedAt: tm.now,
		UpdatedAt: tm.now,
	}
	require.NoError(t, tm.store.CreateTransfers(context.Background(), []*schema.Transfer{transfer}))
	return transfer
}

func (tm *testSweeperMocks) getTransfer(t *testing.T, id string) *schema.Transfer {
	got, err := tm.store.GetTransfer(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, got)
	return got
}

func TestPayoutSweeper_Name(t *testing.T) {
	tm := setupTestSweeper(t, defaultTestConfig())
	assert.Equal(t, "payout-sweeper", tm.sweeper.Name())
}

func TestPayoutSweeper_SweepOnce_Empty(t *testing.T) {
	tm := setupTestSweeper(t, defaultTestConfig())

	result, err := tm.sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &sweeper.SweepResult{}, result)
}

func TestPayoutSweeper_SweepOnce_Sent(t *testing.T) {
	tm := setupTestSweeper(t, defaultTestConfig())
	ctx := context.Background()

	creatorShare := tm.seedTransfer(t, domain.TransferKindCreatorShare, "900", 0)
	platformShare := tm.seedTransfer(t, domain.TransferKindPlatformShare, "100", 0)

	published := make(chan *domain.TransferRequest, 2)
	tm.publisher.EXPECT().
		PublishTransfer(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *domain.TransferRequest) error {
			published <- req
			return nil
		}).
		Times(2)

	result, err := tm.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 0, result.Retry)

	close(published)
	byID := make(map[string]*domain.TransferRequest)
	for req := range published {
		byID[req.ID] = req
	}
	require.Contains(t, byID, creatorShare.ID)
	assert.Equal(t, domain.TransferKindCreatorShare, byID[creatorShare.ID].Kind)
	assert.Equal(t, "900", byID[creatorShare.ID].Amount.String())
	require.Contains(t, byID, platformShare.ID)
	assert.Equal(t, "100", byID[platformShare.ID].Amount.String())

	for _, id := range []string{creatorShare.ID, platformShare.ID} {
		got := tm.getTransfer(t, id)
		assert.Equal(t, schema.TransferStatusSent, got.Status)
		assert.Equal(t, 1, got.Attempts)
		assert.Nil(t, got.LastError)
		require.NotNil(t, got.SentAt)
		assert.True(t, got.SentAt.Equal(tm.now))
	}

	pending, err := tm.store.GetPendingTransfers(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPayoutSweeper_SweepOnce_FailureKeepsPending(t *testing.T) {
	tm := setupTestSweeper(t, defaultTestConfig())
	ctx := context.Background()

	transfer := tm.seedTransfer(t, domain.TransferKindSaleProceeds, "250", 0)

	tm.publisher.EXPECT().
		PublishTransfer(gomock.Any(), gomock.Any()).
		Return(errors.New("nats: no responders available for request"))

	result, err := tm.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Retry)

	got := tm.getTransfer(t, transfer.ID)
	assert.Equal(t, schema.TransferStatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, "no responders")
	assert.Nil(t, got.SentAt)

	pending, err := tm.store.GetPendingTransfers(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, transfer.ID, pending[0].ID)
}

func TestPayoutSweeper_SweepOnce_RetriesWithinSweep(t *testing.T) {
	config := defaultTestConfig()
	config.PublishRetries = 2
	tm := setupTestSweeper(t, config)
	ctx := context.Background()

	transfer := tm.seedTransfer(t, domain.TransferKindCreatorShare, "900", 0)

	gomock.InOrder(
		tm.publisher.EXPECT().
			PublishTransfer(gomock.Any(), gomock.Any()).
			Return(errors.New("timeout")),
		tm.publisher.EXPECT().
			PublishTransfer(gomock.Any(), gomock.Any()).
			Return(nil),
	)

	result, err := tm.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)

	got := tm.getTransfer(t, transfer.ID)
	assert.Equal(t, schema.TransferStatusSent, got.Status)
	assert.Equal(t, 1, got.Attempts)
}

func TestPayoutSweeper_SweepOnce_MaxAttempts(t *testing.T) {
	tm := setupTestSweeper(t, defaultTestConfig())
	ctx := context.Background()

	transfer := tm.seedTransfer(t, domain.TransferKindPlatformShare, "100", 2)

	tm.publisher.EXPECT().
		PublishTransfer(gomock.Any(), gomock.Any()).
		Return(errors.New("stream unavailable"))

	result, err := tm.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	got := tm.getTransfer(t, transfer.ID)
	assert.Equal(t, schema.TransferStatusFailed, got.Status)
	assert.Equal(t, 3, got.Attempts)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "stream unavailable", *got.LastError)

	// Failed transfers leave the queue
	pending, err := tm.store.GetPendingTransfers(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPayoutSweeper_SweepOnce_MalformedTransfer(t *testing.T) {
	tm := setupTestSweeper(t, defaultTestConfig())
	ctx := context.Background()

	transfer := tm.seedTransfer(t, domain.TransferKind("refund"), "100", 0)

	tm.publisher.EXPECT().PublishTransfer(gomock.Any(), gomock.Any()).Times(0)

	result, err := tm.sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	got := tm.getTransfer(t, transfer.ID)
	assert.Equal(t, schema.TransferStatusFailed, got.Status)
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, "unknown transfer kind")
}

func TestPayoutSweeper_StartStop(t *testing.T) {
	tm := setupTestSweeper(t, defaultTestConfig())
	ctx := context.Background()

	transfer := tm.seedTransfer(t, domain.TransferKindSaleProceeds, "250", 0)

	done := make(chan struct{})
	tm.publisher.EXPECT().
		PublishTransfer(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *domain.TransferRequest) error {
			assert.Equal(t, transfer.ID, req.ID)
			close(done)
			return nil
		})

	// The poll sleep never elapses on its own; Stop interrupts it
	tm.clock.EXPECT().After(time.Minute).Return(make(chan time.Time)).AnyTimes()

	errCh := make(chan error, 1)
	go func() {
		errCh <- tm.sweeper.Start(ctx)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("transfer was not published")
	}

	// Starting twice is rejected
	require.Error(t, tm.sweeper.Start(ctx))

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, tm.sweeper.Stop(stopCtx))
	require.NoError(t, <-errCh)

	got := tm.getTransfer(t, transfer.ID)
	assert.Equal(t, schema.TransferStatusSent, got.Status)
}

func TestPayoutSweeper_StopsOnContextCancel(t *testing.T) {
	tm := setupTestSweeper(t, defaultTestConfig())
	ctx, cancel := context.WithCancel(context.Background())

	afterCalled := make(chan struct{})
	tm.clock.EXPECT().After(time.Minute).DoAndReturn(func(time.Duration) <-chan time.Time {
		close(afterCalled)
		return make(chan time.Time)
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- tm.sweeper.Start(ctx)
	}()

	<-afterCalled
	cancel()
	require.NoError(t, <-errCh)
}

func TestPayoutSweeper_FailedBatchWaitsForPoll(t *testing.T) {
	config := defaultTestConfig()
	config.BatchSize = 1
	config.MaxAttempts = 3
	tm := setupTestSweeper(t, config)
	ctx := context.Background()

	transfer := tm.seedTransfer(t, domain.TransferKindCreatorShare, "90", 0)

	tm.publisher.EXPECT().
		PublishTransfer(gomock.Any(), gomock.Any()).
		Return(errors.New("nats: no responders available for request")).
		Times(1)

	// The poll interval never elapses, so only the first sweep may publish
	afterCalled := make(chan struct{})
	tm.clock.EXPECT().After(time.Minute).DoAndReturn(func(time.Duration) <-chan time.Time {
		close(afterCalled)
		return make(chan time.Time)
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- tm.sweeper.Start(ctx)
	}()

	select {
	case <-afterCalled:
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not wait for the poll interval")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, tm.sweeper.Stop(stopCtx))
	require.NoError(t, <-errCh)

	got := tm.getTransfer(t, transfer.ID)
	assert.Equal(t, schema.TransferStatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
}

func TestPayoutSweeper_Restart(t *testing.T) {
	tm := setupTestSweeper(t, defaultTestConfig())
	ctx := context.Background()

	afterCalled := make(chan struct{}, 2)
	tm.clock.EXPECT().After(time.Minute).DoAndReturn(func(time.Duration) <-chan time.Time {
		afterCalled <- struct{}{}
		return make(chan time.Time)
	}).Times(2)

	for i := 0; i < 2; i++ {
		errCh := make(chan error, 1)
		go func() {
			errCh <- tm.sweeper.Start(ctx)
		}()

		select {
		case <-afterCalled:
		case <-time.After(5 * time.Second):
			t.Fatalf("run %d did not reach the poll sleep", i)
		}

		stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		require.NoError(t, tm.sweeper.Stop(stopCtx))
		cancel()
		require.NoError(t, <-errCh)
	}

	// Stopping a stopped sweeper is a no-op
	require.NoError(t, tm.sweeper.Stop(ctx))
}

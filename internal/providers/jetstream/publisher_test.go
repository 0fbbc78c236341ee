package jetstream_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/nats-io/nats.go"
	natsjs "github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-ledger/internal/adapter"
	"github.com/feral-file/ff-ledger/internal/domain"
	"github.com/feral-file/ff-ledger/internal/logger"
	"github.com/feral-file/ff-ledger/internal/mocks"
	"github.com/feral-file/ff-ledger/internal/payout"
	"github.com/feral-file/ff-ledger/internal/providers/jetstream"
)

func TestMain(m *testing.M) {
	if err := logger.Initialize(logger.Config{Debug: false}); err != nil {
		panic(err)
	}

	os.Exit(m.Run())
}

type testPublisherMocks struct {
	ctrl   *gomock.Controller
	natsJS *mocks.MockNatsJetStream
	conn   *mocks.MockNatsConn
	js     *mocks.MockJetStream
	signer *payout.Signer
}

func setupTestPublisher(t *testing.T) *testPublisherMocks {
	ctrl := gomock.NewController(t)
	clock := mocks.NewMockClock(ctrl)
	clock.EXPECT().Now().Return(time.Unix(1_705_312_800, 0)).AnyTimes()

	return &testPublisherMocks{
		ctrl:   ctrl,
		natsJS: mocks.NewMockNatsJetStream(ctrl),
		conn:   mocks.NewMockNatsConn(ctrl),
		js:     mocks.NewMockJetStream(ctrl),
		signer: payout.NewSigner("secret", clock, adapter.NewJSON(), adapter.NewJCS()),
	}
}

func testConfig() jetstream.Config {
	return jetstream.Config{
		URL:             "nats://localhost:4222",
		StreamName:      "PAYOUTS",
		MaxReconnects:   3,
		ReconnectWait:   time.Second,
		ConnectionName:  "ff-ledger-test",
		DuplicateWindow: time.Hour,
	}
}

func TestNewPublisher(t *testing.T) {
	ctx := context.Background()

	t.Run("ensures the payout stream", func(t *testing.T) {
		m := setupTestPublisher(t)

		m.natsJS.EXPECT().Connect("nats://localhost:4222", gomock.Any()).Return(m.conn, m.js, nil)
		m.js.EXPECT().CreateOrUpdateStream(ctx, gomock.Any()).DoAndReturn(
			func(_ context.Context, cfg natsjs.StreamConfig) error {
				assert.Equal(t, "PAYOUTS", cfg.Name)
				assert.Equal(t, []string{"payouts.>"}, cfg.Subjects)
				assert.Equal(t, time.Hour, cfg.Duplicates)
				return nil
			})

		pub, err := jetstream.NewPublisher(ctx, testConfig(), m.natsJS, m.signer)
		require.NoError(t, err)

		m.conn.EXPECT().Close()
		pub.Close()
	})

	t.Run("connect failure", func(t *testing.T) {
		m := setupTestPublisher(t)

		m.natsJS.EXPECT().Connect(gomock.Any(), gomock.Any()).Return(nil, nil, errors.New("no servers available"))

		_, err := jetstream.NewPublisher(ctx, testConfig(), m.natsJS, m.signer)
		assert.ErrorContains(t, err, "no servers available")
	})

	t.Run("stream failure closes the connection", func(t *testing.T) {
		m := setupTestPublisher(t)

		m.natsJS.EXPECT().Connect(gomock.Any(), gomock.Any()).Return(m.conn, m.js, nil)
		m.js.EXPECT().CreateOrUpdateStream(ctx, gomock.Any()).Return(errors.New("insufficient resources"))
		m.conn.EXPECT().Close()

		_, err := jetstream.NewPublisher(ctx, testConfig(), m.natsJS, m.signer)
		assert.ErrorContains(t, err, "insufficient resources")
	})
}

func TestPublishTransfer(t *testing.T) {
	ctx := context.Background()
	req := &domain.TransferRequest{
		ID:        "01JG8XAMPLE1234567890123456",
		Kind:      domain.TransferKindSaleProceeds,
		Payer:     "buyer.near",
		Recipient: "artist.near",
		Amount:    domain.NewAmount(50),
		Reference: "nft:0",
		CreatedAt: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}

	newPublisher := func(t *testing.T) (*testPublisherMocks, payout.Publisher) {
		m := setupTestPublisher(t)
		m.natsJS.EXPECT().Connect(gomock.Any(), gomock.Any()).Return(m.conn, m.js, nil)
		m.js.EXPECT().CreateOrUpdateStream(ctx, gomock.Any()).Return(nil)
		pub, err := jetstream.NewPublisher(ctx, testConfig(), m.natsJS, m.signer)
		require.NoError(t, err)
		return m, pub
	}

	t.Run("publishes a signed message keyed by transfer id", func(t *testing.T) {
		m, pub := newPublisher(t)

		m.js.EXPECT().PublishMsg(ctx, gomock.Any()).DoAndReturn(
			func(_ context.Context, msg *nats.Msg, _ ...natsjs.PublishOpt) (*natsjs.PubAck, error) {
				assert.Equal(t, "payouts.sale_proceeds", msg.Subject)
				assert.Equal(t, req.ID, msg.Header.Get(nats.MsgIdHdr))
				assert.Equal(t, "1705312800", msg.Header.Get(payout.HeaderTimestamp))
				assert.True(t, payout.VerifySignature("secret", 1_705_312_800, req.ID, msg.Data, msg.Header.Get(payout.HeaderSignature)))
				assert.Contains(t, string(msg.Data), `"amount":"50"`)
				return &natsjs.PubAck{Stream: "PAYOUTS", Sequence: 1}, nil
			})

		require.NoError(t, pub.PublishTransfer(ctx, req))
	})

	t.Run("duplicate ack is success", func(t *testing.T) {
		m, pub := newPublisher(t)

		m.js.EXPECT().PublishMsg(ctx, gomock.Any()).Return(&natsjs.PubAck{Stream: "PAYOUTS", Sequence: 1, Duplicate: true}, nil)

		require.NoError(t, pub.PublishTransfer(ctx, req))
	})

	t.Run("publish error is returned", func(t *testing.T) {
		m, pub := newPublisher(t)

		m.js.EXPECT().PublishMsg(ctx, gomock.Any()).Return(nil, errors.New("nats: timeout"))

		err := pub.PublishTransfer(ctx, req)
		assert.ErrorContains(t, err, "nats: timeout")
	})
}

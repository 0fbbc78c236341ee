package jetstream

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/feral-file/ff-ledger/internal/adapter"
	"github.com/feral-file/ff-ledger/internal/domain"
	"github.com/feral-file/ff-ledger/internal/logger"
	"github.com/feral-file/ff-ledger/internal/payout"
)

// Config holds the configuration for NATS JetStream connection
type Config struct {
	URL            string
	StreamName     string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectionName string
	// DuplicateWindow is how long the stream remembers message IDs for de-duplication
	DuplicateWindow time.Duration
}

type publisher struct {
	nc     adapter.NatsConn
	js     adapter.JetStream
	signer *payout.Signer
}

// NewPublisher connects to NATS, ensures the payout stream exists and returns a transfer publisher
func NewPublisher(ctx context.Context, cfg Config, natsJS adapter.NatsJetStream, signer *payout.Signer) (payout.Publisher, error) {
	opts := []nats.Option{
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Error(err, zap.String("message", "Disconnected from NATS"))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, js, err := natsJS.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS and create JetStream: %w", err)
	}

	err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       cfg.StreamName,
		Subjects:   []string{payout.SubjectPrefix + ".>"},
		Storage:    jetstream.FileStorage,
		Duplicates: cfg.DuplicateWindow,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream %s: %w", cfg.StreamName, err)
	}

	return &publisher{
		nc:     nc,
		js:     js,
		signer: signer,
	}, nil
}

// PublishTransfer publishes a signed transfer request.
// The request ID is the JetStream message ID so re-publishing within the duplicate window is a no-op.
func (p *publisher) PublishTransfer(ctx context.Context, req *domain.TransferRequest) error {
	signed, err := p.signer.Sign(req)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(payout.Subject(req.Kind))
	msg.Data = signed.Payload
	msg.Header.Set(nats.MsgIdHdr, req.ID)
	msg.Header.Set(payout.HeaderSignature, signed.Signature)
	msg.Header.Set(payout.HeaderTimestamp, strconv.FormatInt(signed.Timestamp, 10))

	ack, err := p.js.PublishMsg(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to publish transfer: %w", err)
	}

	if ack != nil && ack.Duplicate {
		logger.DebugCtx(ctx, "Transfer already published", zap.String("transfer_id", req.ID))
	}

	return nil
}

// Close closes the NATS connection
func (p *publisher) Close() {
	if p.nc == nil {
		return
	}

	p.nc.Close()
}

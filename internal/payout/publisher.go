package payout

import (
	"context"
	"fmt"

	"github.com/feral-file/ff-ledger/internal/domain"
	"github.com/feral-file/ff-ledger/internal/store/schema"
)

const (
	// SubjectPrefix prefixes every transfer request subject: payouts.<kind>
	SubjectPrefix = "payouts"
	// HeaderSignature carries the sha256=<hex> HMAC of the request
	HeaderSignature = "X-Ledger-Signature"
	// HeaderTimestamp carries the unix timestamp the signature was computed at
	HeaderTimestamp = "X-Ledger-Timestamp"
)

// Publisher hands transfer requests to the network that moves funds.
// Publishing the same request twice must not move funds twice; implementations de-duplicate on the request ID.
//
//go:generate mockgen -source=publisher.go -destination=../mocks/publisher.go -package=mocks -mock_names=Publisher=MockPublisher
type Publisher interface {
	// PublishTransfer delivers one transfer request
	PublishTransfer(ctx context.Context, req *domain.TransferRequest) error
	// Close closes the connection
	Close()
}

// Subject returns the subject a transfer request of the given kind is published on
func Subject(kind domain.TransferKind) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, kind)
}

// RequestFromTransfer converts a stored transfer row into the request handed to the network
func RequestFromTransfer(t *schema.Transfer) (*domain.TransferRequest, error) {
	kind := domain.TransferKind(t.Kind)
	if !domain.IsValidTransferKind(kind) {
		return nil, fmt.Errorf("unknown transfer kind %q", t.Kind)
	}

	amount, err := domain.ParseAmount(t.Amount)
	if err != nil {
		return nil, fmt.Errorf("transfer %s: %w", t.ID, err)
	}

	return &domain.TransferRequest{
		ID:        t.ID,
		Kind:      kind,
		Payer:     domain.AccountID(t.Payer),
		Recipient: domain.AccountID(t.Recipient),
		Amount:    amount,
		Reference: t.Reference,
		CreatedAt: t.CreatedAt.UTC(),
	}, nil
}

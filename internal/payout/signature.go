package payout

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/feral-file/ff-ledger/internal/adapter"
	"github.com/feral-file/ff-ledger/internal/domain"
)

// SignedTransfer is a transfer request ready to publish
type SignedTransfer struct {
	// Payload is the canonical (RFC 8785) JSON of the request
	Payload   []byte
	Timestamp int64
	// Signature is "sha256=<hex>" over "{timestamp}.{id}.{payload}"
	Signature string
}

// Signer signs transfer requests with a shared secret
type Signer struct {
	secret []byte
	clock  adapter.Clock
	json   adapter.JSON
	jcs    adapter.JCS
}

// NewSigner creates a signer
func NewSigner(secret string, clock adapter.Clock, jsonAdapter adapter.JSON, jcsAdapter adapter.JCS) *Signer {
	return &Signer{
		secret: []byte(secret),
		clock:  clock,
		json:   jsonAdapter,
		jcs:    jcsAdapter,
	}
}

// Sign canonicalizes and signs a transfer request
func (s *Signer) Sign(req *domain.TransferRequest) (*SignedTransfer, error) {
	raw, err := s.json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transfer request: %w", err)
	}

	payload, err := s.jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize transfer request: %w", err)
	}

	timestamp := s.clock.Now().Unix()

	return &SignedTransfer{
		Payload:   payload,
		Timestamp: timestamp,
		Signature: computeSignature(s.secret, timestamp, req.ID, payload),
	}, nil
}

// VerifySignature checks a signature produced by Signer.Sign
func VerifySignature(secret string, timestamp int64, id string, payload []byte, signature string) bool {
	expected := computeSignature([]byte(secret), timestamp, id, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func computeSignature(secret []byte, timestamp int64, id string, payload []byte) string {
	h := hmac.New(sha256.New, secret)
	fmt.Fprintf(h, "%d.%s.", timestamp, id)
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

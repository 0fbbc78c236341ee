package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// AccountID identifies an account on the host network (e.g. "alice.near")
type AccountID string

// accountIDPattern allows lowercase alphanumeric parts joined by '.', '-' or '_'
var accountIDPattern = regexp.MustCompile(`^(([a-z\d]+[\-_])*[a-z\d]+\.)*([a-z\d]+[\-_])*[a-z\d]+$`)

// Valid reports whether the account identity is well formed
func (a AccountID) Valid() bool {
	if len(a) < 2 || len(a) > 64 {
		return false
	}
	return accountIDPattern.MatchString(string(a))
}

func (a AccountID) String() string {
	return string(a)
}

// ParseAccountID validates and returns an account identity
func ParseAccountID(s string) (AccountID, error) {
	a := AccountID(s)
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAccount, s)
	}
	return a, nil
}

// CampaignID is the sequential identifier of a campaign
type CampaignID uint64

func (id CampaignID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// TokenID is the sequential identifier of a token. It is numbered independently of campaigns.
type TokenID uint64

func (id TokenID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Timestamp is an unsigned count of nanoseconds since the Unix epoch
type Timestamp uint64

// TimestampFromTime converts a wall clock time to a Timestamp, clamping times before the epoch to zero
func TimestampFromTime(t time.Time) Timestamp {
	ns := t.UnixNano()
	if ns < 0 {
		return 0
	}
	return Timestamp(ns)
}

// Time converts the timestamp to a wall clock time
func (ts Timestamp) Time() time.Time {
	if ts > Timestamp(^uint64(0)>>1) {
		return time.Unix(0, int64(^uint64(0)>>1)).UTC()
	}
	return time.Unix(0, int64(ts)).UTC()
}

// Call carries the host-supplied context of a mutating operation:
// the authenticated caller and the value attached to the call.
type Call struct {
	Caller  AccountID
	Payment Amount
}

// NewCall creates a call without attached payment
func NewCall(caller AccountID) Call {
	return Call{Caller: caller}
}

// WithPayment returns a copy of the call carrying the given payment
func (c Call) WithPayment(payment Amount) Call {
	c.Payment = payment
	return c
}

// TransferKind classifies an outbound value transfer
type TransferKind string

const (
	TransferKindCreatorShare  TransferKind = "donation_creator_share"
	TransferKindPlatformShare TransferKind = "donation_platform_share"
	TransferKindSaleProceeds  TransferKind = "sale_proceeds"
)

// IsValidTransferKind checks if a transfer kind is known
func IsValidTransferKind(kind TransferKind) bool {
	return kind == TransferKindCreatorShare ||
		kind == TransferKindPlatformShare ||
		kind == TransferKindSaleProceeds
}

// TransferRequest is the message handed to the host network to move funds.
// This is the standard format published to NATS.
type TransferRequest struct {
	ID        string       `json:"id"`        // ULID, also used for broker-side de-duplication
	Kind      TransferKind `json:"kind"`      // donation_creator_share, donation_platform_share, sale_proceeds
	Payer     AccountID    `json:"payer"`     // account whose attached payment funds the transfer
	Recipient AccountID    `json:"recipient"` // account receiving the funds
	Amount    Amount       `json:"amount"`    // decimal string
	Reference string       `json:"reference"` // ledger record that caused the transfer, e.g. "campaign:3"
	CreatedAt time.Time    `json:"created_at"`
}

// CampaignReference returns the transfer reference for a campaign
func CampaignReference(id CampaignID) string {
	return "campaign:" + id.String()
}

// TokenReference returns the transfer reference for a token
func TokenReference(id TokenID) string {
	return "nft:" + id.String()
}

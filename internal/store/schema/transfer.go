package schema

import (
	"time"

	"gorm.io/datatypes"
)

// TransferStatus is the delivery status of an outbound transfer request
type TransferStatus string

const (
	// TransferStatusPending is a transfer request waiting to be handed to the network
	TransferStatusPending TransferStatus = "pending"
	// TransferStatusSent is a transfer request acknowledged by the broker
	TransferStatusSent TransferStatus = "sent"
	// TransferStatusFailed is a transfer request that exhausted its delivery attempts
	TransferStatusFailed TransferStatus = "failed"
)

// TransferMeta is extra context stored alongside a transfer request
type TransferMeta struct {
	CampaignID *uint64 `json:"campaign_id,omitempty"`
	TokenID    *uint64 `json:"token_id,omitempty"`
	// Payment is the full attached payment that produced the transfer
	Payment string `json:"payment,omitempty"`
}

// Transfer represents the transfers table - outbox of value transfers requested by ledger mutations
type Transfer struct {
	// ID is a ULID, time-sortable and used for broker-side de-duplication
	ID string `gorm:"column:id;primaryKey;type:varchar(26)" msgpack:"id"`
	// Kind is donation_creator_share, donation_platform_share or sale_proceeds
	Kind string `gorm:"column:kind;not null;type:varchar(32)" msgpack:"kind"`
	// Payer is the account whose attached payment funds the transfer
	Payer string `gorm:"column:payer;not null;type:text" msgpack:"payer"`
	// Recipient is the account receiving the funds
	Recipient string `gorm:"column:recipient;not null;type:text" msgpack:"recipient"`
	// Amount is the transferred amount as a decimal string
	Amount string `gorm:"column:amount;not null;type:numeric(39,0)" msgpack:"amount"`
	// Reference is the ledger record that caused the transfer (e.g. "campaign:3", "nft:0")
	Reference string `gorm:"column:reference;not null;type:text;index" msgpack:"reference"`
	// Meta holds TransferMeta as JSON
	Meta datatypes.JSON `gorm:"column:meta;type:jsonb" msgpack:"meta"`
	// Status is pending, sent or failed
	Status TransferStatus `gorm:"column:status;not null;default:pending;type:varchar(16)" msgpack:"status"`
	// Attempts is the number of publish attempts made
	Attempts int `gorm:"column:attempts;not null;default:0" msgpack:"attempts"`
	// LastError contains the last publish error
	LastError *string `gorm:"column:last_error;type:text" msgpack:"last_error"`
	// SentAt is the timestamp the broker acknowledged the request
	SentAt *time.Time `gorm:"column:sent_at;type:timestamptz" msgpack:"sent_at"`
	// CreatedAt is the timestamp of the ledger mutation that produced the request
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz" msgpack:"created_at"`
	// UpdatedAt is the timestamp of the last status change
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz" msgpack:"updated_at"`
}

// TableName specifies the table name for the Transfer model
func (Transfer) TableName() string {
	return "transfers"
}

package store

import (
	"context"
	"time"

	"github.com/feral-file/ff-ledger/internal/store/schema"
)

const (
	// DriverPostgres selects the PostgreSQL store
	DriverPostgres = "postgres"
	// DriverBadger selects the embedded badger store
	DriverBadger = "badger"
)

// UpdateTransferStatusInput represents the outcome of a transfer publish attempt
type UpdateTransferStatusInput struct {
	ID        string
	Status    schema.TransferStatus
	Attempts  int
	LastError *string
	SentAt    *time.Time
}

// Store defines the interface for ledger persistence.
// Getters return (nil, nil) when the record does not exist.
type Store interface {
	// Transaction runs fn against a transactional view of the store.
	// Writes made through tx are committed together when fn returns nil and discarded otherwise.
	// Nested calls join the outer transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	// GetCounter returns the next value the named counter would allocate
	GetCounter(ctx context.Context, name string) (uint64, error)
	// AllocateID returns the current value of the named counter and increments it
	AllocateID(ctx context.Context, name string) (uint64, error)

	// GetKeyValue retrieves a singleton value, empty when unset
	GetKeyValue(ctx context.Context, key string) (string, error)
	// SetKeyValue stores a singleton value
	SetKeyValue(ctx context.Context, key, value string) error
	// CreateKeyValue stores a singleton value only when the key is unset, reporting whether it was stored
	CreateKeyValue(ctx context.Context, key, value string) (bool, error)

	// CreateCampaign inserts a new campaign
	CreateCampaign(ctx context.Context, campaign *schema.Campaign) error
	// GetCampaign retrieves a campaign by ID
	GetCampaign(ctx context.Context, id uint64) (*schema.Campaign, error)
	// ListCampaigns retrieves all campaigns in ascending ID order
	ListCampaigns(ctx context.Context) ([]*schema.Campaign, error)
	// UpdateCampaignAmountCollected sets the collected total of a campaign
	UpdateCampaignAmountCollected(ctx context.Context, id uint64, amountCollected string, updatedAt time.Time) error

	// GetDonation retrieves the cumulative donation of a donor to a campaign
	GetDonation(ctx context.Context, campaignID uint64, donor string) (*schema.Donation, error)
	// UpsertDonation stores the cumulative donation of a donor to a campaign
	UpsertDonation(ctx context.Context, donation *schema.Donation) error
	// ListDonations retrieves all donations to a campaign ordered by donor
	ListDonations(ctx context.Context, campaignID uint64) ([]*schema.Donation, error)

	// CreateNFT inserts a newly minted token
	CreateNFT(ctx context.Context, nft *schema.NFT) error
	// GetNFT retrieves a token by ID
	GetNFT(ctx context.Context, id uint64) (*schema.NFT, error)
	// ListNFTs retrieves all tokens in ascending ID order
	ListNFTs(ctx context.Context) ([]*schema.NFT, error)
	// UpdateNFTListing sets the sale state of a token
	UpdateNFTListing(ctx context.Context, id uint64, forSale bool, price *string, updatedAt time.Time) error

	// GrantAccess records that an account has access to a token
	GrantAccess(ctx context.Context, grant *schema.AccessGrant) error
	// HasAccess checks whether an account has access to a token
	HasAccess(ctx context.Context, tokenID uint64, account string) (bool, error)
	// ListAccessGrants retrieves all grants of a token ordered by account
	ListAccessGrants(ctx context.Context, tokenID uint64) ([]*schema.AccessGrant, error)

	// CreateTransfers inserts pending transfer requests
	CreateTransfers(ctx context.Context, transfers []*schema.Transfer) error
	// GetTransfer retrieves a transfer request by ID
	GetTransfer(ctx context.Context, id string) (*schema.Transfer, error)
	// ListTransfersByReference retrieves the transfer requests caused by a ledger record, oldest first
	ListTransfersByReference(ctx context.Context, reference string) ([]*schema.Transfer, error)
	// GetPendingTransfers retrieves up to limit pending transfer requests, oldest first
	GetPendingTransfers(ctx context.Context, limit int) ([]*schema.Transfer, error)
	// UpdateTransferStatus records the outcome of a publish attempt
	UpdateTransferStatus(ctx context.Context, input UpdateTransferStatusInput) error
}

// counterKey returns the key-value entry backing a named counter
func counterKey(name string) string {
	return "counter:" + name
}

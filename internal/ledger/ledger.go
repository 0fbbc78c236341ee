package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/feral-file/ff-ledger/internal/adapter"
	"github.com/feral-file/ff-ledger/internal/domain"
	"github.com/feral-file/ff-ledger/internal/logger"
	"github.com/feral-file/ff-ledger/internal/store"
	"github.com/feral-file/ff-ledger/internal/store/schema"
)

// Config holds ledger settings
type Config struct {
	// ListingFee is the minimum payment attached to create a campaign
	ListingFee domain.Amount
}

// DefaultConfig returns the ledger settings used when none are configured
func DefaultConfig() Config {
	return Config{ListingFee: domain.MustParseAmount(domain.DEFAULT_LISTING_FEE)}
}

// Ledger is the campaign and collectible ledger.
// Every mutation receives the caller and attached payment explicitly through domain.Call
// and either commits all of its writes or none of them.
type Ledger interface {
	// Initialize records the platform wallet; it succeeds only once
	Initialize(ctx context.Context, platformWallet domain.AccountID) error
	// GetPlatformWallet returns the current platform wallet
	GetPlatformWallet(ctx context.Context) (domain.AccountID, error)
	// SetPlatformWallet replaces the platform wallet; only the current platform wallet may call it
	SetPlatformWallet(ctx context.Context, call domain.Call, newWallet domain.AccountID) error

	// CreateCampaign creates a campaign owned by the caller
	CreateCampaign(ctx context.Context, call domain.Call, input CreateCampaignInput) (domain.CampaignID, error)
	// Donate adds the attached payment to a campaign and requests the creator and platform transfers
	Donate(ctx context.Context, call domain.Call, campaignID domain.CampaignID) (*DonationReceipt, error)
	// GetCampaign returns a campaign view, nil when absent
	GetCampaign(ctx context.Context, campaignID domain.CampaignID) (*CampaignView, error)
	// GetCampaigns returns every campaign in ascending ID order
	GetCampaigns(ctx context.Context) ([]*CampaignView, error)
	// GetDonations returns the cumulative donation of each donor to a campaign
	GetDonations(ctx context.Context, campaignID domain.CampaignID) ([]*DonationView, error)

	// MintNFT creates a token owned by the caller
	MintNFT(ctx context.Context, call domain.Call, input MintNFTInput) (domain.TokenID, error)
	// ListNFTForSale puts a token owned by the caller up for sale
	ListNFTForSale(ctx context.Context, call domain.Call, tokenID domain.TokenID, price domain.Amount) error
	// BuyNFT pays the attached payment to the token owner and grants the caller access
	BuyNFT(ctx context.Context, call domain.Call, tokenID domain.TokenID) (*PurchaseReceipt, error)
	// GetNFT returns a token view, nil when absent
	GetNFT(ctx context.Context, tokenID domain.TokenID) (*NFTView, error)
	// GetAllNFTs returns every token in ascending ID order
	GetAllNFTs(ctx context.Context) ([]*NFTView, error)
	// HasAccess reports whether an account purchased access to a token
	HasAccess(ctx context.Context, tokenID domain.TokenID, account domain.AccountID) (bool, error)

	// GetTransfer returns a transfer request view, nil when absent
	GetTransfer(ctx context.Context, id string) (*TransferView, error)
	// ListTransfers returns the transfer requests caused by a ledger record
	ListTransfers(ctx context.Context, reference string) ([]*TransferView, error)
}

type ledger struct {
	config Config
	store  store.Store
	clock  adapter.Clock
	json   adapter.JSON
}

// New creates a ledger on top of a store
func New(cfg Config, st store.Store, clock adapter.Clock, jsonAdapter adapter.JSON) Ledger {
	return &ledger{
		config: cfg,
		store:  st,
		clock:  clock,
		json:   jsonAdapter,
	}
}

// Initialize records the platform wallet; it succeeds only once
func (l *ledger) Initialize(ctx context.Context, platformWallet domain.AccountID) error {
	if !platformWallet.Valid() {
		return fmt.Errorf("%w: platform wallet %q", domain.ErrInvalidAccount, platformWallet)
	}

	created, err := l.store.CreateKeyValue(ctx, domain.PLATFORM_WALLET_KEY, platformWallet.String())
	if err != nil {
		return err
	}
	if !created {
		return domain.ErrAlreadyInitialized
	}

	logger.InfoCtx(ctx, "Ledger initialized", zap.String("platform_wallet", platformWallet.String()))
	return nil
}

// GetPlatformWallet returns the current platform wallet
func (l *ledger) GetPlatformWallet(ctx context.Context) (domain.AccountID, error) {
	return platformWallet(ctx, l.store)
}

// SetPlatformWallet replaces the platform wallet; only the current platform wallet may call it
func (l *ledger) SetPlatformWallet(ctx context.Context, call domain.Call, newWallet domain.AccountID) error {
	if !newWallet.Valid() {
		return fmt.Errorf("%w: platform wallet %q", domain.ErrInvalidAccount, newWallet)
	}

	var previous domain.AccountID
	err := l.store.Transaction(ctx, func(tx store.Store) error {
		current, err := platformWallet(ctx, tx)
		if err != nil {
			return err
		}
		if call.Caller != current {
			return fmt.Errorf("%w: only the platform wallet can update itself", domain.ErrUnauthorized)
		}
		previous = current
		return tx.SetKeyValue(ctx, domain.PLATFORM_WALLET_KEY, newWallet.String())
	})
	if err != nil {
		logger.DebugCtx(ctx, "Platform wallet update rejected", zap.String("caller", call.Caller.String()), zap.Error(err))
		return err
	}

	logger.InfoCtx(ctx, "Platform wallet updated",
		zap.String("previous", previous.String()),
		zap.String("platform_wallet", newWallet.String()))
	return nil
}

// platformWallet reads the platform wallet through st, failing when the ledger is not initialized
func platformWallet(ctx context.Context, st store.Store) (domain.AccountID, error) {
	value, err := st.GetKeyValue(ctx, domain.PLATFORM_WALLET_KEY)
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", domain.ErrNotInitialized
	}
	return domain.AccountID(value), nil
}

// newTransfer builds a pending transfer request row
func (l *ledger) newTransfer(kind domain.TransferKind, payer, recipient domain.AccountID, amount domain.Amount, reference string, meta schema.TransferMeta, now time.Time) (*schema.Transfer, error) {
	metaJSON, err := l.json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transfer meta: %w", err)
	}

	return &schema.Transfer{
		ID:        ulid.Make().String(),
		Kind:      string(kind),
		Payer:     payer.String(),
		Recipient: recipient.String(),
		Amount:    amount.String(),
		Reference: reference,
		Meta:      metaJSON,
		Status:    schema.TransferStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// requireCaller rejects calls without a well-formed caller identity
func requireCaller(call domain.Call) error {
	if !call.Caller.Valid() {
		return fmt.Errorf("%w: caller %q", domain.ErrInvalidAccount, call.Caller)
	}
	return nil
}

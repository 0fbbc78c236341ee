package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/feral-file/ff-ledger/internal/domain"
	"github.com/feral-file/ff-ledger/internal/store/schema"
)

type pgStore struct {
	db   *gorm.DB
	inTx bool
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// ConfigureConnectionPool configures the connection pool settings for a GORM database connection.
// It accesses the underlying *sql.DB and sets the pool configuration.
// If any of the pool settings are 0 or empty, reasonable defaults are used:
//   - MaxOpenConns: 20 (if 0)
//   - MaxIdleConns: 5 (if 0)
//   - ConnMaxLifetime: 5 minutes (if 0)
//   - ConnMaxIdleTime: 10 minutes (if 0)
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime =
		NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// NormalizeConnectionPoolSettings applies defaults and clamps pool settings into safe values.
//
// Notes:
//   - database/sql treats MaxOpenConns=0 as "unlimited"
//   - database/sql treats MaxIdleConns=0 as "no idle connections"
func NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (int, int, time.Duration, time.Duration) {
	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	return maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime
}

// Transaction runs fn inside a database transaction
func (s *pgStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.transaction(ctx, func(tx *pgStore) error {
		return fn(tx)
	})
}

func (s *pgStore) transaction(ctx context.Context, fn func(tx *pgStore) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&pgStore{db: tx, inTx: true})
	})
}

// forUpdate locks the selected rows until the enclosing transaction ends.
// Outside a transaction the query is returned unchanged.
func (s *pgStore) forUpdate(q *gorm.DB) *gorm.DB {
	if !s.inTx {
		return q
	}
	return q.Clauses(clause.Locking{Strength: "UPDATE"})
}

// GetCounter returns the next value the named counter would allocate
func (s *pgStore) GetCounter(ctx context.Context, name string) (uint64, error) {
	var kv schema.KeyValueStore
	err := s.db.WithContext(ctx).Where("key = ?", counterKey(name)).First(&kv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get counter: %w", err)
	}

	value, err := strconv.ParseUint(kv.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse counter: %w", err)
	}

	return value, nil
}

// AllocateID returns the current value of the named counter and increments it
func (s *pgStore) AllocateID(ctx context.Context, name string) (uint64, error) {
	var id uint64
	err := s.transaction(ctx, func(tx *pgStore) error {
		db := tx.db.WithContext(ctx)
		key := counterKey(name)

		// Seed the counter so the row lock below always has a row to hold
		err := db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&schema.KeyValueStore{Key: key, Value: "0"}).Error
		if err != nil {
			return fmt.Errorf("failed to seed counter: %w", err)
		}

		var kv schema.KeyValueStore
		err = db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("key = ?", key).First(&kv).Error
		if err != nil {
			return fmt.Errorf("failed to lock counter: %w", err)
		}

		current, err := strconv.ParseUint(kv.Value, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to parse counter: %w", err)
		}
		if current == math.MaxUint64 {
			return fmt.Errorf("%w: counter %s exhausted", domain.ErrOverflow, name)
		}

		err = db.Model(&schema.KeyValueStore{}).
			Where("key = ?", key).
			Update("value", strconv.FormatUint(current+1, 10)).Error
		if err != nil {
			return fmt.Errorf("failed to increment counter: %w", err)
		}

		id = current
		return nil
	})
	if err != nil {
		return 0, err
	}

	return id, nil
}

// GetKeyValue retrieves a singleton value, empty when unset
func (s *pgStore) GetKeyValue(ctx context.Context, key string) (string, error) {
	var kv schema.KeyValueStore
	err := s.forUpdate(s.db.WithContext(ctx)).Where("key = ?", key).First(&kv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get key value: %w", err)
	}

	return kv.Value, nil
}

// SetKeyValue stores a singleton value
func (s *pgStore) SetKeyValue(ctx context.Context, key, value string) error {
	kv := schema.KeyValueStore{
		Key:   key,
		Value: value,
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&kv).Error
	if err != nil {
		return fmt.Errorf("failed to set key value: %w", err)
	}

	return nil
}

// CreateKeyValue stores a singleton value only when the key is unset
func (s *pgStore) CreateKeyValue(ctx context.Context, key, value string) (bool, error) {
	kv := schema.KeyValueStore{
		Key:   key,
		Value: value,
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).
		Create(&kv)
	if result.Error != nil {
		return false, fmt.Errorf("failed to create key value: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// CreateCampaign inserts a new campaign
func (s *pgStore) CreateCampaign(ctx context.Context, campaign *schema.Campaign) error {
	if err := s.db.WithContext(ctx).Create(campaign).Error; err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// GetCampaign retrieves a campaign by ID
func (s *pgStore) GetCampaign(ctx context.Context, id uint64) (*schema.Campaign, error) {
	var campaign schema.Campaign
	err := s.forUpdate(s.db.WithContext(ctx)).Where("id = ?", id).First(&campaign).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return &campaign, nil
}

// ListCampaigns retrieves all campaigns in ascending ID order
func (s *pgStore) ListCampaigns(ctx context.Context) ([]*schema.Campaign, error) {
	var campaigns []*schema.Campaign
	err := s.db.WithContext(ctx).Order("id ASC").Find(&campaigns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

// UpdateCampaignAmountCollected sets the collected total of a campaign
func (s *pgStore) UpdateCampaignAmountCollected(ctx context.Context, id uint64, amountCollected string, updatedAt time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&schema.Campaign{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"amount_collected": amountCollected,
			"updated_at":       updatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update campaign amount collected: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: campaign %d", domain.ErrNotFound, id)
	}
	return nil
}

// GetDonation retrieves the cumulative donation of a donor to a campaign
func (s *pgStore) GetDonation(ctx context.Context, campaignID uint64, donor string) (*schema.Donation, error) {
	var donation schema.Donation
	err := s.forUpdate(s.db.WithContext(ctx)).
		Where("campaign_id = ? AND donor = ?", campaignID, donor).
		First(&donation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get donation: %w", err)
	}
	return &donation, nil
}

// UpsertDonation stores the cumulative donation of a donor to a campaign
func (s *pgStore) UpsertDonation(ctx context.Context, donation *schema.Donation) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "donor"}},
			DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
		}).
		Create(donation).Error
	if err != nil {
		return fmt.Errorf("failed to upsert donation: %w", err)
	}
	return nil
}

// ListDonations retrieves all donations to a campaign ordered by donor
func (s *pgStore) ListDonations(ctx context.Context, campaignID uint64) ([]*schema.Donation, error) {
	var donations []*schema.Donation
	err := s.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order(`donor COLLATE "C" ASC`).
		Find(&donations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list donations: %w", err)
	}
	return donations, nil
}

// CreateNFT inserts a newly minted token
func (s *pgStore) CreateNFT(ctx context.Context, nft *schema.NFT) error {
	if err := s.db.WithContext(ctx).Create(nft).Error; err != nil {
		return fmt.Errorf("failed to create nft: %w", err)
	}
	return nil
}

// GetNFT retrieves a token by ID
func (s *pgStore) GetNFT(ctx context.Context, id uint64) (*schema.NFT, error) {
	var nft schema.NFT
	err := s.forUpdate(s.db.WithContext(ctx)).Where("id = ?", id).First(&nft).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get nft: %w", err)
	}
	return &nft, nil
}

// ListNFTs retrieves all tokens in ascending ID order
func (s *pgStore) ListNFTs(ctx context.Context) ([]*schema.NFT, error) {
	var nfts []*schema.NFT
	err := s.db.WithContext(ctx).Order("id ASC").Find(&nfts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list nfts: %w", err)
	}
	return nfts, nil
}

// UpdateNFTListing sets the sale state of a token
func (s *pgStore) UpdateNFTListing(ctx context.Context, id uint64, forSale bool, price *string, updatedAt time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&schema.NFT{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"for_sale":   forSale,
			"price":      price,
			"updated_at": updatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update nft listing: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: nft %d", domain.ErrNotFound, id)
	}
	return nil
}

// GrantAccess records that an account has access to a token
func (s *pgStore) GrantAccess(ctx context.Context, grant *schema.AccessGrant) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(grant).Error
	if err != nil {
		return fmt.Errorf("failed to grant access: %w", err)
	}
	return nil
}

// HasAccess checks whether an account has access to a token
func (s *pgStore) HasAccess(ctx context.Context, tokenID uint64, account string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&schema.AccessGrant{}).
		Where("token_id = ? AND account = ?", tokenID, account).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check access: %w", err)
	}
	return count > 0, nil
}

// ListAccessGrants retrieves all grants of a token ordered by account
func (s *pgStore) ListAccessGrants(ctx context.Context, tokenID uint64) ([]*schema.AccessGrant, error) {
	var grants []*schema.AccessGrant
	err := s.db.WithContext(ctx).
		Where("token_id = ?", tokenID).
		Order(`account COLLATE "C" ASC`).
		Find(&grants).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list access grants: %w", err)
	}
	return grants, nil
}

// CreateTransfers inserts pending transfer requests
func (s *pgStore) CreateTransfers(ctx context.Context, transfers []*schema.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(transfers).Error; err != nil {
		return fmt.Errorf("failed to create transfers: %w", err)
	}
	return nil
}

// GetTransfer retrieves a transfer request by ID
func (s *pgStore) GetTransfer(ctx context.Context, id string) (*schema.Transfer, error) {
	var transfer schema.Transfer
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&transfer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}
	return &transfer, nil
}

// ListTransfersByReference retrieves the transfer requests caused by a ledger record, oldest first
func (s *pgStore) ListTransfersByReference(ctx context.Context, reference string) ([]*schema.Transfer, error) {
	var transfers []*schema.Transfer
	err := s.db.WithContext(ctx).
		Where("reference = ?", reference).
		Order("id ASC").
		Find(&transfers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	return transfers, nil
}

// GetPendingTransfers retrieves up to limit pending transfer requests, oldest first
func (s *pgStore) GetPendingTransfers(ctx context.Context, limit int) ([]*schema.Transfer, error) {
	var transfers []*schema.Transfer
	err := s.db.WithContext(ctx).
		Where("status = ?", schema.TransferStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&transfers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get pending transfers: %w", err)
	}
	return transfers, nil
}

// UpdateTransferStatus records the outcome of a publish attempt
func (s *pgStore) UpdateTransferStatus(ctx context.Context, input UpdateTransferStatusInput) error {
	result := s.db.WithContext(ctx).
		Model(&schema.Transfer{}).
		Where("id = ?", input.ID).
		Updates(map[string]interface{}{
			"status":     input.Status,
			"attempts":   input.Attempts,
			"last_error": input.LastError,
			"sent_at":    input.SentAt,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update transfer status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: transfer %s", domain.ErrNotFound, input.ID)
	}
	return nil
}

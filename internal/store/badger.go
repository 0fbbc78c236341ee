package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/feral-file/ff-ledger/internal/domain"
	"github.com/feral-file/ff-ledger/internal/logger"
	"github.com/feral-file/ff-ledger/internal/store/schema"
)

const (
	prefixKeyValue        = "LEDGER:KV:"
	prefixCampaign        = "LEDGER:CAMPAIGN:"
	prefixDonation        = "LEDGER:DONATION:"
	prefixNFT             = "LEDGER:NFT:"
	prefixAccessGrant     = "LEDGER:ACCESS:"
	prefixTransferPayload = "LEDGER:TRANSFER:PAYLOAD:"
	prefixTransferRef     = "LEDGER:TRANSFER:REFERENCE:"
	prefixTransferPending = "LEDGER:TRANSFER:PENDING:"

	maxConflictRetries = 8
	gcInterval         = 5 * time.Minute
)

var _ Store = (*BadgerStore)(nil)

// BadgerStore is an embedded Store backed by badger.
// Records are msgpack encoded schema models; numeric IDs are big-endian so prefix scans return ascending order.
type BadgerStore struct {
	db  *badger.DB
	txn *badger.Txn
	// writeMu serializes read-write transactions
	writeMu *sync.Mutex
}

// OpenBadgerStore opens the store at path. An empty path keeps everything in memory.
func OpenBadgerStore(ctx context.Context, path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{logger.Default().Sugar()})
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	bs := &BadgerStore{db: db, writeMu: &sync.Mutex{}}
	if path != "" {
		go bs.collectGarbage(ctx)
	}

	return bs, nil
}

// Close closes the underlying database
func (bs *BadgerStore) Close() error {
	return bs.db.Close()
}

func (bs *BadgerStore) collectGarbage(ctx context.Context) {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lsm, vlog := bs.db.Size()
			logger.Debug("Badger size", zap.Int64("lsm", lsm), zap.Int64("vlog", vlog))
			if lsm > 1024*1024*8 || vlog > 1024*1024*32 {
				err := bs.db.RunValueLogGC(0.5)
				if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
					logger.Warn("Badger value log GC failed", zap.Error(err))
				}
			}
		}
	}
}

// Transaction runs fn inside a read-write badger transaction.
// Read-write transactions run one at a time; write conflicts with concurrent readers are retried.
func (bs *BadgerStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return bs.update(ctx, func(tx *BadgerStore) error {
		return fn(tx)
	})
}

func (bs *BadgerStore) update(ctx context.Context, fn func(tx *BadgerStore) error) error {
	if bs.txn != nil {
		return fn(bs)
	}

	bs.writeMu.Lock()
	defer bs.writeMu.Unlock()

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := bs.db.Update(func(txn *badger.Txn) error {
			return fn(&BadgerStore{db: bs.db, txn: txn, writeMu: bs.writeMu})
		})
		if errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries {
			continue
		}
		return err
	}
}

func (bs *BadgerStore) view(fn func(txn *badger.Txn) error) error {
	if bs.txn != nil {
		return fn(bs.txn)
	}
	return bs.db.View(fn)
}

func uint64Bytes(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func idKey(prefix string, id uint64) []byte {
	return append([]byte(prefix), uint64Bytes(id)...)
}

func compositeKey(prefix string, id uint64, suffix string) []byte {
	return append(idKey(prefix, id), suffix...)
}

func transferRefKey(reference, id string) []byte {
	return []byte(prefixTransferRef + reference + "\x00" + id)
}

// readRecord decodes the record at key into v and reports whether it exists
func readRecord(txn *badger.Txn, key []byte, v interface{}) (bool, error) {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return false, nil
	} else if err != nil {
		return false, err
	}

	val, err := item.ValueCopy(nil)
	if err != nil {
		return false, err
	}
	if err := msgpack.Unmarshal(val, v); err != nil {
		return false, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return true, nil
}

func writeRecord(txn *badger.Txn, key []byte, v interface{}) error {
	val, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, val)
}

// scanKeys collects the key suffixes under prefix in ascending order, stopping after limit when limit > 0
func scanKeys(txn *badger.Txn, prefix []byte, limit int) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var suffixes [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		key := it.Item().KeyCopy(nil)
		suffixes = append(suffixes, key[len(prefix):])
		if limit > 0 && len(suffixes) >= limit {
			break
		}
	}
	return suffixes
}

// scanRecords decodes every record under prefix in ascending key order
func scanRecords[T any](txn *badger.Txn, prefix []byte) ([]*T, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var records []*T
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		var record T
		if err := msgpack.Unmarshal(val, &record); err != nil {
			return nil, fmt.Errorf("failed to decode %q: %w", it.Item().Key(), err)
		}
		records = append(records, &record)
	}
	return records, nil
}

func readKeyValue(txn *badger.Txn, key string) (string, error) {
	var kv schema.KeyValueStore
	found, err := readRecord(txn, []byte(prefixKeyValue+key), &kv)
	if err != nil || !found {
		return "", err
	}
	return kv.Value, nil
}

func writeKeyValue(txn *badger.Txn, key, value string) error {
	now := time.Now().UTC()
	kv := schema.KeyValueStore{Key: key, Value: value, CreatedAt: now, UpdatedAt: now}

	var existing schema.KeyValueStore
	found, err := readRecord(txn, []byte(prefixKeyValue+key), &existing)
	if err != nil {
		return err
	}
	if found {
		kv.CreatedAt = existing.CreatedAt
	}
	return writeRecord(txn, []byte(prefixKeyValue+key), &kv)
}

// GetCounter returns the next value the named counter would allocate
func (bs *BadgerStore) GetCounter(ctx context.Context, name string) (uint64, error) {
	var value uint64
	err := bs.view(func(txn *badger.Txn) error {
		raw, err := readKeyValue(txn, counterKey(name))
		if err != nil || raw == "" {
			return err
		}
		value, err = strconv.ParseUint(raw, 10, 64)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get counter: %w", err)
	}
	return value, nil
}

// AllocateID returns the current value of the named counter and increments it
func (bs *BadgerStore) AllocateID(ctx context.Context, name string) (uint64, error) {
	var id uint64
	err := bs.update(ctx, func(tx *BadgerStore) error {
		raw, err := readKeyValue(tx.txn, counterKey(name))
		if err != nil {
			return fmt.Errorf("failed to read counter: %w", err)
		}

		var current uint64
		if raw != "" {
			current, err = strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("failed to parse counter: %w", err)
			}
		}
		if current == math.MaxUint64 {
			return fmt.Errorf("%w: counter %s exhausted", domain.ErrOverflow, name)
		}

		if err := writeKeyValue(tx.txn, counterKey(name), strconv.FormatUint(current+1, 10)); err != nil {
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
func (bs *BadgerStore) GetKeyValue(ctx context.Context, key string) (string, error) {
	var value string
	err := bs.view(func(txn *badger.Txn) error {
		var err error
		value, err = readKeyValue(txn, key)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to get key value: %w", err)
	}
	return value, nil
}

// SetKeyValue stores a singleton value
func (bs *BadgerStore) SetKeyValue(ctx context.Context, key, value string) error {
	err := bs.update(ctx, func(tx *BadgerStore) error {
		return writeKeyValue(tx.txn, key, value)
	})
	if err != nil {
		return fmt.Errorf("failed to set key value: %w", err)
	}
	return nil
}

// CreateKeyValue stores a singleton value only when the key is unset
func (bs *BadgerStore) CreateKeyValue(ctx context.Context, key, value string) (bool, error) {
	var created bool
	err := bs.update(ctx, func(tx *BadgerStore) error {
		created = false

		var existing schema.KeyValueStore
		found, err := readRecord(tx.txn, []byte(prefixKeyValue+key), &existing)
		if err != nil {
			return err
		}
		if found {
			return nil
		}
		if err := writeKeyValue(tx.txn, key, value); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to create key value: %w", err)
	}
	return created, nil
}

// CreateCampaign inserts a new campaign
func (bs *BadgerStore) CreateCampaign(ctx context.Context, campaign *schema.Campaign) error {
	err := bs.update(ctx, func(tx *BadgerStore) error {
		return writeRecord(tx.txn, idKey(prefixCampaign, campaign.ID), campaign)
	})
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// GetCampaign retrieves a campaign by ID
func (bs *BadgerStore) GetCampaign(ctx context.Context, id uint64) (*schema.Campaign, error) {
	var campaign schema.Campaign
	var found bool
	err := bs.view(func(txn *badger.Txn) error {
		var err error
		found, err = readRecord(txn, idKey(prefixCampaign, id), &campaign)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &campaign, nil
}

// ListCampaigns retrieves all campaigns in ascending ID order
func (bs *BadgerStore) ListCampaigns(ctx context.Context) ([]*schema.Campaign, error) {
	var campaigns []*schema.Campaign
	err := bs.view(func(txn *badger.Txn) error {
		var err error
		campaigns, err = scanRecords[schema.Campaign](txn, []byte(prefixCampaign))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

// UpdateCampaignAmountCollected sets the collected total of a campaign
func (bs *BadgerStore) UpdateCampaignAmountCollected(ctx context.Context, id uint64, amountCollected string, updatedAt time.Time) error {
	err := bs.update(ctx, func(tx *BadgerStore) error {
		var campaign schema.Campaign
		found, err := readRecord(tx.txn, idKey(prefixCampaign, id), &campaign)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: campaign %d", domain.ErrNotFound, id)
		}
		campaign.AmountCollected = amountCollected
		campaign.UpdatedAt = updatedAt
		return writeRecord(tx.txn, idKey(prefixCampaign, id), &campaign)
	})
	if err != nil {
		return fmt.Errorf("failed to update campaign amount collected: %w", err)
	}
	return nil
}

// GetDonation retrieves the cumulative donation of a donor to a campaign
func (bs *BadgerStore) GetDonation(ctx context.Context, campaignID uint64, donor string) (*schema.Donation, error) {
	var donation schema.Donation
	var found bool
	err := bs.view(func(txn *badger.Txn) error {
		var err error
		found, err = readRecord(txn, compositeKey(prefixDonation, campaignID, donor), &donation)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get donation: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &donation, nil
}

// UpsertDonation stores the cumulative donation of a donor to a campaign
func (bs *BadgerStore) UpsertDonation(ctx context.Context, donation *schema.Donation) error {
	err := bs.update(ctx, func(tx *BadgerStore) error {
		key := compositeKey(prefixDonation, donation.CampaignID, donation.Donor)
		var existing schema.Donation
		found, err := readRecord(tx.txn, key, &existing)
		if err != nil {
			return err
		}
		record := *donation
		if found {
			record.CreatedAt = existing.CreatedAt
		}
		return writeRecord(tx.txn, key, &record)
	})
	if err != nil {
		return fmt.Errorf("failed to upsert donation: %w", err)
	}
	return nil
}

// ListDonations retrieves all donations to a campaign ordered by donor
func (bs *BadgerStore) ListDonations(ctx context.Context, campaignID uint64) ([]*schema.Donation, error) {
	var donations []*schema.Donation
	err := bs.view(func(txn *badger.Txn) error {
		var err error
		donations, err = scanRecords[schema.Donation](txn, idKey(prefixDonation, campaignID))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list donations: %w", err)
	}
	return donations, nil
}

// CreateNFT inserts a newly minted token
func (bs *BadgerStore) CreateNFT(ctx context.Context, nft *schema.NFT) error {
	err := bs.update(ctx, func(tx *BadgerStore) error {
		return writeRecord(tx.txn, idKey(prefixNFT, nft.ID), nft)
	})
	if err != nil {
		return fmt.Errorf("failed to create nft: %w", err)
	}
	return nil
}

// GetNFT retrieves a token by ID
func (bs *BadgerStore) GetNFT(ctx context.Context, id uint64) (*schema.NFT, error) {
	var nft schema.NFT
	var found bool
	err := bs.view(func(txn *badger.Txn) error {
		var err error
		found, err = readRecord(txn, idKey(prefixNFT, id), &nft)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get nft: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &nft, nil
}

// ListNFTs retrieves all tokens in ascending ID order
func (bs *BadgerStore) ListNFTs(ctx context.Context) ([]*schema.NFT, error) {
	var nfts []*schema.NFT
	err := bs.view(func(txn *badger.Txn) error {
		var err error
		nfts, err = scanRecords[schema.NFT](txn, []byte(prefixNFT))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list nfts: %w", err)
	}
	return nfts, nil
}

// UpdateNFTListing sets the sale state of a token
func (bs *BadgerStore) UpdateNFTListing(ctx context.Context, id uint64, forSale bool, price *string, updatedAt time.Time) error {
	err := bs.update(ctx, func(tx *BadgerStore) error {
		var nft schema.NFT
		found, err := readRecord(tx.txn, idKey(prefixNFT, id), &nft)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: nft %d", domain.ErrNotFound, id)
		}
		nft.ForSale = forSale
		nft.Price = price
		nft.UpdatedAt = updatedAt
		return writeRecord(tx.txn, idKey(prefixNFT, id), &nft)
	})
	if err != nil {
		return fmt.Errorf("failed to update nft listing: %w", err)
	}
	return nil
}

// GrantAccess records that an account has access to a token
func (bs *BadgerStore) GrantAccess(ctx context.Context, grant *schema.AccessGrant) error {
	err := bs.update(ctx, func(tx *BadgerStore) error {
		key := compositeKey(prefixAccessGrant, grant.TokenID, grant.Account)
		var existing schema.AccessGrant
		found, err := readRecord(tx.txn, key, &existing)
		if err != nil || found {
			return err
		}
		return writeRecord(tx.txn, key, grant)
	})
	if err != nil {
		return fmt.Errorf("failed to grant access: %w", err)
	}
	return nil
}

// HasAccess checks whether an account has access to a token
func (bs *BadgerStore) HasAccess(ctx context.Context, tokenID uint64, account string) (bool, error) {
	var found bool
	err := bs.view(func(txn *badger.Txn) error {
		_, err := txn.Get(compositeKey(prefixAccessGrant, tokenID, account))
		if err == badger.ErrKeyNotFound {
			return nil
		} else if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check access: %w", err)
	}
	return found, nil
}

// ListAccessGrants retrieves all grants of a token ordered by account
func (bs *BadgerStore) ListAccessGrants(ctx context.Context, tokenID uint64) ([]*schema.AccessGrant, error) {
	var grants []*schema.AccessGrant
	err := bs.view(func(txn *badger.Txn) error {
		var err error
		grants, err = scanRecords[schema.AccessGrant](txn, idKey(prefixAccessGrant, tokenID))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list access grants: %w", err)
	}
	return grants, nil
}

// CreateTransfers inserts pending transfer requests
func (bs *BadgerStore) CreateTransfers(ctx context.Context, transfers []*schema.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}

	err := bs.update(ctx, func(tx *BadgerStore) error {
		for _, t := range transfers {
			if err := writeRecord(tx.txn, []byte(prefixTransferPayload+t.ID), t); err != nil {
				return err
			}
			if err := tx.txn.Set(transferRefKey(t.Reference, t.ID), []byte{1}); err != nil {
				return err
			}
			if t.Status == schema.TransferStatusPending {
				if err := tx.txn.Set([]byte(prefixTransferPending+t.ID), []byte{1}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create transfers: %w", err)
	}
	return nil
}

func readTransfers(txn *badger.Txn, ids [][]byte) ([]*schema.Transfer, error) {
	transfers := make([]*schema.Transfer, 0, len(ids))
	for _, id := range ids {
		var t schema.Transfer
		found, err := readRecord(txn, []byte(prefixTransferPayload+string(id)), &t)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("transfer %s is indexed but missing", id)
		}
		transfers = append(transfers, &t)
	}
	return transfers, nil
}

// GetTransfer retrieves a transfer request by ID
func (bs *BadgerStore) GetTransfer(ctx context.Context, id string) (*schema.Transfer, error) {
	var transfer schema.Transfer
	var found bool
	err := bs.view(func(txn *badger.Txn) error {
		var err error
		found, err = readRecord(txn, []byte(prefixTransferPayload+id), &transfer)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &transfer, nil
}

// ListTransfersByReference retrieves the transfer requests caused by a ledger record, oldest first
func (bs *BadgerStore) ListTransfersByReference(ctx context.Context, reference string) ([]*schema.Transfer, error) {
	var transfers []*schema.Transfer
	err := bs.view(func(txn *badger.Txn) error {
		ids := scanKeys(txn, []byte(prefixTransferRef+reference+"\x00"), 0)
		var err error
		transfers, err = readTransfers(txn, ids)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	return transfers, nil
}

// GetPendingTransfers retrieves up to limit pending transfer requests, oldest first
func (bs *BadgerStore) GetPendingTransfers(ctx context.Context, limit int) ([]*schema.Transfer, error) {
	var transfers []*schema.Transfer
	err := bs.view(func(txn *badger.Txn) error {
		ids := scanKeys(txn, []byte(prefixTransferPending), limit)
		var err error
		transfers, err = readTransfers(txn, ids)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get pending transfers: %w", err)
	}
	return transfers, nil
}

// UpdateTransferStatus records the outcome of a publish attempt
func (bs *BadgerStore) UpdateTransferStatus(ctx context.Context, input UpdateTransferStatusInput) error {
	err := bs.update(ctx, func(tx *BadgerStore) error {
		key := []byte(prefixTransferPayload + input.ID)
		var t schema.Transfer
		found, err := readRecord(tx.txn, key, &t)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: transfer %s", domain.ErrNotFound, input.ID)
		}

		t.Status = input.Status
		t.Attempts = input.Attempts
		t.LastError = input.LastError
		t.SentAt = input.SentAt
		t.UpdatedAt = time.Now().UTC()
		if err := writeRecord(tx.txn, key, &t); err != nil {
			return err
		}

		pendingKey := []byte(prefixTransferPending + input.ID)
		if input.Status == schema.TransferStatusPending {
			return tx.txn.Set(pendingKey, []byte{1})
		}
		return tx.txn.Delete(pendingKey)
	})
	if err != nil {
		return fmt.Errorf("failed to update transfer status: %w", err)
	}
	return nil
}

// badgerLogger routes badger's internal logging through zap
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.Warnf(format, args...)
}

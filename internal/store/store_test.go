package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-ledger/internal/domain"
	"github.com/feral-file/ff-ledger/internal/store/schema"
)

// =============================================================================
// Test Data Builders
// =============================================================================

func testNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// buildTestCampaign creates a campaign record with the given ID
func buildTestCampaign(id uint64, creator string) *schema.Campaign {
	now := testNow()
	return &schema.Campaign{
		ID:              id,
		Creator:         creator,
		Image:           "ipfs://campaign-image",
		Title:           fmt.Sprintf("Campaign %d", id),
		Description:     "raising funds",
		Target:          "1000",
		Deadline:        "1893456000000000000",
		AmountCollected: "0",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// buildTestNFT creates an unlisted token record with the given ID
func buildTestNFT(id uint64, owner string) *schema.NFT {
	now := testNow()
	return &schema.NFT{
		ID:          id,
		Owner:       owner,
		Title:       fmt.Sprintf("Art%d", id),
		Description: "generative piece",
		Media:       "ipfs://media",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// buildTestTransfer creates a pending transfer request
func buildTestTransfer(kind domain.TransferKind, recipient, amount, reference string) *schema.Transfer {
	now := testNow()
	meta, _ := json.Marshal(schema.TransferMeta{Payment: amount})
	return &schema.Transfer{
		ID:        ulid.Make().String(),
		Kind:      string(kind),
		Payer:     "donor.near",
		Recipient: recipient,
		Amount:    amount,
		Reference: reference,
		Meta:      meta,
		Status:    schema.TransferStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func stringPtr(s string) *string {
	return &s
}

// =============================================================================
// Tests
// =============================================================================

func testCounters(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("unset counter starts at zero", func(t *testing.T) {
		value, err := store.GetCounter(ctx, "test_counter_unset")
		require.NoError(t, err)
		assert.Equal(t, uint64(0), value)
	})

	t.Run("allocate returns sequential IDs", func(t *testing.T) {
		for want := uint64(0); want < 3; want++ {
			id, err := store.AllocateID(ctx, "test_counter_seq")
			require.NoError(t, err)
			assert.Equal(t, want, id)
		}

		next, err := store.GetCounter(ctx, "test_counter_seq")
		require.NoError(t, err)
		assert.Equal(t, uint64(3), next)
	})

	t.Run("counters are independent", func(t *testing.T) {
		_, err := store.AllocateID(ctx, domain.COUNTER_CAMPAIGN)
		require.NoError(t, err)

		tokenID, err := store.AllocateID(ctx, domain.COUNTER_TOKEN)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), tokenID)
	})
}

func testKeyValueStore(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("missing key is empty", func(t *testing.T) {
		value, err := store.GetKeyValue(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, value)
	})

	t.Run("set then overwrite", func(t *testing.T) {
		require.NoError(t, store.SetKeyValue(ctx, domain.PLATFORM_WALLET_KEY, "platform.near"))
		value, err := store.GetKeyValue(ctx, domain.PLATFORM_WALLET_KEY)
		require.NoError(t, err)
		assert.Equal(t, "platform.near", value)

		require.NoError(t, store.SetKeyValue(ctx, domain.PLATFORM_WALLET_KEY, "treasury.near"))
		value, err = store.GetKeyValue(ctx, domain.PLATFORM_WALLET_KEY)
		require.NoError(t, err)
		assert.Equal(t, "treasury.near", value)
	})

	t.Run("create only when unset", func(t *testing.T) {
		created, err := store.CreateKeyValue(ctx, "genesis_wallet", "first.near")
		require.NoError(t, err)
		assert.True(t, created)

		created, err = store.CreateKeyValue(ctx, "genesis_wallet", "second.near")
		require.NoError(t, err)
		assert.False(t, created)

		value, err := store.GetKeyValue(ctx, "genesis_wallet")
		require.NoError(t, err)
		assert.Equal(t, "first.near", value)
	})
}

func testCampaigns(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		campaign := buildTestCampaign(100, "creator.near")
		require.NoError(t, store.CreateCampaign(ctx, campaign))

		got, err := store.GetCampaign(ctx, 100)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "creator.near", got.Creator)
		assert.Equal(t, "Campaign 100", got.Title)
		assert.Equal(t, "1000", got.Target)
		assert.Equal(t, "1893456000000000000", got.Deadline)
		assert.Equal(t, "0", got.AmountCollected)
	})

	t.Run("get non-existent campaign returns nil", func(t *testing.T) {
		got, err := store.GetCampaign(ctx, 999999)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("list in ascending ID order", func(t *testing.T) {
		for _, id := range []uint64{203, 201, 202} {
			require.NoError(t, store.CreateCampaign(ctx, buildTestCampaign(id, "creator.near")))
		}

		campaigns, err := store.ListCampaigns(ctx)
		require.NoError(t, err)

		var ids []uint64
		for _, c := range campaigns {
			if c.ID >= 201 && c.ID <= 203 {
				ids = append(ids, c.ID)
			}
		}
		assert.Equal(t, []uint64{201, 202, 203}, ids)
	})

	t.Run("update amount collected", func(t *testing.T) {
		require.NoError(t, store.CreateCampaign(ctx, buildTestCampaign(300, "creator.near")))

		updatedAt := testNow().Add(time.Minute)
		require.NoError(t, store.UpdateCampaignAmountCollected(ctx, 300, "340282366920938463463374607431768211455", updatedAt))

		got, err := store.GetCampaign(ctx, 300)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "340282366920938463463374607431768211455", got.AmountCollected)
		assert.True(t, updatedAt.Equal(got.UpdatedAt))
	})

	t.Run("update missing campaign", func(t *testing.T) {
		err := store.UpdateCampaignAmountCollected(ctx, 999998, "1", testNow())
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func testDonations(t *testing.T, store Store) {
	ctx := context.Background()

	require.NoError(t, store.CreateCampaign(ctx, buildTestCampaign(400, "creator.near")))
	require.NoError(t, store.CreateCampaign(ctx, buildTestCampaign(401, "creator.near")))

	t.Run("missing donation returns nil", func(t *testing.T) {
		got, err := store.GetDonation(ctx, 400, "nobody.near")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("upsert accumulates under one key", func(t *testing.T) {
		first := testNow()
		require.NoError(t, store.UpsertDonation(ctx, &schema.Donation{
			CampaignID: 400, Donor: "x.near", Amount: "500", CreatedAt: first, UpdatedAt: first,
		}))
		require.NoError(t, store.UpsertDonation(ctx, &schema.Donation{
			CampaignID: 400, Donor: "x.near", Amount: "800", CreatedAt: first.Add(time.Second), UpdatedAt: first.Add(time.Second),
		}))

		got, err := store.GetDonation(ctx, 400, "x.near")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "800", got.Amount)
		assert.True(t, first.Equal(got.CreatedAt), "created_at keeps the first donation time")
	})

	t.Run("list is scoped to campaign and ordered by donor", func(t *testing.T) {
		now := testNow()
		for _, donor := range []string{"carol.near", "alice.near", "bob.near"} {
			require.NoError(t, store.UpsertDonation(ctx, &schema.Donation{
				CampaignID: 401, Donor: donor, Amount: "1", CreatedAt: now, UpdatedAt: now,
			}))
		}

		donations, err := store.ListDonations(ctx, 401)
		require.NoError(t, err)
		require.Len(t, donations, 3)
		assert.Equal(t, "alice.near", donations[0].Donor)
		assert.Equal(t, "bob.near", donations[1].Donor)
		assert.Equal(t, "carol.near", donations[2].Donor)

		donations, err = store.ListDonations(ctx, 400)
		require.NoError(t, err)
		require.Len(t, donations, 1)
		assert.Equal(t, "x.near", donations[0].Donor)
	})
}

func testNFTs(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		require.NoError(t, store.CreateNFT(ctx, buildTestNFT(500, "artist.near")))

		got, err := store.GetNFT(ctx, 500)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "artist.near", got.Owner)
		assert.Equal(t, "Art500", got.Title)
		assert.False(t, got.ForSale)
		assert.Nil(t, got.Price)
	})

	t.Run("get non-existent nft returns nil", func(t *testing.T) {
		got, err := store.GetNFT(ctx, 999999)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("update listing", func(t *testing.T) {
		require.NoError(t, store.CreateNFT(ctx, buildTestNFT(501, "artist.near")))
		require.NoError(t, store.UpdateNFTListing(ctx, 501, true, stringPtr("50"), testNow()))

		got, err := store.GetNFT(ctx, 501)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.ForSale)
		require.NotNil(t, got.Price)
		assert.Equal(t, "50", *got.Price)
	})

	t.Run("update listing of missing nft", func(t *testing.T) {
		err := store.UpdateNFTListing(ctx, 999998, true, stringPtr("1"), testNow())
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("list in ascending ID order", func(t *testing.T) {
		for _, id := range []uint64{512, 510, 511} {
			require.NoError(t, store.CreateNFT(ctx, buildTestNFT(id, "artist.near")))
		}

		nfts, err := store.ListNFTs(ctx)
		require.NoError(t, err)

		var ids []uint64
		for _, n := range nfts {
			if n.ID >= 510 && n.ID <= 512 {
				ids = append(ids, n.ID)
			}
		}
		assert.Equal(t, []uint64{510, 511, 512}, ids)
	})
}

func testAccessGrants(t *testing.T, store Store) {
	ctx := context.Background()

	require.NoError(t, store.CreateNFT(ctx, buildTestNFT(600, "artist.near")))
	require.NoError(t, store.CreateNFT(ctx, buildTestNFT(601, "artist.near")))

	t.Run("absent grant is false", func(t *testing.T) {
		ok, err := store.HasAccess(ctx, 600, "buyer.near")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("grant is scoped to token and account", func(t *testing.T) {
		require.NoError(t, store.GrantAccess(ctx, &schema.AccessGrant{TokenID: 600, Account: "buyer.near", CreatedAt: testNow()}))

		ok, err := store.HasAccess(ctx, 600, "buyer.near")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.HasAccess(ctx, 601, "buyer.near")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = store.HasAccess(ctx, 600, "other.near")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("granting twice keeps one grant", func(t *testing.T) {
		require.NoError(t, store.GrantAccess(ctx, &schema.AccessGrant{TokenID: 601, Account: "b.near", CreatedAt: testNow()}))
		require.NoError(t, store.GrantAccess(ctx, &schema.AccessGrant{TokenID: 601, Account: "b.near", CreatedAt: testNow()}))
		require.NoError(t, store.GrantAccess(ctx, &schema.AccessGrant{TokenID: 601, Account: "a.near", CreatedAt: testNow()}))

		grants, err := store.ListAccessGrants(ctx, 601)
		require.NoError(t, err)
		require.Len(t, grants, 2)
		assert.Equal(t, "a.near", grants[0].Account)
		assert.Equal(t, "b.near", grants[1].Account)
	})
}

func testTransfers(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("create, get and list by reference", func(t *testing.T) {
		creatorShare := buildTestTransfer(domain.TransferKindCreatorShare, "creator.near", "450", "campaign:700")
		platformShare := buildTestTransfer(domain.TransferKindPlatformShare, "platform.near", "50", "campaign:700")
		other := buildTestTransfer(domain.TransferKindSaleProceeds, "artist.near", "50", "nft:700")
		require.NoError(t, store.CreateTransfers(ctx, []*schema.Transfer{creatorShare, platformShare, other}))

		got, err := store.GetTransfer(ctx, creatorShare.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "450", got.Amount)
		assert.Equal(t, string(domain.TransferKindCreatorShare), got.Kind)
		assert.Equal(t, schema.TransferStatusPending, got.Status)

		var meta schema.TransferMeta
		require.NoError(t, json.Unmarshal([]byte(got.Meta), &meta))
		assert.Equal(t, "450", meta.Payment)

		transfers, err := store.ListTransfersByReference(ctx, "campaign:700")
		require.NoError(t, err)
		require.Len(t, transfers, 2)
		assert.Equal(t, creatorShare.ID, transfers[0].ID)
		assert.Equal(t, platformShare.ID, transfers[1].ID)
	})

	t.Run("reference lookup does not match prefixes", func(t *testing.T) {
		require.NoError(t, store.CreateTransfers(ctx, []*schema.Transfer{
			buildTestTransfer(domain.TransferKindCreatorShare, "creator.near", "1", "campaign:7100"),
		}))

		transfers, err := store.ListTransfersByReference(ctx, "campaign:710")
		require.NoError(t, err)
		assert.Empty(t, transfers)
	})

	t.Run("get non-existent transfer returns nil", func(t *testing.T) {
		got, err := store.GetTransfer(ctx, ulid.Make().String())
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		require.NoError(t, store.CreateTransfers(ctx, nil))
	})

	t.Run("status updates move transfers out of the pending queue", func(t *testing.T) {
		pending, err := store.GetPendingTransfers(ctx, 1000)
		require.NoError(t, err)
		before := len(pending)
		require.NotZero(t, before)

		sentAt := testNow()
		require.NoError(t, store.UpdateTransferStatus(ctx, UpdateTransferStatusInput{
			ID:       pending[0].ID,
			Status:   schema.TransferStatusSent,
			Attempts: 1,
			SentAt:   &sentAt,
		}))

		lastErr := "nats: timeout"
		require.NoError(t, store.UpdateTransferStatus(ctx, UpdateTransferStatusInput{
			ID:        pending[1].ID,
			Status:    schema.TransferStatusPending,
			Attempts:  1,
			LastError: &lastErr,
		}))

		after, err := store.GetPendingTransfers(ctx, 1000)
		require.NoError(t, err)
		assert.Len(t, after, before-1)

		sent, err := store.GetTransfer(ctx, pending[0].ID)
		require.NoError(t, err)
		assert.Equal(t, schema.TransferStatusSent, sent.Status)
		assert.Equal(t, 1, sent.Attempts)
		require.NotNil(t, sent.SentAt)

		retried, err := store.GetTransfer(ctx, pending[1].ID)
		require.NoError(t, err)
		assert.Equal(t, schema.TransferStatusPending, retried.Status)
		require.NotNil(t, retried.LastError)
		assert.Equal(t, "nats: timeout", *retried.LastError)
	})

	t.Run("pending transfers honour limit and age order", func(t *testing.T) {
		pending, err := store.GetPendingTransfers(ctx, 2)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Less(t, pending[0].ID, pending[1].ID)
	})

	t.Run("update missing transfer", func(t *testing.T) {
		err := store.UpdateTransferStatus(ctx, UpdateTransferStatusInput{ID: ulid.Make().String(), Status: schema.TransferStatusSent})
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func testTransaction(t *testing.T, store Store) {
	ctx := context.Background()
	errAbort := errors.New("abort")

	t.Run("rollback discards every write", func(t *testing.T) {
		before, err := store.GetCounter(ctx, domain.COUNTER_CAMPAIGN)
		require.NoError(t, err)

		err = store.Transaction(ctx, func(tx Store) error {
			id, err := tx.AllocateID(ctx, domain.COUNTER_CAMPAIGN)
			if err != nil {
				return err
			}
			if err := tx.CreateCampaign(ctx, buildTestCampaign(id+800, "creator.near")); err != nil {
				return err
			}
			return errAbort
		})
		require.ErrorIs(t, err, errAbort)

		after, err := store.GetCounter(ctx, domain.COUNTER_CAMPAIGN)
		require.NoError(t, err)
		assert.Equal(t, before, after)

		got, err := store.GetCampaign(ctx, before+800)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("commit applies writes and reads see them inside", func(t *testing.T) {
		err := store.Transaction(ctx, func(tx Store) error {
			if err := tx.CreateNFT(ctx, buildTestNFT(900, "artist.near")); err != nil {
				return err
			}
			nft, err := tx.GetNFT(ctx, 900)
			if err != nil {
				return err
			}
			if nft == nil {
				return errors.New("write not visible inside transaction")
			}
			return tx.GrantAccess(ctx, &schema.AccessGrant{TokenID: 900, Account: "buyer.near", CreatedAt: testNow()})
		})
		require.NoError(t, err)

		ok, err := store.HasAccess(ctx, 900, "buyer.near")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("nested transaction joins the outer one", func(t *testing.T) {
		err := store.Transaction(ctx, func(tx Store) error {
			return tx.Transaction(ctx, func(inner Store) error {
				if err := inner.SetKeyValue(ctx, "nested", "value"); err != nil {
					return err
				}
				return errAbort
			})
		})
		require.ErrorIs(t, err, errAbort)

		value, err := store.GetKeyValue(ctx, "nested")
		require.NoError(t, err)
		assert.Empty(t, value)
	})
}

// RunStoreTests runs the shared store suite against one implementation
func RunStoreTests(t *testing.T, initDB func(t *testing.T) Store, cleanupDB func(t *testing.T)) {
	tests := []struct {
		name string
		fn   func(*testing.T, Store)
	}{
		{"Counters", testCounters},
		{"KeyValueStore", testKeyValueStore},
		{"Campaigns", testCampaigns},
		{"Donations", testDonations},
		{"NFTs", testNFTs},
		{"AccessGrants", testAccessGrants},
		{"Transfers", testTransfers},
		{"Transaction", testTransaction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := initDB(t)
			defer cleanupDB(t)
			tt.fn(t, store)
		})
	}
}

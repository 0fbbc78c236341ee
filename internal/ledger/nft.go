package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/feral-file/ff-ledger/internal/domain"
	"github.com/feral-file/ff-ledger/internal/logger"
	"github.com/feral-file/ff-ledger/internal/store"
	"github.com/feral-file/ff-ledger/internal/store/schema"
)

// MintNFTInput is the immutable token metadata supplied by the minter
type MintNFTInput struct {
	Title       string
	Description string
	Media       string
}

// PurchaseReceipt describes an accepted purchase
type PurchaseReceipt struct {
	TokenID domain.TokenID
	Buyer   domain.AccountID
	Seller  domain.AccountID
	// Amount is the full attached payment, all of which goes to the seller
	Amount     domain.Amount
	TransferID string
}

// MintNFT creates a token owned by the caller
func (l *ledger) MintNFT(ctx context.Context, call domain.Call, input MintNFTInput) (domain.TokenID, error) {
	if err := requireCaller(call); err != nil {
		return 0, err
	}

	var tokenID domain.TokenID
	err := l.store.Transaction(ctx, func(tx store.Store) error {
		id, err := tx.AllocateID(ctx, domain.COUNTER_TOKEN)
		if err != nil {
			return err
		}

		now := l.clock.Now().UTC()
		err = tx.CreateNFT(ctx, &schema.NFT{
			ID:          id,
			Owner:       call.Caller.String(),
			Title:       input.Title,
			Description: input.Description,
			Media:       input.Media,
			ForSale:     false,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return err
		}

		tokenID = domain.TokenID(id)
		return nil
	})
	if err != nil {
		return 0, err
	}

	logger.InfoCtx(ctx, "NFT minted",
		zap.Uint64("token_id", uint64(tokenID)),
		zap.String("caller", call.Caller.String()))

	return tokenID, nil
}

// ListNFTForSale puts a token owned by the caller up for sale
func (l *ledger) ListNFTForSale(ctx context.Context, call domain.Call, tokenID domain.TokenID, price domain.Amount) error {
	if err := requireCaller(call); err != nil {
		return err
	}

	err := l.store.Transaction(ctx, func(tx store.Store) error {
		nft, err := tx.GetNFT(ctx, uint64(tokenID))
		if err != nil {
			return err
		}
		if nft == nil {
			return fmt.Errorf("%w: nft %d", domain.ErrNotFound, tokenID)
		}
		if nft.Owner != call.Caller.String() {
			return fmt.Errorf("%w: only the owner can list nft %d", domain.ErrUnauthorized, tokenID)
		}

		p := price.String()
		return tx.UpdateNFTListing(ctx, uint64(tokenID), true, &p, l.clock.Now().UTC())
	})
	if err != nil {
		logger.DebugCtx(ctx, "NFT listing rejected",
			zap.Uint64("token_id", uint64(tokenID)),
			zap.String("caller", call.Caller.String()),
			zap.Error(err))
		return err
	}

	logger.InfoCtx(ctx, "NFT listed for sale",
		zap.Uint64("token_id", uint64(tokenID)),
		zap.String("caller", call.Caller.String()),
		zap.String("amount", price.String()))

	return nil
}

// BuyNFT pays the full attached payment to the token owner and grants the caller access.
// The token keeps its owner and listing; a buyer may purchase again and pays again.
func (l *ledger) BuyNFT(ctx context.Context, call domain.Call, tokenID domain.TokenID) (*PurchaseReceipt, error) {
	if err := requireCaller(call); err != nil {
		return nil, err
	}

	var receipt *PurchaseReceipt
	err := l.store.Transaction(ctx, func(tx store.Store) error {
		receipt = nil

		nft, err := tx.GetNFT(ctx, uint64(tokenID))
		if err != nil {
			return err
		}
		if nft == nil {
			return fmt.Errorf("%w: nft %d", domain.ErrNotFound, tokenID)
		}
		if !nft.ForSale {
			return fmt.Errorf("%w: nft %d", domain.ErrNotForSale, tokenID)
		}
		if nft.Price == nil {
			return fmt.Errorf("%w: nft %d", domain.ErrPriceMissing, tokenID)
		}
		price, err := domain.ParseAmount(*nft.Price)
		if err != nil {
			return fmt.Errorf("failed to parse nft price: %w", err)
		}
		if call.Payment.LessThan(price) {
			return fmt.Errorf("%w: attached %s, price %s", domain.ErrInsufficientPayment, call.Payment, price)
		}
		if nft.Owner == call.Caller.String() {
			return fmt.Errorf("%w: nft %d", domain.ErrSelfPurchase, tokenID)
		}

		now := l.clock.Now().UTC()
		receipt = &PurchaseReceipt{
			TokenID: tokenID,
			Buyer:   call.Caller,
			Seller:  domain.AccountID(nft.Owner),
			Amount:  call.Payment,
		}

		if !call.Payment.IsZero() {
			id := uint64(tokenID)
			t, err := l.newTransfer(domain.TransferKindSaleProceeds, call.Caller, receipt.Seller, call.Payment,
				domain.TokenReference(tokenID), schema.TransferMeta{TokenID: &id, Payment: call.Payment.String()}, now)
			if err != nil {
				return err
			}
			if err := tx.CreateTransfers(ctx, []*schema.Transfer{t}); err != nil {
				return err
			}
			receipt.TransferID = t.ID
		}

		return tx.GrantAccess(ctx, &schema.AccessGrant{
			TokenID:   uint64(tokenID),
			Account:   call.Caller.String(),
			CreatedAt: now,
		})
	})
	if err != nil {
		logger.DebugCtx(ctx, "NFT purchase rejected",
			zap.Uint64("token_id", uint64(tokenID)),
			zap.String("caller", call.Caller.String()),
			zap.Error(err))
		return nil, err
	}

	logger.InfoCtx(ctx, "NFT purchased",
		zap.Uint64("token_id", uint64(tokenID)),
		zap.String("caller", call.Caller.String()),
		zap.String("seller", receipt.Seller.String()),
		zap.String("amount", call.Payment.String()))

	return receipt, nil
}

// HasAccess reports whether an account purchased access to a token.
// Unknown tokens and malformed accounts have no access.
func (l *ledger) HasAccess(ctx context.Context, tokenID domain.TokenID, account domain.AccountID) (bool, error) {
	if !account.Valid() {
		return false, nil
	}
	return l.store.HasAccess(ctx, uint64(tokenID), account.String())
}

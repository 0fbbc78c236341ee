package ledger

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/feral-file/ff-ledger/internal/domain"
	"github.com/feral-file/ff-ledger/internal/logger"
	"github.com/feral-file/ff-ledger/internal/store"
	"github.com/feral-file/ff-ledger/internal/store/schema"
)

// CreateCampaignInput is the campaign content supplied by the creator
type CreateCampaignInput struct {
	Image       string
	Title       string
	Description string
	Target      domain.Amount
	Deadline    domain.Timestamp
}

// DonationReceipt describes an accepted donation
type DonationReceipt struct {
	CampaignID      domain.CampaignID
	Donor           domain.AccountID
	Amount          domain.Amount
	CreatorShare    domain.Amount
	PlatformShare   domain.Amount
	DonorTotal      domain.Amount
	AmountCollected domain.Amount
	// TransferIDs lists the requested transfers; zero-amount shares are not requested
	TransferIDs []string
}

// CreateCampaign creates a campaign owned by the caller
func (l *ledger) CreateCampaign(ctx context.Context, call domain.Call, input CreateCampaignInput) (domain.CampaignID, error) {
	if err := requireCaller(call); err != nil {
		return 0, err
	}
	if call.Payment.LessThan(l.config.ListingFee) {
		logger.DebugCtx(ctx, "Campaign creation rejected",
			zap.String("caller", call.Caller.String()),
			zap.String("attached_payment", call.Payment.String()))
		return 0, fmt.Errorf("%w: attached %s, required %s", domain.ErrInsufficientFee, call.Payment, l.config.ListingFee)
	}

	var campaignID domain.CampaignID
	err := l.store.Transaction(ctx, func(tx store.Store) error {
		id, err := tx.AllocateID(ctx, domain.COUNTER_CAMPAIGN)
		if err != nil {
			return err
		}

		now := l.clock.Now().UTC()
		err = tx.CreateCampaign(ctx, &schema.Campaign{
			ID:              id,
			Creator:         call.Caller.String(),
			Image:           input.Image,
			Title:           input.Title,
			Description:     input.Description,
			Target:          input.Target.String(),
			Deadline:        strconv.FormatUint(uint64(input.Deadline), 10),
			AmountCollected: "0",
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		if err != nil {
			return err
		}

		campaignID = domain.CampaignID(id)
		return nil
	})
	if err != nil {
		return 0, err
	}

	logger.InfoCtx(ctx, "Campaign created",
		zap.Uint64("campaign_id", uint64(campaignID)),
		zap.String("caller", call.Caller.String()),
		zap.String("amount", call.Payment.String()))

	return campaignID, nil
}

// Donate adds the attached payment to a campaign and requests the creator and platform transfers.
// The ledger records are authoritative; transfers are queued in the same transaction and delivered later.
func (l *ledger) Donate(ctx context.Context, call domain.Call, campaignID domain.CampaignID) (*DonationReceipt, error) {
	if err := requireCaller(call); err != nil {
		return nil, err
	}

	var receipt *DonationReceipt
	err := l.store.Transaction(ctx, func(tx store.Store) error {
		receipt = nil

		wallet, err := platformWallet(ctx, tx)
		if err != nil {
			return err
		}

		campaign, err := tx.GetCampaign(ctx, uint64(campaignID))
		if err != nil {
			return err
		}
		if campaign == nil {
			return fmt.Errorf("%w: campaign %d", domain.ErrNotFound, campaignID)
		}

		deadline, err := strconv.ParseUint(campaign.Deadline, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to parse campaign deadline: %w", err)
		}
		now := l.clock.Now().UTC()
		if domain.TimestampFromTime(now) > domain.Timestamp(deadline) {
			return fmt.Errorf("%w: campaign %d", domain.ErrCampaignEnded, campaignID)
		}

		priorTotal := domain.NewAmount(0)
		donation, err := tx.GetDonation(ctx, uint64(campaignID), call.Caller.String())
		if err != nil {
			return err
		}
		if donation != nil {
			priorTotal, err = domain.ParseAmount(donation.Amount)
			if err != nil {
				return fmt.Errorf("failed to parse donation: %w", err)
			}
		}
		donorTotal, err := priorTotal.CheckedAdd(call.Payment)
		if err != nil {
			return fmt.Errorf("donor total: %w", err)
		}

		collected, err := domain.ParseAmount(campaign.AmountCollected)
		if err != nil {
			return fmt.Errorf("failed to parse amount collected: %w", err)
		}
		newCollected, err := collected.CheckedAdd(call.Payment)
		if err != nil {
			return fmt.Errorf("amount collected: %w", err)
		}

		createdAt := now
		if donation != nil {
			createdAt = donation.CreatedAt
		}
		err = tx.UpsertDonation(ctx, &schema.Donation{
			CampaignID: uint64(campaignID),
			Donor:      call.Caller.String(),
			Amount:     donorTotal.String(),
			CreatedAt:  createdAt,
			UpdatedAt:  now,
		})
		if err != nil {
			return err
		}
		if err := tx.UpdateCampaignAmountCollected(ctx, uint64(campaignID), newCollected.String(), now); err != nil {
			return err
		}

		creatorShare, platformShare := domain.SplitDonation(call.Payment)
		id := uint64(campaignID)
		meta := schema.TransferMeta{CampaignID: &id, Payment: call.Payment.String()}
		reference := domain.CampaignReference(campaignID)

		var transfers []*schema.Transfer
		if !creatorShare.IsZero() {
			t, err := l.newTransfer(domain.TransferKindCreatorShare, call.Caller, domain.AccountID(campaign.Creator), creatorShare, reference, meta, now)
			if err != nil {
				return err
			}
			transfers = append(transfers, t)
		}
		if !platformShare.IsZero() {
			t, err := l.newTransfer(domain.TransferKindPlatformShare, call.Caller, wallet, platformShare, reference, meta, now)
			if err != nil {
				return err
			}
			transfers = append(transfers, t)
		}
		if err := tx.CreateTransfers(ctx, transfers); err != nil {
			return err
		}

		receipt = &DonationReceipt{
			CampaignID:      campaignID,
			Donor:           call.Caller,
			Amount:          call.Payment,
			CreatorShare:    creatorShare,
			PlatformShare:   platformShare,
			DonorTotal:      donorTotal,
			AmountCollected: newCollected,
		}
		for _, t := range transfers {
			receipt.TransferIDs = append(receipt.TransferIDs, t.ID)
		}
		return nil
	})
	if err != nil {
		logger.DebugCtx(ctx, "Donation rejected",
			zap.Uint64("campaign_id", uint64(campaignID)),
			zap.String("caller", call.Caller.String()),
			zap.Error(err))
		return nil, err
	}

	logger.InfoCtx(ctx, "Donation accepted",
		zap.Uint64("campaign_id", uint64(campaignID)),
		zap.String("caller", call.Caller.String()),
		zap.String("amount", call.Payment.String()),
		zap.String("creator_share", receipt.CreatorShare.String()),
		zap.String("platform_share", receipt.PlatformShare.String()))

	return receipt, nil
}

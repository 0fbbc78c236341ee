package dto

import (
	"fmt"

	"github.com/feral-file/ff-ledger/internal/domain"
	"github.com/feral-file/ff-ledger/internal/ledger"
)

// PaymentRequest carries the value attached to a mutating call as a decimal string
type PaymentRequest struct {
	AttachedPayment string `json:"attached_payment"`
}

// Payment parses the attached payment; an absent payment is zero
func (r PaymentRequest) Payment() (domain.Amount, error) {
	if r.AttachedPayment == "" {
		return domain.Amount{}, nil
	}
	return domain.ParseAmount(r.AttachedPayment)
}

// CreateCampaignRequest is the body of POST /api/v1/campaigns
type CreateCampaignRequest struct {
	PaymentRequest
	Image       string  `json:"image"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Target      string  `json:"target"`
	Deadline    *uint64 `json:"deadline"`
}

// ToInput validates the request and converts it into ledger input
func (r CreateCampaignRequest) ToInput() (ledger.CreateCampaignInput, error) {
	target, err := domain.ParseAmount(r.Target)
	if err != nil {
		return ledger.CreateCampaignInput{}, fmt.Errorf("target: %w", err)
	}
	if r.Deadline == nil {
		return ledger.CreateCampaignInput{}, fmt.Errorf("deadline is required")
	}

	return ledger.CreateCampaignInput{
		Image:       r.Image,
		Title:       r.Title,
		Description: r.Description,
		Target:      target,
		Deadline:    domain.Timestamp(*r.Deadline),
	}, nil
}

// DonateRequest is the body of POST /api/v1/campaigns/:id/donations
type DonateRequest struct {
	PaymentRequest
}

// SetPlatformWalletRequest is the body of PUT /api/v1/platform/wallet
type SetPlatformWalletRequest struct {
	Wallet string `json:"wallet"`
}

// MintNFTRequest is the body of POST /api/v1/nfts
type MintNFTRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Media       string `json:"media"`
}

// ToInput converts the request into ledger input
func (r MintNFTRequest) ToInput() ledger.MintNFTInput {
	return ledger.MintNFTInput{
		Title:       r.Title,
		Description: r.Description,
		Media:       r.Media,
	}
}

// ListNFTRequest is the body of PUT /api/v1/nfts/:id/listing
type ListNFTRequest struct {
	Price string `json:"price"`
}

// BuyNFTRequest is the body of POST /api/v1/nfts/:id/purchases
type BuyNFTRequest struct {
	PaymentRequest
}

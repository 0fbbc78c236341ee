package dto

import (
	"github.com/feral-file/ff-ledger/internal/domain"
	"github.com/feral-file/ff-ledger/internal/ledger"
)

// CreatedResponse returns the identifier of a newly created campaign or token
type CreatedResponse struct {
	ID uint64 `json:"id"`
}

// PlatformWalletResponse carries the platform wallet account
type PlatformWalletResponse struct {
	Wallet string `json:"wallet"`
}

// CampaignListResponse wraps get_campaigns
type CampaignListResponse struct {
	Campaigns []*ledger.CampaignView `json:"campaigns"`
}

// DonationListResponse wraps get_donations
type DonationListResponse struct {
	CampaignID uint64                 `json:"campaign_id"`
	Donations  []*ledger.DonationView `json:"donations"`
}

// NFTListResponse wraps get_all_nfts
type NFTListResponse struct {
	NFTs []*ledger.NFTView `json:"nfts"`
}

// TransferListResponse wraps the transfers caused by a ledger record
type TransferListResponse struct {
	Reference string                 `json:"reference"`
	Transfers []*ledger.TransferView `json:"transfers"`
}

// AccessResponse answers has_access
type AccessResponse struct {
	TokenID   uint64 `json:"token_id"`
	Account   string `json:"account"`
	HasAccess bool   `json:"has_access"`
}

// DonationResponse describes an accepted donation. Amounts are decimal strings.
type DonationResponse struct {
	CampaignID      uint64   `json:"campaign_id"`
	Donor           string   `json:"donor"`
	Amount          string   `json:"amount"`
	CreatorShare    string   `json:"creator_share"`
	PlatformShare   string   `json:"platform_share"`
	DonorTotal      string   `json:"donor_total"`
	AmountCollected string   `json:"amount_collected"`
	TransferIDs     []string `json:"transfer_ids"`
}

// PurchaseResponse describes an accepted purchase
type PurchaseResponse struct {
	TokenID    uint64 `json:"token_id"`
	Buyer      string `json:"buyer"`
	Seller     string `json:"seller"`
	Amount     string `json:"amount"`
	TransferID string `json:"transfer_id,omitempty"`
}

// NewDonationResponse maps a donation receipt
func NewDonationResponse(r *ledger.DonationReceipt) DonationResponse {
	transferIDs := r.TransferIDs
	if transferIDs == nil {
		transferIDs = []string{}
	}
	return DonationResponse{
		CampaignID:      uint64(r.CampaignID),
		Donor:           r.Donor.String(),
		Amount:          r.Amount.String(),
		CreatorShare:    r.CreatorShare.String(),
		PlatformShare:   r.PlatformShare.String(),
		DonorTotal:      r.DonorTotal.String(),
		AmountCollected: r.AmountCollected.String(),
		TransferIDs:     transferIDs,
	}
}

// NewPurchaseResponse maps a purchase receipt
func NewPurchaseResponse(r *ledger.PurchaseReceipt) PurchaseResponse {
	return PurchaseResponse{
		TokenID:    uint64(r.TokenID),
		Buyer:      r.Buyer.String(),
		Seller:     r.Seller.String(),
		Amount:     r.Amount.String(),
		TransferID: r.TransferID,
	}
}

// NewCampaignListResponse maps get_campaigns, rendering an empty list as []
func NewCampaignListResponse(campaigns []*ledger.CampaignView) CampaignListResponse {
	if campaigns == nil {
		campaigns = []*ledger.CampaignView{}
	}
	return CampaignListResponse{Campaigns: campaigns}
}

// NewDonationListResponse maps get_donations
func NewDonationListResponse(campaignID domain.CampaignID, donations []*ledger.DonationView) DonationListResponse {
	if donations == nil {
		donations = []*ledger.DonationView{}
	}
	return DonationListResponse{CampaignID: uint64(campaignID), Donations: donations}
}

// NewNFTListResponse maps get_all_nfts
func NewNFTListResponse(nfts []*ledger.NFTView) NFTListResponse {
	if nfts == nil {
		nfts = []*ledger.NFTView{}
	}
	return NFTListResponse{NFTs: nfts}
}

// NewTransferListResponse maps the transfers of a reference
func NewTransferListResponse(reference string, transfers []*ledger.TransferView) TransferListResponse {
	if transfers == nil {
		transfers = []*ledger.TransferView{}
	}
	return TransferListResponse{Reference: reference, Transfers: transfers}
}

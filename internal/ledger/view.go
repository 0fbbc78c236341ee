package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/feral-file/ff-ledger/internal/domain"
	"github.com/feral-file/ff-ledger/internal/store/schema"
)

// CampaignView is the read-only projection of a campaign. Amounts are decimal strings.
type CampaignView struct {
	ID              domain.CampaignID `json:"id"`
	Creator         string            `json:"creator"`
	Image           string            `json:"image"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Target          string            `json:"target"`
	Deadline        uint64            `json:"deadline"`
	AmountCollected string            `json:"amount_collected"`
}

// DonationView is a donor's cumulative donation to a campaign
type DonationView struct {
	Donor  string `json:"donor"`
	Amount string `json:"amount"`
}

// TokenMetadata is the immutable content of a token
type TokenMetadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Media       string `json:"media"`
}

// NFTView is the read-only projection of a token
type NFTView struct {
	ID       domain.TokenID `json:"id"`
	OwnerID  string         `json:"owner_id"`
	Metadata TokenMetadata  `json:"metadata"`
	ForSale  bool           `json:"for_sale"`
	Price    *string        `json:"price"`
}

// TransferView is the read-only projection of a transfer request
type TransferView struct {
	ID        string                `json:"id"`
	Kind      domain.TransferKind   `json:"kind"`
	Payer     string                `json:"payer"`
	Recipient string                `json:"recipient"`
	Amount    string                `json:"amount"`
	Reference string                `json:"reference"`
	Meta      json.RawMessage       `json:"meta,omitempty"`
	Status    schema.TransferStatus `json:"status"`
	Attempts  int                   `json:"attempts"`
	LastError *string               `json:"last_error,omitempty"`
	SentAt    *time.Time            `json:"sent_at,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

func campaignView(c *schema.Campaign) (*CampaignView, error) {
	deadline, err := strconv.ParseUint(c.Deadline, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse campaign deadline: %w", err)
	}
	return &CampaignView{
		ID:              domain.CampaignID(c.ID),
		Creator:         c.Creator,
		Image:           c.Image,
		Title:           c.Title,
		Description:     c.Description,
		Target:          c.Target,
		Deadline:        deadline,
		AmountCollected: c.AmountCollected,
	}, nil
}

func nftView(n *schema.NFT) *NFTView {
	return &NFTView{
		ID:      domain.TokenID(n.ID),
		OwnerID: n.Owner,
		Metadata: TokenMetadata{
			Title:       n.Title,
			Description: n.Description,
			Media:       n.Media,
		},
		ForSale: n.ForSale,
		Price:   n.Price,
	}
}

func transferView(t *schema.Transfer) *TransferView {
	view := &TransferView{
		ID:        t.ID,
		Kind:      domain.TransferKind(t.Kind),
		Payer:     t.Payer,
		Recipient: t.Recipient,
		Amount:    t.Amount,
		Reference: t.Reference,
		Status:    t.Status,
		Attempts:  t.Attempts,
		LastError: t.LastError,
		SentAt:    t.SentAt,
		CreatedAt: t.CreatedAt,
	}
	if len(t.Meta) > 0 {
		view.Meta = json.RawMessage(t.Meta)
	}
	return view
}

// GetCampaign returns a campaign view, nil when absent
func (l *ledger) GetCampaign(ctx context.Context, campaignID domain.CampaignID) (*CampaignView, error) {
	campaign, err := l.store.GetCampaign(ctx, uint64(campaignID))
	if err != nil || campaign == nil {
		return nil, err
	}
	return campaignView(campaign)
}

// GetCampaigns returns every campaign in ascending ID order
func (l *ledger) GetCampaigns(ctx context.Context) ([]*CampaignView, error) {
	campaigns, err := l.store.ListCampaigns(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]*CampaignView, 0, len(campaigns))
	for _, c := range campaigns {
		view, err := campaignView(c)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// GetDonations returns the cumulative donation of each donor to a campaign
func (l *ledger) GetDonations(ctx context.Context, campaignID domain.CampaignID) ([]*DonationView, error) {
	campaign, err := l.store.GetCampaign(ctx, uint64(campaignID))
	if err != nil {
		return nil, err
	}
	if campaign == nil {
		return nil, fmt.Errorf("%w: campaign %d", domain.ErrNotFound, campaignID)
	}

	donations, err := l.store.ListDonations(ctx, uint64(campaignID))
	if err != nil {
		return nil, err
	}

	views := make([]*DonationView, 0, len(donations))
	for _, d := range donations {
		views = append(views, &DonationView{Donor: d.Donor, Amount: d.Amount})
	}
	return views, nil
}

// GetNFT returns a token view, nil when absent
func (l *ledger) GetNFT(ctx context.Context, tokenID domain.TokenID) (*NFTView, error) {
	nft, err := l.store.GetNFT(ctx, uint64(tokenID))
	if err != nil || nft == nil {
		return nil, err
	}
	return nftView(nft), nil
}

// GetAllNFTs returns every token in ascending ID order
func (l *ledger) GetAllNFTs(ctx context.Context) ([]*NFTView, error) {
	nfts, err := l.store.ListNFTs(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]*NFTView, 0, len(nfts))
	for _, n := range nfts {
		views = append(views, nftView(n))
	}
	return views, nil
}

// GetTransfer returns a transfer request view, nil when absent
func (l *ledger) GetTransfer(ctx context.Context, id string) (*TransferView, error) {
	transfer, err := l.store.GetTransfer(ctx, id)
	if err != nil || transfer == nil {
		return nil, err
	}
	return transferView(transfer), nil
}

// ListTransfers returns the transfer requests caused by a ledger record, oldest first
func (l *ledger) ListTransfers(ctx context.Context, reference string) ([]*TransferView, error) {
	transfers, err := l.store.ListTransfersByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	views := make([]*TransferView, 0, len(transfers))
	for _, t := range transfers {
		views = append(views, transferView(t))
	}
	return views, nil
}

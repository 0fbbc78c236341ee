package rest

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/feral-file/ff-ledger/internal/api/middleware"
	"github.com/feral-file/ff-ledger/internal/api/rest/dto"
	"github.com/feral-file/ff-ledger/internal/domain"
	"github.com/feral-file/ff-ledger/internal/ledger"
)

// Handler defines the interface for REST API handlers
type Handler interface {
	// GetCampaigns lists every campaign
	// GET /api/v1/campaigns
	GetCampaigns(c *gin.Context)

	// GetCampaign retrieves a single campaign
	// GET /api/v1/campaigns/:id
	GetCampaign(c *gin.Context)

	// GetDonations lists the cumulative donation of each donor to a campaign
	// GET /api/v1/campaigns/:id/donations
	GetDonations(c *gin.Context)

	// CreateCampaign creates a campaign owned by the caller (requires authentication)
	// POST /api/v1/campaigns
	CreateCampaign(c *gin.Context)

	// Donate donates the attached payment to a campaign (requires authentication)
	// POST /api/v1/campaigns/:id/donations
	Donate(c *gin.Context)

	// GetPlatformWallet returns the platform wallet
	// GET /api/v1/platform/wallet
	GetPlatformWallet(c *gin.Context)

	// SetPlatformWallet replaces the platform wallet (requires authentication as the current platform wallet)
	// PUT /api/v1/platform/wallet
	SetPlatformWallet(c *gin.Context)

	// GetAllNFTs lists every token
	// GET /api/v1/nfts
	GetAllNFTs(c *gin.Context)

	// GetNFT retrieves a single token
	// GET /api/v1/nfts/:id
	GetNFT(c *gin.Context)

	// MintNFT creates a token owned by the caller (requires authentication)
	// POST /api/v1/nfts
	MintNFT(c *gin.Context)

	// ListNFTForSale lists a token owned by the caller for sale (requires authentication)
	// PUT /api/v1/nfts/:id/listing
	ListNFTForSale(c *gin.Context)

	// BuyNFT buys access to a listed token (requires authentication)
	// POST /api/v1/nfts/:id/purchases
	BuyNFT(c *gin.Context)

	// HasAccess reports whether an account purchased access to a token
	// GET /api/v1/nfts/:id/access/:account
	HasAccess(c *gin.Context)

	// GetTransfer retrieves a transfer request
	// GET /api/v1/transfers/:id
	GetTransfer(c *gin.Context)

	// ListTransfers lists the transfer requests caused by a ledger record
	// GET /api/v1/transfers?reference=<campaign:N|nft:N>
	ListTransfers(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	ledger ledger.Ledger
}

// NewHandler creates a new REST API handler on top of the ledger
func NewHandler(l ledger.Ledger) Handler {
	return &handler{
		ledger: l,
	}
}

// GetCampaigns lists every campaign
func (h *handler) GetCampaigns(c *gin.Context) {
	campaigns, err := h.ledger.GetCampaigns(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "Failed to get campaigns")
		return
	}

	c.JSON(http.StatusOK, dto.NewCampaignListResponse(campaigns))
}

// GetCampaign retrieves a single campaign
func (h *handler) GetCampaign(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	campaign, err := h.ledger.GetCampaign(c.Request.Context(), domain.CampaignID(id))
	if err != nil {
		respondInternalError(c, err, "Failed to get campaign", zap.Uint64("campaign_id", id))
		return
	}

	if campaign == nil {
		respondNotFound(c, "Campaign not found")
		return
	}

	c.JSON(http.StatusOK, campaign)
}

// GetDonations lists the cumulative donation of each donor to a campaign
func (h *handler) GetDonations(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	donations, err := h.ledger.GetDonations(c.Request.Context(), domain.CampaignID(id))
	if err != nil {
		respondLedgerError(c, err, "Failed to get donations", zap.Uint64("campaign_id", id))
		return
	}

	c.JSON(http.StatusOK, dto.NewDonationListResponse(domain.CampaignID(id), donations))
}

// CreateCampaign creates a campaign owned by the caller
func (h *handler) CreateCampaign(c *gin.Context) {
	var req dto.CreateCampaignRequest
	if !bindJSON(c, &req, false) {
		return
	}

	input, err := req.ToInput()
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	call, ok := callFromRequest(c, req.PaymentRequest)
	if !ok {
		return
	}

	id, err := h.ledger.CreateCampaign(c.Request.Context(), call, input)
	if err != nil {
		respondLedgerError(c, err, "Failed to create campaign")
		return
	}

	c.JSON(http.StatusCreated, dto.CreatedResponse{ID: uint64(id)})
}

// Donate donates the attached payment to a campaign
func (h *handler) Donate(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req dto.DonateRequest
	if !bindJSON(c, &req, true) {
		return
	}

	call, ok := callFromRequest(c, req.PaymentRequest)
	if !ok {
		return
	}

	receipt, err := h.ledger.Donate(c.Request.Context(), call, domain.CampaignID(id))
	if err != nil {
		respondLedgerError(c, err, "Failed to donate", zap.Uint64("campaign_id", id))
		return
	}

	c.JSON(http.StatusOK, dto.NewDonationResponse(receipt))
}

// GetPlatformWallet returns the platform wallet
func (h *handler) GetPlatformWallet(c *gin.Context) {
	wallet, err := h.ledger.GetPlatformWallet(c.Request.Context())
	if err != nil {
		respondLedgerError(c, err, "Failed to get platform wallet")
		return
	}

	c.JSON(http.StatusOK, dto.PlatformWalletResponse{Wallet: wallet.String()})
}

// SetPlatformWallet replaces the platform wallet
func (h *handler) SetPlatformWallet(c *gin.Context) {
	var req dto.SetPlatformWalletRequest
	if !bindJSON(c, &req, false) {
		return
	}

	call, ok := callFromRequest(c, dto.PaymentRequest{})
	if !ok {
		return
	}

	if err := h.ledger.SetPlatformWallet(c.Request.Context(), call, domain.AccountID(req.Wallet)); err != nil {
		respondLedgerError(c, err, "Failed to set platform wallet")
		return
	}

	c.JSON(http.StatusOK, dto.PlatformWalletResponse{Wallet: req.Wallet})
}

// GetAllNFTs lists every token
func (h *handler) GetAllNFTs(c *gin.Context) {
	nfts, err := h.ledger.GetAllNFTs(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "Failed to get NFTs")
		return
	}

	c.JSON(http.StatusOK, dto.NewNFTListResponse(nfts))
}

// GetNFT retrieves a single token
func (h *handler) GetNFT(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	nft, err := h.ledger.GetNFT(c.Request.Context(), domain.TokenID(id))
	if err != nil {
		respondInternalError(c, err, "Failed to get NFT", zap.Uint64("token_id", id))
		return
	}

	if nft == nil {
		respondNotFound(c, "NFT not found")
		return
	}

	c.JSON(http.StatusOK, nft)
}

// MintNFT creates a token owned by the caller
func (h *handler) MintNFT(c *gin.Context) {
	var req dto.MintNFTRequest
	if !bindJSON(c, &req, false) {
		return
	}

	call, ok := callFromRequest(c, dto.PaymentRequest{})
	if !ok {
		return
	}

	id, err := h.ledger.MintNFT(c.Request.Context(), call, req.ToInput())
	if err != nil {
		respondLedgerError(c, err, "Failed to mint NFT")
		return
	}

	c.JSON(http.StatusCreated, dto.CreatedResponse{ID: uint64(id)})
}

// ListNFTForSale lists a token owned by the caller for sale
func (h *handler) ListNFTForSale(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req dto.ListNFTRequest
	if !bindJSON(c, &req, false) {
		return
	}

	price, err := domain.ParseAmount(req.Price)
	if err != nil {
		respondValidationError(c, fmt.Sprintf("price: %s", err.Error()))
		return
	}

	call, ok := callFromRequest(c, dto.PaymentRequest{})
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := h.ledger.ListNFTForSale(ctx, call, domain.TokenID(id), price); err != nil {
		respondLedgerError(c, err, "Failed to list NFT", zap.Uint64("token_id", id))
		return
	}

	nft, err := h.ledger.GetNFT(ctx, domain.TokenID(id))
	if err != nil {
		respondInternalError(c, err, "Failed to get NFT", zap.Uint64("token_id", id))
		return
	}

	c.JSON(http.StatusOK, nft)
}

// BuyNFT buys access to a listed token
func (h *handler) BuyNFT(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req dto.BuyNFTRequest
	if !bindJSON(c, &req, true) {
		return
	}

	call, ok := callFromRequest(c, req.PaymentRequest)
	if !ok {
		return
	}

	receipt, err := h.ledger.BuyNFT(c.Request.Context(), call, domain.TokenID(id))
	if err != nil {
		respondLedgerError(c, err, "Failed to buy NFT", zap.Uint64("token_id", id))
		return
	}

	c.JSON(http.StatusOK, dto.NewPurchaseResponse(receipt))
}

// HasAccess reports whether an account purchased access to a token
func (h *handler) HasAccess(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	account := c.Param("account")

	hasAccess, err := h.ledger.HasAccess(c.Request.Context(), domain.TokenID(id), domain.AccountID(account))
	if err != nil {
		respondInternalError(c, err, "Failed to check access", zap.Uint64("token_id", id))
		return
	}

	c.JSON(http.StatusOK, dto.AccessResponse{
		TokenID:   id,
		Account:   account,
		HasAccess: hasAccess,
	})
}

// GetTransfer retrieves a transfer request
func (h *handler) GetTransfer(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		respondBadRequest(c, "Transfer ID is required")
		return
	}

	transfer, err := h.ledger.GetTransfer(c.Request.Context(), id)
	if err != nil {
		respondInternalError(c, err, "Failed to get transfer", zap.String("transfer_id", id))
		return
	}

	if transfer == nil {
		respondNotFound(c, "Transfer not found")
		return
	}

	c.JSON(http.StatusOK, transfer)
}

// ListTransfers lists the transfer requests caused by a ledger record
func (h *handler) ListTransfers(c *gin.Context) {
	reference := c.Query("reference")
	if reference == "" {
		respondValidationError(c, "reference is required")
		return
	}

	transfers, err := h.ledger.ListTransfers(c.Request.Context(), reference)
	if err != nil {
		respondInternalError(c, err, "Failed to list transfers", zap.String("reference", reference))
		return
	}

	c.JSON(http.StatusOK, dto.NewTransferListResponse(reference, transfers))
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "ff-ledger-api",
	})
}

// parseIDParam parses the :id path parameter as an unsigned sequential ID
func parseIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respondBadRequest(c, "Invalid ID", c.Param("id"))
		return 0, false
	}
	return id, true
}

// bindJSON decodes the request body; an empty body is accepted when optional
func bindJSON(c *gin.Context, obj any, optional bool) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		respondBadRequest(c, "Invalid request body", err.Error())
		return false
	}
	return true
}

// callFromRequest builds the ledger call from the authenticated caller and the attached payment
func callFromRequest(c *gin.Context, req dto.PaymentRequest) (domain.Call, bool) {
	caller, ok := middleware.CallerFromContext(c)
	if !ok {
		respondUnauthorized(c, "Caller not authenticated")
		return domain.Call{}, false
	}

	payment, err := req.Payment()
	if err != nil {
		respondValidationError(c, fmt.Sprintf("attached_payment: %s", err.Error()))
		return domain.Call{}, false
	}

	return domain.NewCall(caller).WithPayment(payment), true
}

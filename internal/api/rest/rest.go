package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/feral-file/ff-ledger/internal/api/middleware"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler, authCfg middleware.AuthConfig) {
	// Health check endpoint (no auth, no version prefix)
	router.GET("/health", handler.HealthCheck)

	auth := middleware.Auth(authCfg)

	v1 := router.Group("/api/v1")
	{
		// Campaign endpoints (public read access, authenticated writes)
		v1.GET("/campaigns", handler.GetCampaigns)
		v1.GET("/campaigns/:id", handler.GetCampaign)
		v1.GET("/campaigns/:id/donations", handler.GetDonations)
		v1.POST("/campaigns", auth, handler.CreateCampaign)
		v1.POST("/campaigns/:id/donations", auth, handler.Donate)

		// Platform wallet endpoints
		v1.GET("/platform/wallet", handler.GetPlatformWallet)
		v1.PUT("/platform/wallet", auth, handler.SetPlatformWallet)

		// NFT endpoints (public read access, authenticated writes)
		v1.GET("/nfts", handler.GetAllNFTs)
		v1.GET("/nfts/:id", handler.GetNFT)
		v1.GET("/nfts/:id/access/:account", handler.HasAccess)
		v1.POST("/nfts", auth, handler.MintNFT)
		v1.PUT("/nfts/:id/listing", auth, handler.ListNFTForSale)
		v1.POST("/nfts/:id/purchases", auth, handler.BuyNFT)

		// Transfer request projections (public read access)
		v1.GET("/transfers", handler.ListTransfers)
		v1.GET("/transfers/:id", handler.GetTransfer)
	}
}

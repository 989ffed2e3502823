package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/provider-credit-ledger/internal/api_gateway/handler"
	"github.com/provider-credit-ledger/internal/api_gateway/middleware"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	creditHandler *handler.CreditHandler,
	purchaseHandler *handler.PurchaseHandler,
	webhookHandler *handler.WebhookHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		// Provider credit accounts
		providers := v1.Group("/providers/:kind/:id")
		{
			providers.GET("/credits", creditHandler.GetBalance)
			providers.GET("/credits/transactions", creditHandler.ListTransactions)
			providers.GET("/credits/activity", creditHandler.GetActivity)
			providers.POST("/interactions", creditHandler.TrackInteraction)
		}

		// Credit pack sales
		v1.GET("/credit-packs", purchaseHandler.ListPacks)
		purchases := v1.Group("/purchases")
		{
			purchases.POST("", purchaseHandler.Initiate)
			purchases.POST("/:externalId/verify", purchaseHandler.Verify)
		}

		// Payment gateway callbacks
		v1.POST("/webhooks/payments", webhookHandler.HandlePayment)
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}

package handler

import (
	"io"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/provider-credit-ledger/internal/api_gateway/middleware"
	"github.com/provider-credit-ledger/internal/api_gateway/service"
)

const (
	// SignatureHeader carries the shared secret hash the gateway signs webhooks with
	SignatureHeader = "verif-hash"

	maxWebhookBodyBytes = 1 << 20
)

// WebhookHandler receives payment gateway callbacks
type WebhookHandler struct {
	purchaseService service.PurchaseService
	logger          *slog.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(logger *slog.Logger, purchaseService service.PurchaseService) *WebhookHandler {
	return &WebhookHandler{
		purchaseService: purchaseService,
		logger:          logger,
	}
}

// HandlePayment settles the purchase named by the callback. Any non-2xx reply
// makes the gateway redeliver.
func (h *WebhookHandler) HandlePayment(c *gin.Context) {
	logger := middleware.GetLogger(c, h.logger)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		logger.Warn("Failed to read webhook body", "error", err)
		RespondBadRequest(c, "Unreadable request body")
		return
	}

	result, err := h.purchaseService.HandleWebhook(c.Request.Context(), c.GetHeader(SignatureHeader), body)
	if err != nil {
		respondWithDomainError(c, logger, "Failed to handle payment webhook", err)
		return
	}

	RespondOK(c, gin.H{
		"outcome":        result.Outcome,
		"purchase_id":    result.Purchase.ID.String(),
		"gateway_status": result.GatewayStatus,
	})
}

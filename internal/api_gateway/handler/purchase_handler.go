package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/provider-credit-ledger/internal/api_gateway/middleware"
	"github.com/provider-credit-ledger/internal/api_gateway/service"
	"github.com/provider-credit-ledger/internal/domain/purchase"
	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/provider-credit-ledger/internal/payments"
	"github.com/provider-credit-ledger/internal/platform/gateway"
)

// PurchaseHandler handles HTTP requests for credit pack purchases
type PurchaseHandler struct {
	purchaseService service.PurchaseService
	logger          *slog.Logger
}

// NewPurchaseHandler creates a new purchase handler
func NewPurchaseHandler(logger *slog.Logger, purchaseService service.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{
		purchaseService: purchaseService,
		logger:          logger,
	}
}

// ListPacks returns the packs currently on sale
func (h *PurchaseHandler) ListPacks(c *gin.Context) {
	logger := middleware.GetLogger(c, h.logger)

	packs, err := h.purchaseService.ListPacks(c.Request.Context())
	if err != nil {
		respondWithDomainError(c, logger, "Failed to list credit packs", err)
		return
	}

	RespondOK(c, mapPacksToResponse(packs))
}

// Initiate starts a pack purchase and returns the payment instructions
func (h *PurchaseHandler) Initiate(c *gin.Context) {
	logger := middleware.GetLogger(c, h.logger)

	var req InitiatePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	kind, err := shared.ParseProviderKind(req.ProviderKind)
	if err != nil {
		RespondBadRequest(c, "Provider kind must be THERAPIST or SALON")
		return
	}
	packID, err := uuid.Parse(req.PackID)
	if err != nil {
		RespondBadRequest(c, "Invalid pack ID")
		return
	}

	result, err := h.purchaseService.InitiatePurchase(c.Request.Context(), payments.InitiateRequest{
		ProviderID: req.ProviderID,
		Kind:       kind,
		PackID:     packID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Method:     purchase.PaymentMethod(req.PaymentMethod),
		Customer: gateway.Customer{
			Email:       req.Customer.Email,
			PhoneNumber: req.Customer.PhoneNumber,
			Name:        req.Customer.Name,
		},
	})
	if err != nil {
		respondWithDomainError(c, logger.With("provider_id", req.ProviderID, "pack_id", req.PackID), "Failed to initiate purchase", err)
		return
	}

	RespondCreated(c, InitiatePurchaseResponse{
		Purchase:     mapPurchaseToResponse(result.Purchase),
		RedirectLink: result.RedirectLink,
		ExternalID:   result.ExternalID,
		Instructions: result.Instructions,
	})
}

// Verify settles a purchase against the gateway; clients poll it after paying
func (h *PurchaseHandler) Verify(c *gin.Context) {
	logger := middleware.GetLogger(c, h.logger)
	externalID := c.Param("externalId")

	result, err := h.purchaseService.VerifyPurchase(c.Request.Context(), externalID)
	if err != nil {
		respondWithDomainError(c, logger.With("external_id", externalID), "Failed to verify purchase", err)
		return
	}

	RespondOK(c, mapVerifyResultToResponse(result))
}

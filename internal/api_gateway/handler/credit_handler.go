package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/provider-credit-ledger/internal/api_gateway/middleware"
	"github.com/provider-credit-ledger/internal/api_gateway/service"
	"github.com/provider-credit-ledger/internal/domain/account"
	"github.com/provider-credit-ledger/internal/domain/events"
	"github.com/provider-credit-ledger/internal/domain/shared"
)

// CreditHandler handles HTTP requests for provider credit accounts
type CreditHandler struct {
	creditService service.CreditService
	logger        *slog.Logger
	now           func() time.Time
}

// NewCreditHandler creates a new credit handler
func NewCreditHandler(logger *slog.Logger, creditService service.CreditService) *CreditHandler {
	return &CreditHandler{
		creditService: creditService,
		logger:        logger,
		now:           time.Now,
	}
}

// GetBalance returns the provider's balance, opening the account on first access
func (h *CreditHandler) GetBalance(c *gin.Context) {
	logger := middleware.GetLogger(c, h.logger)
	key, ok := h.providerKey(c, logger)
	if !ok {
		return
	}

	acc, err := h.creditService.GetBalance(c.Request.Context(), key)
	if err != nil {
		respondWithDomainError(c, logger.With("provider_id", key.ProviderID, "provider_kind", key.Kind), "Failed to get credit balance", err)
		return
	}

	RespondOK(c, mapAccountToResponse(acc))
}

// ListTransactions returns the provider's paginated transaction history
func (h *CreditHandler) ListTransactions(c *gin.Context) {
	logger := middleware.GetLogger(c, h.logger)
	key, ok := h.providerKey(c, logger)
	if !ok {
		return
	}

	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		logger.Warn("Invalid pagination parameters", "error", err)
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	page, err := h.creditService.ListTransactions(c.Request.Context(), key, pagination.Page, pagination.PerPage)
	if err != nil {
		respondWithDomainError(c, logger.With("provider_id", key.ProviderID, "provider_kind", key.Kind), "Failed to list transactions", err)
		return
	}

	RespondWithPaginatedData(c, http.StatusOK, mapTransactionsToResponse(page), page.Page, page.Limit, page.TotalCount)
}

// GetActivity returns the provider's activity feed for a time window
func (h *CreditHandler) GetActivity(c *gin.Context) {
	logger := middleware.GetLogger(c, h.logger)
	key, ok := h.providerKey(c, logger)
	if !ok {
		return
	}

	var params ActivityParams
	if err := c.ShouldBindQuery(&params); err != nil {
		logger.Warn("Invalid activity parameters", "error", err)
		RespondBadRequest(c, "Invalid activity parameters")
		return
	}
	window, err := params.Range(h.now())
	if err != nil {
		logger.Warn("Invalid activity window", "from", params.From, "to", params.To, "error", err)
		RespondBadRequest(c, "from and to must be RFC 3339 timestamps")
		return
	}

	entries, err := h.creditService.GetActivity(c.Request.Context(), key, window, params.Limit)
	if err != nil {
		respondWithDomainError(c, logger.With("provider_id", key.ProviderID, "provider_kind", key.Kind), "Failed to get activity", err)
		return
	}

	RespondOK(c, mapActivityToResponse(entries))
}

// TrackInteraction publishes a billable interaction for asynchronous debiting
func (h *CreditHandler) TrackInteraction(c *gin.Context) {
	logger := middleware.GetLogger(c, h.logger)
	key, ok := h.providerKey(c, logger)
	if !ok {
		return
	}

	var req TrackInteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	event := &events.InteractionTracked{
		ProviderRef:     events.ProviderRef{ProviderID: key.ProviderID, ProviderKind: key.Kind},
		InteractionType: shared.InteractionType(req.InteractionType),
		UserID:          req.UserID,
		ReferenceID:     req.ReferenceID,
		Metadata:        req.Metadata,
	}
	if err := h.creditService.TrackInteraction(c.Request.Context(), event); err != nil {
		respondWithDomainError(c, logger.With("provider_id", key.ProviderID, "provider_kind", key.Kind), "Failed to track interaction", err)
		return
	}

	RespondAccepted(c, gin.H{
		"interaction_type": event.InteractionType,
		"status":           "ACCEPTED",
	})
}

// providerKey reads the account key from the :kind and :id path parameters
func (h *CreditHandler) providerKey(c *gin.Context, logger *slog.Logger) (account.Key, bool) {
	kind, err := shared.ParseProviderKind(c.Param("kind"))
	if err != nil {
		logger.Warn("Invalid provider kind", "kind", c.Param("kind"))
		RespondBadRequest(c, "Provider kind must be THERAPIST or SALON")
		return account.Key{}, false
	}

	key := account.Key{ProviderID: c.Param("id"), Kind: kind}
	if err := key.Validate(); err != nil {
		logger.Warn("Invalid provider id", "error", err)
		RespondBadRequest(c, err.Error())
		return account.Key{}, false
	}
	return key, true
}

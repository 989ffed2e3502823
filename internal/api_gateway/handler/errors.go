package handler

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/provider-credit-ledger/internal/domain/account"
	"github.com/provider-credit-ledger/internal/domain/activity"
	"github.com/provider-credit-ledger/internal/domain/catalog"
	"github.com/provider-credit-ledger/internal/domain/events"
	"github.com/provider-credit-ledger/internal/domain/purchase"
	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/provider-credit-ledger/internal/payments"
	"github.com/provider-credit-ledger/internal/platform/gateway"
)

// respondWithDomainError maps service errors onto HTTP responses. Anything not
// recognised is logged and reported as a 500.
func respondWithDomainError(c *gin.Context, logger *slog.Logger, msg string, err error) {
	switch {
	case errors.Is(err, shared.ErrInvalidProviderKind),
		errors.Is(err, account.ErrEmptyProviderID),
		errors.Is(err, shared.ErrInvalidInteractionType),
		errors.Is(err, shared.ErrReservedInteractionType),
		errors.Is(err, events.ErrMissingField),
		errors.Is(err, activity.ErrInvalidRange),
		errors.Is(err, purchase.ErrInvalidPaymentMethod),
		errors.Is(err, payments.ErrUnsupportedCurrency),
		errors.Is(err, payments.ErrPriceMismatch),
		errors.Is(err, gateway.ErrMalformedWebhook):
		logger.Warn(msg, "error", err)
		RespondBadRequest(c, err.Error())
	case errors.Is(err, gateway.ErrInvalidSignature):
		logger.Warn(msg, "error", err)
		RespondUnauthorized(c, "Invalid webhook signature")
	case errors.Is(err, catalog.ErrPackNotFound):
		RespondNotFound(c, "Credit pack not found")
	case errors.Is(err, purchase.ErrPurchaseNotFound{}),
		errors.Is(err, payments.ErrTransactionUnknown):
		RespondNotFound(c, "Purchase not found")
	case errors.As(err, new(account.ErrAccountNotFound)):
		RespondNotFound(c, "Account not found")
	case errors.Is(err, catalog.ErrPackInactive):
		RespondConflict(c, "Credit pack is no longer available")
	case errors.Is(err, payments.ErrChargeRejected):
		logger.Warn(msg, "error", err)
		RespondUnprocessable(c, "CHARGE_REJECTED", "The payment gateway rejected the charge")
	case errors.Is(err, payments.ErrGatewayUnavailable):
		logger.Error(msg, "error", err)
		RespondServiceUnavailable(c, "Payment gateway unavailable, try again later")
	default:
		logger.Error(msg, "error", err)
		RespondInternalError(c)
	}
}

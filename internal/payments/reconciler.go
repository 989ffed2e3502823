// Package payments sells credit packs through the external payment gateway and
// reconciles gateway settlements with the ledger. A purchase is credited at most
// once: the PENDING to COMPLETED transition is conditional and commits together
// with the credit.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/provider-credit-ledger/internal/domain/account"
	"github.com/provider-credit-ledger/internal/domain/catalog"
	"github.com/provider-credit-ledger/internal/domain/ledger"
	"github.com/provider-credit-ledger/internal/domain/purchase"
	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/provider-credit-ledger/internal/platform/gateway"
	"github.com/shopspring/decimal"
)

var (
	ErrUnsupportedCurrency = errors.New("currency is not accepted for credit purchases")
	ErrPriceMismatch       = errors.New("amount does not match the pack price")
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
	ErrChargeRejected      = errors.New("payment gateway rejected the charge")
	ErrTransactionUnknown  = errors.New("payment gateway has no record of the transaction")
)

// Outcome of reconciling one gateway status with a purchase
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeAlreadyCompleted Outcome = "already_completed"
	OutcomeFailed           Outcome = "failed"
	OutcomeAlreadyFailed    Outcome = "already_failed"
	OutcomePending          Outcome = "pending"
	OutcomeRequiresReview   Outcome = "requires_review"
)

type InitiateRequest struct {
	ProviderID string
	Kind       shared.ProviderKind
	PackID     uuid.UUID
	Amount     decimal.Decimal // Optional; when set it must equal the pack price
	Currency   string
	Method     purchase.PaymentMethod
	Customer   gateway.Customer
}

type InitiateResult struct {
	Purchase     *purchase.Purchase
	RedirectLink string
	ExternalID   string
	Instructions string
}

type VerifyResult struct {
	Outcome       Outcome
	GatewayStatus gateway.Status
	Purchase      *purchase.Purchase
	NewBalance    decimal.Decimal // Set when this call credited the purchase
}

type Reconciler struct {
	catalog  catalog.Repository
	store    purchase.Store
	gateway  gateway.Gateway
	currency string
	logger   *slog.Logger
}

func NewReconciler(logger *slog.Logger, catalog catalog.Repository, store purchase.Store, gw gateway.Gateway, currency string) *Reconciler {
	return &Reconciler{
		catalog:  catalog,
		store:    store,
		gateway:  gw,
		currency: strings.ToUpper(currency),
		logger:   logger,
	}
}

// Initiate starts a pack purchase. The purchase is only persisted once the
// gateway has accepted the charge.
func (r *Reconciler) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	key := account.Key{ProviderID: req.ProviderID, Kind: req.Kind}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if !req.Method.Valid() {
		return nil, purchase.ErrInvalidPaymentMethod
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = r.currency
	}
	if currency != r.currency {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}

	pack, err := r.catalog.GetPack(ctx, req.PackID)
	if err != nil {
		return nil, err
	}
	if !pack.Active {
		return nil, catalog.ErrPackInactive
	}
	if !req.Amount.IsZero() && !req.Amount.Equal(pack.Price) {
		return nil, fmt.Errorf("%w: got %s, pack costs %s", ErrPriceMismatch, req.Amount.String(), pack.Price.String())
	}

	p, err := purchase.NewPurchase(key, pack, currency, req.Method, purchase.NewTxRef())
	if err != nil {
		return nil, err
	}

	logger := r.logger.With(
		"purchase_id", p.ID.String(),
		"tx_ref", p.GatewayTxRef,
		"provider_id", key.ProviderID,
		"provider_kind", key.Kind,
		"pack_id", pack.ID.String(),
	)

	charge, err := r.gateway.InitiateCharge(ctx, gateway.ChargeRequest{
		Method:   string(req.Method),
		Amount:   pack.Price,
		Currency: currency,
		TxRef:    p.GatewayTxRef,
		Customer: req.Customer,
		Meta: map[string]string{
			"purchase_id":   p.ID.String(),
			"provider_id":   key.ProviderID,
			"provider_kind": string(key.Kind),
			"pack_id":       pack.ID.String(),
		},
	})
	if err != nil {
		logger.Error("Failed to initiate gateway charge", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}
	if !charge.Success {
		logger.Warn("Gateway rejected charge")
		return nil, ErrChargeRejected
	}

	if charge.ExternalID != "" {
		externalID := charge.ExternalID
		p.GatewayTransactionID = &externalID
	}
	p.PaymentData = charge.Raw

	if err := r.store.CreatePurchase(ctx, p); err != nil {
		logger.Error("Failed to persist purchase after gateway accepted the charge", "error", err)
		return nil, err
	}

	logger.Info("Initiated credit pack purchase",
		"method", req.Method,
		"price", pack.Price.String(),
		"credits", p.CreditsAmount.String(),
	)

	return &InitiateResult{
		Purchase:     p,
		RedirectLink: charge.RedirectLink,
		ExternalID:   charge.ExternalID,
		Instructions: charge.Instructions,
	}, nil
}

// Verify asks the gateway for the settlement status of externalID (a tx_ref or
// gateway transaction id) and applies it to the purchase. Client polls, webhooks
// and the sweeper all settle purchases through here.
func (r *Reconciler) Verify(ctx context.Context, externalID string) (*VerifyResult, error) {
	status, err := r.gateway.QueryStatus(ctx, externalID)
	if err != nil {
		var errResp *gateway.ErrorResponse
		if errors.As(err, &errResp) && (errResp.StatusCode == http.StatusNotFound || errResp.StatusCode == http.StatusBadRequest) {
			return nil, fmt.Errorf("%w: %s", ErrTransactionUnknown, externalID)
		}
		r.logger.Error("Failed to query gateway status", "external_id", externalID, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}

	p, err := r.lookup(ctx, externalID, status.TxRef)
	if err != nil {
		return nil, err
	}

	logger := r.logger.With(
		"purchase_id", p.ID.String(),
		"tx_ref", p.GatewayTxRef,
		"provider_id", p.ProviderID,
		"provider_kind", p.ProviderKind,
		"gateway_status", status.Status,
	)

	if status.ExternalID != "" && p.GatewayTransactionID == nil && p.Status == purchase.StatusPending {
		if err := r.store.AttachGatewayTransactionID(ctx, p.ID, status.ExternalID); err != nil {
			return nil, err
		}
		externalID := status.ExternalID
		p.GatewayTransactionID = &externalID
	}

	if !status.Amount.IsZero() && (!status.Amount.Equal(p.PricePaid) || !strings.EqualFold(status.Currency, p.Currency)) {
		logger.Warn("Gateway amount differs from purchase price",
			"gateway_amount", status.Amount.String(),
			"gateway_currency", status.Currency,
			"price_paid", p.PricePaid.String(),
			"currency", p.Currency,
		)
	}

	result := &VerifyResult{GatewayStatus: status.Status, Purchase: p}

	switch status.Status {
	case gateway.StatusSuccessful:
		return r.settleSuccess(ctx, logger, p, status, result)
	case gateway.StatusFailed:
		return r.settleFailure(ctx, logger, p, status, result)
	default:
		result.Outcome = OutcomePending
		return result, nil
	}
}

// HandleWebhook authenticates a gateway callback and settles the purchase it
// names. The body is only used to find the purchase; the status always comes
// from a fresh gateway query.
func (r *Reconciler) HandleWebhook(ctx context.Context, signature string, body []byte) (*VerifyResult, error) {
	if err := r.gateway.VerifyWebhookSignature(signature); err != nil {
		r.logger.Warn("Rejected webhook with invalid signature")
		return nil, err
	}

	event, err := r.gateway.ParseWebhook(body)
	if err != nil {
		r.logger.Warn("Rejected malformed webhook", "error", err)
		return nil, err
	}

	r.logger.Info("Received payment webhook",
		"event", event.Event,
		"external_id", event.ExternalID,
		"tx_ref", event.TxRef,
		"reported_status", event.Status,
	)

	return r.Verify(ctx, event.Reference())
}

// ExpirePurchase force-fails a purchase that is still PENDING
func (r *Reconciler) ExpirePurchase(ctx context.Context, p *purchase.Purchase, reason string) (bool, error) {
	data, err := json.Marshal(map[string]string{"reason": reason})
	if err != nil {
		return false, fmt.Errorf("failed to encode expiry reason: %w", err)
	}
	return r.store.FailPurchase(ctx, p.ID, data)
}

func (r *Reconciler) settleSuccess(ctx context.Context, logger *slog.Logger, p *purchase.Purchase, status *gateway.StatusResult, result *VerifyResult) (*VerifyResult, error) {
	switch p.Status {
	case purchase.StatusCompleted:
		result.Outcome = OutcomeAlreadyCompleted
		return result, nil
	case purchase.StatusFailed:
		logger.Error("Gateway reports success for a failed purchase, manual review required")
		result.Outcome = OutcomeRequiresReview
		return result, nil
	}

	credit := &ledger.Mutation{
		Key:         p.Key(),
		Direction:   ledger.DirectionCredit,
		Amount:      p.CreditsAmount,
		Type:        shared.TransactionTypePurchase,
		ReferenceID: p.ID.String(),
		Metadata: map[string]string{
			"purchase_id":    p.ID.String(),
			"pack_id":        p.PackID.String(),
			"gateway_tx_ref": p.GatewayTxRef,
		},
	}

	won, credited, err := r.store.CompletePurchase(ctx, p.ID, status.Raw, credit)
	if err != nil {
		logger.Error("Failed to complete purchase", "error", err)
		return nil, err
	}

	if !won {
		// Another caller settled it first; report what it settled to
		current, err := r.store.GetPurchaseByTxRef(ctx, p.GatewayTxRef)
		if err != nil {
			return nil, err
		}
		result.Purchase = current
		if current.Status == purchase.StatusFailed {
			logger.Error("Gateway reports success for a failed purchase, manual review required")
			result.Outcome = OutcomeRequiresReview
			return result, nil
		}
		result.Outcome = OutcomeAlreadyCompleted
		return result, nil
	}

	completed, err := r.store.GetPurchaseByTxRef(ctx, p.GatewayTxRef)
	if err != nil {
		return nil, err
	}

	logger.Info("Credited completed purchase",
		"credits", p.CreditsAmount.String(),
		"balance", credited.Balance().String(),
	)
	result.Outcome = OutcomeCompleted
	result.Purchase = completed
	result.NewBalance = credited.Balance()
	return result, nil
}

func (r *Reconciler) settleFailure(ctx context.Context, logger *slog.Logger, p *purchase.Purchase, status *gateway.StatusResult, result *VerifyResult) (*VerifyResult, error) {
	if p.Status == purchase.StatusCompleted {
		logger.Error("Gateway reports failure for a completed purchase, manual review required")
		result.Outcome = OutcomeRequiresReview
		return result, nil
	}

	won, err := r.store.FailPurchase(ctx, p.ID, status.Raw)
	if err != nil {
		logger.Error("Failed to mark purchase failed", "error", err)
		return nil, err
	}
	if !won {
		result.Outcome = OutcomeAlreadyFailed
		return result, nil
	}

	logger.Info("Purchase failed at gateway")
	p.Status = purchase.StatusFailed
	result.Outcome = OutcomeFailed
	return result, nil
}

// lookup finds the purchase by our tx_ref, then by the gateway id, then by the
// tx_ref the gateway reported
func (r *Reconciler) lookup(ctx context.Context, externalID, reportedTxRef string) (*purchase.Purchase, error) {
	p, err := r.store.GetPurchaseByTxRef(ctx, externalID)
	if err == nil || !errors.Is(err, purchase.ErrPurchaseNotFound{}) {
		return p, err
	}

	p, err = r.store.GetPurchaseByGatewayTransactionID(ctx, externalID)
	if err == nil || !errors.Is(err, purchase.ErrPurchaseNotFound{}) {
		return p, err
	}

	if reportedTxRef != "" && reportedTxRef != externalID {
		p, err = r.store.GetPurchaseByTxRef(ctx, reportedTxRef)
		if err == nil || !errors.Is(err, purchase.ErrPurchaseNotFound{}) {
			return p, err
		}
	}

	r.logger.Warn("No purchase matches gateway reference", "external_id", externalID, "tx_ref", reportedTxRef)
	return nil, purchase.ErrPurchaseNotFound{Reference: externalID}
}

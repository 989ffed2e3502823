package service

import (
	"context"

	"github.com/provider-credit-ledger/internal/credits"
	"github.com/provider-credit-ledger/internal/domain/account"
	"github.com/provider-credit-ledger/internal/domain/activity"
	"github.com/provider-credit-ledger/internal/domain/catalog"
	"github.com/provider-credit-ledger/internal/domain/events"
	"github.com/provider-credit-ledger/internal/payments"
)

// CreditService defines the read side of provider credit accounts plus manual
// interaction tracking
type CreditService interface {
	// GetBalance returns the provider's account, opening it with the signup
	// bonus on first access
	GetBalance(ctx context.Context, key account.Key) (*account.Account, error)

	// ListTransactions returns a newest-first page of the account's history
	ListTransactions(ctx context.Context, key account.Key, page, perPage int) (*credits.Page, error)

	// GetActivity reads the activity projection for the window
	// Returns activity.ErrInvalidRange if the window is empty or inverted
	GetActivity(ctx context.Context, key account.Key, window activity.Range, limit int) ([]*activity.Entry, error)

	// TrackInteraction publishes an interaction.tracked event; the credit
	// processor debits the account asynchronously
	TrackInteraction(ctx context.Context, event *events.InteractionTracked) error
}

// PurchaseService defines credit pack sales and payment reconciliation
type PurchaseService interface {
	ListPacks(ctx context.Context) ([]*catalog.CreditPack, error)

	// InitiatePurchase starts a gateway charge for a pack
	InitiatePurchase(ctx context.Context, req payments.InitiateRequest) (*payments.InitiateResult, error)

	// VerifyPurchase settles the purchase against the gateway's current status
	VerifyPurchase(ctx context.Context, externalID string) (*payments.VerifyResult, error)

	// HandleWebhook authenticates and settles a gateway callback
	HandleWebhook(ctx context.Context, signature string, body []byte) (*payments.VerifyResult, error)
}

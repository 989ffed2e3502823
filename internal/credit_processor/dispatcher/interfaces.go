package dispatcher

import (
	"context"

	"github.com/provider-credit-ledger/internal/credits"
	"github.com/provider-credit-ledger/internal/domain/account"
	"github.com/provider-credit-ledger/internal/domain/events"
	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Service dispatches a decoded interaction event to its registered handler
type Service interface {
	Dispatch(ctx context.Context, event events.Event) (Outcome, error)
}

// CostResolver prices an interaction
type CostResolver interface {
	Resolve(ctx context.Context, interactionType shared.InteractionType) decimal.Decimal
}

// Ledger is the part of credits.Ledger the dispatcher drives
type Ledger interface {
	Debit(ctx context.Context, key account.Key, amount decimal.Decimal, txType shared.TransactionType, referenceID string, metadata map[string]string) (*credits.DebitResult, error)
	Archive(ctx context.Context, key account.Key) error
}

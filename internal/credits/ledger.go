// Package credits is the entry point every caller uses to move credits. It
// validates the request, picks the mutation and hands it to the ledger store,
// which performs the read-check-write atomically.
package credits

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/provider-credit-ledger/internal/domain/account"
	"github.com/provider-credit-ledger/internal/domain/ledger"
	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// ErrReservedType is returned when a caller tries to write a type only the
// ledger records itself. Debits additionally reject PURCHASE.
var ErrReservedType = errors.New("transaction type is reserved for system grants and purchases")

// DebitResult reports whether a debit was applied. An unapplied debit is not an
// error: the balance simply did not cover it.
type DebitResult struct {
	Applied    bool
	Outcome    ledger.Outcome
	NewBalance decimal.Decimal
	Account    *account.Account
}

// Page is one page of an account's transaction history, newest first
type Page struct {
	Items      []*ledger.Transaction
	TotalCount int64
	Page       int
	Limit      int
}

// TotalPages returns the number of pages at the page's limit
func (p *Page) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return int((p.TotalCount + int64(p.Limit) - 1) / int64(p.Limit))
}

type Ledger struct {
	store  ledger.Store
	logger *slog.Logger
}

func NewLedger(logger *slog.Logger, store ledger.Store) *Ledger {
	return &Ledger{
		store:  store,
		logger: logger,
	}
}

// GetOrInitAccount returns the provider's account, opening it with the signup
// bonus on first access
func (l *Ledger) GetOrInitAccount(ctx context.Context, key account.Key) (*account.Account, error) {
	return l.store.GetOrInitAccount(ctx, key)
}

// Credit adds amount to the balance and returns the new balance. MONTHLY_BONUS is
// reserved for GrantMonthly, which carries the per-month idempotency key.
func (l *Ledger) Credit(ctx context.Context, key account.Key, amount decimal.Decimal, txType shared.TransactionType, referenceID string, metadata map[string]string) (decimal.Decimal, error) {
	if txType.IsGrant() {
		return decimal.Zero, ErrReservedType
	}

	result, err := l.store.Apply(ctx, &ledger.Mutation{
		Key:         key,
		Direction:   ledger.DirectionCredit,
		Amount:      amount,
		Type:        txType,
		ReferenceID: referenceID,
		Metadata:    metadata,
	})
	if err != nil {
		return decimal.Zero, err
	}

	return result.Balance(), nil
}

// Debit takes amount from the balance when it covers it
func (l *Ledger) Debit(ctx context.Context, key account.Key, amount decimal.Decimal, txType shared.TransactionType, referenceID string, metadata map[string]string) (*DebitResult, error) {
	if txType.IsReserved() {
		return nil, ErrReservedType
	}

	result, err := l.store.Apply(ctx, &ledger.Mutation{
		Key:         key,
		Direction:   ledger.DirectionDebit,
		Amount:      amount,
		Type:        txType,
		ReferenceID: referenceID,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, err
	}

	return &DebitResult{
		Applied:    result.Applied,
		Outcome:    result.Outcome,
		NewBalance: result.Balance(),
		Account:    result.Account,
	}, nil
}

// GrantMonthly pays the monthly grant unless the account already received it in
// the calendar month of now. It reports whether this call paid it.
func (l *Ledger) GrantMonthly(ctx context.Context, key account.Key, amount decimal.Decimal, now time.Time) (bool, decimal.Decimal, error) {
	period := now.UTC()
	result, err := l.store.Apply(ctx, &ledger.Mutation{
		Key:         key,
		Direction:   ledger.DirectionCredit,
		Amount:      amount,
		Type:        shared.TransactionTypeMonthlyBonus,
		ReferenceID: period.Format("2006-01"),
		GrantPeriod: &period,
	})
	if err != nil {
		return false, decimal.Zero, err
	}

	return result.Applied, result.Balance(), nil
}

// ListTransactions returns a 1-based page. A limit below 1 falls back to
// DefaultPageLimit and larger ones are capped at MaxPageLimit.
func (l *Ledger) ListTransactions(ctx context.Context, key account.Key, page, limit int) (*Page, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	page, limit = normalizePage(page, limit)

	items, total, err := l.store.ListTransactions(ctx, key, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}

	return &Page{
		Items:      items,
		TotalCount: total,
		Page:       page,
		Limit:      limit,
	}, nil
}

// Archive stops monthly grants for the account. The history is kept.
func (l *Ledger) Archive(ctx context.Context, key account.Key) error {
	if err := l.store.ArchiveAccount(ctx, key); err != nil {
		return err
	}
	l.logger.Info("Archived credit account", "provider_id", key.ProviderID, "provider_kind", key.Kind)
	return nil
}

// ListActiveProviders pages through non-archived providers of one kind
func (l *Ledger) ListActiveProviders(ctx context.Context, kind shared.ProviderKind, afterProviderID string, limit int) ([]string, error) {
	return l.store.ListActiveProviders(ctx, kind, afterProviderID, limit)
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

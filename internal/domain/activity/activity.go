// Package activity holds the read-side projection of committed ledger
// transactions that backs the provider activity feed.
package activity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/provider-credit-ledger/internal/domain/account"
	"github.com/provider-credit-ledger/internal/domain/ledger"
	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

var ErrInvalidRange = errors.New("activity range start must be before its end")

// Entry is one ledger transaction as seen by the activity feed
type Entry struct {
	TransactionID uuid.UUID              `json:"transaction_id"`
	ProviderID    string                 `json:"provider_id"`
	ProviderKind  shared.ProviderKind    `json:"provider_kind"`
	Amount        decimal.Decimal        `json:"amount"`
	Type          shared.TransactionType `json:"type"`
	ReferenceID   string                 `json:"reference_id,omitempty"`
	BalanceBefore decimal.Decimal        `json:"balance_before"`
	BalanceAfter  decimal.Decimal        `json:"balance_after"`
	Metadata      map[string]string      `json:"metadata,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	RecordedAt    time.Time              `json:"recorded_at"`
}

func NewEntry(txn *ledger.Transaction, recordedAt time.Time) *Entry {
	return &Entry{
		TransactionID: txn.ID,
		ProviderID:    txn.ProviderID,
		ProviderKind:  txn.ProviderKind,
		Amount:        txn.Amount,
		Type:          txn.Type,
		ReferenceID:   txn.ReferenceID,
		BalanceBefore: txn.BalanceBefore,
		BalanceAfter:  txn.BalanceAfter,
		Metadata:      txn.Metadata,
		CreatedAt:     txn.CreatedAt,
		RecordedAt:    recordedAt.UTC(),
	}
}

// Range is a half-open [From, To) window over transaction creation time
type Range struct {
	From time.Time
	To   time.Time
}

func (r Range) Validate() error {
	if !r.From.Before(r.To) {
		return ErrInvalidRange
	}
	return nil
}

// Repository stores the projection. Record is an upsert keyed by transaction id,
// so replaying an outbox message leaves a single entry.
type Repository interface {
	Record(ctx context.Context, entry *Entry) error
	GetByProvider(ctx context.Context, key account.Key, window Range, limit int) ([]*Entry, error)
}

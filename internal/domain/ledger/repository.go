package ledger

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/provider-credit-ledger/internal/domain/account"
	"github.com/provider-credit-ledger/internal/domain/shared"
)

// Repository manages the append-only transaction log
type Repository interface {
	Create(ctx context.Context, txn *Transaction) error
	ListByAccount(ctx context.Context, key account.Key, limit, offset int) ([]*Transaction, error)
	CountByAccount(ctx context.Context, key account.Key) (int64, error)
	WithTx(tx pgx.Tx) Repository
}

// Store owns provider accounts and their transaction log. Every balance change
// goes through Apply, which performs the read-check-write as one atomic unit.
type Store interface {
	// GetOrInitAccount returns the account, opening it with the signup bonus and a
	// single INITIAL_BONUS transaction on first access.
	GetOrInitAccount(ctx context.Context, key account.Key) (*account.Account, error)
	Apply(ctx context.Context, m *Mutation) (*Result, error)

	// ListTransactions returns a newest-first page and the total row count
	ListTransactions(ctx context.Context, key account.Key, limit, offset int) ([]*Transaction, int64, error)

	ListActiveProviders(ctx context.Context, kind shared.ProviderKind, afterProviderID string, limit int) ([]string, error)
	ArchiveAccount(ctx context.Context, key account.Key) error
}

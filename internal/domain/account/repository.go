package account

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/provider-credit-ledger/internal/domain/shared"
)

// Repository defines account persistence operations
type Repository interface {
	// CreateIfAbsent inserts the account unless one already exists for its key.
	// It reports whether this call created the row.
	CreateIfAbsent(ctx context.Context, account *Account) (bool, error)
	GetByKey(ctx context.Context, key Key) (*Account, error)

	// Update uses optimistic locking on the version column
	Update(ctx context.Context, account *Account) error

	// LockForUpdate acquires a pessimistic lock for balance mutation
	LockForUpdate(ctx context.Context, key Key) (*Account, error)

	Archive(ctx context.Context, key Key) error
	ListActiveProviderIDs(ctx context.Context, kind shared.ProviderKind, afterProviderID string, limit int) ([]string, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrConcurrentModification indicates optimistic lock failure
type ErrConcurrentModification struct {
	Key Key
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for account: " + e.Key.String()
}

// ErrAccountNotFound indicates missing account
type ErrAccountNotFound struct {
	Key Key
}

func (e ErrAccountNotFound) Error() string {
	return "account not found: " + e.Key.String()
}

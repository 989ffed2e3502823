// Package postgres provides PostgreSQL implementations of the domain repositories
// and stores. Balance mutations run inside a single database transaction so the
// account row, its transaction log entry and the outbox message commit together.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/provider-credit-ledger/internal/domain/account"
	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/provider-credit-ledger/internal/platform/persistence"
)

const accountColumns = `provider_id, provider_kind, balance, total_earned, total_spent, last_monthly_grant_at, version, archived_at, created_at, updated_at`

// AccountRepository implements the account.Repository interface for PostgreSQL
type AccountRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewAccountRepository creates a new PostgreSQL account repository.
func NewAccountRepository(logger *slog.Logger, db *persistence.PostgresDB) account.Repository {
	return &AccountRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to the transaction
func (r *AccountRepository) WithTx(tx pgx.Tx) account.Repository {
	return &AccountRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// CreateIfAbsent inserts the account unless one exists for the same provider and
// kind. Concurrent callers block on the primary key and only one observes true.
func (r *AccountRepository) CreateIfAbsent(ctx context.Context, acc *account.Account) (bool, error) {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (provider_id, provider_kind) DO NOTHING
	`

	result, err := r.querier.Exec(ctx, query,
		acc.ProviderID,
		acc.ProviderKind,
		acc.Balance,
		acc.TotalEarned,
		acc.TotalSpent,
		acc.LastMonthlyGrantAt,
		acc.Version,
		acc.ArchivedAt,
		acc.CreatedAt,
		acc.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create account", "account", acc.Key().String(), "error", err)
		return false, fmt.Errorf("failed to create account: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// GetByKey retrieves an account without locking it
func (r *AccountRepository) GetByKey(ctx context.Context, key account.Key) (*account.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE provider_id = $1 AND provider_kind = $2
	`

	acc, err := scanAccount(r.querier.QueryRow(ctx, query, key.ProviderID, key.Kind))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrAccountNotFound{Key: key}
		}
		r.logger.Error("Failed to get account", "account", key.String(), "error", err)
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return acc, nil
}

// Update writes the mutated account back, checking the previous version
func (r *AccountRepository) Update(ctx context.Context, acc *account.Account) error {
	query := `
		UPDATE accounts
		SET balance = $1, total_earned = $2, total_spent = $3, last_monthly_grant_at = $4, version = $5, updated_at = $6
		WHERE provider_id = $7 AND provider_kind = $8 AND version = $9
	`

	result, err := r.querier.Exec(ctx, query,
		acc.Balance,
		acc.TotalEarned,
		acc.TotalSpent,
		acc.LastMonthlyGrantAt,
		acc.Version,
		acc.UpdatedAt,
		acc.ProviderID,
		acc.ProviderKind,
		acc.Version-1,
	)
	if err != nil {
		r.logger.Error("Failed to update account", "account", acc.Key().String(), "error", err)
		return fmt.Errorf("failed to update account: %w", err)
	}

	if result.RowsAffected() == 0 {
		return account.ErrConcurrentModification{Key: acc.Key()}
	}

	return nil
}

// LockForUpdate obtains a row lock on the account and returns its current state.
// It must run inside a transaction.
func (r *AccountRepository) LockForUpdate(ctx context.Context, key account.Key) (*account.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE provider_id = $1 AND provider_kind = $2
		FOR UPDATE
	`

	acc, err := scanAccount(r.querier.QueryRow(ctx, query, key.ProviderID, key.Kind))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrAccountNotFound{Key: key}
		}
		r.logger.Error("Failed to lock account for update", "account", key.String(), "error", err)
		return nil, fmt.Errorf("failed to lock account for update: %w", err)
	}

	return acc, nil
}

// Archive marks the account archived. Archiving twice keeps the first timestamp.
func (r *AccountRepository) Archive(ctx context.Context, key account.Key) error {
	query := `
		UPDATE accounts
		SET archived_at = COALESCE(archived_at, NOW()), updated_at = NOW()
		WHERE provider_id = $1 AND provider_kind = $2
	`

	result, err := r.querier.Exec(ctx, query, key.ProviderID, key.Kind)
	if err != nil {
		r.logger.Error("Failed to archive account", "account", key.String(), "error", err)
		return fmt.Errorf("failed to archive account: %w", err)
	}

	if result.RowsAffected() == 0 {
		return account.ErrAccountNotFound{Key: key}
	}

	return nil
}

// ListActiveProviderIDs pages through non-archived accounts of one kind in
// provider id order, starting after afterProviderID.
func (r *AccountRepository) ListActiveProviderIDs(ctx context.Context, kind shared.ProviderKind, afterProviderID string, limit int) ([]string, error) {
	query := `
		SELECT provider_id
		FROM accounts
		WHERE provider_kind = $1 AND archived_at IS NULL AND provider_id > $2
		ORDER BY provider_id ASC
		LIMIT $3
	`

	rows, err := r.querier.Query(ctx, query, kind, afterProviderID, limit)
	if err != nil {
		r.logger.Error("Failed to list active providers", "provider_kind", kind, "error", err)
		return nil, fmt.Errorf("failed to list active providers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			r.logger.Error("Failed to scan provider id", "error", err)
			return nil, fmt.Errorf("failed to scan provider id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over providers", "error", err)
		return nil, fmt.Errorf("error iterating over providers: %w", err)
	}

	return ids, nil
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var acc account.Account
	err := row.Scan(
		&acc.ProviderID,
		&acc.ProviderKind,
		&acc.Balance,
		&acc.TotalEarned,
		&acc.TotalSpent,
		&acc.LastMonthlyGrantAt,
		&acc.Version,
		&acc.ArchivedAt,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/provider-credit-ledger/internal/domain/account"
	"github.com/provider-credit-ledger/internal/domain/ledger"
	"github.com/provider-credit-ledger/internal/platform/persistence"
)

// TransactionRepository implements ledger.Repository for PostgreSQL. Rows are
// only ever inserted.
type TransactionRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB) ledger.Repository {
	return &TransactionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *TransactionRepository) WithTx(tx pgx.Tx) ledger.Repository {
	return &TransactionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create appends a transaction to the log
func (r *TransactionRepository) Create(ctx context.Context, txn *ledger.Transaction) error {
	query := `
		INSERT INTO transactions (id, provider_id, provider_kind, amount, type, reference_id, balance_before, balance_after, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10)
	`

	_, err := r.querier.Exec(ctx, query,
		txn.ID,
		txn.ProviderID,
		txn.ProviderKind,
		txn.Amount,
		txn.Type,
		txn.ReferenceID,
		txn.BalanceBefore,
		txn.BalanceAfter,
		txn.Metadata,
		txn.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create transaction",
			"transaction_id", txn.ID.String(),
			"account", txn.Key().String(),
			"error", err,
		)
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// ListByAccount returns a page of the account's transactions, newest first
func (r *TransactionRepository) ListByAccount(ctx context.Context, key account.Key, limit, offset int) ([]*ledger.Transaction, error) {
	query := `
		SELECT id, provider_id, provider_kind, amount, type, COALESCE(reference_id, ''), balance_before, balance_after, metadata, created_at
		FROM transactions
		WHERE provider_id = $1 AND provider_kind = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.querier.Query(ctx, query, key.ProviderID, key.Kind, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list transactions", "account", key.String(), "error", err)
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]*ledger.Transaction, 0, limit)
	for rows.Next() {
		var txn ledger.Transaction
		err := rows.Scan(
			&txn.ID,
			&txn.ProviderID,
			&txn.ProviderKind,
			&txn.Amount,
			&txn.Type,
			&txn.ReferenceID,
			&txn.BalanceBefore,
			&txn.BalanceAfter,
			&txn.Metadata,
			&txn.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan transaction", "error", err)
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, &txn)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over transactions", "error", err)
		return nil, fmt.Errorf("error iterating over transactions: %w", err)
	}

	return transactions, nil
}

// CountByAccount returns the number of transactions recorded for the account
func (r *TransactionRepository) CountByAccount(ctx context.Context, key account.Key) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM transactions
		WHERE provider_id = $1 AND provider_kind = $2
	`

	var count int64
	if err := r.querier.QueryRow(ctx, query, key.ProviderID, key.Kind).Scan(&count); err != nil {
		r.logger.Error("Failed to count transactions", "account", key.String(), "error", err)
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	return count, nil
}

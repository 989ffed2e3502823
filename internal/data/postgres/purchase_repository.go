package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/provider-credit-ledger/internal/domain/ledger"
	"github.com/provider-credit-ledger/internal/domain/purchase"
	"github.com/provider-credit-ledger/internal/platform/persistence"
)

const purchaseColumns = `id, provider_id, provider_kind, pack_id, credits_amount, price_paid, currency, payment_method,
		gateway_tx_ref, gateway_transaction_id, status, payment_data, completed_at, created_at, updated_at`

// PurchaseRepository implements purchase.Store. Completion shares the ledger
// store's transaction so the status flip and the credit commit together.
type PurchaseRepository struct {
	db     persistence.TxBeginner
	ledger *LedgerStore
	logger *slog.Logger
}

var _ purchase.Store = (*PurchaseRepository)(nil)

func NewPurchaseRepository(logger *slog.Logger, db *persistence.PostgresDB, ledgerStore *LedgerStore) *PurchaseRepository {
	return &PurchaseRepository{
		db:     db.Pool(),
		ledger: ledgerStore,
		logger: logger,
	}
}

func (r *PurchaseRepository) CreatePurchase(ctx context.Context, p *purchase.Purchase) error {
	query := `
		INSERT INTO credit_purchases (` + purchaseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.db.Exec(ctx, query,
		p.ID,
		p.ProviderID,
		p.ProviderKind,
		p.PackID,
		p.CreditsAmount,
		p.PricePaid,
		p.Currency,
		p.PaymentMethod,
		p.GatewayTxRef,
		p.GatewayTransactionID,
		p.Status,
		nullableJSON(p.PaymentData),
		p.CompletedAt,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create purchase", "purchase_id", p.ID.String(), "tx_ref", p.GatewayTxRef, "error", err)
		return fmt.Errorf("failed to create purchase: %w", err)
	}

	return nil
}

func (r *PurchaseRepository) GetPurchaseByTxRef(ctx context.Context, txRef string) (*purchase.Purchase, error) {
	return r.getBy(ctx, "gateway_tx_ref", txRef)
}

func (r *PurchaseRepository) GetPurchaseByGatewayTransactionID(ctx context.Context, gatewayTransactionID string) (*purchase.Purchase, error) {
	return r.getBy(ctx, "gateway_transaction_id", gatewayTransactionID)
}

// getBy looks a purchase up by one of the two gateway references. column is
// always a constant chosen by the caller above.
func (r *PurchaseRepository) getBy(ctx context.Context, column, value string) (*purchase.Purchase, error) {
	query := `
		SELECT ` + purchaseColumns + `
		FROM credit_purchases
		WHERE ` + column + ` = $1
	`

	p, err := scanPurchase(r.db.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, purchase.ErrPurchaseNotFound{Reference: value}
		}
		r.logger.Error("Failed to get purchase", column, value, "error", err)
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}

	return p, nil
}

// AttachGatewayTransactionID is a no-op when the purchase already has an id or
// has left PENDING
func (r *PurchaseRepository) AttachGatewayTransactionID(ctx context.Context, id uuid.UUID, gatewayTransactionID string) error {
	query := `
		UPDATE credit_purchases
		SET gateway_transaction_id = $1, updated_at = NOW()
		WHERE id = $2 AND gateway_transaction_id IS NULL AND status = $3
	`

	if _, err := r.db.Exec(ctx, query, gatewayTransactionID, id, purchase.StatusPending); err != nil {
		r.logger.Error("Failed to attach gateway transaction id", "purchase_id", id.String(), "error", err)
		return fmt.Errorf("failed to attach gateway transaction id: %w", err)
	}

	return nil
}

// CompletePurchase flips PENDING to COMPLETED with a conditional update and, only
// when this call won the update, applies credit in the same transaction.
func (r *PurchaseRepository) CompletePurchase(ctx context.Context, id uuid.UUID, paymentData json.RawMessage, credit *ledger.Mutation) (bool, *ledger.Result, error) {
	if err := credit.Validate(); err != nil {
		return false, nil, err
	}

	query := `
		UPDATE credit_purchases
		SET status = $1, payment_data = COALESCE($2, payment_data), completed_at = $3, updated_at = $3
		WHERE id = $4 AND status = $5
	`

	var (
		won    bool
		result *ledger.Result
	)
	err := persistence.ExecuteTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, purchase.StatusCompleted, nullableJSON(paymentData), time.Now().UTC(), id, purchase.StatusPending)
		if err != nil {
			r.logger.Error("Failed to complete purchase", "purchase_id", id.String(), "error", err)
			return fmt.Errorf("failed to complete purchase: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		won = true
		result, err = r.ledger.ApplyTx(ctx, tx, credit)
		return err
	})
	if err != nil {
		return false, nil, err
	}

	return won, result, nil
}

// FailPurchase flips PENDING to FAILED; it reports false when the purchase was
// already terminal
func (r *PurchaseRepository) FailPurchase(ctx context.Context, id uuid.UUID, paymentData json.RawMessage) (bool, error) {
	query := `
		UPDATE credit_purchases
		SET status = $1, payment_data = COALESCE($2, payment_data), updated_at = NOW()
		WHERE id = $3 AND status = $4
	`

	tag, err := r.db.Exec(ctx, query, purchase.StatusFailed, nullableJSON(paymentData), id, purchase.StatusPending)
	if err != nil {
		r.logger.Error("Failed to mark purchase failed", "purchase_id", id.String(), "error", err)
		return false, fmt.Errorf("failed to mark purchase failed: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *PurchaseRepository) ListStalePendingPurchases(ctx context.Context, olderThan time.Time, limit int) ([]*purchase.Purchase, error) {
	query := `
		SELECT ` + purchaseColumns + `
		FROM credit_purchases
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, purchase.StatusPending, olderThan, limit)
	if err != nil {
		r.logger.Error("Failed to list stale purchases", "error", err)
		return nil, fmt.Errorf("failed to list stale purchases: %w", err)
	}
	defer rows.Close()

	var purchases []*purchase.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			r.logger.Error("Failed to scan purchase", "error", err)
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over purchases", "error", err)
		return nil, fmt.Errorf("error iterating over purchases: %w", err)
	}

	return purchases, nil
}

func scanPurchase(row pgx.Row) (*purchase.Purchase, error) {
	var p purchase.Purchase
	var paymentData []byte
	err := row.Scan(
		&p.ID,
		&p.ProviderID,
		&p.ProviderKind,
		&p.PackID,
		&p.CreditsAmount,
		&p.PricePaid,
		&p.Currency,
		&p.PaymentMethod,
		&p.GatewayTxRef,
		&p.GatewayTransactionID,
		&p.Status,
		&paymentData,
		&p.CompletedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(paymentData) > 0 {
		p.PaymentData = json.RawMessage(paymentData)
	}
	return &p, nil
}

// nullableJSON maps an empty payload to SQL NULL
func nullableJSON(data json.RawMessage) []byte {
	if len(data) == 0 {
		return nil
	}
	return []byte(data)
}

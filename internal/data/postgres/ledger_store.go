package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/provider-credit-ledger/internal/domain/account"
	"github.com/provider-credit-ledger/internal/domain/ledger"
	"github.com/provider-credit-ledger/internal/domain/outbox"
	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/provider-credit-ledger/internal/platform/persistence"
	"github.com/shopspring/decimal"
)

// LedgerStore implements ledger.Store on top of the account, transaction and
// outbox repositories. Each mutation locks the account row, so concurrent
// mutations of the same account serialize while different accounts proceed in
// parallel.
type LedgerStore struct {
	db           persistence.TxBeginner
	accounts     account.Repository
	transactions ledger.Repository
	outbox       outbox.Repository
	signupBonus  decimal.Decimal
	logger       *slog.Logger
}

var _ ledger.Store = (*LedgerStore)(nil)

func NewLedgerStore(logger *slog.Logger, db *persistence.PostgresDB, signupBonus decimal.Decimal) *LedgerStore {
	return newLedgerStore(logger, db.Pool(), signupBonus)
}

func newLedgerStore(logger *slog.Logger, db persistence.TxBeginner, signupBonus decimal.Decimal) *LedgerStore {
	return &LedgerStore{
		db:           db,
		accounts:     &AccountRepository{querier: db, logger: logger},
		transactions: &TransactionRepository{querier: db, logger: logger},
		outbox:       &OutboxRepository{querier: db, logger: logger},
		signupBonus:  signupBonus,
		logger:       logger,
	}
}

// GetOrInitAccount returns the account, opening it on first access
func (s *LedgerStore) GetOrInitAccount(ctx context.Context, key account.Key) (*account.Account, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	var acc *account.Account
	err := persistence.ExecuteTx(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		acc, err = s.ensureAccount(ctx, tx, key, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	return acc, nil
}

// Apply runs the mutation in its own database transaction
func (s *LedgerStore) Apply(ctx context.Context, m *ledger.Mutation) (*ledger.Result, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var result *ledger.Result
	err := persistence.ExecuteTx(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		result, err = s.ApplyTx(ctx, tx, m)
		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ApplyTx applies the mutation inside a caller-owned transaction. A mutation that
// does not apply leaves only the account initialisation (if any) in tx.
func (s *LedgerStore) ApplyTx(ctx context.Context, tx pgx.Tx, m *ledger.Mutation) (*ledger.Result, error) {
	acc, err := s.ensureAccount(ctx, tx, m.Key, true)
	if err != nil {
		return nil, err
	}

	txn, outcome, err := m.ApplyTo(acc, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to apply %s to account %s: %w", m.Direction, m.Key.String(), err)
	}
	if txn == nil {
		return &ledger.Result{Applied: false, Outcome: outcome, Account: acc}, nil
	}

	if err := s.accounts.WithTx(tx).Update(ctx, acc); err != nil {
		return nil, err
	}
	if err := s.record(ctx, tx, txn); err != nil {
		return nil, err
	}

	return &ledger.Result{Applied: true, Outcome: outcome, Account: acc, Transaction: txn}, nil
}

// ListTransactions returns a newest-first page and the total count
func (s *LedgerStore) ListTransactions(ctx context.Context, key account.Key, limit, offset int) ([]*ledger.Transaction, int64, error) {
	transactions, err := s.transactions.ListByAccount(ctx, key, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.transactions.CountByAccount(ctx, key)
	if err != nil {
		return nil, 0, err
	}

	return transactions, total, nil
}

func (s *LedgerStore) ListActiveProviders(ctx context.Context, kind shared.ProviderKind, afterProviderID string, limit int) ([]string, error) {
	return s.accounts.ListActiveProviderIDs(ctx, kind, afterProviderID, limit)
}

func (s *LedgerStore) ArchiveAccount(ctx context.Context, key account.Key) error {
	return s.accounts.Archive(ctx, key)
}

// ensureAccount opens the account if it does not exist and reads it back,
// locking the row when lock is set. Only the caller whose insert wins records
// the INITIAL_BONUS transaction.
func (s *LedgerStore) ensureAccount(ctx context.Context, tx pgx.Tx, key account.Key, lock bool) (*account.Account, error) {
	fresh, err := account.NewAccount(key, s.signupBonus)
	if err != nil {
		return nil, err
	}

	accounts := s.accounts.WithTx(tx)
	created, err := accounts.CreateIfAbsent(ctx, fresh)
	if err != nil {
		return nil, err
	}

	if created {
		s.logger.Info("Opened credit account",
			"provider_id", key.ProviderID,
			"provider_kind", key.Kind,
			"signup_bonus", s.signupBonus.String(),
		)
		if fresh.Balance.IsPositive() {
			if err := s.record(ctx, tx, ledger.NewInitialBonusTransaction(fresh)); err != nil {
				return nil, err
			}
		}
	}

	if lock {
		return accounts.LockForUpdate(ctx, key)
	}
	return accounts.GetByKey(ctx, key)
}

// record appends the transaction and its outbox message
func (s *LedgerStore) record(ctx context.Context, tx pgx.Tx, txn *ledger.Transaction) error {
	if err := s.transactions.WithTx(tx).Create(ctx, txn); err != nil {
		return err
	}

	message, err := outbox.NewMessage(txn)
	if err != nil {
		return fmt.Errorf("failed to build outbox message: %w", err)
	}

	return s.outbox.WithTx(tx).Create(ctx, message)
}

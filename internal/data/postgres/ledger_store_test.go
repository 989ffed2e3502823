package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/provider-credit-ledger/internal/domain/account"
	"github.com/provider-credit-ledger/internal/domain/ledger"
	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	insertAccountSQL     = `INSERT INTO accounts`
	insertTransactionSQL = `INSERT INTO transactions`
	insertOutboxSQL      = `INSERT INTO transaction_outbox`
	lockAccountSQL       = `SELECT .* FROM accounts WHERE provider_id = \$1 AND provider_kind = \$2 FOR UPDATE`
	updateAccountSQL     = `UPDATE accounts SET balance`
)

func expectRecord(mock pgxmock.PgxPoolIface, outboxID int64) {
	mock.ExpectExec(insertTransactionSQL).WithArgs(anyArgs(10)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(insertOutboxSQL).WithArgs(anyArgs(7)...).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(outboxID))
}

func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestLedgerStore_GetOrInitAccount_Opens(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newLedgerStore(newTestLogger(), mock, decimal.NewFromInt(20))

	mock.ExpectBegin()
	mock.ExpectExec(insertAccountSQL).WithArgs(anyArgs(10)...).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	expectRecord(mock, 1)
	mock.ExpectQuery(`SELECT .* FROM accounts WHERE provider_id = \$1 AND provider_kind = \$2`).
		WithArgs(testKey.ProviderID, testKey.Kind).
		WillReturnRows(accountRow("20", 1))
	mock.ExpectCommit()

	acc, err := store.GetOrInitAccount(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(20).Equal(acc.Balance))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerStore_GetOrInitAccount_Existing(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newLedgerStore(newTestLogger(), mock, decimal.NewFromInt(20))

	mock.ExpectBegin()
	mock.ExpectExec(insertAccountSQL).WithArgs(anyArgs(10)...).WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery(`SELECT .* FROM accounts`).
		WithArgs(testKey.ProviderID, testKey.Kind).
		WillReturnRows(accountRow("7.5", 4))
	mock.ExpectCommit()

	acc, err := store.GetOrInitAccount(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("7.5").Equal(acc.Balance))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerStore_GetOrInitAccount_InvalidKey(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := newLedgerStore(newTestLogger(), mock, decimal.NewFromInt(20))

	_, err = store.GetOrInitAccount(context.Background(), account.Key{Kind: shared.ProviderKindSalon})
	assert.ErrorIs(t, err, account.ErrEmptyProviderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerStore_Apply(t *testing.T) {
	debit := &ledger.Mutation{
		Key:       testKey,
		Direction: ledger.DirectionDebit,
		Amount:    decimal.NewFromInt(2),
		Type:      "BOOKING_CONFIRMED",
	}

	t.Run("applied", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		store := newLedgerStore(newTestLogger(), mock, decimal.NewFromInt(20))

		mock.ExpectBegin()
		mock.ExpectExec(insertAccountSQL).WithArgs(anyArgs(10)...).WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mock.ExpectQuery(lockAccountSQL).WithArgs(testKey.ProviderID, testKey.Kind).WillReturnRows(accountRow("5", 2))
		mock.ExpectExec(updateAccountSQL).WithArgs(anyArgs(9)...).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		expectRecord(mock, 10)
		mock.ExpectCommit()

		result, err := store.Apply(context.Background(), debit)
		require.NoError(t, err)
		assert.True(t, result.Applied)
		assert.Equal(t, ledger.OutcomeApplied, result.Outcome)
		assert.True(t, decimal.NewFromInt(3).Equal(result.Balance()))
		assert.True(t, decimal.NewFromInt(-2).Equal(result.Transaction.Amount))
		assert.Equal(t, 3, result.Account.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient balance", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		store := newLedgerStore(newTestLogger(), mock, decimal.NewFromInt(20))

		mock.ExpectBegin()
		mock.ExpectExec(insertAccountSQL).WithArgs(anyArgs(10)...).WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mock.ExpectQuery(lockAccountSQL).WithArgs(testKey.ProviderID, testKey.Kind).WillReturnRows(accountRow("1", 2))
		mock.ExpectCommit()

		result, err := store.Apply(context.Background(), debit)
		require.NoError(t, err)
		assert.False(t, result.Applied)
		assert.Equal(t, ledger.OutcomeInsufficientBalance, result.Outcome)
		assert.True(t, decimal.NewFromInt(1).Equal(result.Balance()))
		assert.Nil(t, result.Transaction)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("version conflict rolls back", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		store := newLedgerStore(newTestLogger(), mock, decimal.NewFromInt(20))

		mock.ExpectBegin()
		mock.ExpectExec(insertAccountSQL).WithArgs(anyArgs(10)...).WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mock.ExpectQuery(lockAccountSQL).WithArgs(testKey.ProviderID, testKey.Kind).WillReturnRows(accountRow("5", 2))
		mock.ExpectExec(updateAccountSQL).WithArgs(anyArgs(9)...).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectRollback()

		_, err = store.Apply(context.Background(), debit)
		var conflict account.ErrConcurrentModification
		assert.ErrorAs(t, err, &conflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid mutation", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()
		store := newLedgerStore(newTestLogger(), mock, decimal.NewFromInt(20))

		_, err = store.Apply(context.Background(), &ledger.Mutation{Key: testKey, Direction: ledger.DirectionCredit, Amount: decimal.Zero, Type: shared.TransactionTypePurchase})
		assert.ErrorIs(t, err, account.ErrInvalidAmount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerStore_ListTransactions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newLedgerStore(newTestLogger(), mock, decimal.NewFromInt(20))

	columns := []string{"id", "provider_id", "provider_kind", "amount", "type", "reference_id", "balance_before", "balance_after", "metadata", "created_at"}
	mock.ExpectQuery(`SELECT .* FROM transactions`).
		WithArgs(testKey.ProviderID, testKey.Kind, 20, 40).
		WillReturnRows(pgxmock.NewRows(columns))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM transactions`).
		WithArgs(testKey.ProviderID, testKey.Kind).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(25)))

	txns, total, err := store.ListTransactions(context.Background(), testKey, 20, 40)
	require.NoError(t, err)
	assert.Empty(t, txns)
	assert.Equal(t, int64(25), total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

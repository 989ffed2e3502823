package postgres

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/provider-credit-ledger/internal/domain/account"
	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

var testKey = account.Key{ProviderID: "salon-42", Kind: shared.ProviderKindSalon}

func accountColumnNames() []string {
	return []string{"provider_id", "provider_kind", "balance", "total_earned", "total_spent", "last_monthly_grant_at", "version", "archived_at", "created_at", "updated_at"}
}

func accountRow(balance string, version int) *pgxmock.Rows {
	now := time.Now()
	b := decimal.RequireFromString(balance)
	return pgxmock.NewRows(accountColumnNames()).
		AddRow(testKey.ProviderID, testKey.Kind, b, b, decimal.Zero, (*time.Time)(nil), version, (*time.Time)(nil), now, now)
}

func TestAccountRepository_CreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AccountRepository{querier: mock, logger: newTestLogger()}
	acc, err := account.NewAccount(testKey, decimal.NewFromInt(20))
	require.NoError(t, err)

	query := `INSERT INTO accounts .* ON CONFLICT \(provider_id, provider_kind\) DO NOTHING`
	args := []interface{}{testKey.ProviderID, testKey.Kind, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), acc.Version, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()}

	t.Run("created", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs(args...).WillReturnResult(pgxmock.NewResult("INSERT", 1))

		created, err := repo.CreateIfAbsent(ctx, acc)
		assert.NoError(t, err)
		assert.True(t, created)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already exists", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs(args...).WillReturnResult(pgxmock.NewResult("INSERT", 0))

		created, err := repo.CreateIfAbsent(ctx, acc)
		assert.NoError(t, err)
		assert.False(t, created)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		expectedErr := errors.New("db error")
		mock.ExpectExec(query).WithArgs(args...).WillReturnError(expectedErr)

		_, err := repo.CreateIfAbsent(ctx, acc)
		assert.ErrorIs(t, err, expectedErr)
		assert.Contains(t, err.Error(), "failed to create account")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAccountRepository_GetByKey(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AccountRepository{querier: mock, logger: newTestLogger()}
	query := `SELECT provider_id, provider_kind, balance, .* FROM accounts WHERE provider_id = \$1 AND provider_kind = \$2`

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(testKey.ProviderID, testKey.Kind).WillReturnRows(accountRow("12.5", 3))

		acc, err := repo.GetByKey(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, testKey, acc.Key())
		assert.True(t, decimal.RequireFromString("12.5").Equal(acc.Balance))
		assert.Equal(t, 3, acc.Version)
		assert.Nil(t, acc.LastMonthlyGrantAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(testKey.ProviderID, testKey.Kind).WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetByKey(ctx, testKey)
		var notFound account.ErrAccountNotFound
		assert.ErrorAs(t, err, &notFound)
		assert.Equal(t, testKey, notFound.Key)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAccountRepository_Update(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AccountRepository{querier: mock, logger: newTestLogger()}
	acc, err := account.NewAccount(testKey, decimal.NewFromInt(20))
	require.NoError(t, err)
	require.NoError(t, acc.Debit(decimal.NewFromInt(1)))

	query := `UPDATE accounts SET balance = \$1, .* WHERE provider_id = \$7 AND provider_kind = \$8 AND version = \$9`
	args := []interface{}{pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), acc.Version, pgxmock.AnyArg(), testKey.ProviderID, testKey.Kind, acc.Version - 1}

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs(args...).WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, repo.Update(ctx, acc))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("version conflict", func(t *testing.T) {
		mock.ExpectExec(query).WithArgs(args...).WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.Update(ctx, acc)
		var conflict account.ErrConcurrentModification
		assert.ErrorAs(t, err, &conflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAccountRepository_LockForUpdate(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AccountRepository{querier: mock, logger: newTestLogger()}

	mock.ExpectQuery(`SELECT .* FROM accounts WHERE provider_id = \$1 AND provider_kind = \$2 FOR UPDATE`).
		WithArgs(testKey.ProviderID, testKey.Kind).
		WillReturnRows(accountRow("1", 7))

	acc, err := repo.LockForUpdate(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, 7, acc.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_Archive(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AccountRepository{querier: mock, logger: newTestLogger()}
	query := `UPDATE accounts SET archived_at = COALESCE\(archived_at, NOW\(\)\)`

	mock.ExpectExec(query).WithArgs(testKey.ProviderID, testKey.Kind).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	assert.NoError(t, repo.Archive(ctx, testKey))

	mock.ExpectExec(query).WithArgs(testKey.ProviderID, testKey.Kind).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	var notFound account.ErrAccountNotFound
	assert.ErrorAs(t, repo.Archive(ctx, testKey), &notFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepository_ListActiveProviderIDs(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &AccountRepository{querier: mock, logger: newTestLogger()}

	mock.ExpectQuery(`SELECT provider_id FROM accounts WHERE provider_kind = \$1 AND archived_at IS NULL AND provider_id > \$2`).
		WithArgs(shared.ProviderKindTherapist, "t-1", 2).
		WillReturnRows(pgxmock.NewRows([]string{"provider_id"}).AddRow("t-2").AddRow("t-3"))

	ids, err := repo.ListActiveProviderIDs(ctx, shared.ProviderKindTherapist, "t-1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"t-2", "t-3"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

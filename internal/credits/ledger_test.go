package credits

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/provider-credit-ledger/internal/data/memory"
	"github.com/provider-credit-ledger/internal/domain/account"
	"github.com/provider-credit-ledger/internal/domain/ledger"
	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var signupBonus = decimal.RequireFromString("20.0")

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestLedger() (*Ledger, *memory.Store) {
	store := memory.New(signupBonus)
	return NewLedger(newTestLogger(), store), store
}

var salon = account.Key{ProviderID: "salon-42", Kind: shared.ProviderKindSalon}

func TestLedger_GetOrInitAccount(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	acc, err := l.GetOrInitAccount(ctx, salon)
	require.NoError(t, err)
	assert.True(t, signupBonus.Equal(acc.Balance))

	_, err = l.GetOrInitAccount(ctx, account.Key{ProviderID: "x", Kind: "SPA"})
	assert.ErrorIs(t, err, shared.ErrInvalidProviderKind)
}

func TestLedger_Credit(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	balance, err := l.Credit(ctx, salon, decimal.NewFromInt(100), shared.TransactionTypePurchase, "purchase-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "120", balance.String())

	_, err = l.Credit(ctx, salon, decimal.NewFromInt(5), shared.TransactionTypeMonthlyBonus, "", nil)
	assert.ErrorIs(t, err, ErrReservedType)

	_, err = l.Credit(ctx, salon, decimal.Zero, shared.TransactionTypePurchase, "", nil)
	assert.ErrorIs(t, err, account.ErrInvalidAmount)
}

func TestLedger_Debit(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()
	bookingType := shared.InteractionBookingConfirmed.TransactionType()

	result, err := l.Debit(ctx, salon, decimal.RequireFromString("19"), bookingType, "booking-1", nil)
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, ledger.OutcomeApplied, result.Outcome)
	assert.Equal(t, "1", result.NewBalance.String())

	result, err = l.Debit(ctx, salon, decimal.RequireFromString("2"), bookingType, "booking-2", nil)
	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Equal(t, ledger.OutcomeInsufficientBalance, result.Outcome)
	assert.Equal(t, "1", result.NewBalance.String())

	_, err = l.Debit(ctx, salon, decimal.NewFromInt(1), shared.TransactionTypeInitialBonus, "", nil)
	assert.ErrorIs(t, err, ErrReservedType)

	_, err = l.Debit(ctx, salon, decimal.NewFromInt(1), shared.TransactionTypePurchase, "purchase-9", nil)
	assert.ErrorIs(t, err, ErrReservedType)
}

func TestLedger_GrantMonthly(t *testing.T) {
	l, store := newTestLedger()
	ctx := context.Background()
	grant := decimal.RequireFromString("5.0")
	march := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	granted, balance, err := l.GrantMonthly(ctx, salon, grant, march)
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Equal(t, "25", balance.String())

	granted, balance, err = l.GrantMonthly(ctx, salon, grant, march.Add(20*24*time.Hour))
	require.NoError(t, err)
	assert.False(t, granted)
	assert.Equal(t, "25", balance.String())

	granted, balance, err = l.GrantMonthly(ctx, salon, grant, march.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Equal(t, "30", balance.String())

	txns, total, err := store.ListTransactions(ctx, salon, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, shared.TransactionTypeMonthlyBonus, txns[0].Type)
	assert.Equal(t, "2026-04", txns[0].ReferenceID)
}

func TestLedger_GrantMonthly_ConcurrentRuns(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()
	now := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	var mu sync.Mutex
	grants := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			granted, _, err := l.GrantMonthly(ctx, salon, decimal.RequireFromString("5.0"), now)
			assert.NoError(t, err)
			if granted {
				mu.Lock()
				grants++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, grants)
	acc, err := l.GetOrInitAccount(ctx, salon)
	require.NoError(t, err)
	assert.Equal(t, "25", acc.Balance.String())
}

func TestLedger_ListTransactions(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := l.Debit(ctx, salon, decimal.RequireFromString("0.5"), shared.InteractionProfileView.TransactionType(), "user", nil)
		require.NoError(t, err)
	}

	page, err := l.ListTransactions(ctx, salon, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.TotalCount)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.Limit)
	assert.Equal(t, 3, page.TotalPages())
	require.Len(t, page.Items, 2)

	last, err := l.ListTransactions(ctx, salon, 3, 2)
	require.NoError(t, err)
	require.Len(t, last.Items, 1)
	assert.Equal(t, shared.TransactionTypeInitialBonus, last.Items[0].Type)

	clamped, err := l.ListTransactions(ctx, salon, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, clamped.Page)
	assert.Equal(t, MaxPageLimit, clamped.Limit)
	assert.Len(t, clamped.Items, 5)

	defaulted, err := l.ListTransactions(ctx, salon, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultPageLimit, defaulted.Limit)
	assert.Len(t, defaulted.Items, 5)

	_, err = l.ListTransactions(ctx, account.Key{Kind: shared.ProviderKindSalon}, 1, 10)
	assert.ErrorIs(t, err, account.ErrEmptyProviderID)
}

func TestLedger_Archive(t *testing.T) {
	l, _ := newTestLedger()
	ctx := context.Background()

	_, err := l.GetOrInitAccount(ctx, salon)
	require.NoError(t, err)
	require.NoError(t, l.Archive(ctx, salon))

	ids, err := l.ListActiveProviders(ctx, shared.ProviderKindSalon, "", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	err = l.Archive(ctx, account.Key{ProviderID: "ghost", Kind: shared.ProviderKindSalon})
	assert.ErrorAs(t, err, &account.ErrAccountNotFound{})
}

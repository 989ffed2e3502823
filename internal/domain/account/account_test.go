package account

import (
	"testing"
	"time"

	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNewAccount(t *testing.T) {
	t.Run("SuccessfulCreation", func(t *testing.T) {
		key := Key{ProviderID: "prov-1", Kind: shared.ProviderKindSalon}

		beforeCreation := time.Now()
		acc, err := NewAccount(key, dec("20"))
		afterCreation := time.Now()

		require.NoError(t, err)
		require.NotNil(t, acc)

		assert.Equal(t, key, acc.Key())
		assert.True(t, dec("20").Equal(acc.Balance))
		assert.True(t, dec("20").Equal(acc.TotalEarned))
		assert.True(t, acc.TotalSpent.IsZero())
		assert.Nil(t, acc.LastMonthlyGrantAt)
		assert.Equal(t, 1, acc.Version, "Initial version should be 1")
		assert.WithinDuration(t, beforeCreation, acc.CreatedAt, afterCreation.Sub(beforeCreation)+time.Millisecond)
	})

	t.Run("InvalidKey", func(t *testing.T) {
		_, err := NewAccount(Key{ProviderID: "", Kind: shared.ProviderKindSalon}, dec("20"))
		assert.ErrorIs(t, err, ErrEmptyProviderID)

		_, err = NewAccount(Key{ProviderID: "p", Kind: "BARBER"}, dec("20"))
		assert.ErrorIs(t, err, shared.ErrInvalidProviderKind)
	})

	t.Run("NegativeBonus", func(t *testing.T) {
		_, err := NewAccount(Key{ProviderID: "p", Kind: shared.ProviderKindTherapist}, dec("-1"))
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("SubCentBonus", func(t *testing.T) {
		_, err := NewAccount(Key{ProviderID: "p", Kind: shared.ProviderKindTherapist}, dec("20.005"))
		assert.ErrorIs(t, err, ErrAmountPrecision)
	})
}

func TestValidPrecision(t *testing.T) {
	testCases := []struct {
		amount string
		valid  bool
	}{
		{"20", true},
		{"0.5", true},
		{"0.25", true},
		{"1.500", true},
		{"0.125", false},
		{"19.875", false},
		{"-0.001", false},
	}

	for _, tc := range testCases {
		t.Run(tc.amount, func(t *testing.T) {
			assert.Equal(t, tc.valid, ValidPrecision(dec(tc.amount)))
		})
	}
}

func TestAccount_Credit(t *testing.T) {
	acc := &Account{Balance: dec("1.5"), TotalEarned: dec("20"), Version: 3}

	require.NoError(t, acc.Credit(dec("5")))
	assert.True(t, dec("6.5").Equal(acc.Balance))
	assert.True(t, dec("25").Equal(acc.TotalEarned))
	assert.Equal(t, 4, acc.Version)

	assert.ErrorIs(t, acc.Credit(decimal.Zero), ErrInvalidAmount)
	assert.ErrorIs(t, acc.Credit(dec("-2")), ErrInvalidAmount)
}

func TestAccount_Debit(t *testing.T) {
	t.Run("SuccessfulDebit", func(t *testing.T) {
		acc := &Account{Balance: dec("20"), TotalSpent: decimal.Zero, Version: 1}

		require.NoError(t, acc.Debit(dec("0.5")))
		assert.True(t, dec("19.5").Equal(acc.Balance))
		assert.True(t, dec("0.5").Equal(acc.TotalSpent))
		assert.Equal(t, 2, acc.Version)
	})

	t.Run("ExactBalance", func(t *testing.T) {
		acc := &Account{Balance: dec("1.0"), TotalSpent: decimal.Zero}
		require.NoError(t, acc.Debit(dec("1")))
		assert.True(t, acc.Balance.IsZero())
	})

	t.Run("InsufficientCredits", func(t *testing.T) {
		acc := &Account{Balance: dec("1.0"), TotalSpent: decimal.Zero, Version: 5}
		err := acc.Debit(dec("2.0"))
		assert.ErrorIs(t, err, ErrInsufficientCredits)
		assert.True(t, dec("1").Equal(acc.Balance), "balance must be unchanged")
		assert.Equal(t, 5, acc.Version)
	})
}

func TestAccount_GrantedInPeriod(t *testing.T) {
	acc := &Account{}
	now := time.Date(2026, time.March, 1, 0, 0, 5, 0, time.UTC)
	assert.False(t, acc.GrantedInPeriod(now))

	acc.MarkMonthlyGrant(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC))
	assert.True(t, acc.GrantedInPeriod(now))
	assert.False(t, acc.GrantedInPeriod(time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, acc.GrantedInPeriod(time.Date(2027, time.March, 1, 0, 0, 0, 0, time.UTC)), "same month of another year is a new period")
}

package account

import (
	"errors"
	"time"

	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Common errors
var (
	ErrInsufficientCredits = errors.New("insufficient credits for debit")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrEmptyProviderID     = errors.New("provider id cannot be empty")
	ErrAmountPrecision     = errors.New("amount has more than 2 decimal places")
)

// AmountScale is the number of decimal places balances and amounts are stored with
const AmountScale = 2

// ValidPrecision reports whether d is representable at AmountScale without rounding
func ValidPrecision(d decimal.Decimal) bool {
	return d.Round(AmountScale).Equal(d)
}

// Key identifies an account. A provider holds one account per provider kind.
type Key struct {
	ProviderID string              `json:"provider_id"`
	Kind       shared.ProviderKind `json:"provider_kind"`
}

func (k Key) String() string {
	return string(k.Kind) + ":" + k.ProviderID
}

// Validate checks that the key addresses a real provider account
func (k Key) Validate() error {
	if k.ProviderID == "" {
		return ErrEmptyProviderID
	}
	if !k.Kind.Valid() {
		return shared.ErrInvalidProviderKind
	}
	return nil
}

// Account represents a provider's credit balance
type Account struct {
	ProviderID         string              `json:"provider_id"`
	ProviderKind       shared.ProviderKind `json:"provider_kind"`
	Balance            decimal.Decimal     `json:"balance"`
	TotalEarned        decimal.Decimal     `json:"total_earned"`
	TotalSpent         decimal.Decimal     `json:"total_spent"`
	LastMonthlyGrantAt *time.Time          `json:"last_monthly_grant_at,omitempty"`
	Version            int                 `json:"version"` // For optimistic locking
	ArchivedAt         *time.Time          `json:"archived_at,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// NewAccount opens an account holding the signup bonus
func NewAccount(key Key, signupBonus decimal.Decimal) (*Account, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if signupBonus.IsNegative() {
		return nil, ErrInvalidAmount
	}
	if !ValidPrecision(signupBonus) {
		return nil, ErrAmountPrecision
	}

	now := time.Now().UTC()
	return &Account{
		ProviderID:   key.ProviderID,
		ProviderKind: key.Kind,
		Balance:      signupBonus,
		TotalEarned:  signupBonus,
		TotalSpent:   decimal.Zero,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func (a *Account) Key() Key {
	return Key{ProviderID: a.ProviderID, Kind: a.ProviderKind}
}

// Credit adds the specified amount to the balance and lifetime earnings
func (a *Account) Credit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	a.Balance = a.Balance.Add(amount)
	a.TotalEarned = a.TotalEarned.Add(amount)
	a.touch()
	return nil
}

// Debit subtracts the specified amount, refusing to take the balance below zero
func (a *Account) Debit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	if !a.CanDebit(amount) {
		return ErrInsufficientCredits
	}

	a.Balance = a.Balance.Sub(amount)
	a.TotalSpent = a.TotalSpent.Add(amount)
	a.touch()
	return nil
}

// CanDebit checks if the balance covers the amount
func (a *Account) CanDebit(amount decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(amount)
}

// GrantedInPeriod reports whether the monthly grant was already paid in the
// calendar month (UTC) containing t.
func (a *Account) GrantedInPeriod(t time.Time) bool {
	if a.LastMonthlyGrantAt == nil {
		return false
	}
	last := a.LastMonthlyGrantAt.UTC()
	now := t.UTC()
	return last.Year() == now.Year() && last.Month() == now.Month()
}

// MarkMonthlyGrant stamps the grant time used as the monthly idempotency key
func (a *Account) MarkMonthlyGrant(t time.Time) {
	granted := t.UTC()
	a.LastMonthlyGrantAt = &granted
}

func (a *Account) IsArchived() bool {
	return a.ArchivedAt != nil
}

func (a *Account) touch() {
	a.UpdatedAt = time.Now().UTC()
	a.Version++
}

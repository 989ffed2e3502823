package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/provider-credit-ledger/internal/domain/account"
	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

var ErrInvalidDirection = errors.New("mutation direction must be credit or debit")

// Direction tells whether a mutation adds to or takes from the balance
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// Outcome explains what happened to a mutation
type Outcome string

const (
	OutcomeApplied             Outcome = "applied"
	OutcomeInsufficientBalance Outcome = "insufficient_balance"
	OutcomeAlreadyGranted      Outcome = "already_granted"
)

// Mutation is a single balance change applied atomically with its transaction row
type Mutation struct {
	Key         account.Key
	Direction   Direction
	Amount      decimal.Decimal // Always positive; Direction carries the sign
	Type        shared.TransactionType
	ReferenceID string
	Metadata    map[string]string

	// GrantPeriod turns the mutation into a monthly grant: it only applies when the
	// account has not been granted in the same calendar month, and stamps the grant time.
	GrantPeriod *time.Time
}

// Result reports the outcome of a mutation and the account state after it
type Result struct {
	Applied     bool
	Outcome     Outcome
	Account     *account.Account
	Transaction *Transaction
}

// Balance is the balance after the mutation (unchanged when not applied)
func (r *Result) Balance() decimal.Decimal {
	if r == nil || r.Account == nil {
		return decimal.Zero
	}
	return r.Account.Balance
}

func (m *Mutation) Validate() error {
	if err := m.Key.Validate(); err != nil {
		return err
	}
	if m.Direction != DirectionCredit && m.Direction != DirectionDebit {
		return ErrInvalidDirection
	}
	if !m.Amount.IsPositive() {
		return account.ErrInvalidAmount
	}
	if !account.ValidPrecision(m.Amount) {
		return account.ErrAmountPrecision
	}
	if m.Type == "" {
		return shared.ErrInvalidTransactionType
	}
	return nil
}

// ApplyTo mutates acc in place. It returns the transaction to append when the
// mutation applies, or a nil transaction and the reason it did not.
// Callers must hold the account lock.
func (m *Mutation) ApplyTo(acc *account.Account, now time.Time) (*Transaction, Outcome, error) {
	if m.GrantPeriod != nil && acc.GrantedInPeriod(*m.GrantPeriod) {
		return nil, OutcomeAlreadyGranted, nil
	}

	before := acc.Balance
	signed := m.Amount

	switch m.Direction {
	case DirectionCredit:
		if err := acc.Credit(m.Amount); err != nil {
			return nil, "", err
		}
	case DirectionDebit:
		if err := acc.Debit(m.Amount); err != nil {
			if errors.Is(err, account.ErrInsufficientCredits) {
				return nil, OutcomeInsufficientBalance, nil
			}
			return nil, "", err
		}
		signed = m.Amount.Neg()
	default:
		return nil, "", ErrInvalidDirection
	}

	if m.GrantPeriod != nil {
		acc.MarkMonthlyGrant(*m.GrantPeriod)
	}

	return &Transaction{
		ID:            uuid.New(),
		ProviderID:    acc.ProviderID,
		ProviderKind:  acc.ProviderKind,
		Amount:        signed,
		Type:          m.Type,
		ReferenceID:   m.ReferenceID,
		BalanceBefore: before,
		BalanceAfter:  acc.Balance,
		Metadata:      m.Metadata,
		CreatedAt:     now.UTC(),
	}, OutcomeApplied, nil
}

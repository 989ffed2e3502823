package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/provider-credit-ledger/internal/domain/account"
	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Transaction is an immutable entry in a provider's credit log. Amount is signed:
// negative amounts are debits.
type Transaction struct {
	ID            uuid.UUID              `json:"id"`
	ProviderID    string                 `json:"provider_id"`
	ProviderKind  shared.ProviderKind    `json:"provider_kind"`
	Amount        decimal.Decimal        `json:"amount"`
	Type          shared.TransactionType `json:"type"`
	ReferenceID   string                 `json:"reference_id,omitempty"`
	BalanceBefore decimal.Decimal        `json:"balance_before"`
	BalanceAfter  decimal.Decimal        `json:"balance_after"`
	Metadata      map[string]string      `json:"metadata,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

func (t *Transaction) Key() account.Key {
	return account.Key{ProviderID: t.ProviderID, Kind: t.ProviderKind}
}

// NewInitialBonusTransaction records the signup bonus a freshly opened account starts with
func NewInitialBonusTransaction(acc *account.Account) *Transaction {
	return &Transaction{
		ID:            uuid.New(),
		ProviderID:    acc.ProviderID,
		ProviderKind:  acc.ProviderKind,
		Amount:        acc.Balance,
		Type:          shared.TransactionTypeInitialBonus,
		BalanceBefore: decimal.Zero,
		BalanceAfter:  acc.Balance,
		CreatedAt:     acc.CreatedAt,
	}
}

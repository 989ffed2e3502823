package purchase

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/provider-credit-ledger/internal/domain/account"
	"github.com/provider-credit-ledger/internal/domain/catalog"
	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPaymentMethod = errors.New("payment method must be card or mobile_money_<network>")
	ErrEmptyTxRef           = errors.New("gateway tx ref cannot be empty")
)

// Status of a purchase. PENDING is the only non-terminal state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// PaymentMethod is "card" or "mobile_money_<network>"
type PaymentMethod string

const PaymentMethodCard PaymentMethod = "card"

const mobileMoneyPrefix = "mobile_money_"

func (m PaymentMethod) IsMobileMoney() bool {
	return strings.HasPrefix(string(m), mobileMoneyPrefix) && len(m) > len(mobileMoneyPrefix)
}

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCard || m.IsMobileMoney()
}

// Purchase tracks a pack buy from initiation through gateway settlement
type Purchase struct {
	ID                   uuid.UUID           `json:"id"`
	ProviderID           string              `json:"provider_id"`
	ProviderKind         shared.ProviderKind `json:"provider_kind"`
	PackID               uuid.UUID           `json:"pack_id"`
	CreditsAmount        decimal.Decimal     `json:"credits_amount"`
	PricePaid            decimal.Decimal     `json:"price_paid"`
	Currency             string              `json:"currency"`
	PaymentMethod        PaymentMethod       `json:"payment_method"`
	GatewayTxRef         string              `json:"gateway_tx_ref"`
	GatewayTransactionID *string             `json:"gateway_transaction_id,omitempty"`
	Status               Status              `json:"status"`
	PaymentData          json.RawMessage     `json:"payment_data,omitempty"`
	CompletedAt          *time.Time          `json:"completed_at,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// NewPurchase creates a PENDING purchase. The credited amount is snapshotted from
// the pack now and never re-derived, so later pack edits do not affect it.
func NewPurchase(key account.Key, pack *catalog.CreditPack, currency string, method PaymentMethod, txRef string) (*Purchase, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if !method.Valid() {
		return nil, ErrInvalidPaymentMethod
	}
	if txRef == "" {
		return nil, ErrEmptyTxRef
	}

	now := time.Now().UTC()
	return &Purchase{
		ID:            uuid.New(),
		ProviderID:    key.ProviderID,
		ProviderKind:  key.Kind,
		PackID:        pack.ID,
		CreditsAmount: pack.TotalCredits(),
		PricePaid:     pack.Price,
		Currency:      currency,
		PaymentMethod: method,
		GatewayTxRef:  txRef,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (p *Purchase) Key() account.Key {
	return account.Key{ProviderID: p.ProviderID, Kind: p.ProviderKind}
}

// NewTxRef generates the merchant reference sent to the gateway
func NewTxRef() string {
	return "CRD-" + uuid.NewString()
}

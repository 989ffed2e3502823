package purchase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/provider-credit-ledger/internal/domain/ledger"
)

// Store persists purchases. Complete and Fail are conditional transitions out of
// PENDING; only the caller that wins the transition observes true.
type Store interface {
	CreatePurchase(ctx context.Context, p *Purchase) error
	GetPurchaseByTxRef(ctx context.Context, txRef string) (*Purchase, error)
	GetPurchaseByGatewayTransactionID(ctx context.Context, gatewayTransactionID string) (*Purchase, error)

	// AttachGatewayTransactionID records the gateway id on a PENDING purchase that has none yet
	AttachGatewayTransactionID(ctx context.Context, id uuid.UUID, gatewayTransactionID string) error

	// CompletePurchase moves PENDING to COMPLETED and applies credit in the same
	// atomic unit. It returns false and a nil result when the purchase was not PENDING.
	CompletePurchase(ctx context.Context, id uuid.UUID, paymentData json.RawMessage, credit *ledger.Mutation) (bool, *ledger.Result, error)
	FailPurchase(ctx context.Context, id uuid.UUID, paymentData json.RawMessage) (bool, error)

	// ListStalePendingPurchases returns PENDING purchases created before olderThan, oldest first
	ListStalePendingPurchases(ctx context.Context, olderThan time.Time, limit int) ([]*Purchase, error)
}

// ErrPurchaseNotFound indicates no purchase matches the reference
type ErrPurchaseNotFound struct {
	Reference string
}

func (e ErrPurchaseNotFound) Error() string {
	return "purchase not found: " + e.Reference
}

// Is matches any ErrPurchaseNotFound when the target carries no reference
func (e ErrPurchaseNotFound) Is(target error) bool {
	t, ok := target.(ErrPurchaseNotFound)
	if !ok {
		return false
	}
	if t.Reference == "" {
		return true
	}
	return e.Reference == t.Reference
}

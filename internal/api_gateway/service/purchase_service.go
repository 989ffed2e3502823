package service

import (
	"context"

	"github.com/provider-credit-ledger/internal/domain/catalog"
	"github.com/provider-credit-ledger/internal/payments"
)

// PurchaseServiceImpl implements the PurchaseService interface on top of the
// payment reconciler
type PurchaseServiceImpl struct {
	catalog    catalog.Repository
	reconciler *payments.Reconciler
}

// NewPurchaseService creates a new purchase service
func NewPurchaseService(catalog catalog.Repository, reconciler *payments.Reconciler) PurchaseService {
	return &PurchaseServiceImpl{
		catalog:    catalog,
		reconciler: reconciler,
	}
}

// ListPacks returns the active packs in display order
func (s *PurchaseServiceImpl) ListPacks(ctx context.Context) ([]*catalog.CreditPack, error) {
	return s.catalog.ListActivePacks(ctx)
}

func (s *PurchaseServiceImpl) InitiatePurchase(ctx context.Context, req payments.InitiateRequest) (*payments.InitiateResult, error) {
	return s.reconciler.Initiate(ctx, req)
}

func (s *PurchaseServiceImpl) VerifyPurchase(ctx context.Context, externalID string) (*payments.VerifyResult, error) {
	return s.reconciler.Verify(ctx, externalID)
}

func (s *PurchaseServiceImpl) HandleWebhook(ctx context.Context, signature string, body []byte) (*payments.VerifyResult, error) {
	return s.reconciler.HandleWebhook(ctx, signature, body)
}

package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/provider-credit-ledger/internal/domain/purchase"
)

const expiryReason = "pending_timeout"

// SweepSummary counts what one sweep did to the stale purchases it found
type SweepSummary struct {
	Checked   int
	Completed int
	Failed    int
	Expired   int
	Errors    int
}

// PurchaseSweeper settles purchases left PENDING past their TTL. Each one is
// verified with the gateway first; whatever is still pending afterwards is
// failed. Gateway outages leave the purchase for the next sweep.
type PurchaseSweeper struct {
	reconciler *Reconciler
	store      purchase.Store
	ttl        time.Duration
	batchSize  int
	logger     *slog.Logger
}

func NewPurchaseSweeper(logger *slog.Logger, reconciler *Reconciler, store purchase.Store, ttl time.Duration, batchSize int) *PurchaseSweeper {
	return &PurchaseSweeper{
		reconciler: reconciler,
		store:      store,
		ttl:        ttl,
		batchSize:  batchSize,
		logger:     logger,
	}
}

func (s *PurchaseSweeper) Name() string {
	return "purchase_sweep"
}

func (s *PurchaseSweeper) Run(ctx context.Context, now time.Time) (SweepSummary, error) {
	var summary SweepSummary

	stale, err := s.store.ListStalePendingPurchases(ctx, now.Add(-s.ttl), s.batchSize)
	if err != nil {
		return summary, fmt.Errorf("failed to list stale purchases: %w", err)
	}

	for _, p := range stale {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Checked++
		s.sweepOne(ctx, p, &summary)
	}

	if summary.Checked > 0 {
		s.logger.Info("Swept stale purchases",
			"checked", summary.Checked,
			"completed", summary.Completed,
			"failed", summary.Failed,
			"expired", summary.Expired,
			"errors", summary.Errors,
		)
	}
	return summary, nil
}

func (s *PurchaseSweeper) sweepOne(ctx context.Context, p *purchase.Purchase, summary *SweepSummary) {
	logger := s.logger.With("purchase_id", p.ID.String(), "tx_ref", p.GatewayTxRef)

	reference := p.GatewayTxRef
	if p.GatewayTransactionID != nil {
		reference = *p.GatewayTransactionID
	}

	result, err := s.reconciler.Verify(ctx, reference)
	switch {
	case errors.Is(err, ErrTransactionUnknown):
		// The gateway never saw a payment for this purchase
	case err != nil:
		logger.Warn("Could not verify stale purchase, leaving it for the next sweep", "error", err)
		summary.Errors++
		return
	default:
		switch result.Outcome {
		case OutcomeCompleted, OutcomeAlreadyCompleted:
			summary.Completed++
			return
		case OutcomeFailed, OutcomeAlreadyFailed:
			summary.Failed++
			return
		case OutcomeRequiresReview:
			return
		}
	}

	expired, err := s.reconciler.ExpirePurchase(ctx, p, expiryReason)
	if err != nil {
		logger.Error("Failed to expire stale purchase", "error", err)
		summary.Errors++
		return
	}
	if expired {
		logger.Info("Expired purchase still pending after TTL", "created_at", p.CreatedAt)
		summary.Expired++
	}
}

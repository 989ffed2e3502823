package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/provider-credit-ledger/internal/domain/activity"
	"github.com/provider-credit-ledger/internal/domain/outbox"
	"github.com/provider-credit-ledger/internal/domain/shared"
)

// ErrPoisonMessage marks an outbox payload that can never be projected
var ErrPoisonMessage = errors.New("outbox payload cannot be decoded")

// ActivityPublisher projects outbox messages into the activity feed
type ActivityPublisher interface {
	Publish(ctx context.Context, message *outbox.Message) error
}

type ActivityPublisherImpl struct {
	outboxRepo   outbox.Repository
	activityRepo activity.Repository
	logger       *slog.Logger
	now          func() time.Time
}

func NewActivityPublisher(
	outboxRepo outbox.Repository,
	activityRepo activity.Repository,
	logger *slog.Logger,
) ActivityPublisher {
	return &ActivityPublisherImpl{
		outboxRepo:   outboxRepo,
		activityRepo: activityRepo,
		logger:       logger,
		now:          time.Now,
	}
}

// Publish upserts the transaction into the activity store and marks the message
// PROCESSED. The upsert is keyed by transaction id, so a message published twice
// (for example after a crash between the two steps) still yields one entry.
func (p *ActivityPublisherImpl) Publish(ctx context.Context, message *outbox.Message) error {
	logger := p.logger.With(
		"outbox_id", message.ID,
		"transaction_id", message.TransactionID.String(),
		"provider_id", message.ProviderID,
		"provider_kind", message.ProviderKind,
	)

	txn, err := message.GetTransaction()
	if err != nil {
		logger.Error("Failed to unmarshal transaction from outbox payload", "error", err)
		if updateErr := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusFailedToPublish); updateErr != nil {
			logger.Error("Also failed to update outbox status to FAILED_TO_PUBLISH after unmarshal error", "update_error", updateErr)
		}
		return fmt.Errorf("%w: outbox %d: %v", ErrPoisonMessage, message.ID, err)
	}

	if err := p.activityRepo.Record(ctx, activity.NewEntry(txn, p.now())); err != nil {
		logger.Error("Failed to record activity entry", "error", err)
		return fmt.Errorf("failed to record activity for transaction %s: %w", txn.ID, err)
	}

	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		logger.Error("Failed to update outbox message status to PROCESSED", "error", err)
		return fmt.Errorf("activity for %s recorded, but failed to mark outbox %d as PROCESSED: %w", txn.ID, message.ID, err)
	}

	logger.Debug("Projected transaction into activity feed", "type", txn.Type)
	return nil
}

package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/provider-credit-ledger/internal/credits"
	"github.com/provider-credit-ledger/internal/domain/account"
	"github.com/provider-credit-ledger/internal/domain/activity"
	"github.com/provider-credit-ledger/internal/domain/events"
	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/provider-credit-ledger/internal/platform/messaging/producers"
)

// MaxActivityLimit caps the number of activity entries returned per request
const MaxActivityLimit = 500

// CreditServiceImpl implements the CreditService interface
type CreditServiceImpl struct {
	ledger       *credits.Ledger
	activityRepo activity.Repository
	publisher    producers.EventPublisher
	logger       *slog.Logger
}

// NewCreditService creates a new credit service
func NewCreditService(logger *slog.Logger, ledger *credits.Ledger, activityRepo activity.Repository, publisher producers.EventPublisher) CreditService {
	return &CreditServiceImpl{
		ledger:       ledger,
		activityRepo: activityRepo,
		publisher:    publisher,
		logger:       logger,
	}
}

func (s *CreditServiceImpl) GetBalance(ctx context.Context, key account.Key) (*account.Account, error) {
	return s.ledger.GetOrInitAccount(ctx, key)
}

func (s *CreditServiceImpl) ListTransactions(ctx context.Context, key account.Key, page, perPage int) (*credits.Page, error) {
	return s.ledger.ListTransactions(ctx, key, page, perPage)
}

func (s *CreditServiceImpl) GetActivity(ctx context.Context, key account.Key, window activity.Range, limit int) ([]*activity.Entry, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := window.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxActivityLimit {
		limit = MaxActivityLimit
	}

	return s.activityRepo.GetByProvider(ctx, key, window, limit)
}

func (s *CreditServiceImpl) TrackInteraction(ctx context.Context, event *events.InteractionTracked) error {
	if err := event.Provider().Validate(); err != nil {
		return err
	}
	event.InteractionType = event.InteractionType.Normalize()
	if event.InteractionType == "" {
		return shared.ErrInvalidInteractionType
	}
	if event.InteractionType.TransactionType().IsReserved() {
		return shared.ErrReservedInteractionType
	}
	if event.UserID == "" {
		return fmt.Errorf("%w: userId", events.ErrMissingField)
	}

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("Failed to publish interaction event",
			"provider_id", event.ProviderID,
			"provider_kind", event.ProviderKind,
			"interaction_type", event.InteractionType,
			"error", err,
		)
		return err
	}

	s.logger.Info("Interaction event published",
		"provider_id", event.ProviderID,
		"provider_kind", event.ProviderKind,
		"interaction_type", event.InteractionType,
		"reference_id", event.ReferenceID,
	)
	return nil
}

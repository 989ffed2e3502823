package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/provider-credit-ledger/internal/credit_processor/dispatcher"
	"github.com/provider-credit-ledger/internal/credits"
	"github.com/provider-credit-ledger/internal/domain/account"
	"github.com/provider-credit-ledger/internal/domain/events"
	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/provider-credit-ledger/internal/platform/messaging/producers"
	"github.com/provider-credit-ledger/internal/platform/persistence"
)

// InteractionEventHandler handles provider interaction events from Kafka
type InteractionEventHandler struct {
	dispatcher dispatcher.Service
	producer   producers.DeadLetterPublisher
	logger     *slog.Logger
}

func NewInteractionEventHandler(
	logger *slog.Logger,
	dispatcher dispatcher.Service,
	producer producers.DeadLetterPublisher,
) *InteractionEventHandler {
	return &InteractionEventHandler{
		dispatcher: dispatcher,
		producer:   producer,
		logger:     logger,
	}
}

// HandleMessage decodes and dispatches one message. A nil return commits the
// offset; an error leaves it uncommitted so the consumer retries it.
//
// Delivery is at-least-once and events are not deduplicated on EventID. A
// debit that commits in Postgres but whose offset commit is lost (crash,
// rebalance, or ctx cancelled while the worker finishes) is applied again on
// redelivery. Only PURCHASE references are unique in the ledger.
func (h *InteractionEventHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	envelope, event, err := events.Decode(value)
	if err != nil {
		h.logger.Error("Failed to decode interaction event", "error", err, "message_key", string(key))
		return h.deadLetter(ctx, key, value, "Failed to decode interaction event", err)
	}

	provider := event.Provider()
	logger := h.logger.With(
		"event_id", envelope.EventID,
		"kind", envelope.Kind,
		"provider_id", provider.ProviderID,
		"provider_kind", provider.Kind,
	)

	logger.Debug("Received interaction event")

	outcome, err := h.dispatcher.Dispatch(ctx, event)
	if err != nil {
		if isPermanent(err) {
			logger.Error("Interaction event can never be processed", "error", err)
			return h.deadLetter(ctx, key, value, "Interaction event rejected", err)
		}
		logger.Error("Failed to dispatch interaction event", "error", err)
		return fmt.Errorf("dispatching event %s failed: %w", envelope.EventID, err)
	}

	logger.Info("Processed interaction event", "outcome", outcome)
	return nil
}

// deadLetter parks an unprocessable message. When the DLQ is unavailable the
// original error is returned so the message is retried rather than dropped.
func (h *InteractionEventHandler) deadLetter(ctx context.Context, key, value []byte, message string, cause error) error {
	reason := fmt.Sprintf("%s: %s", message, cause.Error())
	if h.producer == nil {
		return fmt.Errorf("%s: %w", message, cause)
	}

	if err := h.producer.PublishToDLQ(ctx, string(key), value, reason); err != nil {
		h.logger.Error("Failed to publish message to DLQ",
			"dlq_error", err,
			"original_error", cause,
			"message_key", string(key),
		)
		return fmt.Errorf("%s: %w", message, cause)
	}

	h.logger.Info("Published unprocessable message to DLQ", "message_key", string(key), "reason", reason)
	return nil
}

// isPermanent reports errors that retrying cannot fix. A unique violation means
// the same reference was already written, so replaying it fails the same way.
func isPermanent(err error) bool {
	return errors.Is(err, dispatcher.ErrUnhandledKind) ||
		errors.Is(err, shared.ErrInvalidProviderKind) ||
		errors.Is(err, shared.ErrInvalidTransactionType) ||
		errors.Is(err, shared.ErrReservedInteractionType) ||
		errors.Is(err, account.ErrEmptyProviderID) ||
		errors.Is(err, account.ErrInvalidAmount) ||
		errors.Is(err, account.ErrAmountPrecision) ||
		errors.Is(err, credits.ErrReservedType) ||
		persistence.IsUniqueViolation(err)
}

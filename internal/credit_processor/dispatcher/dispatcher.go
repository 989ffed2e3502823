// Package dispatcher turns provider interaction events into ledger debits.
// Every event kind has exactly one handler, registered in a static table when the
// dispatcher is built.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/provider-credit-ledger/internal/domain/account"
	"github.com/provider-credit-ledger/internal/domain/events"
	"github.com/provider-credit-ledger/internal/domain/shared"
)

// Outcome reports what a dispatch did to the ledger
type Outcome string

const (
	OutcomeApplied             Outcome = "applied"
	OutcomeSkippedZeroCost     Outcome = "skipped_zero_cost"
	OutcomeInsufficientBalance Outcome = "insufficient_balance"
	OutcomeIgnored             Outcome = "ignored"
	OutcomeArchived            Outcome = "archived"
)

// ErrUnhandledKind is returned for an event kind with no registered handler
var ErrUnhandledKind = errors.New("no handler registered for event kind")

type handlerFunc func(ctx context.Context, event events.Event) (Outcome, error)

// on adapts a handler for one concrete event type to the table signature
func on[E events.Event](fn func(ctx context.Context, event E) (Outcome, error)) handlerFunc {
	return func(ctx context.Context, event events.Event) (Outcome, error) {
		typed, ok := event.(E)
		if !ok {
			return "", fmt.Errorf("%w: %s delivered as %T", ErrUnhandledKind, event.Kind(), event)
		}
		return fn(ctx, typed)
	}
}

type Dispatcher struct {
	ledger   Ledger
	costs    CostResolver
	handlers map[events.Kind]handlerFunc
	logger   *slog.Logger
}

var _ Service = (*Dispatcher)(nil)

func NewDispatcher(logger *slog.Logger, ledger Ledger, costs CostResolver) *Dispatcher {
	d := &Dispatcher{
		ledger: ledger,
		costs:  costs,
		logger: logger,
	}

	d.handlers = map[events.Kind]handlerFunc{
		// Every view is billed, repeats from the same viewer included
		events.KindProfileViewed: on(func(ctx context.Context, e *events.ProfileViewed) (Outcome, error) {
			return d.charge(ctx, e.Provider(), shared.InteractionProfileView, e.UserID, map[string]string{"user_id": e.UserID})
		}),
		events.KindChatStarted: on(func(ctx context.Context, e *events.ChatStarted) (Outcome, error) {
			if !e.IsPreBooking {
				return OutcomeIgnored, nil
			}
			return d.charge(ctx, e.Provider(), shared.InteractionChatPreBooking, e.ChatID, map[string]string{"chat_id": e.ChatID, "user_id": e.UserID})
		}),
		events.KindBookingConfirmed: on(func(ctx context.Context, e *events.BookingConfirmed) (Outcome, error) {
			return d.charge(ctx, e.Provider(), shared.InteractionBookingConfirmed, e.BookingID, map[string]string{"booking_id": e.BookingID})
		}),
		events.KindReviewCreated: on(func(ctx context.Context, e *events.ReviewCreated) (Outcome, error) {
			return d.charge(ctx, e.Provider(), shared.InteractionReviewCreated, e.ReviewID, map[string]string{"review_id": e.ReviewID})
		}),
		events.KindFavoriteAdded: on(func(ctx context.Context, e *events.FavoriteAdded) (Outcome, error) {
			return d.charge(ctx, e.Provider(), shared.InteractionFavoriteAdded, e.UserID, map[string]string{"user_id": e.UserID})
		}),
		events.KindInteractionTracked: on(func(ctx context.Context, e *events.InteractionTracked) (Outcome, error) {
			ref := e.ReferenceID
			if ref == "" {
				ref = e.UserID
			}
			metadata := make(map[string]string, len(e.Metadata)+1)
			for k, v := range e.Metadata {
				metadata[k] = v
			}
			metadata["user_id"] = e.UserID
			return d.charge(ctx, e.Provider(), e.InteractionType, ref, metadata)
		}),
		events.KindProviderArchived: on(func(ctx context.Context, e *events.ProviderArchived) (Outcome, error) {
			return d.archive(ctx, e.Provider())
		}),
	}

	return d
}

// Kinds lists the registered event kinds in a stable order
func (d *Dispatcher) Kinds() []events.Kind {
	kinds := make([]events.Kind, 0, len(d.handlers))
	for kind := range d.handlers {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Dispatch runs the handler registered for the event's kind. An error means the
// event was not processed and should be retried.
func (d *Dispatcher) Dispatch(ctx context.Context, event events.Event) (Outcome, error) {
	handler, ok := d.handlers[event.Kind()]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnhandledKind, event.Kind())
	}
	return handler(ctx, event)
}

func (d *Dispatcher) charge(ctx context.Context, key account.Key, interactionType shared.InteractionType, referenceID string, metadata map[string]string) (Outcome, error) {
	logger := d.logger.With(
		"provider_id", key.ProviderID,
		"provider_kind", key.Kind,
		"interaction_type", interactionType,
	)

	cost := d.costs.Resolve(ctx, interactionType)
	if !cost.IsPositive() {
		logger.Debug("Interaction is free, nothing to debit")
		return OutcomeSkippedZeroCost, nil
	}

	result, err := d.ledger.Debit(ctx, key, cost, interactionType.TransactionType(), referenceID, metadata)
	if err != nil {
		logger.Error("Failed to debit interaction", "cost", cost.String(), "error", err)
		return "", fmt.Errorf("failed to debit %s for %s: %w", interactionType, key.String(), err)
	}

	if !result.Applied {
		logger.Info("Insufficient balance, interaction not billed",
			"cost", cost.String(),
			"balance", result.NewBalance.String(),
		)
		return OutcomeInsufficientBalance, nil
	}

	logger.Info("Debited interaction",
		"cost", cost.String(),
		"balance", result.NewBalance.String(),
		"reference_id", referenceID,
	)
	return OutcomeApplied, nil
}

func (d *Dispatcher) archive(ctx context.Context, key account.Key) (Outcome, error) {
	err := d.ledger.Archive(ctx, key)
	if err == nil {
		return OutcomeArchived, nil
	}

	var notFound account.ErrAccountNotFound
	if errors.As(err, &notFound) {
		d.logger.Info("Archive requested for provider without an account", "provider_id", key.ProviderID, "provider_kind", key.Kind)
		return OutcomeIgnored, nil
	}
	return "", fmt.Errorf("failed to archive %s: %w", key.String(), err)
}

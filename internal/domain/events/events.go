// Package events defines the provider interaction events the credit processor
// consumes. The set of events is closed: every kind has its own struct carrying
// only the fields that kind needs, and Decode refuses anything else.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/provider-credit-ledger/internal/domain/account"
	"github.com/provider-credit-ledger/internal/domain/shared"
)

var (
	ErrMalformedEvent = errors.New("malformed event")
	ErrMissingField   = errors.New("required event field is missing")
)

// Kind names an event on the wire
type Kind string

const (
	KindProfileViewed      Kind = "profile.viewed"
	KindChatStarted        Kind = "chat.started"
	KindBookingConfirmed   Kind = "booking.confirmed"
	KindReviewCreated      Kind = "review.created"
	KindFavoriteAdded      Kind = "favorite.added"
	KindInteractionTracked Kind = "interaction.tracked"
	KindProviderArchived   Kind = "provider.archived"
)

// ErrUnknownKind is returned by Decode for kinds outside the closed set
type ErrUnknownKind struct {
	Kind Kind
}

func (e ErrUnknownKind) Error() string {
	return "unknown event kind: " + string(e.Kind)
}

// Event is implemented only by the structs in this package
type Event interface {
	Kind() Kind
	Provider() account.Key
	validate() error
}

// ProviderRef addresses the provider an event is about
type ProviderRef struct {
	ProviderID   string              `json:"providerId"`
	ProviderKind shared.ProviderKind `json:"providerKind"`
}

func (p *ProviderRef) Provider() account.Key {
	return account.Key{ProviderID: p.ProviderID, Kind: p.ProviderKind}
}

// normalize accepts any casing of the provider kind
func (p *ProviderRef) normalize() error {
	kind, err := shared.ParseProviderKind(string(p.ProviderKind))
	if err != nil {
		return err
	}
	p.ProviderKind = kind
	if p.ProviderID == "" {
		return fmt.Errorf("%w: providerId", ErrMissingField)
	}
	return nil
}

type ProfileViewed struct {
	ProviderRef
	UserID string `json:"userId"`
}

type ChatStarted struct {
	ProviderRef
	UserID       string `json:"userId"`
	ChatID       string `json:"chatId"`
	IsPreBooking bool   `json:"isPreBooking"`
}

type BookingConfirmed struct {
	ProviderRef
	BookingID string `json:"bookingId"`
}

type ReviewCreated struct {
	ProviderRef
	ReviewID string `json:"reviewId"`
}

type FavoriteAdded struct {
	ProviderRef
	UserID string `json:"userId"`
}

// InteractionTracked is emitted by the manual track endpoint for interactions
// that have no dedicated domain event
type InteractionTracked struct {
	ProviderRef
	InteractionType shared.InteractionType `json:"interactionType"`
	UserID          string                 `json:"userId"`
	ReferenceID     string                 `json:"referenceId,omitempty"`
	Metadata        map[string]string      `json:"metadata,omitempty"`
}

// ProviderArchived is emitted when a provider leaves the marketplace
type ProviderArchived struct {
	ProviderRef
}

func (*ProfileViewed) Kind() Kind      { return KindProfileViewed }
func (*ChatStarted) Kind() Kind        { return KindChatStarted }
func (*BookingConfirmed) Kind() Kind   { return KindBookingConfirmed }
func (*ReviewCreated) Kind() Kind      { return KindReviewCreated }
func (*FavoriteAdded) Kind() Kind      { return KindFavoriteAdded }
func (*InteractionTracked) Kind() Kind { return KindInteractionTracked }
func (*ProviderArchived) Kind() Kind   { return KindProviderArchived }

func (e *ProfileViewed) validate() error {
	return requireFields(&e.ProviderRef, "userId", e.UserID)
}

func (e *ChatStarted) validate() error {
	return requireFields(&e.ProviderRef, "chatId", e.ChatID)
}

func (e *BookingConfirmed) validate() error {
	return requireFields(&e.ProviderRef, "bookingId", e.BookingID)
}

func (e *ReviewCreated) validate() error {
	return requireFields(&e.ProviderRef, "reviewId", e.ReviewID)
}

func (e *FavoriteAdded) validate() error {
	return requireFields(&e.ProviderRef, "userId", e.UserID)
}

func (e *InteractionTracked) validate() error {
	e.InteractionType = e.InteractionType.Normalize()
	if e.InteractionType == "" {
		return shared.ErrInvalidInteractionType
	}
	if e.InteractionType.TransactionType().IsReserved() {
		return shared.ErrReservedInteractionType
	}
	return requireFields(&e.ProviderRef, "userId", e.UserID)
}

func (e *ProviderArchived) validate() error {
	return e.normalize()
}

func requireFields(ref *ProviderRef, name, value string) error {
	if err := ref.normalize(); err != nil {
		return err
	}
	if value == "" {
		return fmt.Errorf("%w: %s", ErrMissingField, name)
	}
	return nil
}

// Envelope is the wire form shared by every event kind
type Envelope struct {
	EventID    string          `json:"eventId"`
	Kind       Kind            `json:"kind"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// Encode validates the event and wraps it in a new envelope
func Encode(event Event) ([]byte, error) {
	if err := event.validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event.Kind(), err)
	}
	return json.Marshal(Envelope{
		EventID:    uuid.NewString(),
		Kind:       event.Kind(),
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	})
}

// Decode parses an envelope into its typed event
func Decode(data []byte) (*Envelope, Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	event, ok := newEvent(env.Kind)
	if !ok {
		return &env, nil, ErrUnknownKind{Kind: env.Kind}
	}
	if len(env.Payload) == 0 {
		return &env, nil, fmt.Errorf("%w: empty payload", ErrMalformedEvent)
	}
	if err := json.Unmarshal(env.Payload, event); err != nil {
		return &env, nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := event.validate(); err != nil {
		return &env, nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	return &env, event, nil
}

func newEvent(kind Kind) (Event, bool) {
	switch kind {
	case KindProfileViewed:
		return &ProfileViewed{}, true
	case KindChatStarted:
		return &ChatStarted{}, true
	case KindBookingConfirmed:
		return &BookingConfirmed{}, true
	case KindReviewCreated:
		return &ReviewCreated{}, true
	case KindFavoriteAdded:
		return &FavoriteAdded{}, true
	case KindInteractionTracked:
		return &InteractionTracked{}, true
	case KindProviderArchived:
		return &ProviderArchived{}, true
	default:
		return nil, false
	}
}

package shared

import (
	"errors"
	"strings"
)

var (
	ErrInvalidProviderKind     = errors.New("provider kind must be THERAPIST or SALON")
	ErrInvalidTransactionType  = errors.New("invalid transaction type")
	ErrInvalidInteractionType  = errors.New("interaction type cannot be empty")
	ErrReservedInteractionType = errors.New("interaction type is reserved for grants and purchases")
)

// ProviderKind distinguishes the two kinds of marketplace providers that hold credit accounts
type ProviderKind string

const (
	ProviderKindTherapist ProviderKind = "THERAPIST"
	ProviderKindSalon     ProviderKind = "SALON"
)

// ProviderKinds lists every kind in a stable order
var ProviderKinds = []ProviderKind{ProviderKindTherapist, ProviderKindSalon}

// ParseProviderKind accepts any casing, so route segments like "salon" resolve too
func ParseProviderKind(raw string) (ProviderKind, error) {
	kind := ProviderKind(strings.ToUpper(strings.TrimSpace(raw)))
	if !kind.Valid() {
		return "", ErrInvalidProviderKind
	}
	return kind, nil
}

func (k ProviderKind) Valid() bool {
	return k == ProviderKindTherapist || k == ProviderKindSalon
}

// InteractionType classifies a billable provider interaction
type InteractionType string

const (
	InteractionProfileView      InteractionType = "profile_view"
	InteractionChatPreBooking   InteractionType = "chat_pre_booking"
	InteractionBookingConfirmed InteractionType = "booking_confirmed"
	InteractionReviewCreated    InteractionType = "review_created"
	InteractionFavoriteAdded    InteractionType = "favorite_added"
)

// Normalize lower-cases and trims the type so catalog lookups are case-insensitive
func (t InteractionType) Normalize() InteractionType {
	return InteractionType(strings.ToLower(strings.TrimSpace(string(t))))
}

// TransactionType returns the ledger transaction type recorded for this interaction
func (t InteractionType) TransactionType() TransactionType {
	return TransactionType(strings.ToUpper(string(t.Normalize())))
}

// TransactionType defines the kind of a ledger transaction. Besides the fixed
// grant and purchase types it may be any upper-cased interaction type.
type TransactionType string

const (
	TransactionTypeInitialBonus TransactionType = "INITIAL_BONUS"
	TransactionTypeMonthlyBonus TransactionType = "MONTHLY_BONUS"
	TransactionTypePurchase     TransactionType = "PURCHASE"
)

// IsGrant reports whether the type is reserved for system grants
func (t TransactionType) IsGrant() bool {
	return t == TransactionTypeInitialBonus || t == TransactionTypeMonthlyBonus
}

// IsReserved reports whether only the ledger itself may record the type
func (t TransactionType) IsReserved() bool {
	return t.IsGrant() || t == TransactionTypePurchase
}

// OutboxStatus defines message publishing states
type OutboxStatus string

const (
	OutboxStatusPending         OutboxStatus = "PENDING"
	OutboxStatusProcessed       OutboxStatus = "PROCESSED"
	OutboxStatusFailedToPublish OutboxStatus = "FAILED_TO_PUBLISH"
)

package events

import (
	"encoding/json"
	"testing"

	"github.com/provider-credit-ledger/internal/domain/account"
	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	ref := ProviderRef{ProviderID: "salon-1", ProviderKind: shared.ProviderKindSalon}

	testCases := []struct {
		name  string
		event Event
	}{
		{"ProfileViewed", &ProfileViewed{ProviderRef: ref, UserID: "u1"}},
		{"ChatStarted", &ChatStarted{ProviderRef: ref, UserID: "u1", ChatID: "c1", IsPreBooking: true}},
		{"BookingConfirmed", &BookingConfirmed{ProviderRef: ref, BookingID: "b1"}},
		{"ReviewCreated", &ReviewCreated{ProviderRef: ref, ReviewID: "r1"}},
		{"FavoriteAdded", &FavoriteAdded{ProviderRef: ref, UserID: "u1"}},
		{"InteractionTracked", &InteractionTracked{ProviderRef: ref, InteractionType: "listing_click", UserID: "u1", Metadata: map[string]string{"page": "home"}}},
		{"ProviderArchived", &ProviderArchived{ProviderRef: ref}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := Encode(tc.event)
			require.NoError(t, err)

			env, decoded, err := Decode(data)
			require.NoError(t, err)
			assert.NotEmpty(t, env.EventID)
			assert.False(t, env.OccurredAt.IsZero())
			assert.Equal(t, tc.event.Kind(), env.Kind)
			assert.Equal(t, tc.event, decoded)
			assert.Equal(t, account.Key{ProviderID: "salon-1", Kind: shared.ProviderKindSalon}, decoded.Provider())
		})
	}
}

func TestDecode_WireSchema(t *testing.T) {
	data := []byte(`{"eventId":"e-1","kind":"chat.started","occurredAt":"2026-01-02T03:04:05Z",
		"payload":{"providerId":"t-9","providerKind":"therapist","userId":"u-2","chatId":"chat-5","isPreBooking":true}}`)

	env, event, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "e-1", env.EventID)

	chat, ok := event.(*ChatStarted)
	require.True(t, ok)
	assert.Equal(t, shared.ProviderKindTherapist, chat.ProviderKind, "kind should be normalized")
	assert.Equal(t, "chat-5", chat.ChatID)
	assert.True(t, chat.IsPreBooking)
}

func TestDecode_Errors(t *testing.T) {
	t.Run("NotJSON", func(t *testing.T) {
		_, _, err := Decode([]byte("not json"))
		assert.ErrorIs(t, err, ErrMalformedEvent)
	})

	t.Run("UnknownKind", func(t *testing.T) {
		_, _, err := Decode([]byte(`{"kind":"booking.cancelled","payload":{}}`))
		var unknown ErrUnknownKind
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, Kind("booking.cancelled"), unknown.Kind)
	})

	t.Run("EmptyPayload", func(t *testing.T) {
		_, _, err := Decode([]byte(`{"kind":"profile.viewed"}`))
		assert.ErrorIs(t, err, ErrMalformedEvent)
	})

	t.Run("MissingReference", func(t *testing.T) {
		payload, _ := json.Marshal(map[string]string{"providerId": "p", "providerKind": "SALON"})
		data, _ := json.Marshal(Envelope{Kind: KindBookingConfirmed, Payload: payload})
		_, _, err := Decode(data)
		assert.ErrorIs(t, err, ErrMalformedEvent)
		assert.ErrorIs(t, err, ErrMissingField)
	})

	t.Run("BadProviderKind", func(t *testing.T) {
		payload, _ := json.Marshal(map[string]string{"providerId": "p", "providerKind": "SPA", "userId": "u"})
		data, _ := json.Marshal(Envelope{Kind: KindProfileViewed, Payload: payload})
		_, _, err := Decode(data)
		assert.ErrorIs(t, err, shared.ErrInvalidProviderKind)
	})
}

func TestEncode_RejectsInvalidEvent(t *testing.T) {
	_, err := Encode(&InteractionTracked{ProviderRef: ProviderRef{ProviderID: "p", ProviderKind: shared.ProviderKindSalon}, UserID: "u"})
	assert.ErrorIs(t, err, shared.ErrInvalidInteractionType)

	_, err = Encode(&InteractionTracked{ProviderRef: ProviderRef{ProviderID: "p", ProviderKind: shared.ProviderKindSalon}, InteractionType: "initial_bonus", UserID: "u"})
	assert.ErrorIs(t, err, shared.ErrReservedInteractionType)
}

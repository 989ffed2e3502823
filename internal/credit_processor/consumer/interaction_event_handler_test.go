package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/provider-credit-ledger/internal/credit_processor/dispatcher"
	"github.com/provider-credit-ledger/internal/domain/events"
	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, event events.Event) (dispatcher.Outcome, error) {
	args := m.Called(ctx, event)
	return args.Get(0).(dispatcher.Outcome), args.Error(1)
}

type MockDeadLetterPublisher struct {
	mock.Mock
}

func (m *MockDeadLetterPublisher) PublishToDLQ(ctx context.Context, key string, value []byte, reason string) error {
	args := m.Called(ctx, key, value, reason)
	return args.Error(0)
}

func (m *MockDeadLetterPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestHandleMessage(t *testing.T) {
	booking := &events.BookingConfirmed{
		ProviderRef: events.ProviderRef{ProviderID: "salon-42", ProviderKind: shared.ProviderKindSalon},
		BookingID:   "b-1",
	}
	validValue, err := events.Encode(booking)
	require.NoError(t, err)

	isBooking := mock.MatchedBy(func(e events.Event) bool {
		b, ok := e.(*events.BookingConfirmed)
		return ok && b.BookingID == "b-1" && b.ProviderID == "salon-42"
	})

	tests := []struct {
		name          string
		value         []byte
		setupMocks    func(*MockDispatcher, *MockDeadLetterPublisher)
		expectedError bool
	}{
		{
			name:  "successful dispatch commits",
			value: validValue,
			setupMocks: func(d *MockDispatcher, _ *MockDeadLetterPublisher) {
				d.On("Dispatch", mock.Anything, isBooking).Return(dispatcher.OutcomeApplied, nil).Once()
			},
		},
		{
			name:  "insufficient balance is not an error",
			value: validValue,
			setupMocks: func(d *MockDispatcher, _ *MockDeadLetterPublisher) {
				d.On("Dispatch", mock.Anything, isBooking).Return(dispatcher.OutcomeInsufficientBalance, nil).Once()
			},
		},
		{
			name:  "transient dispatch error is retried",
			value: validValue,
			setupMocks: func(d *MockDispatcher, _ *MockDeadLetterPublisher) {
				d.On("Dispatch", mock.Anything, isBooking).Return(dispatcher.Outcome(""), errors.New("connection refused")).Once()
			},
			expectedError: true,
		},
		{
			name:  "permanent dispatch error goes to DLQ",
			value: validValue,
			setupMocks: func(d *MockDispatcher, p *MockDeadLetterPublisher) {
				d.On("Dispatch", mock.Anything, isBooking).Return(dispatcher.Outcome(""), dispatcher.ErrUnhandledKind).Once()
				p.On("PublishToDLQ", mock.Anything, "salon-42", validValue, mock.AnythingOfType("string")).Return(nil).Once()
			},
		},
		{
			name:  "unique violation goes to DLQ",
			value: validValue,
			setupMocks: func(d *MockDispatcher, p *MockDeadLetterPublisher) {
				dup := fmt.Errorf("insert transaction: %w", &pgconn.PgError{Code: "23505", ConstraintName: "idx_transactions_purchase"})
				d.On("Dispatch", mock.Anything, isBooking).Return(dispatcher.Outcome(""), dup).Once()
				p.On("PublishToDLQ", mock.Anything, "salon-42", validValue, mock.AnythingOfType("string")).Return(nil).Once()
			},
		},
		{
			name:  "malformed payload goes to DLQ",
			value: []byte(`{not json`),
			setupMocks: func(_ *MockDispatcher, p *MockDeadLetterPublisher) {
				p.On("PublishToDLQ", mock.Anything, "salon-42", []byte(`{not json`), mock.MatchedBy(func(reason string) bool {
					return len(reason) > 0
				})).Return(nil).Once()
			},
		},
		{
			name:  "unknown kind goes to DLQ",
			value: []byte(`{"eventId":"e1","kind":"payment.refunded","payload":{}}`),
			setupMocks: func(_ *MockDispatcher, p *MockDeadLetterPublisher) {
				p.On("PublishToDLQ", mock.Anything, "salon-42", mock.Anything, mock.Anything).Return(nil).Once()
			},
		},
		{
			name:  "DLQ failure keeps the message for retry",
			value: []byte(`{not json`),
			setupMocks: func(_ *MockDispatcher, p *MockDeadLetterPublisher) {
				p.On("PublishToDLQ", mock.Anything, "salon-42", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockDispatcher := &MockDispatcher{}
			mockDLQ := &MockDeadLetterPublisher{}
			tt.setupMocks(mockDispatcher, mockDLQ)

			handler := NewInteractionEventHandler(newTestLogger(), mockDispatcher, mockDLQ)
			err := handler.HandleMessage(context.Background(), []byte("salon-42"), tt.value)

			if tt.expectedError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			mockDispatcher.AssertExpectations(t)
			mockDLQ.AssertExpectations(t)
		})
	}
}

func TestHandleMessage_WithoutDLQ(t *testing.T) {
	handler := NewInteractionEventHandler(newTestLogger(), &MockDispatcher{}, nil)

	err := handler.HandleMessage(context.Background(), []byte("k"), []byte(`garbage`))

	require.Error(t, err)
	assert.ErrorIs(t, err, events.ErrMalformedEvent)
}

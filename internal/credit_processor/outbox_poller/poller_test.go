package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/provider-credit-ledger/internal/config"
	"github.com/provider-credit-ledger/internal/domain/outbox"
	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockActivityPublisher struct {
	mock.Mock
}

func (m *MockActivityPublisher) Publish(ctx context.Context, message *outbox.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func TestPoller_ProcessPendingMessages(t *testing.T) {
	cfg := &config.OutboxConfig{
		PollingInterval:  time.Second,
		BatchSize:        10,
		MaxRetryAttempts: 3,
	}

	message1, _ := newTestMessage(t, 1)
	message2, _ := newTestMessage(t, 2)
	exhausted, _ := newTestMessage(t, 3)
	exhausted.Attempts = 2

	tests := []struct {
		name              string
		setupMocks        func(*MockOutboxRepo, *MockActivityPublisher)
		expectedPublished int
		expectedError     string
	}{
		{
			name: "publishes every pending message",
			setupMocks: func(o *MockOutboxRepo, p *MockActivityPublisher) {
				o.On("GetPending", mock.Anything, 10).Return([]*outbox.Message{message1, message2}, nil).Once()
				p.On("Publish", mock.Anything, message1).Return(nil).Once()
				p.On("Publish", mock.Anything, message2).Return(nil).Once()
			},
			expectedPublished: 2,
		},
		{
			name: "error getting pending messages",
			setupMocks: func(o *MockOutboxRepo, _ *MockActivityPublisher) {
				o.On("GetPending", mock.Anything, 10).Return(nil, errors.New("db error")).Once()
			},
			expectedError: "failed to get pending outbox messages",
		},
		{
			name: "no pending messages",
			setupMocks: func(o *MockOutboxRepo, _ *MockActivityPublisher) {
				o.On("GetPending", mock.Anything, 10).Return([]*outbox.Message{}, nil).Once()
			},
		},
		{
			name: "failed publish increments attempts and continues",
			setupMocks: func(o *MockOutboxRepo, p *MockActivityPublisher) {
				o.On("GetPending", mock.Anything, 10).Return([]*outbox.Message{message1, message2}, nil).Once()
				p.On("Publish", mock.Anything, message1).Return(errors.New("mongo unavailable")).Once()
				o.On("IncrementAttempts", mock.Anything, int64(1)).Return(nil).Once()
				p.On("Publish", mock.Anything, message2).Return(nil).Once()
			},
			expectedPublished: 1,
		},
		{
			name: "max retry attempts marks FAILED_TO_PUBLISH",
			setupMocks: func(o *MockOutboxRepo, p *MockActivityPublisher) {
				o.On("GetPending", mock.Anything, 10).Return([]*outbox.Message{exhausted}, nil).Once()
				p.On("Publish", mock.Anything, exhausted).Return(errors.New("mongo unavailable")).Once()
				o.On("IncrementAttempts", mock.Anything, int64(3)).Return(nil).Once()
				o.On("UpdateStatus", mock.Anything, int64(3), shared.OutboxStatusFailedToPublish).Return(nil).Once()
			},
		},
		{
			name: "poison message is not retried",
			setupMocks: func(o *MockOutboxRepo, p *MockActivityPublisher) {
				o.On("GetPending", mock.Anything, 10).Return([]*outbox.Message{message1}, nil).Once()
				p.On("Publish", mock.Anything, message1).Return(fmt.Errorf("%w: outbox 1", ErrPoisonMessage)).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outboxRepo := &MockOutboxRepo{}
			publisher := &MockActivityPublisher{}
			poller := NewPoller(cfg, outboxRepo, publisher, newTestLogger())
			tt.setupMocks(outboxRepo, publisher)

			published, err := poller.processPendingMessages(context.Background())

			if tt.expectedError != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expectedPublished, published)
			}
			outboxRepo.AssertExpectations(t)
			publisher.AssertExpectations(t)
		})
	}
}

func TestPoller_Start(t *testing.T) {
	cfg := &config.OutboxConfig{
		PollingInterval:  10 * time.Millisecond,
		BatchSize:        10,
		MaxRetryAttempts: 3,
	}
	outboxRepo := &MockOutboxRepo{}
	poller := NewPoller(cfg, outboxRepo, &MockActivityPublisher{}, newTestLogger())

	outboxRepo.On("GetPending", mock.Anything, 10).Return([]*outbox.Message{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		poller.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after context cancellation")
	}
	outboxRepo.AssertCalled(t, "GetPending", mock.Anything, 10)
}

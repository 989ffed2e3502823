package dispatcher

import (
	"context"
	"log/slog"

	"github.com/panjf2000/ants/v2"
	"github.com/provider-credit-ledger/internal/domain/events"
)

// WorkerPoolDispatcher bounds the number of dispatches in flight. Dispatches for
// the same provider still serialize on the account row lock.
type WorkerPoolDispatcher struct {
	base   Service
	pool   *ants.Pool
	logger *slog.Logger
}

type WorkerPoolConfig struct {
	Size int
}

type dispatchResult struct {
	outcome Outcome
	err     error
}

func NewWorkerPoolDispatcher(base Service, config WorkerPoolConfig, logger *slog.Logger) (*WorkerPoolDispatcher, error) {
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, err
	}

	return &WorkerPoolDispatcher{
		base:   base,
		pool:   pool,
		logger: logger,
	}, nil
}

// Dispatch submits the event to the pool and waits for its outcome
func (s *WorkerPoolDispatcher) Dispatch(ctx context.Context, event events.Event) (Outcome, error) {
	key := event.Provider()
	s.logger.Debug("Submitting event to worker pool",
		"kind", event.Kind(),
		"provider_id", key.ProviderID,
		"provider_kind", key.Kind,
	)

	resultChan := make(chan dispatchResult, 1)
	err := s.pool.Submit(func() {
		outcome, err := s.base.Dispatch(ctx, event)
		resultChan <- dispatchResult{outcome: outcome, err: err}
	})
	if err != nil {
		s.logger.Error("Failed to submit event to worker pool",
			"kind", event.Kind(),
			"provider_id", key.ProviderID,
			"error", err,
		)
		return "", err
	}

	select {
	case result := <-resultChan:
		return result.outcome, result.err
	case <-ctx.Done():
		// the worker may still apply the event; the redelivered copy applies it again
		return "", ctx.Err()
	}
}

// Shutdown releases the pool
func (s *WorkerPoolDispatcher) Shutdown() {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}

func (s *WorkerPoolDispatcher) Running() int {
	return s.pool.Running()
}

func (s *WorkerPoolDispatcher) Capacity() int {
	return s.pool.Cap()
}

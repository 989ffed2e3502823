// Package grants pays the monthly credit grant to every active provider.
package grants

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/provider-credit-ledger/internal/domain/account"
	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Ledger is the part of credits.Ledger the grant job drives
type Ledger interface {
	GrantMonthly(ctx context.Context, key account.Key, amount decimal.Decimal, now time.Time) (bool, decimal.Decimal, error)
	ListActiveProviders(ctx context.Context, kind shared.ProviderKind, afterProviderID string, limit int) ([]string, error)
}

// Summary counts what one run did
type Summary struct {
	Granted int
	Skipped int
	Failed  int
}

func (s Summary) Total() int {
	return s.Granted + s.Skipped + s.Failed
}

type Config struct {
	Amount      decimal.Decimal
	BatchSize   int
	Concurrency int
}

// GrantJob walks every active provider and grants the monthly amount. Accounts
// that were already granted this calendar month are skipped, so the job is safe
// to re-run.
type GrantJob struct {
	ledger Ledger
	config Config
	logger *slog.Logger
}

func NewGrantJob(logger *slog.Logger, ledger Ledger, config Config) *GrantJob {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &GrantJob{
		ledger: ledger,
		config: config,
		logger: logger,
	}
}

func (j *GrantJob) Name() string {
	return "monthly_grant"
}

// Run grants every active provider of every kind. Per-provider failures are
// counted and the batch continues; only a failure to list providers aborts it.
func (j *GrantJob) Run(ctx context.Context, now time.Time) (Summary, error) {
	pool, err := ants.NewPool(j.config.Concurrency)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to create grant worker pool: %w", err)
	}
	defer pool.Release()

	j.logger.Info("Starting monthly grant",
		"period", now.UTC().Format("2006-01"),
		"amount", j.config.Amount.String(),
		"concurrency", j.config.Concurrency,
	)

	var (
		mu      sync.Mutex
		summary Summary
	)
	record := func(apply func(*Summary)) {
		mu.Lock()
		apply(&summary)
		mu.Unlock()
	}

	for _, kind := range shared.ProviderKinds {
		// grantKind waits for its submitted grants before returning
		if err := j.grantKind(ctx, pool, kind, now, record); err != nil {
			return summary, err
		}
	}

	j.logger.Info("Finished monthly grant",
		"granted", summary.Granted,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return summary, nil
}

func (j *GrantJob) grantKind(ctx context.Context, pool *ants.Pool, kind shared.ProviderKind, now time.Time, record func(func(*Summary))) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ids, err := j.ledger.ListActiveProviders(ctx, kind, after, j.config.BatchSize)
		if err != nil {
			j.logger.Error("Failed to list providers for monthly grant", "provider_kind", kind, "after", after, "error", err)
			return fmt.Errorf("failed to list %s providers: %w", kind, err)
		}
		if len(ids) == 0 {
			return nil
		}

		for _, id := range ids {
			key := account.Key{ProviderID: id, Kind: kind}
			wg.Add(1)
			submitErr := pool.Submit(func() {
				defer wg.Done()
				j.grantOne(ctx, key, now, record)
			})
			if submitErr != nil {
				wg.Done()
				j.logger.Error("Failed to submit monthly grant", "provider_id", id, "provider_kind", kind, "error", submitErr)
				record(func(s *Summary) { s.Failed++ })
			}
		}

		if len(ids) < j.config.BatchSize {
			return nil
		}
		after = ids[len(ids)-1]
	}
}

func (j *GrantJob) grantOne(ctx context.Context, key account.Key, now time.Time, record func(func(*Summary))) {
	granted, balance, err := j.ledger.GrantMonthly(ctx, key, j.config.Amount, now)
	switch {
	case err != nil:
		j.logger.Error("Failed to grant monthly credits", "provider_id", key.ProviderID, "provider_kind", key.Kind, "error", err)
		record(func(s *Summary) { s.Failed++ })
	case granted:
		j.logger.Debug("Granted monthly credits", "provider_id", key.ProviderID, "provider_kind", key.Kind, "balance", balance.String())
		record(func(s *Summary) { s.Granted++ })
	default:
		record(func(s *Summary) { s.Skipped++ })
	}
}

package credits

import (
	"context"
	"errors"
	"log/slog"

	"github.com/provider-credit-ledger/internal/domain/catalog"
	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// CostCatalog resolves what an interaction costs. Lookups never fail: an
// interaction with no known price costs nothing.
type CostCatalog struct {
	repo     catalog.Repository
	defaults map[shared.InteractionType]decimal.Decimal
	logger   *slog.Logger
}

func NewCostCatalog(logger *slog.Logger, repo catalog.Repository, defaults map[string]decimal.Decimal) *CostCatalog {
	normalized := make(map[shared.InteractionType]decimal.Decimal, len(defaults))
	for name, cost := range defaults {
		normalized[shared.InteractionType(name).Normalize()] = cost
	}

	return &CostCatalog{
		repo:     repo,
		defaults: normalized,
		logger:   logger,
	}
}

// Resolve checks the cost table, then the configured fallback, then returns zero
func (c *CostCatalog) Resolve(ctx context.Context, interactionType shared.InteractionType) decimal.Decimal {
	normalized := interactionType.Normalize()

	cost, err := c.repo.GetInteractionCost(ctx, normalized)
	switch {
	case err == nil:
		return cost.Cost
	case errors.Is(err, catalog.ErrCostNotFound):
	default:
		c.logger.Error("Failed to look up interaction cost, using fallback",
			"interaction_type", normalized,
			"error", err,
		)
	}

	if fallback, ok := c.defaults[normalized]; ok {
		return fallback
	}

	c.logger.Warn("No cost configured for interaction type, charging nothing", "interaction_type", normalized)
	return decimal.Zero
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/provider-credit-ledger/internal/domain/catalog"
	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/provider-credit-ledger/internal/platform/persistence"
)

const packColumns = `id, name, credits, bonus_credits, price, active, display_order`

// CatalogRepository reads interaction costs and credit packs
type CatalogRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewCatalogRepository(logger *slog.Logger, db *persistence.PostgresDB) catalog.Repository {
	return &CatalogRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// GetInteractionCost returns catalog.ErrCostNotFound when the type has no row
func (r *CatalogRepository) GetInteractionCost(ctx context.Context, interactionType shared.InteractionType) (*catalog.InteractionCost, error) {
	query := `
		SELECT interaction_type, cost, updated_at
		FROM interaction_costs
		WHERE interaction_type = $1
	`

	var cost catalog.InteractionCost
	err := r.querier.QueryRow(ctx, query, interactionType).Scan(
		&cost.InteractionType,
		&cost.Cost,
		&cost.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrCostNotFound
		}
		r.logger.Error("Failed to get interaction cost", "interaction_type", interactionType, "error", err)
		return nil, fmt.Errorf("failed to get interaction cost: %w", err)
	}

	return &cost, nil
}

func (r *CatalogRepository) GetPack(ctx context.Context, id uuid.UUID) (*catalog.CreditPack, error) {
	query := `
		SELECT ` + packColumns + `
		FROM credit_packs
		WHERE id = $1
	`

	pack, err := scanPack(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrPackNotFound
		}
		r.logger.Error("Failed to get credit pack", "pack_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get credit pack: %w", err)
	}

	return pack, nil
}

func (r *CatalogRepository) ListActivePacks(ctx context.Context) ([]*catalog.CreditPack, error) {
	query := `
		SELECT ` + packColumns + `
		FROM credit_packs
		WHERE active = TRUE
		ORDER BY display_order ASC, price ASC
	`

	rows, err := r.querier.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list credit packs", "error", err)
		return nil, fmt.Errorf("failed to list credit packs: %w", err)
	}
	defer rows.Close()

	packs := []*catalog.CreditPack{}
	for rows.Next() {
		pack, err := scanPack(rows)
		if err != nil {
			r.logger.Error("Failed to scan credit pack", "error", err)
			return nil, fmt.Errorf("failed to scan credit pack: %w", err)
		}
		packs = append(packs, pack)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over credit packs", "error", err)
		return nil, fmt.Errorf("error iterating over credit packs: %w", err)
	}

	return packs, nil
}

func scanPack(row pgx.Row) (*catalog.CreditPack, error) {
	var pack catalog.CreditPack
	err := row.Scan(
		&pack.ID,
		&pack.Name,
		&pack.Credits,
		&pack.BonusCredits,
		&pack.Price,
		&pack.Active,
		&pack.DisplayOrder,
	)
	if err != nil {
		return nil, err
	}
	return &pack, nil
}

package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

var (
	ErrCostNotFound = errors.New("interaction cost not found")
	ErrPackNotFound = errors.New("credit pack not found")
	ErrPackInactive = errors.New("credit pack is not available for purchase")
)

// InteractionCost is the price in credits of one billable interaction
type InteractionCost struct {
	InteractionType shared.InteractionType `json:"interaction_type"`
	Cost            decimal.Decimal        `json:"cost"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// CreditPack is a purchasable bundle of credits
type CreditPack struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Credits      decimal.Decimal `json:"credits"`
	BonusCredits decimal.Decimal `json:"bonus_credits"`
	Price        decimal.Decimal `json:"price"`
	Active       bool            `json:"active"`
	DisplayOrder int             `json:"display_order"`
}

// TotalCredits is what a completed purchase of this pack is worth
func (p *CreditPack) TotalCredits() decimal.Decimal {
	return p.Credits.Add(p.BonusCredits)
}

// Repository reads the cost table and the pack catalog
type Repository interface {
	GetInteractionCost(ctx context.Context, interactionType shared.InteractionType) (*InteractionCost, error)
	GetPack(ctx context.Context, id uuid.UUID) (*CreditPack, error)

	// ListActivePacks returns purchasable packs ordered by display order
	ListActivePacks(ctx context.Context) ([]*CreditPack, error)
}

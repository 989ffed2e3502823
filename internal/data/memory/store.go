// Package memory provides an in-process implementation of the ledger, purchase
// and catalog stores. A single mutex serializes every mutation, which gives the
// same atomicity the PostgreSQL stores get from row locks.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/provider-credit-ledger/internal/domain/account"
	"github.com/provider-credit-ledger/internal/domain/catalog"
	"github.com/provider-credit-ledger/internal/domain/ledger"
	"github.com/provider-credit-ledger/internal/domain/purchase"
	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

type Store struct {
	mu sync.Mutex

	signupBonus decimal.Decimal

	// Ledger storage
	accounts     map[account.Key]*account.Account
	transactions map[account.Key][]*ledger.Transaction

	// Catalog storage
	costs map[shared.InteractionType]*catalog.InteractionCost
	packs map[uuid.UUID]*catalog.CreditPack

	// Purchase storage
	purchases map[uuid.UUID]*purchase.Purchase
}

var (
	_ ledger.Store       = (*Store)(nil)
	_ purchase.Store     = (*Store)(nil)
	_ catalog.Repository = (*Store)(nil)
)

func New(signupBonus decimal.Decimal) *Store {
	return &Store{
		signupBonus:  signupBonus,
		accounts:     make(map[account.Key]*account.Account),
		transactions: make(map[account.Key][]*ledger.Transaction),
		costs:        make(map[shared.InteractionType]*catalog.InteractionCost),
		packs:        make(map[uuid.UUID]*catalog.CreditPack),
		purchases:    make(map[uuid.UUID]*purchase.Purchase),
	}
}

// Ledger Store implementation

func (s *Store) GetOrInitAccount(_ context.Context, key account.Key) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, err := s.ensureAccount(key)
	if err != nil {
		return nil, err
	}
	return cloneAccount(acc), nil
}

func (s *Store) Apply(_ context.Context, m *ledger.Mutation) (*ledger.Result, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.applyLocked(m)
}

func (s *Store) ListTransactions(_ context.Context, key account.Key, limit, offset int) ([]*ledger.Transaction, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.transactions[key]
	total := int64(len(log))

	page := make([]*ledger.Transaction, 0, limit)
	for i := len(log) - 1 - offset; i >= 0 && len(page) < limit; i-- {
		txn := *log[i]
		page = append(page, &txn)
	}
	return page, total, nil
}

func (s *Store) ListActiveProviders(_ context.Context, kind shared.ProviderKind, afterProviderID string, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for key, acc := range s.accounts {
		if key.Kind == kind && !acc.IsArchived() && key.ProviderID > afterProviderID {
			ids = append(ids, key.ProviderID)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *Store) ArchiveAccount(_ context.Context, key account.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[key]
	if !ok {
		return account.ErrAccountNotFound{Key: key}
	}
	if acc.ArchivedAt == nil {
		now := time.Now().UTC()
		acc.ArchivedAt = &now
	}
	return nil
}

func (s *Store) ensureAccount(key account.Key) (*account.Account, error) {
	if acc, ok := s.accounts[key]; ok {
		return acc, nil
	}

	acc, err := account.NewAccount(key, s.signupBonus)
	if err != nil {
		return nil, err
	}
	s.accounts[key] = acc
	if acc.Balance.IsPositive() {
		s.transactions[key] = append(s.transactions[key], ledger.NewInitialBonusTransaction(acc))
	}
	return acc, nil
}

func (s *Store) applyLocked(m *ledger.Mutation) (*ledger.Result, error) {
	acc, err := s.ensureAccount(m.Key)
	if err != nil {
		return nil, err
	}

	// Work on a copy so a failed mutation leaves the stored account untouched
	working := cloneAccount(acc)
	txn, outcome, err := m.ApplyTo(working, time.Now())
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return &ledger.Result{Applied: false, Outcome: outcome, Account: working}, nil
	}

	*acc = *working
	s.transactions[m.Key] = append(s.transactions[m.Key], txn)

	recorded := *txn
	return &ledger.Result{Applied: true, Outcome: outcome, Account: cloneAccount(acc), Transaction: &recorded}, nil
}

// Catalog implementation

// PutInteractionCost sets the cost of an interaction type
func (s *Store) PutInteractionCost(interactionType shared.InteractionType, cost decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.costs[interactionType.Normalize()] = &catalog.InteractionCost{
		InteractionType: interactionType.Normalize(),
		Cost:            cost,
		UpdatedAt:       time.Now().UTC(),
	}
}

// PutPack inserts or replaces a credit pack
func (s *Store) PutPack(pack *catalog.CreditPack) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *pack
	s.packs[pack.ID] = &stored
}

func (s *Store) GetInteractionCost(_ context.Context, interactionType shared.InteractionType) (*catalog.InteractionCost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cost, ok := s.costs[interactionType.Normalize()]
	if !ok {
		return nil, catalog.ErrCostNotFound
	}
	found := *cost
	return &found, nil
}

func (s *Store) GetPack(_ context.Context, id uuid.UUID) (*catalog.CreditPack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pack, ok := s.packs[id]
	if !ok {
		return nil, catalog.ErrPackNotFound
	}
	found := *pack
	return &found, nil
}

func (s *Store) ListActivePacks(_ context.Context) ([]*catalog.CreditPack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	packs := []*catalog.CreditPack{}
	for _, pack := range s.packs {
		if pack.Active {
			found := *pack
			packs = append(packs, &found)
		}
	}
	sort.Slice(packs, func(i, j int) bool {
		if packs[i].DisplayOrder != packs[j].DisplayOrder {
			return packs[i].DisplayOrder < packs[j].DisplayOrder
		}
		return packs[i].Price.LessThan(packs[j].Price)
	})
	return packs, nil
}

// Purchase Store implementation

func (s *Store) CreatePurchase(_ context.Context, p *purchase.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *p
	s.purchases[p.ID] = &stored
	return nil
}

func (s *Store) GetPurchaseByTxRef(_ context.Context, txRef string) (*purchase.Purchase, error) {
	return s.findPurchase(txRef, func(p *purchase.Purchase) bool {
		return p.GatewayTxRef == txRef
	})
}

func (s *Store) GetPurchaseByGatewayTransactionID(_ context.Context, gatewayTransactionID string) (*purchase.Purchase, error) {
	return s.findPurchase(gatewayTransactionID, func(p *purchase.Purchase) bool {
		return p.GatewayTransactionID != nil && *p.GatewayTransactionID == gatewayTransactionID
	})
}

func (s *Store) AttachGatewayTransactionID(_ context.Context, id uuid.UUID, gatewayTransactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.purchases[id]
	if !ok {
		return purchase.ErrPurchaseNotFound{Reference: id.String()}
	}
	if p.GatewayTransactionID == nil && p.Status == purchase.StatusPending {
		gwID := gatewayTransactionID
		p.GatewayTransactionID = &gwID
		p.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *Store) CompletePurchase(_ context.Context, id uuid.UUID, paymentData json.RawMessage, credit *ledger.Mutation) (bool, *ledger.Result, error) {
	if err := credit.Validate(); err != nil {
		return false, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.purchases[id]
	if !ok || p.Status != purchase.StatusPending {
		return false, nil, nil
	}

	result, err := s.applyLocked(credit)
	if err != nil {
		return false, nil, err
	}

	now := time.Now().UTC()
	p.Status = purchase.StatusCompleted
	p.CompletedAt = &now
	p.UpdatedAt = now
	if len(paymentData) > 0 {
		p.PaymentData = paymentData
	}
	return true, result, nil
}

func (s *Store) FailPurchase(_ context.Context, id uuid.UUID, paymentData json.RawMessage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.purchases[id]
	if !ok || p.Status != purchase.StatusPending {
		return false, nil
	}

	p.Status = purchase.StatusFailed
	p.UpdatedAt = time.Now().UTC()
	if len(paymentData) > 0 {
		p.PaymentData = paymentData
	}
	return true, nil
}

func (s *Store) ListStalePendingPurchases(_ context.Context, olderThan time.Time, limit int) ([]*purchase.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []*purchase.Purchase
	for _, p := range s.purchases {
		if p.Status == purchase.StatusPending && p.CreatedAt.Before(olderThan) {
			found := *p
			stale = append(stale, &found)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		return stale[i].CreatedAt.Before(stale[j].CreatedAt)
	})
	if len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

func (s *Store) findPurchase(reference string, match func(p *purchase.Purchase) bool) (*purchase.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.purchases {
		if match(p) {
			found := *p
			return &found, nil
		}
	}
	return nil, purchase.ErrPurchaseNotFound{Reference: reference}
}

func cloneAccount(acc *account.Account) *account.Account {
	clone := *acc
	return &clone
}

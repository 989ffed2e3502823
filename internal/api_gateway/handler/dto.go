package handler

import (
	"time"

	"github.com/provider-credit-ledger/internal/credits"
	"github.com/provider-credit-ledger/internal/domain/account"
	"github.com/provider-credit-ledger/internal/domain/activity"
	"github.com/provider-credit-ledger/internal/domain/catalog"
	"github.com/provider-credit-ledger/internal/domain/ledger"
	"github.com/provider-credit-ledger/internal/domain/purchase"
	"github.com/provider-credit-ledger/internal/payments"
	"github.com/shopspring/decimal"
)

// AccountResponse represents a provider's credit account in API responses
type AccountResponse struct {
	ProviderID         string          `json:"provider_id"`
	ProviderKind       string          `json:"provider_kind"`
	Balance            decimal.Decimal `json:"balance"`
	TotalEarned        decimal.Decimal `json:"total_earned"`
	TotalSpent         decimal.Decimal `json:"total_spent"`
	LastMonthlyGrantAt string          `json:"last_monthly_grant_at,omitempty"`
	Archived           bool            `json:"archived"`
	CreatedAt          string          `json:"created_at"`
	UpdatedAt          string          `json:"updated_at"`
}

// TransactionResponse represents a ledger transaction in API responses
type TransactionResponse struct {
	ID            string            `json:"id"`
	Amount        decimal.Decimal   `json:"amount"`
	Type          string            `json:"type"`
	ReferenceID   string            `json:"reference_id,omitempty"`
	BalanceBefore decimal.Decimal   `json:"balance_before"`
	BalanceAfter  decimal.Decimal   `json:"balance_after"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     string            `json:"created_at"`
}

// ActivityResponse represents an activity feed entry in API responses
type ActivityResponse struct {
	TransactionID string            `json:"transaction_id"`
	Amount        decimal.Decimal   `json:"amount"`
	Type          string            `json:"type"`
	ReferenceID   string            `json:"reference_id,omitempty"`
	BalanceAfter  decimal.Decimal   `json:"balance_after"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     string            `json:"created_at"`
}

// TrackInteractionRequest represents a request to record a billable interaction
type TrackInteractionRequest struct {
	InteractionType string            `json:"interaction_type" binding:"required"`
	UserID          string            `json:"user_id" binding:"required"`
	ReferenceID     string            `json:"reference_id,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// CreditPackResponse represents a purchasable pack in API responses
type CreditPackResponse struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Credits      decimal.Decimal `json:"credits"`
	BonusCredits decimal.Decimal `json:"bonus_credits"`
	TotalCredits decimal.Decimal `json:"total_credits"`
	Price        decimal.Decimal `json:"price"`
	DisplayOrder int             `json:"display_order"`
}

// CustomerRequest identifies the payer to the payment gateway
type CustomerRequest struct {
	Email       string `json:"email" binding:"required,email"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Name        string `json:"name,omitempty"`
}

// InitiatePurchaseRequest represents a request to buy a credit pack
type InitiatePurchaseRequest struct {
	ProviderID    string          `json:"provider_id" binding:"required"`
	ProviderKind  string          `json:"provider_kind" binding:"required"`
	PackID        string          `json:"pack_id" binding:"required,uuid"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency,omitempty"`
	PaymentMethod string          `json:"payment_method" binding:"required"`
	Customer      CustomerRequest `json:"customer"`
}

// PurchaseResponse represents a credit pack purchase in API responses
type PurchaseResponse struct {
	ID                   string          `json:"id"`
	ProviderID           string          `json:"provider_id"`
	ProviderKind         string          `json:"provider_kind"`
	PackID               string          `json:"pack_id"`
	CreditsAmount        decimal.Decimal `json:"credits_amount"`
	PricePaid            decimal.Decimal `json:"price_paid"`
	Currency             string          `json:"currency"`
	PaymentMethod        string          `json:"payment_method"`
	GatewayTxRef         string          `json:"gateway_tx_ref"`
	GatewayTransactionID string          `json:"gateway_transaction_id,omitempty"`
	Status               string          `json:"status"`
	CompletedAt          string          `json:"completed_at,omitempty"`
	CreatedAt            string          `json:"created_at"`
}

// InitiatePurchaseResponse tells the client how to complete the payment
type InitiatePurchaseResponse struct {
	Purchase     PurchaseResponse `json:"purchase"`
	RedirectLink string           `json:"redirect_link,omitempty"`
	ExternalID   string           `json:"external_id,omitempty"`
	Instructions string           `json:"instructions,omitempty"`
}

// VerifyPurchaseResponse reports the settlement of a purchase
type VerifyPurchaseResponse struct {
	Outcome       string           `json:"outcome"`
	GatewayStatus string           `json:"gateway_status"`
	Purchase      PurchaseResponse `json:"purchase"`
	NewBalance    *decimal.Decimal `json:"new_balance,omitempty"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=20" binding:"min=1,max=100"`
}

// ActivityParams bounds the activity feed. Times are RFC 3339; the window
// defaults to the last 30 days.
type ActivityParams struct {
	From  string `form:"from"`
	To    string `form:"to"`
	Limit int    `form:"limit" binding:"min=0,max=500"`
}

const defaultActivityWindow = 30 * 24 * time.Hour

// Range parses the params into an activity window ending at now when To is unset
func (p ActivityParams) Range(now time.Time) (activity.Range, error) {
	window := activity.Range{To: now.UTC()}
	if p.To != "" {
		to, err := time.Parse(time.RFC3339, p.To)
		if err != nil {
			return activity.Range{}, err
		}
		window.To = to.UTC()
	}

	window.From = window.To.Add(-defaultActivityWindow)
	if p.From != "" {
		from, err := time.Parse(time.RFC3339, p.From)
		if err != nil {
			return activity.Range{}, err
		}
		window.From = from.UTC()
	}
	return window, nil
}

func mapAccountToResponse(acc *account.Account) AccountResponse {
	response := AccountResponse{
		ProviderID:   acc.ProviderID,
		ProviderKind: string(acc.ProviderKind),
		Balance:      acc.Balance,
		TotalEarned:  acc.TotalEarned,
		TotalSpent:   acc.TotalSpent,
		Archived:     acc.IsArchived(),
		CreatedAt:    acc.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    acc.UpdatedAt.Format(time.RFC3339),
	}
	if acc.LastMonthlyGrantAt != nil {
		response.LastMonthlyGrantAt = acc.LastMonthlyGrantAt.Format(time.RFC3339)
	}
	return response
}

func mapTransactionsToResponse(page *credits.Page) []TransactionResponse {
	transactions := make([]TransactionResponse, 0, len(page.Items))
	for _, txn := range page.Items {
		transactions = append(transactions, mapTransactionToResponse(txn))
	}
	return transactions
}

func mapTransactionToResponse(txn *ledger.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:            txn.ID.String(),
		Amount:        txn.Amount,
		Type:          string(txn.Type),
		ReferenceID:   txn.ReferenceID,
		BalanceBefore: txn.BalanceBefore,
		BalanceAfter:  txn.BalanceAfter,
		Metadata:      txn.Metadata,
		CreatedAt:     txn.CreatedAt.Format(time.RFC3339),
	}
}

func mapActivityToResponse(entries []*activity.Entry) []ActivityResponse {
	response := make([]ActivityResponse, 0, len(entries))
	for _, entry := range entries {
		response = append(response, ActivityResponse{
			TransactionID: entry.TransactionID.String(),
			Amount:        entry.Amount,
			Type:          string(entry.Type),
			ReferenceID:   entry.ReferenceID,
			BalanceAfter:  entry.BalanceAfter,
			Metadata:      entry.Metadata,
			CreatedAt:     entry.CreatedAt.Format(time.RFC3339),
		})
	}
	return response
}

func mapPacksToResponse(packs []*catalog.CreditPack) []CreditPackResponse {
	response := make([]CreditPackResponse, 0, len(packs))
	for _, pack := range packs {
		response = append(response, CreditPackResponse{
			ID:           pack.ID.String(),
			Name:         pack.Name,
			Credits:      pack.Credits,
			BonusCredits: pack.BonusCredits,
			TotalCredits: pack.TotalCredits(),
			Price:        pack.Price,
			DisplayOrder: pack.DisplayOrder,
		})
	}
	return response
}

func mapPurchaseToResponse(p *purchase.Purchase) PurchaseResponse {
	response := PurchaseResponse{
		ID:            p.ID.String(),
		ProviderID:    p.ProviderID,
		ProviderKind:  string(p.ProviderKind),
		PackID:        p.PackID.String(),
		CreditsAmount: p.CreditsAmount,
		PricePaid:     p.PricePaid,
		Currency:      p.Currency,
		PaymentMethod: string(p.PaymentMethod),
		GatewayTxRef:  p.GatewayTxRef,
		Status:        string(p.Status),
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
	}
	if p.GatewayTransactionID != nil {
		response.GatewayTransactionID = *p.GatewayTransactionID
	}
	if p.CompletedAt != nil {
		response.CompletedAt = p.CompletedAt.Format(time.RFC3339)
	}
	return response
}

func mapVerifyResultToResponse(result *payments.VerifyResult) VerifyPurchaseResponse {
	response := VerifyPurchaseResponse{
		Outcome:       string(result.Outcome),
		GatewayStatus: string(result.GatewayStatus),
		Purchase:      mapPurchaseToResponse(result.Purchase),
	}
	if result.Outcome == payments.OutcomeCompleted {
		balance := result.NewBalance
		response.NewBalance = &balance
	}
	return response
}

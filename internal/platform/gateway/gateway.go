// Package gateway abstracts the external payment processor that settles credit
// pack purchases. The reconciler only sees the Gateway interface; the
// Flutterwave client is the production implementation.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSignature  = errors.New("webhook signature does not match")
	ErrMalformedWebhook  = errors.New("malformed webhook payload")
	ErrUnsupportedMethod = errors.New("unsupported payment method")
)

// Status is the settlement state reported by the gateway
type Status string

const (
	StatusSuccessful Status = "successful"
	StatusFailed     Status = "failed"
	StatusPending    Status = "pending"
)

// Customer identifies the payer to the gateway
type Customer struct {
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name"`
}

type ChargeRequest struct {
	Method   string // "card" or "mobile_money_<network>"
	Amount   decimal.Decimal
	Currency string
	TxRef    string
	Customer Customer
	Meta     map[string]string
}

// ChargeResult describes an initiated charge. Card charges return a hosted
// checkout RedirectLink; mobile money charges usually return the gateway's
// ExternalID and optional Instructions for the payer.
type ChargeResult struct {
	Success      bool
	ExternalID   string
	RedirectLink string
	Instructions string
	Raw          json.RawMessage
}

type StatusResult struct {
	Status     Status
	Amount     decimal.Decimal
	Currency   string
	TxRef      string
	ExternalID string
	Raw        json.RawMessage
}

// WebhookEvent is the parsed body of a settlement callback
type WebhookEvent struct {
	Event      string
	ExternalID string
	TxRef      string
	Status     Status
	Raw        json.RawMessage
}

// Reference is the identifier to verify the webhook with, preferring the
// gateway's own id
func (e *WebhookEvent) Reference() string {
	if e.ExternalID != "" {
		return e.ExternalID
	}
	return e.TxRef
}

// Gateway is implemented by payment processor clients
type Gateway interface {
	InitiateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	QueryStatus(ctx context.Context, externalID string) (*StatusResult, error)
	VerifyWebhookSignature(signature string) error
	ParseWebhook(body []byte) (*WebhookEvent, error)
}

// ErrorResponse is returned for non-2xx gateway responses
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway error (status %d)", e.StatusCode)
}

// NormalizeStatus maps gateway status strings onto Status. Anything not
// recognised as settled either way is treated as pending.
func NormalizeStatus(raw string) Status {
	switch raw {
	case "successful", "success", "completed", "SUCCESSFUL":
		return StatusSuccessful
	case "failed", "cancelled", "error", "FAILED", "CANCELLED":
		return StatusFailed
	default:
		return StatusPending
	}
}

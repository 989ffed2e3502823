package gateway

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/provider-credit-ledger/internal/config"
	"github.com/shopspring/decimal"
)

const (
	cardMethod        = "card"
	mobileMoneyPrefix = "mobile_money_"
)

// FlutterwaveClient talks to a Flutterwave v3 compatible REST API
type FlutterwaveClient struct {
	baseURL     string
	secretKey   string
	webhookHash string
	redirectURL string
	httpClient  *http.Client
	logger      *slog.Logger
}

var _ Gateway = (*FlutterwaveClient)(nil)

func NewFlutterwaveClient(logger *slog.Logger, cfg *config.GatewayConfig) *FlutterwaveClient {
	return &FlutterwaveClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:   cfg.SecretKey,
		webhookHash: cfg.WebhookHash,
		redirectURL: cfg.RedirectURL,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      logger,
	}
}

type flwCustomer struct {
	Email       string `json:"email"`
	PhoneNumber string `json:"phonenumber,omitempty"`
	Name        string `json:"name,omitempty"`
}

type hostedPaymentRequest struct {
	TxRef       string            `json:"tx_ref"`
	Amount      string            `json:"amount"`
	Currency    string            `json:"currency"`
	RedirectURL string            `json:"redirect_url,omitempty"`
	Customer    flwCustomer       `json:"customer"`
	Meta        map[string]string `json:"meta,omitempty"`
}

type mobileMoneyChargeRequest struct {
	TxRef       string            `json:"tx_ref"`
	Amount      string            `json:"amount"`
	Currency    string            `json:"currency"`
	Email       string            `json:"email"`
	PhoneNumber string            `json:"phone_number"`
	FullName    string            `json:"fullname,omitempty"`
	Network     string            `json:"network,omitempty"`
	RedirectURL string            `json:"redirect_url,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// envelope is the outer shape of every Flutterwave response
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
}

type transactionData struct {
	ID       json.Number     `json:"id"`
	TxRef    string          `json:"tx_ref"`
	Status   string          `json:"status"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Link     string          `json:"link"`
}

type chargeMeta struct {
	Authorization struct {
		Mode         string `json:"mode"`
		Redirect     string `json:"redirect"`
		Instructions string `json:"validate_instructions"`
	} `json:"authorization"`
}

// InitiateCharge starts a card checkout or a mobile money charge
func (c *FlutterwaveClient) InitiateCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	switch {
	case req.Method == cardMethod:
		return c.initiateHostedPayment(ctx, req)
	case strings.HasPrefix(req.Method, mobileMoneyPrefix) && len(req.Method) > len(mobileMoneyPrefix):
		return c.initiateMobileMoney(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, req.Method)
	}
}

func (c *FlutterwaveClient) initiateHostedPayment(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	payload := hostedPaymentRequest{
		TxRef:       req.TxRef,
		Amount:      req.Amount.String(),
		Currency:    req.Currency,
		RedirectURL: c.redirectURL,
		Customer: flwCustomer{
			Email:       req.Customer.Email,
			PhoneNumber: req.Customer.PhoneNumber,
			Name:        req.Customer.Name,
		},
		Meta: req.Meta,
	}

	env, raw, err := c.do(ctx, http.MethodPost, "/v3/payments", payload)
	if err != nil {
		return nil, err
	}

	var data transactionData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("failed to decode hosted payment response: %w", err)
		}
	}

	return &ChargeResult{
		Success:      env.Status == "success" && data.Link != "",
		RedirectLink: data.Link,
		Raw:          raw,
	}, nil
}

func (c *FlutterwaveClient) initiateMobileMoney(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	network := strings.TrimPrefix(req.Method, mobileMoneyPrefix)
	payload := mobileMoneyChargeRequest{
		TxRef:       req.TxRef,
		Amount:      req.Amount.String(),
		Currency:    req.Currency,
		Email:       req.Customer.Email,
		PhoneNumber: req.Customer.PhoneNumber,
		FullName:    req.Customer.Name,
		Network:     strings.ToUpper(network),
		RedirectURL: c.redirectURL,
		Meta:        req.Meta,
	}

	path := "/v3/charges?type=" + url.QueryEscape(req.Method)
	env, raw, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}

	var data transactionData
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("failed to decode mobile money response: %w", err)
		}
	}
	var meta chargeMeta
	if len(env.Meta) > 0 && string(env.Meta) != "null" {
		if err := json.Unmarshal(env.Meta, &meta); err != nil {
			return nil, fmt.Errorf("failed to decode mobile money response meta: %w", err)
		}
	}

	result := &ChargeResult{
		Success:      env.Status == "success" && NormalizeStatus(data.Status) != StatusFailed,
		ExternalID:   data.ID.String(),
		RedirectLink: meta.Authorization.Redirect,
		Instructions: meta.Authorization.Instructions,
		Raw:          raw,
	}
	if result.Instructions == "" && result.RedirectLink == "" {
		result.Instructions = env.Message
	}
	return result, nil
}

// QueryStatus verifies a transaction. Numeric ids are gateway transaction ids;
// anything else is treated as our tx_ref.
func (c *FlutterwaveClient) QueryStatus(ctx context.Context, externalID string) (*StatusResult, error) {
	var path string
	if _, err := strconv.ParseInt(externalID, 10, 64); err == nil {
		path = "/v3/transactions/" + externalID + "/verify"
	} else {
		path = "/v3/transactions/verify_by_reference?tx_ref=" + url.QueryEscape(externalID)
	}

	env, raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var data transactionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode verification response: %w", err)
	}

	return &StatusResult{
		Status:     NormalizeStatus(data.Status),
		Amount:     data.Amount,
		Currency:   data.Currency,
		TxRef:      data.TxRef,
		ExternalID: data.ID.String(),
		Raw:        raw,
	}, nil
}

// VerifyWebhookSignature compares the verif-hash header with the configured secret
func (c *FlutterwaveClient) VerifyWebhookSignature(signature string) error {
	if c.webhookHash == "" || signature == "" {
		return ErrInvalidSignature
	}
	if subtle.ConstantTimeCompare([]byte(signature), []byte(c.webhookHash)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// ParseWebhook reads a charge.completed style callback
func (c *FlutterwaveClient) ParseWebhook(body []byte) (*WebhookEvent, error) {
	var payload struct {
		Event string          `json:"event"`
		Data  transactionData `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}

	event := &WebhookEvent{
		Event:      payload.Event,
		ExternalID: payload.Data.ID.String(),
		TxRef:      payload.Data.TxRef,
		Status:     NormalizeStatus(payload.Data.Status),
		Raw:        json.RawMessage(body),
	}
	if event.Reference() == "" {
		return nil, fmt.Errorf("%w: no transaction id or tx_ref", ErrMalformedWebhook)
	}
	return event, nil
}

// do sends the request and decodes the response envelope. Non-2xx statuses
// become *ErrorResponse.
func (c *FlutterwaveClient) do(ctx context.Context, method, path string, payload interface{}) (*envelope, json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal gateway request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Failed to reach payment gateway", "method", method, "path", path, "error", err)
		return nil, nil, fmt.Errorf("failed to execute gateway request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errResp := &ErrorResponse{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(raw, errResp); err != nil {
			c.logger.Warn("Gateway returned non-2xx with unparsable body", "path", path, "status", resp.StatusCode)
		} else {
			c.logger.Warn("Gateway returned non-2xx", "path", path, "status", resp.StatusCode, "message", errResp.Message)
		}
		return nil, nil, errResp
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}

	return &env, json.RawMessage(raw), nil
}

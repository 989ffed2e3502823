package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/provider-credit-ledger/internal/domain/catalog"
	"github.com/provider-credit-ledger/internal/domain/purchase"
	"github.com/provider-credit-ledger/internal/domain/shared"
	"github.com/provider-credit-ledger/internal/payments"
	"github.com/provider-credit-ledger/internal/platform/gateway"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPurchaseService struct {
	mock.Mock
}

func (m *MockPurchaseService) ListPacks(ctx context.Context) ([]*catalog.CreditPack, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*catalog.CreditPack), args.Error(1)
}

func (m *MockPurchaseService) InitiatePurchase(ctx context.Context, req payments.InitiateRequest) (*payments.InitiateResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.InitiateResult), args.Error(1)
}

func (m *MockPurchaseService) VerifyPurchase(ctx context.Context, externalID string) (*payments.VerifyResult, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.VerifyResult), args.Error(1)
}

func (m *MockPurchaseService) HandleWebhook(ctx context.Context, signature string, body []byte) (*payments.VerifyResult, error) {
	args := m.Called(ctx, signature, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payments.VerifyResult), args.Error(1)
}

func newPurchaseRouter(svc *MockPurchaseService) *gin.Engine {
	purchases := NewPurchaseHandler(newTestLogger(), svc)
	webhooks := NewWebhookHandler(newTestLogger(), svc)

	router := newTestRouter()
	router.GET("/credit-packs", purchases.ListPacks)
	router.POST("/purchases", purchases.Initiate)
	router.POST("/purchases/:externalId/verify", purchases.Verify)
	router.POST("/webhooks/payments", webhooks.HandlePayment)
	return router
}

func newPendingPurchase(t *testing.T) *purchase.Purchase {
	t.Helper()
	pack := &catalog.CreditPack{ID: uuid.New(), Name: "Starter", Credits: decimal.NewFromInt(100), BonusCredits: decimal.NewFromInt(10), Price: decimal.NewFromInt(5000), Active: true}
	p, err := purchase.NewPurchase(therapist, pack, "NGN", purchase.PaymentMethodCard, purchase.NewTxRef())
	require.NoError(t, err)
	return p
}

func TestPurchaseHandler_ListPacks(t *testing.T) {
	svc := new(MockPurchaseService)
	svc.On("ListPacks", mock.Anything).Return([]*catalog.CreditPack{
		{ID: uuid.New(), Name: "Starter", Credits: decimal.NewFromInt(100), BonusCredits: decimal.NewFromInt(10), Price: decimal.NewFromInt(5000), Active: true, DisplayOrder: 1},
	}, nil)

	rr := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/credit-packs", nil)
	newPurchaseRouter(svc).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	response := decodeResponse[[]CreditPackResponse](t, rr)
	require.Len(t, response.Data, 1)
	assert.Equal(t, "Starter", response.Data[0].Name)
	assert.True(t, response.Data[0].TotalCredits.Equal(decimal.NewFromInt(110)))
}

func TestPurchaseHandler_Initiate(t *testing.T) {
	packID := uuid.New()
	validBody := `{
		"provider_id": "therapist-9",
		"provider_kind": "therapist",
		"pack_id": "` + packID.String() + `",
		"amount": "5000",
		"payment_method": "card",
		"customer": {"email": "ada@example.com", "name": "Ada"}
	}`

	tests := []struct {
		name         string
		body         string
		setupMocks   func(t *testing.T, svc *MockPurchaseService)
		expectedCode int
		checkBody    func(t *testing.T, rr *httptest.ResponseRecorder)
	}{
		{
			name: "created",
			body: validBody,
			setupMocks: func(t *testing.T, svc *MockPurchaseService) {
				p := newPendingPurchase(t)
				svc.On("InitiatePurchase", mock.Anything, mock.MatchedBy(func(req payments.InitiateRequest) bool {
					return req.ProviderID == "therapist-9" &&
						req.Kind == shared.ProviderKindTherapist &&
						req.PackID == packID &&
						req.Amount.Equal(decimal.NewFromInt(5000)) &&
						req.Method == purchase.PaymentMethodCard &&
						req.Customer.Email == "ada@example.com"
				})).Return(&payments.InitiateResult{Purchase: p, RedirectLink: "https://checkout.example.com/abc"}, nil)
			},
			expectedCode: http.StatusCreated,
			checkBody: func(t *testing.T, rr *httptest.ResponseRecorder) {
				response := decodeResponse[InitiatePurchaseResponse](t, rr)
				assert.Equal(t, "https://checkout.example.com/abc", response.Data.RedirectLink)
				assert.Equal(t, "PENDING", response.Data.Purchase.Status)
				assert.True(t, response.Data.Purchase.CreditsAmount.Equal(decimal.NewFromInt(110)))
			},
		},
		{
			name:         "missing customer email",
			body:         `{"provider_id":"therapist-9","provider_kind":"THERAPIST","pack_id":"` + packID.String() + `","payment_method":"card"}`,
			setupMocks:   func(*testing.T, *MockPurchaseService) {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "invalid pack id",
			body:         `{"provider_id":"therapist-9","provider_kind":"THERAPIST","pack_id":"starter","payment_method":"card","customer":{"email":"a@b.co"}}`,
			setupMocks:   func(*testing.T, *MockPurchaseService) {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "invalid provider kind",
			body:         `{"provider_id":"therapist-9","provider_kind":"SPA","pack_id":"` + packID.String() + `","payment_method":"card","customer":{"email":"a@b.co"}}`,
			setupMocks:   func(*testing.T, *MockPurchaseService) {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "pack not found",
			body: validBody,
			setupMocks: func(_ *testing.T, svc *MockPurchaseService) {
				svc.On("InitiatePurchase", mock.Anything, mock.Anything).Return(nil, catalog.ErrPackNotFound)
			},
			expectedCode: http.StatusNotFound,
		},
		{
			name: "pack inactive",
			body: validBody,
			setupMocks: func(_ *testing.T, svc *MockPurchaseService) {
				svc.On("InitiatePurchase", mock.Anything, mock.Anything).Return(nil, catalog.ErrPackInactive)
			},
			expectedCode: http.StatusConflict,
		},
		{
			name: "price mismatch",
			body: validBody,
			setupMocks: func(_ *testing.T, svc *MockPurchaseService) {
				svc.On("InitiatePurchase", mock.Anything, mock.Anything).Return(nil, payments.ErrPriceMismatch)
			},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "charge rejected",
			body: validBody,
			setupMocks: func(_ *testing.T, svc *MockPurchaseService) {
				svc.On("InitiatePurchase", mock.Anything, mock.Anything).Return(nil, payments.ErrChargeRejected)
			},
			expectedCode: http.StatusUnprocessableEntity,
		},
		{
			name: "gateway down",
			body: validBody,
			setupMocks: func(_ *testing.T, svc *MockPurchaseService) {
				svc.On("InitiatePurchase", mock.Anything, mock.Anything).Return(nil, errors.Join(payments.ErrGatewayUnavailable, errors.New("timeout")))
			},
			expectedCode: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockPurchaseService)
			tt.setupMocks(t, svc)

			rr := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodPost, "/purchases", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			newPurchaseRouter(svc).ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedCode, rr.Code, rr.Body.String())
			if tt.checkBody != nil {
				tt.checkBody(t, rr)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestPurchaseHandler_Verify(t *testing.T) {
	t.Run("completed", func(t *testing.T) {
		p := newPendingPurchase(t)
		completedAt := time.Now()
		p.Status = purchase.StatusCompleted
		p.CompletedAt = &completedAt

		svc := new(MockPurchaseService)
		svc.On("VerifyPurchase", mock.Anything, p.GatewayTxRef).Return(&payments.VerifyResult{
			Outcome:       payments.OutcomeCompleted,
			GatewayStatus: gateway.StatusSuccessful,
			Purchase:      p,
			NewBalance:    decimal.NewFromInt(130),
		}, nil)

		rr := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, "/purchases/"+p.GatewayTxRef+"/verify", nil)
		newPurchaseRouter(svc).ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		response := decodeResponse[VerifyPurchaseResponse](t, rr)
		assert.Equal(t, "completed", response.Data.Outcome)
		assert.Equal(t, "successful", response.Data.GatewayStatus)
		assert.Equal(t, "COMPLETED", response.Data.Purchase.Status)
		require.NotNil(t, response.Data.NewBalance)
		assert.True(t, response.Data.NewBalance.Equal(decimal.NewFromInt(130)))
	})

	t.Run("already completed omits balance", func(t *testing.T) {
		p := newPendingPurchase(t)
		svc := new(MockPurchaseService)
		svc.On("VerifyPurchase", mock.Anything, "4471029").Return(&payments.VerifyResult{
			Outcome:       payments.OutcomeAlreadyCompleted,
			GatewayStatus: gateway.StatusSuccessful,
			Purchase:      p,
		}, nil)

		rr := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, "/purchases/4471029/verify", nil)
		newPurchaseRouter(svc).ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		assert.NotContains(t, rr.Body.String(), "new_balance")
	})

	errorCases := map[string]struct {
		err          error
		expectedCode int
	}{
		"unknown purchase":    {err: purchase.ErrPurchaseNotFound{Reference: "CRD-x"}, expectedCode: http.StatusNotFound},
		"unknown at gateway":  {err: payments.ErrTransactionUnknown, expectedCode: http.StatusNotFound},
		"gateway unavailable": {err: payments.ErrGatewayUnavailable, expectedCode: http.StatusServiceUnavailable},
	}
	for name, tc := range errorCases {
		t.Run(name, func(t *testing.T) {
			svc := new(MockPurchaseService)
			svc.On("VerifyPurchase", mock.Anything, "CRD-x").Return(nil, tc.err)

			rr := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodPost, "/purchases/CRD-x/verify", nil)
			newPurchaseRouter(svc).ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code)
		})
	}
}

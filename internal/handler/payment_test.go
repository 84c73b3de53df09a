package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/boma-settlement/internal/auth"
	"github.com/josh-kwaku/boma-settlement/internal/domain"
	"github.com/josh-kwaku/boma-settlement/internal/service/payment"
)

type mockPaymentService struct {
	got      payment.InitiateRequest
	replayed bool
	err      error
}

func (m *mockPaymentService) Initiate(_ context.Context, req payment.InitiateRequest) (*payment.InitiateResult, error) {
	m.got = req
	if m.err != nil {
		return nil, m.err
	}
	return &payment.InitiateResult{
		Payment: &domain.Payment{
			ID:             uuid.New(),
			BookingID:      req.BookingID,
			GuestID:        req.GuestID,
			Amount:         req.Amount,
			Gateway:        "azampay",
			ExternalRef:    "ext-1",
			IdempotencyKey: req.IdempotencyKey,
			Status:         domain.PaymentStatusInitiated,
			CreatedAt:      time.Now().UTC(),
		},
		Replayed: m.replayed,
	}, nil
}

func (m *mockPaymentService) GetPayment(_ context.Context, _ uuid.UUID, _ domain.Actor) (*domain.Payment, error) {
	return nil, domain.ErrNotFound
}

func TestInitiatePayment(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		replayed   bool
		svcErr     error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "created",
			body:       `{"amount":126500,"currency":"TZS"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "replayed",
			body:       `{"amount":126500,"currency":"TZS"}`,
			replayed:   true,
			wantStatus: http.StatusOK,
		},
		{
			name:       "invalid json",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "non-positive amount",
			body:       `{"amount":0,"currency":"TZS"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "unsupported currency",
			body:       `{"amount":100,"currency":"XYZ"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "amount mismatch",
			body:       `{"amount":100,"currency":"TZS"}`,
			svcErr:     fmt.Errorf("Initiate: %w", domain.ErrAmountMismatch),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "AMOUNT_MISMATCH",
		},
		{
			name:       "idempotency key reused",
			body:       `{"amount":100,"currency":"TZS"}`,
			svcErr:     fmt.Errorf("Initiate: %w", domain.ErrIdempotencyKeyReused),
			wantStatus: http.StatusConflict,
			wantCode:   "IDEMPOTENCY_CONFLICT",
		},
		{
			name:       "gateway down",
			body:       `{"amount":100,"currency":"TZS"}`,
			svcErr:     fmt.Errorf("Initiate: %w", domain.ErrPaymentGateway),
			wantStatus: http.StatusBadGateway,
			wantCode:   "GATEWAY_ERROR",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockPaymentService{replayed: tc.replayed, err: tc.svcErr}
			h := NewPaymentHandler(svc)

			guest := domain.Actor{UserID: uuid.New(), Role: domain.RoleGuest}
			bookingID := uuid.New()

			req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/"+bookingID.String()+"/payments", strings.NewReader(tc.body))
			req.SetPathValue("id", bookingID.String())
			req.Header.Set("Idempotency-Key", "key-1")
			req = req.WithContext(auth.ContextWithActor(req.Context(), guest))
			rec := httptest.NewRecorder()

			h.Initiate(rec, req)

			require.Equal(t, tc.wantStatus, rec.Code)

			var resp APIResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

			if tc.wantCode != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tc.wantCode, resp.Error.Code)
				return
			}
			assert.True(t, resp.Success)
			assert.Equal(t, bookingID, svc.got.BookingID)
			assert.Equal(t, guest.UserID, svc.got.GuestID)
			assert.Equal(t, "key-1", svc.got.IdempotencyKey)
			assert.Equal(t, domain.NewMoney(126500, domain.CurrencyTZS), svc.got.Amount)
		})
	}
}

func TestInitiatePayment_RequiresActor(t *testing.T) {
	h := NewPaymentHandler(&mockPaymentService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/x/payments", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.Initiate(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetPayment_NotFound(t *testing.T) {
	h := NewPaymentHandler(&mockPaymentService{})
	guest := domain.Actor{UserID: uuid.New(), Role: domain.RoleGuest}

	tests := []struct {
		name string
		id   string
	}{
		{name: "malformed id", id: "not-a-uuid"},
		{name: "unknown payment", id: uuid.NewString()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/"+tc.id, nil)
			req.SetPathValue("id", tc.id)
			req = req.WithContext(auth.ContextWithActor(req.Context(), guest))
			rec := httptest.NewRecorder()

			h.Get(rec, req)

			assert.Equal(t, http.StatusNotFound, rec.Code)
		})
	}
}

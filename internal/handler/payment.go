package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/boma-settlement/internal/auth"
	"github.com/josh-kwaku/boma-settlement/internal/domain"
	"github.com/josh-kwaku/boma-settlement/internal/logging"
	"github.com/josh-kwaku/boma-settlement/internal/service/payment"
)

type paymentService interface {
	Initiate(ctx context.Context, req payment.InitiateRequest) (*payment.InitiateResult, error)
	GetPayment(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Payment, error)
}

type PaymentHandler struct {
	payments paymentService
}

func NewPaymentHandler(payments paymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type initiatePaymentRequest struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Gateway        string `json:"gateway,omitempty"`
	PayerReference string `json:"payer_reference,omitempty"`
}

func (r initiatePaymentRequest) Validate() []FieldError {
	var errs []FieldError

	if r.Amount <= 0 {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}

	if r.Currency == "" {
		errs = append(errs, FieldError{Field: "currency", Message: "required"})
	} else if !domain.Currency(r.Currency).IsValid() {
		errs = append(errs, FieldError{Field: "currency", Message: "unsupported currency"})
	}

	return errs
}

type paymentDTO struct {
	ID             uuid.UUID  `json:"id"`
	BookingID      uuid.UUID  `json:"booking_id"`
	Amount         int64      `json:"amount"`
	Currency       string     `json:"currency"`
	Gateway        string     `json:"gateway"`
	ExternalRef    string     `json:"external_ref"`
	IdempotencyKey string     `json:"idempotency_key"`
	Status         string     `json:"status"`
	FailureReason  *string    `json:"failure_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

func toPaymentDTO(p *domain.Payment) paymentDTO {
	return paymentDTO{
		ID:             p.ID,
		BookingID:      p.BookingID,
		Amount:         p.Amount.Amount,
		Currency:       string(p.Amount.Currency),
		Gateway:        p.Gateway,
		ExternalRef:    p.ExternalRef,
		IdempotencyKey: p.IdempotencyKey,
		Status:         string(p.Status),
		FailureReason:  p.FailureReason,
		CreatedAt:      p.CreatedAt,
		CompletedAt:    p.CompletedAt,
	}
}

func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	actor, bookingID, ok := bookingTarget(w, r)
	if !ok {
		return
	}

	var req initiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	res, err := h.payments.Initiate(r.Context(), payment.InitiateRequest{
		BookingID:      bookingID,
		GuestID:        actor.UserID,
		Amount:         domain.NewMoney(req.Amount, domain.Currency(req.Currency)),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		Gateway:        req.Gateway,
		PayerReference: req.PayerReference,
	})
	if err != nil {
		log.Warn("payment initiation failed", "booking_id", bookingID, "error", err)
		RespondDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/payments/%s", res.Payment.ID))
	RespondSuccess(w, status, toPaymentDTO(res.Payment))
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	paymentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	p, err := h.payments.GetPayment(r.Context(), paymentID, actor)
	if err != nil {
		logging.FromContext(r.Context()).Warn("payment lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toPaymentDTO(p))
}

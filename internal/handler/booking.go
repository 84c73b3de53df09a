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
	"github.com/josh-kwaku/boma-settlement/internal/service/booking"
)

type bookingService interface {
	CreateBooking(ctx context.Context, req booking.CreateRequest) (*domain.Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Booking, error)
	CancelBooking(ctx context.Context, id uuid.UUID, actor domain.Actor, reason string) (*domain.RefundQuote, error)
	CheckIn(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Booking, error)
	CheckOut(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Booking, error)
	MarkNoShow(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Booking, error)
	FileDispute(ctx context.Context, id uuid.UUID, actor domain.Actor, req booking.DisputeRequest) (*domain.Booking, error)
	ResolveDispute(ctx context.Context, id uuid.UUID, actor domain.Actor, award domain.Money) (*domain.Booking, error)
}

type BookingHandler struct {
	bookings bookingService
}

func NewBookingHandler(bookings bookingService) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

type createBookingRequest struct {
	PropertyID string `json:"property_id"`
	CheckIn    string `json:"check_in"`
	CheckOut   string `json:"check_out"`
	NumGuests  int    `json:"num_guests"`
}

func (r createBookingRequest) parse() (booking.CreateRequest, []FieldError) {
	var (
		out  booking.CreateRequest
		errs []FieldError
		err  error
	)

	if r.PropertyID == "" {
		errs = append(errs, FieldError{Field: "property_id", Message: "required"})
	} else if out.PropertyID, err = uuid.Parse(r.PropertyID); err != nil {
		errs = append(errs, FieldError{Field: "property_id", Message: "must be a valid UUID"})
	}

	if r.CheckIn == "" {
		errs = append(errs, FieldError{Field: "check_in", Message: "required"})
	} else if out.CheckIn, err = domain.ParseDate(r.CheckIn); err != nil {
		errs = append(errs, FieldError{Field: "check_in", Message: "must be YYYY-MM-DD"})
	}

	if r.CheckOut == "" {
		errs = append(errs, FieldError{Field: "check_out", Message: "required"})
	} else if out.CheckOut, err = domain.ParseDate(r.CheckOut); err != nil {
		errs = append(errs, FieldError{Field: "check_out", Message: "must be YYYY-MM-DD"})
	}

	if r.NumGuests <= 0 {
		errs = append(errs, FieldError{Field: "num_guests", Message: "must be greater than 0"})
	}
	out.NumGuests = r.NumGuests

	return out, errs
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

type disputeRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

func (r disputeRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Amount <= 0 {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than 0"})
	}
	if r.Reason == "" {
		errs = append(errs, FieldError{Field: "reason", Message: "required"})
	}
	return errs
}

type resolveDisputeRequest struct {
	Award int64 `json:"award"`
}

type priceDTO struct {
	Currency    string `json:"currency"`
	NightlyRate int64  `json:"nightly_rate"`
	Nights      int    `json:"nights"`
	NightsCost  int64  `json:"nights_cost"`
	CleaningFee int64  `json:"cleaning_fee"`
	PlatformFee int64  `json:"platform_fee"`
	Total       int64  `json:"total"`
	Deposit     int64  `json:"deposit"`
	AmountDue   int64  `json:"amount_due"`
}

type bookingDTO struct {
	ID                 uuid.UUID  `json:"id"`
	PropertyID         uuid.UUID  `json:"property_id"`
	GuestID            uuid.UUID  `json:"guest_id"`
	HostID             uuid.UUID  `json:"host_id"`
	CheckIn            string     `json:"check_in"`
	CheckOut           string     `json:"check_out"`
	NumGuests          int        `json:"num_guests"`
	Status             string     `json:"status"`
	CancellationPolicy string     `json:"cancellation_policy"`
	Price              priceDTO   `json:"price"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	DepositHoldUntil   *time.Time `json:"deposit_hold_until,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	RefundAmount       *int64     `json:"refund_amount,omitempty"`
	DisputeAmount      *int64     `json:"dispute_amount,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func toBookingDTO(b *domain.Booking) bookingDTO {
	return bookingDTO{
		ID:                 b.ID,
		PropertyID:         b.PropertyID,
		GuestID:            b.GuestID,
		HostID:             b.HostID,
		CheckIn:            b.CheckIn.Format(time.DateOnly),
		CheckOut:           b.CheckOut.Format(time.DateOnly),
		NumGuests:          b.NumGuests,
		Status:             string(b.Status),
		CancellationPolicy: string(b.CancellationPolicy),
		Price: priceDTO{
			Currency:    string(b.Currency()),
			NightlyRate: b.Price.NightlyRate.Amount,
			Nights:      b.Price.Nights,
			NightsCost:  b.Price.NightsCost.Amount,
			CleaningFee: b.Price.CleaningFee.Amount,
			PlatformFee: b.Price.PlatformFee.Amount,
			Total:       b.Price.Total.Amount,
			Deposit:     b.Price.Deposit.Amount,
			AmountDue:   b.Price.AmountDue().Amount,
		},
		ExpiresAt:          b.ExpiresAt,
		DepositHoldUntil:   b.DepositHoldUntil,
		CancelledAt:        b.CancelledAt,
		CancellationReason: b.CancellationReason,
		RefundAmount:       b.RefundAmount,
		DisputeAmount:      b.DisputeAmount,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	create, fields := req.parse()
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}
	create.GuestID = actor.UserID

	b, err := h.bookings.CreateBooking(r.Context(), create)
	if err != nil {
		logging.FromContext(r.Context()).Warn("booking creation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/bookings/%s", b.ID))
	RespondSuccess(w, http.StatusCreated, toBookingDTO(b))
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := bookingTarget(w, r)
	if !ok {
		return
	}

	b, err := h.bookings.GetBooking(r.Context(), id, actor)
	if err != nil {
		logging.FromContext(r.Context()).Warn("booking lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toBookingDTO(b))
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := bookingTarget(w, r)
	if !ok {
		return
	}

	var req cancelBookingRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			RespondAppError(w, ErrInvalidRequest, nil)
			return
		}
	}

	quote, err := h.bookings.CancelBooking(r.Context(), id, actor, req.Reason)
	if err != nil {
		logging.FromContext(r.Context()).Warn("booking cancellation failed", "booking_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, quote)
}

func (h *BookingHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "check-in", h.bookings.CheckIn)
}

func (h *BookingHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "check-out", h.bookings.CheckOut)
}

func (h *BookingHandler) NoShow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "no-show", h.bookings.MarkNoShow)
}

func (h *BookingHandler) FileDispute(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := bookingTarget(w, r)
	if !ok {
		return
	}

	var req disputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	b, err := h.bookings.GetBooking(r.Context(), id, actor)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	b, err = h.bookings.FileDispute(r.Context(), id, actor, booking.DisputeRequest{
		Amount: domain.NewMoney(req.Amount, b.Currency()),
		Reason: req.Reason,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("dispute filing failed", "booking_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toBookingDTO(b))
}

func (h *BookingHandler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := bookingTarget(w, r)
	if !ok {
		return
	}

	var req resolveDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if req.Award < 0 {
		RespondValidationError(w, []FieldError{{Field: "award", Message: "must not be negative"}})
		return
	}

	b, err := h.bookings.GetBooking(r.Context(), id, actor)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	b, err = h.bookings.ResolveDispute(r.Context(), id, actor, domain.NewMoney(req.Award, b.Currency()))
	if err != nil {
		logging.FromContext(r.Context()).Warn("dispute resolution failed", "booking_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toBookingDTO(b))
}

type bookingAction func(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Booking, error)

func (h *BookingHandler) transition(w http.ResponseWriter, r *http.Request, name string, action bookingAction) {
	actor, id, ok := bookingTarget(w, r)
	if !ok {
		return
	}

	b, err := action(r.Context(), id, actor)
	if err != nil {
		logging.FromContext(r.Context()).Warn("booking "+name+" failed", "booking_id", id, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toBookingDTO(b))
}

// bookingTarget reads the caller and the {id} path value, answering the
// request itself when either is missing.
func bookingTarget(w http.ResponseWriter, r *http.Request) (domain.Actor, uuid.UUID, bool) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return domain.Actor{}, uuid.Nil, false
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return domain.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}

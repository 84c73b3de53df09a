package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
	"github.com/josh-kwaku/boma-settlement/internal/logging"
)

// paymentNamespace scopes payment ids derived from (guest, idempotency key).
var paymentNamespace = uuid.MustParse("5c1f4e0a-8d3b-4f6e-9a27-3b8e2d7c6a10")

// PaymentID is the id a payment initiated by guestID under key gets. The
// gateway sees it as the external id, so a retry after a lost response asks
// the gateway for the same checkout instead of a second one.
func PaymentID(guestID uuid.UUID, key string) uuid.UUID {
	return uuid.NewSHA1(paymentNamespace, []byte(guestID.String()+"/"+key))
}

type InitiateRequest struct {
	BookingID      uuid.UUID
	GuestID        uuid.UUID
	Amount         domain.Money
	IdempotencyKey string
	Gateway        string
	PayerReference string
}

type InitiateResult struct {
	Payment  *domain.Payment
	Replayed bool
}

// Initiate starts a payment for an awaiting booking. Repeating a request with
// the same idempotency key returns the original payment and calls the gateway
// once. A gateway failure stores nothing so the same key can be retried.
func (o *Orchestrator) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	log := logging.FromContext(ctx)

	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if req.IdempotencyKey == "" || len(req.IdempotencyKey) > 255 {
		return nil, fmt.Errorf("Initiate: idempotency key: %w", domain.ErrValidation)
	}

	existing, err := o.replay(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Initiate: %w", err)
	}
	if existing != nil {
		log.Info("idempotent replay", "payment_id", existing.ID, "idempotency_key", req.IdempotencyKey)
		return &InitiateResult{Payment: existing, Replayed: true}, nil
	}

	b, err := o.bookings.GetBooking(ctx, req.BookingID, domain.Actor{UserID: req.GuestID, Role: domain.RoleGuest})
	if err != nil {
		return nil, fmt.Errorf("Initiate: %w", err)
	}
	if err := o.checkPayable(b, req); err != nil {
		return nil, fmt.Errorf("Initiate: %w", err)
	}

	gatewayName := req.Gateway
	if gatewayName == "" {
		gatewayName = o.settings.DefaultGateway
	}
	adapter, err := o.gateways.Get(gatewayName)
	if err != nil {
		return nil, fmt.Errorf("Initiate: %w", err)
	}

	now := o.now().UTC()
	p := &domain.Payment{
		ID:             PaymentID(req.GuestID, req.IdempotencyKey),
		BookingID:      b.ID,
		GuestID:        req.GuestID,
		Amount:         req.Amount,
		Gateway:        adapter.Name(),
		IdempotencyKey: req.IdempotencyKey,
		PayerReference: req.PayerReference,
		Status:         domain.PaymentStatusInitiated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	ref, err := adapter.Initiate(ctx, p.Amount, p.PayerReference, p.ID.String())
	if err != nil {
		log.Warn("gateway initiation failed", "booking_id", b.ID, "gateway", p.Gateway, "error", err)
		if errors.Is(err, domain.ErrValidation) {
			return nil, fmt.Errorf("Initiate: %w", err)
		}
		return nil, fmt.Errorf("Initiate: %v: %w", err, domain.ErrPaymentGateway)
	}
	p.ExternalRef = ref

	if err := o.store(ctx, p); err != nil {
		if errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
			// A concurrent request with the same key won the insert.
			existing, rerr := o.replay(ctx, req)
			if rerr != nil {
				return nil, fmt.Errorf("Initiate: %w", rerr)
			}
			if existing != nil {
				log.Info("idempotent replay (race)", "payment_id", existing.ID, "idempotency_key", req.IdempotencyKey)
				return &InitiateResult{Payment: existing, Replayed: true}, nil
			}
		}
		return nil, fmt.Errorf("Initiate: %w", err)
	}

	log.Info("payment initiated",
		"payment_id", p.ID,
		"booking_id", p.BookingID,
		"gateway", p.Gateway,
		"external_ref", p.ExternalRef,
		"amount", p.Amount.String(),
	)
	return &InitiateResult{Payment: p}, nil
}

// replay returns the payment already stored under the guest's key. The same
// key with a different booking or amount is ErrIdempotencyKeyReused.
func (o *Orchestrator) replay(ctx context.Context, req InitiateRequest) (*domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, o.settings.StoreTimeout)
	defer cancel()

	p, err := o.payments.GetByIdempotencyKey(ctx, req.GuestID, req.IdempotencyKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("replay: %w", err)
	}
	if p.BookingID != req.BookingID || !p.Amount.Equal(req.Amount) {
		return nil, fmt.Errorf("replay: %w", domain.ErrIdempotencyKeyReused)
	}
	return p, nil
}

func (o *Orchestrator) checkPayable(b *domain.Booking, req InitiateRequest) error {
	if b.GuestID != req.GuestID {
		return fmt.Errorf("checkPayable: %w", domain.ErrForbidden)
	}
	if b.Status != domain.BookingStatusAwaitingPayment {
		return fmt.Errorf("checkPayable: booking is %s: %w", b.Status, domain.ErrBookingNotPayable)
	}
	if b.ExpiresAt != nil && !o.now().Before(*b.ExpiresAt) {
		return fmt.Errorf("checkPayable: payment window closed: %w", domain.ErrBookingNotPayable)
	}
	if !req.Amount.Equal(b.Price.AmountDue()) {
		return fmt.Errorf("checkPayable: got %s, due %s: %w", req.Amount, b.Price.AmountDue(), domain.ErrAmountMismatch)
	}
	return nil
}

func (o *Orchestrator) store(ctx context.Context, p *domain.Payment) error {
	ctx, cancel := context.WithTimeout(ctx, o.settings.StoreTimeout)
	defer cancel()

	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := o.payments.Create(ctx, tx, p); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := o.events.Create(ctx, tx, &domain.PaymentEvent{
		ID:        uuid.New(),
		PaymentID: p.ID,
		ToStatus:  p.Status,
		Source:    domain.PaymentEventSourceGuest,
		CreatedAt: p.CreatedAt,
	}); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
	"github.com/josh-kwaku/boma-settlement/internal/ledger"
	"github.com/josh-kwaku/boma-settlement/internal/logging"
	"github.com/josh-kwaku/boma-settlement/internal/pricing"
)

// Outcome says what applying a reported status did. It is stored on the
// gateway event audit row.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeAnomaly   Outcome = "anomaly"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeUnmatched Outcome = "unmatched"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

type statusReport struct {
	Status  domain.PaymentStatus
	Message string
	Raw     json.RawMessage
	Source  domain.PaymentEventSource
	// ForceCancel cancels the booking regardless of how many attempts remain.
	ForceCancel bool
}

// applyStatus moves a payment to the reported status. Payment, ledger and
// booking change in one transaction; notifications go out after commit.
// Redelivery of the current status is a no-op. A report that contradicts a
// different terminal status is recorded as an anomaly and changes nothing.
func (o *Orchestrator) applyStatus(ctx context.Context, paymentID uuid.UUID, r statusReport) (Outcome, error) {
	for attempt := 0; ; attempt++ {
		outcome, events, err := o.applyOnce(ctx, paymentID, r)
		if err == nil {
			o.notifier.Publish(ctx, events...)
			return outcome, nil
		}
		if errors.Is(err, domain.ErrIdempotencyViolation) {
			return OutcomeAnomaly, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) || attempt >= o.settings.ConflictRetries {
			return OutcomeFailed, fmt.Errorf("applyStatus: %w", err)
		}
		logging.FromContext(ctx).Warn("booking changed under payment, retrying",
			"payment_id", paymentID,
			"attempt", attempt+1,
		)
	}
}

func (o *Orchestrator) applyOnce(ctx context.Context, paymentID uuid.UUID, r statusReport) (Outcome, []domain.Event, error) {
	log := logging.FromContext(ctx)

	ctx, cancel := context.WithTimeout(ctx, o.settings.StoreTimeout)
	defer cancel()

	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return "", nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	p, err := o.payments.GetForUpdate(ctx, tx, paymentID)
	if err != nil {
		return "", nil, err
	}

	switch {
	case p.Status == r.Status:
		log.Info("duplicate payment status ignored", "payment_id", p.ID, "status", p.Status, "source", r.Source)
		return OutcomeDuplicate, nil, nil
	case p.Status.IsTerminal():
		tx.Rollback()
		o.recordAnomaly(ctx, p, domain.AnomalyIdempotencyViolation, r.Status,
			fmt.Sprintf("%s reported %s for a %s payment", r.Source, r.Status, p.Status))
		return "", nil, domain.ErrIdempotencyViolation
	case !r.Status.IsTerminal():
		if p.Status != domain.PaymentStatusInitiated || r.Status != domain.PaymentStatusPending {
			return OutcomeIgnored, nil, nil
		}
	}

	now := o.now().UTC()
	var completedAt *time.Time
	var reason *string
	if r.Status.IsTerminal() {
		completedAt = &now
	}
	if r.Status == domain.PaymentStatusFailed || r.Status == domain.PaymentStatusCancelled {
		msg := r.Message
		if msg == "" {
			msg = string(r.Status)
		}
		reason = &msg
	}

	if err := o.payments.UpdateStatus(ctx, tx, p.ID, r.Status, reason, r.Raw, completedAt); err != nil {
		return "", nil, err
	}
	from := p.Status
	if err := o.events.Create(ctx, tx, &domain.PaymentEvent{
		ID:         uuid.New(),
		PaymentID:  p.ID,
		FromStatus: &from,
		ToStatus:   r.Status,
		Source:     r.Source,
		Payload:    r.Raw,
		CreatedAt:  now,
	}); err != nil {
		return "", nil, err
	}
	p.Status = r.Status
	p.FailureReason = reason
	p.CompletedAt = completedAt

	var events []domain.Event
	switch r.Status {
	case domain.PaymentStatusSuccess:
		events, err = o.settle(ctx, tx, p, now)
	case domain.PaymentStatusFailed, domain.PaymentStatusCancelled:
		events, err = o.fail(ctx, tx, p, r)
	}
	if err != nil {
		return "", nil, err
	}

	if err := tx.Commit(); err != nil {
		return "", nil, fmt.Errorf("commit: %w", err)
	}

	log.Info("payment status applied",
		"payment_id", p.ID,
		"booking_id", p.BookingID,
		"from", from,
		"to", p.Status,
		"source", r.Source,
	)
	return OutcomeApplied, events, nil
}

// settle posts the ledger for a successful payment. Money arriving for a
// booking that is no longer awaiting payment is captured and owed back to
// the guest.
func (o *Orchestrator) settle(ctx context.Context, tx *sql.Tx, p *domain.Payment, now time.Time) ([]domain.Event, error) {
	b, err := o.bookings.LoadForPayment(ctx, tx, p.BookingID)
	if err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}

	if b.Status == domain.BookingStatusAwaitingPayment {
		fee := pricing.GatewayFee(p.Amount, o.settings.GatewayFeePct)
		g, err := ledger.Settlement(p, b, fee)
		if err != nil {
			return nil, fmt.Errorf("settle: %w", err)
		}
		if err := o.ledger.Post(ctx, tx, g); err != nil {
			return nil, fmt.Errorf("settle: %w", err)
		}
		if err := o.bookings.ConfirmPaid(ctx, tx, b); err != nil {
			return nil, fmt.Errorf("settle: %w", err)
		}
		return []domain.Event{domain.NewBookingEvent(domain.EventBookingConfirmed, b, map[string]any{
			"payment_id": p.ID,
			"amount":     p.Amount,
		})}, nil
	}

	if err := o.ledger.Post(ctx, tx, ledger.Capture(p, b.GuestID)); err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}
	rf := &domain.Refund{
		ID:        uuid.New(),
		PaymentID: p.ID,
		BookingID: b.ID,
		Amount:    p.Amount,
		Reason:    domain.RefundReasonLatePayment,
		Status:    domain.RefundStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.refunds.Create(ctx, tx, rf); err != nil {
		return nil, fmt.Errorf("settle: %w", err)
	}

	logging.FromContext(ctx).Warn("payment succeeded for booking not awaiting payment, refunding",
		"payment_id", p.ID,
		"booking_id", b.ID,
		"booking_status", b.Status,
		"refund_id", rf.ID,
	)
	return []domain.Event{domain.NewBookingEvent(domain.EventRefundIssued, b, map[string]any{
		"refund_id": rf.ID,
		"amount":    rf.Amount,
		"reason":    rf.Reason,
	})}, nil
}

// fail cancels the booking once it has run out of payment attempts.
func (o *Orchestrator) fail(ctx context.Context, tx *sql.Tx, p *domain.Payment, r statusReport) ([]domain.Event, error) {
	b, err := o.bookings.LoadForPayment(ctx, tx, p.BookingID)
	if err != nil {
		return nil, fmt.Errorf("fail: %w", err)
	}
	if b.Status != domain.BookingStatusAwaitingPayment {
		return nil, nil
	}

	failed, err := o.payments.CountFailedForBooking(ctx, tx, b.ID)
	if err != nil {
		return nil, fmt.Errorf("fail: %w", err)
	}

	data := map[string]any{
		"payment_id": p.ID,
		"reason":     *p.FailureReason,
		"attempts":   failed,
	}
	if !r.ForceCancel && failed < o.settings.MaxAttempts {
		return []domain.Event{domain.NewBookingEvent(domain.EventPaymentFailed, b, data)}, nil
	}

	if err := o.bookings.CancelUnpaid(ctx, tx, b, *p.FailureReason); err != nil {
		return nil, fmt.Errorf("fail: %w", err)
	}
	return []domain.Event{
		domain.NewBookingEvent(domain.EventPaymentFailed, b, data),
		domain.NewBookingEvent(domain.EventBookingCancelled, b, map[string]any{
			"reason":        *p.FailureReason,
			"refund_amount": domain.Zero(b.Currency()),
		}),
	}, nil
}

// recordAnomaly stores a discrepancy for manual review and raises an alert.
// It runs outside any transaction so the record survives a rollback.
func (o *Orchestrator) recordAnomaly(ctx context.Context, p *domain.Payment, kind domain.AnomalyKind, reported domain.PaymentStatus, detail string) {
	log := logging.FromContext(ctx)

	a := &domain.PaymentAnomaly{
		ID:             uuid.New(),
		PaymentID:      p.ID,
		Kind:           kind,
		LocalStatus:    p.Status,
		ReportedStatus: reported,
		Detail:         detail,
		CreatedAt:      o.now().UTC(),
	}
	if err := o.anomalies.Create(context.WithoutCancel(ctx), a); err != nil {
		log.Error("failed to record payment anomaly", "payment_id", p.ID, "kind", kind, "error", err)
	}
	log.Error("payment anomaly",
		"payment_id", p.ID,
		"kind", kind,
		"local_status", p.Status,
		"reported_status", reported,
		"detail", detail,
	)

	o.notifier.Publish(ctx, domain.Event{
		ID:         uuid.New(),
		Type:       domain.EventIntegrityAlert,
		EntityType: "payment",
		EntityID:   p.ID,
		Data: map[string]any{
			"kind":            kind,
			"booking_id":      p.BookingID,
			"local_status":    p.Status,
			"reported_status": reported,
			"detail":          detail,
		},
		OccurredAt: a.CreatedAt,
	})
}

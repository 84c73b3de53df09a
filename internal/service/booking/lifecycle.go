package booking

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
	"github.com/josh-kwaku/boma-settlement/internal/ledger"
	"github.com/josh-kwaku/boma-settlement/internal/logging"
)

const reasonPaymentWindow = "payment window elapsed"

// CancelBooking cancels on behalf of actor and returns what is refunded. A
// guest gets the property's policy; a host or admin cancellation refunds the
// whole refundable base. The deposit always goes back in full.
func (s *Service) CancelBooking(ctx context.Context, id uuid.UUID, actor domain.Actor, reason string) (*domain.RefundQuote, error) {
	var (
		quote   domain.RefundQuote
		refunds []*domain.Refund
	)

	b, err := s.transition(ctx, id, EventCancel, func(ctx context.Context, tx *sql.Tx, b *domain.Booking, now time.Time) error {
		if !actor.IsPrivileged() && !b.IsParty(actor.UserID) {
			return domain.ErrNotFound
		}
		refunds = refunds[:0]

		paid, err := s.successfulPayment(ctx, tx, b.ID)
		if err != nil {
			return err
		}

		if actor.Role != domain.RoleAdmin && actor.UserID == b.GuestID {
			quote, err = s.policy.Quote(b, now, paid != nil)
		} else {
			quote, err = s.policy.FullQuote(b, paid != nil)
		}
		if err != nil {
			return err
		}

		if paid != nil {
			rf, err := s.recordRefund(ctx, tx, b, paid.ID, quote.Refund, domain.RefundReasonCancellation, now)
			if err != nil {
				return err
			}
			if rf != nil {
				if err := s.ledger.Post(ctx, tx, ledger.CancellationRefund(rf.ID, b, rf.Amount)); err != nil {
					return err
				}
			}
			dep, err := s.recordRefund(ctx, tx, b, paid.ID, quote.DepositRefund, domain.RefundReasonDepositRelease, now)
			if err != nil {
				return err
			}
			refunds = append(refunds, rf, dep)
		}

		total := quote.TotalRefund().Amount
		b.RefundAmount = &total
		b.CancelledAt = &now
		if actor.UserID != uuid.Nil {
			by := actor.UserID
			b.CancelledBy = &by
		}
		if reason != "" {
			b.CancellationReason = &reason
		}
		b.ExpiresAt = nil
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("CancelBooking: %w", err)
	}

	logging.FromContext(ctx).Info("booking cancelled",
		"booking_id", b.ID,
		"actor", actor.UserID,
		"role", actor.Role,
		"refund", quote.Refund.String(),
		"deposit_refund", quote.DepositRefund.String(),
	)
	events := append([]domain.Event{domain.NewBookingEvent(domain.EventBookingCancelled, b, map[string]any{
		"refund_total": quote.TotalRefund(),
		"reason":       reason,
	})}, refundEvents(b, refunds)...)
	s.events.Publish(ctx, events...)
	return &quote, nil
}

func (s *Service) CheckIn(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Booking, error) {
	b, err := s.transition(ctx, id, EventCheckIn, func(_ context.Context, _ *sql.Tx, b *domain.Booking, now time.Time) error {
		if !isHostOrAdmin(actor, b) {
			return domain.ErrForbidden
		}
		if now.Before(b.CheckIn) || !now.Before(b.CheckOut) {
			return fmt.Errorf("check-in allowed from %s until %s: %w",
				b.CheckIn.Format(time.DateOnly), b.CheckOut.Format(time.DateOnly), domain.ErrValidation)
		}
		b.CheckedInAt = &now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("CheckIn: %w", err)
	}
	return b, nil
}

// CheckOut starts the deposit hold during which the host may dispute.
func (s *Service) CheckOut(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Booking, error) {
	b, err := s.transition(ctx, id, EventCheckOut, func(_ context.Context, _ *sql.Tx, b *domain.Booking, now time.Time) error {
		if !actor.IsPrivileged() && !b.IsParty(actor.UserID) {
			return domain.ErrNotFound
		}
		hold := now.Add(s.settings.DepositHold)
		b.CheckedOutAt = &now
		b.DepositHoldUntil = &hold
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("CheckOut: %w", err)
	}
	return b, nil
}

// MarkNoShow is allowed once the check-in day has passed. The stay is
// forfeited; only the deposit goes back.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Booking, error) {
	var refunds []*domain.Refund

	b, err := s.transition(ctx, id, EventMarkNoShow, func(ctx context.Context, tx *sql.Tx, b *domain.Booking, now time.Time) error {
		if !isHostOrAdmin(actor, b) {
			return domain.ErrForbidden
		}
		if now.Before(b.CheckIn.Add(24 * time.Hour)) {
			return fmt.Errorf("no-show only after %s: %w", b.CheckIn.Format(time.DateOnly), domain.ErrValidation)
		}
		refunds = refunds[:0]

		paid, err := s.successfulPayment(ctx, tx, b.ID)
		if err != nil {
			return err
		}
		if paid != nil {
			dep, err := s.recordRefund(ctx, tx, b, paid.ID, b.Price.Deposit, domain.RefundReasonDepositRelease, now)
			if err != nil {
				return err
			}
			refunds = append(refunds, dep)
			amt := b.Price.Deposit.Amount
			b.RefundAmount = &amt
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("MarkNoShow: %w", err)
	}

	s.events.Publish(ctx, refundEvents(b, refunds)...)
	return b, nil
}

type DisputeRequest struct {
	Amount domain.Money
	Reason string
}

// FileDispute lets the host claim against the deposit before the hold ends.
func (s *Service) FileDispute(ctx context.Context, id uuid.UUID, actor domain.Actor, req DisputeRequest) (*domain.Booking, error) {
	b, err := s.transition(ctx, id, EventDispute, func(_ context.Context, _ *sql.Tx, b *domain.Booking, now time.Time) error {
		if !isHostOrAdmin(actor, b) {
			return domain.ErrForbidden
		}
		if b.DepositHoldUntil == nil || !now.Before(*b.DepositHoldUntil) {
			return fmt.Errorf("deposit hold has ended: %w", domain.ErrValidation)
		}
		if req.Amount.Currency != b.Currency() {
			return fmt.Errorf("claim in %s for %s booking: %w", req.Amount.Currency, b.Currency(), domain.ErrCurrencyMismatch)
		}
		if !req.Amount.IsPositive() || req.Amount.Amount > b.Price.Deposit.Amount {
			return fmt.Errorf("claim must be between 1 and %d: %w", b.Price.Deposit.Amount, domain.ErrValidation)
		}
		amt := req.Amount.Amount
		b.DisputeAmount = &amt
		if req.Reason != "" {
			r := req.Reason
			b.DisputeReason = &r
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("FileDispute: %w", err)
	}

	s.events.Publish(ctx, domain.NewBookingEvent(domain.EventDisputeFiled, b, map[string]any{
		"amount": req.Amount,
		"reason": req.Reason,
	}))
	return b, nil
}

// ResolveDispute pays award from the deposit to the host and releases the rest.
func (s *Service) ResolveDispute(ctx context.Context, id uuid.UUID, actor domain.Actor, award domain.Money) (*domain.Booking, error) {
	if !actor.IsPrivileged() {
		return nil, fmt.Errorf("ResolveDispute: %w", domain.ErrForbidden)
	}

	var refunds []*domain.Refund
	b, err := s.transition(ctx, id, EventResolve, func(ctx context.Context, tx *sql.Tx, b *domain.Booking, now time.Time) error {
		if award.Currency != b.Currency() {
			return domain.ErrCurrencyMismatch
		}
		claimed := int64(0)
		if b.DisputeAmount != nil {
			claimed = *b.DisputeAmount
		}
		if award.IsNegative() || award.Amount > claimed {
			return fmt.Errorf("award must be between 0 and %d: %w", claimed, domain.ErrValidation)
		}
		refunds = refunds[:0]

		paid, err := s.successfulPayment(ctx, tx, b.ID)
		if err != nil {
			return err
		}
		if paid == nil {
			return fmt.Errorf("disputed booking %s has no payment: %w", b.ID, domain.ErrNotFound)
		}

		if award.IsPositive() {
			if err := s.ledger.Post(ctx, tx, ledger.DisputeAward(uuid.New(), b, award)); err != nil {
				return err
			}
		}
		rest, err := b.Price.Deposit.Sub(award)
		if err != nil {
			return err
		}
		rf, err := s.recordRefund(ctx, tx, b, paid.ID, rest, domain.RefundReasonDispute, now)
		if err != nil {
			return err
		}
		refunds = append(refunds, rf)
		b.RefundAmount = &rest.Amount
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ResolveDispute: %w", err)
	}

	logging.FromContext(ctx).Info("dispute resolved", "booking_id", b.ID, "award", award.String())
	events := append([]domain.Event{domain.NewBookingEvent(domain.EventBookingCompleted, b, map[string]any{
		"dispute_award": award,
	})}, refundEvents(b, refunds)...)
	s.events.Publish(ctx, events...)
	return b, nil
}

// ExpireBooking cancels an unpaid booking whose payment window has passed and
// frees its dates. A payment that lands afterwards is refunded automatically.
func (s *Service) ExpireBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	b, err := s.transition(ctx, id, EventExpire, func(_ context.Context, _ *sql.Tx, b *domain.Booking, now time.Time) error {
		if b.ExpiresAt == nil || now.Before(*b.ExpiresAt) {
			return fmt.Errorf("payment window still open: %w", domain.ErrInvalidTransition)
		}
		reason := reasonPaymentWindow
		zero := int64(0)
		b.CancelledAt = &now
		b.CancellationReason = &reason
		b.RefundAmount = &zero
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ExpireBooking: %w", err)
	}

	s.events.Publish(ctx, domain.NewBookingEvent(domain.EventBookingExpired, b, nil))
	return b, nil
}

// CompleteStay closes an undisputed stay once the deposit hold has run out.
func (s *Service) CompleteStay(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	var refunds []*domain.Refund

	b, err := s.transition(ctx, id, EventComplete, func(ctx context.Context, tx *sql.Tx, b *domain.Booking, now time.Time) error {
		if b.DepositHoldUntil == nil || now.Before(*b.DepositHoldUntil) {
			return fmt.Errorf("deposit hold still running: %w", domain.ErrInvalidTransition)
		}
		refunds = refunds[:0]

		paid, err := s.successfulPayment(ctx, tx, b.ID)
		if err != nil {
			return err
		}
		if paid != nil {
			rf, err := s.recordRefund(ctx, tx, b, paid.ID, b.Price.Deposit, domain.RefundReasonDepositRelease, now)
			if err != nil {
				return err
			}
			refunds = append(refunds, rf)
			amt := b.Price.Deposit.Amount
			b.RefundAmount = &amt
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("CompleteStay: %w", err)
	}

	events := append([]domain.Event{domain.NewBookingEvent(domain.EventBookingCompleted, b, nil)}, refundEvents(b, refunds)...)
	s.events.Publish(ctx, events...)
	return b, nil
}

func isHostOrAdmin(a domain.Actor, b *domain.Booking) bool {
	return a.IsPrivileged() || a.UserID == b.HostID
}

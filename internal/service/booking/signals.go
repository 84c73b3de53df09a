package booking

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
)

// The methods below run inside a transaction owned by the payment
// orchestrator so that payment, ledger and booking commit together. They do
// not publish events; the orchestrator does once its transaction commits.

func (s *Service) LoadForPayment(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Booking, error) {
	b, err := s.bookings.GetInTx(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("LoadForPayment: %w", err)
	}
	return b, nil
}

// ConfirmPaid moves an awaiting booking to confirmed.
func (s *Service) ConfirmPaid(ctx context.Context, tx *sql.Tx, b *domain.Booking) error {
	b.ExpiresAt = nil
	if err := s.write(ctx, tx, b, EventPaymentSucceeded, s.now().UTC()); err != nil {
		return fmt.Errorf("ConfirmPaid: %w", err)
	}
	return nil
}

// CancelUnpaid cancels an awaiting booking after its payment gave up and frees the dates.
func (s *Service) CancelUnpaid(ctx context.Context, tx *sql.Tx, b *domain.Booking, reason string) error {
	now := s.now().UTC()
	zero := int64(0)
	b.CancelledAt = &now
	b.CancellationReason = &reason
	b.RefundAmount = &zero
	b.ExpiresAt = nil
	if err := s.write(ctx, tx, b, EventPaymentFailed, now); err != nil {
		return fmt.Errorf("CancelUnpaid: %w", err)
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
)

const bookingColumns = `id, property_id, guest_id, host_id, check_in, check_out, num_guests,
	currency, nightly_rate, nights, nights_cost, cleaning_fee, platform_fee, total, deposit,
	status, cancellation_policy, expires_at, deposit_hold_until, cancelled_at, cancelled_by,
	cancellation_reason, refund_amount, checked_in_at, checked_out_at,
	dispute_amount, dispute_reason, version, created_at, updated_at`

type BookingRepository struct {
	db *sql.DB
}

func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) Create(ctx context.Context, tx *sql.Tx, b *domain.Booking) error {
	p := b.Price
	_, err := tx.ExecContext(ctx,
		`INSERT INTO bookings (
			id, property_id, guest_id, host_id, check_in, check_out, num_guests,
			currency, nightly_rate, nights, nights_cost, cleaning_fee, platform_fee, total, deposit,
			status, cancellation_policy, expires_at, version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21
		)`,
		b.ID, b.PropertyID, b.GuestID, b.HostID, b.CheckIn.Format(time.DateOnly), b.CheckOut.Format(time.DateOnly), b.NumGuests,
		p.Total.Currency, p.NightlyRate.Amount, p.Nights, p.NightsCost.Amount, p.CleaningFee.Amount,
		p.PlatformFee.Amount, p.Total.Amount, p.Deposit.Amount,
		b.Status, b.CancellationPolicy, b.ExpiresAt, b.Version, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id,
	)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return b, nil
}

// GetInTx reads the booking through tx so the caller sees its own uncommitted writes.
func (r *BookingRepository) GetInTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Booking, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id,
	)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetInTx: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetInTx: %w", err)
	}
	return b, nil
}

// Update writes every mutable column when the stored version still equals
// expectedVersion, then bumps it. A stale version yields ErrVersionConflict.
func (r *BookingRepository) Update(ctx context.Context, tx *sql.Tx, b *domain.Booking, expectedVersion int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE bookings SET
			status = $1, expires_at = $2, deposit_hold_until = $3, cancelled_at = $4,
			cancelled_by = $5, cancellation_reason = $6, refund_amount = $7,
			checked_in_at = $8, checked_out_at = $9, dispute_amount = $10, dispute_reason = $11,
			version = version + 1, updated_at = $12
		WHERE id = $13 AND version = $14`,
		b.Status, b.ExpiresAt, b.DepositHoldUntil, b.CancelledAt,
		b.CancelledBy, b.CancellationReason, b.RefundAmount,
		b.CheckedInAt, b.CheckedOutAt, b.DisputeAmount, b.DisputeReason, b.UpdatedAt,
		b.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Update: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Update: booking %s at version %d: %w", b.ID, expectedVersion, domain.ErrVersionConflict)
	}
	b.Version = expectedVersion + 1
	return nil
}

// ListExpired returns ids of bookings still awaiting payment past their deadline.
func (r *BookingRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	return r.listIDs(ctx, "ListExpired",
		`SELECT id FROM bookings
		WHERE status = $1 AND expires_at < $2
		ORDER BY expires_at LIMIT $3`,
		domain.BookingStatusAwaitingPayment, now, limit,
	)
}

// ListHoldElapsed returns ids of checked-out bookings whose deposit hold has run out.
func (r *BookingRepository) ListHoldElapsed(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	return r.listIDs(ctx, "ListHoldElapsed",
		`SELECT id FROM bookings
		WHERE status = $1 AND deposit_hold_until < $2
		ORDER BY deposit_hold_until LIMIT $3`,
		domain.BookingStatusCheckedOut, now, limit,
	)
}

func (r *BookingRepository) listIDs(ctx context.Context, op, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return ids, nil
}

func scanBooking(s scanner) (*domain.Booking, error) {
	var b domain.Booking
	var currency string
	var nightlyRate, nightsCost, cleaning, platformFee, total, deposit int64
	var cancelledBy uuid.NullUUID

	err := s.Scan(
		&b.ID, &b.PropertyID, &b.GuestID, &b.HostID, &b.CheckIn, &b.CheckOut, &b.NumGuests,
		&currency, &nightlyRate, &b.Price.Nights, &nightsCost, &cleaning, &platformFee, &total, &deposit,
		&b.Status, &b.CancellationPolicy, &b.ExpiresAt, &b.DepositHoldUntil, &b.CancelledAt, &cancelledBy,
		&b.CancellationReason, &b.RefundAmount, &b.CheckedInAt, &b.CheckedOutAt,
		&b.DisputeAmount, &b.DisputeReason, &b.Version, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c := domain.Currency(currency)
	b.Price.NightlyRate = domain.NewMoney(nightlyRate, c)
	b.Price.NightsCost = domain.NewMoney(nightsCost, c)
	b.Price.CleaningFee = domain.NewMoney(cleaning, c)
	b.Price.PlatformFee = domain.NewMoney(platformFee, c)
	b.Price.Total = domain.NewMoney(total, c)
	b.Price.Deposit = domain.NewMoney(deposit, c)
	b.CheckIn = domain.DateOnly(b.CheckIn)
	b.CheckOut = domain.DateOnly(b.CheckOut)
	if cancelledBy.Valid {
		b.CancelledBy = &cancelledBy.UUID
	}
	return &b, nil
}

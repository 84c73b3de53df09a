package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
)

// AvailabilityGuard holds date ranges per property. Overlap is rejected by the
// reservations_no_overlap exclusion constraint, so concurrent reserves for the
// same nights resolve inside Postgres regardless of how many API instances run.
type AvailabilityGuard struct {
	db *sql.DB
}

func NewAvailabilityGuard(db *sql.DB) *AvailabilityGuard {
	return &AvailabilityGuard{db: db}
}

// Reserve claims [checkIn, checkOut) for bookingID. A clash returns ErrBookingConflict
// and aborts tx, so callers must not reuse it.
func (g *AvailabilityGuard) Reserve(ctx context.Context, tx *sql.Tx, propertyID uuid.UUID, checkIn, checkOut time.Time, bookingID uuid.UUID) error {
	if !checkOut.After(checkIn) {
		return fmt.Errorf("Reserve: empty range: %w", domain.ErrValidation)
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO reservations (booking_id, property_id, stay)
		VALUES ($1, $2, daterange($3::date, $4::date, '[)'))`,
		bookingID, propertyID, checkIn.Format(time.DateOnly), checkOut.Format(time.DateOnly),
	)
	if err != nil {
		if isExclusionViolation(err) {
			return fmt.Errorf("Reserve: %w", domain.ErrBookingConflict)
		}
		return fmt.Errorf("Reserve: %w", err)
	}
	return nil
}

// Release drops the hold. Releasing twice is a no-op.
func (g *AvailabilityGuard) Release(ctx context.Context, tx *sql.Tx, bookingID uuid.UUID) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM reservations WHERE booking_id = $1`, bookingID); err != nil {
		return fmt.Errorf("Release: %w", err)
	}
	return nil
}

// IsHeld reports whether bookingID currently occupies its dates.
func (g *AvailabilityGuard) IsHeld(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	var held bool
	err := g.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM reservations WHERE booking_id = $1)`, bookingID,
	).Scan(&held)
	if err != nil {
		return false, fmt.Errorf("IsHeld: %w", err)
	}
	return held, nil
}

// IsAvailable is a non-locking pre-check so CreateBooking can reject taken
// dates before opening a transaction. Reserve is still the only authority.
func (g *AvailabilityGuard) IsAvailable(ctx context.Context, propertyID uuid.UUID, checkIn, checkOut time.Time) (bool, error) {
	var taken bool
	err := g.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM reservations
			WHERE property_id = $1 AND stay && daterange($2::date, $3::date, '[)')
		)`,
		propertyID, checkIn.Format(time.DateOnly), checkOut.Format(time.DateOnly),
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("IsAvailable: %w", err)
	}
	return !taken, nil
}

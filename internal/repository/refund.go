package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
)

const refundColumns = `id, payment_id, booking_id, amount, currency, reason, status,
	gateway_ref, created_at, updated_at`

type RefundRepository struct {
	db *sql.DB
}

func NewRefundRepository(db *sql.DB) *RefundRepository {
	return &RefundRepository{db: db}
}

func (r *RefundRepository) Create(ctx context.Context, tx *sql.Tx, rf *domain.Refund) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO refunds (
			id, payment_id, booking_id, amount, currency, reason, status,
			gateway_ref, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rf.ID, rf.PaymentID, rf.BookingID, rf.Amount.Amount, rf.Amount.Currency, rf.Reason, rf.Status,
		rf.GatewayRef, rf.CreatedAt, rf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *RefundRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]domain.Refund, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+refundColumns+` FROM refunds WHERE booking_id = $1 ORDER BY created_at`, bookingID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByBooking: %w", err)
	}
	defer rows.Close()

	var refunds []domain.Refund
	for rows.Next() {
		var rf domain.Refund
		var amount int64
		var currency string
		if err := rows.Scan(
			&rf.ID, &rf.PaymentID, &rf.BookingID, &amount, &currency, &rf.Reason, &rf.Status,
			&rf.GatewayRef, &rf.CreatedAt, &rf.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ListByBooking: scan: %w", err)
		}
		rf.Amount = domain.NewMoney(amount, domain.Currency(currency))
		refunds = append(refunds, rf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByBooking: rows: %w", err)
	}
	return refunds, nil
}

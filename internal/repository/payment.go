package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
)

const paymentColumns = `id, booking_id, guest_id, amount, currency, gateway, external_ref,
	idempotency_key, payer_reference, status, failure_reason, raw_payload,
	created_at, updated_at, completed_at`

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Payment ids derive from (guest, key), so a racing retry can trip any of these first.
var duplicatePaymentConstraints = map[string]bool{
	"payments_pkey":                 true,
	"uq_payments_guest_idempotency": true,
	"uq_payments_gateway_ref":       true,
}

// Create inserts a payment. A clash with an earlier insert for the same
// (guest_id, idempotency_key) surfaces as ErrDuplicateIdempotencyKey.
func (r *PaymentRepository) Create(ctx context.Context, tx *sql.Tx, p *domain.Payment) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payments (
			id, booking_id, guest_id, amount, currency, gateway, external_ref,
			idempotency_key, payer_reference, status, failure_reason, raw_payload,
			created_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		p.ID, p.BookingID, p.GuestID, p.Amount.Amount, p.Amount.Currency, p.Gateway, p.ExternalRef,
		p.IdempotencyKey, p.PayerReference, p.Status, p.FailureReason, nullJSON(p.RawPayload),
		p.CreatedAt, p.UpdatedAt, p.CompletedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation && duplicatePaymentConstraints[pqErr.Constraint] {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateIdempotencyKey)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return r.getOne(ctx, r.db, "GetByID", `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

func (r *PaymentRepository) GetByIdempotencyKey(ctx context.Context, guestID uuid.UUID, key string) (*domain.Payment, error) {
	return r.getOne(ctx, r.db, "GetByIdempotencyKey",
		`SELECT `+paymentColumns+` FROM payments WHERE guest_id = $1 AND idempotency_key = $2`,
		guestID, key,
	)
}

func (r *PaymentRepository) GetByExternalRef(ctx context.Context, gateway, externalRef string) (*domain.Payment, error) {
	return r.getOne(ctx, r.db, "GetByExternalRef",
		`SELECT `+paymentColumns+` FROM payments WHERE gateway = $1 AND external_ref = $2`,
		gateway, externalRef,
	)
}

// GetForUpdate row-locks the payment so concurrent webhook and reconcile paths serialize.
func (r *PaymentRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Payment, error) {
	return r.getOne(ctx, tx, "GetForUpdate",
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id,
	)
}

// GetSuccessfulForBooking returns the settled payment of a booking, or ErrNotFound.
// The earliest success settles; any later one was captured and refunded.
func (r *PaymentRepository) GetSuccessfulForBooking(ctx context.Context, tx *sql.Tx, bookingID uuid.UUID) (*domain.Payment, error) {
	return r.getOne(ctx, tx, "GetSuccessfulForBooking",
		`SELECT `+paymentColumns+` FROM payments WHERE booking_id = $1 AND status = $2
		ORDER BY completed_at, created_at LIMIT 1`,
		bookingID, domain.PaymentStatusSuccess,
	)
}

// UpdateStatus moves a locked payment to status. The caller has already checked the transition.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.PaymentStatus, failureReason *string, raw json.RawMessage, completedAt *time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET status = $1, failure_reason = COALESCE($2, failure_reason),
			raw_payload = COALESCE($3, raw_payload), completed_at = $4, updated_at = now()
		WHERE id = $5`,
		status, failureReason, nullJSON(raw), completedAt, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *PaymentRepository) CountFailedForBooking(ctx context.Context, tx *sql.Tx, bookingID uuid.UUID) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payments WHERE booking_id = $1 AND status IN ($2, $3)`,
		bookingID, domain.PaymentStatusFailed, domain.PaymentStatusCancelled,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountFailedForBooking: %w", err)
	}
	return n, nil
}

// ListStale returns non-terminal payments created before cutoff, oldest first.
func (r *PaymentRepository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments
		WHERE status IN ($1, $2) AND created_at < $3
		ORDER BY created_at LIMIT $4`,
		domain.PaymentStatusInitiated, domain.PaymentStatusPending, cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListStale: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("ListStale: scan: %w", err)
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListStale: rows: %w", err)
	}
	return payments, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *PaymentRepository) getOne(ctx context.Context, q queryRower, op, query string, args ...any) (*domain.Payment, error) {
	p, err := scanPayment(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

func scanPayment(s scanner) (*domain.Payment, error) {
	var p domain.Payment
	var amount int64
	var currency string
	var raw []byte

	err := s.Scan(
		&p.ID, &p.BookingID, &p.GuestID, &amount, &currency, &p.Gateway, &p.ExternalRef,
		&p.IdempotencyKey, &p.PayerReference, &p.Status, &p.FailureReason, &raw,
		&p.CreatedAt, &p.UpdatedAt, &p.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Amount = domain.NewMoney(amount, domain.Currency(currency))
	if raw != nil {
		p.RawPayload = raw
	}
	return &p, nil
}

// nullJSON keeps empty payloads as SQL NULL rather than invalid jsonb.
func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

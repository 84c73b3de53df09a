package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
)

type PaymentEventRepository struct {
	db *sql.DB
}

func NewPaymentEventRepository(db *sql.DB) *PaymentEventRepository {
	return &PaymentEventRepository{db: db}
}

func (r *PaymentEventRepository) Create(ctx context.Context, tx *sql.Tx, e *domain.PaymentEvent) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payment_events (id, payment_id, from_status, to_status, source, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.PaymentID, e.FromStatus, e.ToStatus, e.Source, nullJSON(e.Payload), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *PaymentEventRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]domain.PaymentEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, payment_id, from_status, to_status, source, payload, created_at
		FROM payment_events WHERE payment_id = $1 ORDER BY created_at`, paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByPaymentID: %w", err)
	}
	defer rows.Close()

	var events []domain.PaymentEvent
	for rows.Next() {
		var e domain.PaymentEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.PaymentID, &e.FromStatus, &e.ToStatus, &e.Source, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("GetByPaymentID: scan: %w", err)
		}
		e.Payload = payload
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByPaymentID: rows: %w", err)
	}
	return events, nil
}

// AnomalyRepository writes outside any business transaction so an alert
// survives even when the surrounding work rolls back.
type AnomalyRepository struct {
	db *sql.DB
}

func NewAnomalyRepository(db *sql.DB) *AnomalyRepository {
	return &AnomalyRepository{db: db}
}

func (r *AnomalyRepository) Create(ctx context.Context, a *domain.PaymentAnomaly) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_anomalies (id, payment_id, kind, local_status, reported_status, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.PaymentID, a.Kind, a.LocalStatus, a.ReportedStatus, a.Detail, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *AnomalyRepository) CountOpen(ctx context.Context, paymentID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM payment_anomalies WHERE payment_id = $1 AND resolved_at IS NULL`, paymentID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountOpen: %w", err)
	}
	return n, nil
}

type GatewayEventRepository struct {
	db *sql.DB
}

func NewGatewayEventRepository(db *sql.DB) *GatewayEventRepository {
	return &GatewayEventRepository{db: db}
}

func (r *GatewayEventRepository) Create(ctx context.Context, e *domain.GatewayEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO gateway_events (id, gateway, external_ref, status, payload, outcome, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Gateway, e.ExternalRef, e.Status, string(e.Payload), e.Outcome, e.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PaymentEventSource says which path produced a payment transition.
type PaymentEventSource string

const (
	PaymentEventSourceGuest     PaymentEventSource = "guest"
	PaymentEventSourceWebhook   PaymentEventSource = "webhook"
	PaymentEventSourceReconcile PaymentEventSource = "reconcile"
)

// PaymentEvent is an append-only audit row for each payment status change.
type PaymentEvent struct {
	ID         uuid.UUID
	PaymentID  uuid.UUID
	FromStatus *PaymentStatus
	ToStatus   PaymentStatus
	Source     PaymentEventSource
	Payload    json.RawMessage
	CreatedAt  time.Time
}

type AnomalyKind string

const (
	AnomalyIdempotencyViolation   AnomalyKind = "idempotency_violation"
	AnomalyReconciliationMismatch AnomalyKind = "reconciliation_mismatch"
	AnomalyAmountMismatch         AnomalyKind = "amount_mismatch"
)

// PaymentAnomaly is recorded for manual review whenever gateway truth contradicts local state.
type PaymentAnomaly struct {
	ID             uuid.UUID
	PaymentID      uuid.UUID
	Kind           AnomalyKind
	LocalStatus    PaymentStatus
	ReportedStatus PaymentStatus
	Detail         string
	CreatedAt      time.Time
}

// GatewayEvent is the audit copy of a verified inbound webhook.
type GatewayEvent struct {
	ID          uuid.UUID
	Gateway     string
	ExternalRef string
	Status      PaymentStatus
	Payload     json.RawMessage
	Outcome     string
	ReceivedAt  time.Time
}

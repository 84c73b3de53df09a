package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentStatusInitiated PaymentStatus = "initiated"
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSuccess   PaymentStatus = "success"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusSuccess, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	}
	return false
}

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusInitiated, PaymentStatusPending, PaymentStatusSuccess, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	}
	return false
}

const FailureReasonTimeout = "timeout"

type Payment struct {
	ID             uuid.UUID
	BookingID      uuid.UUID
	GuestID        uuid.UUID
	Amount         Money
	Gateway        string
	ExternalRef    string
	IdempotencyKey string
	PayerReference string
	Status         PaymentStatus
	FailureReason  *string
	RawPayload     json.RawMessage
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventBookingCreated   EventType = "booking_created"
	EventBookingConfirmed EventType = "booking_confirmed"
	EventBookingCancelled EventType = "booking_cancelled"
	EventBookingExpired   EventType = "booking_expired"
	EventBookingCompleted EventType = "booking_completed"
	EventPaymentFailed    EventType = "payment_failed"
	EventRefundIssued     EventType = "refund_issued"
	EventDisputeFiled     EventType = "dispute_filed"
	EventIntegrityAlert   EventType = "integrity_alert"
)

// Event is a fire-and-forget domain notification.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	Type       EventType      `json:"type"`
	EntityType string         `json:"entity_type"`
	EntityID   uuid.UUID      `json:"entity_id"`
	Recipients []uuid.UUID    `json:"recipients,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func NewBookingEvent(t EventType, b *Booking, data map[string]any) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		EntityType: "booking",
		EntityID:   b.ID,
		Recipients: []uuid.UUID{b.GuestID, b.HostID},
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
}

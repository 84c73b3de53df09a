package domain

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusPending         BookingStatus = "pending"
	BookingStatusAwaitingPayment BookingStatus = "awaiting_payment"
	BookingStatusConfirmed       BookingStatus = "confirmed"
	BookingStatusCheckedIn       BookingStatus = "checked_in"
	BookingStatusCheckedOut      BookingStatus = "checked_out"
	BookingStatusDisputed        BookingStatus = "disputed"
	BookingStatusCompleted       BookingStatus = "completed"
	BookingStatusCancelled       BookingStatus = "cancelled"
	BookingStatusNoShow          BookingStatus = "no_show"
)

func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingStatusCompleted, BookingStatusCancelled, BookingStatusNoShow:
		return true
	}
	return false
}

// HoldsReservation reports whether a booking in this status occupies its dates.
func (s BookingStatus) HoldsReservation() bool {
	switch s {
	case BookingStatusAwaitingPayment, BookingStatusConfirmed, BookingStatusCheckedIn:
		return true
	}
	return false
}

// PriceBreakdown is frozen onto the booking at creation.
type PriceBreakdown struct {
	NightlyRate Money
	Nights      int
	NightsCost  Money
	CleaningFee Money
	PlatformFee Money
	Total       Money
	Deposit     Money
}

// RefundableBase is the part of the price a cancellation policy applies to.
func (p PriceBreakdown) RefundableBase() Money {
	return Money{Amount: p.NightsCost.Amount + p.CleaningFee.Amount, Currency: p.NightsCost.Currency}
}

// AmountDue is what the guest pays: the booking total plus the refundable deposit.
func (p PriceBreakdown) AmountDue() Money {
	return Money{Amount: p.Total.Amount + p.Deposit.Amount, Currency: p.Total.Currency}
}

type Booking struct {
	ID                 uuid.UUID
	PropertyID         uuid.UUID
	GuestID            uuid.UUID
	HostID             uuid.UUID
	CheckIn            time.Time
	CheckOut           time.Time
	NumGuests          int
	Price              PriceBreakdown
	Status             BookingStatus
	CancellationPolicy CancellationPolicy
	ExpiresAt          *time.Time
	DepositHoldUntil   *time.Time
	CancelledAt        *time.Time
	CancelledBy        *uuid.UUID
	CancellationReason *string
	RefundAmount       *int64
	CheckedInAt        *time.Time
	CheckedOutAt       *time.Time
	DisputeAmount      *int64
	DisputeReason      *string
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (b *Booking) Nights() int {
	return NightsBetween(b.CheckIn, b.CheckOut)
}

func (b *Booking) Currency() Currency {
	return b.Price.Total.Currency
}

func (b *Booking) IsParty(userID uuid.UUID) bool {
	return b.GuestID == userID || b.HostID == userID
}

// NightsBetween counts calendar nights in the half-open range [in, out).
func NightsBetween(in, out time.Time) int {
	in = DateOnly(in)
	out = DateOnly(out)
	return int(out.Sub(in).Hours() / 24)
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, s)
}

package booking

import (
	"fmt"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
)

type Event string

const (
	EventReserve          Event = "reserve"
	EventPaymentSucceeded Event = "payment_succeeded"
	EventPaymentFailed    Event = "payment_failed"
	EventExpire           Event = "expire"
	EventCancel           Event = "cancel"
	EventCheckIn          Event = "check_in"
	EventCheckOut         Event = "check_out"
	EventMarkNoShow       Event = "mark_no_show"
	EventComplete         Event = "complete"
	EventDispute          Event = "dispute"
	EventResolve          Event = "resolve"
)

var transitions = map[domain.BookingStatus]map[Event]domain.BookingStatus{
	domain.BookingStatusPending: {
		EventReserve: domain.BookingStatusAwaitingPayment,
	},
	domain.BookingStatusAwaitingPayment: {
		EventPaymentSucceeded: domain.BookingStatusConfirmed,
		EventPaymentFailed:    domain.BookingStatusCancelled,
		EventExpire:           domain.BookingStatusCancelled,
		EventCancel:           domain.BookingStatusCancelled,
	},
	domain.BookingStatusConfirmed: {
		EventCheckIn:    domain.BookingStatusCheckedIn,
		EventCancel:     domain.BookingStatusCancelled,
		EventMarkNoShow: domain.BookingStatusNoShow,
	},
	domain.BookingStatusCheckedIn: {
		EventCheckOut: domain.BookingStatusCheckedOut,
		EventCancel:   domain.BookingStatusCancelled,
	},
	domain.BookingStatusCheckedOut: {
		EventComplete: domain.BookingStatusCompleted,
		EventDispute:  domain.BookingStatusDisputed,
	},
	domain.BookingStatusDisputed: {
		EventResolve: domain.BookingStatusCompleted,
	},
}

// Next returns the status ev leads to from, or ErrInvalidTransition.
func Next(from domain.BookingStatus, ev Event) (domain.BookingStatus, error) {
	to, ok := transitions[from][ev]
	if !ok {
		return "", fmt.Errorf("Next: %s on %s: %w", ev, from, domain.ErrInvalidTransition)
	}
	return to, nil
}

// releasesReservation reports whether moving from -> to frees the booked
// dates. A stay cancelled after check-in keeps them while the guest is in
// residence.
func releasesReservation(from, to domain.BookingStatus) bool {
	if from == domain.BookingStatusCheckedIn && to == domain.BookingStatusCancelled {
		return false
	}
	return from.HoldsReservation() && !to.HoldsReservation()
}

package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
)

func TestNext(t *testing.T) {
	tests := []struct {
		from domain.BookingStatus
		ev   Event
		want domain.BookingStatus
	}{
		{domain.BookingStatusPending, EventReserve, domain.BookingStatusAwaitingPayment},
		{domain.BookingStatusAwaitingPayment, EventPaymentSucceeded, domain.BookingStatusConfirmed},
		{domain.BookingStatusAwaitingPayment, EventPaymentFailed, domain.BookingStatusCancelled},
		{domain.BookingStatusAwaitingPayment, EventExpire, domain.BookingStatusCancelled},
		{domain.BookingStatusAwaitingPayment, EventCancel, domain.BookingStatusCancelled},
		{domain.BookingStatusConfirmed, EventCheckIn, domain.BookingStatusCheckedIn},
		{domain.BookingStatusConfirmed, EventCancel, domain.BookingStatusCancelled},
		{domain.BookingStatusConfirmed, EventMarkNoShow, domain.BookingStatusNoShow},
		{domain.BookingStatusCheckedIn, EventCheckOut, domain.BookingStatusCheckedOut},
		{domain.BookingStatusCheckedIn, EventCancel, domain.BookingStatusCancelled},
		{domain.BookingStatusCheckedOut, EventComplete, domain.BookingStatusCompleted},
		{domain.BookingStatusCheckedOut, EventDispute, domain.BookingStatusDisputed},
		{domain.BookingStatusDisputed, EventResolve, domain.BookingStatusCompleted},
	}

	for _, tc := range tests {
		t.Run(string(tc.from)+"/"+string(tc.ev), func(t *testing.T) {
			got, err := Next(tc.from, tc.ev)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNext_RejectsEverythingElse(t *testing.T) {
	statuses := []domain.BookingStatus{
		domain.BookingStatusPending, domain.BookingStatusAwaitingPayment, domain.BookingStatusConfirmed,
		domain.BookingStatusCheckedIn, domain.BookingStatusCheckedOut, domain.BookingStatusDisputed,
		domain.BookingStatusCompleted, domain.BookingStatusCancelled, domain.BookingStatusNoShow,
	}
	events := []Event{
		EventReserve, EventPaymentSucceeded, EventPaymentFailed, EventExpire, EventCancel, EventCheckIn,
		EventCheckOut, EventMarkNoShow, EventComplete, EventDispute, EventResolve,
	}

	allowed := 0
	for _, s := range statuses {
		for _, ev := range events {
			_, err := Next(s, ev)
			if _, ok := transitions[s][ev]; ok {
				require.NoError(t, err)
				allowed++
				continue
			}
			require.ErrorIs(t, err, domain.ErrInvalidTransition, "%s on %s", ev, s)
		}
	}
	assert.Equal(t, 13, allowed)

	for _, s := range []domain.BookingStatus{domain.BookingStatusCompleted, domain.BookingStatusCancelled, domain.BookingStatusNoShow} {
		assert.Empty(t, transitions[s], "%s is terminal", s)
	}
}

func TestReleasesReservation(t *testing.T) {
	tests := []struct {
		from, to domain.BookingStatus
		want     bool
	}{
		{domain.BookingStatusPending, domain.BookingStatusAwaitingPayment, false},
		{domain.BookingStatusAwaitingPayment, domain.BookingStatusConfirmed, false},
		{domain.BookingStatusAwaitingPayment, domain.BookingStatusCancelled, true},
		{domain.BookingStatusConfirmed, domain.BookingStatusCancelled, true},
		{domain.BookingStatusConfirmed, domain.BookingStatusNoShow, true},
		{domain.BookingStatusConfirmed, domain.BookingStatusCheckedIn, false},
		{domain.BookingStatusCheckedIn, domain.BookingStatusCancelled, false},
		{domain.BookingStatusCheckedIn, domain.BookingStatusCheckedOut, true},
		{domain.BookingStatusCheckedOut, domain.BookingStatusCompleted, false},
	}

	for _, tc := range tests {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.want, releasesReservation(tc.from, tc.to))
		})
	}
}

// Package reconcile runs the periodic sweep that settles what webhooks missed:
// stale payments, lapsed payment windows and elapsed deposit holds.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
	"github.com/josh-kwaku/boma-settlement/internal/logging"
	"github.com/josh-kwaku/boma-settlement/internal/service/payment"
)

type paymentLister interface {
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]domain.Payment, error)
}

type bookingLister interface {
	ListExpired(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	ListHoldElapsed(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

type reconciler interface {
	Reconcile(ctx context.Context, p *domain.Payment) (payment.Outcome, error)
}

type lifecycle interface {
	ExpireBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	CompleteStay(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
}

type Settings struct {
	Interval time.Duration
	// StaleAfter is how old a non-terminal payment must be before the
	// gateway is asked about it.
	StaleAfter time.Duration
	BatchSize  int
}

// Report counts what one sweep did.
type Report struct {
	Reconciled int
	Expired    int
	Completed  int
	Errors     int
}

type Job struct {
	payments   paymentLister
	bookings   bookingLister
	reconciler reconciler
	lifecycle  lifecycle
	logger     *slog.Logger
	settings   Settings
	now        func() time.Time
}

func NewJob(
	payments paymentLister,
	bookings bookingLister,
	reconciler reconciler,
	lifecycle lifecycle,
	logger *slog.Logger,
	settings Settings,
) *Job {
	if settings.BatchSize <= 0 {
		settings.BatchSize = 100
	}
	if settings.Interval <= 0 {
		settings.Interval = time.Minute
	}
	return &Job{
		payments:   payments,
		bookings:   bookings,
		reconciler: reconciler,
		lifecycle:  lifecycle,
		logger:     logger,
		settings:   settings,
		now:        time.Now,
	}
}

func (j *Job) Start(ctx context.Context) {
	j.logger.Info("reconciliation job started", "interval", j.settings.Interval)

	ticker := time.NewTicker(j.settings.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("reconciliation job stopped")
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep runs one pass. Every step is safe to repeat: items already handled
// no longer match the listing queries.
func (j *Job) Sweep(ctx context.Context) Report {
	ctx = logging.WithLogger(ctx, j.logger)
	now := j.now().UTC()

	var r Report
	j.reconcilePayments(ctx, now, &r)
	j.expireBookings(ctx, now, &r)
	j.completeStays(ctx, now, &r)

	if r != (Report{}) {
		j.logger.Info("reconciliation sweep finished",
			"reconciled", r.Reconciled,
			"expired", r.Expired,
			"completed", r.Completed,
			"errors", r.Errors,
		)
	}
	return r
}

func (j *Job) reconcilePayments(ctx context.Context, now time.Time, r *Report) {
	stale, err := j.payments.ListStale(ctx, now.Add(-j.settings.StaleAfter), j.settings.BatchSize)
	if err != nil {
		j.logger.Error("failed to list stale payments", "error", err)
		r.Errors++
		return
	}

	for i := range stale {
		p := &stale[i]
		if _, err := j.reconciler.Reconcile(ctx, p); err != nil {
			j.logger.Error("failed to reconcile payment", "payment_id", p.ID, "error", err)
			r.Errors++
			continue
		}
		r.Reconciled++
	}
}

func (j *Job) expireBookings(ctx context.Context, now time.Time, r *Report) {
	ids, err := j.bookings.ListExpired(ctx, now, j.settings.BatchSize)
	if err != nil {
		j.logger.Error("failed to list expired bookings", "error", err)
		r.Errors++
		return
	}

	for _, id := range ids {
		if _, err := j.lifecycle.ExpireBooking(ctx, id); err != nil {
			j.logger.Error("failed to expire booking", "booking_id", id, "error", err)
			r.Errors++
			continue
		}
		r.Expired++
	}
}

func (j *Job) completeStays(ctx context.Context, now time.Time, r *Report) {
	ids, err := j.bookings.ListHoldElapsed(ctx, now, j.settings.BatchSize)
	if err != nil {
		j.logger.Error("failed to list elapsed deposit holds", "error", err)
		r.Errors++
		return
	}

	for _, id := range ids {
		if _, err := j.lifecycle.CompleteStay(ctx, id); err != nil {
			j.logger.Error("failed to complete stay", "booking_id", id, "error", err)
			r.Errors++
			continue
		}
		r.Completed++
	}
}

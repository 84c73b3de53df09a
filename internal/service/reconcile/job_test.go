package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
	"github.com/josh-kwaku/boma-settlement/internal/service/payment"
)

type fakeStore struct {
	stale       []domain.Payment
	expired     []uuid.UUID
	holdElapsed []uuid.UUID
	listErr     error
	cutoff      time.Time
}

func (f *fakeStore) ListStale(_ context.Context, cutoff time.Time, _ int) ([]domain.Payment, error) {
	f.cutoff = cutoff
	return f.stale, f.listErr
}

func (f *fakeStore) ListExpired(context.Context, time.Time, int) ([]uuid.UUID, error) {
	return f.expired, nil
}

func (f *fakeStore) ListHoldElapsed(context.Context, time.Time, int) ([]uuid.UUID, error) {
	return f.holdElapsed, nil
}

type fakeWorker struct {
	mu         sync.Mutex
	order      []string
	failFor    map[uuid.UUID]bool
	reconciled []uuid.UUID
}

func (f *fakeWorker) Reconcile(_ context.Context, p *domain.Payment) (payment.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, "reconcile")
	if f.failFor[p.ID] {
		return payment.OutcomeFailed, errors.New("gateway down")
	}
	f.reconciled = append(f.reconciled, p.ID)
	return payment.OutcomeApplied, nil
}

func (f *fakeWorker) ExpireBooking(_ context.Context, id uuid.UUID) (*domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, "expire")
	return &domain.Booking{ID: id}, nil
}

func (f *fakeWorker) CompleteStay(_ context.Context, id uuid.UUID) (*domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, "complete")
	return &domain.Booking{ID: id}, nil
}

func newTestJob(store *fakeStore, worker *fakeWorker) *Job {
	j := NewJob(store, store, worker, worker, slog.Default(), Settings{StaleAfter: 2 * time.Minute})
	j.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return j
}

func TestSweep_RunsStepsInOrder(t *testing.T) {
	store := &fakeStore{
		stale:       []domain.Payment{{ID: uuid.New()}, {ID: uuid.New()}},
		expired:     []uuid.UUID{uuid.New()},
		holdElapsed: []uuid.UUID{uuid.New()},
	}
	worker := &fakeWorker{}

	r := newTestJob(store, worker).Sweep(context.Background())

	assert.Equal(t, Report{Reconciled: 2, Expired: 1, Completed: 1}, r)
	assert.Equal(t, []string{"reconcile", "reconcile", "expire", "complete"}, worker.order)
	assert.Equal(t, time.Date(2026, 3, 1, 11, 58, 0, 0, time.UTC), store.cutoff)
}

func TestSweep_ContinuesPastFailures(t *testing.T) {
	bad, good := uuid.New(), uuid.New()
	store := &fakeStore{
		stale:   []domain.Payment{{ID: bad}, {ID: good}},
		expired: []uuid.UUID{uuid.New()},
	}
	worker := &fakeWorker{failFor: map[uuid.UUID]bool{bad: true}}

	r := newTestJob(store, worker).Sweep(context.Background())

	assert.Equal(t, 1, r.Reconciled)
	assert.Equal(t, 1, r.Errors)
	assert.Equal(t, 1, r.Expired)
	assert.Equal(t, []uuid.UUID{good}, worker.reconciled)
}

func TestSweep_ListFailureSkipsOnlyThatStep(t *testing.T) {
	store := &fakeStore{listErr: errors.New("db down"), holdElapsed: []uuid.UUID{uuid.New()}}
	worker := &fakeWorker{}

	r := newTestJob(store, worker).Sweep(context.Background())

	assert.Equal(t, Report{Completed: 1, Errors: 1}, r)
}

func TestStart_StopsOnCancel(t *testing.T) {
	j := NewJob(&fakeStore{}, &fakeStore{}, &fakeWorker{}, &fakeWorker{}, slog.Default(), Settings{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job did not stop after cancel")
	}
}

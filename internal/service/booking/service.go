// Package booking owns the booking lifecycle. Every status change goes through
// the transition table and a version-checked write.
package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
	"github.com/josh-kwaku/boma-settlement/internal/logging"
)

type bookingRepo interface {
	Create(ctx context.Context, tx *sql.Tx, b *domain.Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	GetInTx(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Booking, error)
	Update(ctx context.Context, tx *sql.Tx, b *domain.Booking, expectedVersion int64) error
}

type propertyRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Property, error)
}

type availabilityGuard interface {
	Reserve(ctx context.Context, tx *sql.Tx, propertyID uuid.UUID, checkIn, checkOut time.Time, bookingID uuid.UUID) error
	Release(ctx context.Context, tx *sql.Tx, bookingID uuid.UUID) error
	IsAvailable(ctx context.Context, propertyID uuid.UUID, checkIn, checkOut time.Time) (bool, error)
}

type paymentRepo interface {
	GetSuccessfulForBooking(ctx context.Context, tx *sql.Tx, bookingID uuid.UUID) (*domain.Payment, error)
}

type refundRepo interface {
	Create(ctx context.Context, tx *sql.Tx, rf *domain.Refund) error
}

type ledgerPoster interface {
	Post(ctx context.Context, tx *sql.Tx, g *domain.LedgerGroup) error
}

type pricer interface {
	Quote(p *domain.Property, nights int) (*domain.PriceBreakdown, error)
}

type refundQuoter interface {
	Quote(b *domain.Booking, cancelledAt time.Time, paid bool) (domain.RefundQuote, error)
	FullQuote(b *domain.Booking, paid bool) (domain.RefundQuote, error)
}

type publisher interface {
	Publish(ctx context.Context, events ...domain.Event)
}

type Settings struct {
	PaymentWindow time.Duration
	DepositHold   time.Duration
	StoreTimeout  time.Duration
	// ConflictRetries bounds re-reads after a lost optimistic lock.
	ConflictRetries int
}

type Service struct {
	bookings     bookingRepo
	properties   propertyRepo
	availability availabilityGuard
	payments     paymentRepo
	refunds      refundRepo
	ledger       ledgerPoster
	pricing      pricer
	policy       refundQuoter
	events       publisher
	db           *sql.DB
	settings     Settings
	now          func() time.Time
}

func NewService(
	bookings bookingRepo,
	properties propertyRepo,
	availability availabilityGuard,
	payments paymentRepo,
	refunds refundRepo,
	ledger ledgerPoster,
	pricing pricer,
	policy refundQuoter,
	events publisher,
	db *sql.DB,
	settings Settings,
) *Service {
	if settings.StoreTimeout == 0 {
		settings.StoreTimeout = 5 * time.Second
	}
	return &Service{
		bookings:     bookings,
		properties:   properties,
		availability: availability,
		payments:     payments,
		refunds:      refunds,
		ledger:       ledger,
		pricing:      pricing,
		policy:       policy,
		events:       events,
		db:           db,
		settings:     settings,
		now:          time.Now,
	}
}

type CreateRequest struct {
	GuestID    uuid.UUID
	PropertyID uuid.UUID
	CheckIn    time.Time
	CheckOut   time.Time
	NumGuests  int
}

// CreateBooking prices the stay, reserves the dates and leaves the booking
// awaiting payment. Overlapping dates fail with ErrBookingConflict and
// nothing is written.
func (s *Service) CreateBooking(ctx context.Context, req CreateRequest) (*domain.Booking, error) {
	log := logging.FromContext(ctx)
	now := s.now().UTC()

	checkIn, checkOut := domain.DateOnly(req.CheckIn), domain.DateOnly(req.CheckOut)
	if err := validateStay(checkIn, checkOut, req.NumGuests, now); err != nil {
		return nil, fmt.Errorf("CreateBooking: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.settings.StoreTimeout)
	defer cancel()

	prop, err := s.properties.GetByID(ctx, req.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("CreateBooking: %w", err)
	}
	nights := domain.NightsBetween(checkIn, checkOut)
	if err := validateProperty(prop, req.GuestID, nights, req.NumGuests); err != nil {
		return nil, fmt.Errorf("CreateBooking: %w", err)
	}

	free, err := s.availability.IsAvailable(ctx, prop.ID, checkIn, checkOut)
	if err != nil {
		return nil, fmt.Errorf("CreateBooking: %w", err)
	}
	if !free {
		log.Info("booking rejected, dates taken", "property_id", prop.ID,
			"check_in", checkIn.Format(time.DateOnly), "check_out", checkOut.Format(time.DateOnly))
		return nil, fmt.Errorf("CreateBooking: %w", domain.ErrBookingConflict)
	}

	price, err := s.pricing.Quote(prop, nights)
	if err != nil {
		return nil, fmt.Errorf("CreateBooking: %w", err)
	}

	b := &domain.Booking{
		ID:                 uuid.New(),
		PropertyID:         prop.ID,
		GuestID:            req.GuestID,
		HostID:             prop.HostID,
		CheckIn:            checkIn,
		CheckOut:           checkOut,
		NumGuests:          req.NumGuests,
		Price:              *price,
		Status:             domain.BookingStatusPending,
		CancellationPolicy: prop.CancellationPolicy,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("CreateBooking: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.bookings.Create(ctx, tx, b); err != nil {
		return nil, fmt.Errorf("CreateBooking: %w", err)
	}
	if err := s.availability.Reserve(ctx, tx, b.PropertyID, b.CheckIn, b.CheckOut, b.ID); err != nil {
		if errors.Is(err, domain.ErrBookingConflict) {
			log.Info("booking rejected, dates taken",
				"property_id", b.PropertyID,
				"check_in", b.CheckIn.Format(time.DateOnly),
				"check_out", b.CheckOut.Format(time.DateOnly),
			)
		}
		return nil, fmt.Errorf("CreateBooking: %w", err)
	}

	expires := now.Add(s.settings.PaymentWindow)
	b.ExpiresAt = &expires
	if err := s.write(ctx, tx, b, EventReserve, now); err != nil {
		return nil, fmt.Errorf("CreateBooking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("CreateBooking: commit: %w", err)
	}

	log.Info("booking created",
		"booking_id", b.ID,
		"property_id", b.PropertyID,
		"guest_id", b.GuestID,
		"nights", price.Nights,
		"amount_due", price.AmountDue().String(),
	)
	s.events.Publish(ctx, domain.NewBookingEvent(domain.EventBookingCreated, b, map[string]any{
		"amount_due": price.AmountDue(),
		"expires_at": expires,
	}))
	return b, nil
}

// GetBooking returns the booking to its guest, its host or a privileged actor.
// Anyone else gets ErrNotFound so ids cannot be enumerated.
func (s *Service) GetBooking(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.StoreTimeout)
	defer cancel()

	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetBooking: %w", err)
	}
	if !actor.IsPrivileged() && !b.IsParty(actor.UserID) {
		return nil, fmt.Errorf("GetBooking: %w", domain.ErrNotFound)
	}
	return b, nil
}

func validateStay(checkIn, checkOut time.Time, numGuests int, now time.Time) error {
	if !checkOut.After(checkIn) {
		return fmt.Errorf("check-out must be after check-in: %w", domain.ErrValidation)
	}
	if checkIn.Before(domain.DateOnly(now)) {
		return fmt.Errorf("check-in is in the past: %w", domain.ErrValidation)
	}
	if numGuests <= 0 {
		return fmt.Errorf("num_guests must be positive: %w", domain.ErrValidation)
	}
	return nil
}

func validateProperty(p *domain.Property, guestID uuid.UUID, nights, numGuests int) error {
	if p.Status != domain.PropertyStatusVerified {
		return fmt.Errorf("property %s is %s: %w", p.ID, p.Status, domain.ErrPropertyUnavailable)
	}
	if p.HostID == guestID {
		return fmt.Errorf("host cannot book own property: %w", domain.ErrValidation)
	}
	if nights < p.MinNights {
		return fmt.Errorf("stay of %d nights below minimum %d: %w", nights, p.MinNights, domain.ErrValidation)
	}
	if numGuests > p.MaxGuests {
		return fmt.Errorf("%d guests exceeds maximum %d: %w", numGuests, p.MaxGuests, domain.ErrValidation)
	}
	return nil
}

// write applies ev to b inside tx: status change, reservation release when
// the booking stops occupying its dates before check-in or at check-out, and
// the version-checked update.
func (s *Service) write(ctx context.Context, tx *sql.Tx, b *domain.Booking, ev Event, now time.Time) error {
	to, err := Next(b.Status, ev)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}

	if releasesReservation(b.Status, to) {
		if err := s.availability.Release(ctx, tx, b.ID); err != nil {
			return fmt.Errorf("write: %w", err)
		}
	}

	from, expected := b.Status, b.Version
	b.Status = to
	b.UpdatedAt = now
	if err := s.bookings.Update(ctx, tx, b, expected); err != nil {
		b.Status = from
		return fmt.Errorf("write: %w", err)
	}

	logging.FromContext(ctx).Info("booking transition",
		"booking_id", b.ID,
		"event", ev,
		"from", from,
		"to", to,
		"version", b.Version,
	)
	return nil
}

type applyFunc func(ctx context.Context, tx *sql.Tx, b *domain.Booking, now time.Time) error

// transition loads the booking, lets apply check preconditions and stage side
// effects, then writes ev. A lost version race re-runs the whole attempt.
func (s *Service) transition(ctx context.Context, id uuid.UUID, ev Event, apply applyFunc) (*domain.Booking, error) {
	for attempt := 0; ; attempt++ {
		b, err := s.transitionOnce(ctx, id, ev, apply)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) || attempt >= s.settings.ConflictRetries {
			return nil, err
		}
		logging.FromContext(ctx).Warn("booking version conflict, retrying",
			"booking_id", id,
			"event", ev,
			"attempt", attempt+1,
		)
	}
}

func (s *Service) transitionOnce(ctx context.Context, id uuid.UUID, ev Event, apply applyFunc) (*domain.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.StoreTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	b, err := s.bookings.GetInTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if _, err := Next(b.Status, ev); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if apply != nil {
		if err := apply(ctx, tx, b, now); err != nil {
			return nil, err
		}
	}
	if err := s.write(ctx, tx, b, ev, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return b, nil
}

// successfulPayment returns nil when the booking was never paid.
func (s *Service) successfulPayment(ctx context.Context, tx *sql.Tx, bookingID uuid.UUID) (*domain.Payment, error) {
	p, err := s.payments.GetSuccessfulForBooking(ctx, tx, bookingID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// recordRefund stores a pending refund row. Zero amounts are skipped.
func (s *Service) recordRefund(ctx context.Context, tx *sql.Tx, b *domain.Booking, paymentID uuid.UUID, amount domain.Money, reason domain.RefundReason, now time.Time) (*domain.Refund, error) {
	if !amount.IsPositive() {
		return nil, nil
	}
	rf := &domain.Refund{
		ID:        uuid.New(),
		PaymentID: paymentID,
		BookingID: b.ID,
		Amount:    amount,
		Reason:    reason,
		Status:    domain.RefundStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.refunds.Create(ctx, tx, rf); err != nil {
		return nil, fmt.Errorf("recordRefund: %w", err)
	}
	return rf, nil
}

func refundEvents(b *domain.Booking, refunds []*domain.Refund) []domain.Event {
	var out []domain.Event
	for _, rf := range refunds {
		if rf == nil {
			continue
		}
		out = append(out, domain.NewBookingEvent(domain.EventRefundIssued, b, map[string]any{
			"refund_id": rf.ID,
			"amount":    rf.Amount,
			"reason":    rf.Reason,
		}))
	}
	return out
}

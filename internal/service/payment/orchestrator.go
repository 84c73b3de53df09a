// Package payment drives payments from initiation to a terminal status and
// keeps the ledger and the booking in step with what the gateway reports.
package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
	"github.com/josh-kwaku/boma-settlement/internal/gateway"
)

type paymentRepo interface {
	Create(ctx context.Context, tx *sql.Tx, p *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetByIdempotencyKey(ctx context.Context, guestID uuid.UUID, key string) (*domain.Payment, error)
	GetByExternalRef(ctx context.Context, gateway, externalRef string) (*domain.Payment, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Payment, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.PaymentStatus, failureReason *string, raw json.RawMessage, completedAt *time.Time) error
	CountFailedForBooking(ctx context.Context, tx *sql.Tx, bookingID uuid.UUID) (int, error)
}

type eventRepo interface {
	Create(ctx context.Context, tx *sql.Tx, e *domain.PaymentEvent) error
}

type anomalyRepo interface {
	Create(ctx context.Context, a *domain.PaymentAnomaly) error
}

type gatewayEventRepo interface {
	Create(ctx context.Context, e *domain.GatewayEvent) error
}

type refundRepo interface {
	Create(ctx context.Context, tx *sql.Tx, rf *domain.Refund) error
}

type ledgerPoster interface {
	Post(ctx context.Context, tx *sql.Tx, g *domain.LedgerGroup) error
}

// bookingSignals is the booking lifecycle as the orchestrator sees it. The
// tx-scoped calls join the orchestrator's transaction.
type bookingSignals interface {
	GetBooking(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Booking, error)
	LoadForPayment(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Booking, error)
	ConfirmPaid(ctx context.Context, tx *sql.Tx, b *domain.Booking) error
	CancelUnpaid(ctx context.Context, tx *sql.Tx, b *domain.Booking, reason string) error
}

type gatewayRegistry interface {
	Get(name string) (gateway.Adapter, error)
	SignatureHeader(name string) string
}

type publisher interface {
	Publish(ctx context.Context, events ...domain.Event)
}

type Settings struct {
	DefaultGateway string
	GatewayFeePct  decimal.Decimal
	// PaymentTimeout is how long a payment may stay non-terminal before
	// reconciliation fails it.
	PaymentTimeout time.Duration
	// MaxAttempts failed payments cancel the booking.
	MaxAttempts     int
	StoreTimeout    time.Duration
	ConflictRetries int
}

type Orchestrator struct {
	payments      paymentRepo
	events        eventRepo
	anomalies     anomalyRepo
	gatewayEvents gatewayEventRepo
	refunds       refundRepo
	ledger        ledgerPoster
	bookings      bookingSignals
	gateways      gatewayRegistry
	notifier      publisher
	db            *sql.DB
	settings      Settings
	now           func() time.Time
}

func NewOrchestrator(
	payments paymentRepo,
	events eventRepo,
	anomalies anomalyRepo,
	gatewayEvents gatewayEventRepo,
	refunds refundRepo,
	ledger ledgerPoster,
	bookings bookingSignals,
	gateways gatewayRegistry,
	notifier publisher,
	db *sql.DB,
	settings Settings,
) *Orchestrator {
	if settings.StoreTimeout == 0 {
		settings.StoreTimeout = 5 * time.Second
	}
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = 1
	}
	return &Orchestrator{
		payments:      payments,
		events:        events,
		anomalies:     anomalies,
		gatewayEvents: gatewayEvents,
		refunds:       refunds,
		ledger:        ledger,
		bookings:      bookings,
		gateways:      gateways,
		notifier:      notifier,
		db:            db,
		settings:      settings,
		now:           time.Now,
	}
}

// GetPayment returns a payment to the guest who made it or a privileged actor.
func (o *Orchestrator) GetPayment(ctx context.Context, id uuid.UUID, actor domain.Actor) (*domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, o.settings.StoreTimeout)
	defer cancel()

	p, err := o.payments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetPayment: %w", err)
	}
	if !actor.IsPrivileged() && p.GuestID != actor.UserID {
		return nil, fmt.Errorf("GetPayment: %w", domain.ErrNotFound)
	}
	return p, nil
}

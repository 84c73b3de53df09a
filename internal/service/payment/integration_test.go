package payment_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
	"github.com/josh-kwaku/boma-settlement/internal/gateway"
	"github.com/josh-kwaku/boma-settlement/internal/ledger"
	"github.com/josh-kwaku/boma-settlement/internal/policy"
	"github.com/josh-kwaku/boma-settlement/internal/pricing"
	"github.com/josh-kwaku/boma-settlement/internal/repository"
	"github.com/josh-kwaku/boma-settlement/internal/service/booking"
	"github.com/josh-kwaku/boma-settlement/internal/service/payment"
	"github.com/josh-kwaku/boma-settlement/internal/testutil"
)

const webhookSecret = "whsec_test"

type fakeGateway struct {
	mu          sync.Mutex
	initiated   int
	failNext    error
	queryErr    error
	keys        []string
	statuses    map[string]domain.PaymentStatus
	amounts     map[string]domain.Money
	lastPayment string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		statuses: make(map[string]domain.PaymentStatus),
		amounts:  make(map[string]domain.Money),
	}
}

func (f *fakeGateway) Name() string { return "fake" }

// Initiate keys checkouts by external id like AzamPay does, so the same key
// always yields the same reference.
func (f *fakeGateway) Initiate(_ context.Context, amount domain.Money, _, idempotencyKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initiated++
	f.keys = append(f.keys, idempotencyKey)
	ref := "ref-" + idempotencyKey
	if _, ok := f.statuses[ref]; !ok {
		f.statuses[ref] = domain.PaymentStatusPending
		f.amounts[ref] = amount
	}
	if err := f.failNext; err != nil {
		f.failNext = nil
		return "", err
	}
	f.lastPayment = ref
	return ref, nil
}

type fakeNotification struct {
	Ref      string               `json:"ref"`
	Status   domain.PaymentStatus `json:"status"`
	Amount   int64                `json:"amount"`
	Currency domain.Currency      `json:"currency"`
}

func (f *fakeGateway) ParseWebhook(body []byte, signature string) (*gateway.Notification, error) {
	if !gateway.VerifySignature(body, signature, webhookSecret) {
		return nil, domain.ErrInvalidSignature
	}
	var n fakeNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("fake.ParseWebhook: %w", domain.ErrInvalidRequest)
	}
	return &gateway.Notification{
		ExternalRef: n.Ref,
		Status:      n.Status,
		Amount:      domain.NewMoney(n.Amount, n.Currency),
		Raw:         body,
	}, nil
}

func (f *fakeGateway) QueryStatus(_ context.Context, ref string) (*gateway.StatusReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	s, ok := f.statuses[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &gateway.StatusReport{ExternalRef: ref, Status: s, Amount: f.amounts[ref], Raw: json.RawMessage(`{}`)}, nil
}

func (f *fakeGateway) setAmount(ref string, m domain.Money) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.amounts[ref] = m
}

func (f *fakeGateway) failQueries(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryErr = err
}

func (f *fakeGateway) setStatus(ref string, s domain.PaymentStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[ref] = s
}

func (f *fakeGateway) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initiated
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, events ...domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.EventType
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	db       *sql.DB
	ledger   *ledger.Ledger
	gw       *fakeGateway
	events   *recordingPublisher
	bookings *booking.Service
	payments *payment.Orchestrator
	guestID  uuid.UUID
	hostID   uuid.UUID
	property *domain.Property
}

func setup(t *testing.T, maxAttempts int) *harness {
	t.Helper()
	db := testutil.SetupTestDB(t)

	h := &harness{
		db:      db,
		gw:      newFakeGateway(),
		events:  &recordingPublisher{},
		guestID: uuid.New(),
		hostID:  uuid.New(),
	}
	h.property = testutil.SeedProperty(t, db, h.hostID)

	paymentRepo := repository.NewPaymentRepository(db)
	refundRepo := repository.NewRefundRepository(db)
	led := ledger.New(repository.NewLedgerRepository(db))

	h.ledger = led
	h.bookings = booking.NewService(
		repository.NewBookingRepository(db),
		repository.NewPropertyRepository(db),
		repository.NewAvailabilityGuard(db),
		paymentRepo,
		refundRepo,
		led,
		pricing.NewCalculator(0.15),
		policy.NewEngine(nil),
		h.events,
		db,
		booking.Settings{PaymentWindow: 30 * time.Minute, DepositHold: 7 * 24 * time.Hour, ConflictRetries: 3},
	)
	h.payments = payment.NewOrchestrator(
		paymentRepo,
		repository.NewPaymentEventRepository(db),
		repository.NewAnomalyRepository(db),
		repository.NewGatewayEventRepository(db),
		refundRepo,
		led,
		h.bookings,
		gateway.NewRegistry(h.gw),
		h.events,
		db,
		payment.Settings{
			DefaultGateway:  "fake",
			PaymentTimeout:  15 * time.Minute,
			MaxAttempts:     maxAttempts,
			ConflictRetries: 3,
		},
	)
	return h
}

func (h *harness) createBooking(t *testing.T) *domain.Booking {
	t.Helper()
	b, err := h.bookings.CreateBooking(context.Background(), booking.CreateRequest{
		GuestID:    h.guestID,
		PropertyID: h.property.ID,
		CheckIn:    testutil.Date(10),
		CheckOut:   testutil.Date(12),
		NumGuests:  2,
	})
	require.NoError(t, err)
	return b
}

func (h *harness) initiate(t *testing.T, b *domain.Booking) *domain.Payment {
	t.Helper()
	res, err := h.payments.Initiate(context.Background(), payment.InitiateRequest{
		BookingID:      b.ID,
		GuestID:        h.guestID,
		Amount:         b.Price.AmountDue(),
		IdempotencyKey: uuid.NewString(),
	})
	require.NoError(t, err)
	return res.Payment
}

func (h *harness) deliver(t *testing.T, p *domain.Payment, status domain.PaymentStatus) payment.Outcome {
	t.Helper()
	return h.deliverAmount(t, p, status, p.Amount)
}

func (h *harness) deliverAmount(t *testing.T, p *domain.Payment, status domain.PaymentStatus, amount domain.Money) payment.Outcome {
	t.Helper()
	body, err := json.Marshal(fakeNotification{Ref: p.ExternalRef, Status: status, Amount: amount.Amount, Currency: amount.Currency})
	require.NoError(t, err)
	return h.payments.HandleWebhook(context.Background(), "fake", body, gateway.Sign(body, webhookSecret))
}

// lines returns what the ledger holds for the movement keyed by groupID.
func (h *harness) lines(t *testing.T, groupID uuid.UUID) []domain.LedgerEntry {
	t.Helper()
	entries, err := h.ledger.Group(context.Background(), groupID)
	require.NoError(t, err)
	return entries
}

func (h *harness) payment(t *testing.T, id uuid.UUID) *domain.Payment {
	t.Helper()
	p, err := h.payments.GetPayment(context.Background(), id, domain.SystemActor)
	require.NoError(t, err)
	return p
}

func TestSettlement_HappyPath(t *testing.T) {
	h := setup(t, 3)
	b := h.createBooking(t)
	assert.Equal(t, int64(126_500), b.Price.AmountDue().Amount)

	p := h.initiate(t, b)
	assert.Equal(t, domain.PaymentStatusInitiated, p.Status)
	assert.NotEmpty(t, p.ExternalRef)

	assert.Equal(t, payment.OutcomeApplied, h.deliver(t, p, domain.PaymentStatusSuccess))

	assert.Equal(t, domain.BookingStatusConfirmed, testutil.GetBookingStatus(t, h.db, b.ID))
	assert.Equal(t, domain.PaymentStatusSuccess, h.payment(t, p.ID).Status)
	assert.Equal(t, 1, testutil.CountReservations(t, h.db, b.ID))

	assert.Equal(t, int64(110_000), testutil.LedgerBalance(t, h.db, domain.AccountHostWallet, &h.hostID))
	assert.Equal(t, int64(16_500), testutil.LedgerBalance(t, h.db, domain.AccountPlatformRevenue, nil))
	assert.Equal(t, int64(-126_500), testutil.LedgerBalance(t, h.db, domain.AccountGatewayReceivable, nil))
	assert.Equal(t, int64(0), testutil.LedgerBalance(t, h.db, domain.AccountGuestWallet, &h.guestID))

	var debits, credits int64
	for _, e := range h.lines(t, p.ID) {
		assert.Equal(t, domain.ReferencePayment, e.ReferenceType)
		assert.Equal(t, p.ID, e.ReferenceID)
		debits += e.Debit
		credits += e.Credit
	}
	assert.Equal(t, debits, credits)

	assert.Contains(t, h.events.types(), domain.EventBookingConfirmed)
}

func TestInitiate_Idempotency(t *testing.T) {
	h := setup(t, 3)
	b := h.createBooking(t)
	ctx := context.Background()

	req := payment.InitiateRequest{
		BookingID:      b.ID,
		GuestID:        h.guestID,
		Amount:         b.Price.AmountDue(),
		IdempotencyKey: "key-1",
	}
	first, err := h.payments.Initiate(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := h.payments.Initiate(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Payment.ID, second.Payment.ID)
	assert.Equal(t, 1, h.gw.calls())

	req.Amount = domain.NewMoney(1, domain.CurrencyTZS)
	_, err = h.payments.Initiate(ctx, req)
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyReused)
}

func TestInitiate_Rejections(t *testing.T) {
	h := setup(t, 3)
	b := h.createBooking(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     payment.InitiateRequest
		wantErr error
	}{
		{
			name:    "missing key",
			req:     payment.InitiateRequest{BookingID: b.ID, GuestID: h.guestID, Amount: b.Price.AmountDue()},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "wrong amount",
			req:     payment.InitiateRequest{BookingID: b.ID, GuestID: h.guestID, Amount: domain.NewMoney(100, domain.CurrencyTZS), IdempotencyKey: "a"},
			wantErr: domain.ErrAmountMismatch,
		},
		{
			name:    "not the guest",
			req:     payment.InitiateRequest{BookingID: b.ID, GuestID: uuid.New(), Amount: b.Price.AmountDue(), IdempotencyKey: "b"},
			wantErr: domain.ErrNotFound,
		},
		{
			name:    "unknown gateway",
			req:     payment.InitiateRequest{BookingID: b.ID, GuestID: h.guestID, Amount: b.Price.AmountDue(), IdempotencyKey: "c", Gateway: "nope"},
			wantErr: domain.ErrUnknownGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.payments.Initiate(ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Equal(t, 0, h.gw.calls())
}

func TestInitiate_GatewayFailureStoresNothing(t *testing.T) {
	h := setup(t, 3)
	b := h.createBooking(t)
	ctx := context.Background()

	h.gw.failNext = errors.New("connection reset")
	req := payment.InitiateRequest{
		BookingID:      b.ID,
		GuestID:        h.guestID,
		Amount:         b.Price.AmountDue(),
		IdempotencyKey: "retry-me",
	}
	_, err := h.payments.Initiate(ctx, req)
	require.ErrorIs(t, err, domain.ErrPaymentGateway)

	res, err := h.payments.Initiate(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, 2, h.gw.calls())

	want := payment.PaymentID(h.guestID, "retry-me")
	assert.Equal(t, []string{want.String(), want.String()}, h.gw.keys)
	assert.Equal(t, want, res.Payment.ID)
	assert.Equal(t, "ref-"+want.String(), res.Payment.ExternalRef)
}

func TestInitiate_TimedOutCheckoutStillSettles(t *testing.T) {
	h := setup(t, 3)
	b := h.createBooking(t)
	ctx := context.Background()

	req := payment.InitiateRequest{
		BookingID:      b.ID,
		GuestID:        h.guestID,
		Amount:         b.Price.AmountDue(),
		IdempotencyKey: "client-key-1",
	}
	h.gw.failNext = fmt.Errorf("read tcp: i/o timeout")
	_, err := h.payments.Initiate(ctx, req)
	require.ErrorIs(t, err, domain.ErrPaymentGateway)

	res, err := h.payments.Initiate(ctx, req)
	require.NoError(t, err)

	// The guest approves the checkout pushed by the first, timed-out call.
	first := &domain.Payment{ExternalRef: "ref-" + h.gw.keys[0], Amount: b.Price.AmountDue()}
	assert.Equal(t, payment.OutcomeApplied, h.deliver(t, first, domain.PaymentStatusSuccess))
	assert.Equal(t, domain.PaymentStatusSuccess, h.payment(t, res.Payment.ID).Status)
	assert.Equal(t, domain.BookingStatusConfirmed, testutil.GetBookingStatus(t, h.db, b.ID))
	assert.NotEmpty(t, h.lines(t, res.Payment.ID))
}

func TestWebhook_DuplicateDeliveryIsNoOp(t *testing.T) {
	h := setup(t, 3)
	b := h.createBooking(t)
	p := h.initiate(t, b)

	require.Equal(t, payment.OutcomeApplied, h.deliver(t, p, domain.PaymentStatusSuccess))
	settled := h.lines(t, p.ID)
	require.NotEmpty(t, settled)

	assert.Equal(t, payment.OutcomeDuplicate, h.deliver(t, p, domain.PaymentStatusSuccess))
	assert.Len(t, h.lines(t, p.ID), len(settled))
	assert.Equal(t, int64(110_000), testutil.LedgerBalance(t, h.db, domain.AccountHostWallet, &h.hostID))
}

func TestWebhook_ConflictingTerminalStatus(t *testing.T) {
	h := setup(t, 3)
	b := h.createBooking(t)
	p := h.initiate(t, b)

	require.Equal(t, payment.OutcomeApplied, h.deliver(t, p, domain.PaymentStatusSuccess))
	assert.Equal(t, payment.OutcomeAnomaly, h.deliver(t, p, domain.PaymentStatusFailed))

	assert.Equal(t, domain.PaymentStatusSuccess, h.payment(t, p.ID).Status)
	assert.Equal(t, domain.BookingStatusConfirmed, testutil.GetBookingStatus(t, h.db, b.ID))
	assert.Equal(t, 1, testutil.CountAnomalies(t, h.db, p.ID, domain.AnomalyIdempotencyViolation))
	assert.Contains(t, h.events.types(), domain.EventIntegrityAlert)
}

func TestWebhook_Rejected(t *testing.T) {
	h := setup(t, 3)
	b := h.createBooking(t)
	p := h.initiate(t, b)

	body := []byte(`{"ref":"` + p.ExternalRef + `","status":"success"}`)
	assert.Equal(t, payment.OutcomeRejected, h.payments.HandleWebhook(context.Background(), "fake", body, "bad"))
	assert.Equal(t, payment.OutcomeRejected, h.payments.HandleWebhook(context.Background(), "other", body, gateway.Sign(body, webhookSecret)))

	unknown := &domain.Payment{ExternalRef: "ref-unknown", Amount: p.Amount}
	assert.Equal(t, payment.OutcomeUnmatched, h.deliver(t, unknown, domain.PaymentStatusSuccess))

	assert.Equal(t, domain.PaymentStatusInitiated, h.payment(t, p.ID).Status)
	assert.Equal(t, domain.BookingStatusAwaitingPayment, testutil.GetBookingStatus(t, h.db, b.ID))
}

func TestWebhook_AmountMismatch(t *testing.T) {
	h := setup(t, 3)
	b := h.createBooking(t)
	p := h.initiate(t, b)

	outcome := h.deliverAmount(t, p, domain.PaymentStatusSuccess, domain.NewMoney(1_000, domain.CurrencyTZS))
	assert.Equal(t, payment.OutcomeAnomaly, outcome)
	assert.Equal(t, domain.PaymentStatusInitiated, h.payment(t, p.ID).Status)
	assert.Equal(t, 1, testutil.CountAnomalies(t, h.db, p.ID, domain.AnomalyAmountMismatch))
	assert.Empty(t, h.lines(t, p.ID))
}

func TestWebhook_LateSuccessAfterCancel(t *testing.T) {
	h := setup(t, 3)
	b := h.createBooking(t)
	p := h.initiate(t, b)

	_, err := h.bookings.CancelBooking(context.Background(), b.ID, domain.Actor{UserID: h.guestID, Role: domain.RoleGuest}, "changed plans")
	require.NoError(t, err)
	assert.Equal(t, 0, testutil.CountReservations(t, h.db, b.ID))

	assert.Equal(t, payment.OutcomeApplied, h.deliver(t, p, domain.PaymentStatusSuccess))

	assert.Equal(t, domain.BookingStatusCancelled, testutil.GetBookingStatus(t, h.db, b.ID))
	assert.Equal(t, 1, testutil.CountRefunds(t, h.db, b.ID, domain.RefundReasonLatePayment))
	assert.Equal(t, int64(126_500), testutil.LedgerBalance(t, h.db, domain.AccountGuestWallet, &h.guestID))
	assert.Equal(t, int64(0), testutil.LedgerBalance(t, h.db, domain.AccountHostWallet, &h.hostID))
	assert.Contains(t, h.events.types(), domain.EventRefundIssued)
}

func TestWebhook_SecondSuccessIsRefunded(t *testing.T) {
	h := setup(t, 3)
	b := h.createBooking(t)
	first := h.initiate(t, b)
	second := h.initiate(t, b)

	require.Equal(t, payment.OutcomeApplied, h.deliver(t, first, domain.PaymentStatusSuccess))
	require.Equal(t, payment.OutcomeApplied, h.deliver(t, second, domain.PaymentStatusSuccess))

	assert.Equal(t, domain.BookingStatusConfirmed, testutil.GetBookingStatus(t, h.db, b.ID))
	assert.Equal(t, 1, testutil.CountRefunds(t, h.db, b.ID, domain.RefundReasonLatePayment))
	assert.Equal(t, int64(110_000), testutil.LedgerBalance(t, h.db, domain.AccountHostWallet, &h.hostID))
	assert.Equal(t, int64(126_500), testutil.LedgerBalance(t, h.db, domain.AccountGuestWallet, &h.guestID))
}

func TestWebhook_FailuresExhaustAttempts(t *testing.T) {
	h := setup(t, 2)
	b := h.createBooking(t)

	first := h.initiate(t, b)
	require.Equal(t, payment.OutcomeApplied, h.deliver(t, first, domain.PaymentStatusFailed))
	assert.Equal(t, domain.BookingStatusAwaitingPayment, testutil.GetBookingStatus(t, h.db, b.ID))
	assert.Equal(t, 1, testutil.CountReservations(t, h.db, b.ID))

	second := h.initiate(t, b)
	require.Equal(t, payment.OutcomeApplied, h.deliver(t, second, domain.PaymentStatusFailed))
	assert.Equal(t, domain.BookingStatusCancelled, testutil.GetBookingStatus(t, h.db, b.ID))
	assert.Equal(t, 0, testutil.CountReservations(t, h.db, b.ID))

	assert.Contains(t, h.events.types(), domain.EventBookingCancelled)
}

func TestReconcile_AppliesGatewayStatus(t *testing.T) {
	h := setup(t, 3)
	b := h.createBooking(t)
	p := h.initiate(t, b)
	ctx := context.Background()

	outcome, err := h.payments.Reconcile(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeIgnored, outcome)
	assert.Equal(t, domain.PaymentStatusPending, h.payment(t, p.ID).Status)

	h.gw.setStatus(p.ExternalRef, domain.PaymentStatusSuccess)
	outcome, err = h.payments.Reconcile(ctx, h.payment(t, p.ID))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeApplied, outcome)
	assert.Equal(t, domain.BookingStatusConfirmed, testutil.GetBookingStatus(t, h.db, b.ID))
}

func TestReconcile_TimesOutStalePayment(t *testing.T) {
	h := setup(t, 3)
	b := h.createBooking(t)
	p := h.initiate(t, b)
	testutil.AgePayment(t, h.db, p.ID, time.Hour)

	outcome, err := h.payments.Reconcile(context.Background(), h.payment(t, p.ID))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeApplied, outcome)

	got := h.payment(t, p.ID)
	assert.Equal(t, domain.PaymentStatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, domain.FailureReasonTimeout, *got.FailureReason)
	assert.Equal(t, domain.BookingStatusCancelled, testutil.GetBookingStatus(t, h.db, b.ID))
	assert.Equal(t, 0, testutil.CountReservations(t, h.db, b.ID))
}

func TestReconcile_MismatchRecordsAnomaly(t *testing.T) {
	h := setup(t, 3)
	b := h.createBooking(t)
	p := h.initiate(t, b)
	require.Equal(t, payment.OutcomeApplied, h.deliver(t, p, domain.PaymentStatusSuccess))

	h.gw.setStatus(p.ExternalRef, domain.PaymentStatusFailed)
	outcome, err := h.payments.Reconcile(context.Background(), h.payment(t, p.ID))
	assert.ErrorIs(t, err, domain.ErrReconciliationMismatch)
	assert.Equal(t, payment.OutcomeAnomaly, outcome)
	assert.Equal(t, 1, testutil.CountAnomalies(t, h.db, p.ID, domain.AnomalyReconciliationMismatch))
	assert.Equal(t, domain.PaymentStatusSuccess, h.payment(t, p.ID).Status)
}

func TestReconcile_UnderpaidSuccessIsNotSettled(t *testing.T) {
	h := setup(t, 3)
	b := h.createBooking(t)
	p := h.initiate(t, b)
	underpaid := domain.NewMoney(1_000, domain.CurrencyTZS)

	require.Equal(t, payment.OutcomeAnomaly, h.deliverAmount(t, p, domain.PaymentStatusSuccess, underpaid))

	h.gw.setStatus(p.ExternalRef, domain.PaymentStatusSuccess)
	h.gw.setAmount(p.ExternalRef, underpaid)
	outcome, err := h.payments.Reconcile(context.Background(), h.payment(t, p.ID))
	assert.ErrorIs(t, err, domain.ErrAmountMismatch)
	assert.Equal(t, payment.OutcomeAnomaly, outcome)

	assert.Equal(t, domain.PaymentStatusInitiated, h.payment(t, p.ID).Status)
	assert.Equal(t, domain.BookingStatusAwaitingPayment, testutil.GetBookingStatus(t, h.db, b.ID))
	assert.Empty(t, h.lines(t, p.ID))
	assert.Equal(t, int64(0), testutil.LedgerBalance(t, h.db, domain.AccountHostWallet, &h.hostID))
	assert.Equal(t, 2, testutil.CountAnomalies(t, h.db, p.ID, domain.AnomalyAmountMismatch))
}

func TestReconcile_GatewayUnreachableLeavesPayment(t *testing.T) {
	h := setup(t, 3)
	b := h.createBooking(t)
	p := h.initiate(t, b)
	testutil.AgePayment(t, h.db, p.ID, time.Hour)

	h.gw.failQueries(fmt.Errorf("dial tcp: connection refused: %w", domain.ErrPaymentGateway))
	outcome, err := h.payments.Reconcile(context.Background(), h.payment(t, p.ID))
	assert.ErrorIs(t, err, domain.ErrPaymentGateway)
	assert.Equal(t, payment.OutcomeFailed, outcome)

	assert.Equal(t, domain.PaymentStatusInitiated, h.payment(t, p.ID).Status)
	assert.Equal(t, domain.BookingStatusAwaitingPayment, testutil.GetBookingStatus(t, h.db, b.ID))
	assert.Equal(t, 1, testutil.CountReservations(t, h.db, b.ID))

	// Once the gateway answers, its success is applied normally.
	h.gw.failQueries(nil)
	h.gw.setStatus(p.ExternalRef, domain.PaymentStatusSuccess)
	outcome, err = h.payments.Reconcile(context.Background(), h.payment(t, p.ID))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeApplied, outcome)
	assert.Equal(t, domain.BookingStatusConfirmed, testutil.GetBookingStatus(t, h.db, b.ID))
}

package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
)

// SeedProperty inserts a verified TZS listing at 50,000 a night with a
// 10,000 cleaning fee. opts adjust it before insert.
func SeedProperty(t *testing.T, db *sql.DB, hostID uuid.UUID, opts ...func(*domain.Property)) *domain.Property {
	t.Helper()

	p := &domain.Property{
		ID:                 uuid.New(),
		HostID:             hostID,
		Title:              "Test listing",
		Status:             domain.PropertyStatusVerified,
		NightlyPrice:       domain.NewMoney(50_000, domain.CurrencyTZS),
		CleaningFee:        domain.NewMoney(10_000, domain.CurrencyTZS),
		DepositAmount:      domain.Zero(domain.CurrencyTZS),
		MaxGuests:          4,
		MinNights:          1,
		CancellationPolicy: domain.CancellationPolicyModerate,
	}
	for _, opt := range opts {
		opt(p)
	}

	_, err := db.Exec(
		`INSERT INTO properties (id, host_id, title, status, currency, nightly_price, cleaning_fee,
			deposit_amount, max_guests, min_nights, cancellation_policy)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.HostID, p.Title, p.Status, string(p.NightlyPrice.Currency), p.NightlyPrice.Amount,
		p.CleaningFee.Amount, p.DepositAmount.Amount, p.MaxGuests, p.MinNights, p.CancellationPolicy,
	)
	if err != nil {
		t.Fatalf("seed property: %v", err)
	}
	return p
}

func WithDeposit(amount int64) func(*domain.Property) {
	return func(p *domain.Property) { p.DepositAmount = domain.NewMoney(amount, p.NightlyPrice.Currency) }
}

func WithPolicy(policy domain.CancellationPolicy) func(*domain.Property) {
	return func(p *domain.Property) { p.CancellationPolicy = policy }
}

func WithStatus(status domain.PropertyStatus) func(*domain.Property) {
	return func(p *domain.Property) { p.Status = status }
}

// Date returns midnight UTC days from today.
func Date(days int) time.Time {
	return domain.DateOnly(time.Now().UTC()).AddDate(0, 0, days)
}

func GetBookingStatus(t *testing.T, db *sql.DB, bookingID uuid.UUID) domain.BookingStatus {
	t.Helper()

	var status domain.BookingStatus
	if err := db.QueryRow(`SELECT status FROM bookings WHERE id = $1`, bookingID).Scan(&status); err != nil {
		t.Fatalf("get booking status %s: %v", bookingID, err)
	}
	return status
}

// ExpireBooking backdates a booking's payment window so the next sweep sees it.
func ExpireBooking(t *testing.T, db *sql.DB, bookingID uuid.UUID) {
	t.Helper()

	if _, err := db.Exec(`UPDATE bookings SET expires_at = now() - interval '1 minute' WHERE id = $1`, bookingID); err != nil {
		t.Fatalf("expire booking %s: %v", bookingID, err)
	}
}

// AgePayment backdates a payment's creation so it looks stale to reconciliation.
func AgePayment(t *testing.T, db *sql.DB, paymentID uuid.UUID, by time.Duration) {
	t.Helper()

	if _, err := db.Exec(`UPDATE payments SET created_at = created_at - make_interval(secs => $2) WHERE id = $1`,
		paymentID, by.Seconds()); err != nil {
		t.Fatalf("age payment %s: %v", paymentID, err)
	}
}

func CountReservations(t *testing.T, db *sql.DB, bookingID uuid.UUID) int {
	t.Helper()
	return count(t, db, `SELECT COUNT(*) FROM reservations WHERE booking_id = $1`, bookingID)
}

func CountRefunds(t *testing.T, db *sql.DB, bookingID uuid.UUID, reason domain.RefundReason) int {
	t.Helper()
	return count(t, db, `SELECT COUNT(*) FROM refunds WHERE booking_id = $1 AND reason = $2`, bookingID, reason)
}

func CountAnomalies(t *testing.T, db *sql.DB, paymentID uuid.UUID, kind domain.AnomalyKind) int {
	t.Helper()
	return count(t, db, `SELECT COUNT(*) FROM payment_anomalies WHERE payment_id = $1 AND kind = $2`, paymentID, kind)
}

// LedgerBalance is credits minus debits on an account, scoped to entityID when given.
func LedgerBalance(t *testing.T, db *sql.DB, account domain.LedgerAccount, entityID *uuid.UUID) int64 {
	t.Helper()

	var balance int64
	err := db.QueryRow(
		`SELECT COALESCE(SUM(credit - debit), 0) FROM ledger_entries
		 WHERE account = $1 AND ($2::uuid IS NULL OR entity_id = $2)`,
		account, entityID,
	).Scan(&balance)
	if err != nil {
		t.Fatalf("ledger balance %s: %v", account, err)
	}
	return balance
}

func count(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()

	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

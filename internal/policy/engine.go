// Package policy computes cancellation refunds from the booking row alone.
package policy

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
)

const day = 24 * time.Hour

// Rule grants Fraction when the cancellation lands at least MinNotice before check-in.
type Rule struct {
	MinNotice time.Duration
	Fraction  decimal.Decimal
}

// DefaultRules are the published cutoffs. Callers may supply their own table.
var DefaultRules = map[domain.CancellationPolicy][]Rule{
	domain.CancellationPolicyFlexible: {
		{MinNotice: day, Fraction: decimal.NewFromInt(1)},
		{MinNotice: 0, Fraction: decimal.RequireFromString("0.5")},
	},
	domain.CancellationPolicyModerate: {
		{MinNotice: 5 * day, Fraction: decimal.NewFromInt(1)},
		{MinNotice: day, Fraction: decimal.RequireFromString("0.5")},
	},
	domain.CancellationPolicyStrict: {
		{MinNotice: 7 * day, Fraction: decimal.RequireFromString("0.5")},
	},
}

type Engine struct {
	rules map[domain.CancellationPolicy][]Rule
}

func NewEngine(rules map[domain.CancellationPolicy][]Rule) *Engine {
	if rules == nil {
		rules = DefaultRules
	}
	sorted := make(map[domain.CancellationPolicy][]Rule, len(rules))
	for p, rs := range rules {
		cp := append([]Rule(nil), rs...)
		sort.Slice(cp, func(i, j int) bool { return cp[i].MinNotice > cp[j].MinNotice })
		sorted[p] = cp
	}
	return &Engine{rules: sorted}
}

// RefundFraction returns the share of nights and cleaning refunded, in [0, 1].
// Check-in is taken as midnight UTC of the check-in date.
func (e *Engine) RefundFraction(p domain.CancellationPolicy, checkIn, cancelledAt time.Time) decimal.Decimal {
	notice := domain.DateOnly(checkIn).Sub(cancelledAt.UTC())
	return e.fractionForNotice(p, notice)
}

func (e *Engine) fractionForNotice(p domain.CancellationPolicy, notice time.Duration) decimal.Decimal {
	if notice < 0 {
		return decimal.Zero
	}
	for _, r := range e.rules[p] {
		if notice >= r.MinNotice {
			return r.Fraction
		}
	}
	return decimal.Zero
}

// Quote prices a cancellation of b at cancelledAt. When paid is false nothing
// was collected and the quote is zero.
func (e *Engine) Quote(b *domain.Booking, cancelledAt time.Time, paid bool) (domain.RefundQuote, error) {
	q, err := quote(b, e.RefundFraction(b.CancellationPolicy, b.CheckIn, cancelledAt), paid)
	if err != nil {
		return domain.RefundQuote{}, fmt.Errorf("Quote: %w", err)
	}
	return q, nil
}

// FullQuote refunds the whole refundable base regardless of notice. It applies
// when the host or the platform cancels.
func (e *Engine) FullQuote(b *domain.Booking, paid bool) (domain.RefundQuote, error) {
	q, err := quote(b, decimal.NewFromInt(1), paid)
	if err != nil {
		return domain.RefundQuote{}, fmt.Errorf("FullQuote: %w", err)
	}
	return q, nil
}

func quote(b *domain.Booking, fraction decimal.Decimal, paid bool) (domain.RefundQuote, error) {
	if !b.CancellationPolicy.IsValid() {
		return domain.RefundQuote{}, fmt.Errorf("policy %q: %w", b.CancellationPolicy, domain.ErrValidation)
	}

	currency := b.Currency()
	q := domain.RefundQuote{
		BookingID:      b.ID,
		Policy:         b.CancellationPolicy,
		Fraction:       decimal.Zero,
		RefundableBase: b.Price.RefundableBase(),
		Refund:         domain.Zero(currency),
		DepositRefund:  domain.Zero(currency),
		NonRefundable:  domain.Zero(currency),
		Paid:           paid,
	}
	if !paid {
		return q, nil
	}

	q.Fraction = fraction
	q.Refund = q.RefundableBase.MulFraction(fraction)
	q.DepositRefund = b.Price.Deposit

	kept, err := b.Price.Total.Sub(q.Refund)
	if err != nil {
		return domain.RefundQuote{}, err
	}
	q.NonRefundable = kept
	return q, nil
}

package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

type Currency string

const (
	CurrencyTZS Currency = "TZS"
	CurrencyKES Currency = "KES"
	CurrencyUGX Currency = "UGX"
	CurrencyUSD Currency = "USD"
	CurrencyINR Currency = "INR"
)

// zeroDecimal lists ISO 4217 currencies without a minor unit.
var zeroDecimal = map[Currency]bool{
	CurrencyUGX: true,
	"RWF":       true,
	"JPY":       true,
	"KRW":       true,
	"XOF":       true,
	"XAF":       true,
}

func (c Currency) IsValid() bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Exponent is the number of minor-unit digits for the currency.
func (c Currency) Exponent() int32 {
	if zeroDecimal[c] {
		return 0
	}
	return 2
}

func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("ParseCurrency: %q: %w", s, ErrInvalidCurrency)
	}
	return c, nil
}

// Money is an amount in integer minor units of a single currency.
type Money struct {
	Amount   int64    `json:"amount"`
	Currency Currency `json:"currency"`
}

func NewMoney(amount int64, currency Currency) Money {
	return Money{Amount: amount, Currency: currency}
}

func Zero(currency Currency) Money {
	return Money{Currency: currency}
}

func (m Money) IsZero() bool     { return m.Amount == 0 }
func (m Money) IsPositive() bool { return m.Amount > 0 }
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Add, Sub and MulInt return ErrInvalidAmount rather than wrap past int64.
func (m Money) Add(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("Add: %s + %s: %w", m.Currency, o.Currency, ErrCurrencyMismatch)
	}
	if (o.Amount > 0 && m.Amount > math.MaxInt64-o.Amount) || (o.Amount < 0 && m.Amount < math.MinInt64-o.Amount) {
		return Money{}, fmt.Errorf("Add: %d + %d overflows: %w", m.Amount, o.Amount, ErrInvalidAmount)
	}
	return Money{Amount: m.Amount + o.Amount, Currency: m.Currency}, nil
}

func (m Money) Sub(o Money) (Money, error) {
	if m.Currency != o.Currency {
		return Money{}, fmt.Errorf("Sub: %s - %s: %w", m.Currency, o.Currency, ErrCurrencyMismatch)
	}
	if (o.Amount < 0 && m.Amount > math.MaxInt64+o.Amount) || (o.Amount > 0 && m.Amount < math.MinInt64+o.Amount) {
		return Money{}, fmt.Errorf("Sub: %d - %d overflows: %w", m.Amount, o.Amount, ErrInvalidAmount)
	}
	return Money{Amount: m.Amount - o.Amount, Currency: m.Currency}, nil
}

func (m Money) MulInt(n int64) (Money, error) {
	if m.Amount == 0 || n == 0 {
		return Zero(m.Currency), nil
	}
	p := m.Amount * n
	if p/n != m.Amount || (m.Amount == -1 && n == math.MinInt64) || (n == -1 && m.Amount == math.MinInt64) {
		return Money{}, fmt.Errorf("MulInt: %d x %d overflows: %w", m.Amount, n, ErrInvalidAmount)
	}
	return Money{Amount: p, Currency: m.Currency}, nil
}

// MulFraction scales by f and rounds half away from zero to whole minor units.
func (m Money) MulFraction(f decimal.Decimal) Money {
	v := decimal.NewFromInt(m.Amount).Mul(f).Round(0).IntPart()
	return Money{Amount: v, Currency: m.Currency}
}

func (m Money) Equal(o Money) bool {
	return m.Currency == o.Currency && m.Amount == o.Amount
}

// Cmp returns -1, 0 or 1. Currencies must match.
func (m Money) Cmp(o Money) (int, error) {
	if m.Currency != o.Currency {
		return 0, fmt.Errorf("Cmp: %s vs %s: %w", m.Currency, o.Currency, ErrCurrencyMismatch)
	}
	switch {
	case m.Amount < o.Amount:
		return -1, nil
	case m.Amount > o.Amount:
		return 1, nil
	default:
		return 0, nil
	}
}

// Major renders the amount in major units, e.g. 1250 USD -> "12.50".
func (m Money) Major() decimal.Decimal {
	return decimal.New(m.Amount, -m.Currency.Exponent())
}

// MoneyFromMajor converts a major-unit decimal into minor units, rejecting sub-minor precision.
func MoneyFromMajor(v decimal.Decimal, currency Currency) (Money, error) {
	minor := v.Shift(currency.Exponent())
	if !minor.Equal(minor.Truncate(0)) {
		return Money{}, fmt.Errorf("MoneyFromMajor: %s has more precision than %s allows: %w", v, currency, ErrInvalidAmount)
	}
	return Money{Amount: minor.IntPart(), Currency: currency}, nil
}

func (m Money) String() string {
	return m.Major().StringFixed(m.Currency.Exponent()) + " " + string(m.Currency)
}

// SumMoney adds amounts that must all share currency.
func SumMoney(currency Currency, amounts ...Money) (Money, error) {
	total := Zero(currency)
	for _, a := range amounts {
		var err error
		if total, err = total.Add(a); err != nil {
			return Money{}, fmt.Errorf("SumMoney: %w", err)
		}
	}
	return total, nil
}

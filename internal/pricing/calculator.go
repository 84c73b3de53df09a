package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
)

// Calculator turns catalog prices into a frozen booking price breakdown.
type Calculator struct {
	platformFeePct decimal.Decimal
}

func NewCalculator(platformFeePct float64) *Calculator {
	return &Calculator{platformFeePct: decimal.NewFromFloat(platformFeePct)}
}

func (c *Calculator) PlatformFeePct() decimal.Decimal {
	return c.platformFeePct
}

func (c *Calculator) Quote(p *domain.Property, nights int) (*domain.PriceBreakdown, error) {
	if nights <= 0 {
		return nil, fmt.Errorf("Quote: nights must be positive: %w", domain.ErrValidation)
	}
	if !p.NightlyPrice.IsPositive() {
		return nil, fmt.Errorf("Quote: nightly price: %w", domain.ErrInvalidAmount)
	}

	currency := p.NightlyPrice.Currency
	cleaning := p.CleaningFee
	if cleaning.Currency == "" {
		cleaning = domain.Zero(currency)
	}
	deposit := p.DepositAmount
	if deposit.Currency == "" {
		deposit = domain.Zero(currency)
	}
	if cleaning.Currency != currency || deposit.Currency != currency {
		return nil, fmt.Errorf("Quote: property %s: %w", p.ID, domain.ErrCurrencyMismatch)
	}
	if cleaning.IsNegative() || deposit.IsNegative() {
		return nil, fmt.Errorf("Quote: negative fee: %w", domain.ErrInvalidAmount)
	}

	nightsCost, err := p.NightlyPrice.MulInt(int64(nights))
	if err != nil {
		return nil, fmt.Errorf("Quote: %w", err)
	}
	base, err := nightsCost.Add(cleaning)
	if err != nil {
		return nil, fmt.Errorf("Quote: %w", err)
	}

	fee := base.MulFraction(c.platformFeePct)
	total, err := base.Add(fee)
	if err != nil {
		return nil, fmt.Errorf("Quote: %w", err)
	}
	if _, err := total.Add(deposit); err != nil {
		return nil, fmt.Errorf("Quote: amount due: %w", err)
	}

	return &domain.PriceBreakdown{
		NightlyRate: p.NightlyPrice,
		Nights:      nights,
		NightsCost:  nightsCost,
		CleaningFee: cleaning,
		PlatformFee: fee,
		Total:       total,
		Deposit:     deposit,
	}, nil
}

// GatewayFee is the processor's cut of an amount, rounded to whole minor units.
func GatewayFee(amount domain.Money, pct decimal.Decimal) domain.Money {
	if pct.IsZero() {
		return domain.Zero(amount.Currency)
	}
	return amount.MulFraction(pct)
}

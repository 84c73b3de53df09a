package pricing

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/boma-settlement/internal/domain"
)

func tzs(v int64) domain.Money { return domain.NewMoney(v, domain.CurrencyTZS) }

func TestQuote(t *testing.T) {
	calc := NewCalculator(0.15)

	tests := []struct {
		name      string
		property  domain.Property
		nights    int
		wantTotal int64
		wantFee   int64
		wantErr   error
	}{
		{
			name:      "two nights with cleaning fee",
			property:  domain.Property{ID: uuid.New(), NightlyPrice: tzs(50_000), CleaningFee: tzs(10_000)},
			nights:    2,
			wantTotal: 126_500,
			wantFee:   16_500,
		},
		{
			name:      "no cleaning fee",
			property:  domain.Property{ID: uuid.New(), NightlyPrice: tzs(40_000)},
			nights:    3,
			wantTotal: 138_000,
			wantFee:   18_000,
		},
		{
			name:      "fee rounds half away from zero",
			property:  domain.Property{ID: uuid.New(), NightlyPrice: tzs(3)},
			nights:    1,
			wantTotal: 3,
			wantFee:   0,
		},
		{
			name:     "zero nights",
			property: domain.Property{ID: uuid.New(), NightlyPrice: tzs(50_000)},
			nights:   0,
			wantErr:  domain.ErrValidation,
		},
		{
			name:     "free listing rejected",
			property: domain.Property{ID: uuid.New(), NightlyPrice: tzs(0)},
			nights:   1,
			wantErr:  domain.ErrInvalidAmount,
		},
		{
			name: "cleaning fee in another currency",
			property: domain.Property{
				ID:           uuid.New(),
				NightlyPrice: tzs(50_000),
				CleaningFee:  domain.NewMoney(10, domain.CurrencyUSD),
			},
			nights:  1,
			wantErr: domain.ErrCurrencyMismatch,
		},
		{
			name:     "nightly price overflows over the stay",
			property: domain.Property{ID: uuid.New(), NightlyPrice: tzs(math.MaxInt64 / 2)},
			nights:   3,
			wantErr:  domain.ErrInvalidAmount,
		},
		{
			name: "fee pushes total past int64",
			property: domain.Property{
				ID:           uuid.New(),
				NightlyPrice: tzs(math.MaxInt64 - 1_000),
			},
			nights:  1,
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name: "deposit pushes amount due past int64",
			property: domain.Property{
				ID:            uuid.New(),
				NightlyPrice:  tzs(math.MaxInt64 / 2),
				DepositAmount: tzs(math.MaxInt64 / 2),
			},
			nights:  1,
			wantErr: domain.ErrInvalidAmount,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q, err := calc.Quote(&tc.property, tc.nights)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantTotal, q.Total.Amount)
			assert.Equal(t, tc.wantFee, q.PlatformFee.Amount)
			assert.Equal(t, domain.CurrencyTZS, q.Total.Currency)
		})
	}
}

func TestQuote_DepositIsOutsideTotal(t *testing.T) {
	calc := NewCalculator(0.15)
	p := &domain.Property{
		ID:            uuid.New(),
		NightlyPrice:  tzs(50_000),
		CleaningFee:   tzs(10_000),
		DepositAmount: tzs(20_000),
	}

	q, err := calc.Quote(p, 2)
	require.NoError(t, err)

	assert.Equal(t, int64(126_500), q.Total.Amount)
	assert.Equal(t, int64(146_500), q.AmountDue().Amount)
	assert.Equal(t, int64(110_000), q.RefundableBase().Amount)
}

func TestGatewayFee(t *testing.T) {
	assert.Equal(t, int64(0), GatewayFee(tzs(126_500), decimal.Zero).Amount)
	assert.Equal(t, int64(1_265), GatewayFee(tzs(126_500), decimal.NewFromFloat(0.01)).Amount)
}

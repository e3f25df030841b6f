package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceReferenceQuote(t *testing.T) {
	// 5 kg at 10.00/kg, declared 100.00, insured
	q := Price(Input{WeightGrams: 5000, PricePerKg: 1000, DeclaredValue: 10000, InsuranceOpted: true}, DefaultRates())

	assert.Equal(t, int64(5000), q.Transport)
	assert.Equal(t, int64(600), q.Commission)
	assert.Equal(t, int64(350), q.InsurancePremium)
	assert.Equal(t, int64(5950), q.Total)
}

func TestPriceWithoutInsurance(t *testing.T) {
	q := Price(Input{WeightGrams: 5000, PricePerKg: 1000, DeclaredValue: 10000}, DefaultRates())

	assert.Equal(t, int64(0), q.InsurancePremium)
	assert.Equal(t, int64(5600), q.Total)
}

func TestPriceRoundsHalfUpPerComponent(t *testing.T) {
	// 1.234 kg * 333 = 410.922 -> 411; 411 * 0.12 = 49.32 -> 49
	q := Price(Input{WeightGrams: 1234, PricePerKg: 333}, DefaultRates())
	assert.Equal(t, int64(411), q.Transport)
	assert.Equal(t, int64(49), q.Commission)
	assert.Equal(t, q.Transport+q.Commission+q.InsurancePremium, q.Total)

	// 0.5 minor unit rounds up
	q = Price(Input{WeightGrams: 500, PricePerKg: 1}, DefaultRates())
	assert.Equal(t, int64(1), q.Transport)
}

func TestPriceInsuranceRounding(t *testing.T) {
	// 333 * 0.015 = 4.995 + 200 = 204.995 -> 205
	q := Price(Input{WeightGrams: 1000, PricePerKg: 100, DeclaredValue: 333, InsuranceOpted: true}, DefaultRates())
	assert.Equal(t, int64(205), q.InsurancePremium)
}

func TestPriceIsDeterministic(t *testing.T) {
	in := Input{WeightGrams: 7777, PricePerKg: 1299, DeclaredValue: 45678, InsuranceOpted: true}
	assert.Equal(t, Price(in, DefaultRates()), Price(in, DefaultRates()))
}

func TestRatesValidate(t *testing.T) {
	assert.NoError(t, DefaultRates().Validate())

	bad := DefaultRates()
	bad.CommissionRate = decimal.NewFromInt(1)
	assert.Error(t, bad.Validate())

	bad = DefaultRates()
	bad.InsuranceBaseFee = -1
	assert.Error(t, bad.Validate())
}

func TestGramsFromKg(t *testing.T) {
	g, err := GramsFromKg(decimal.RequireFromString("2.5"))
	require.NoError(t, err)
	assert.Equal(t, int64(2500), g)

	_, err = GramsFromKg(decimal.RequireFromString("0.0005"))
	assert.ErrorIs(t, err, ErrWeightPrecision)

	g, err = GramsFromKg(decimal.NewFromInt(MaxWeightKg))
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), g)

	for _, huge := range []string{"1000.001", "9300000000000000", "1e30"} {
		_, err = GramsFromKg(decimal.RequireFromString(huge))
		assert.ErrorIs(t, err, ErrWeightTooLarge, huge)
	}

	assert.Equal(t, "1.25", KgFromGrams(1250).String())
}

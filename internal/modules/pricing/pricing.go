// Package pricing computes the frozen price terms of a booking in integer minor currency units.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Rates are the platform fee parameters. InsuranceBaseFee is in minor units.
type Rates struct {
	CommissionRate   decimal.Decimal
	InsuranceRate    decimal.Decimal
	InsuranceBaseFee int64
}

func DefaultRates() Rates {
	return Rates{
		CommissionRate:   decimal.RequireFromString("0.12"),
		InsuranceRate:    decimal.RequireFromString("0.015"),
		InsuranceBaseFee: 200,
	}
}

func (r Rates) Validate() error {
	one := decimal.NewFromInt(1)
	if r.CommissionRate.IsNegative() || r.CommissionRate.GreaterThanOrEqual(one) {
		return fmt.Errorf("commission rate %s out of range [0, 1)", r.CommissionRate)
	}
	if r.InsuranceRate.IsNegative() || r.InsuranceRate.GreaterThanOrEqual(one) {
		return fmt.Errorf("insurance rate %s out of range [0, 1)", r.InsuranceRate)
	}
	if r.InsuranceBaseFee < 0 {
		return fmt.Errorf("insurance base fee %d is negative", r.InsuranceBaseFee)
	}
	return nil
}

// Input carries weight in grams and money in minor units.
type Input struct {
	WeightGrams    int64
	PricePerKg     int64
	DeclaredValue  int64
	InsuranceOpted bool
}

type Quote struct {
	Transport        int64 `json:"transport_amount"`
	Commission       int64 `json:"commission_amount"`
	InsurancePremium int64 `json:"insurance_premium"`
	Total            int64 `json:"total_amount"`
}

var gramsPerKg = decimal.NewFromInt(1000)

// Price computes the quote. Each component is rounded half-up to a whole minor unit exactly once,
// and Total is the sum of the rounded components.
func Price(in Input, r Rates) Quote {
	weightKg := decimal.NewFromInt(in.WeightGrams).Div(gramsPerKg)
	transportExact := weightKg.Mul(decimal.NewFromInt(in.PricePerKg))
	transport := roundMinor(transportExact)

	// commission is charged on the rounded transport amount the sender actually sees
	commission := roundMinor(decimal.NewFromInt(transport).Mul(r.CommissionRate))

	var premium int64
	if in.InsuranceOpted {
		premium = roundMinor(decimal.NewFromInt(in.DeclaredValue).Mul(r.InsuranceRate).Add(decimal.NewFromInt(r.InsuranceBaseFee)))
	}

	return Quote{
		Transport:        transport,
		Commission:       commission,
		InsurancePremium: premium,
		Total:            transport + commission + premium,
	}
}

// roundMinor rounds half away from zero; amounts here are never negative, so this is half-up.
func roundMinor(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

// MaxWeightKg bounds any single weight or capacity; it keeps gram arithmetic far from int64 limits.
const (
	MaxWeightKg    = 1000
	MaxWeightGrams = MaxWeightKg * 1000
)

var (
	ErrWeightPrecision = errors.New("weight has more than 3 decimal places")
	ErrWeightTooLarge  = fmt.Errorf("weight exceeds %d kg", MaxWeightKg)

	maxWeight = decimal.NewFromInt(MaxWeightKg)
)

// GramsFromKg converts a decimal kilogram amount to whole grams, rejecting sub-gram precision and
// anything above MaxWeightKg.
func GramsFromKg(kg decimal.Decimal) (int64, error) {
	if kg.GreaterThan(maxWeight) {
		return 0, fmt.Errorf("%w: %s kg", ErrWeightTooLarge, kg)
	}
	g := kg.Mul(gramsPerKg)
	if !g.Equal(g.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s kg", ErrWeightPrecision, kg)
	}
	return g.IntPart(), nil
}

// WeightMessage renders a GramsFromKg error for the named field ("weight", "capacity").
func WeightMessage(label string, err error) string {
	if errors.Is(err, ErrWeightTooLarge) {
		return fmt.Sprintf("%s must not exceed %d kg", label, MaxWeightKg)
	}
	return label + " supports at most 3 decimal places"
}

// KgFromGrams renders grams as kilograms.
func KgFromGrams(g int64) decimal.Decimal {
	return decimal.NewFromInt(g).Div(gramsPerKg)
}

package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// FeeSchedule holds the platform pricing rates. InsuranceBaseFee is in minor currency units.
type FeeSchedule struct {
	CommissionRate   decimal.Decimal
	InsuranceRate    decimal.Decimal
	InsuranceBaseFee int64
}

type feeScheduleFile struct {
	CommissionRate   *string `yaml:"commission_rate"`
	InsuranceRate    *string `yaml:"insurance_rate"`
	InsuranceBaseFee *int64  `yaml:"insurance_base_fee"`
}

func (f FeeSchedule) Validate() error {
	one := decimal.NewFromInt(1)
	if f.CommissionRate.IsNegative() || f.CommissionRate.GreaterThanOrEqual(one) {
		return fmt.Errorf("commission rate must be in [0, 1), got %s", f.CommissionRate)
	}
	if f.InsuranceRate.IsNegative() || f.InsuranceRate.GreaterThanOrEqual(one) {
		return fmt.Errorf("insurance rate must be in [0, 1), got %s", f.InsuranceRate)
	}
	if f.InsuranceBaseFee < 0 {
		return fmt.Errorf("insurance base fee must be >= 0, got %d", f.InsuranceBaseFee)
	}
	return nil
}

func feesFromEnv() (FeeSchedule, error) {
	var fs FeeSchedule
	var err error
	if fs.CommissionRate, err = parseDecimalEnv("COMMISSION_RATE", defaultCommissionRate); err != nil {
		return fs, err
	}
	if fs.InsuranceRate, err = parseDecimalEnv("INSURANCE_RATE", defaultInsuranceRate); err != nil {
		return fs, err
	}
	if fs.InsuranceBaseFee, err = parseInt64Env("INSURANCE_BASE_FEE", defaultInsuranceBaseFee); err != nil {
		return fs, err
	}
	return fs, nil
}

// LoadFeeSchedule reads a YAML fee schedule; keys absent from the file keep the values in base.
func LoadFeeSchedule(path string, base FeeSchedule) (FeeSchedule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read fee schedule: %w", err)
	}
	var f feeScheduleFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return base, fmt.Errorf("parse fee schedule %s: %w", path, err)
	}

	out := base
	if f.CommissionRate != nil {
		if out.CommissionRate, err = decimal.NewFromString(*f.CommissionRate); err != nil {
			return base, fmt.Errorf("fee schedule commission_rate: %w", err)
		}
	}
	if f.InsuranceRate != nil {
		if out.InsuranceRate, err = decimal.NewFromString(*f.InsuranceRate); err != nil {
			return base, fmt.Errorf("fee schedule insurance_rate: %w", err)
		}
	}
	if f.InsuranceBaseFee != nil {
		out.InsuranceBaseFee = *f.InsuranceBaseFee
	}
	return out, out.Validate()
}

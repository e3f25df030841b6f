package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "dev")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "sandbox", cfg.PaymentProvider)
	assert.True(t, cfg.KYCEnabled)
	assert.Equal(t, 48*time.Hour, cfg.BookingPaymentWindow)
	assert.Equal(t, 15*time.Minute, cfg.ReleaseRecoveryAfter)
	assert.True(t, decimal.RequireFromString("0.12").Equal(cfg.Fees.CommissionRate))
	assert.True(t, decimal.RequireFromString("0.015").Equal(cfg.Fees.InsuranceRate))
	assert.Equal(t, int64(200), cfg.Fees.InsuranceBaseFee)
}

func TestLoadRejectsReleaseRecoveryShorterThanProcessorTimeout(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("PROCESSOR_TIMEOUT", "30s")
	t.Setenv("RELEASE_RECOVERY_AFTER", "20s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RELEASE_RECOVERY_AFTER")
}

func TestLoadRejectsDefaultSecretInProd(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("PAYMENT_PROVIDER", "stripe")
	t.Setenv("STRIPE_SECRET_KEY", "sk_live_x")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_x")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadRejectsSandboxInProd(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("JWT_SECRET", "real-secret")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sandbox")
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	t.Setenv("PROCESSOR_TIMEOUT", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROCESSOR_TIMEOUT")
}

func TestLoadRejectsCommissionOutOfRange(t *testing.T) {
	t.Setenv("COMMISSION_RATE", "1.2")

	_, err := Load()
	require.Error(t, err)
}

func TestFeeScheduleFileOverridesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fees.yaml")
	require.NoError(t, os.WriteFile(path, []byte("commission_rate: \"0.10\"\ninsurance_base_fee: 150\n"), 0o600))
	t.Setenv("FEE_SCHEDULE_FILE", path)
	t.Setenv("INSURANCE_RATE", "0.02")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.10").Equal(cfg.Fees.CommissionRate))
	assert.True(t, decimal.RequireFromString("0.02").Equal(cfg.Fees.InsuranceRate))
	assert.Equal(t, int64(150), cfg.Fees.InsuranceBaseFee)
}

func TestLoadDotEnvMissingFileIsFine(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("HTTP_ADDR=:9999\n"), 0o600))
	t.Setenv("HTTP_ADDR", ":7000")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, ":7000", os.Getenv("HTTP_ADDR"))
}

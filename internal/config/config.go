package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	defaultHTTPAddr              = ":8080"
	defaultDatabaseURL           = "file:parcelmarket.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	defaultJWTSecret             = "change-me-jwt-secret"
	defaultSandboxWebhookSecret  = "change-me-sandbox-webhook-secret"
	defaultPaymentProvider       = "sandbox"
	defaultProcessorTimeout      = "10s"
	defaultBreakerOpenTimeout    = "30s"
	defaultBookingPaymentWindow  = "48h"
	defaultBookingExpiryInterval = "15m"
	defaultReleaseRecoveryAfter  = "15m"
	defaultReleaseRecoveryEvery  = "5m"
	defaultNotificationRetention = "720h"
	defaultNotificationCleanup   = "24h"
	defaultKYCEnabled            = "true"
	defaultCommissionRate        = "0.12"
	defaultInsuranceRate         = "0.015"
	defaultInsuranceBaseFee      = "200"
	defaultAMQPExchange          = "parcelmarket.events"
)

type Config struct {
	AppEnv   string
	HTTPAddr string
	LogLevel string

	DatabaseURL string

	JWTSecret string
	JWTIssuer string

	KYCEnabled bool

	PaymentProvider      string
	StripeSecretKey      string
	StripeWebhookSecret  string
	StripeRefreshURL     string
	StripeReturnURL      string
	SandboxPath          string
	SandboxWebhookSecret string
	SandboxWebhookURL    string
	SandboxBaseURL       string
	SandboxDeclineAbove  int64
	SandboxAutoApprove   bool

	ProcessorTimeout   time.Duration
	BreakerFailures    uint32
	BreakerOpenTimeout time.Duration

	RedisURL     string
	AMQPURL      string
	AMQPExchange string

	CORSAllowedOrigins []string

	BookingPaymentWindow        time.Duration
	BookingExpiryInterval       time.Duration
	ReleaseRecoveryAfter        time.Duration
	ReleaseRecoveryInterval     time.Duration
	NotificationRetention       time.Duration
	NotificationCleanupInterval time.Duration

	FeeScheduleFile string
	Fees            FeeSchedule
}

// LoadDotEnv loads variables from path without overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func Load() (*Config, error) {
	cfg := &Config{}
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = strings.TrimSpace(os.Getenv("ENV"))
	}
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.HTTPAddr = strings.TrimSpace(getEnv("HTTP_ADDR", defaultHTTPAddr))
	cfg.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", defaultDatabaseURL))
	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", defaultJWTSecret))
	cfg.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	cfg.KYCEnabled = parseBoolEnv("KYC_ENABLED", defaultKYCEnabled)

	cfg.PaymentProvider = strings.ToLower(strings.TrimSpace(getEnv("PAYMENT_PROVIDER", defaultPaymentProvider)))
	cfg.StripeSecretKey = strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY"))
	cfg.StripeWebhookSecret = strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET"))
	cfg.StripeRefreshURL = strings.TrimSpace(getEnv("STRIPE_ONBOARDING_REFRESH_URL", "http://localhost:5173/payouts/refresh"))
	cfg.StripeReturnURL = strings.TrimSpace(getEnv("STRIPE_ONBOARDING_RETURN_URL", "http://localhost:5173/payouts/done"))
	cfg.SandboxPath = strings.TrimSpace(getEnv("SANDBOX_DB_PATH", "sandbox.db"))
	cfg.SandboxWebhookSecret = strings.TrimSpace(getEnv("SANDBOX_WEBHOOK_SECRET", defaultSandboxWebhookSecret))
	cfg.SandboxWebhookURL = strings.TrimSpace(os.Getenv("SANDBOX_WEBHOOK_URL"))
	cfg.SandboxBaseURL = strings.TrimRight(strings.TrimSpace(getEnv("SANDBOX_BASE_URL", "http://localhost:8080")), "/")
	cfg.SandboxAutoApprove = parseBoolEnv("SANDBOX_AUTO_APPROVE", "true")

	var err error
	if cfg.SandboxDeclineAbove, err = parseInt64Env("SANDBOX_DECLINE_ABOVE", "0"); err != nil {
		return nil, err
	}
	if cfg.ProcessorTimeout, err = parseDurationEnv("PROCESSOR_TIMEOUT", defaultProcessorTimeout); err != nil {
		return nil, err
	}
	failures, err := parseInt64Env("PROCESSOR_BREAKER_FAILURES", "5")
	if err != nil {
		return nil, err
	}
	if failures < 1 {
		return nil, fmt.Errorf("PROCESSOR_BREAKER_FAILURES must be >= 1")
	}
	cfg.BreakerFailures = uint32(failures)
	if cfg.BreakerOpenTimeout, err = parseDurationEnv("PROCESSOR_BREAKER_OPEN_TIMEOUT", defaultBreakerOpenTimeout); err != nil {
		return nil, err
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.AMQPURL = strings.TrimSpace(os.Getenv("AMQP_URL"))
	cfg.AMQPExchange = strings.TrimSpace(getEnv("AMQP_EXCHANGE", defaultAMQPExchange))
	cfg.CORSAllowedOrigins = splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"))

	if cfg.BookingPaymentWindow, err = parseDurationEnv("BOOKING_PAYMENT_WINDOW", defaultBookingPaymentWindow); err != nil {
		return nil, err
	}
	if cfg.BookingExpiryInterval, err = parseDurationEnv("BOOKING_EXPIRY_INTERVAL", defaultBookingExpiryInterval); err != nil {
		return nil, err
	}
	if cfg.ReleaseRecoveryAfter, err = parseDurationEnv("RELEASE_RECOVERY_AFTER", defaultReleaseRecoveryAfter); err != nil {
		return nil, err
	}
	if cfg.ReleaseRecoveryInterval, err = parseDurationEnv("RELEASE_RECOVERY_INTERVAL", defaultReleaseRecoveryEvery); err != nil {
		return nil, err
	}
	if cfg.NotificationRetention, err = parseDurationEnv("NOTIFICATION_RETENTION", defaultNotificationRetention); err != nil {
		return nil, err
	}
	if cfg.NotificationCleanupInterval, err = parseDurationEnv("NOTIFICATION_CLEANUP_INTERVAL", defaultNotificationCleanup); err != nil {
		return nil, err
	}

	if cfg.Fees, err = feesFromEnv(); err != nil {
		return nil, err
	}
	cfg.FeeScheduleFile = strings.TrimSpace(os.Getenv("FEE_SCHEDULE_FILE"))
	if cfg.FeeScheduleFile != "" {
		if cfg.Fees, err = LoadFeeSchedule(cfg.FeeScheduleFile, cfg.Fees); err != nil {
			return nil, err
		}
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if cfg.ProcessorTimeout <= 0 {
		return fmt.Errorf("PROCESSOR_TIMEOUT must be > 0")
	}
	if cfg.BookingPaymentWindow <= 0 {
		return fmt.Errorf("BOOKING_PAYMENT_WINDOW must be > 0")
	}
	if cfg.BookingExpiryInterval <= 0 {
		return fmt.Errorf("BOOKING_EXPIRY_INTERVAL must be > 0")
	}
	if cfg.ReleaseRecoveryAfter <= cfg.ProcessorTimeout {
		return fmt.Errorf("RELEASE_RECOVERY_AFTER must be longer than PROCESSOR_TIMEOUT")
	}
	if cfg.ReleaseRecoveryInterval <= 0 {
		return fmt.Errorf("RELEASE_RECOVERY_INTERVAL must be > 0")
	}
	if cfg.NotificationRetention <= 0 {
		return fmt.Errorf("NOTIFICATION_RETENTION must be > 0")
	}
	if cfg.NotificationCleanupInterval <= 0 {
		return fmt.Errorf("NOTIFICATION_CLEANUP_INTERVAL must be > 0")
	}
	if err := cfg.Fees.Validate(); err != nil {
		return err
	}

	switch cfg.PaymentProvider {
	case "sandbox":
		if cfg.SandboxPath == "" {
			return fmt.Errorf("SANDBOX_DB_PATH must not be empty")
		}
	case "stripe":
		if cfg.StripeSecretKey == "" || cfg.StripeWebhookSecret == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required when PAYMENT_PROVIDER=stripe")
		}
	default:
		return fmt.Errorf("PAYMENT_PROVIDER must be one of: sandbox, stripe")
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if cfg.PaymentProvider == "sandbox" {
			return fmt.Errorf("in prod/release PAYMENT_PROVIDER must not be sandbox")
		}
		if !cfg.KYCEnabled {
			return fmt.Errorf("in prod/release KYC_ENABLED must be true")
		}
	}

	return nil
}

func (c *Config) IsProdLike() bool { return isProdLike(c.AppEnv) }

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseBoolEnv(name, fallback string) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(name, fallback)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

func parseInt64Env(name, fallback string) (int64, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func parseDecimalEnv(name, fallback string) (decimal.Decimal, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

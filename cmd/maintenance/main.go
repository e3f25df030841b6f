package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	goredislib "github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"parcelmarket/internal/config"
	"parcelmarket/internal/database"
	"parcelmarket/internal/jobs"
	"parcelmarket/internal/modules/booking"
	"parcelmarket/internal/modules/capacity"
	"parcelmarket/internal/modules/eligibility"
	"parcelmarket/internal/modules/notification"
	"parcelmarket/internal/pkg/lock"
	"parcelmarket/internal/pkg/logger"
	"parcelmarket/internal/pkg/processor"
	"parcelmarket/internal/pkg/processor/stripeproc"
	"parcelmarket/internal/repository"
)

// maintenance runs the periodic jobs once, for cron-driven deployments that disable the in-process scheduler.
func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	only := pflag.StringSlice("job", nil, "jobs to run (booking_expiry, release_recovery, notification_cleanup); default all")
	pflag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}

	// Expiry must take the same announcement locks as the API instances.
	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.RedisURL != "" {
		opts, err := goredislib.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal("parse REDIS_URL", zap.Error(err))
		}
		client := goredislib.NewClient(opts)
		defer client.Close()
		locker = lock.NewRedisLocker(client, lock.DefaultRedisOptions(), log)
	}

	proc, err := newProcessor(cfg, log)
	if err != nil {
		log.Fatal("payment processor", zap.Error(err))
	}

	bookings := repository.NewBookingRepository(db)
	notifs := notification.NewService(repository.NewNotificationRepository(db), nil, log)
	ledger := capacity.NewLedger(db, locker, log)

	var voider jobs.HoldVoider
	var resumer jobs.ReleaseResumer
	if proc != nil {
		voider = proc
		resumer = booking.NewService(booking.Deps{
			Bookings:      bookings,
			Announcements: repository.NewAnnouncementRepository(db),
			Profiles:      repository.NewProfileRepository(db),
			Ledger:        ledger,
			Gate:          eligibility.NewGate(cfg.KYCEnabled),
			Processor:     proc,
			Notifier:      notifs,
			Logger:        log,
		})
	}
	all := []jobs.Job{
		jobs.NewBookingExpiry(bookings, ledger, voider, notifs, cfg.BookingPaymentWindow, log),
		jobs.NewReleaseRecovery(bookings, resumer, cfg.ReleaseRecoveryAfter, log),
		jobs.NewNotificationCleanup(notifs, cfg.NotificationRetention),
	}

	var errs []error
	for _, job := range all {
		if !selected(*only, job.Name()) {
			continue
		}
		if _, err := jobs.RunOnce(ctx, job, log); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", job.Name(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		log.Error("maintenance finished with errors", zap.Error(err))
		os.Exit(1)
	}
	log.Info("maintenance completed")
}

// newProcessor returns nil for the sandbox: its store belongs to the running API process, so jobs that
// need the processor only log what they would have done.
func newProcessor(cfg *config.Config, log *zap.Logger) (processor.Processor, error) {
	if cfg.PaymentProvider != "stripe" {
		log.Warn("no processor access, requested holds and stuck releases are only reported",
			zap.String("payment_provider", cfg.PaymentProvider))
		return nil, nil
	}
	p, err := stripeproc.New(stripeproc.Config{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
	})
	if err != nil {
		return nil, err
	}
	return processor.NewResilient(p, processor.ResilienceConfig{
		Timeout:             cfg.ProcessorTimeout,
		ConsecutiveFailures: cfg.BreakerFailures,
		OpenTimeout:         cfg.BreakerOpenTimeout,
	}, log), nil
}

func selected(only []string, name string) bool {
	return len(only) == 0 || slices.Contains(only, name)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredislib "github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"parcelmarket/internal/config"
	"parcelmarket/internal/database"
	"parcelmarket/internal/jobs"
	"parcelmarket/internal/middleware"
	"parcelmarket/internal/modules/announcement"
	"parcelmarket/internal/modules/booking"
	"parcelmarket/internal/modules/capacity"
	"parcelmarket/internal/modules/eligibility"
	"parcelmarket/internal/modules/notification"
	"parcelmarket/internal/modules/payment"
	"parcelmarket/internal/modules/payout"
	"parcelmarket/internal/modules/pricing"
	"parcelmarket/internal/modules/review"
	"parcelmarket/internal/pkg/broker"
	jwtsvc "parcelmarket/internal/pkg/jwt"
	"parcelmarket/internal/pkg/lock"
	"parcelmarket/internal/pkg/logger"
	"parcelmarket/internal/pkg/processor"
	"parcelmarket/internal/pkg/processor/sandbox"
	"parcelmarket/internal/pkg/processor/stripeproc"
	"parcelmarket/internal/repository"
)

const shutdownTimeout = 15 * time.Second

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	addr := pflag.String("addr", "", "listen address, overrides HTTP_ADDR")
	migrateOnly := pflag.Bool("migrate-only", false, "apply database migrations and exit")
	pflag.Parse()

	if err := run(*envFile, *addr, *migrateOnly); err != nil {
		fmt.Fprintln(os.Stderr, "parcelmarket:", err)
		os.Exit(1)
	}
}

func run(envFile, addr string, migrateOnly bool) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if addr != "" {
		cfg.HTTPAddr = addr
	}

	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("migrations applied")
	if migrateOnly {
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	locker, closeLocker, err := newLocker(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLocker()

	proc, sb, err := newProcessor(cfg, log)
	if err != nil {
		return err
	}
	if sb != nil {
		defer sb.Close()
	}

	events, err := newPublisher(cfg, log)
	if err != nil {
		return err
	}
	defer events.Close()

	r, scheduler, hub := newServer(cfg, db, locker, proc, sb, events, log)
	// Shutdown does not touch hijacked websocket connections.
	defer hub.Close()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	scheduler.Start(ctx)
	defer scheduler.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTPAddr), zap.String("env", cfg.AppEnv), zap.String("payment_provider", cfg.PaymentProvider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newServer(cfg *config.Config, db *gorm.DB, locker lock.Locker, proc processor.Processor, sb *sandbox.Sandbox, events broker.Publisher, log *zap.Logger) (*gin.Engine, *jobs.Scheduler, *notification.Hub) {
	bookingRepo := repository.NewBookingRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	paymentEventRepo := repository.NewPaymentEventRepository(db)
	reviewRepo := repository.NewReviewRepository(db)

	tokens := jwtsvc.New(cfg.JWTSecret, 24*time.Hour, cfg.JWTIssuer)
	gate := eligibility.NewGate(cfg.KYCEnabled)
	ledger := capacity.NewLedger(db, locker, log)
	rates := pricing.Rates{
		CommissionRate:   cfg.Fees.CommissionRate,
		InsuranceRate:    cfg.Fees.InsuranceRate,
		InsuranceBaseFee: cfg.Fees.InsuranceBaseFee,
	}

	hub := notification.NewHub()
	notificationService := notification.NewService(notificationRepo, hub, log)

	bookingService := booking.NewService(booking.Deps{
		Bookings:      bookingRepo,
		Announcements: announcementRepo,
		Profiles:      profileRepo,
		Ledger:        ledger,
		Gate:          gate,
		Processor:     proc,
		Rates:         rates,
		Notifier:      notificationService,
		Events:        events,
		Logger:        log,
	})
	announcementService := announcement.NewService(announcement.Deps{
		Announcements: announcementRepo,
		Bookings:      bookingRepo,
		Profiles:      profileRepo,
		Capacity:      ledger,
		Gate:          gate,
		Logger:        log,
	})
	paymentService := payment.NewService(payment.Deps{
		Bookings:  bookingRepo,
		Profiles:  profileRepo,
		Events:    paymentEventRepo,
		Processor: proc,
		Notifier:  notificationService,
		Publisher: events,
		Logger:    log,
	})
	payoutService := payout.NewService(profileRepo, gate, proc, log)
	reviewService := review.NewService(reviewRepo, bookingRepo, profileRepo, notificationService, log)

	scheduler := jobs.NewScheduler(log)
	scheduler.Every(cfg.BookingExpiryInterval, jobs.NewBookingExpiry(bookingRepo, ledger, proc, notificationService, cfg.BookingPaymentWindow, log))
	scheduler.Every(cfg.ReleaseRecoveryInterval, jobs.NewReleaseRecovery(bookingRepo, bookingService, cfg.ReleaseRecoveryAfter, log))
	scheduler.Every(cfg.NotificationCleanupInterval, jobs.NewNotificationCleanup(notificationService, cfg.NotificationRetention))

	if cfg.IsProdLike() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.ErrorLogger(log))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	r.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "online_users": hub.OnlineCount()})
	})

	v1 := r.Group("/api/v1")
	payment.NewHandler(paymentService).RegisterPublicRoutes(v1)
	notificationHandler := notification.NewHandler(notificationService, hub, tokens, cfg.CORSAllowedOrigins, log)
	notificationHandler.RegisterWebSocket(v1)

	protected := v1.Group("")
	protected.Use(middleware.JWTAuth(tokens))
	booking.NewHandler(bookingService).RegisterRoutes(protected)
	announcement.NewHandler(announcementService).RegisterRoutes(protected)
	payout.NewHandler(payoutService).RegisterRoutes(protected)
	review.NewHandler(reviewService).RegisterRoutes(protected)
	notificationHandler.RegisterRoutes(protected)

	if sb != nil {
		mountSandboxPages(r, sb, log)
	}
	return r, scheduler, hub
}

// newLocker returns the RedLock locker when REDIS_URL is set so several instances share the
// per-announcement lock, and an in-process keyed mutex otherwise.
func newLocker(ctx context.Context, cfg *config.Config, log *zap.Logger) (lock.Locker, func(), error) {
	if cfg.RedisURL == "" {
		log.Info("using in-process announcement locks")
		return lock.NewKeyedMutex(), func() {}, nil
	}
	opts, err := goredislib.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := goredislib.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info("using redis announcement locks", zap.String("addr", opts.Addr))
	return lock.NewRedisLocker(client, lock.DefaultRedisOptions(), log), func() { _ = client.Close() }, nil
}

// newProcessor builds the configured payment processor behind the timeout and circuit breaker.
// The sandbox is returned separately so its hosted pages can be mounted.
func newProcessor(cfg *config.Config, log *zap.Logger) (processor.Processor, *sandbox.Sandbox, error) {
	resilience := processor.ResilienceConfig{
		Timeout:             cfg.ProcessorTimeout,
		ConsecutiveFailures: cfg.BreakerFailures,
		OpenTimeout:         cfg.BreakerOpenTimeout,
	}

	switch cfg.PaymentProvider {
	case "stripe":
		p, err := stripeproc.New(stripeproc.Config{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			RefreshURL:    cfg.StripeRefreshURL,
			ReturnURL:     cfg.StripeReturnURL,
		})
		if err != nil {
			return nil, nil, err
		}
		return processor.NewResilient(p, resilience, log), nil, nil
	case "sandbox":
		webhookURL := cfg.SandboxWebhookURL
		if webhookURL == "" {
			webhookURL = cfg.SandboxBaseURL + "/api/v1/webhooks/payment"
		}
		sb, err := sandbox.Open(sandbox.Config{
			Path:               cfg.SandboxPath,
			WebhookSecret:      cfg.SandboxWebhookSecret,
			BaseURL:            cfg.SandboxBaseURL,
			DeclineAbove:       cfg.SandboxDeclineAbove,
			AutoEnablePayouts:  cfg.SandboxAutoApprove,
			AutoVerifyIdentity: cfg.SandboxAutoApprove,
		}, sandbox.HTTPDelivery(webhookURL, nil, log), log)
		if err != nil {
			return nil, nil, err
		}
		log.Warn("using the sandbox payment processor", zap.String("path", cfg.SandboxPath), zap.String("webhook_url", webhookURL))
		return processor.NewResilient(sb, resilience, log), sb, nil
	}
	return nil, nil, fmt.Errorf("unknown PAYMENT_PROVIDER %q", cfg.PaymentProvider)
}

func newPublisher(cfg *config.Config, log *zap.Logger) (broker.Publisher, error) {
	if cfg.AMQPURL == "" {
		return broker.Nop{}, nil
	}
	p, err := broker.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange, log)
	if err != nil {
		return nil, err
	}
	log.Info("publishing booking events", zap.String("exchange", cfg.AMQPExchange))
	return p, nil
}

// mountSandboxPages serves the hosted onboarding page the sandbox links to. Visiting it completes
// onboarding, like finishing the real processor's hosted flow.
func mountSandboxPages(r *gin.Engine, sb *sandbox.Sandbox, log *zap.Logger) {
	r.GET("/sandbox/onboarding/:ref", func(c *gin.Context) {
		ref := c.Param("ref")
		if err := sb.EnablePayouts(ref); err != nil {
			log.Warn("sandbox onboarding", zap.String("account_ref", ref), zap.Error(err))
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown account"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"account_ref": ref, "payouts_enabled": true})
	})
	r.GET("/sandbox/identity/:ref", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"session_ref": c.Param("ref"), "status": "submitted"})
	})
}

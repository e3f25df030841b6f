package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parcelmarket/internal/config"
	"parcelmarket/internal/database"
	"parcelmarket/internal/domain"
	jwtsvc "parcelmarket/internal/pkg/jwt"
	"parcelmarket/internal/pkg/logger"
)

type demoUser struct {
	id      int64
	email   string
	country string
	role    domain.UserRole
	payouts bool
}

var demoUsers = []demoUser{
	{id: 1, email: "sender@parcelmarket.test", country: "KZ", role: domain.RoleUser},
	{id: 2, email: "traveler@parcelmarket.test", country: "DE", role: domain.RoleUser, payouts: true},
	{id: 3, email: "traveler2@parcelmarket.test", country: "TR", role: domain.RoleUser, payouts: true},
	{id: 100, email: "admin@parcelmarket.test", role: domain.RoleAdmin},
}

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	reset := pflag.Bool("reset", false, "delete existing marketplace data first")
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

	if cfg.IsProdLike() {
		log.Fatal("refusing to seed a production-like environment", zap.String("env", cfg.AppEnv))
	}

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("migrate failed", zap.Error(err))
	}

	if *reset {
		log.Info("cleaning old data")
		// children first
		for _, table := range []string{"notifications", "reviews", "payment_events", "booking_events", "bookings", "announcements", "profiles"} {
			if err := db.Exec("DELETE FROM " + table).Error; err != nil {
				log.Fatal("cleanup failed", zap.String("table", table), zap.Error(err))
			}
		}
	}

	if err := seed(db); err != nil {
		log.Fatal("seed failed", zap.Error(err))
	}

	tokens := jwtsvc.New(cfg.JWTSecret, 30*24*time.Hour, cfg.JWTIssuer)
	for _, u := range demoUsers {
		token, err := tokens.GenerateToken(u.id, string(u.role))
		if err != nil {
			log.Fatal("token", zap.Error(err))
		}
		fmt.Printf("%-30s id=%-4d role=%-5s token=%s\n", u.email, u.id, u.role, token)
	}
	log.Info("seed completed", zap.Int("profiles", len(demoUsers)))
}

func seed(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, u := range demoUsers {
			p := domain.Profile{
				ID:           u.id,
				Email:        u.email,
				Country:      u.country,
				Role:         u.role,
				KYCStatus:    domain.KYCNone,
				PayoutStatus: domain.PayoutInactive,
			}
			if u.payouts {
				ref := fmt.Sprintf("acct_demo_%d", u.id)
				p.PayoutAccountRef = &ref
				p.PayoutStatus = domain.PayoutActive
				p.KYCStatus = domain.KYCApproved
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"email", "country", "role", "kyc_status", "payout_account_ref", "payout_status", "updated_at"}),
			}).Create(&p).Error
			if err != nil {
				return fmt.Errorf("profile %d: %w", u.id, err)
			}
		}

		day := 24 * time.Hour
		now := time.Now().UTC().Truncate(time.Hour)
		trips := []domain.Announcement{
			{OwnerID: 2, OriginCountry: "DE", OriginCity: "Berlin", DestinationCountry: "KZ", DestinationCity: "Almaty",
				DepartureDate: now.Add(5 * day), CapacityGrams: 20_000, PricePerKg: 1500, Currency: "eur", Status: domain.AnnouncementActive},
			{OwnerID: 2, OriginCountry: "KZ", OriginCity: "Almaty", DestinationCountry: "DE", DestinationCity: "Berlin",
				DepartureDate: now.Add(19 * day), CapacityGrams: 15_000, PricePerKg: 1200, Currency: "eur", Status: domain.AnnouncementActive},
			{OwnerID: 3, OriginCountry: "TR", OriginCity: "Istanbul", DestinationCountry: "KZ", DestinationCity: "Astana",
				DepartureDate: now.Add(9 * day), CapacityGrams: 8_000, PricePerKg: 900, Currency: "usd", Status: domain.AnnouncementActive},
			{OwnerID: 3, OriginCountry: "TR", OriginCity: "Ankara", DestinationCountry: "DE", DestinationCity: "Munich",
				DepartureDate: now.Add(30 * day), CapacityGrams: 10_000, PricePerKg: 1000, Currency: "eur", Status: domain.AnnouncementDraft},
		}
		if err := tx.Create(&trips).Error; err != nil {
			return fmt.Errorf("announcements: %w", err)
		}
		return nil
	})
}

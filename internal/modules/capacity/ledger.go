// Package capacity owns the reserved weight of announcements. Reserved weight is never stored;
// it is the sum over bookings that still hold weight, recomputed under the announcement's lock.
package capacity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"parcelmarket/internal/domain"
	"parcelmarket/internal/pkg/apperr"
	"parcelmarket/internal/pkg/lock"
	"parcelmarket/internal/pkg/logger"
	"parcelmarket/internal/repository"
)

var (
	ErrAnnouncementNotFound    = apperr.NotFound("ANNOUNCEMENT_NOT_FOUND", "announcement not found")
	ErrAnnouncementNotBookable = apperr.State("ANNOUNCEMENT_NOT_BOOKABLE", "announcement is not open for bookings")
	ErrBookingNotFound         = apperr.NotFound("BOOKING_NOT_FOUND", "booking not found")
)

type Ledger struct {
	db     *gorm.DB
	locker lock.Locker
	log    *zap.Logger
	now    func() time.Time
}

func NewLedger(db *gorm.DB, locker lock.Locker, log *zap.Logger) *Ledger {
	return &Ledger{db: db, locker: locker, log: logger.OrNop(log).Named("capacity"), now: time.Now}
}

type Snapshot struct {
	CapacityGrams  int64 `json:"capacity_grams"`
	ReservedGrams  int64 `json:"reserved_grams"`
	RemainingGrams int64 `json:"remaining_grams"`
}

// ReleaseRequest cancels a booking and frees its weight. From* narrow which bookings may be
// released; by default any weight-holding booking is.
type ReleaseRequest struct {
	BookingID           int64
	ActorID             int64
	Reason              string
	PaymentStatus       domain.PaymentStatus
	FromStatuses        []domain.BookingStatus
	FromPaymentStatuses []domain.PaymentStatus
}

func LockKey(announcementID int64) string {
	return "announcement:" + strconv.FormatInt(announcementID, 10)
}

// Reserve inserts b as a pending booking if its weight fits into the remaining capacity.
// The capacity check and the insert commit together or not at all.
func (l *Ledger) Reserve(ctx context.Context, b *domain.Booking) error {
	if b.WeightGrams <= 0 {
		return apperr.Validation("weight_kg", "weight must be positive")
	}
	return l.locker.WithLock(ctx, LockKey(b.AnnouncementID), func(ctx context.Context) error {
		err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			anns := repository.NewAnnouncementRepository(tx)
			bookings := repository.NewBookingRepository(tx)

			a, err := anns.GetForUpdate(ctx, b.AnnouncementID)
			if err != nil {
				if repository.IsNotFound(err) {
					return ErrAnnouncementNotFound
				}
				return err
			}
			if !a.Status.Bookable() {
				return ErrAnnouncementNotBookable
			}

			reserved, err := bookings.ReservedGrams(ctx, a.ID)
			if err != nil {
				return err
			}
			remaining := a.CapacityGrams - reserved
			if b.WeightGrams > remaining {
				return apperr.Capacity(b.WeightGrams, max(remaining, 0))
			}

			b.Status = domain.BookingPending
			b.PaymentStatus = domain.PaymentUnpaid
			if err := bookings.Create(ctx, b); err != nil {
				return fmt.Errorf("insert booking: %w", err)
			}
			return bookings.AppendEvent(ctx, &domain.BookingEvent{
				BookingID: b.ID,
				ToStatus:  domain.BookingPending,
				ActorID:   b.SenderID,
				Note:      "booking requested",
			})
		})
		if err != nil {
			return err
		}
		l.refreshStatus(ctx, b.AnnouncementID)
		return nil
	})
}

// Release cancels the booking and returns its weight. It is a no-op returning false when the
// booking no longer holds weight or no longer matches the request's guards.
func (l *Ledger) Release(ctx context.Context, req ReleaseRequest) (bool, error) {
	current, err := repository.NewBookingRepository(l.db).GetByID(ctx, req.BookingID)
	if err != nil {
		if repository.IsNotFound(err) {
			return false, ErrBookingNotFound
		}
		return false, err
	}

	from := req.FromStatuses
	if len(from) == 0 {
		from = domain.WeightHoldingStatuses
	}
	from = onlyWeightHolding(from)

	released := false
	err = l.locker.WithLock(ctx, LockKey(current.AnnouncementID), func(ctx context.Context) error {
		err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			bookings := repository.NewBookingRepository(tx)
			b, err := bookings.GetForUpdate(ctx, req.BookingID)
			if err != nil {
				return err
			}
			if !b.Status.HoldsWeight() {
				return nil
			}

			now := l.now().UTC()
			updates := map[string]any{
				"status":              domain.BookingCancelled,
				"cancelled_at":        now,
				"cancellation_reason": req.Reason,
				"cancelled_by":        req.ActorID,
			}
			if req.PaymentStatus != "" {
				updates["payment_status"] = req.PaymentStatus
			}
			ok, err := bookings.Update(ctx, b.ID, repository.BookingGuard{
				Statuses:        from,
				PaymentStatuses: req.FromPaymentStatuses,
			}, updates)
			if err != nil || !ok {
				return err
			}
			released = true
			return bookings.AppendEvent(ctx, &domain.BookingEvent{
				BookingID:  b.ID,
				FromStatus: b.Status,
				ToStatus:   domain.BookingCancelled,
				ActorID:    req.ActorID,
				Note:       req.Reason,
			})
		})
		if err != nil {
			return err
		}
		if released {
			l.refreshStatus(ctx, current.AnnouncementID)
		}
		return nil
	})
	return released, err
}

func (l *Ledger) Snapshot(ctx context.Context, announcementID int64) (*Snapshot, error) {
	a, err := repository.NewAnnouncementRepository(l.db).GetByID(ctx, announcementID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrAnnouncementNotFound
		}
		return nil, err
	}
	reserved, err := repository.NewBookingRepository(l.db).ReservedGrams(ctx, announcementID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		CapacityGrams:  a.CapacityGrams,
		ReservedGrams:  reserved,
		RemainingGrams: max(a.CapacityGrams-reserved, 0),
	}, nil
}

// WithAnnouncementLock runs fn under the same lock Reserve and Release use, so announcement
// state changes cannot interleave with reservations.
func (l *Ledger) WithAnnouncementLock(ctx context.Context, announcementID int64, fn func(ctx context.Context) error) error {
	return l.locker.WithLock(ctx, LockKey(announcementID), fn)
}

// refreshStatus flips active and partially_booked to match the reserved aggregate. Failures are
// only logged; the status is a display hint, never the source of truth.
func (l *Ledger) refreshStatus(ctx context.Context, announcementID int64) {
	reserved, err := repository.NewBookingRepository(l.db).ReservedGrams(ctx, announcementID)
	if err != nil {
		l.log.Warn("recompute reserved weight", zap.Int64("announcement_id", announcementID), zap.Error(err))
		return
	}
	anns := repository.NewAnnouncementRepository(l.db)
	if reserved > 0 {
		_, err = anns.UpdateStatus(ctx, announcementID, []domain.AnnouncementStatus{domain.AnnouncementActive}, domain.AnnouncementPartiallyBooked)
	} else {
		_, err = anns.UpdateStatus(ctx, announcementID, []domain.AnnouncementStatus{domain.AnnouncementPartiallyBooked}, domain.AnnouncementActive)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		l.log.Warn("refresh announcement status", zap.Int64("announcement_id", announcementID), zap.Error(err))
	}
}

func onlyWeightHolding(in []domain.BookingStatus) []domain.BookingStatus {
	out := make([]domain.BookingStatus, 0, len(in))
	for _, s := range in {
		if s.HoldsWeight() {
			out = append(out, s)
		}
	}
	return out
}

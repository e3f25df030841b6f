package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"parcelmarket/internal/domain"
	"parcelmarket/internal/modules/capacity"
	"parcelmarket/internal/pkg/logger"
	"parcelmarket/internal/pkg/processor"
	"parcelmarket/internal/repository"
)

const (
	ExpiryReason       = "payment_window_expired"
	defaultExpiryBatch = 100
)

type CapacityReleaser interface {
	Release(ctx context.Context, req capacity.ReleaseRequest) (bool, error)
}

// HoldVoider is the processor call used to void a requested hold.
type HoldVoider interface {
	Refund(ctx context.Context, req processor.RefundRequest) (*processor.RefundResult, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID int64, typ domain.NotificationType, title, content string) error
}

// BookingExpiry cancels pending bookings that were not paid within the payment window, giving their
// weight back to the announcement. A hold that was requested but never confirmed is voided first.
type BookingExpiry struct {
	bookings *repository.BookingRepository
	ledger   CapacityReleaser
	voider   HoldVoider
	notifs   Notifier
	window   time.Duration
	batch    int
	log      *zap.Logger
	now      func() time.Time
}

// NewBookingExpiry builds the job. With a nil voider, bookings holding a requested hold are left
// pending for a run that can reach the processor.
func NewBookingExpiry(bookings *repository.BookingRepository, ledger CapacityReleaser, voider HoldVoider, notifs Notifier, window time.Duration, log *zap.Logger) *BookingExpiry {
	return &BookingExpiry{
		bookings: bookings,
		ledger:   ledger,
		voider:   voider,
		notifs:   notifs,
		window:   window,
		batch:    defaultExpiryBatch,
		log:      logger.OrNop(log).Named("booking_expiry"),
		now:      time.Now,
	}
}

func (j *BookingExpiry) Name() string { return "booking_expiry" }

func (j *BookingExpiry) Run(ctx context.Context) (int, error) {
	stale, err := j.bookings.ListStaleUnpaid(ctx, j.now().Add(-j.window), j.batch)
	if err != nil {
		return 0, fmt.Errorf("list stale bookings: %w", err)
	}

	expired := 0
	var errs []error
	for i := range stale {
		b := &stale[i]
		released, err := j.expire(ctx, b)
		if err != nil {
			if ctx.Err() != nil {
				return expired, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("booking %d: %w", b.ID, err))
			continue
		}
		if !released {
			continue
		}
		expired++
		j.log.Info("booking expired", zap.Int64("booking_id", b.ID), zap.Int64("announcement_id", b.AnnouncementID))
		if j.notifs != nil {
			if err := j.notifs.Notify(ctx, b.SenderID, domain.NotifBookingCancelled,
				fmt.Sprintf("Booking #%d cancelled", b.ID), "the payment window expired"); err != nil {
				j.log.Warn("notify", zap.Int64("booking_id", b.ID), zap.Error(err))
			}
		}
	}
	return expired, errors.Join(errs...)
}

// expire cancels one stale booking. The release guards keep a booking whose payment moved on in the
// meantime from being cancelled under it.
func (j *BookingExpiry) expire(ctx context.Context, b *domain.Booking) (bool, error) {
	req := capacity.ReleaseRequest{
		BookingID:           b.ID,
		Reason:              ExpiryReason,
		FromStatuses:        []domain.BookingStatus{domain.BookingPending},
		FromPaymentStatuses: []domain.PaymentStatus{domain.PaymentUnpaid, domain.PaymentFailed},
	}
	switch b.PaymentStatus {
	case domain.PaymentHoldRequested:
		if b.HoldRef() == "" {
			req.FromPaymentStatuses = []domain.PaymentStatus{domain.PaymentHoldRequested}
			break
		}
		if j.voider == nil {
			j.log.Warn("requested hold left for a run with processor access", zap.Int64("booking_id", b.ID))
			return false, nil
		}
		voided, err := j.voidHold(ctx, b)
		if err != nil || !voided {
			return false, err
		}
		req.FromPaymentStatuses = []domain.PaymentStatus{domain.PaymentRefundRequested, domain.PaymentRefunded}
	case domain.PaymentRefundRequested, domain.PaymentRefunded:
		// an earlier run voided the hold but did not get to release the weight
		req.FromPaymentStatuses = []domain.PaymentStatus{domain.PaymentRefundRequested, domain.PaymentRefunded}
	}
	return j.ledger.Release(ctx, req)
}

// voidHold claims the requested hold for refund and voids it at the processor, reverting the claim
// when the processor refuses. Reports false when the booking changed under the claim.
func (j *BookingExpiry) voidHold(ctx context.Context, b *domain.Booking) (bool, error) {
	guard := repository.BookingGuard{
		Statuses:        []domain.BookingStatus{domain.BookingPending},
		PaymentStatuses: []domain.PaymentStatus{domain.PaymentHoldRequested},
	}
	claimed, err := j.bookings.Update(ctx, b.ID, guard, map[string]any{"payment_status": domain.PaymentRefundRequested})
	if err != nil || !claimed {
		return false, err
	}
	if _, err := j.voider.Refund(ctx, processor.RefundRequest{
		HoldRef:        b.HoldRef(),
		Reason:         ExpiryReason,
		IdempotencyKey: fmt.Sprintf("booking-%d-refund", b.ID),
	}); err != nil {
		if _, uerr := j.bookings.Update(context.WithoutCancel(ctx), b.ID, repository.BookingGuard{
			Statuses:        []domain.BookingStatus{domain.BookingPending},
			PaymentStatuses: []domain.PaymentStatus{domain.PaymentRefundRequested},
		}, map[string]any{"payment_status": domain.PaymentHoldRequested}); uerr != nil {
			j.log.Error("revert refund claim", zap.Int64("booking_id", b.ID), zap.Error(uerr))
		}
		return false, fmt.Errorf("void hold %s: %w", b.HoldRef(), err)
	}
	j.log.Info("voided unconfirmed hold", zap.Int64("booking_id", b.ID), zap.String("hold_ref", b.HoldRef()))
	return true, nil
}

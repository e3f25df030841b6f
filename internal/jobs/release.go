package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"parcelmarket/internal/pkg/logger"
	"parcelmarket/internal/repository"
)

const defaultReleaseBatch = 50

type ReleaseResumer interface {
	ResumeRelease(ctx context.Context, bookingID int64) (bool, error)
}

// ReleaseRecovery finishes bookings whose fund release was claimed but never completed. A booking
// that cannot be finished is logged at error level on every run until someone fixes it.
type ReleaseRecovery struct {
	bookings *repository.BookingRepository
	resumer  ReleaseResumer
	after    time.Duration
	batch    int
	log      *zap.Logger
	now      func() time.Time
}

// NewReleaseRecovery builds the job; after is how long a release may stay claimed before it is
// considered interrupted.
func NewReleaseRecovery(bookings *repository.BookingRepository, resumer ReleaseResumer, after time.Duration, log *zap.Logger) *ReleaseRecovery {
	return &ReleaseRecovery{
		bookings: bookings,
		resumer:  resumer,
		after:    after,
		batch:    defaultReleaseBatch,
		log:      logger.OrNop(log).Named("release_recovery"),
		now:      time.Now,
	}
}

func (j *ReleaseRecovery) Name() string { return "release_recovery" }

func (j *ReleaseRecovery) Run(ctx context.Context) (int, error) {
	stuck, err := j.bookings.ListStuckReleasing(ctx, j.now().Add(-j.after), j.batch)
	if err != nil {
		return 0, fmt.Errorf("list stuck releases: %w", err)
	}

	resumed := 0
	var errs []error
	for _, b := range stuck {
		if j.resumer == nil {
			j.log.Error("booking stuck in releasing", zap.Int64("booking_id", b.ID), zap.Time("since", b.UpdatedAt))
			continue
		}
		ok, err := j.resumer.ResumeRelease(ctx, b.ID)
		if err != nil {
			if ctx.Err() != nil {
				return resumed, ctx.Err()
			}
			j.log.Error("booking stuck in releasing",
				zap.Int64("booking_id", b.ID), zap.Time("since", b.UpdatedAt), zap.Error(err))
			errs = append(errs, fmt.Errorf("booking %d: %w", b.ID, err))
			continue
		}
		if ok {
			resumed++
			j.log.Warn("interrupted release finished", zap.Int64("booking_id", b.ID))
		}
	}
	return resumed, errors.Join(errs...)
}

package announcement

import (
	"context"

	"parcelmarket/internal/modules/capacity"
)

// CapacityView serializes announcement status changes with reservations and reports remaining weight.
type CapacityView interface {
	Snapshot(ctx context.Context, announcementID int64) (*capacity.Snapshot, error)
	WithAnnouncementLock(ctx context.Context, announcementID int64, fn func(ctx context.Context) error) error
}

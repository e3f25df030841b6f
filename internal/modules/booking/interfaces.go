package booking

import (
	"context"

	"parcelmarket/internal/domain"
	"parcelmarket/internal/modules/capacity"
)

// CapacityLedger reserves and frees announcement weight.
type CapacityLedger interface {
	Reserve(ctx context.Context, b *domain.Booking) error
	Release(ctx context.Context, req capacity.ReleaseRequest) (bool, error)
}

// NotificationSender delivers deduplicated in-app notifications.
type NotificationSender interface {
	Notify(ctx context.Context, userID int64, typ domain.NotificationType, title, content string) error
}

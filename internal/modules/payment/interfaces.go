package payment

import (
	"context"

	"parcelmarket/internal/domain"
)

type NotificationSender interface {
	Notify(ctx context.Context, userID int64, typ domain.NotificationType, title, content string) error
}

package jobs

import (
	"context"
	"time"
)

type NotificationPurger interface {
	Cleanup(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotificationCleanup deletes read notifications older than the retention period.
type NotificationCleanup struct {
	notifs    NotificationPurger
	retention time.Duration
	now       func() time.Time
}

func NewNotificationCleanup(notifs NotificationPurger, retention time.Duration) *NotificationCleanup {
	return &NotificationCleanup{notifs: notifs, retention: retention, now: time.Now}
}

func (j *NotificationCleanup) Name() string { return "notification_cleanup" }

func (j *NotificationCleanup) Run(ctx context.Context) (int, error) {
	n, err := j.notifs.Cleanup(ctx, j.now().Add(-j.retention))
	return int(n), err
}

package domain

import "time"

type NotificationType string

const (
	NotifBookingRequested NotificationType = "booking_requested"
	NotifBookingConfirmed NotificationType = "booking_confirmed"
	NotifBookingInTransit NotificationType = "booking_in_transit"
	NotifBookingDelivered NotificationType = "booking_delivered"
	NotifBookingCompleted NotificationType = "booking_completed"
	NotifBookingCancelled NotificationType = "booking_cancelled"
	NotifBookingDisputed  NotificationType = "booking_disputed"
	NotifPaymentFailed    NotificationType = "payment_failed"
	NotifPayoutReleased   NotificationType = "payout_released"
	NotifKYCApproved      NotificationType = "kyc_approved"
	NotifKYCRejected      NotificationType = "kyc_rejected"
	NotifPayoutActivated  NotificationType = "payout_activated"
	NotifReviewReceived   NotificationType = "review_received"
)

// Notification: at most one unread row per (user, type, title).
type Notification struct {
	ID        int64            `json:"id" gorm:"primaryKey"`
	UserID    int64            `json:"user_id" gorm:"not null;uniqueIndex:ux_notifications_unread,priority:1,where:is_read = false;index:idx_notifications_user_created,priority:1"`
	Type      NotificationType `json:"type" gorm:"type:varchar(40);not null;uniqueIndex:ux_notifications_unread,priority:2,where:is_read = false"`
	Title     string           `json:"title" gorm:"type:varchar(200);not null;uniqueIndex:ux_notifications_unread,priority:3,where:is_read = false"`
	Content   string           `json:"content,omitempty" gorm:"type:text"`
	IsRead    bool             `json:"is_read" gorm:"not null;default:false"`
	ReadAt    *time.Time       `json:"read_at,omitempty"`
	CreatedAt time.Time        `json:"created_at" gorm:"index:idx_notifications_user_created,priority:2"`
}

func (Notification) TableName() string { return "notifications" }

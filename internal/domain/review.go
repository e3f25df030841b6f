package domain

import "time"

// ReviewableStatuses are the booking statuses after which the sender may rate the traveler.
var ReviewableStatuses = []BookingStatus{BookingDelivered, BookingCompleted}

// Review is a sender's rating of the traveler who carried a booking. One per booking.
type Review struct {
	ID          int64      `json:"id" gorm:"primaryKey"`
	BookingID   int64      `json:"booking_id" gorm:"not null;uniqueIndex"`
	ReviewerID  int64      `json:"reviewer_id" gorm:"not null;index"`
	TravelerID  int64      `json:"traveler_id" gorm:"not null;index"`
	Rating      int        `json:"rating" gorm:"not null;check:rating BETWEEN 1 AND 5"`
	Comment     string     `json:"comment,omitempty" gorm:"type:text"`
	Response    *string    `json:"response,omitempty" gorm:"type:text"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Review) TableName() string { return "reviews" }

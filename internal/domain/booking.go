package domain

import "time"

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingInTransit BookingStatus = "in_transit"
	BookingDelivered BookingStatus = "delivered"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
	BookingDisputed  BookingStatus = "disputed"
)

// WeightHoldingStatuses are the statuses whose weight counts against an announcement's capacity.
var WeightHoldingStatuses = []BookingStatus{BookingPending, BookingConfirmed, BookingInTransit}

func (s BookingStatus) HoldsWeight() bool {
	for _, st := range WeightHoldingStatuses {
		if s == st {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return s == BookingCompleted || s == BookingCancelled
}

type PaymentStatus string

const (
	PaymentUnpaid          PaymentStatus = "unpaid"
	PaymentHoldRequested   PaymentStatus = "hold_requested"
	PaymentHeld            PaymentStatus = "held"
	PaymentFailed          PaymentStatus = "failed"
	PaymentReleasing       PaymentStatus = "releasing"
	PaymentReleased        PaymentStatus = "released"
	PaymentRefundRequested PaymentStatus = "refund_requested"
	PaymentRefunded        PaymentStatus = "refunded"
)

// Booking is the unit of consistency between money and capacity.
// Amounts are minor currency units, frozen when the booking is created.
type Booking struct {
	ID             int64  `json:"id" gorm:"primaryKey"`
	AnnouncementID int64  `json:"announcement_id" gorm:"not null;index:idx_bookings_announcement_status,priority:1"`
	SenderID       int64  `json:"sender_id" gorm:"not null;index"`
	TravelerID     int64  `json:"traveler_id" gorm:"not null;index"`
	WeightGrams    int64  `json:"weight_grams" gorm:"not null;check:weight_grams > 0"`
	DeclaredValue  int64  `json:"declared_value" gorm:"not null;default:0"`
	InsuranceOpted bool   `json:"insurance_opted" gorm:"not null;default:false"`
	Currency       string `json:"currency" gorm:"type:varchar(3);not null"`

	TransportAmount  int64 `json:"transport_amount" gorm:"not null"`
	CommissionAmount int64 `json:"commission_amount" gorm:"not null"`
	InsurancePremium int64 `json:"insurance_premium" gorm:"not null"`
	TotalAmount      int64 `json:"total_amount" gorm:"not null"`

	Status        BookingStatus `json:"status" gorm:"type:varchar(20);not null;index:idx_bookings_announcement_status,priority:2"`
	PaymentStatus PaymentStatus `json:"payment_status" gorm:"type:varchar(20);not null;default:'unpaid'"`
	// PaymentRef is the processor hold id.
	PaymentRef *string `json:"payment_ref,omitempty" gorm:"type:varchar(128);uniqueIndex"`
	// PaymentClientSecret lets the sender finish the requested hold; only the sender ever receives it.
	PaymentClientSecret  string `json:"-" gorm:"type:varchar(255)"`
	TransferRef          string `json:"transfer_ref,omitempty" gorm:"type:varchar(128)"`
	PaymentFailureReason string `json:"payment_failure_reason,omitempty" gorm:"type:text"`

	CancellationReason string `json:"cancellation_reason,omitempty" gorm:"type:text"`
	CancelledBy        int64  `json:"cancelled_by,omitempty"`

	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	DisputedAt  *time.Time `json:"disputed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Booking) TableName() string { return "bookings" }

func (b *Booking) HoldRef() string {
	if b.PaymentRef == nil {
		return ""
	}
	return *b.PaymentRef
}

// IsParticipant reports whether the user is the sender or the traveler of the booking.
func (b *Booking) IsParticipant(userID int64) bool {
	return userID != 0 && (b.SenderID == userID || b.TravelerID == userID)
}

// BookingEvent is one row of a booking's status history.
type BookingEvent struct {
	ID         int64         `json:"id" gorm:"primaryKey"`
	BookingID  int64         `json:"booking_id" gorm:"not null;index"`
	FromStatus BookingStatus `json:"from_status" gorm:"type:varchar(20)"`
	ToStatus   BookingStatus `json:"to_status" gorm:"type:varchar(20);not null"`
	ActorID    int64         `json:"actor_id"` // 0 = system
	Note       string        `json:"note,omitempty" gorm:"type:text"`
	CreatedAt  time.Time     `json:"created_at" gorm:"autoCreateTime"`
}

func (BookingEvent) TableName() string { return "booking_events" }

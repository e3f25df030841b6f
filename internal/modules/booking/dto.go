package booking

import (
	"time"

	"github.com/shopspring/decimal"

	"parcelmarket/internal/domain"
	"parcelmarket/internal/modules/pricing"
)

type CreateBookingRequest struct {
	AnnouncementID int64           `json:"announcement_id" binding:"required,gt=0"`
	WeightKg       decimal.Decimal `json:"weight_kg"`
	DeclaredValue  int64           `json:"declared_value" binding:"gte=0"`
	Insurance      bool            `json:"insurance"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type DisputeBookingRequest struct {
	Reason string `json:"reason" binding:"required,max=1000"`
}

type ListBookingsQuery struct {
	Role   string `form:"role" binding:"omitempty,oneof=sender traveler"`
	Status string `form:"status" binding:"omitempty,oneof=pending confirmed in_transit delivered completed cancelled disputed"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
}

// CreateInput is the validated form of CreateBookingRequest.
type CreateInput struct {
	AnnouncementID int64
	WeightGrams    int64
	DeclaredValue  int64
	InsuranceOpted bool
}

type PayResult struct {
	Booking      *domain.Booking
	AlreadyPaid  bool
	ClientSecret string
}

type ConfirmResult struct {
	Booking          *domain.Booking
	AlreadyCompleted bool
}

type Detail struct {
	Booking *domain.Booking
	Events  []domain.BookingEvent
}

type BookingResponse struct {
	ID                   int64                `json:"id"`
	AnnouncementID       int64                `json:"announcement_id"`
	SenderID             int64                `json:"sender_id"`
	TravelerID           int64                `json:"traveler_id"`
	WeightKg             decimal.Decimal      `json:"weight_kg"`
	DeclaredValue        int64                `json:"declared_value"`
	Insurance            bool                 `json:"insurance"`
	Currency             string               `json:"currency"`
	TransportAmount      int64                `json:"transport_amount"`
	CommissionAmount     int64                `json:"commission_amount"`
	InsurancePremium     int64                `json:"insurance_premium"`
	TotalAmount          int64                `json:"total_amount"`
	Status               domain.BookingStatus `json:"status"`
	PaymentStatus        domain.PaymentStatus `json:"payment_status"`
	PaymentFailureReason string               `json:"payment_failure_reason,omitempty"`
	CancellationReason   string               `json:"cancellation_reason,omitempty"`
	ConfirmedAt          *time.Time           `json:"confirmed_at,omitempty"`
	DeliveredAt          *time.Time           `json:"delivered_at,omitempty"`
	CompletedAt          *time.Time           `json:"completed_at,omitempty"`
	CancelledAt          *time.Time           `json:"cancelled_at,omitempty"`
	DisputedAt           *time.Time           `json:"disputed_at,omitempty"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

type EventResponse struct {
	FromStatus domain.BookingStatus `json:"from_status,omitempty"`
	ToStatus   domain.BookingStatus `json:"to_status"`
	ActorID    int64                `json:"actor_id"`
	Note       string               `json:"note,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}

func toResponse(b *domain.Booking) BookingResponse {
	return BookingResponse{
		ID:                   b.ID,
		AnnouncementID:       b.AnnouncementID,
		SenderID:             b.SenderID,
		TravelerID:           b.TravelerID,
		WeightKg:             pricing.KgFromGrams(b.WeightGrams),
		DeclaredValue:        b.DeclaredValue,
		Insurance:            b.InsuranceOpted,
		Currency:             b.Currency,
		TransportAmount:      b.TransportAmount,
		CommissionAmount:     b.CommissionAmount,
		InsurancePremium:     b.InsurancePremium,
		TotalAmount:          b.TotalAmount,
		Status:               b.Status,
		PaymentStatus:        b.PaymentStatus,
		PaymentFailureReason: b.PaymentFailureReason,
		CancellationReason:   b.CancellationReason,
		ConfirmedAt:          b.ConfirmedAt,
		DeliveredAt:          b.DeliveredAt,
		CompletedAt:          b.CompletedAt,
		CancelledAt:          b.CancelledAt,
		DisputedAt:           b.DisputedAt,
		CreatedAt:            b.CreatedAt,
		UpdatedAt:            b.UpdatedAt,
	}
}

func toEventResponses(evs []domain.BookingEvent) []EventResponse {
	out := make([]EventResponse, 0, len(evs))
	for _, e := range evs {
		out = append(out, EventResponse{
			FromStatus: e.FromStatus,
			ToStatus:   e.ToStatus,
			ActorID:    e.ActorID,
			Note:       e.Note,
			CreatedAt:  e.CreatedAt,
		})
	}
	return out
}

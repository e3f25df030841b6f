package announcement

import (
	"time"

	"github.com/shopspring/decimal"

	"parcelmarket/internal/domain"
	"parcelmarket/internal/modules/capacity"
	"parcelmarket/internal/modules/pricing"
)

type CreateAnnouncementRequest struct {
	OriginCountry      string          `json:"origin_country" binding:"required,len=2,alpha"`
	OriginCity         string          `json:"origin_city" binding:"required,max=120"`
	DestinationCountry string          `json:"destination_country" binding:"required,len=2,alpha"`
	DestinationCity    string          `json:"destination_city" binding:"required,max=120"`
	DepartureDate      time.Time       `json:"departure_date" binding:"required"`
	CapacityKg         decimal.Decimal `json:"capacity_kg"`
	PricePerKg         int64           `json:"price_per_kg" binding:"required,gt=0"`
	Currency           string          `json:"currency" binding:"required,len=3,alpha"`
}

type ListAnnouncementsQuery struct {
	Origin      string `form:"origin" binding:"omitempty,len=2,alpha"`
	Destination string `form:"destination" binding:"omitempty,len=2,alpha"`
	Mine        bool   `form:"mine"`
	Limit       int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset      int    `form:"offset" binding:"omitempty,min=0"`
}

// CreateInput is the validated form of CreateAnnouncementRequest.
type CreateInput struct {
	OriginCountry      string
	OriginCity         string
	DestinationCountry string
	DestinationCity    string
	DepartureDate      time.Time
	CapacityGrams      int64
	PricePerKg         int64
	Currency           string
}

// View is an announcement with its derived capacity.
type View struct {
	Announcement *domain.Announcement
	Capacity     capacity.Snapshot
}

type AnnouncementResponse struct {
	ID                 int64                     `json:"id"`
	OwnerID            int64                     `json:"owner_id"`
	OriginCountry      string                    `json:"origin_country"`
	OriginCity         string                    `json:"origin_city"`
	DestinationCountry string                    `json:"destination_country"`
	DestinationCity    string                    `json:"destination_city"`
	DepartureDate      time.Time                 `json:"departure_date"`
	PricePerKg         int64                     `json:"price_per_kg"`
	Currency           string                    `json:"currency"`
	Status             domain.AnnouncementStatus `json:"status"`
	CapacityKg         decimal.Decimal           `json:"capacity_kg"`
	ReservedKg         decimal.Decimal           `json:"reserved_kg"`
	RemainingKg        decimal.Decimal           `json:"remaining_kg"`
	CreatedAt          time.Time                 `json:"created_at"`
}

func toResponse(v *View) AnnouncementResponse {
	a := v.Announcement
	return AnnouncementResponse{
		ID:                 a.ID,
		OwnerID:            a.OwnerID,
		OriginCountry:      a.OriginCountry,
		OriginCity:         a.OriginCity,
		DestinationCountry: a.DestinationCountry,
		DestinationCity:    a.DestinationCity,
		DepartureDate:      a.DepartureDate,
		PricePerKg:         a.PricePerKg,
		Currency:           a.Currency,
		Status:             a.Status,
		CapacityKg:         pricing.KgFromGrams(v.Capacity.CapacityGrams),
		ReservedKg:         pricing.KgFromGrams(v.Capacity.ReservedGrams),
		RemainingKg:        pricing.KgFromGrams(v.Capacity.RemainingGrams),
		CreatedAt:          a.CreatedAt,
	}
}

package domain

import "time"

type AnnouncementStatus string

const (
	AnnouncementDraft           AnnouncementStatus = "draft"
	AnnouncementActive          AnnouncementStatus = "active"
	AnnouncementPartiallyBooked AnnouncementStatus = "partially_booked"
	AnnouncementCompleted       AnnouncementStatus = "completed"
	AnnouncementCancelled       AnnouncementStatus = "cancelled"
)

// Bookable reports whether new bookings may reserve weight on the announcement.
func (s AnnouncementStatus) Bookable() bool {
	return s == AnnouncementActive || s == AnnouncementPartiallyBooked
}

// Announcement is a traveler's trip offering transport capacity.
// Reserved weight is never stored here; it is derived from bookings.
type Announcement struct {
	ID                 int64              `json:"id" gorm:"primaryKey"`
	OwnerID            int64              `json:"owner_id" gorm:"not null;index"`
	OriginCountry      string             `json:"origin_country" gorm:"type:varchar(2);not null;index:idx_announcements_route,priority:1"`
	OriginCity         string             `json:"origin_city" gorm:"type:varchar(120);not null"`
	DestinationCountry string             `json:"destination_country" gorm:"type:varchar(2);not null;index:idx_announcements_route,priority:2"`
	DestinationCity    string             `json:"destination_city" gorm:"type:varchar(120);not null"`
	DepartureDate      time.Time          `json:"departure_date" gorm:"not null"`
	CapacityGrams      int64              `json:"capacity_grams" gorm:"not null;check:capacity_grams > 0"`
	PricePerKg         int64              `json:"price_per_kg" gorm:"not null;check:price_per_kg > 0"`
	Currency           string             `json:"currency" gorm:"type:varchar(3);not null"`
	Status             AnnouncementStatus `json:"status" gorm:"type:varchar(20);not null;default:'draft';index"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

func (Announcement) TableName() string { return "announcements" }

package domain

import "time"

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type KYCStatus string

const (
	KYCNone     KYCStatus = "none"
	KYCPending  KYCStatus = "pending"
	KYCApproved KYCStatus = "approved"
	KYCRejected KYCStatus = "rejected"
)

type PayoutStatus string

const (
	PayoutInactive PayoutStatus = "inactive"
	PayoutActive   PayoutStatus = "active"
)

// Profile mirrors an identity-provider user with marketplace state.
// ID is the identity provider's user id.
type Profile struct {
	ID               int64        `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Email            string       `json:"email,omitempty" gorm:"type:varchar(255)"`
	Country          string       `json:"country,omitempty" gorm:"type:varchar(2)"`
	Role             UserRole     `json:"role" gorm:"type:varchar(16);not null;default:'user'"`
	KYCStatus        KYCStatus    `json:"kyc_status" gorm:"column:kyc_status;type:varchar(16);not null;default:'none'"`
	KYCSessionRef    string       `json:"-" gorm:"column:kyc_session_ref;type:varchar(128)"`
	PayoutAccountRef *string      `json:"payout_account_ref,omitempty" gorm:"type:varchar(128);uniqueIndex"`
	PayoutStatus     PayoutStatus `json:"payout_status" gorm:"type:varchar(16);not null;default:'inactive'"`
	RatingSum        int64        `json:"rating_sum" gorm:"not null;default:0"`
	RatingCount      int64        `json:"rating_count" gorm:"not null;default:0"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }

func (p *Profile) PayoutAccount() string {
	if p.PayoutAccountRef == nil {
		return ""
	}
	return *p.PayoutAccountRef
}

func (p *Profile) AverageRating() float64 {
	if p.RatingCount == 0 {
		return 0
	}
	return float64(p.RatingSum) / float64(p.RatingCount)
}

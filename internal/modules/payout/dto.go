package payout

import (
	"parcelmarket/internal/domain"
	"parcelmarket/internal/modules/eligibility"
)

type CreateAccountRequest struct {
	Email   string `json:"email" binding:"omitempty,email,max=255"`
	Country string `json:"country" binding:"omitempty,len=2,alpha"`
}

type KYCSessionRequest struct {
	ReturnURL string `json:"return_url" binding:"omitempty,url,max=500"`
}

type OnboardResult struct {
	AccountRef    string `json:"account_ref"`
	OnboardingURL string `json:"onboarding_url"`
	Created       bool   `json:"created"`
}

type AccountStatusResult struct {
	AccountRef     string              `json:"account_ref"`
	PayoutsEnabled bool                `json:"payouts_enabled"`
	Requirements   []string            `json:"requirements"`
	PayoutStatus   domain.PayoutStatus `json:"payout_status"`
}

type KYCSessionResult struct {
	SessionRef      string           `json:"session_ref,omitempty"`
	URL             string           `json:"url,omitempty"`
	KYCStatus       domain.KYCStatus `json:"kyc_status"`
	AlreadyApproved bool             `json:"alreadyApproved"`
}

// ProfileView is the caller's profile with what the eligibility gate currently allows.
type ProfileView struct {
	Profile     *domain.Profile                             `json:"profile"`
	Eligibility map[eligibility.Action]eligibility.Decision `json:"eligibility"`
}

// Package eligibility decides whether a user may take a money-moving action.
package eligibility

import (
	"parcelmarket/internal/domain"
	"parcelmarket/internal/pkg/apperr"
)

type Action string

const (
	ActionBook          Action = "book"
	ActionPay           Action = "pay"
	ActionReceivePayout Action = "receive_payout"
	ActionOnboard       Action = "onboard"
)

// Deny reasons, in evaluation order.
const (
	ReasonProfileMissing      = "profile_missing"
	ReasonAdminNotParticipant = "admin_not_participant"
	ReasonKYCNotApproved      = "kyc_not_approved"
	ReasonPayoutNotActive     = "payout_not_active"
)

type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

type Gate struct {
	kycEnabled bool
}

func NewGate(kycEnabled bool) *Gate {
	return &Gate{kycEnabled: kycEnabled}
}

func (g *Gate) KYCEnabled() bool { return g.kycEnabled }

// Check is pure: it never touches storage or the processor.
func (g *Gate) Check(p *domain.Profile, action Action) Decision {
	if p == nil {
		return Decision{Reason: ReasonProfileMissing}
	}
	if p.Role == domain.RoleAdmin {
		return Decision{Reason: ReasonAdminNotParticipant}
	}
	if g.kycEnabled && p.KYCStatus != domain.KYCApproved {
		return Decision{Reason: ReasonKYCNotApproved}
	}
	if action == ActionReceivePayout && (p.PayoutStatus != domain.PayoutActive || p.PayoutAccount() == "") {
		return Decision{Reason: ReasonPayoutNotActive}
	}
	return Decision{Allowed: true}
}

// Require returns an authorization error carrying the deny reason as its code.
func (g *Gate) Require(p *domain.Profile, action Action) error {
	d := g.Check(p, action)
	if d.Allowed {
		return nil
	}
	return apperr.Authorization(d.Reason, denyMessage(d.Reason, action))
}

func denyMessage(reason string, action Action) string {
	switch reason {
	case ReasonProfileMissing:
		return "no profile exists for this user"
	case ReasonAdminNotParticipant:
		return "administrators cannot take part in bookings"
	case ReasonKYCNotApproved:
		return "identity verification must be approved before " + string(action)
	case ReasonPayoutNotActive:
		return "traveler payout account is not active"
	}
	return "not allowed"
}

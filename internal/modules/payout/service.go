// Package payout onboards travelers to the processor's connected accounts and runs identity
// verification. Final statuses arrive through payment webhooks; the calls here only start the flows
// and sync on demand.
package payout

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"parcelmarket/internal/domain"
	"parcelmarket/internal/modules/eligibility"
	"parcelmarket/internal/pkg/apperr"
	"parcelmarket/internal/pkg/logger"
	"parcelmarket/internal/pkg/processor"
	"parcelmarket/internal/repository"
)

type Service struct {
	profiles *repository.ProfileRepository
	gate     *eligibility.Gate
	proc     processor.Processor
	log      *zap.Logger
}

func NewService(profiles *repository.ProfileRepository, gate *eligibility.Gate, proc processor.Processor, log *zap.Logger) *Service {
	return &Service{
		profiles: profiles,
		gate:     gate,
		proc:     proc,
		log:      logger.OrNop(log).Named("payout"),
	}
}

func (s *Service) Me(ctx context.Context, actor domain.Actor) (*ProfileView, error) {
	p, err := s.profiles.GetOrCreate(ctx, actor.UserID, actor.Role)
	if err != nil {
		return nil, err
	}
	view := &ProfileView{Profile: p, Eligibility: map[eligibility.Action]eligibility.Decision{}}
	for _, a := range []eligibility.Action{eligibility.ActionBook, eligibility.ActionPay, eligibility.ActionReceivePayout, eligibility.ActionOnboard} {
		view.Eligibility[a] = s.gate.Check(p, a)
	}
	return view, nil
}

// CreateAccount creates the connected payout account once and returns a fresh onboarding link.
// A second call reuses the stored account.
func (s *Service) CreateAccount(ctx context.Context, actor domain.Actor, req CreateAccountRequest) (*OnboardResult, error) {
	p, err := s.profiles.GetOrCreate(ctx, actor.UserID, actor.Role)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Require(p, eligibility.ActionOnboard); err != nil {
		return nil, err
	}
	if req.Email != "" || req.Country != "" {
		if err := s.profiles.UpdateContact(ctx, p.ID, strings.TrimSpace(req.Email), strings.ToUpper(req.Country)); err != nil {
			return nil, err
		}
	}

	res := &OnboardResult{AccountRef: p.PayoutAccount()}
	if res.AccountRef == "" {
		country := strings.ToUpper(req.Country)
		if country == "" {
			country = p.Country
		}
		acct, err := s.proc.CreateConnectedAccount(ctx, processor.AccountRequest{
			UserID:         p.ID,
			Email:          firstNonEmpty(req.Email, p.Email),
			Country:        country,
			IdempotencyKey: fmt.Sprintf("profile-%d-account", p.ID),
		})
		if err != nil {
			return nil, apperr.External("create payout account", processor.IsRetryable(err), err)
		}
		stored, err := s.profiles.SetPayoutAccountRef(ctx, p.ID, acct.Ref)
		if err != nil {
			return nil, err
		}
		if !stored {
			// a concurrent request stored its account first
			cur, err := s.profiles.GetByID(ctx, p.ID)
			if err != nil {
				return nil, err
			}
			res.AccountRef = cur.PayoutAccount()
		} else {
			res.AccountRef = acct.Ref
			res.Created = true
			s.log.Info("payout account created", zap.Int64("user_id", p.ID), zap.String("account_ref", acct.Ref))
		}
	}

	link, err := s.proc.CreateOnboardingLink(ctx, res.AccountRef)
	if err != nil {
		return nil, apperr.External("create onboarding link", processor.IsRetryable(err), err)
	}
	res.OnboardingURL = link
	return res, nil
}

// AccountStatus reads the account from the processor and syncs payout_status with it.
func (s *Service) AccountStatus(ctx context.Context, actor domain.Actor) (*AccountStatusResult, error) {
	p, err := s.profiles.GetOrCreate(ctx, actor.UserID, actor.Role)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Require(p, eligibility.ActionOnboard); err != nil {
		return nil, err
	}
	ref := p.PayoutAccount()
	if ref == "" {
		return nil, ErrNoPayoutAccount
	}

	st, err := s.proc.GetAccountStatus(ctx, ref)
	if err != nil {
		return nil, apperr.External("get payout account status", processor.IsRetryable(err), err)
	}
	status := domain.PayoutInactive
	if st.PayoutsEnabled {
		status = domain.PayoutActive
	}
	changed, err := s.profiles.SetPayoutStatus(ctx, p.ID, status)
	if err != nil {
		return nil, err
	}
	if changed {
		s.log.Info("payout status synced", zap.Int64("user_id", p.ID), zap.String("status", string(status)))
	}
	reqs := st.Requirements
	if reqs == nil {
		reqs = []string{}
	}
	return &AccountStatusResult{AccountRef: ref, PayoutsEnabled: st.PayoutsEnabled, Requirements: reqs, PayoutStatus: status}, nil
}

// StartKYC opens an identity verification session and marks the profile pending.
// Approved profiles are left alone.
func (s *Service) StartKYC(ctx context.Context, actor domain.Actor, returnURL string) (*KYCSessionResult, error) {
	p, err := s.profiles.GetOrCreate(ctx, actor.UserID, actor.Role)
	if err != nil {
		return nil, err
	}
	if p.KYCStatus == domain.KYCApproved {
		return &KYCSessionResult{KYCStatus: p.KYCStatus, AlreadyApproved: true}, nil
	}

	sess, err := s.proc.CreateVerificationSession(ctx, processor.VerificationRequest{
		UserID:         p.ID,
		ReturnURL:      returnURL,
		IdempotencyKey: fmt.Sprintf("profile-%d-kyc-%s", p.ID, uuid.NewString()),
	})
	if err != nil {
		return nil, apperr.External("create verification session", processor.IsRetryable(err), err)
	}
	changed, err := s.profiles.SetKYCStatus(ctx, p.ID,
		[]domain.KYCStatus{domain.KYCNone, domain.KYCPending, domain.KYCRejected}, domain.KYCPending, sess.Ref)
	if err != nil {
		return nil, err
	}
	if !changed {
		// approved by a webhook while the session was being created
		return &KYCSessionResult{KYCStatus: domain.KYCApproved, AlreadyApproved: true}, nil
	}
	s.log.Info("kyc session started", zap.Int64("user_id", p.ID), zap.String("session_ref", sess.Ref))
	return &KYCSessionResult{SessionRef: sess.Ref, URL: sess.URL, KYCStatus: domain.KYCPending}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

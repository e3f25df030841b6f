package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"parcelmarket/internal/domain"
)

type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetOrCreate returns the profile for an identity-provider user, creating a default one on first use.
func (r *ProfileRepository) GetOrCreate(ctx context.Context, id int64, role domain.UserRole) (*domain.Profile, error) {
	p, err := r.GetByID(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if role == "" {
		role = domain.RoleUser
	}
	p = &domain.Profile{
		ID:           id,
		Role:         role,
		KYCStatus:    domain.KYCNone,
		PayoutStatus: domain.PayoutInactive,
	}
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		if IsUniqueViolation(err) {
			return r.GetByID(ctx, id)
		}
		return nil, err
	}
	return p, nil
}

func (r *ProfileRepository) Create(ctx context.Context, p *domain.Profile) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *ProfileRepository) GetByID(ctx context.Context, id int64) (*domain.Profile, error) {
	var p domain.Profile
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProfileRepository) GetByPayoutAccountRef(ctx context.Context, ref string) (*domain.Profile, error) {
	var p domain.Profile
	if err := r.db.WithContext(ctx).Where("payout_account_ref = ?", ref).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// SetPayoutAccountRef stores the ref only if the profile has none yet.
func (r *ProfileRepository) SetPayoutAccountRef(ctx context.Context, id int64, ref string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("id = ? AND payout_account_ref IS NULL", id).
		Update("payout_account_ref", ref)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *ProfileRepository) SetPayoutStatus(ctx context.Context, id int64, status domain.PayoutStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("id = ? AND payout_status <> ?", id, status).
		Update("payout_status", status)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetKYCStatus moves kyc_status to `to` when the current status is one of `from`.
func (r *ProfileRepository) SetKYCStatus(ctx context.Context, id int64, from []domain.KYCStatus, to domain.KYCStatus, sessionRef string) (bool, error) {
	updates := map[string]any{"kyc_status": to}
	if sessionRef != "" {
		updates["kyc_session_ref"] = sessionRef
	}
	res := r.db.WithContext(ctx).
		Model(&domain.Profile{}).
		Where("id = ? AND kyc_status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *ProfileRepository) UpdateContact(ctx context.Context, id int64, email, country string) error {
	updates := map[string]any{}
	if email != "" {
		updates["email"] = email
	}
	if country != "" {
		updates["country"] = country
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&domain.Profile{}).Where("id = ?", id).Updates(updates).Error
}

package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parcelmarket/internal/domain"
)

type AnnouncementRepository struct {
	db *gorm.DB
}

func NewAnnouncementRepository(db *gorm.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

func (r *AnnouncementRepository) WithTx(tx *gorm.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: tx}
}

type AnnouncementFilter struct {
	OriginCountry      string
	DestinationCountry string
	DepartsAfter       *time.Time
	OwnerID            int64
	Statuses           []domain.AnnouncementStatus
	Limit              int
	Offset             int
}

func (r *AnnouncementRepository) Create(ctx context.Context, a *domain.Announcement) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *AnnouncementRepository) GetByID(ctx context.Context, id int64) (*domain.Announcement, error) {
	var a domain.Announcement
	if err := r.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// GetForUpdate takes a row lock on the announcement (SELECT ... FOR UPDATE where supported).
func (r *AnnouncementRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Announcement, error) {
	var a domain.Announcement
	if err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AnnouncementRepository) List(ctx context.Context, f AnnouncementFilter) ([]domain.Announcement, error) {
	q := r.db.WithContext(ctx).Model(&domain.Announcement{})
	if f.OriginCountry != "" {
		q = q.Where("origin_country = ?", f.OriginCountry)
	}
	if f.DestinationCountry != "" {
		q = q.Where("destination_country = ?", f.DestinationCountry)
	}
	if f.DepartsAfter != nil {
		q = q.Where("departure_date >= ?", *f.DepartsAfter)
	}
	if f.OwnerID > 0 {
		q = q.Where("owner_id = ?", f.OwnerID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var out []domain.Announcement
	if err := q.Order("departure_date ASC, id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStatus moves the announcement to `to` if it is currently in one of `from`.
func (r *AnnouncementRepository) UpdateStatus(ctx context.Context, id int64, from []domain.AnnouncementStatus, to domain.AnnouncementStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Announcement{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

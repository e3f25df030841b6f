package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"parcelmarket/internal/domain"
)

type ReviewRepository struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create stores the review and adds its rating to the traveler's profile in one transaction.
func (r *ReviewRepository) Create(ctx context.Context, rv *domain.Review) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rv).Error; err != nil {
			return err
		}
		res := tx.Model(&domain.Profile{}).Where("id = ?", rv.TravelerID).Updates(map[string]any{
			"rating_sum":   gorm.Expr("rating_sum + ?", rv.Rating),
			"rating_count": gorm.Expr("rating_count + 1"),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *ReviewRepository) GetByID(ctx context.Context, id int64) (*domain.Review, error) {
	var rv domain.Review
	if err := r.db.WithContext(ctx).First(&rv, id).Error; err != nil {
		return nil, err
	}
	return &rv, nil
}

func (r *ReviewRepository) ListForTraveler(ctx context.Context, travelerID int64, limit, offset int) ([]domain.Review, error) {
	var out []domain.Review
	err := r.db.WithContext(ctx).
		Where("traveler_id = ?", travelerID).
		Order("created_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&out).Error
	return out, err
}

// SetResponse records the traveler's reply once. It reports false when a reply already exists.
func (r *ReviewRepository) SetResponse(ctx context.Context, id, travelerID int64, text string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Review{}).
		Where("id = ? AND traveler_id = ? AND response IS NULL", id, travelerID).
		Updates(map[string]any{"response": text, "responded_at": at})
	return res.RowsAffected == 1, res.Error
}

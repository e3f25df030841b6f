package repository

import (
	"context"

	"gorm.io/gorm"

	"parcelmarket/internal/domain"
)

type PaymentEventRepository struct {
	db *gorm.DB
}

func NewPaymentEventRepository(db *gorm.DB) *PaymentEventRepository {
	return &PaymentEventRepository{db: db}
}

// Record inserts the event; it returns false when the event ref was already recorded.
func (r *PaymentEventRepository) Record(ctx context.Context, ev *domain.PaymentEvent) (bool, error) {
	if err := r.db.WithContext(ctx).Create(ev).Error; err != nil {
		if IsUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *PaymentEventRepository) SetOutcome(ctx context.Context, eventRef string, outcome domain.PaymentEventOutcome) error {
	return r.db.WithContext(ctx).
		Model(&domain.PaymentEvent{}).
		Where("event_ref = ?", eventRef).
		Update("outcome", outcome).Error
}

func (r *PaymentEventRepository) GetByRef(ctx context.Context, eventRef string) (*domain.PaymentEvent, error) {
	var ev domain.PaymentEvent
	if err := r.db.WithContext(ctx).Where("event_ref = ?", eventRef).First(&ev).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}

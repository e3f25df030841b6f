package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parcelmarket/internal/domain"
)

type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// WithTx returns a repository bound to an open transaction.
func (r *BookingRepository) WithTx(tx *gorm.DB) *BookingRepository {
	return &BookingRepository{db: tx}
}

// BookingGuard restricts a conditional update to rows currently in one of the listed states.
// Empty lists do not constrain.
type BookingGuard struct {
	Statuses        []domain.BookingStatus
	PaymentStatuses []domain.PaymentStatus
}

func (r *BookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	var b domain.Booking
	if err := r.db.WithContext(ctx).First(&b, id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// GetForUpdate loads the booking with a row lock; only meaningful inside a transaction.
func (r *BookingRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Booking, error) {
	var b domain.Booking
	if err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&b, id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BookingRepository) GetByPaymentRef(ctx context.Context, ref string) (*domain.Booking, error) {
	var b domain.Booking
	if err := r.db.WithContext(ctx).Where("payment_ref = ?", ref).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// ListForUser lists bookings where the user is the sender (role "sender") or the traveler.
func (r *BookingRepository) ListForUser(ctx context.Context, userID int64, role string, status domain.BookingStatus, limit, offset int) ([]domain.Booking, error) {
	q := r.db.WithContext(ctx).Model(&domain.Booking{})
	if role == "traveler" {
		q = q.Where("traveler_id = ?", userID)
	} else {
		q = q.Where("sender_id = ?", userID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}

	var out []domain.Booking
	if err := q.Order("created_at DESC, id DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ReservedGrams sums the weight of every booking that still holds capacity on the announcement.
func (r *BookingRepository) ReservedGrams(ctx context.Context, announcementID int64) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("announcement_id = ? AND status IN ?", announcementID, domain.WeightHoldingStatuses).
		Select("COALESCE(SUM(weight_grams), 0)").
		Scan(&total).Error
	return total, err
}

func (r *BookingRepository) CountByStatus(ctx context.Context, announcementID int64, statuses ...domain.BookingStatus) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&domain.Booking{}).
		Where("announcement_id = ? AND status IN ?", announcementID, statuses).
		Count(&n).Error
	return n, err
}

// Update applies updates only if the row still matches guard, and reports whether it did.
func (r *BookingRepository) Update(ctx context.Context, id int64, guard BookingGuard, updates map[string]any) (bool, error) {
	q := r.db.WithContext(ctx).Model(&domain.Booking{}).Where("id = ?", id)
	if len(guard.Statuses) > 0 {
		q = q.Where("status IN ?", guard.Statuses)
	}
	if len(guard.PaymentStatuses) > 0 {
		q = q.Where("payment_status IN ?", guard.PaymentStatuses)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *BookingRepository) AppendEvent(ctx context.Context, ev *domain.BookingEvent) error {
	return r.db.WithContext(ctx).Create(ev).Error
}

func (r *BookingRepository) ListEvents(ctx context.Context, bookingID int64) ([]domain.BookingEvent, error) {
	var out []domain.BookingEvent
	err := r.db.WithContext(ctx).Where("booking_id = ?", bookingID).Order("id ASC").Find(&out).Error
	return out, err
}

// DeleteCancelled purges a cancelled booking owned by the sender together with its history.
func (r *BookingRepository) DeleteCancelled(ctx context.Context, id, senderID int64) (bool, error) {
	deleted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND sender_id = ? AND status = ?", id, senderID, domain.BookingCancelled).Delete(&domain.Booking{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		deleted = true
		return tx.Where("booking_id = ?", id).Delete(&domain.BookingEvent{}).Error
	})
	return deleted, err
}

// ListStaleUnpaid returns pending bookings created before cutoff that are still waiting on money:
// payment never started or failed, a requested hold or a void has not moved since cutoff.
func (r *BookingRepository) ListStaleUnpaid(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", domain.BookingPending, cutoff).
		Where(r.db.Where("payment_status IN ?", []domain.PaymentStatus{domain.PaymentUnpaid, domain.PaymentFailed}).
			Or("payment_status IN ? AND updated_at < ?",
				[]domain.PaymentStatus{domain.PaymentHoldRequested, domain.PaymentRefundRequested, domain.PaymentRefunded},
				cutoff)).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListStuckReleasing returns delivered bookings whose release was claimed before cutoff and never
// finished.
func (r *BookingRepository) ListStuckReleasing(ctx context.Context, cutoff time.Time, limit int) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.db.WithContext(ctx).
		Where("status = ? AND payment_status = ? AND updated_at < ?",
			domain.BookingDelivered, domain.PaymentReleasing, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Transition applies a guarded update and, when it took effect, appends ev in the same transaction.
// ev may be nil for updates that do not change the status.
func (r *BookingRepository) Transition(ctx context.Context, id int64, guard BookingGuard, updates map[string]any, ev *domain.BookingEvent) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := r.WithTx(tx)
		ok, err := repo.Update(ctx, id, guard, updates)
		if err != nil || !ok {
			return err
		}
		applied = true
		if ev == nil {
			return nil
		}
		ev.BookingID = id
		return repo.AppendEvent(ctx, ev)
	})
	return applied, err
}

// Package review lets senders rate the travelers who carried their parcels.
package review

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"parcelmarket/internal/domain"
	"parcelmarket/internal/pkg/apperr"
	"parcelmarket/internal/pkg/logger"
	"parcelmarket/internal/repository"
)

const defaultListLimit = 20

type NotificationSender interface {
	Notify(ctx context.Context, userID int64, typ domain.NotificationType, title, content string) error
}

type Service struct {
	reviews  *repository.ReviewRepository
	bookings *repository.BookingRepository
	profiles *repository.ProfileRepository
	notifs   NotificationSender
	log      *zap.Logger
	now      func() time.Time
}

func NewService(reviews *repository.ReviewRepository, bookings *repository.BookingRepository, profiles *repository.ProfileRepository, notifs NotificationSender, log *zap.Logger) *Service {
	return &Service{
		reviews:  reviews,
		bookings: bookings,
		profiles: profiles,
		notifs:   notifs,
		log:      logger.OrNop(log).Named("review"),
		now:      time.Now,
	}
}

// Create rates the traveler of a delivered or completed booking. Only the sender may do it, once.
func (s *Service) Create(ctx context.Context, actor domain.Actor, bookingID int64, rating int, comment string) (*domain.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, apperr.Validation("rating", "rating must be between 1 and 5")
	}
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	if b.SenderID != actor.UserID {
		return nil, ErrSenderOnly
	}
	if !slices.Contains(domain.ReviewableStatuses, b.Status) {
		return nil, ErrNotReviewable
	}

	rv := &domain.Review{
		BookingID:  b.ID,
		ReviewerID: actor.UserID,
		TravelerID: b.TravelerID,
		Rating:     rating,
		Comment:    strings.TrimSpace(comment),
	}
	if err := s.reviews.Create(ctx, rv); err != nil {
		switch {
		case repository.IsUniqueViolation(err):
			return nil, ErrAlreadyReviewed
		case repository.IsNotFound(err):
			return nil, ErrProfileNotFound
		}
		return nil, err
	}

	s.log.Info("traveler reviewed", zap.Int64("booking_id", b.ID), zap.Int64("traveler_id", b.TravelerID), zap.Int("rating", rating))
	if s.notifs != nil {
		title := fmt.Sprintf("New review for booking #%d", b.ID)
		if err := s.notifs.Notify(ctx, b.TravelerID, domain.NotifReviewReceived, title, fmt.Sprintf("%d/5", rating)); err != nil {
			s.log.Warn("notify failed", zap.Int64("user_id", b.TravelerID), zap.Error(err))
		}
	}
	return rv, nil
}

func (s *Service) ListForTraveler(ctx context.Context, travelerID int64, limit, offset int) (*TravelerReviews, error) {
	p, err := s.profiles.GetByID(ctx, travelerID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	list, err := s.reviews.ListForTraveler(ctx, travelerID, limit, offset)
	if err != nil {
		return nil, err
	}
	return &TravelerReviews{
		TravelerID:    p.ID,
		AverageRating: p.AverageRating(),
		RatingCount:   p.RatingCount,
		Reviews:       list,
	}, nil
}

// Respond stores the reviewed traveler's single public reply.
func (s *Service) Respond(ctx context.Context, actor domain.Actor, reviewID int64, text string) (*domain.Review, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation("response", "response must not be empty")
	}
	rv, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if rv.TravelerID != actor.UserID {
		return nil, ErrTravelerOnly
	}
	ok, err := s.reviews.SetResponse(ctx, rv.ID, actor.UserID, text, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyResponded
	}
	return s.reviews.GetByID(ctx, rv.ID)
}

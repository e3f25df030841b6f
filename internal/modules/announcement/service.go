// Package announcement manages travelers' trip offers. Reserved weight is never stored on the
// announcement; it is read from the capacity ledger.
package announcement

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"parcelmarket/internal/domain"
	"parcelmarket/internal/modules/capacity"
	"parcelmarket/internal/modules/eligibility"
	"parcelmarket/internal/modules/pricing"
	"parcelmarket/internal/pkg/apperr"
	"parcelmarket/internal/pkg/logger"
	"parcelmarket/internal/repository"
)

const defaultListLimit = 20

type Deps struct {
	Announcements *repository.AnnouncementRepository
	Bookings      *repository.BookingRepository
	Profiles      *repository.ProfileRepository
	Capacity      CapacityView
	Gate          *eligibility.Gate
	Logger        *zap.Logger
}

type Service struct {
	announcements *repository.AnnouncementRepository
	bookings      *repository.BookingRepository
	profiles      *repository.ProfileRepository
	capacity      CapacityView
	gate          *eligibility.Gate
	log           *zap.Logger
	now           func() time.Time
}

func NewService(d Deps) *Service {
	return &Service{
		announcements: d.Announcements,
		bookings:      d.Bookings,
		profiles:      d.Profiles,
		capacity:      d.Capacity,
		gate:          d.Gate,
		log:           logger.OrNop(d.Logger).Named("announcement"),
		now:           time.Now,
	}
}

// Create stores a draft. It becomes bookable only after Publish.
func (s *Service) Create(ctx context.Context, actor domain.Actor, in CreateInput) (*View, error) {
	if in.CapacityGrams <= 0 {
		return nil, apperr.Validation("capacity_kg", "capacity must be greater than zero")
	}
	if in.CapacityGrams > pricing.MaxWeightGrams {
		return nil, apperr.Validation("capacity_kg", pricing.WeightMessage("capacity", pricing.ErrWeightTooLarge))
	}
	if in.PricePerKg <= 0 {
		return nil, apperr.Validation("price_per_kg", "price per kg must be greater than zero")
	}
	if !in.DepartureDate.After(s.now()) {
		return nil, apperr.Validation("departure_date", "departure date must be in the future")
	}
	origin, dest := strings.ToUpper(in.OriginCountry), strings.ToUpper(in.DestinationCountry)
	if origin == dest && strings.EqualFold(strings.TrimSpace(in.OriginCity), strings.TrimSpace(in.DestinationCity)) {
		return nil, apperr.Validation("destination_city", "destination must differ from origin")
	}

	owner, err := s.profiles.GetOrCreate(ctx, actor.UserID, actor.Role)
	if err != nil {
		return nil, err
	}
	if owner.Role == domain.RoleAdmin {
		return nil, apperr.Authorization(eligibility.ReasonAdminNotParticipant, "administrators cannot post announcements")
	}

	a := &domain.Announcement{
		OwnerID:            actor.UserID,
		OriginCountry:      origin,
		OriginCity:         strings.TrimSpace(in.OriginCity),
		DestinationCountry: dest,
		DestinationCity:    strings.TrimSpace(in.DestinationCity),
		DepartureDate:      in.DepartureDate.UTC(),
		CapacityGrams:      in.CapacityGrams,
		PricePerKg:         in.PricePerKg,
		Currency:           strings.ToLower(in.Currency),
		Status:             domain.AnnouncementDraft,
	}
	if err := s.announcements.Create(ctx, a); err != nil {
		return nil, err
	}
	s.log.Info("announcement created", zap.Int64("announcement_id", a.ID), zap.Int64("owner_id", a.OwnerID))
	return &View{Announcement: a, Capacity: capacity.Snapshot{CapacityGrams: a.CapacityGrams, RemainingGrams: a.CapacityGrams}}, nil
}

// Get returns the announcement with its capacity. Drafts are visible to their owner only.
func (s *Service) Get(ctx context.Context, actor domain.Actor, id int64) (*View, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == domain.AnnouncementDraft && a.OwnerID != actor.UserID && !actor.IsAdmin() {
		return nil, ErrNotFound
	}
	return s.view(ctx, a)
}

// List returns bookable announcements departing from now on, or all of the caller's own when mine is set.
func (s *Service) List(ctx context.Context, actor domain.Actor, q ListAnnouncementsQuery) ([]View, error) {
	f := repository.AnnouncementFilter{
		OriginCountry:      strings.ToUpper(q.Origin),
		DestinationCountry: strings.ToUpper(q.Destination),
		Limit:              q.Limit,
		Offset:             q.Offset,
	}
	if f.Limit == 0 {
		f.Limit = defaultListLimit
	}
	if q.Mine {
		f.OwnerID = actor.UserID
	} else {
		now := s.now().UTC()
		f.DepartsAfter = &now
		f.Statuses = []domain.AnnouncementStatus{domain.AnnouncementActive, domain.AnnouncementPartiallyBooked}
	}

	list, err := s.announcements.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]View, 0, len(list))
	for i := range list {
		v, err := s.view(ctx, &list[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

// Publish opens a draft for bookings. The owner must be able to receive payouts.
func (s *Service) Publish(ctx context.Context, actor domain.Actor, id int64) (*View, error) {
	a, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if a.Status == domain.AnnouncementActive || a.Status == domain.AnnouncementPartiallyBooked {
		return s.view(ctx, a)
	}
	if a.Status != domain.AnnouncementDraft {
		return nil, ErrNotDraft
	}
	if !a.DepartureDate.After(s.now()) {
		return nil, ErrDeparted
	}

	owner, err := s.profiles.GetOrCreate(ctx, actor.UserID, actor.Role)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Require(owner, eligibility.ActionReceivePayout); err != nil {
		return nil, err
	}

	ok, err := s.announcements.UpdateStatus(ctx, a.ID, []domain.AnnouncementStatus{domain.AnnouncementDraft}, domain.AnnouncementActive)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotDraft
	}
	s.log.Info("announcement published", zap.Int64("announcement_id", a.ID))
	return s.reloadView(ctx, a.ID)
}

// Cancel withdraws the announcement. Runs under the capacity lock so no reservation can slip in
// between the booking count and the status change.
func (s *Service) Cancel(ctx context.Context, actor domain.Actor, id int64) (*View, error) {
	a, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if a.Status == domain.AnnouncementCancelled {
		return s.view(ctx, a)
	}

	err = s.capacity.WithAnnouncementLock(ctx, a.ID, func(ctx context.Context) error {
		holding, err := s.bookings.CountByStatus(ctx, a.ID, domain.WeightHoldingStatuses...)
		if err != nil {
			return err
		}
		if holding > 0 {
			return ErrHasActiveBookings
		}
		ok, err := s.announcements.UpdateStatus(ctx, a.ID, []domain.AnnouncementStatus{
			domain.AnnouncementDraft, domain.AnnouncementActive, domain.AnnouncementPartiallyBooked,
		}, domain.AnnouncementCancelled)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotCancellable
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("announcement cancelled", zap.Int64("announcement_id", a.ID))
	return s.reloadView(ctx, a.ID)
}

// Complete closes the trip once nothing is left waiting for payment or pickup.
func (s *Service) Complete(ctx context.Context, actor domain.Actor, id int64) (*View, error) {
	a, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if a.Status == domain.AnnouncementCompleted {
		return s.view(ctx, a)
	}

	err = s.capacity.WithAnnouncementLock(ctx, a.ID, func(ctx context.Context) error {
		open, err := s.bookings.CountByStatus(ctx, a.ID, domain.BookingPending, domain.BookingConfirmed)
		if err != nil {
			return err
		}
		if open > 0 {
			return ErrHasOpenBookings
		}
		ok, err := s.announcements.UpdateStatus(ctx, a.ID, []domain.AnnouncementStatus{
			domain.AnnouncementActive, domain.AnnouncementPartiallyBooked,
		}, domain.AnnouncementCompleted)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotCompletable
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("announcement completed", zap.Int64("announcement_id", a.ID))
	return s.reloadView(ctx, a.ID)
}

func (s *Service) load(ctx context.Context, id int64) (*domain.Announcement, error) {
	a, err := s.announcements.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

func (s *Service) owned(ctx context.Context, actor domain.Actor, id int64) (*domain.Announcement, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.OwnerID != actor.UserID {
		return nil, ErrOwnerOnly
	}
	return a, nil
}

func (s *Service) view(ctx context.Context, a *domain.Announcement) (*View, error) {
	snap, err := s.capacity.Snapshot(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	return &View{Announcement: a, Capacity: *snap}, nil
}

func (s *Service) reloadView(ctx context.Context, id int64) (*View, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, a)
}

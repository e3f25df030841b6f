package booking

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"

	"parcelmarket/internal/domain"
	"parcelmarket/internal/modules/capacity"
	"parcelmarket/internal/modules/eligibility"
	"parcelmarket/internal/modules/pricing"
	"parcelmarket/internal/pkg/apperr"
	"parcelmarket/internal/pkg/broker"
	"parcelmarket/internal/pkg/logger"
	"parcelmarket/internal/pkg/processor"
	"parcelmarket/internal/repository"
)

const defaultListLimit = 20

type Deps struct {
	Bookings      *repository.BookingRepository
	Announcements *repository.AnnouncementRepository
	Profiles      *repository.ProfileRepository
	Ledger        CapacityLedger
	Gate          *eligibility.Gate
	Processor     processor.Processor
	Rates         pricing.Rates
	Notifier      NotificationSender
	Events        broker.Publisher
	Logger        *zap.Logger
}

type Service struct {
	bookings      *repository.BookingRepository
	announcements *repository.AnnouncementRepository
	profiles      *repository.ProfileRepository
	ledger        CapacityLedger
	gate          *eligibility.Gate
	proc          processor.Processor
	rates         pricing.Rates
	notifs        NotificationSender
	events        broker.Publisher
	log           *zap.Logger
	now           func() time.Time
}

func NewService(d Deps) *Service {
	events := d.Events
	if events == nil {
		events = broker.Nop{}
	}
	return &Service{
		bookings:      d.Bookings,
		announcements: d.Announcements,
		profiles:      d.Profiles,
		ledger:        d.Ledger,
		gate:          d.Gate,
		proc:          d.Processor,
		rates:         d.Rates,
		notifs:        d.Notifier,
		events:        events,
		log:           logger.OrNop(d.Logger).Named("booking"),
		now:           time.Now,
	}
}

func holdKey(id int64) string    { return fmt.Sprintf("booking-%d-hold", id) }
func releaseKey(id int64) string { return fmt.Sprintf("booking-%d-release", id) }
func refundKey(id int64) string  { return fmt.Sprintf("booking-%d-refund", id) }

// Create prices the request and reserves its weight. Nothing is persisted unless the reservation succeeds.
func (s *Service) Create(ctx context.Context, actor domain.Actor, in CreateInput) (*domain.Booking, error) {
	if in.WeightGrams <= 0 {
		return nil, apperr.Validation("weight_kg", "weight must be greater than zero")
	}
	if in.WeightGrams > pricing.MaxWeightGrams {
		return nil, apperr.Validation("weight_kg", pricing.WeightMessage("weight", pricing.ErrWeightTooLarge))
	}
	if in.DeclaredValue < 0 {
		return nil, apperr.Validation("declared_value", "declared value cannot be negative")
	}
	if in.InsuranceOpted && in.DeclaredValue == 0 {
		return nil, apperr.Validation("declared_value", "declared value is required for insurance")
	}

	sender, err := s.profiles.GetOrCreate(ctx, actor.UserID, actor.Role)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Require(sender, eligibility.ActionBook); err != nil {
		return nil, err
	}

	a, err := s.announcements.GetByID(ctx, in.AnnouncementID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrAnnouncementNotFound
		}
		return nil, err
	}
	if a.OwnerID == actor.UserID {
		return nil, ErrOwnAnnouncement
	}
	if !a.Status.Bookable() {
		return nil, capacity.ErrAnnouncementNotBookable
	}

	quote := pricing.Price(pricing.Input{
		WeightGrams:    in.WeightGrams,
		PricePerKg:     a.PricePerKg,
		DeclaredValue:  in.DeclaredValue,
		InsuranceOpted: in.InsuranceOpted,
	}, s.rates)

	b := &domain.Booking{
		AnnouncementID:   a.ID,
		SenderID:         actor.UserID,
		TravelerID:       a.OwnerID,
		WeightGrams:      in.WeightGrams,
		DeclaredValue:    in.DeclaredValue,
		InsuranceOpted:   in.InsuranceOpted,
		Currency:         a.Currency,
		TransportAmount:  quote.Transport,
		CommissionAmount: quote.Commission,
		InsurancePremium: quote.InsurancePremium,
		TotalAmount:      quote.Total,
	}
	if err := s.ledger.Reserve(ctx, b); err != nil {
		return nil, err
	}

	s.log.Info("booking created",
		zap.Int64("booking_id", b.ID),
		zap.Int64("announcement_id", a.ID),
		zap.Int64("weight_grams", b.WeightGrams),
		zap.Int64("total_amount", b.TotalAmount))
	s.notify(ctx, b.TravelerID, domain.NotifBookingRequested,
		fmt.Sprintf("New booking request #%d", b.ID),
		fmt.Sprintf("%s kg requested on your trip %s → %s", pricing.KgFromGrams(b.WeightGrams), a.OriginCity, a.DestinationCity))
	s.publish(ctx, b)
	return b, nil
}

func (s *Service) Get(ctx context.Context, actor domain.Actor, id int64) (*Detail, error) {
	b, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	events, err := s.bookings.ListEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Detail{Booking: b, Events: events}, nil
}

func (s *Service) List(ctx context.Context, actor domain.Actor, q ListBookingsQuery) ([]domain.Booking, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.bookings.ListForUser(ctx, actor.UserID, q.Role, domain.BookingStatus(q.Status), limit, q.Offset)
}

// Pay requests the escrow hold. The booking stays pending until the processor confirms the hold.
func (s *Service) Pay(ctx context.Context, actor domain.Actor, id int64) (*PayResult, error) {
	b, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if b.SenderID != actor.UserID {
		return nil, ErrSenderOnly
	}
	if alreadyPaid(b) {
		return &PayResult{Booking: b, AlreadyPaid: true}, nil
	}
	// A hold is already on its way; hand back the same one instead of asking for another.
	if b.Status == domain.BookingPending && b.PaymentStatus == domain.PaymentHoldRequested && b.HoldRef() != "" {
		return &PayResult{Booking: b, AlreadyPaid: true, ClientSecret: b.PaymentClientSecret}, nil
	}
	if b.Status != domain.BookingPending || b.PaymentStatus == domain.PaymentRefundRequested {
		return nil, stateError(b)
	}

	sender, err := s.profiles.GetOrCreate(ctx, b.SenderID, actor.Role)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Require(sender, eligibility.ActionPay); err != nil {
		return nil, err
	}
	traveler, err := s.profiles.GetOrCreate(ctx, b.TravelerID, domain.RoleUser)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Require(traveler, eligibility.ActionReceivePayout); err != nil {
		return nil, err
	}

	hold, err := s.proc.CreateHold(ctx, processor.HoldRequest{
		Amount:         b.TotalAmount,
		Currency:       b.Currency,
		Description:    fmt.Sprintf("Parcel booking #%d", b.ID),
		Metadata:       map[string]string{processor.MetadataBookingID: strconv.FormatInt(b.ID, 10)},
		IdempotencyKey: holdKey(b.ID),
	})
	if err != nil {
		retryable := processor.IsRetryable(err)
		reason := processor.FailureReason(err)
		if _, uerr := s.bookings.Update(ctx, b.ID, repository.BookingGuard{
			Statuses:        []domain.BookingStatus{domain.BookingPending},
			PaymentStatuses: []domain.PaymentStatus{domain.PaymentUnpaid, domain.PaymentFailed},
		}, map[string]any{
			"payment_status":         domain.PaymentFailed,
			"payment_failure_reason": reason,
		}); uerr != nil {
			s.log.Error("record hold failure", zap.Int64("booking_id", b.ID), zap.Error(uerr))
		}
		s.log.Warn("payment hold failed", zap.Int64("booking_id", b.ID), zap.Bool("retryable", retryable), zap.Error(err))
		s.notify(ctx, b.SenderID, domain.NotifPaymentFailed,
			fmt.Sprintf("Payment failed for booking #%d", b.ID), reason)
		return nil, apperr.External("create payment hold", retryable, err)
	}

	if _, err := s.bookings.Update(ctx, b.ID, repository.BookingGuard{
		Statuses:        []domain.BookingStatus{domain.BookingPending},
		PaymentStatuses: []domain.PaymentStatus{domain.PaymentUnpaid, domain.PaymentFailed, domain.PaymentHoldRequested},
	}, map[string]any{
		"payment_status":         domain.PaymentHoldRequested,
		"payment_ref":            hold.Ref,
		"payment_client_secret":  hold.ClientSecret,
		"payment_failure_reason": "",
	}); err != nil {
		return nil, fmt.Errorf("store hold ref: %w", err)
	}

	b, err = s.reload(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	s.log.Info("payment hold requested", zap.Int64("booking_id", b.ID), zap.String("hold_ref", hold.Ref))
	return &PayResult{Booking: b, AlreadyPaid: alreadyPaid(b), ClientSecret: hold.ClientSecret}, nil
}

func (s *Service) MarkInTransit(ctx context.Context, actor domain.Actor, id int64) (*domain.Booking, error) {
	return s.advance(ctx, actor, id,
		[]domain.BookingStatus{domain.BookingConfirmed},
		domain.BookingInTransit, "", domain.NotifBookingInTransit, "parcel is on its way")
}

func (s *Service) MarkDelivered(ctx context.Context, actor domain.Actor, id int64) (*domain.Booking, error) {
	return s.advance(ctx, actor, id,
		[]domain.BookingStatus{domain.BookingConfirmed, domain.BookingInTransit},
		domain.BookingDelivered, "delivered_at", domain.NotifBookingDelivered, "parcel was delivered, please confirm")
}

// advance moves a traveler-driven transition. Repeating a transition that already happened is a no-op.
func (s *Service) advance(ctx context.Context, actor domain.Actor, id int64, from []domain.BookingStatus, to domain.BookingStatus, stamp string, typ domain.NotificationType, message string) (*domain.Booking, error) {
	b, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if b.TravelerID != actor.UserID {
		return nil, ErrTravelerOnly
	}
	if b.Status == to {
		return b, nil
	}
	if !slices.Contains(from, b.Status) {
		return nil, stateError(b)
	}

	updates := map[string]any{"status": to}
	if stamp != "" {
		updates[stamp] = s.now().UTC()
	}
	ok, err := s.bookings.Transition(ctx, b.ID, repository.BookingGuard{Statuses: from}, updates, &domain.BookingEvent{
		FromStatus: b.Status,
		ToStatus:   to,
		ActorID:    actor.UserID,
	})
	if err != nil {
		return nil, err
	}
	cur, err := s.reload(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		if cur.Status == to {
			return cur, nil
		}
		return nil, stateError(cur)
	}

	s.notify(ctx, cur.SenderID, typ, fmt.Sprintf("Booking #%d is %s", cur.ID, statusLabel(to)), message)
	s.publish(ctx, cur)
	return cur, nil
}

// ConfirmDelivery completes the booking and releases escrowed funds to the traveler exactly once.
func (s *Service) ConfirmDelivery(ctx context.Context, actor domain.Actor, id int64) (*ConfirmResult, error) {
	b, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if b.SenderID != actor.UserID {
		return nil, ErrSenderOnly
	}
	if b.Status == domain.BookingCompleted {
		return &ConfirmResult{Booking: b, AlreadyCompleted: true}, nil
	}
	if b.Status != domain.BookingDelivered {
		return nil, stateError(b)
	}

	traveler, err := s.profiles.GetOrCreate(ctx, b.TravelerID, domain.RoleUser)
	if err != nil {
		return nil, err
	}
	if err := s.gate.Require(traveler, eligibility.ActionReceivePayout); err != nil {
		return nil, err
	}

	claimed, err := s.bookings.Update(ctx, b.ID, repository.BookingGuard{
		Statuses:        []domain.BookingStatus{domain.BookingDelivered},
		PaymentStatuses: []domain.PaymentStatus{domain.PaymentHeld},
	}, map[string]any{"payment_status": domain.PaymentReleasing})
	if err != nil {
		return nil, err
	}
	if !claimed {
		cur, err := s.reload(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		switch {
		case cur.Status == domain.BookingCompleted:
			return &ConfirmResult{Booking: cur, AlreadyCompleted: true}, nil
		case cur.PaymentStatus == domain.PaymentReleasing:
			return nil, ErrReleaseInProgress
		case cur.Status != domain.BookingDelivered:
			return nil, stateError(cur)
		default:
			return nil, ErrPaymentNotHeld
		}
	}

	cur, err := s.release(ctx, b, traveler.PayoutAccount(), actor.UserID, "delivery confirmed")
	if err != nil {
		var perr *processorError
		if !errors.As(err, &perr) {
			return nil, err
		}
		if _, uerr := s.bookings.Update(ctx, b.ID, repository.BookingGuard{
			Statuses:        []domain.BookingStatus{domain.BookingDelivered},
			PaymentStatuses: []domain.PaymentStatus{domain.PaymentReleasing},
		}, map[string]any{"payment_status": domain.PaymentHeld}); uerr != nil {
			s.log.Error("revert release claim", zap.Int64("booking_id", b.ID), zap.Error(uerr))
		}
		retryable := processor.IsRetryable(perr.err)
		s.log.Warn("payment release failed", zap.Int64("booking_id", b.ID), zap.Bool("retryable", retryable), zap.Error(perr.err))
		return nil, apperr.External("release payment", retryable, perr.err)
	}
	return &ConfirmResult{Booking: cur}, nil
}

// ResumeRelease finishes a booking left in releasing, e.g. after a crash between the processor call
// and the completion write. The release is re-sent with the same idempotency key, so funds move at
// most once. Reports false when the booking is no longer releasing.
func (s *Service) ResumeRelease(ctx context.Context, id int64) (bool, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if b.Status != domain.BookingDelivered || b.PaymentStatus != domain.PaymentReleasing {
		return false, nil
	}
	traveler, err := s.profiles.GetByID(ctx, b.TravelerID)
	if err != nil {
		return false, err
	}
	if traveler.PayoutAccount() == "" {
		return false, fmt.Errorf("booking %d: traveler %d has no payout account", b.ID, b.TravelerID)
	}
	if _, err := s.release(ctx, b, traveler.PayoutAccount(), 0, "release resumed"); err != nil {
		return false, err
	}
	return true, nil
}

// processorError marks a release that the processor refused, as opposed to a local failure after
// the funds moved.
type processorError struct{ err error }

func (e *processorError) Error() string { return e.err.Error() }
func (e *processorError) Unwrap() error { return e.err }

// release moves a claimed (releasing) booking's funds and completes it.
func (s *Service) release(ctx context.Context, b *domain.Booking, account string, actorID int64, note string) (*domain.Booking, error) {
	res, err := s.proc.Release(ctx, processor.ReleaseRequest{
		HoldRef:            b.HoldRef(),
		Currency:           b.Currency,
		TransferAmount:     b.TransportAmount,
		DestinationAccount: account,
		TransferGroup:      fmt.Sprintf("booking-%d", b.ID),
		IdempotencyKey:     releaseKey(b.ID),
	})
	if err != nil {
		return nil, &processorError{err: err}
	}

	ok, err := s.bookings.Transition(ctx, b.ID, repository.BookingGuard{
		Statuses:        []domain.BookingStatus{domain.BookingDelivered},
		PaymentStatuses: []domain.PaymentStatus{domain.PaymentReleasing},
	}, map[string]any{
		"status":         domain.BookingCompleted,
		"payment_status": domain.PaymentReleased,
		"transfer_ref":   res.TransferRef,
		"completed_at":   s.now().UTC(),
	}, &domain.BookingEvent{
		FromStatus: domain.BookingDelivered,
		ToStatus:   domain.BookingCompleted,
		ActorID:    actorID,
		Note:       note,
	})
	if err != nil {
		// funds already moved; the release recovery job finishes the booking
		s.log.Error("release succeeded but booking update failed",
			zap.Int64("booking_id", b.ID), zap.String("transfer_ref", res.TransferRef), zap.Error(err))
		return nil, err
	}

	cur, err := s.reload(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return cur, nil
	}
	s.log.Info("funds released", zap.Int64("booking_id", cur.ID), zap.String("transfer_ref", res.TransferRef))
	s.notify(ctx, cur.TravelerID, domain.NotifPayoutReleased,
		fmt.Sprintf("Payout released for booking #%d", cur.ID),
		fmt.Sprintf("%d %s is on its way to your payout account", cur.TransportAmount, cur.Currency))
	s.publish(ctx, cur)
	return cur, nil
}

// Cancel frees the booking's weight. A requested or held payment is voided at the processor first;
// if that fails nothing changes locally.
func (s *Service) Cancel(ctx context.Context, actor domain.Actor, id int64, reason string) (*domain.Booking, error) {
	b, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if b.Status == domain.BookingCancelled {
		return b, nil
	}
	if b.Status != domain.BookingPending && b.Status != domain.BookingConfirmed {
		return nil, stateError(b)
	}
	if reason == "" {
		reason = "cancelled by " + roleOf(b, actor.UserID)
	}

	req := capacity.ReleaseRequest{
		BookingID:    b.ID,
		ActorID:      actor.UserID,
		Reason:       reason,
		FromStatuses: []domain.BookingStatus{b.Status},
	}

	switch {
	case b.PaymentStatus == domain.PaymentHeld || (b.PaymentStatus == domain.PaymentHoldRequested && b.HoldRef() != ""):
		if err := s.voidHold(ctx, b, reason); err != nil {
			return nil, err
		}
		// the refund webhook may land before the release
		req.FromPaymentStatuses = []domain.PaymentStatus{domain.PaymentRefundRequested, domain.PaymentRefunded}
	case b.PaymentStatus == domain.PaymentRefundRequested || b.PaymentStatus == domain.PaymentRefunded:
		// an earlier cancel voided the hold but did not get to release the weight
		req.FromPaymentStatuses = []domain.PaymentStatus{domain.PaymentRefundRequested, domain.PaymentRefunded}
	case b.Status == domain.BookingPending:
		req.FromPaymentStatuses = []domain.PaymentStatus{domain.PaymentUnpaid, domain.PaymentFailed}
	default:
		return nil, ErrPaymentNotHeld
	}

	released, err := s.ledger.Release(ctx, req)
	if err != nil {
		return nil, err
	}
	cur, err := s.reload(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if !released {
		if cur.Status == domain.BookingCancelled {
			return cur, nil
		}
		return nil, ErrBookingChanged
	}

	s.log.Info("booking cancelled", zap.Int64("booking_id", cur.ID), zap.Int64("actor_id", actor.UserID), zap.String("reason", reason))
	s.notify(ctx, counterparty(cur, actor.UserID), domain.NotifBookingCancelled,
		fmt.Sprintf("Booking #%d was cancelled", cur.ID), reason)
	s.publish(ctx, cur)
	return cur, nil
}

// voidHold claims the payment for refund, asks the processor to void or refund it, and reverts the
// claim when the processor refuses.
func (s *Service) voidHold(ctx context.Context, b *domain.Booking, reason string) error {
	claimed, err := s.bookings.Update(ctx, b.ID, repository.BookingGuard{
		Statuses:        []domain.BookingStatus{b.Status},
		PaymentStatuses: []domain.PaymentStatus{b.PaymentStatus},
	}, map[string]any{"payment_status": domain.PaymentRefundRequested})
	if err != nil {
		return err
	}
	if !claimed {
		return ErrBookingChanged
	}

	if _, err := s.proc.Refund(ctx, processor.RefundRequest{
		HoldRef:        b.HoldRef(),
		Reason:         reason,
		IdempotencyKey: refundKey(b.ID),
	}); err != nil {
		if _, uerr := s.bookings.Update(ctx, b.ID, repository.BookingGuard{
			Statuses:        []domain.BookingStatus{b.Status},
			PaymentStatuses: []domain.PaymentStatus{domain.PaymentRefundRequested},
		}, map[string]any{"payment_status": b.PaymentStatus}); uerr != nil {
			s.log.Error("revert refund claim", zap.Int64("booking_id", b.ID), zap.Error(uerr))
		}
		retryable := processor.IsRetryable(err)
		s.log.Warn("payment refund failed", zap.Int64("booking_id", b.ID), zap.Bool("retryable", retryable), zap.Error(err))
		return apperr.External("refund payment", retryable, err)
	}
	return nil
}

// Dispute freezes a booking in transit or delivered. Resolution happens outside this service.
func (s *Service) Dispute(ctx context.Context, actor domain.Actor, id int64, reason string) (*domain.Booking, error) {
	b, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	from := []domain.BookingStatus{domain.BookingInTransit, domain.BookingDelivered}
	if !slices.Contains(from, b.Status) {
		return nil, stateError(b)
	}

	ok, err := s.bookings.Transition(ctx, b.ID, repository.BookingGuard{Statuses: from}, map[string]any{
		"status":      domain.BookingDisputed,
		"disputed_at": s.now().UTC(),
	}, &domain.BookingEvent{
		FromStatus: b.Status,
		ToStatus:   domain.BookingDisputed,
		ActorID:    actor.UserID,
		Note:       reason,
	})
	if err != nil {
		return nil, err
	}
	cur, err := s.reload(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, stateError(cur)
	}

	s.log.Warn("booking disputed", zap.Int64("booking_id", cur.ID), zap.Int64("actor_id", actor.UserID))
	s.notify(ctx, counterparty(cur, actor.UserID), domain.NotifBookingDisputed,
		fmt.Sprintf("Booking #%d is disputed", cur.ID), reason)
	s.publish(ctx, cur)
	return cur, nil
}

// Delete purges a cancelled booking. Only its sender may do that.
func (s *Service) Delete(ctx context.Context, actor domain.Actor, id int64) error {
	b, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	if b.SenderID != actor.UserID {
		return ErrSenderOnly
	}
	if b.Status != domain.BookingCancelled {
		return ErrNotCancelled
	}
	deleted, err := s.bookings.DeleteCancelled(ctx, id, actor.UserID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

func (s *Service) load(ctx context.Context, actor domain.Actor, id int64) (*domain.Booking, error) {
	b, err := s.reload(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.IsParticipant(actor.UserID) {
		return nil, ErrNotParticipant
	}
	return b, nil
}

func (s *Service) reload(ctx context.Context, id int64) (*domain.Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *Service) notify(ctx context.Context, userID int64, typ domain.NotificationType, title, content string) {
	if s.notifs == nil || userID == 0 {
		return
	}
	if err := s.notifs.Notify(ctx, userID, typ, title, content); err != nil {
		s.log.Warn("notify", zap.Int64("user_id", userID), zap.String("type", string(typ)), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, b *domain.Booking) {
	if err := s.events.Publish(ctx, broker.BookingRoutingKey(string(b.Status)), broker.BookingChanged{
		BookingID:      b.ID,
		AnnouncementID: b.AnnouncementID,
		SenderID:       b.SenderID,
		TravelerID:     b.TravelerID,
		Status:         string(b.Status),
		PaymentStatus:  string(b.PaymentStatus),
		TotalAmount:    b.TotalAmount,
		Currency:       b.Currency,
		OccurredAt:     s.now().UTC(),
	}); err != nil {
		s.log.Warn("publish booking event", zap.Int64("booking_id", b.ID), zap.Error(err))
	}
}

func alreadyPaid(b *domain.Booking) bool {
	switch b.PaymentStatus {
	case domain.PaymentHeld, domain.PaymentReleasing, domain.PaymentReleased:
		return true
	}
	switch b.Status {
	case domain.BookingConfirmed, domain.BookingInTransit, domain.BookingDelivered, domain.BookingCompleted:
		return true
	}
	return false
}

func stateError(b *domain.Booking) error {
	if b.Status == domain.BookingDisputed {
		return ErrBookingDisputed
	}
	return ErrInvalidStatusTransition
}

func counterparty(b *domain.Booking, userID int64) int64 {
	if userID == b.SenderID {
		return b.TravelerID
	}
	return b.SenderID
}

func roleOf(b *domain.Booking, userID int64) string {
	if userID == b.TravelerID {
		return "traveler"
	}
	return "sender"
}

func statusLabel(s domain.BookingStatus) string {
	if s == domain.BookingInTransit {
		return "in transit"
	}
	return string(s)
}

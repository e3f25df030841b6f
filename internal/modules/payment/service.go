// Package payment reconciles local booking and profile state with asynchronous processor events.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"parcelmarket/internal/domain"
	"parcelmarket/internal/pkg/broker"
	"parcelmarket/internal/pkg/logger"
	"parcelmarket/internal/pkg/processor"
	"parcelmarket/internal/pkg/validator"
	"parcelmarket/internal/repository"
)

const holdExpiredReason = "payment hold expired"

type Deps struct {
	Bookings  *repository.BookingRepository
	Profiles  *repository.ProfileRepository
	Events    *repository.PaymentEventRepository
	Processor processor.Processor
	Notifier  NotificationSender
	Publisher broker.Publisher
	Logger    *zap.Logger
}

// Service is the payment event reconciler. Every event is verified, recorded once by id and then
// applied with status guards, so duplicated or reordered deliveries never double-apply.
type Service struct {
	bookings  *repository.BookingRepository
	profiles  *repository.ProfileRepository
	events    *repository.PaymentEventRepository
	proc      processor.Processor
	notifs    NotificationSender
	publisher broker.Publisher
	log       *zap.Logger
	now       func() time.Time
}

func NewService(d Deps) *Service {
	pub := d.Publisher
	if pub == nil {
		pub = broker.Nop{}
	}
	return &Service{
		bookings:  d.Bookings,
		profiles:  d.Profiles,
		events:    d.Events,
		proc:      d.Processor,
		notifs:    d.Notifier,
		publisher: pub,
		log:       logger.OrNop(d.Logger).Named("payment"),
		now:       time.Now,
	}
}

func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*Result, error) {
	evt, err := s.proc.ParseEvent(payload, signature)
	if err != nil {
		switch {
		case errors.Is(err, processor.ErrInvalidSignature):
			s.log.Warn("webhook rejected", zap.Error(err))
			return nil, ErrInvalidSignature
		case errors.Is(err, processor.ErrMalformedEvent):
			s.log.Warn("webhook malformed", zap.Error(err))
			return nil, ErrMalformedEvent
		}
		return nil, err
	}
	if errs := validator.Validate(evt); len(errs) > 0 {
		s.log.Warn("webhook failed validation", zap.Any("fields", errs))
		return nil, ErrMalformedEvent
	}

	res := &Result{EventRef: evt.ID, Type: string(evt.Type)}
	fresh, err := s.claim(ctx, evt)
	if err != nil {
		return nil, err
	}
	if !fresh {
		s.log.Info("duplicate webhook acknowledged", zap.String("event_id", evt.ID), zap.String("type", string(evt.Type)))
		res.Duplicate = true
		return res, nil
	}

	outcome, err := s.apply(ctx, evt)
	if err != nil {
		// the row stays in processing, so the processor's redelivery is applied again
		return nil, err
	}
	if err := s.events.SetOutcome(context.WithoutCancel(ctx), evt.ID, outcome); err != nil {
		s.log.Warn("store event outcome", zap.String("event_id", evt.ID), zap.Error(err))
	}

	s.log.Info("webhook handled",
		zap.String("event_id", evt.ID),
		zap.String("type", string(evt.Type)),
		zap.String("object_ref", evt.ObjectRef),
		zap.String("outcome", string(outcome)))
	res.Outcome = outcome
	return res, nil
}

// claim records the event as processing. It reports false for a redelivery of an event that was
// already applied; a redelivery of one left in processing (failed or interrupted apply) is claimed
// again, which the status guards in apply make safe.
func (s *Service) claim(ctx context.Context, evt *processor.Event) (bool, error) {
	recorded, err := s.events.Record(ctx, &domain.PaymentEvent{
		EventRef:  evt.ID,
		Type:      string(evt.Type),
		ObjectRef: evt.ObjectRef,
		Outcome:   domain.EventProcessing,
	})
	if err != nil {
		return false, fmt.Errorf("record payment event: %w", err)
	}
	if recorded {
		return true, nil
	}
	prev, err := s.events.GetByRef(ctx, evt.ID)
	if err != nil {
		return false, fmt.Errorf("load payment event: %w", err)
	}
	if prev.Outcome == domain.EventProcessing {
		s.log.Info("resuming unfinished webhook", zap.String("event_id", evt.ID), zap.String("type", string(evt.Type)))
		return true, nil
	}
	return false, nil
}

func (s *Service) apply(ctx context.Context, evt *processor.Event) (domain.PaymentEventOutcome, error) {
	switch evt.Type {
	case processor.EventHoldSucceeded:
		return s.holdSucceeded(ctx, evt)
	case processor.EventHoldFailed:
		return s.holdFailed(ctx, evt)
	case processor.EventRefundCompleted:
		return s.refundCompleted(ctx, evt)
	case processor.EventHoldExpired:
		return s.holdExpired(ctx, evt)
	case processor.EventAccountUpdated:
		return s.accountUpdated(ctx, evt)
	case processor.EventIdentityVerified, processor.EventIdentityRequiresInput:
		return s.identityResult(ctx, evt)
	}
	return domain.EventUnknown, nil
}

func (s *Service) holdSucceeded(ctx context.Context, evt *processor.Event) (domain.PaymentEventOutcome, error) {
	b, err := s.findBooking(ctx, evt)
	if err != nil || b == nil {
		return domain.EventUnknown, err
	}

	if b.Status == domain.BookingPending {
		ok, err := s.bookings.Transition(ctx, b.ID, repository.BookingGuard{
			Statuses:        []domain.BookingStatus{domain.BookingPending},
			PaymentStatuses: []domain.PaymentStatus{domain.PaymentUnpaid, domain.PaymentFailed, domain.PaymentHoldRequested},
		}, map[string]any{
			"status":                 domain.BookingConfirmed,
			"payment_status":         domain.PaymentHeld,
			"payment_ref":            evt.ObjectRef,
			"payment_failure_reason": "",
			"confirmed_at":           s.now().UTC(),
		}, &domain.BookingEvent{
			FromStatus: domain.BookingPending,
			ToStatus:   domain.BookingConfirmed,
			Note:       "payment hold confirmed",
		})
		if err != nil {
			return "", err
		}
		if ok {
			cur, err := s.bookings.GetByID(ctx, b.ID)
			if err != nil {
				return "", err
			}
			title := fmt.Sprintf("Booking #%d confirmed", cur.ID)
			s.notify(ctx, cur.SenderID, domain.NotifBookingConfirmed, title, "payment is held until you confirm delivery")
			s.notify(ctx, cur.TravelerID, domain.NotifBookingConfirmed, title, "the sender's payment is secured")
			s.publish(ctx, cur)
			return domain.EventApplied, nil
		}
		if b, err = s.bookings.GetByID(ctx, b.ID); err != nil {
			return "", err
		}
	}

	if b.Status == domain.BookingCancelled || b.PaymentStatus == domain.PaymentRefundRequested {
		return s.voidLateHold(ctx, b, evt.ObjectRef)
	}
	return domain.EventIgnored, nil
}

// voidLateHold handles a hold that succeeded after its booking was cancelled: the money is handed back.
func (s *Service) voidLateHold(ctx context.Context, b *domain.Booking, holdRef string) (domain.PaymentEventOutcome, error) {
	if b.PaymentStatus == domain.PaymentRefunded {
		return domain.EventIgnored, nil
	}
	if _, err := s.proc.Refund(ctx, processor.RefundRequest{
		HoldRef:        holdRef,
		Reason:         "booking cancelled",
		IdempotencyKey: fmt.Sprintf("booking-%d-refund", b.ID),
	}); err != nil {
		return "", fmt.Errorf("void hold %s for cancelled booking %d: %w", holdRef, b.ID, err)
	}
	if _, err := s.bookings.Update(ctx, b.ID, repository.BookingGuard{
		PaymentStatuses: []domain.PaymentStatus{domain.PaymentUnpaid, domain.PaymentFailed, domain.PaymentHoldRequested},
	}, map[string]any{
		"payment_status": domain.PaymentRefundRequested,
		"payment_ref":    holdRef,
	}); err != nil {
		return "", err
	}
	s.log.Info("voided hold of cancelled booking", zap.Int64("booking_id", b.ID), zap.String("hold_ref", holdRef))
	return domain.EventApplied, nil
}

func (s *Service) holdFailed(ctx context.Context, evt *processor.Event) (domain.PaymentEventOutcome, error) {
	b, err := s.findBooking(ctx, evt)
	if err != nil || b == nil {
		return domain.EventUnknown, err
	}
	reason := evt.FailureReason
	if reason == "" {
		reason = "payment failed"
	}
	ok, err := s.bookings.Update(ctx, b.ID, repository.BookingGuard{
		Statuses:        []domain.BookingStatus{domain.BookingPending},
		PaymentStatuses: []domain.PaymentStatus{domain.PaymentUnpaid, domain.PaymentHoldRequested},
	}, map[string]any{
		"payment_status":         domain.PaymentFailed,
		"payment_failure_reason": reason,
	})
	if err != nil {
		return "", err
	}
	if !ok {
		return domain.EventIgnored, nil
	}
	s.notify(ctx, b.SenderID, domain.NotifPaymentFailed, fmt.Sprintf("Payment failed for booking #%d", b.ID), reason)
	return domain.EventApplied, nil
}

func (s *Service) refundCompleted(ctx context.Context, evt *processor.Event) (domain.PaymentEventOutcome, error) {
	b, err := s.findBooking(ctx, evt)
	if err != nil || b == nil {
		return domain.EventUnknown, err
	}
	ok, err := s.bookings.Update(ctx, b.ID, repository.BookingGuard{
		PaymentStatuses: []domain.PaymentStatus{domain.PaymentRefundRequested},
	}, map[string]any{"payment_status": domain.PaymentRefunded})
	if err != nil {
		return "", err
	}
	if !ok {
		return domain.EventIgnored, nil
	}
	return domain.EventApplied, nil
}

// holdExpired handles a hold the processor dropped without a void from us. A pending booking can pay
// again; a funded booking cannot be released any more, so it is flagged and both parties are told.
func (s *Service) holdExpired(ctx context.Context, evt *processor.Event) (domain.PaymentEventOutcome, error) {
	b, err := s.findBooking(ctx, evt)
	if err != nil || b == nil {
		return domain.EventUnknown, err
	}

	switch b.PaymentStatus {
	case domain.PaymentRefundRequested:
		return s.refundCompleted(ctx, evt)
	case domain.PaymentUnpaid, domain.PaymentHoldRequested:
		ok, err := s.bookings.Update(ctx, b.ID, repository.BookingGuard{
			Statuses:        []domain.BookingStatus{domain.BookingPending},
			PaymentStatuses: []domain.PaymentStatus{b.PaymentStatus},
		}, map[string]any{
			"payment_status":         domain.PaymentFailed,
			"payment_failure_reason": holdExpiredReason,
		})
		if err != nil {
			return "", err
		}
		if !ok {
			return domain.EventIgnored, nil
		}
		s.notify(ctx, b.SenderID, domain.NotifPaymentFailed, fmt.Sprintf("Payment failed for booking #%d", b.ID), holdExpiredReason)
		return domain.EventApplied, nil
	case domain.PaymentHeld, domain.PaymentReleasing:
		ok, err := s.bookings.Update(ctx, b.ID, repository.BookingGuard{
			PaymentStatuses: []domain.PaymentStatus{b.PaymentStatus},
		}, map[string]any{"payment_failure_reason": holdExpiredReason})
		if err != nil {
			return "", err
		}
		if !ok {
			return domain.EventIgnored, nil
		}
		s.log.Error("escrow hold expired on funded booking",
			zap.Int64("booking_id", b.ID),
			zap.String("status", string(b.Status)),
			zap.String("payment_status", string(b.PaymentStatus)),
			zap.String("hold_ref", evt.ObjectRef),
			zap.String("cancellation_reason", evt.FailureReason))
		title := fmt.Sprintf("Payment hold expired for booking #%d", b.ID)
		s.notify(ctx, b.SenderID, domain.NotifPaymentFailed, title, "the held payment lapsed, support will contact you")
		s.notify(ctx, b.TravelerID, domain.NotifPaymentFailed, title, "the sender's payment is no longer secured")
		return domain.EventApplied, nil
	}
	return domain.EventIgnored, nil
}

func (s *Service) accountUpdated(ctx context.Context, evt *processor.Event) (domain.PaymentEventOutcome, error) {
	p, err := s.profiles.GetByPayoutAccountRef(ctx, evt.ObjectRef)
	if err != nil {
		if repository.IsNotFound(err) {
			s.log.Info("account event for unknown account", zap.String("account_ref", evt.ObjectRef))
			return domain.EventUnknown, nil
		}
		return "", err
	}
	status := domain.PayoutInactive
	if evt.PayoutsEnabled {
		status = domain.PayoutActive
	}
	changed, err := s.profiles.SetPayoutStatus(ctx, p.ID, status)
	if err != nil {
		return "", err
	}
	if !changed {
		return domain.EventIgnored, nil
	}
	if status == domain.PayoutActive {
		s.notify(ctx, p.ID, domain.NotifPayoutActivated, "Payouts activated", "you can now publish trips and receive payouts")
	}
	return domain.EventApplied, nil
}

// identityResult applies a verification outcome. Approval is sticky: a late requires_input replay
// never downgrades an approved profile.
func (s *Service) identityResult(ctx context.Context, evt *processor.Event) (domain.PaymentEventOutcome, error) {
	if evt.UserID == 0 {
		return domain.EventUnknown, nil
	}
	p, err := s.profiles.GetByID(ctx, evt.UserID)
	if err != nil {
		if repository.IsNotFound(err) {
			return domain.EventUnknown, nil
		}
		return "", err
	}

	to, typ, title := domain.KYCApproved, domain.NotifKYCApproved, "Identity verified"
	if evt.Type == processor.EventIdentityRequiresInput {
		to, typ, title = domain.KYCRejected, domain.NotifKYCRejected, "Identity verification needs attention"
	}
	changed, err := s.profiles.SetKYCStatus(ctx, p.ID, []domain.KYCStatus{domain.KYCNone, domain.KYCPending}, to, evt.ObjectRef)
	if err != nil {
		return "", err
	}
	if !changed {
		return domain.EventIgnored, nil
	}
	s.notify(ctx, p.ID, typ, title, evt.FailureReason)
	return domain.EventApplied, nil
}

// findBooking resolves the booking by hold ref, falling back to the booking id carried in hold
// metadata when the ref has not been stored yet. Returns nil when nothing matches.
func (s *Service) findBooking(ctx context.Context, evt *processor.Event) (*domain.Booking, error) {
	if evt.ObjectRef != "" {
		b, err := s.bookings.GetByPaymentRef(ctx, evt.ObjectRef)
		if err == nil {
			return b, nil
		}
		if !repository.IsNotFound(err) {
			return nil, err
		}
	}
	if evt.BookingID > 0 {
		b, err := s.bookings.GetByID(ctx, evt.BookingID)
		if err != nil && !repository.IsNotFound(err) {
			return nil, err
		}
		if err == nil && (b.PaymentRef == nil || b.HoldRef() == evt.ObjectRef) {
			return b, nil
		}
	}
	s.log.Info("payment event for unknown booking",
		zap.String("type", string(evt.Type)),
		zap.String("object_ref", evt.ObjectRef),
		zap.Int64("booking_id", evt.BookingID))
	return nil, nil
}

func (s *Service) notify(ctx context.Context, userID int64, typ domain.NotificationType, title, content string) {
	if s.notifs == nil {
		return
	}
	if err := s.notifs.Notify(ctx, userID, typ, title, content); err != nil {
		s.log.Warn("notify", zap.Int64("user_id", userID), zap.String("type", string(typ)), zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, b *domain.Booking) {
	if err := s.publisher.Publish(ctx, broker.BookingRoutingKey(string(b.Status)), broker.BookingChanged{
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

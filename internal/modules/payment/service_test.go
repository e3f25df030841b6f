package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"parcelmarket/internal/domain"
	"parcelmarket/internal/pkg/broker"
	"parcelmarket/internal/pkg/processor"
	"parcelmarket/internal/pkg/processor/processortest"
	"parcelmarket/internal/pkg/processor/sandbox"
	"parcelmarket/internal/repository"
	"parcelmarket/internal/testutil"
)

const (
	webhookSecret       = "whsec_test"
	senderID      int64 = 1
	travelerID    int64 = 2
)

// testProcessor verifies signatures with a real sandbox and mocks every outbound call.
type testProcessor struct {
	*processortest.Mock
	sb *sandbox.Sandbox
}

func (p testProcessor) ParseEvent(payload []byte, signature string) (*processor.Event, error) {
	return p.sb.ParseEvent(payload, signature)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.NotificationType
}

func (r *recordingNotifier) Notify(_ context.Context, _ int64, typ domain.NotificationType, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, typ)
	return nil
}

func (r *recordingNotifier) count(typ domain.NotificationType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.sent {
		if t == typ {
			n++
		}
	}
	return n
}

type fixture struct {
	db     *gorm.DB
	svc    *Service
	proc   *processortest.Mock
	notes  *recordingNotifier
	events *broker.Recorder
	ann    *domain.Announcement
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)

	acct := "acct_traveler"
	require.NoError(t, db.Create(&domain.Profile{ID: senderID, Role: domain.RoleUser, KYCStatus: domain.KYCPending, PayoutStatus: domain.PayoutInactive}).Error)
	require.NoError(t, db.Create(&domain.Profile{ID: travelerID, Role: domain.RoleUser, KYCStatus: domain.KYCApproved, PayoutStatus: domain.PayoutInactive, PayoutAccountRef: &acct}).Error)

	ann := &domain.Announcement{
		OwnerID:            travelerID,
		OriginCountry:      "DE",
		OriginCity:         "Berlin",
		DestinationCountry: "KZ",
		DestinationCity:    "Almaty",
		DepartureDate:      time.Now().Add(72 * time.Hour),
		CapacityGrams:      10_000,
		PricePerKg:         1000,
		Currency:           "eur",
		Status:             domain.AnnouncementPartiallyBooked,
	}
	require.NoError(t, db.Create(ann).Error)

	sb, err := sandbox.Open(sandbox.Config{Path: filepath.Join(t.TempDir(), "sandbox.db"), WebhookSecret: webhookSecret}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sb.Close() })

	proc := new(processortest.Mock)
	notes := &recordingNotifier{}
	events := &broker.Recorder{}
	svc := NewService(Deps{
		Bookings:  repository.NewBookingRepository(db),
		Profiles:  repository.NewProfileRepository(db),
		Events:    repository.NewPaymentEventRepository(db),
		Processor: testProcessor{Mock: proc, sb: sb},
		Notifier:  notes,
		Publisher: events,
	})
	return &fixture{db: db, svc: svc, proc: proc, notes: notes, events: events, ann: ann}
}

func (f *fixture) booking(t *testing.T, status domain.BookingStatus, payment domain.PaymentStatus, ref string) *domain.Booking {
	t.Helper()
	b := &domain.Booking{
		AnnouncementID:   f.ann.ID,
		SenderID:         senderID,
		TravelerID:       travelerID,
		WeightGrams:      5_000,
		Currency:         "eur",
		TransportAmount:  5000,
		CommissionAmount: 600,
		TotalAmount:      5600,
		Status:           status,
		PaymentStatus:    payment,
	}
	if ref != "" {
		b.PaymentRef = &ref
	}
	require.NoError(t, f.db.Create(b).Error)
	return b
}

func (f *fixture) reload(t *testing.T, id int64) *domain.Booking {
	t.Helper()
	var b domain.Booking
	require.NoError(t, f.db.First(&b, id).Error)
	return &b
}

func signed(t *testing.T, evt processor.Event) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(evt)
	require.NoError(t, err)
	return payload, sandbox.Sign(webhookSecret, payload, time.Now())
}

func (f *fixture) deliver(t *testing.T, evt processor.Event) (*Result, error) {
	t.Helper()
	payload, sig := signed(t, evt)
	return f.svc.HandleWebhook(context.Background(), payload, sig)
}

func TestHoldSucceeded_ConfirmsOnceAcrossRedeliveries(t *testing.T) {
	f := newFixture(t)
	b := f.booking(t, domain.BookingPending, domain.PaymentHoldRequested, "hold_1")
	evt := processor.Event{ID: "evt_1", Type: processor.EventHoldSucceeded, ObjectRef: "hold_1", BookingID: b.ID}

	res, err := f.deliver(t, evt)
	require.NoError(t, err)
	assert.Equal(t, domain.EventApplied, res.Outcome)
	assert.False(t, res.Duplicate)

	res, err = f.deliver(t, evt)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)

	got := f.reload(t, b.ID)
	assert.Equal(t, domain.BookingConfirmed, got.Status)
	assert.Equal(t, domain.PaymentHeld, got.PaymentStatus)
	assert.NotNil(t, got.ConfirmedAt)

	var history int64
	require.NoError(t, f.db.Model(&domain.BookingEvent{}).Where("booking_id = ?", b.ID).Count(&history).Error)
	assert.EqualValues(t, 1, history)
	assert.Equal(t, 2, f.notes.count(domain.NotifBookingConfirmed))
	assert.Equal(t, []string{"booking.confirmed"}, f.events.Keys())
}

func TestHoldSucceeded_MatchesByBookingIDBeforeRefStored(t *testing.T) {
	f := newFixture(t)
	b := f.booking(t, domain.BookingPending, domain.PaymentUnpaid, "")

	res, err := f.deliver(t, processor.Event{ID: "evt_2", Type: processor.EventHoldSucceeded, ObjectRef: "hold_early", BookingID: b.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.EventApplied, res.Outcome)

	got := f.reload(t, b.ID)
	assert.Equal(t, domain.BookingConfirmed, got.Status)
	assert.Equal(t, "hold_early", got.HoldRef())
}

func TestHoldSucceeded_BookingIDWithDifferentRefIsUnknown(t *testing.T) {
	f := newFixture(t)
	b := f.booking(t, domain.BookingPending, domain.PaymentHoldRequested, "hold_current")

	res, err := f.deliver(t, processor.Event{ID: "evt_3", Type: processor.EventHoldSucceeded, ObjectRef: "hold_stale", BookingID: b.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.EventUnknown, res.Outcome)
	assert.Equal(t, domain.BookingPending, f.reload(t, b.ID).Status)
}

func TestHoldSucceeded_OnCancelledBookingVoidsHold(t *testing.T) {
	f := newFixture(t)
	b := f.booking(t, domain.BookingCancelled, domain.PaymentUnpaid, "")
	f.proc.On("Refund", mock.Anything, processor.RefundRequest{
		HoldRef:        "hold_late",
		Reason:         "booking cancelled",
		IdempotencyKey: fmt.Sprintf("booking-%d-refund", b.ID),
	}).Return(&processor.RefundResult{Ref: "re_1"}, nil).Once()

	res, err := f.deliver(t, processor.Event{ID: "evt_4", Type: processor.EventHoldSucceeded, ObjectRef: "hold_late", BookingID: b.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.EventApplied, res.Outcome)

	got := f.reload(t, b.ID)
	assert.Equal(t, domain.BookingCancelled, got.Status)
	assert.Equal(t, domain.PaymentRefundRequested, got.PaymentStatus)
	assert.Equal(t, "hold_late", got.HoldRef())
	f.proc.AssertExpectations(t)

	res, err = f.deliver(t, processor.Event{ID: "evt_5", Type: processor.EventRefundCompleted, ObjectRef: "hold_late"})
	require.NoError(t, err)
	assert.Equal(t, domain.EventApplied, res.Outcome)
	assert.Equal(t, domain.PaymentRefunded, f.reload(t, b.ID).PaymentStatus)
}

func TestHoldSucceeded_VoidFailureAllowsRedelivery(t *testing.T) {
	f := newFixture(t)
	b := f.booking(t, domain.BookingCancelled, domain.PaymentUnpaid, "")
	f.proc.On("Refund", mock.Anything, mock.Anything).Return(nil, errors.New("timeout")).Once()
	f.proc.On("Refund", mock.Anything, mock.Anything).Return(&processor.RefundResult{Ref: "re_2"}, nil).Once()

	evt := processor.Event{ID: "evt_6", Type: processor.EventHoldSucceeded, ObjectRef: "hold_retry", BookingID: b.ID}
	_, err := f.deliver(t, evt)
	require.Error(t, err)
	assert.Equal(t, domain.PaymentUnpaid, f.reload(t, b.ID).PaymentStatus)

	res, err := f.deliver(t, evt)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, domain.PaymentRefundRequested, f.reload(t, b.ID).PaymentStatus)
}

func TestHoldSucceeded_InterruptedVoidIsResumedOnRedelivery(t *testing.T) {
	f := newFixture(t)
	b := f.booking(t, domain.BookingCancelled, domain.PaymentUnpaid, "")

	ctx, cancel := context.WithCancel(context.Background())
	f.proc.On("Refund", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, context.Canceled).Once()
	f.proc.On("Refund", mock.Anything, mock.Anything).Return(&processor.RefundResult{Ref: "re_3"}, nil).Once()

	evt := processor.Event{ID: "evt_cancel", Type: processor.EventHoldSucceeded, ObjectRef: "hold_x", BookingID: b.ID}
	payload, sig := signed(t, evt)
	_, err := f.svc.HandleWebhook(ctx, payload, sig)
	require.Error(t, err)

	var stored domain.PaymentEvent
	require.NoError(t, f.db.Where("event_ref = ?", evt.ID).First(&stored).Error)
	assert.Equal(t, domain.EventProcessing, stored.Outcome)

	res, err := f.deliver(t, evt)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, domain.EventApplied, res.Outcome)
	assert.Equal(t, domain.PaymentRefundRequested, f.reload(t, b.ID).PaymentStatus)

	require.NoError(t, f.db.Where("event_ref = ?", evt.ID).First(&stored).Error)
	assert.Equal(t, domain.EventApplied, stored.Outcome)

	res, err = f.deliver(t, evt)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	f.proc.AssertNumberOfCalls(t, "Refund", 2)
}

func TestHoldFailed_MarksPaymentFailed(t *testing.T) {
	f := newFixture(t)
	b := f.booking(t, domain.BookingPending, domain.PaymentHoldRequested, "hold_f")

	res, err := f.deliver(t, processor.Event{ID: "evt_7", Type: processor.EventHoldFailed, ObjectRef: "hold_f", FailureReason: "card_declined"})
	require.NoError(t, err)
	assert.Equal(t, domain.EventApplied, res.Outcome)

	got := f.reload(t, b.ID)
	assert.Equal(t, domain.BookingPending, got.Status)
	assert.Equal(t, domain.PaymentFailed, got.PaymentStatus)
	assert.Equal(t, "card_declined", got.PaymentFailureReason)
	assert.Equal(t, 1, f.notes.count(domain.NotifPaymentFailed))
}

func TestHoldFailed_AfterConfirmationIsIgnored(t *testing.T) {
	f := newFixture(t)
	b := f.booking(t, domain.BookingConfirmed, domain.PaymentHeld, "hold_ok")

	res, err := f.deliver(t, processor.Event{ID: "evt_8", Type: processor.EventHoldFailed, ObjectRef: "hold_ok"})
	require.NoError(t, err)
	assert.Equal(t, domain.EventIgnored, res.Outcome)
	assert.Equal(t, domain.PaymentHeld, f.reload(t, b.ID).PaymentStatus)
}

func TestHoldExpired_OnHeldBookingIsFlagged(t *testing.T) {
	f := newFixture(t)
	b := f.booking(t, domain.BookingInTransit, domain.PaymentHeld, "hold_old")

	res, err := f.deliver(t, processor.Event{ID: "evt_20", Type: processor.EventHoldExpired, ObjectRef: "hold_old", FailureReason: "automatic"})
	require.NoError(t, err)
	assert.Equal(t, domain.EventApplied, res.Outcome)

	got := f.reload(t, b.ID)
	assert.Equal(t, domain.BookingInTransit, got.Status)
	assert.Equal(t, domain.PaymentHeld, got.PaymentStatus, "a lapsed hold is not a refund")
	assert.Equal(t, "payment hold expired", got.PaymentFailureReason)
	assert.Equal(t, 2, f.notes.count(domain.NotifPaymentFailed))

	_, err = f.deliver(t, processor.Event{ID: "evt_21", Type: processor.EventHoldExpired, ObjectRef: "hold_old"})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentHeld, f.reload(t, b.ID).PaymentStatus)
}

func TestHoldExpired_OnPendingBookingAllowsNewPayment(t *testing.T) {
	f := newFixture(t)
	b := f.booking(t, domain.BookingPending, domain.PaymentHoldRequested, "hold_abandoned")

	res, err := f.deliver(t, processor.Event{ID: "evt_22", Type: processor.EventHoldExpired, ObjectRef: "hold_abandoned", FailureReason: "abandoned"})
	require.NoError(t, err)
	assert.Equal(t, domain.EventApplied, res.Outcome)

	got := f.reload(t, b.ID)
	assert.Equal(t, domain.BookingPending, got.Status)
	assert.Equal(t, domain.PaymentFailed, got.PaymentStatus)
	assert.Equal(t, "payment hold expired", got.PaymentFailureReason)
}

func TestHoldExpired_AfterOwnVoidCompletesRefund(t *testing.T) {
	f := newFixture(t)
	b := f.booking(t, domain.BookingCancelled, domain.PaymentRefundRequested, "hold_void")

	res, err := f.deliver(t, processor.Event{ID: "evt_23", Type: processor.EventHoldExpired, ObjectRef: "hold_void"})
	require.NoError(t, err)
	assert.Equal(t, domain.EventApplied, res.Outcome)
	assert.Equal(t, domain.PaymentRefunded, f.reload(t, b.ID).PaymentStatus)
	assert.Zero(t, f.notes.count(domain.NotifPaymentFailed))
}

func TestAccountUpdated_ActivatesPayouts(t *testing.T) {
	f := newFixture(t)

	res, err := f.deliver(t, processor.Event{ID: "evt_9", Type: processor.EventAccountUpdated, ObjectRef: "acct_traveler", PayoutsEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, domain.EventApplied, res.Outcome)

	var p domain.Profile
	require.NoError(t, f.db.First(&p, travelerID).Error)
	assert.Equal(t, domain.PayoutActive, p.PayoutStatus)
	assert.Equal(t, 1, f.notes.count(domain.NotifPayoutActivated))

	res, err = f.deliver(t, processor.Event{ID: "evt_10", Type: processor.EventAccountUpdated, ObjectRef: "acct_unknown", PayoutsEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, domain.EventUnknown, res.Outcome)
}

func TestIdentityApprovalIsSticky(t *testing.T) {
	f := newFixture(t)

	res, err := f.deliver(t, processor.Event{ID: "evt_11", Type: processor.EventIdentityVerified, ObjectRef: "vs_1", UserID: senderID})
	require.NoError(t, err)
	assert.Equal(t, domain.EventApplied, res.Outcome)

	res, err = f.deliver(t, processor.Event{ID: "evt_12", Type: processor.EventIdentityRequiresInput, ObjectRef: "vs_1", UserID: senderID})
	require.NoError(t, err)
	assert.Equal(t, domain.EventIgnored, res.Outcome)

	var p domain.Profile
	require.NoError(t, f.db.First(&p, senderID).Error)
	assert.Equal(t, domain.KYCApproved, p.KYCStatus)
	assert.Equal(t, 1, f.notes.count(domain.NotifKYCApproved))
	assert.Zero(t, f.notes.count(domain.NotifKYCRejected))
}

func TestUnknownEventTypeIsAcknowledged(t *testing.T) {
	f := newFixture(t)

	res, err := f.deliver(t, processor.Event{ID: "evt_13", Type: "charge.dispute.created", ObjectRef: "dp_1"})
	require.NoError(t, err)
	assert.Equal(t, domain.EventUnknown, res.Outcome)

	stored, err := repository.NewPaymentEventRepository(f.db).GetByRef(context.Background(), "evt_13")
	require.NoError(t, err)
	assert.Equal(t, domain.EventUnknown, stored.Outcome)
}

func TestWebhookRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	payload, _ := signed(t, processor.Event{ID: "evt_14", Type: processor.EventHoldSucceeded})
	_, err := f.svc.HandleWebhook(context.Background(), payload, sandbox.Sign("whsec_other", payload, time.Now()))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	bad := []byte(`{"id":"evt_15"`)
	_, err = f.svc.HandleWebhook(context.Background(), bad, sandbox.Sign(webhookSecret, bad, time.Now()))
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, err = f.deliver(t, processor.Event{Type: processor.EventHoldSucceeded})
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestWebhookHandler(t *testing.T) {
	f := newFixture(t)
	b := f.booking(t, domain.BookingPending, domain.PaymentHoldRequested, "hold_http")

	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(f.svc).RegisterPublicRoutes(r.Group("/api/v1"))

	payload, sig := signed(t, processor.Event{ID: "evt_http", Type: processor.EventHoldSucceeded, ObjectRef: "hold_http"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", strings.NewReader(string(payload)))
	req.Header.Set(sandbox.SignatureHeader, sig)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"outcome":"applied"`)
	assert.Equal(t, domain.BookingConfirmed, f.reload(t, b.ID).Status)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", strings.NewReader(string(payload)))
	req.Header.Set(sandbox.SignatureHeader, "t=1,v1=deadbeef")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_SIGNATURE")
}

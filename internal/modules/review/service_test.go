package review

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"parcelmarket/internal/domain"
	"parcelmarket/internal/pkg/apperr"
	"parcelmarket/internal/repository"
	"parcelmarket/internal/testutil"
)

var (
	traveler = domain.Actor{UserID: 10, Role: domain.RoleUser}
	sender   = domain.Actor{UserID: 12, Role: domain.RoleUser}
)

type recordingNotifier struct{ titles []string }

func (n *recordingNotifier) Notify(_ context.Context, _ int64, _ domain.NotificationType, title, _ string) error {
	n.titles = append(n.titles, title)
	return nil
}

func newService(t *testing.T) (*Service, *gorm.DB, *recordingNotifier) {
	t.Helper()
	db := testutil.NewDB(t)
	require.NoError(t, db.Create(&domain.Profile{ID: traveler.UserID, Role: domain.RoleUser}).Error)
	require.NoError(t, db.Create(&domain.Profile{ID: sender.UserID, Role: domain.RoleUser}).Error)
	notes := &recordingNotifier{}
	svc := NewService(repository.NewReviewRepository(db), repository.NewBookingRepository(db), repository.NewProfileRepository(db), notes, nil)
	return svc, db, notes
}

func createBooking(t *testing.T, db *gorm.DB, status domain.BookingStatus) *domain.Booking {
	t.Helper()
	b := &domain.Booking{
		AnnouncementID: 1, SenderID: sender.UserID, TravelerID: traveler.UserID, WeightGrams: 1_000,
		Currency: "eur", TransportAmount: 1000, TotalAmount: 1100, Status: status, PaymentStatus: domain.PaymentHeld,
	}
	require.NoError(t, db.Create(b).Error)
	return b
}

func TestCreate_UpdatesTravelerRating(t *testing.T) {
	svc, db, notes := newService(t)
	ctx := context.Background()

	first := createBooking(t, db, domain.BookingDelivered)
	second := createBooking(t, db, domain.BookingCompleted)

	_, err := svc.Create(ctx, sender, first.ID, 5, "  on time  ")
	require.NoError(t, err)
	rv, err := svc.Create(ctx, sender, second.ID, 4, "")
	require.NoError(t, err)
	assert.Equal(t, traveler.UserID, rv.TravelerID)

	out, err := svc.ListForTraveler(ctx, traveler.UserID, 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, out.RatingCount)
	assert.InDelta(t, 4.5, out.AverageRating, 0.001)
	require.Len(t, out.Reviews, 2)
	assert.Len(t, notes.titles, 2)

	var comments []string
	for _, r := range out.Reviews {
		comments = append(comments, r.Comment)
	}
	assert.Contains(t, comments, "on time")
}

func TestCreate_Rules(t *testing.T) {
	svc, db, _ := newService(t)
	ctx := context.Background()

	delivered := createBooking(t, db, domain.BookingDelivered)
	inTransit := createBooking(t, db, domain.BookingInTransit)

	_, err := svc.Create(ctx, traveler, delivered.ID, 5, "")
	assert.ErrorIs(t, err, ErrSenderOnly)

	_, err = svc.Create(ctx, sender, inTransit.ID, 5, "")
	assert.ErrorIs(t, err, ErrNotReviewable)

	_, err = svc.Create(ctx, sender, 999, 5, "")
	assert.ErrorIs(t, err, ErrBookingNotFound)

	_, err = svc.Create(ctx, sender, delivered.ID, 6, "")
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.KindValidation, ae.Kind)

	_, err = svc.Create(ctx, sender, delivered.ID, 3, "")
	require.NoError(t, err)
	_, err = svc.Create(ctx, sender, delivered.ID, 1, "")
	assert.ErrorIs(t, err, ErrAlreadyReviewed)

	var p domain.Profile
	require.NoError(t, db.First(&p, traveler.UserID).Error)
	assert.EqualValues(t, 3, p.RatingSum)
	assert.EqualValues(t, 1, p.RatingCount)
}

func TestRespond_OncePerReview(t *testing.T) {
	svc, db, _ := newService(t)
	ctx := context.Background()

	b := createBooking(t, db, domain.BookingDelivered)
	rv, err := svc.Create(ctx, sender, b.ID, 2, "late")
	require.NoError(t, err)

	_, err = svc.Respond(ctx, sender, rv.ID, "not me")
	assert.ErrorIs(t, err, ErrTravelerOnly)

	got, err := svc.Respond(ctx, traveler, rv.ID, "customs delay, sorry")
	require.NoError(t, err)
	require.NotNil(t, got.Response)
	assert.Equal(t, "customs delay, sorry", *got.Response)
	assert.NotNil(t, got.RespondedAt)

	_, err = svc.Respond(ctx, traveler, rv.ID, "again")
	assert.ErrorIs(t, err, ErrAlreadyResponded)

	_, err = svc.Respond(ctx, traveler, 999, "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHandler_CreateAndList(t *testing.T) {
	svc, db, _ := newService(t)
	b := createBooking(t, db, domain.BookingDelivered)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", sender.UserID)
		c.Set("role", string(sender.Role))
	})
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/"+strconv.FormatInt(b.ID, 10)+"/review", strings.NewReader(`{"rating":5,"comment":"great"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/profiles/10/reviews", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Success bool            `json:"success"`
		Data    TravelerReviews `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.EqualValues(t, 1, body.Data.RatingCount)
	assert.InDelta(t, 5.0, body.Data.AverageRating, 0.001)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/profiles/abc/reviews", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

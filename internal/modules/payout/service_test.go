package payout

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"parcelmarket/internal/domain"
	"parcelmarket/internal/modules/eligibility"
	"parcelmarket/internal/pkg/apperr"
	"parcelmarket/internal/pkg/processor"
	"parcelmarket/internal/pkg/processor/processortest"
	"parcelmarket/internal/repository"
	"parcelmarket/internal/testutil"
)

const (
	approvedID int64 = 21
	newUserID  int64 = 22
)

var (
	approved = domain.Actor{UserID: approvedID, Role: domain.RoleUser}
	newUser  = domain.Actor{UserID: newUserID, Role: domain.RoleUser}
)

func newService(t *testing.T) (*Service, *processortest.Mock, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	require.NoError(t, db.Create(&domain.Profile{ID: approvedID, Role: domain.RoleUser, KYCStatus: domain.KYCApproved, PayoutStatus: domain.PayoutInactive}).Error)
	proc := new(processortest.Mock)
	return NewService(repository.NewProfileRepository(db), eligibility.NewGate(true), proc, nil), proc, db
}

func profile(t *testing.T, db *gorm.DB, id int64) domain.Profile {
	t.Helper()
	var p domain.Profile
	require.NoError(t, db.First(&p, id).Error)
	return p
}

func TestCreateAccount_CreatesOnceAndReuses(t *testing.T) {
	svc, proc, db := newService(t)
	proc.On("CreateConnectedAccount", mock.Anything, processor.AccountRequest{
		UserID:         approvedID,
		Email:          "t@example.com",
		Country:        "DE",
		IdempotencyKey: "profile-21-account",
	}).Return(&processor.Account{Ref: "acct_21"}, nil).Once()
	proc.On("CreateOnboardingLink", mock.Anything, "acct_21").Return("https://onboard/acct_21", nil).Twice()

	res, err := svc.CreateAccount(context.Background(), approved, CreateAccountRequest{Email: "t@example.com", Country: "de"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "acct_21", res.AccountRef)
	assert.Equal(t, "https://onboard/acct_21", res.OnboardingURL)

	res, err = svc.CreateAccount(context.Background(), approved, CreateAccountRequest{})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, "acct_21", res.AccountRef)

	p := profile(t, db, approvedID)
	assert.Equal(t, "acct_21", p.PayoutAccount())
	assert.Equal(t, "DE", p.Country)
	proc.AssertExpectations(t)
}

func TestCreateAccount_RequiresKYC(t *testing.T) {
	svc, proc, _ := newService(t)

	_, err := svc.CreateAccount(context.Background(), newUser, CreateAccountRequest{})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, eligibility.ReasonKYCNotApproved, e.Code)
	proc.AssertNotCalled(t, "CreateConnectedAccount", mock.Anything, mock.Anything)
}

func TestCreateAccount_ProcessorFailureIsExternal(t *testing.T) {
	svc, proc, db := newService(t)
	proc.On("CreateConnectedAccount", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	_, err := svc.CreateAccount(context.Background(), approved, CreateAccountRequest{})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindExternal, e.Kind)
	assert.True(t, e.Retryable)
	p := profile(t, db, approvedID)
	assert.Empty(t, p.PayoutAccount())
}

func TestAccountStatus_SyncsPayoutStatus(t *testing.T) {
	svc, proc, db := newService(t)

	_, err := svc.AccountStatus(context.Background(), approved)
	assert.ErrorIs(t, err, ErrNoPayoutAccount)

	require.NoError(t, db.Model(&domain.Profile{}).Where("id = ?", approvedID).Update("payout_account_ref", "acct_21").Error)
	proc.On("GetAccountStatus", mock.Anything, "acct_21").
		Return(&processor.AccountStatus{Ref: "acct_21", PayoutsEnabled: true}, nil).Once()

	res, err := svc.AccountStatus(context.Background(), approved)
	require.NoError(t, err)
	assert.True(t, res.PayoutsEnabled)
	assert.Equal(t, domain.PayoutActive, res.PayoutStatus)
	assert.NotNil(t, res.Requirements)
	assert.Equal(t, domain.PayoutActive, profile(t, db, approvedID).PayoutStatus)
}

func TestStartKYC(t *testing.T) {
	svc, proc, db := newService(t)

	res, err := svc.StartKYC(context.Background(), approved, "")
	require.NoError(t, err)
	assert.True(t, res.AlreadyApproved)

	proc.On("CreateVerificationSession", mock.Anything, mock.MatchedBy(func(r processor.VerificationRequest) bool {
		return r.UserID == newUserID && strings.HasPrefix(r.IdempotencyKey, "profile-22-kyc-")
	})).Return(&processor.VerificationSession{Ref: "vs_22", URL: "https://verify/vs_22"}, nil).Once()

	res, err = svc.StartKYC(context.Background(), newUser, "https://app/kyc/done")
	require.NoError(t, err)
	assert.Equal(t, domain.KYCPending, res.KYCStatus)
	assert.Equal(t, "https://verify/vs_22", res.URL)

	p := profile(t, db, newUserID)
	assert.Equal(t, domain.KYCPending, p.KYCStatus)
	assert.Equal(t, "vs_22", p.KYCSessionRef)
	proc.AssertExpectations(t)
}

func TestHandler_Me(t *testing.T) {
	svc, _, _ := newService(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", approvedID)
		c.Set("role", "user")
		c.Next()
	})
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/profiles/me", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := w.Body.String()
	assert.Contains(t, body, `"pay":{"allowed":true}`)
	assert.Contains(t, body, `"receive_payout":{"allowed":false,"reason":"payout_not_active"}`)
}

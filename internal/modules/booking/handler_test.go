package booking

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(f *fixture, userID int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Set("role", "user")
		c.Next()
	})
	NewHandler(f.svc).RegisterRoutes(r.Group("/api/v1"))
	return r
}

type envelope struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Error   struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Field   string         `json:"field"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func do(t *testing.T, r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func TestHandler_CreateBooking(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f, senderID)

	w, env := do(t, r, http.MethodPost, "/api/v1/bookings",
		`{"announcement_id":`+itoa(f.ann.ID)+`,"weight_kg":"5","declared_value":10000,"insurance":true}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, env.Success)

	b := env.Data["booking"].(map[string]any)
	assert.Equal(t, "pending", b["status"])
	assert.Equal(t, float64(5950), b["total_amount"])
	assert.Equal(t, "5", b["weight_kg"])
}

func TestHandler_CreateBooking_RejectsSubGramWeight(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f, senderID)

	w, env := do(t, r, http.MethodPost, "/api/v1/bookings",
		`{"announcement_id":`+itoa(f.ann.ID)+`,"weight_kg":1.2345}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Equal(t, "weight_kg", env.Error.Field)
}

func TestHandler_CreateBooking_RejectsOversizedWeight(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f, senderID)

	for _, kg := range []string{`"1000.001"`, `"18446744073709551.617"`, `1e30`} {
		w, env := do(t, r, http.MethodPost, "/api/v1/bookings",
			`{"announcement_id":`+itoa(f.ann.ID)+`,"weight_kg":`+kg+`}`)
		assert.Equal(t, http.StatusBadRequest, w.Code, kg)
		assert.Equal(t, "VALIDATION_ERROR", env.Error.Code, kg)
		assert.Equal(t, "weight_kg", env.Error.Field, kg)
		assert.Equal(t, "weight must not exceed 1000 kg", env.Error.Message, kg)
	}
	assert.Zero(t, f.reserved(t))
}

func TestHandler_CreateBooking_CapacityConflict(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f, senderID)

	w, env := do(t, r, http.MethodPost, "/api/v1/bookings",
		`{"announcement_id":`+itoa(f.ann.ID)+`,"weight_kg":"12.5"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CAPACITY_EXCEEDED", env.Error.Code)
	assert.Equal(t, float64(10_000), env.Error.Details["remaining_grams"])
}

func TestHandler_GetBooking_NotParticipant(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, 1_000)

	w, env := do(t, newTestRouter(f, strangerID), http.MethodGet, "/api/v1/bookings/"+itoa(b.ID), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "NOT_PARTICIPANT", env.Error.Code)

	w, env = do(t, newTestRouter(f, senderID), http.MethodGet, "/api/v1/bookings/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ID", env.Error.Code)
}

func TestHandler_CancelWithoutBody(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, 1_000)

	w, env := do(t, newTestRouter(f, senderID), http.MethodPost, "/api/v1/bookings/"+itoa(b.ID)+"/cancel", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "cancelled", env.Data["booking"].(map[string]any)["status"])
}

func TestHandler_DisputeRequiresReason(t *testing.T) {
	f := newFixture(t)
	b := f.create(t, 1_000)

	w, env := do(t, newTestRouter(f, senderID), http.MethodPost, "/api/v1/bookings/"+itoa(b.ID)+"/dispute", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "reason", env.Error.Field)
}

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("weight_kg", "must be positive"), http.StatusBadRequest},
		{Authorization("kyc_not_approved", "kyc required"), http.StatusForbidden},
		{NotFound("BOOKING_NOT_FOUND", "booking not found"), http.StatusNotFound},
		{Capacity(5000, 1000), http.StatusConflict},
		{State("INVALID_TRANSITION", "nope"), http.StatusConflict},
		{External("create hold", true, errors.New("timeout")), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), tc.err.Error())
	}
}

func TestAsThroughWrapping(t *testing.T) {
	base := Capacity(5000, 1000)
	wrapped := fmt.Errorf("reserve: %w", base)

	e, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindCapacity, e.Kind)
	assert.Equal(t, int64(1000), e.Details["remaining_grams"])
	assert.True(t, IsKind(wrapped, KindCapacity))
}

func TestIsMatchesKindAndCode(t *testing.T) {
	sentinel := State("BOOKING_DISPUTED", "booking is disputed")
	err := fmt.Errorf("wrap: %w", State("BOOKING_DISPUTED", "other message"))

	assert.True(t, errors.Is(err, sentinel))
	assert.False(t, errors.Is(err, State("INVALID_TRANSITION", "")))
}

func TestExternalUnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := External("release", true, cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, err.Retryable)
}

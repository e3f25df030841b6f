package processor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"parcelmarket/internal/pkg/processor"
	"parcelmarket/internal/pkg/processor/processortest"
)

func TestResilientOpensAfterConsecutiveFailures(t *testing.T) {
	m := new(processortest.Mock)
	m.On("CreateHold", mock.Anything, mock.Anything).Return(nil, errors.New("503 from upstream")).Times(2)

	r := processor.NewResilient(m, processor.ResilienceConfig{ConsecutiveFailures: 2, OpenTimeout: time.Minute}, nil)
	for i := 0; i < 2; i++ {
		_, err := r.CreateHold(context.Background(), processor.HoldRequest{Amount: 100})
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, r.State())

	_, err := r.CreateHold(context.Background(), processor.HoldRequest{Amount: 100})
	assert.ErrorIs(t, err, processor.ErrUnavailable)
	assert.True(t, processor.IsRetryable(err))
	m.AssertNumberOfCalls(t, "CreateHold", 2)
}

func TestResilientDeclinesDoNotTrip(t *testing.T) {
	m := new(processortest.Mock)
	m.On("CreateHold", mock.Anything, mock.Anything).Return(nil, processor.ErrDeclined)

	r := processor.NewResilient(m, processor.ResilienceConfig{ConsecutiveFailures: 1, OpenTimeout: time.Minute}, nil)
	for i := 0; i < 3; i++ {
		_, err := r.CreateHold(context.Background(), processor.HoldRequest{Amount: 100})
		assert.ErrorIs(t, err, processor.ErrDeclined)
		assert.False(t, processor.IsRetryable(err))
	}
	assert.Equal(t, gobreaker.StateClosed, r.State())
}

func TestResilientAppliesTimeout(t *testing.T) {
	m := new(processortest.Mock)
	m.On("Refund", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
		}).
		Return(&processor.RefundResult{Ref: "re_1"}, nil)

	r := processor.NewResilient(m, processor.ResilienceConfig{Timeout: time.Second}, nil)
	res, err := r.Refund(context.Background(), processor.RefundRequest{HoldRef: "h1"})
	require.NoError(t, err)
	assert.Equal(t, "re_1", res.Ref)
}

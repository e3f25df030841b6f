package sandbox

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parcelmarket/internal/pkg/processor"
)

type recorder struct {
	mu     sync.Mutex
	events []processor.Event
	sigs   []string
	raw    [][]byte
}

func (r *recorder) deliver(payload []byte, sig string) {
	var evt processor.Event
	_ = json.Unmarshal(payload, &evt)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	r.sigs = append(r.sigs, sig)
	r.raw = append(r.raw, payload)
}

func openTestSandbox(t *testing.T, cfg Config) (*Sandbox, *recorder) {
	t.Helper()
	cfg.Path = filepath.Join(t.TempDir(), "sandbox.db")
	if cfg.WebhookSecret == "" {
		cfg.WebhookSecret = "whsec_test"
	}
	rec := &recorder{}
	s, err := Open(cfg, rec.deliver, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, rec
}

func TestCreateHoldIsIdempotent(t *testing.T) {
	s, rec := openTestSandbox(t, Config{})
	ctx := context.Background()

	h1, err := s.CreateHold(ctx, processor.HoldRequest{Amount: 5950, Currency: "eur", IdempotencyKey: "booking-1-hold"})
	require.NoError(t, err)
	h2, err := s.CreateHold(ctx, processor.HoldRequest{Amount: 5950, Currency: "eur", IdempotencyKey: "booking-1-hold"})
	require.NoError(t, err)

	assert.Equal(t, h1.Ref, h2.Ref)
	s.wg.Wait()
	require.Len(t, rec.events, 1)
	assert.Equal(t, processor.EventHoldSucceeded, rec.events[0].Type)
	assert.Equal(t, h1.Ref, rec.events[0].ObjectRef)
}

func TestCreateHoldDeclinesAboveLimit(t *testing.T) {
	s, _ := openTestSandbox(t, Config{DeclineAbove: 1000})

	_, err := s.CreateHold(context.Background(), processor.HoldRequest{Amount: 1001, Currency: "eur", IdempotencyKey: "k"})
	assert.ErrorIs(t, err, processor.ErrDeclined)
	assert.False(t, processor.IsRetryable(err))
}

func TestReleaseCapturesAndTransfersOnce(t *testing.T) {
	s, _ := openTestSandbox(t, Config{})
	ctx := context.Background()

	acct, err := s.CreateConnectedAccount(ctx, processor.AccountRequest{UserID: 2, IdempotencyKey: "acct-2"})
	require.NoError(t, err)
	hold, err := s.CreateHold(ctx, processor.HoldRequest{Amount: 5950, Currency: "eur", IdempotencyKey: "booking-1-hold"})
	require.NoError(t, err)

	req := processor.ReleaseRequest{HoldRef: hold.Ref, Currency: "eur", TransferAmount: 5000, DestinationAccount: acct.Ref, IdempotencyKey: "booking-1-release"}
	r1, err := s.Release(ctx, req)
	require.NoError(t, err)
	r2, err := s.Release(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, r1.TransferRef, r2.TransferRef)
}

func TestRefundVoidsUncapturedHold(t *testing.T) {
	s, rec := openTestSandbox(t, Config{})
	ctx := context.Background()

	hold, err := s.CreateHold(ctx, processor.HoldRequest{Amount: 100, Currency: "eur", IdempotencyKey: "h"})
	require.NoError(t, err)
	res, err := s.Refund(ctx, processor.RefundRequest{HoldRef: hold.Ref})
	require.NoError(t, err)
	assert.True(t, res.Voided)

	_, err = s.Refund(ctx, processor.RefundRequest{HoldRef: hold.Ref})
	require.NoError(t, err)

	s.wg.Wait()
	var refunds int
	for _, e := range rec.events {
		if e.Type == processor.EventRefundCompleted {
			refunds++
		}
	}
	assert.Equal(t, 1, refunds)
}

func TestParseEventVerifiesSignature(t *testing.T) {
	s, rec := openTestSandbox(t, Config{AutoVerifyIdentity: true})

	_, err := s.CreateVerificationSession(context.Background(), processor.VerificationRequest{UserID: 9, IdempotencyKey: "kyc-9"})
	require.NoError(t, err)
	s.wg.Wait()
	require.Len(t, rec.events, 1)

	evt, err := s.ParseEvent(rec.raw[0], rec.sigs[0])
	require.NoError(t, err)
	assert.Equal(t, processor.EventIdentityVerified, evt.Type)
	assert.Equal(t, int64(9), evt.UserID)

	_, err = s.ParseEvent(append([]byte(" "), rec.raw[0]...), rec.sigs[0])
	assert.ErrorIs(t, err, processor.ErrInvalidSignature)

	_, err = s.ParseEvent(rec.raw[0], "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, processor.ErrInvalidSignature)
}

func TestParseEventRejectsStaleTimestamp(t *testing.T) {
	s, _ := openTestSandbox(t, Config{})
	payload := []byte(`{"id":"evt_1","type":"hold.succeeded","object_ref":"hold_1"}`)
	sig := Sign("whsec_test", payload, time.Now().Add(-time.Hour))

	_, err := s.ParseEvent(payload, sig)
	assert.ErrorIs(t, err, processor.ErrInvalidSignature)
}

func TestAccountStatusAndEnablePayouts(t *testing.T) {
	s, rec := openTestSandbox(t, Config{})
	ctx := context.Background()

	acct, err := s.CreateConnectedAccount(ctx, processor.AccountRequest{UserID: 3, IdempotencyKey: "acct-3"})
	require.NoError(t, err)
	st, err := s.GetAccountStatus(ctx, acct.Ref)
	require.NoError(t, err)
	assert.False(t, st.PayoutsEnabled)
	assert.NotEmpty(t, st.Requirements)

	require.NoError(t, s.EnablePayouts(acct.Ref))
	st, err = s.GetAccountStatus(ctx, acct.Ref)
	require.NoError(t, err)
	assert.True(t, st.PayoutsEnabled)

	s.wg.Wait()
	require.Len(t, rec.events, 1)
	assert.Equal(t, processor.EventAccountUpdated, rec.events[0].Type)
	assert.True(t, rec.events[0].PayoutsEnabled)
}

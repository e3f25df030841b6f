package stripeproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	"parcelmarket/internal/pkg/processor"
)

const testSecret = "whsec_test"

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	p, err := New(Config{SecretKey: "sk_test_x", WebhookSecret: testSecret})
	require.NoError(t, err)
	return p
}

func signed(t *testing.T, body string) ([]byte, string) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: []byte(body), Secret: testSecret})
	return sp.Payload, sp.Header
}

func TestParseEventHoldSucceeded(t *testing.T) {
	payload, header := signed(t, `{"id":"evt_1","object":"event","type":"payment_intent.amount_capturable_updated","created":1700000000,
		"data":{"object":{"id":"pi_123","object":"payment_intent","status":"requires_capture"}}}`)

	evt, err := newTestProcessor(t).ParseEvent(payload, header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", evt.ID)
	assert.Equal(t, processor.EventHoldSucceeded, evt.Type)
	assert.Equal(t, "pi_123", evt.ObjectRef)
}

func TestParseEventHoldFailedCarriesReason(t *testing.T) {
	payload, header := signed(t, `{"id":"evt_2","object":"event","type":"payment_intent.payment_failed","created":1700000000,
		"data":{"object":{"id":"pi_9","object":"payment_intent","last_payment_error":{"message":"Your card was declined."}}}}`)

	evt, err := newTestProcessor(t).ParseEvent(payload, header)
	require.NoError(t, err)
	assert.Equal(t, processor.EventHoldFailed, evt.Type)
	assert.Equal(t, "Your card was declined.", evt.FailureReason)
}

func TestParseEventCanceledByVoidIsRefund(t *testing.T) {
	payload, header := signed(t, `{"id":"evt_6","object":"event","type":"payment_intent.canceled","created":1700000000,
		"data":{"object":{"id":"pi_7","object":"payment_intent","status":"canceled","cancellation_reason":"requested_by_customer"}}}`)

	evt, err := newTestProcessor(t).ParseEvent(payload, header)
	require.NoError(t, err)
	assert.Equal(t, processor.EventRefundCompleted, evt.Type)
	assert.Equal(t, "pi_7", evt.ObjectRef)
}

func TestParseEventLapsedHoldIsExpiry(t *testing.T) {
	for _, reason := range []string{"automatic", "abandoned", ""} {
		t.Run(reason, func(t *testing.T) {
			body := `{"id":"evt_7","object":"event","type":"payment_intent.canceled","created":1700000000,
		"data":{"object":{"id":"pi_8","object":"payment_intent","status":"canceled","metadata":{"booking_id":"12"}`
			if reason != "" {
				body += `,"cancellation_reason":"` + reason + `"`
			}
			payload, header := signed(t, body+`}}}`)

			evt, err := newTestProcessor(t).ParseEvent(payload, header)
			require.NoError(t, err)
			assert.Equal(t, processor.EventHoldExpired, evt.Type)
			assert.Equal(t, "pi_8", evt.ObjectRef)
			assert.Equal(t, int64(12), evt.BookingID)
			assert.Equal(t, reason, evt.FailureReason)
		})
	}
}

func TestParseEventIdentityUsesMetadata(t *testing.T) {
	payload, header := signed(t, `{"id":"evt_3","object":"event","type":"identity.verification_session.verified","created":1700000000,
		"data":{"object":{"id":"vs_1","object":"identity.verification_session","metadata":{"user_id":"42"}}}}`)

	evt, err := newTestProcessor(t).ParseEvent(payload, header)
	require.NoError(t, err)
	assert.Equal(t, processor.EventIdentityVerified, evt.Type)
	assert.Equal(t, int64(42), evt.UserID)
}

func TestParseEventKeepsUnknownType(t *testing.T) {
	payload, header := signed(t, `{"id":"evt_4","object":"event","type":"customer.created","created":1700000000,
		"data":{"object":{"id":"cus_1","object":"customer"}}}`)

	evt, err := newTestProcessor(t).ParseEvent(payload, header)
	require.NoError(t, err)
	assert.False(t, evt.Type.Known())
}

func TestParseEventRejectsBadSignature(t *testing.T) {
	payload, _ := signed(t, `{"id":"evt_5","object":"event","type":"account.updated","data":{"object":{"id":"acct_1"}}}`)

	_, err := newTestProcessor(t).ParseEvent(payload, "t=1,v1=bad")
	assert.ErrorIs(t, err, processor.ErrInvalidSignature)
}

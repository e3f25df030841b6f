// Package processor is the boundary to the external payment processor that holds, releases and
// refunds escrowed funds and onboards travelers for payouts.
package processor

import (
	"context"
	"errors"
	"strconv"
	"time"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook event")
	// ErrDeclined marks a permanent refusal; retrying the same request will not help.
	ErrDeclined = errors.New("declined by processor")
	ErrNotFound = errors.New("processor object not found")
)

type Processor interface {
	CreateHold(ctx context.Context, req HoldRequest) (*Hold, error)
	// Release captures the hold and transfers the traveler's share to their payout account.
	Release(ctx context.Context, req ReleaseRequest) (*ReleaseResult, error)
	// Refund voids an uncaptured hold or refunds a captured one.
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	CreateConnectedAccount(ctx context.Context, req AccountRequest) (*Account, error)
	CreateOnboardingLink(ctx context.Context, accountRef string) (string, error)
	GetAccountStatus(ctx context.Context, accountRef string) (*AccountStatus, error)
	CreateVerificationSession(ctx context.Context, req VerificationRequest) (*VerificationSession, error)
	// ParseEvent authenticates a webhook payload and normalizes it.
	ParseEvent(payload []byte, signature string) (*Event, error)
}

type HoldRequest struct {
	Amount         int64
	Currency       string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

type Hold struct {
	Ref          string `json:"ref"`
	Status       string `json:"status"`
	ClientSecret string `json:"client_secret,omitempty"`
}

type ReleaseRequest struct {
	HoldRef            string
	Currency           string
	TransferAmount     int64
	DestinationAccount string
	TransferGroup      string
	IdempotencyKey     string
}

type ReleaseResult struct {
	TransferRef string `json:"transfer_ref"`
}

type RefundRequest struct {
	HoldRef        string
	Reason         string
	IdempotencyKey string
}

type RefundResult struct {
	Ref    string `json:"ref"`
	Voided bool   `json:"voided"`
}

type AccountRequest struct {
	UserID         int64
	Email          string
	Country        string
	IdempotencyKey string
}

type Account struct {
	Ref string `json:"ref"`
}

type AccountStatus struct {
	Ref            string   `json:"ref"`
	PayoutsEnabled bool     `json:"payouts_enabled"`
	Requirements   []string `json:"requirements"`
}

type VerificationRequest struct {
	UserID         int64
	ReturnURL      string
	IdempotencyKey string
}

type VerificationSession struct {
	Ref string `json:"ref"`
	URL string `json:"url"`
}

type EventType string

const (
	EventHoldSucceeded   EventType = "hold.succeeded"
	EventHoldFailed      EventType = "hold.failed"
	EventRefundCompleted EventType = "refund.completed"
	// EventHoldExpired is a hold cancelled by the processor or an operator rather than by a void.
	EventHoldExpired           EventType = "hold.expired"
	EventAccountUpdated        EventType = "account.updated"
	EventIdentityVerified      EventType = "identity.verified"
	EventIdentityRequiresInput EventType = "identity.requires_input"
)

func (t EventType) Known() bool {
	switch t {
	case EventHoldSucceeded, EventHoldFailed, EventRefundCompleted, EventHoldExpired, EventAccountUpdated,
		EventIdentityVerified, EventIdentityRequiresInput:
		return true
	}
	return false
}

// Event is a verified processor notification. ObjectRef is the hold, account or session it refers to.
type Event struct {
	ID        string    `json:"id" validate:"required,max=128"`
	Type      EventType `json:"type" validate:"required,max=64"`
	ObjectRef string    `json:"object_ref" validate:"max=128"`
	UserID    int64     `json:"user_id,omitempty" validate:"gte=0"`
	// BookingID comes from hold metadata; it lets a hold event be matched before its ref is stored.
	BookingID      int64     `json:"booking_id,omitempty" validate:"gte=0"`
	FailureReason  string    `json:"failure_reason,omitempty"`
	PayoutsEnabled bool      `json:"payouts_enabled,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// MetadataBookingID is the hold metadata key carrying the booking id.
const MetadataBookingID = "booking_id"

// BookingIDFromMetadata parses the booking id from hold metadata, returning 0 when absent.
func BookingIDFromMetadata(md map[string]string) int64 {
	id, err := strconv.ParseInt(md[MetadataBookingID], 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

// IsRetryable reports whether a failed call may succeed when repeated.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrDeclined) && !errors.Is(err, ErrNotFound)
}

// FailureReason is the user-facing reason for a failed call. Raw processor errors stay in the logs.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDeclined):
		return "payment declined"
	case errors.Is(err, ErrNotFound):
		return "payment could not be found"
	}
	return "payment processor unavailable, please retry"
}

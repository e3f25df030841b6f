// Package stripeproc implements processor.Processor on Stripe: manual-capture PaymentIntents for
// escrow holds, Connect Express accounts and transfers for traveler payouts, and Identity
// verification sessions for KYC.
package stripeproc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"parcelmarket/internal/pkg/processor"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	// RefreshURL and ReturnURL are the onboarding link targets.
	RefreshURL string
	ReturnURL  string
}

type Processor struct {
	api *client.API
	cfg Config
}

var _ processor.Processor = (*Processor)(nil)

func New(cfg Config) (*Processor, error) {
	if cfg.SecretKey == "" || cfg.WebhookSecret == "" {
		return nil, errors.New("stripe secret key and webhook secret are required")
	}
	return &Processor{api: client.New(cfg.SecretKey, nil), cfg: cfg}, nil
}

func (p *Processor) CreateHold(ctx context.Context, req processor.HoldRequest) (*processor.Hold, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(req.Currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Description:   stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, classify(err)
	}
	return &processor.Hold{Ref: pi.ID, Status: string(pi.Status), ClientSecret: pi.ClientSecret}, nil
}

func (p *Processor) Release(ctx context.Context, req processor.ReleaseRequest) (*processor.ReleaseResult, error) {
	getParams := &stripe.PaymentIntentParams{}
	getParams.Context = ctx
	getParams.AddExpand("latest_charge")
	pi, err := p.api.PaymentIntents.Get(req.HoldRef, getParams)
	if err != nil {
		return nil, classify(err)
	}

	if pi.Status == stripe.PaymentIntentStatusRequiresCapture {
		capParams := &stripe.PaymentIntentCaptureParams{}
		capParams.Context = ctx
		capParams.SetIdempotencyKey(req.IdempotencyKey + "-capture")
		if pi, err = p.api.PaymentIntents.Capture(req.HoldRef, capParams); err != nil {
			return nil, classify(err)
		}
	} else if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, fmt.Errorf("%w: payment intent %s is %s", processor.ErrDeclined, pi.ID, pi.Status)
	}

	tParams := &stripe.TransferParams{
		Amount:        stripe.Int64(req.TransferAmount),
		Currency:      stripe.String(req.Currency),
		Destination:   stripe.String(req.DestinationAccount),
		TransferGroup: stripe.String(req.TransferGroup),
	}
	if pi.LatestCharge != nil && pi.LatestCharge.ID != "" {
		tParams.SourceTransaction = stripe.String(pi.LatestCharge.ID)
	}
	tParams.Context = ctx
	tParams.SetIdempotencyKey(req.IdempotencyKey + "-transfer")
	tr, err := p.api.Transfers.New(tParams)
	if err != nil {
		return nil, classify(err)
	}
	return &processor.ReleaseResult{TransferRef: tr.ID}, nil
}

func (p *Processor) Refund(ctx context.Context, req processor.RefundRequest) (*processor.RefundResult, error) {
	getParams := &stripe.PaymentIntentParams{}
	getParams.Context = ctx
	pi, err := p.api.PaymentIntents.Get(req.HoldRef, getParams)
	if err != nil {
		return nil, classify(err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusCanceled:
		return &processor.RefundResult{Ref: pi.ID, Voided: true}, nil
	case stripe.PaymentIntentStatusSucceeded:
		rParams := &stripe.RefundParams{PaymentIntent: stripe.String(pi.ID)}
		rParams.Context = ctx
		rParams.SetIdempotencyKey(req.IdempotencyKey)
		re, err := p.api.Refunds.New(rParams)
		if err != nil {
			return nil, classify(err)
		}
		return &processor.RefundResult{Ref: re.ID}, nil
	default:
		cParams := &stripe.PaymentIntentCancelParams{
			CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonRequestedByCustomer)),
		}
		cParams.Context = ctx
		cParams.SetIdempotencyKey(req.IdempotencyKey)
		if _, err := p.api.PaymentIntents.Cancel(pi.ID, cParams); err != nil {
			return nil, classify(err)
		}
		return &processor.RefundResult{Ref: pi.ID, Voided: true}, nil
	}
}

func (p *Processor) CreateConnectedAccount(ctx context.Context, req processor.AccountRequest) (*processor.Account, error) {
	params := &stripe.AccountParams{
		Type: stripe.String(string(stripe.AccountTypeExpress)),
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	if req.Email != "" {
		params.Email = stripe.String(req.Email)
	}
	if req.Country != "" {
		params.Country = stripe.String(req.Country)
	}
	params.AddMetadata("user_id", strconv.FormatInt(req.UserID, 10))
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	acct, err := p.api.Accounts.New(params)
	if err != nil {
		return nil, classify(err)
	}
	return &processor.Account{Ref: acct.ID}, nil
}

func (p *Processor) CreateOnboardingLink(ctx context.Context, accountRef string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountRef),
		RefreshURL: stripe.String(p.cfg.RefreshURL),
		ReturnURL:  stripe.String(p.cfg.ReturnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx
	link, err := p.api.AccountLinks.New(params)
	if err != nil {
		return "", classify(err)
	}
	return link.URL, nil
}

func (p *Processor) GetAccountStatus(ctx context.Context, accountRef string) (*processor.AccountStatus, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx
	acct, err := p.api.Accounts.GetByID(accountRef, params)
	if err != nil {
		return nil, classify(err)
	}
	st := &processor.AccountStatus{Ref: acct.ID, PayoutsEnabled: acct.PayoutsEnabled, Requirements: []string{}}
	if acct.Requirements != nil && acct.Requirements.CurrentlyDue != nil {
		st.Requirements = acct.Requirements.CurrentlyDue
	}
	return st, nil
}

func (p *Processor) CreateVerificationSession(ctx context.Context, req processor.VerificationRequest) (*processor.VerificationSession, error) {
	params := &stripe.IdentityVerificationSessionParams{
		Type: stripe.String(string(stripe.IdentityVerificationSessionTypeDocument)),
	}
	if req.ReturnURL != "" {
		params.ReturnURL = stripe.String(req.ReturnURL)
	}
	params.AddMetadata("user_id", strconv.FormatInt(req.UserID, 10))
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	vs, err := p.api.IdentityVerificationSessions.New(params)
	if err != nil {
		return nil, classify(err)
	}
	return &processor.VerificationSession{Ref: vs.ID, URL: vs.URL}, nil
}

func (p *Processor) ParseEvent(payload []byte, signature string) (*processor.Event, error) {
	evt, err := webhook.ConstructEventWithOptions(payload, signature, p.cfg.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", processor.ErrInvalidSignature, err)
	}
	return normalize(evt)
}

// normalize maps the Stripe event onto the processor event vocabulary. Event types this
// service does not act on keep their Stripe name so they are logged and acknowledged.
func normalize(evt stripe.Event) (*processor.Event, error) {
	out := &processor.Event{
		ID:        evt.ID,
		Type:      processor.EventType(evt.Type),
		CreatedAt: time.Unix(evt.Created, 0).UTC(),
	}
	if evt.Data == nil {
		return out, nil
	}
	raw := evt.Data.Raw

	switch string(evt.Type) {
	case "payment_intent.amount_capturable_updated":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: %v", processor.ErrMalformedEvent, err)
		}
		out.Type, out.ObjectRef = processor.EventHoldSucceeded, pi.ID
		out.BookingID = processor.BookingIDFromMetadata(pi.Metadata)
	case "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: %v", processor.ErrMalformedEvent, err)
		}
		out.Type, out.ObjectRef = processor.EventHoldFailed, pi.ID
		out.BookingID = processor.BookingIDFromMetadata(pi.Metadata)
		if pi.LastPaymentError != nil {
			out.FailureReason = pi.LastPaymentError.Msg
		}
	case "payment_intent.canceled":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: %v", processor.ErrMalformedEvent, err)
		}
		out.Type, out.ObjectRef = processor.EventRefundCompleted, pi.ID
		out.BookingID = processor.BookingIDFromMetadata(pi.Metadata)
		// Refund voids with requested_by_customer; anything else lapsed or was cancelled elsewhere.
		if pi.CancellationReason != stripe.PaymentIntentCancellationReasonRequestedByCustomer {
			out.Type = processor.EventHoldExpired
			out.FailureReason = string(pi.CancellationReason)
		}
	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(raw, &ch); err != nil {
			return nil, fmt.Errorf("%w: %v", processor.ErrMalformedEvent, err)
		}
		out.Type = processor.EventRefundCompleted
		if ch.PaymentIntent != nil {
			out.ObjectRef = ch.PaymentIntent.ID
		}
	case "account.updated":
		var acct stripe.Account
		if err := json.Unmarshal(raw, &acct); err != nil {
			return nil, fmt.Errorf("%w: %v", processor.ErrMalformedEvent, err)
		}
		out.Type, out.ObjectRef, out.PayoutsEnabled = processor.EventAccountUpdated, acct.ID, acct.PayoutsEnabled
	case "identity.verification_session.verified", "identity.verification_session.requires_input":
		var vs stripe.IdentityVerificationSession
		if err := json.Unmarshal(raw, &vs); err != nil {
			return nil, fmt.Errorf("%w: %v", processor.ErrMalformedEvent, err)
		}
		out.Type = processor.EventIdentityVerified
		if evt.Type == "identity.verification_session.requires_input" {
			out.Type = processor.EventIdentityRequiresInput
			if vs.LastError != nil {
				out.FailureReason = string(vs.LastError.Code)
			}
		}
		out.ObjectRef = vs.ID
		if uid, err := strconv.ParseInt(vs.Metadata["user_id"], 10, 64); err == nil {
			out.UserID = uid
		}
	}
	return out, nil
}

// classify marks card declines and missing objects as permanent; everything else may be retried.
func classify(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return err
	}
	switch {
	case se.Type == stripe.ErrorTypeCard:
		return fmt.Errorf("%w: %s", processor.ErrDeclined, se.Msg)
	case se.HTTPStatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", processor.ErrNotFound, se.Msg)
	case se.HTTPStatusCode == http.StatusBadRequest && se.Type == stripe.ErrorTypeInvalidRequest:
		return fmt.Errorf("%w: %s", processor.ErrDeclined, se.Msg)
	}
	return err
}

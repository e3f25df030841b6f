// Package sandbox is a local payment processor persisted in BoltDB. It mimics the escrow flow of the
// real processor closely enough for local development: manual-capture holds, transfers, voids,
// payout accounts, identity sessions and HMAC-signed webhook events.
package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"parcelmarket/internal/pkg/processor"
)

var (
	bucketHolds       = []byte("holds")
	bucketAccounts    = []byte("accounts")
	bucketSessions    = []byte("sessions")
	bucketIdempotency = []byte("idempotency")
)

const (
	holdRequiresCapture = "requires_capture"
	holdCaptured        = "captured"
	holdCancelled       = "cancelled"
	holdRefunded        = "refunded"
)

type Config struct {
	Path          string
	WebhookSecret string
	BaseURL       string
	// DeclineAbove declines holds whose amount exceeds it. Zero never declines.
	DeclineAbove       int64
	AutoEnablePayouts  bool
	AutoVerifyIdentity bool
}

// Deliver receives every emitted event with its signature header value.
type Deliver func(payload []byte, signature string)

type Sandbox struct {
	db      *bolt.DB
	cfg     Config
	log     *zap.Logger
	deliver Deliver
	now     func() time.Time
	wg      sync.WaitGroup
}

var _ processor.Processor = (*Sandbox)(nil)

type holdRecord struct {
	Ref         string            `json:"ref"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Status      string            `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	TransferRef string            `json:"transfer_ref,omitempty"`
	RefundRef   string            `json:"refund_ref,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

type accountRecord struct {
	Ref            string    `json:"ref"`
	UserID         int64     `json:"user_id"`
	Email          string    `json:"email,omitempty"`
	Country        string    `json:"country,omitempty"`
	PayoutsEnabled bool      `json:"payouts_enabled"`
	CreatedAt      time.Time `json:"created_at"`
}

type sessionRecord struct {
	Ref       string    `json:"ref"`
	UserID    int64     `json:"user_id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// Open opens (or creates) the sandbox database. deliver may be nil, in which case events are only logged.
func Open(cfg Config, deliver Deliver, log *zap.Logger) (*Sandbox, error) {
	if cfg.WebhookSecret == "" {
		return nil, errors.New("sandbox webhook secret is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	db, err := bolt.Open(cfg.Path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open sandbox db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketHolds, bucketAccounts, bucketSessions, bucketIdempotency} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Sandbox{db: db, cfg: cfg, log: log.Named("sandbox"), deliver: deliver, now: time.Now}, nil
}

// Close waits for in-flight deliveries and releases the database file lock.
func (s *Sandbox) Close() error {
	s.wg.Wait()
	return s.db.Close()
}

func (s *Sandbox) CreateHold(ctx context.Context, req processor.HoldRequest) (*processor.Hold, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", processor.ErrDeclined)
	}
	if s.cfg.DeclineAbove > 0 && req.Amount > s.cfg.DeclineAbove {
		return nil, fmt.Errorf("%w: card_declined", processor.ErrDeclined)
	}

	var rec holdRecord
	created := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		if ref := tx.Bucket(bucketIdempotency).Get(idemKey("hold", req.IdempotencyKey)); ref != nil {
			return getJSON(tx.Bucket(bucketHolds), ref, &rec)
		}
		now := s.now().UTC()
		rec = holdRecord{
			Ref:       "hold_" + uuid.NewString(),
			Amount:    req.Amount,
			Currency:  req.Currency,
			Status:    holdRequiresCapture,
			Metadata:  req.Metadata,
			CreatedAt: now,
			UpdatedAt: now,
		}
		created = true
		if err := putJSON(tx.Bucket(bucketHolds), []byte(rec.Ref), rec); err != nil {
			return err
		}
		return putIdem(tx, "hold", req.IdempotencyKey, rec.Ref)
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.emit(processor.Event{
			Type:      processor.EventHoldSucceeded,
			ObjectRef: rec.Ref,
			BookingID: processor.BookingIDFromMetadata(rec.Metadata),
		})
	}
	return &processor.Hold{Ref: rec.Ref, Status: rec.Status, ClientSecret: rec.Ref + "_secret"}, nil
}

func (s *Sandbox) Release(ctx context.Context, req processor.ReleaseRequest) (*processor.ReleaseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out processor.ReleaseResult
	err := s.db.Update(func(tx *bolt.Tx) error {
		if ref := tx.Bucket(bucketIdempotency).Get(idemKey("release", req.IdempotencyKey)); ref != nil {
			out.TransferRef = string(ref)
			return nil
		}
		holds := tx.Bucket(bucketHolds)
		var rec holdRecord
		if err := getJSON(holds, []byte(req.HoldRef), &rec); err != nil {
			return err
		}
		switch rec.Status {
		case holdRequiresCapture:
		case holdCaptured:
			if rec.TransferRef != "" {
				out.TransferRef = rec.TransferRef
				return nil
			}
		default:
			return fmt.Errorf("%w: hold %s is %s", processor.ErrDeclined, rec.Ref, rec.Status)
		}
		if req.TransferAmount > rec.Amount {
			return fmt.Errorf("%w: transfer exceeds captured amount", processor.ErrDeclined)
		}
		if tx.Bucket(bucketAccounts).Get([]byte(req.DestinationAccount)) == nil {
			return fmt.Errorf("%w: destination account %s", processor.ErrNotFound, req.DestinationAccount)
		}
		rec.Status = holdCaptured
		rec.TransferRef = "tr_" + uuid.NewString()
		rec.UpdatedAt = s.now().UTC()
		out.TransferRef = rec.TransferRef
		if err := putJSON(holds, []byte(rec.Ref), rec); err != nil {
			return err
		}
		return putIdem(tx, "release", req.IdempotencyKey, rec.TransferRef)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Sandbox) Refund(ctx context.Context, req processor.RefundRequest) (*processor.RefundResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec holdRecord
	changed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		holds := tx.Bucket(bucketHolds)
		if err := getJSON(holds, []byte(req.HoldRef), &rec); err != nil {
			return err
		}
		switch rec.Status {
		case holdRequiresCapture:
			rec.Status = holdCancelled
		case holdCaptured:
			rec.Status = holdRefunded
		default:
			return nil
		}
		changed = true
		rec.RefundRef = "re_" + uuid.NewString()
		rec.UpdatedAt = s.now().UTC()
		return putJSON(holds, []byte(rec.Ref), rec)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.emit(processor.Event{
			Type:      processor.EventRefundCompleted,
			ObjectRef: rec.Ref,
			BookingID: processor.BookingIDFromMetadata(rec.Metadata),
		})
	}
	return &processor.RefundResult{Ref: rec.RefundRef, Voided: rec.Status == holdCancelled}, nil
}

func (s *Sandbox) CreateConnectedAccount(ctx context.Context, req processor.AccountRequest) (*processor.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec accountRecord
	created := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		accounts := tx.Bucket(bucketAccounts)
		if ref := tx.Bucket(bucketIdempotency).Get(idemKey("account", req.IdempotencyKey)); ref != nil {
			return getJSON(accounts, ref, &rec)
		}
		rec = accountRecord{
			Ref:            "acct_" + uuid.NewString(),
			UserID:         req.UserID,
			Email:          req.Email,
			Country:        req.Country,
			PayoutsEnabled: s.cfg.AutoEnablePayouts,
			CreatedAt:      s.now().UTC(),
		}
		created = true
		if err := putJSON(accounts, []byte(rec.Ref), rec); err != nil {
			return err
		}
		return putIdem(tx, "account", req.IdempotencyKey, rec.Ref)
	})
	if err != nil {
		return nil, err
	}
	if created && rec.PayoutsEnabled {
		s.emit(processor.Event{Type: processor.EventAccountUpdated, ObjectRef: rec.Ref, PayoutsEnabled: true})
	}
	return &processor.Account{Ref: rec.Ref}, nil
}

func (s *Sandbox) CreateOnboardingLink(ctx context.Context, accountRef string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	err := s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketAccounts).Get([]byte(accountRef)) == nil {
			return processor.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/sandbox/onboarding/%s", s.cfg.BaseURL, accountRef), nil
}

func (s *Sandbox) GetAccountStatus(ctx context.Context, accountRef string) (*processor.AccountStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec accountRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketAccounts), []byte(accountRef), &rec)
	})
	if err != nil {
		return nil, err
	}
	st := &processor.AccountStatus{Ref: rec.Ref, PayoutsEnabled: rec.PayoutsEnabled, Requirements: []string{}}
	if !rec.PayoutsEnabled {
		st.Requirements = []string{"external_account", "tos_acceptance.date"}
	}
	return st, nil
}

// EnablePayouts completes onboarding for an account and emits account.updated, as the real
// processor does once the traveler finishes the hosted flow.
func (s *Sandbox) EnablePayouts(accountRef string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		accounts := tx.Bucket(bucketAccounts)
		var rec accountRecord
		if err := getJSON(accounts, []byte(accountRef), &rec); err != nil {
			return err
		}
		rec.PayoutsEnabled = true
		return putJSON(accounts, []byte(rec.Ref), rec)
	})
	if err != nil {
		return err
	}
	s.emit(processor.Event{Type: processor.EventAccountUpdated, ObjectRef: accountRef, PayoutsEnabled: true})
	return nil
}

func (s *Sandbox) CreateVerificationSession(ctx context.Context, req processor.VerificationRequest) (*processor.VerificationSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec sessionRecord
	created := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		sessions := tx.Bucket(bucketSessions)
		if ref := tx.Bucket(bucketIdempotency).Get(idemKey("session", req.IdempotencyKey)); ref != nil {
			return getJSON(sessions, ref, &rec)
		}
		ref := "vs_" + uuid.NewString()
		rec = sessionRecord{
			Ref:       ref,
			UserID:    req.UserID,
			URL:       fmt.Sprintf("%s/sandbox/identity/%s", s.cfg.BaseURL, ref),
			CreatedAt: s.now().UTC(),
		}
		created = true
		if err := putJSON(sessions, []byte(rec.Ref), rec); err != nil {
			return err
		}
		return putIdem(tx, "session", req.IdempotencyKey, rec.Ref)
	})
	if err != nil {
		return nil, err
	}
	if created && s.cfg.AutoVerifyIdentity {
		s.emit(processor.Event{Type: processor.EventIdentityVerified, ObjectRef: rec.Ref, UserID: rec.UserID})
	}
	return &processor.VerificationSession{Ref: rec.Ref, URL: rec.URL}, nil
}

func (s *Sandbox) emit(evt processor.Event) {
	evt.ID = "evt_" + uuid.NewString()
	evt.CreatedAt = s.now().UTC()
	payload, err := json.Marshal(evt)
	if err != nil {
		s.log.Error("marshal sandbox event", zap.Error(err))
		return
	}
	sig := Sign(s.cfg.WebhookSecret, payload, evt.CreatedAt)
	s.log.Debug("sandbox event", zap.String("id", evt.ID), zap.String("type", string(evt.Type)), zap.String("object_ref", evt.ObjectRef))
	if s.deliver == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliver(payload, sig)
	}()
}

func idemKey(scope, key string) []byte {
	return []byte(scope + ":" + key)
}

func putIdem(tx *bolt.Tx, scope, key, ref string) error {
	if key == "" {
		return nil
	}
	return tx.Bucket(bucketIdempotency).Put(idemKey(scope, key), []byte(ref))
}

func getJSON(b *bolt.Bucket, key []byte, v any) error {
	raw := b.Get(key)
	if raw == nil {
		return fmt.Errorf("%w: %s", processor.ErrNotFound, key)
	}
	return json.Unmarshal(raw, v)
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, raw)
}

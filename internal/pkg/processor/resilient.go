package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var ErrUnavailable = errors.New("payment processor unavailable")

type ResilienceConfig struct {
	Timeout             time.Duration
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// Resilient bounds every outbound call with a timeout and fails fast through a circuit breaker
// once the processor keeps failing. Declines do not count as failures.
type Resilient struct {
	next    Processor
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
	log     *zap.Logger
}

func NewResilient(next Processor, cfg ResilienceConfig, log *zap.Logger) *Resilient {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	r := &Resilient{next: next, timeout: cfg.Timeout, log: log.Named("processor")}
	r.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "payment-processor",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.log.Warn("circuit breaker state changed", zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return r
}

func (r *Resilient) State() gobreaker.State { return r.cb.State() }

func call[T any](r *Resilient, ctx context.Context, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	out, err := r.cb.Execute(func() (interface{}, error) {
		cctx := ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
		return fn(cctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
		}
		r.log.Warn("processor call failed", zap.String("op", op), zap.Bool("retryable", IsRetryable(err)), zap.Error(err))
		return zero, err
	}
	return out.(T), nil
}

func (r *Resilient) CreateHold(ctx context.Context, req HoldRequest) (*Hold, error) {
	return call(r, ctx, "create_hold", func(ctx context.Context) (*Hold, error) { return r.next.CreateHold(ctx, req) })
}

func (r *Resilient) Release(ctx context.Context, req ReleaseRequest) (*ReleaseResult, error) {
	return call(r, ctx, "release", func(ctx context.Context) (*ReleaseResult, error) { return r.next.Release(ctx, req) })
}

func (r *Resilient) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	return call(r, ctx, "refund", func(ctx context.Context) (*RefundResult, error) { return r.next.Refund(ctx, req) })
}

func (r *Resilient) CreateConnectedAccount(ctx context.Context, req AccountRequest) (*Account, error) {
	return call(r, ctx, "create_account", func(ctx context.Context) (*Account, error) { return r.next.CreateConnectedAccount(ctx, req) })
}

func (r *Resilient) CreateOnboardingLink(ctx context.Context, accountRef string) (string, error) {
	return call(r, ctx, "onboarding_link", func(ctx context.Context) (string, error) { return r.next.CreateOnboardingLink(ctx, accountRef) })
}

func (r *Resilient) GetAccountStatus(ctx context.Context, accountRef string) (*AccountStatus, error) {
	return call(r, ctx, "account_status", func(ctx context.Context) (*AccountStatus, error) { return r.next.GetAccountStatus(ctx, accountRef) })
}

func (r *Resilient) CreateVerificationSession(ctx context.Context, req VerificationRequest) (*VerificationSession, error) {
	return call(r, ctx, "verification_session", func(ctx context.Context) (*VerificationSession, error) {
		return r.next.CreateVerificationSession(ctx, req)
	})
}

// ParseEvent is local signature work and bypasses the breaker.
func (r *Resilient) ParseEvent(payload []byte, signature string) (*Event, error) {
	return r.next.ParseEvent(payload, signature)
}

// Package processortest provides a testify mock of processor.Processor.
package processortest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"parcelmarket/internal/pkg/processor"
)

type Mock struct {
	mock.Mock
}

var _ processor.Processor = (*Mock)(nil)

func (m *Mock) CreateHold(ctx context.Context, req processor.HoldRequest) (*processor.Hold, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.Hold), args.Error(1)
}

func (m *Mock) Release(ctx context.Context, req processor.ReleaseRequest) (*processor.ReleaseResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.ReleaseResult), args.Error(1)
}

func (m *Mock) Refund(ctx context.Context, req processor.RefundRequest) (*processor.RefundResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.RefundResult), args.Error(1)
}

func (m *Mock) CreateConnectedAccount(ctx context.Context, req processor.AccountRequest) (*processor.Account, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.Account), args.Error(1)
}

func (m *Mock) CreateOnboardingLink(ctx context.Context, accountRef string) (string, error) {
	args := m.Called(ctx, accountRef)
	return args.String(0), args.Error(1)
}

func (m *Mock) GetAccountStatus(ctx context.Context, accountRef string) (*processor.AccountStatus, error) {
	args := m.Called(ctx, accountRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.AccountStatus), args.Error(1)
}

func (m *Mock) CreateVerificationSession(ctx context.Context, req processor.VerificationRequest) (*processor.VerificationSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.VerificationSession), args.Error(1)
}

func (m *Mock) ParseEvent(payload []byte, signature string) (*processor.Event, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.Event), args.Error(1)
}

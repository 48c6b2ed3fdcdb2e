package mocks

import (
	"context"

	"github.com/amirasaad/topupledger/pkg/provider/payment"
	"github.com/stretchr/testify/mock"
)

// MockGateway is a mock of payment.Gateway.
type MockGateway struct {
	mock.Mock
}

// NewMockGateway creates a mock and asserts its expectations at cleanup.
func NewMockGateway(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockGateway {
	m := &MockGateway{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockGateway) Charge(ctx context.Context, req *payment.ChargeRequest) (*payment.ChargeResult, error) {
	args := m.Called(ctx, req)
	var r *payment.ChargeResult
	if v := args.Get(0); v != nil {
		r = v.(*payment.ChargeResult)
	}
	return r, args.Error(1)
}

func (m *MockGateway) HandleWebhook(ctx context.Context, payload []byte, signature string) (*payment.WebhookResult, error) {
	args := m.Called(ctx, payload, signature)
	var r *payment.WebhookResult
	if v := args.Get(0); v != nil {
		r = v.(*payment.WebhookResult)
	}
	return r, args.Error(1)
}

func (m *MockGateway) Name() string {
	return m.Called().String(0)
}

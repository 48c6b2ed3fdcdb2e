package mocks

import (
	"context"

	"github.com/amirasaad/topupledger/pkg/provider/onchain"
	"github.com/stretchr/testify/mock"
)

// MockContract is a mock of onchain.Contract.
type MockContract struct {
	mock.Mock
}

// NewMockContract creates a mock and asserts its expectations at cleanup.
func NewMockContract(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockContract {
	m := &MockContract{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockContract) Submit(ctx context.Context, req *onchain.SubmitRequest) (*onchain.SubmitReceipt, error) {
	args := m.Called(ctx, req)
	var r *onchain.SubmitReceipt
	if v := args.Get(0); v != nil {
		r = v.(*onchain.SubmitReceipt)
	}
	return r, args.Error(1)
}

func (m *MockContract) Confirm(ctx context.Context, requestID string, success bool, message string) error {
	args := m.Called(ctx, requestID, success, message)
	return args.Error(0)
}

func (m *MockContract) Health(ctx context.Context) onchain.Health {
	args := m.Called(ctx)
	return args.Get(0).(onchain.Health)
}

// Package mocks holds testify mocks of the repository and provider interfaces.
package mocks

import (
	"context"

	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/stretchr/testify/mock"
)

// MockAuditRepository is a mock of audit.Repository.
type MockAuditRepository struct {
	mock.Mock
}

// NewMockAuditRepository creates a mock and asserts its expectations at cleanup.
func NewMockAuditRepository(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockAuditRepository {
	m := &MockAuditRepository{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockAuditRepository) Append(ctx context.Context, e *domain.AuditEntry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockAuditRepository) List(ctx context.Context, f domain.AuditFilter) ([]*domain.AuditEntry, error) {
	args := m.Called(ctx, f)
	var out []*domain.AuditEntry
	if v := args.Get(0); v != nil {
		out = v.([]*domain.AuditEntry)
	}
	return out, args.Error(1)
}

package saga

import (
	"context"
	"time"

	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/google/uuid"
)

// Repository persists top-up sagas.
type Repository interface {
	// Create fails with domain.ErrAlreadyExists when the correlation key is taken.
	Create(ctx context.Context, s *domain.TopUpSaga) error
	Get(ctx context.Context, id uuid.UUID) (*domain.TopUpSaga, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.TopUpSaga, error)
	FindByCorrelationKey(ctx context.Context, key string) (*domain.TopUpSaga, error)
	FindByOnChainRequestID(ctx context.Context, requestID string) (*domain.TopUpSaga, error)
	FindByGatewayTxnID(ctx context.Context, txnID string) (*domain.TopUpSaga, error)
	Update(ctx context.Context, s *domain.TopUpSaga) error
	// ListByState returns sagas in one of states last updated before olderThan.
	// A zero olderThan disables the age filter.
	ListByState(ctx context.Context, states []domain.SagaState, olderThan time.Time, limit int) ([]*domain.TopUpSaga, error)
}

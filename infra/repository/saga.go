package repository

import (
	"context"
	"time"

	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/amirasaad/topupledger/pkg/repository/saga"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type sagaRepository struct {
	db *gorm.DB
}

// NewSagaRepository creates the top-up saga store.
func NewSagaRepository(db *gorm.DB) saga.Repository {
	return &sagaRepository{db: db}
}

func (r *sagaRepository) Create(ctx context.Context, s *domain.TopUpSaga) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(sagaToModel(s)).Error
	})
}

func (r *sagaRepository) Get(ctx context.Context, id uuid.UUID) (*domain.TopUpSaga, error) {
	return r.findOne(r.db.WithContext(ctx), "id = ?", id)
}

func (r *sagaRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.TopUpSaga, error) {
	return r.findOne(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), "id = ?", id)
}

func (r *sagaRepository) FindByCorrelationKey(ctx context.Context, key string) (*domain.TopUpSaga, error) {
	return r.findOne(r.db.WithContext(ctx), "correlation_key = ?", key)
}

func (r *sagaRepository) FindByOnChainRequestID(ctx context.Context, requestID string) (*domain.TopUpSaga, error) {
	return r.findOne(r.db.WithContext(ctx), "on_chain_request_id = ?", requestID)
}

func (r *sagaRepository) FindByGatewayTxnID(ctx context.Context, txnID string) (*domain.TopUpSaga, error) {
	return r.findOne(r.db.WithContext(ctx), "gateway_txn_id = ?", txnID)
}

func (r *sagaRepository) findOne(db *gorm.DB, query string, arg any) (*domain.TopUpSaga, error) {
	var m TopUpSaga
	if err := WrapError(func() error {
		return db.Where(query, arg).First(&m).Error
	}); err != nil {
		return nil, err
	}
	return sagaFromModel(&m), nil
}

func (r *sagaRepository) Update(ctx context.Context, s *domain.TopUpSaga) error {
	m := sagaToModel(s)
	return WrapError(func() error {
		res := r.db.WithContext(ctx).Model(&TopUpSaga{}).
			Where("id = ?", s.ID).
			Select("*").
			Omit("id", "created_at").
			Updates(m)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *sagaRepository) ListByState(
	ctx context.Context,
	states []domain.SagaState,
	olderThan time.Time,
	limit int,
) ([]*domain.TopUpSaga, error) {
	names := make([]string, 0, len(states))
	for _, s := range states {
		names = append(names, string(s))
	}
	q := r.db.WithContext(ctx).Where("state IN ?", names)
	if !olderThan.IsZero() {
		q = q.Where("updated_at < ?", olderThan)
	}
	if limit <= 0 {
		limit = 100
	}

	var rows []TopUpSaga
	if err := WrapError(func() error {
		return q.Order("updated_at ASC").Limit(limit).Find(&rows).Error
	}); err != nil {
		return nil, err
	}
	out := make([]*domain.TopUpSaga, 0, len(rows))
	for i := range rows {
		out = append(out, sagaFromModel(&rows[i]))
	}
	return out, nil
}

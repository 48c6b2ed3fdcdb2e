package repository

import (
	"context"
	"time"

	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/amirasaad/topupledger/pkg/repository/transaction"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates the gorm transaction repository.
func NewTransactionRepository(db *gorm.DB) transaction.Repository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(ctx context.Context, t *domain.Transaction) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(transactionToModel(t)).Error
	})
}

func (r *transactionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return r.get(r.db.WithContext(ctx), id)
}

func (r *transactionRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return r.get(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *transactionRepository) get(db *gorm.DB, id uuid.UUID) (*domain.Transaction, error) {
	var m Transaction
	if err := WrapError(func() error {
		return db.Where("id = ?", id).First(&m).Error
	}); err != nil {
		return nil, err
	}
	return transactionFromModel(&m), nil
}

func (r *transactionRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status domain.TransactionStatus,
	at time.Time,
) error {
	return WrapError(func() error {
		res := r.db.WithContext(ctx).Model(&Transaction{}).Where("id = ?", id).
			UpdateColumns(map[string]any{"status": string(status), "updated_at": at})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *transactionRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []Transaction
	if err := WrapError(func() error {
		return r.db.WithContext(ctx).
			Where("sender_account_id = ? OR receiver_account_id = ?", accountID, accountID).
			Order("created_at DESC, chain_seq DESC").
			Limit(limit).
			Find(&rows).Error
	}); err != nil {
		return nil, err
	}
	out := make([]*domain.Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, transactionFromModel(&rows[i]))
	}
	return out, nil
}

const chainHeadID = 1

type chainHeadRepository struct {
	db *gorm.DB
}

// NewChainHeadRepository creates the repository guarding the chain tail row.
func NewChainHeadRepository(db *gorm.DB) transaction.ChainHeadRepository {
	return &chainHeadRepository{db: db}
}

// Lock selects the head row FOR UPDATE, creating the genesis row on first use.
// On SQLite the locking clause is dropped by the dialect and the single-writer
// database lock gives the same guarantee.
func (r *chainHeadRepository) Lock(ctx context.Context) (*transaction.ChainHead, error) {
	db := r.db.WithContext(ctx)
	genesis := ChainHead{ID: chainHeadID, Hash: "", UpdatedAt: time.Now().UTC()}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&genesis).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}

	var m ChainHead
	if err := WrapError(func() error {
		return db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", chainHeadID).Take(&m).Error
	}); err != nil {
		return nil, err
	}
	return &transaction.ChainHead{Seq: m.Seq, Hash: m.Hash}, nil
}

// Advance moves the head only if nobody else moved it since Lock.
func (r *chainHeadRepository) Advance(ctx context.Context, head transaction.ChainHead) error {
	res := r.db.WithContext(ctx).Model(&ChainHead{}).
		Where("id = ? AND seq = ?", chainHeadID, head.Seq-1).
		UpdateColumns(map[string]any{"seq": head.Seq, "hash": head.Hash, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return MapGormErrorToDomain(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrChainLinkConflict
	}
	return nil
}

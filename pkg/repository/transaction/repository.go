package transaction

import (
	"context"
	"time"

	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/google/uuid"
)

// Repository defines data access for chained transactions.
type Repository interface {
	// Create inserts a fully linked transaction.
	Create(ctx context.Context, t *domain.Transaction) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	// UpdateStatus changes the only mutable fields of a transaction.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus, at time.Time) error
	// ListByAccount returns transactions where the account is sender or
	// receiver, newest first.
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*domain.Transaction, error)
}

// ChainHead is the tail of the global chain.
type ChainHead struct {
	Seq  int64
	Hash string
}

// ChainHeadRepository serializes access to the chain tail.
type ChainHeadRepository interface {
	// Lock returns the tail and holds it until the transaction ends.
	// The genesis head (0, "") is created on first use.
	Lock(ctx context.Context) (*ChainHead, error)
	// Advance moves the tail to head.
	Advance(ctx context.Context, head ChainHead) error
}

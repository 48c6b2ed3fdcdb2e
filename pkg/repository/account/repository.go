package account

import (
	"context"

	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/google/uuid"
)

// Repository stores the current rows and the history rows of the
// system-versioned entities (accounts and balances). It performs no
// versioning itself; the ledger write path decides what to archive.
type Repository interface {
	Create(ctx context.Context, a *domain.Account) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	// GetForUpdate locks the current row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByContact(ctx context.Context, contact string) (*domain.Account, error)
	Update(ctx context.Context, a *domain.Account) error
	Delete(ctx context.Context, id uuid.UUID) error

	CreateBalance(ctx context.Context, b *domain.Balance) error
	GetBalance(ctx context.Context, accountID uuid.UUID, currency string) (*domain.Balance, error)
	GetBalanceForUpdate(ctx context.Context, accountID uuid.UUID, currency string) (*domain.Balance, error)
	UpdateBalance(ctx context.Context, b *domain.Balance) error
	DeleteBalance(ctx context.Context, id uuid.UUID) error
	ListBalances(ctx context.Context, accountID uuid.UUID) ([]*domain.Balance, error)

	ArchiveAccount(ctx context.Context, v *domain.AccountVersion) error
	ArchiveBalance(ctx context.Context, v *domain.BalanceVersion) error
	// AccountHistory returns archived versions ordered by valid_from.
	AccountHistory(ctx context.Context, id uuid.UUID) ([]*domain.AccountVersion, error)
	// BalanceHistory returns archived versions of one (account, currency) ordered by valid_from.
	BalanceHistory(ctx context.Context, accountID uuid.UUID, currency string) ([]*domain.BalanceVersion, error)
}

package repository

import (
	"context"
	"reflect"

	"github.com/amirasaad/topupledger/pkg/repository/account"
	"github.com/amirasaad/topupledger/pkg/repository/audit"
	"github.com/amirasaad/topupledger/pkg/repository/saga"
	"github.com/amirasaad/topupledger/pkg/repository/transaction"
)

// UnitOfWork defines the contract for transactional work and type-safe repository access.
//
// Do runs the given function in a transaction boundary, providing a UnitOfWork for repository access.
// GetRepository provides type-safe access to repositories using the transaction session.
// Example usage:
//
//	repoAny, err := uow.GetRepository(reflect.TypeOf((*saga.Repository)(nil)).Elem())
//	repo := repoAny.(saga.Repository)
type UnitOfWork interface {
	// Do executes the given function within a transaction boundary.
	// If the function returns an error, the transaction is rolled back.
	Do(ctx context.Context, fn func(uow UnitOfWork) error) error

	// GetRepository returns a repository of the requested type, bound to the current transaction/session.
	GetRepository(repoType reflect.Type) (any, error)

	AccountRepository() (account.Repository, error)
	TransactionRepository() (transaction.Repository, error)
	ChainHeadRepository() (transaction.ChainHeadRepository, error)
	AuditRepository() (audit.Repository, error)
	SagaRepository() (saga.Repository, error)
}

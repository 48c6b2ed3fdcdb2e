package repository

import (
	"context"
	"fmt"
	"reflect"

	"github.com/amirasaad/topupledger/pkg/repository"
	"github.com/amirasaad/topupledger/pkg/repository/account"
	"github.com/amirasaad/topupledger/pkg/repository/audit"
	"github.com/amirasaad/topupledger/pkg/repository/saga"
	"github.com/amirasaad/topupledger/pkg/repository/transaction"
	"gorm.io/gorm"
)

// UoW provides the transaction boundary and repository access in one abstraction.
// Repositories obtained inside Do share the transaction session; outside Do they
// run against the plain connection pool.
type UoW struct {
	db           *gorm.DB
	tx           *gorm.DB
	repoRegistry map[reflect.Type]func(*gorm.DB) any
}

// NewUoW creates a new UoW for the given *gorm.DB.
func NewUoW(db *gorm.DB) *UoW {
	return &UoW{
		db: db,
		repoRegistry: map[reflect.Type]func(*gorm.DB) any{
			reflect.TypeOf((*account.Repository)(nil)).Elem():              func(db *gorm.DB) any { return NewAccountRepository(db) },
			reflect.TypeOf((*transaction.Repository)(nil)).Elem():          func(db *gorm.DB) any { return NewTransactionRepository(db) },
			reflect.TypeOf((*transaction.ChainHeadRepository)(nil)).Elem(): func(db *gorm.DB) any { return NewChainHeadRepository(db) },
			reflect.TypeOf((*audit.Repository)(nil)).Elem():                func(db *gorm.DB) any { return NewAuditRepository(db) },
			reflect.TypeOf((*saga.Repository)(nil)).Elem():                 func(db *gorm.DB) any { return NewSagaRepository(db) },
		},
	}
}

// Do runs fn in a database transaction. An error returned by fn, or a panic,
// rolls everything back.
func (u *UoW) Do(ctx context.Context, fn func(uow repository.UnitOfWork) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txnUow := &UoW{db: u.db, tx: tx, repoRegistry: u.repoRegistry}
		return fn(txnUow)
	})
}

func (u *UoW) session() *gorm.DB {
	if u.tx != nil {
		return u.tx
	}
	return u.db
}

// GetRepository returns the repository registered for repoType bound to the
// current session.
func (u *UoW) GetRepository(repoType reflect.Type) (any, error) {
	constructor, ok := u.repoRegistry[repoType]
	if !ok {
		return nil, fmt.Errorf("unsupported repository type: %v", repoType)
	}
	return constructor(u.session()), nil
}

// AccountRepository returns the account repository for the current session.
func (u *UoW) AccountRepository() (account.Repository, error) {
	return getRepo[account.Repository](u)
}

// TransactionRepository returns the transaction repository for the current session.
func (u *UoW) TransactionRepository() (transaction.Repository, error) {
	return getRepo[transaction.Repository](u)
}

// ChainHeadRepository returns the chain tail repository for the current session.
func (u *UoW) ChainHeadRepository() (transaction.ChainHeadRepository, error) {
	return getRepo[transaction.ChainHeadRepository](u)
}

// AuditRepository returns the audit repository for the current session.
func (u *UoW) AuditRepository() (audit.Repository, error) {
	return getRepo[audit.Repository](u)
}

// SagaRepository returns the saga repository for the current session.
func (u *UoW) SagaRepository() (saga.Repository, error) {
	return getRepo[saga.Repository](u)
}

func getRepo[T any](u *UoW) (T, error) {
	var zero T
	repoAny, err := u.GetRepository(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return zero, err
	}
	repo, ok := repoAny.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected repository type %T", repoAny)
	}
	return repo, nil
}

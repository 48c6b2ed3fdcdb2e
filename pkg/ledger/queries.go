package ledger

import (
	"context"
	"errors"

	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/google/uuid"
)

// CreateAccount opens an account in its own transaction.
func (s *Service) CreateAccount(ctx context.Context, holder, contact, credential string) (*domain.Account, error) {
	a, err := domain.NewAccount(holder, contact, credential)
	if err != nil {
		return nil, err
	}
	if err := s.Do(ctx, func(ctx context.Context, w *Writer) error {
		return w.CreateAccount(ctx, a)
	}); err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateAccount applies changes in its own transaction.
func (s *Service) UpdateAccount(ctx context.Context, id uuid.UUID, changes domain.AccountChanges) (*domain.Account, error) {
	var out *domain.Account
	err := s.Do(ctx, func(ctx context.Context, w *Writer) error {
		a, err := w.UpdateAccount(ctx, id, changes)
		out = a
		return err
	})
	return out, err
}

// DeleteAccount removes an account in its own transaction.
func (s *Service) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	return s.Do(ctx, func(ctx context.Context, w *Writer) error {
		return w.DeleteAccount(ctx, id)
	})
}

// Account returns the live account row.
func (s *Service) Account(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	accounts, err := s.uow.AccountRepository()
	if err != nil {
		return nil, err
	}
	return accounts.Get(ctx, id)
}

// AccountByContact returns the live account registered under contact.
func (s *Service) AccountByContact(ctx context.Context, contact string) (*domain.Account, error) {
	accounts, err := s.uow.AccountRepository()
	if err != nil {
		return nil, err
	}
	return accounts.GetByContact(ctx, contact)
}

// Balances returns the live balances of an account.
func (s *Service) Balances(ctx context.Context, accountID uuid.UUID) ([]*domain.Balance, error) {
	accounts, err := s.uow.AccountRepository()
	if err != nil {
		return nil, err
	}
	return accounts.ListBalances(ctx, accountID)
}

// Transaction returns one chained transaction.
func (s *Service) Transaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	txs, err := s.uow.TransactionRepository()
	if err != nil {
		return nil, err
	}
	return txs.Get(ctx, id)
}

// Transactions lists transactions where the account is sender or receiver,
// newest first.
func (s *Service) Transactions(ctx context.Context, accountID uuid.UUID, limit int) ([]*domain.Transaction, error) {
	txs, err := s.uow.TransactionRepository()
	if err != nil {
		return nil, err
	}
	return txs.ListByAccount(ctx, accountID, limit)
}

// AuditTrail lists audit entries, newest first.
func (s *Service) AuditTrail(ctx context.Context, f domain.AuditFilter) ([]*domain.AuditEntry, error) {
	audits, err := s.uow.AuditRepository()
	if err != nil {
		return nil, err
	}
	return audits.List(ctx, f)
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

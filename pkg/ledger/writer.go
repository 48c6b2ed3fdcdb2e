package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/amirasaad/topupledger/pkg/hashchain"
	"github.com/amirasaad/topupledger/pkg/repository"
	"github.com/amirasaad/topupledger/pkg/repository/transaction"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Writer performs ledger mutations inside one database transaction. Every
// mutation archives the superseded version and records one audit entry.
type Writer struct {
	s   *Service
	uow repository.UnitOfWork
	now time.Time
}

// UnitOfWork exposes the transaction-bound repositories for writes the ledger
// does not own, such as saga state.
func (w *Writer) UnitOfWork() repository.UnitOfWork {
	return w.uow
}

// Now is the timestamp shared by every write of this transaction.
func (w *Writer) Now() time.Time {
	return w.now
}

// advance returns a timestamp strictly after prev so validity intervals never
// run backwards when the clock does.
func (w *Writer) advance(prev time.Time) time.Time {
	if w.now.After(prev) {
		return w.now
	}
	return prev.Add(time.Microsecond)
}

func (w *Writer) appendTransaction(ctx context.Context, draft domain.TransactionDraft) (*domain.Transaction, error) {
	heads, err := w.uow.ChainHeadRepository()
	if err != nil {
		return nil, err
	}
	txs, err := w.uow.TransactionRepository()
	if err != nil {
		return nil, err
	}

	head, err := heads.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock chain head: %w", err)
	}

	t := &domain.Transaction{
		ID:                uuid.New(),
		SenderAccountID:   draft.SenderAccountID,
		ReceiverAccountID: draft.ReceiverAccountID,
		Amount:            draft.Amount,
		Currency:          draft.Currency,
		Type:              draft.Type,
		Status:            domain.TransactionStatusPending,
		Description:       draft.Description,
		CreatedAt:         w.now,
		UpdatedAt:         w.now,
	}
	hashchain.Link(t, head.Seq, head.Hash)

	if err := txs.Create(ctx, t); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: %v", domain.ErrChainLinkConflict, err)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrLedgerWrite, err)
	}
	if err := heads.Advance(ctx, transaction.ChainHead{Seq: t.ChainSeq, Hash: t.CurrentHash}); err != nil {
		return nil, err
	}
	w.record(ctx, domain.TableTransactions, t.ID.String(), domain.AuditInsert, nil, t)
	return t, nil
}

// SetTransactionStatus moves a transaction to status. Only the status and
// updated_at change; the chained fields stay untouched.
func (w *Writer) SetTransactionStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus) (*domain.Transaction, error) {
	txs, err := w.uow.TransactionRepository()
	if err != nil {
		return nil, err
	}
	before, err := txs.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if before.Status == status {
		return before, nil
	}
	if !before.Status.CanTransition(status) {
		return nil, fmt.Errorf("%w: transaction %s -> %s", domain.ErrInvalidStateTransition, before.Status, status)
	}
	after := *before
	after.Status = status
	after.UpdatedAt = w.advance(before.UpdatedAt)
	if err := txs.UpdateStatus(ctx, id, status, after.UpdatedAt); err != nil {
		return nil, err
	}
	w.record(ctx, domain.TableTransactions, id.String(), domain.AuditUpdate, before, &after)
	return &after, nil
}

// CreateAccount inserts a. Its validity starts at creation.
func (w *Writer) CreateAccount(ctx context.Context, a *domain.Account) error {
	accounts, err := w.uow.AccountRepository()
	if err != nil {
		return err
	}
	a.CreatedAt = w.now
	a.ValidFrom = w.now
	if err := accounts.Create(ctx, a); err != nil {
		return err
	}
	w.record(ctx, domain.TableAccounts, a.ID.String(), domain.AuditInsert, nil, a)
	return nil
}

// UpdateAccount applies changes, archiving the previous version.
func (w *Writer) UpdateAccount(ctx context.Context, id uuid.UUID, changes domain.AccountChanges) (*domain.Account, error) {
	accounts, err := w.uow.AccountRepository()
	if err != nil {
		return nil, err
	}
	before, err := accounts.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	after := *before
	if err := changes.Apply(&after); err != nil {
		return nil, err
	}

	cut := w.advance(before.ValidFrom)
	if err := accounts.ArchiveAccount(ctx, &domain.AccountVersion{Account: *before, ValidTo: &cut}); err != nil {
		return nil, err
	}
	after.ValidFrom = cut
	if err := accounts.Update(ctx, &after); err != nil {
		return nil, err
	}
	w.record(ctx, domain.TableAccounts, id.String(), domain.AuditUpdate, before, &after)
	return &after, nil
}

// DeleteAccount archives and removes the account and its zero balances.
// Accounts still holding funds cannot be deleted.
func (w *Writer) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	accounts, err := w.uow.AccountRepository()
	if err != nil {
		return err
	}
	before, err := accounts.GetForUpdate(ctx, id)
	if err != nil {
		return err
	}
	balances, err := accounts.ListBalances(ctx, id)
	if err != nil {
		return err
	}
	for _, b := range balances {
		if !b.Amount.IsZero() {
			return fmt.Errorf("%w: account holds %s %s", domain.ErrValidation, b.Amount.StringFixed(2), b.Currency)
		}
	}
	for _, b := range balances {
		cut := w.advance(b.ValidFrom)
		if err := accounts.ArchiveBalance(ctx, &domain.BalanceVersion{Balance: *b, ValidTo: &cut}); err != nil {
			return err
		}
		if err := accounts.DeleteBalance(ctx, b.ID); err != nil {
			return err
		}
		w.record(ctx, domain.TableBalances, b.ID.String(), domain.AuditDelete, b, nil)
	}

	cut := w.advance(before.ValidFrom)
	if err := accounts.ArchiveAccount(ctx, &domain.AccountVersion{Account: *before, ValidTo: &cut}); err != nil {
		return err
	}
	if err := accounts.Delete(ctx, id); err != nil {
		return err
	}
	w.record(ctx, domain.TableAccounts, id.String(), domain.AuditDelete, before, nil)
	return nil
}

// CreditBalance adds amount to the (account, currency) balance, opening it
// when missing.
func (w *Writer) CreditBalance(ctx context.Context, accountID uuid.UUID, currency string, amount decimal.Decimal) (*domain.Balance, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: credit amount must be positive", domain.ErrValidation)
	}
	return w.adjustBalance(ctx, accountID, currency, amount)
}

// DebitBalance subtracts amount. A balance never goes below zero.
func (w *Writer) DebitBalance(ctx context.Context, accountID uuid.UUID, currency string, amount decimal.Decimal) (*domain.Balance, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: debit amount must be positive", domain.ErrValidation)
	}
	return w.adjustBalance(ctx, accountID, currency, amount.Neg())
}

func (w *Writer) adjustBalance(ctx context.Context, accountID uuid.UUID, currency string, delta decimal.Decimal) (*domain.Balance, error) {
	currency, err := domain.NormalizeCurrency(currency)
	if err != nil {
		return nil, err
	}
	accounts, err := w.uow.AccountRepository()
	if err != nil {
		return nil, err
	}

	before, err := accounts.GetBalanceForUpdate(ctx, accountID, currency)
	if errors.Is(err, domain.ErrNotFound) {
		if delta.IsNegative() {
			return nil, fmt.Errorf("%w: no %s balance", domain.ErrInsufficientFunds, currency)
		}
		b := &domain.Balance{
			ID:        uuid.New(),
			AccountID: accountID,
			Currency:  currency,
			Amount:    delta,
			CreatedAt: w.now,
			ValidFrom: w.now,
		}
		if err := accounts.CreateBalance(ctx, b); err != nil {
			return nil, err
		}
		w.record(ctx, domain.TableBalances, b.ID.String(), domain.AuditInsert, nil, b)
		return b, nil
	}
	if err != nil {
		return nil, err
	}

	after := *before
	after.Amount = before.Amount.Add(delta)
	if after.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: %s %s available", domain.ErrInsufficientFunds, before.Amount.StringFixed(2), currency)
	}
	cut := w.advance(before.ValidFrom)
	if err := accounts.ArchiveBalance(ctx, &domain.BalanceVersion{Balance: *before, ValidTo: &cut}); err != nil {
		return nil, err
	}
	after.ValidFrom = cut
	if err := accounts.UpdateBalance(ctx, &after); err != nil {
		return nil, err
	}
	w.record(ctx, domain.TableBalances, after.ID.String(), domain.AuditUpdate, before, &after)
	return &after, nil
}

func (w *Writer) record(ctx context.Context, table, id string, action domain.AuditAction, before, after any) {
	repo, err := w.uow.AuditRepository()
	if err != nil {
		w.s.logger.Warn("⚠️ Audit repository unavailable", "table", table, "record_id", id, "error", err)
		return
	}
	w.s.audit.Record(ctx, repo, table, id, action, before, after)
}

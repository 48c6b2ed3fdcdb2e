package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStatus is the mutable status of a chained transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// Terminal reports whether no further status change is allowed.
func (s TransactionStatus) Terminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed || s == TransactionStatusCancelled
}

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TransactionTypeTopUp      TransactionType = "TOPUP"
	TransactionTypeTransfer   TransactionType = "TRANSFER"
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
)

// Transaction is an entry of the global hash chain. Everything except
// Status and UpdatedAt is immutable once CurrentHash is assigned.
type Transaction struct {
	ID                uuid.UUID         `json:"transaction_id"`
	ChainSeq          int64             `json:"chain_seq"`
	SenderAccountID   *uuid.UUID        `json:"sender_account_id"`
	ReceiverAccountID *uuid.UUID        `json:"receiver_account_id"`
	Amount            decimal.Decimal   `json:"amount"`
	Currency          string            `json:"currency"`
	Type              TransactionType   `json:"transaction_type"`
	Status            TransactionStatus `json:"status"`
	Description       string            `json:"description"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	PreviousHash      string            `json:"previous_hash"`
	CurrentHash       string            `json:"current_hash"`
}

// TransactionDraft carries the caller supplied fields of a new transaction.
type TransactionDraft struct {
	SenderAccountID   *uuid.UUID
	ReceiverAccountID *uuid.UUID
	Amount            decimal.Decimal
	Currency          string
	Type              TransactionType
	Description       string
}

// Validate checks the schema invariants enforced before any write.
func (d *TransactionDraft) Validate() error {
	if !d.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if !d.Amount.Equal(d.Amount.Round(2)) {
		return fmt.Errorf("%w: amount has more than two decimal places", ErrValidation)
	}
	cur, err := NormalizeCurrency(d.Currency)
	if err != nil {
		return err
	}
	d.Currency = cur
	switch d.Type {
	case TransactionTypeTopUp, TransactionTypeTransfer, TransactionTypeDeposit, TransactionTypeWithdrawal:
	default:
		return fmt.Errorf("%w: unknown transaction type %q", ErrValidation, d.Type)
	}
	if d.SenderAccountID == nil && d.ReceiverAccountID == nil {
		return fmt.Errorf("%w: sender or receiver is required", ErrValidation)
	}
	d.Description = strings.TrimSpace(d.Description)
	return nil
}

// CanTransition reports whether a transaction may move from s to next.
func (s TransactionStatus) CanTransition(next TransactionStatus) bool {
	if s == next {
		return true
	}
	return s == TransactionStatusPending && next.Terminal()
}

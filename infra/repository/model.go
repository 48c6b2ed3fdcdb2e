package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is the current row of a system-versioned account.
type Account struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	HolderName     string    `gorm:"type:varchar(255);not null"`
	Contact        string    `gorm:"type:varchar(255);not null;uniqueIndex"`
	CredentialHash string    `gorm:"type:varchar(255)"`
	Status         string    `gorm:"type:varchar(16);not null;default:'active'"`
	CreatedAt      time.Time `gorm:"not null"`
	ValidFrom      time.Time `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

// AccountHistory is an archived account image with its validity interval.
type AccountHistory struct {
	HistoryID      uint      `gorm:"primaryKey;autoIncrement"`
	AccountID      uuid.UUID `gorm:"type:uuid;not null;index:idx_account_history_id_from,priority:1"`
	HolderName     string    `gorm:"type:varchar(255);not null"`
	Contact        string    `gorm:"type:varchar(255);not null"`
	CredentialHash string    `gorm:"type:varchar(255)"`
	Status         string    `gorm:"type:varchar(16);not null"`
	CreatedAt      time.Time `gorm:"not null"`
	ValidFrom      time.Time `gorm:"not null;index:idx_account_history_id_from,priority:2"`
	ValidTo        time.Time `gorm:"not null"`
}

func (AccountHistory) TableName() string { return "account_history" }

// Balance is the current amount of one account in one currency.
type Balance struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	AccountID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_balances_account_currency,priority:1"`
	Currency  string          `gorm:"type:varchar(3);not null;uniqueIndex:idx_balances_account_currency,priority:2"`
	Amount    decimal.Decimal `gorm:"type:numeric(20,2);not null;check:chk_balances_amount,amount >= 0"`
	CreatedAt time.Time       `gorm:"not null"`
	ValidFrom time.Time       `gorm:"not null"`
}

func (Balance) TableName() string { return "balances" }

// BalanceHistory is an archived balance image.
type BalanceHistory struct {
	HistoryID uint            `gorm:"primaryKey;autoIncrement"`
	BalanceID uuid.UUID       `gorm:"type:uuid;not null;index"`
	AccountID uuid.UUID       `gorm:"type:uuid;not null;index:idx_balance_history_key,priority:1"`
	Currency  string          `gorm:"type:varchar(3);not null;index:idx_balance_history_key,priority:2"`
	Amount    decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	CreatedAt time.Time       `gorm:"not null"`
	ValidFrom time.Time       `gorm:"not null;index:idx_balance_history_key,priority:3"`
	ValidTo   time.Time       `gorm:"not null"`
}

func (BalanceHistory) TableName() string { return "balance_history" }

// Transaction is a persisted entry of the hash chain.
type Transaction struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ChainSeq          int64           `gorm:"not null;uniqueIndex"`
	SenderAccountID   *uuid.UUID      `gorm:"type:uuid;index"`
	ReceiverAccountID *uuid.UUID      `gorm:"type:uuid;index"`
	Amount            decimal.Decimal `gorm:"type:numeric(20,2);not null;check:chk_transactions_amount,amount > 0"`
	Currency          string          `gorm:"type:varchar(3);not null"`
	TransactionType   string          `gorm:"type:varchar(32);not null"`
	Status            string          `gorm:"type:varchar(16);not null;default:'pending'"`
	Description       string          `gorm:"type:text"`
	CreatedAt         time.Time       `gorm:"not null;index"`
	UpdatedAt         time.Time       `gorm:"not null"`
	PreviousHash      string          `gorm:"type:varchar(64);not null;uniqueIndex"`
	CurrentHash       string          `gorm:"type:varchar(64);not null;uniqueIndex"`
}

func (Transaction) TableName() string { return "transactions" }

// ChainHead holds the tail of the global chain in its single row.
type ChainHead struct {
	ID        int       `gorm:"primaryKey;autoIncrement:false"`
	Seq       int64     `gorm:"not null"`
	Hash      string    `gorm:"type:varchar(64);not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (ChainHead) TableName() string { return "chain_heads" }

// AuditLog is an append-only audit entry.
type AuditLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Target     string    `gorm:"column:table_name;type:varchar(64);not null;index:idx_audit_table_time,priority:1"`
	RecordID   string    `gorm:"type:varchar(64);not null;index"`
	Actor      string    `gorm:"type:varchar(255);not null"`
	Action     string    `gorm:"type:varchar(16);not null"`
	OccurredAt time.Time `gorm:"not null;index:idx_audit_table_time,priority:2"`
	Before     *string   `gorm:"type:text"`
	After      *string   `gorm:"type:text"`
	Request    string    `gorm:"type:varchar(512)"`
}

func (AuditLog) TableName() string { return "audit_log" }

// TopUpSaga is the persisted orchestration state of one top-up.
type TopUpSaga struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CorrelationKey   string          `gorm:"type:varchar(128);not null;uniqueIndex"`
	AccountID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	Amount           decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Currency         string          `gorm:"type:varchar(3);not null"`
	CardLast4        string          `gorm:"type:varchar(4);not null"`
	State            string          `gorm:"type:varchar(32);not null;index:idx_sagas_state_updated,priority:1"`
	TransactionID    *uuid.UUID      `gorm:"type:uuid"`
	OnChainRequestID *string         `gorm:"type:varchar(128);uniqueIndex"`
	OnChainTxRef     string          `gorm:"type:varchar(128)"`
	OnChainOutcome   string          `gorm:"type:varchar(16);not null"`
	GatewayTxnID     *string         `gorm:"type:varchar(128);uniqueIndex"`
	GatewayStatus    string          `gorm:"type:varchar(32)"`
	PaymentOutcome   string          `gorm:"type:varchar(16);not null"`
	LastError        string          `gorm:"type:text"`
	CreatedAt        time.Time       `gorm:"not null"`
	UpdatedAt        time.Time       `gorm:"not null;index:idx_sagas_state_updated,priority:2"`
}

func (TopUpSaga) TableName() string { return "topup_sagas" }

// Models lists every table in migration order.
func Models() []any {
	return []any{
		&Account{},
		&AccountHistory{},
		&Balance{},
		&BalanceHistory{},
		&Transaction{},
		&ChainHead{},
		&AuditLog{},
		&TopUpSaga{},
	}
}

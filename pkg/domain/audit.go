package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction is the kind of mutation an audit entry describes.
type AuditAction string

const (
	AuditInsert AuditAction = "INSERT"
	AuditUpdate AuditAction = "UPDATE"
	AuditDelete AuditAction = "DELETE"
)

// Audited table names.
const (
	TableAccounts     = "accounts"
	TableBalances     = "balances"
	TableTransactions = "transactions"
)

// AuditEntry is an append-only record of one mutation to a ledger table.
// Before is nil for inserts and After is nil for deletes.
type AuditEntry struct {
	ID         uuid.UUID       `json:"id"`
	TableName  string          `json:"table_name"`
	RecordID   string          `json:"record_id"`
	Actor      string          `json:"actor"`
	Action     AuditAction     `json:"action"`
	OccurredAt time.Time       `json:"occurred_at"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	Request    string          `json:"request,omitempty"`
}

// AuditFilter narrows an audit listing.
type AuditFilter struct {
	TableName string
	RecordID  string
	Since     time.Time
	Limit     int
}

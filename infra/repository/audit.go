package repository

import (
	"context"
	"encoding/json"

	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/amirasaad/topupledger/pkg/repository/audit"
	"gorm.io/gorm"
)

const defaultAuditLimit = 100

type auditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates the append-only audit store.
func NewAuditRepository(db *gorm.DB) audit.Repository {
	return &auditRepository{db: db}
}

// Append inserts the entry inside a nested transaction. When db is already in a
// transaction gorm issues a SAVEPOINT, so a failed insert rolls back only itself.
func (r *auditRepository) Append(ctx context.Context, e *domain.AuditEntry) error {
	m := &AuditLog{
		ID:         e.ID,
		Target:     e.TableName,
		RecordID:   e.RecordID,
		Actor:      e.Actor,
		Action:     string(e.Action),
		OccurredAt: e.OccurredAt,
		Before:     rawToString(e.Before),
		After:      rawToString(e.After),
		Request:    e.Request,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.Create(m).Error
		})
	})
}

func (r *auditRepository) List(ctx context.Context, f domain.AuditFilter) ([]*domain.AuditEntry, error) {
	q := r.db.WithContext(ctx).Model(&AuditLog{})
	if f.TableName != "" {
		q = q.Where("table_name = ?", f.TableName)
	}
	if f.RecordID != "" {
		q = q.Where("record_id = ?", f.RecordID)
	}
	if !f.Since.IsZero() {
		q = q.Where("occurred_at >= ?", f.Since)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}

	var rows []AuditLog
	if err := WrapError(func() error {
		return q.Order("occurred_at DESC").Limit(limit).Find(&rows).Error
	}); err != nil {
		return nil, err
	}
	out := make([]*domain.AuditEntry, 0, len(rows))
	for i := range rows {
		m := &rows[i]
		out = append(out, &domain.AuditEntry{
			ID:         m.ID,
			TableName:  m.Target,
			RecordID:   m.RecordID,
			Actor:      m.Actor,
			Action:     domain.AuditAction(m.Action),
			OccurredAt: m.OccurredAt.UTC(),
			Before:     stringToRaw(m.Before),
			After:      stringToRaw(m.After),
			Request:    m.Request,
		})
	}
	return out, nil
}

func rawToString(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	s := string(raw)
	return &s
}

func stringToRaw(s *string) json.RawMessage {
	if s == nil {
		return nil
	}
	return json.RawMessage(*s)
}

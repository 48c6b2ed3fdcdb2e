// Package auditlog records before/after images of every ledger mutation.
// Recording is fail-open: a failed audit write is logged and never aborts the
// mutation it describes.
package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/amirasaad/topupledger/pkg/repository/audit"
	"github.com/google/uuid"
)

// Recorder writes audit entries through an audit.Repository bound to the
// caller's transaction.
type Recorder struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewRecorder creates a Recorder.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		logger: logger.With("component", "auditlog"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Record appends one entry and reports whether it was stored. Marshal errors,
// repository errors and panics are logged at warn level and swallowed.
func (r *Recorder) Record(
	ctx context.Context,
	repo audit.Repository,
	table, recordID string,
	action domain.AuditAction,
	before, after any,
) (stored bool) {
	defer func() {
		if p := recover(); p != nil {
			r.warn(ctx, table, recordID, action, fmt.Errorf("%w: panic: %v", domain.ErrAuditLog, p))
			stored = false
		}
	}()

	entry := &domain.AuditEntry{
		ID:         uuid.New(),
		TableName:  table,
		RecordID:   recordID,
		Actor:      ActorFrom(ctx),
		Action:     action,
		OccurredAt: r.now(),
		Request:    RequestFrom(ctx),
	}
	var err error
	if entry.Before, err = snapshot(before); err != nil {
		r.warn(ctx, table, recordID, action, fmt.Errorf("%w: before image: %v", domain.ErrAuditLog, err))
		return false
	}
	if entry.After, err = snapshot(after); err != nil {
		r.warn(ctx, table, recordID, action, fmt.Errorf("%w: after image: %v", domain.ErrAuditLog, err))
		return false
	}
	if err := repo.Append(ctx, entry); err != nil {
		r.warn(ctx, table, recordID, action, fmt.Errorf("%w: %v", domain.ErrAuditLog, err))
		return false
	}
	return true
}

func (r *Recorder) warn(ctx context.Context, table, recordID string, action domain.AuditAction, err error) {
	r.logger.WarnContext(ctx, "⚠️ Audit entry not recorded",
		"table", table,
		"record_id", recordID,
		"action", action,
		"actor", ActorFrom(ctx),
		"error", err,
	)
}

func snapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return nil, nil
	}
	return b, nil
}

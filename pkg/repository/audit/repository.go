package audit

import (
	"context"

	"github.com/amirasaad/topupledger/pkg/domain"
)

// Repository is append-only. There is no update or delete.
type Repository interface {
	// Append writes one entry. Implementations must isolate a failed insert
	// so it cannot abort the surrounding transaction.
	Append(ctx context.Context, e *domain.AuditEntry) error
	List(ctx context.Context, f domain.AuditFilter) ([]*domain.AuditEntry, error)
}

// Package authz is the capability policy checked in front of every ledger
// and top-up operation. Authentication only establishes a Principal; what the
// principal may do is decided here.
package authz

import (
	"context"
	"fmt"
	"slices"

	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/google/uuid"
)

// Role is a named set of capabilities.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleUser     Role = "user"
	// RoleService is held by integrations such as payment webhooks.
	RoleService Role = "service"
)

// Capability is one permission an operation requires.
type Capability string

const (
	CapTopUpInitiate   Capability = "topup:initiate"
	CapTopUpRead       Capability = "topup:read"
	CapTopUpCancel     Capability = "topup:cancel"
	CapReconciliation  Capability = "topup:reconciliation"
	CapAccountRead     Capability = "account:read"
	CapAccountWrite    Capability = "account:write"
	CapTransactionRead Capability = "transaction:read"
	CapAuditRead       Capability = "audit:read"
	CapLedgerVerify    Capability = "ledger:verify"
)

// Policy maps roles to the capabilities they grant.
type Policy map[Role][]Capability

// DefaultPolicy is the built-in role table.
func DefaultPolicy() Policy {
	return Policy{
		RoleAdmin: {
			CapTopUpInitiate, CapTopUpRead, CapTopUpCancel, CapReconciliation,
			CapAccountRead, CapAccountWrite, CapTransactionRead,
			CapAuditRead, CapLedgerVerify,
		},
		RoleOperator: {
			CapTopUpRead, CapTopUpCancel, CapReconciliation,
			CapAccountRead, CapTransactionRead, CapLedgerVerify,
		},
		RoleUser: {
			CapTopUpInitiate, CapTopUpRead, CapTopUpCancel,
			CapAccountRead, CapTransactionRead,
		},
		RoleService: {
			CapTopUpRead,
		},
	}
}

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Roles   []Role
}

// AccountID returns the account the principal acts for, if its subject is one.
func (p Principal) AccountID() (uuid.UUID, bool) {
	id, err := uuid.Parse(p.Subject)
	return id, err == nil
}

// HasRole reports whether p holds r.
func (p Principal) HasRole(r Role) bool {
	return slices.Contains(p.Roles, r)
}

// Allows reports whether any of p's roles grants c.
func (pol Policy) Allows(p Principal, c Capability) bool {
	for _, r := range p.Roles {
		if slices.Contains(pol[r], c) {
			return true
		}
	}
	return false
}

// Check returns ErrForbidden when p lacks c.
func (pol Policy) Check(p Principal, c Capability) error {
	if !pol.Allows(p, c) {
		return fmt.Errorf("%w: %s requires %s", domain.ErrForbidden, p.Subject, c)
	}
	return nil
}

// CheckOwner additionally restricts plain users to their own account.
// Admins and operators pass for any account.
func (pol Policy) CheckOwner(p Principal, c Capability, accountID uuid.UUID) error {
	if err := pol.Check(p, c); err != nil {
		return err
	}
	if p.HasRole(RoleAdmin) || p.HasRole(RoleOperator) {
		return nil
	}
	if own, ok := p.AccountID(); ok && own == accountID {
		return nil
	}
	return fmt.Errorf("%w: %s cannot act on account %s", domain.ErrForbidden, p.Subject, accountID)
}

type ctxKey struct{}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFrom returns the principal attached to ctx.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}

// ParseRoles keeps the known role names from raw, typically a JWT claim.
func ParseRoles(raw []string) []Role {
	var out []Role
	for _, r := range raw {
		switch role := Role(r); role {
		case RoleAdmin, RoleOperator, RoleUser, RoleService:
			out = append(out, role)
		}
	}
	return out
}

package authz_test

import (
	"context"
	"testing"

	"github.com/amirasaad/topupledger/pkg/authz"
	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyCapabilities(t *testing.T) {
	pol := authz.DefaultPolicy()
	admin := authz.Principal{Subject: "root", Roles: []authz.Role{authz.RoleAdmin}}
	user := authz.Principal{Subject: uuid.NewString(), Roles: []authz.Role{authz.RoleUser}}
	hook := authz.Principal{Subject: "stripe", Roles: []authz.Role{authz.RoleService}}

	tests := []struct {
		name  string
		p     authz.Principal
		c     authz.Capability
		allow bool
	}{
		{"admin verifies ledger", admin, authz.CapLedgerVerify, true},
		{"admin reads audit", admin, authz.CapAuditRead, true},
		{"user initiates top-up", user, authz.CapTopUpInitiate, true},
		{"user cannot read audit", user, authz.CapAuditRead, false},
		{"user cannot verify ledger", user, authz.CapLedgerVerify, false},
		{"service cannot initiate", hook, authz.CapTopUpInitiate, false},
		{"no roles", authz.Principal{Subject: "x"}, authz.CapTopUpRead, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allow, pol.Allows(tt.p, tt.c))
			if tt.allow {
				assert.NoError(t, pol.Check(tt.p, tt.c))
			} else {
				assert.ErrorIs(t, pol.Check(tt.p, tt.c), domain.ErrForbidden)
			}
		})
	}
}

func TestCheckOwner(t *testing.T) {
	pol := authz.DefaultPolicy()
	own := uuid.New()
	user := authz.Principal{Subject: own.String(), Roles: []authz.Role{authz.RoleUser}}
	op := authz.Principal{Subject: "ops", Roles: []authz.Role{authz.RoleOperator}}

	assert.NoError(t, pol.CheckOwner(user, authz.CapTransactionRead, own))
	assert.ErrorIs(t, pol.CheckOwner(user, authz.CapTransactionRead, uuid.New()), domain.ErrForbidden)
	assert.NoError(t, pol.CheckOwner(op, authz.CapTransactionRead, uuid.New()))
	assert.ErrorIs(t, pol.CheckOwner(op, authz.CapTopUpInitiate, own), domain.ErrForbidden)
}

func TestPrincipalContext(t *testing.T) {
	_, ok := authz.PrincipalFrom(context.Background())
	assert.False(t, ok)

	ctx := authz.WithPrincipal(context.Background(), authz.Principal{Subject: "a", Roles: []authz.Role{authz.RoleAdmin}})
	p, ok := authz.PrincipalFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "a", p.Subject)
	assert.True(t, p.HasRole(authz.RoleAdmin))
}

func TestParseRoles(t *testing.T) {
	assert.Equal(t,
		[]authz.Role{authz.RoleAdmin, authz.RoleUser},
		authz.ParseRoles([]string{"admin", "superuser", "user"}),
	)
	assert.Nil(t, authz.ParseRoles(nil))
}

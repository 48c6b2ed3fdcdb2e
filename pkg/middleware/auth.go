// Package middleware holds the fiber middleware that establishes who is
// calling and what the request is, for authorization and the audit trail.
package middleware

import (
	"errors"
	"fmt"

	"github.com/amirasaad/topupledger/pkg/auditlog"
	"github.com/amirasaad/topupledger/pkg/authz"
	"github.com/amirasaad/topupledger/pkg/config"
	authsvc "github.com/amirasaad/topupledger/pkg/service/auth"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenKey     = "user"
	principalKey = "principal"
	// ActorHeader names the caller when AUTH_STRATEGY=none.
	ActorHeader = "X-Actor"
)

// Protected verifies the bearer token and attaches its principal to the
// request context. With the "none" strategy every caller is an admin named
// by the X-Actor header; it exists for local development only.
func Protected(cfg *config.Auth) fiber.Handler {
	if cfg == nil || cfg.Strategy == "none" {
		return anonymous
	}
	secret := ""
	if cfg.Jwt != nil {
		secret = cfg.Jwt.Secret
	}
	return jwtware.New(jwtware.Config{
		SigningKey:     jwtware.SigningKey{Key: []byte(secret)},
		ContextKey:     tokenKey,
		ErrorHandler:   jwtError,
		SuccessHandler: attachPrincipal,
	})
}

func anonymous(c *fiber.Ctx) error {
	actor := c.Get(ActorHeader)
	if actor == "" {
		actor = "anonymous"
	}
	return withPrincipal(c, authz.Principal{Subject: actor, Roles: []authz.Role{authz.RoleAdmin}})
}

func attachPrincipal(c *fiber.Ctx) error {
	token, _ := c.Locals(tokenKey).(*jwt.Token)
	p, err := authsvc.PrincipalFromToken(token)
	if err != nil {
		return jwtError(c, err)
	}
	return withPrincipal(c, p)
}

func withPrincipal(c *fiber.Ctx, p authz.Principal) error {
	ctx := authz.WithPrincipal(c.UserContext(), p)
	ctx = auditlog.WithActor(ctx, p.Subject)
	c.SetUserContext(ctx)
	c.Locals(principalKey, p)
	return c.Next()
}

func jwtError(_ *fiber.Ctx, err error) error {
	if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) {
		return fiber.NewError(fiber.StatusBadRequest, "Missing or malformed JWT")
	}
	return fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired JWT")
}

// Require rejects callers whose roles do not grant c.
func Require(policy authz.Policy, c authz.Capability) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		p, ok := authz.PrincipalFrom(ctx.UserContext())
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "missing principal")
		}
		if err := policy.Check(p, c); err != nil {
			return fiber.NewError(fiber.StatusForbidden, err.Error())
		}
		return ctx.Next()
	}
}

// Principal returns the caller attached by Protected.
func Principal(c *fiber.Ctx) (authz.Principal, error) {
	p, ok := authz.PrincipalFrom(c.UserContext())
	if !ok {
		return authz.Principal{}, fiber.NewError(fiber.StatusUnauthorized, fmt.Sprintf("no principal on request %s", c.Path()))
	}
	return p, nil
}

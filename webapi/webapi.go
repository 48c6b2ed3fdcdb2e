// Package webapi provides the HTTP surface of the top-up ledger.
// It is organized into sub-packages per route group:
// - topup: Top-up initiation, status, cancellation and gateway webhooks
// - account: Account lifecycle, history and balances
// - ledger: Transactions, audit trail and integrity checks
// - auth: Login
package webapi

import (
	"errors"
	"strings"

	"github.com/amirasaad/topupledger/pkg/app"
	"github.com/amirasaad/topupledger/pkg/middleware"
	accountweb "github.com/amirasaad/topupledger/webapi/account"
	authweb "github.com/amirasaad/topupledger/webapi/auth"
	"github.com/amirasaad/topupledger/webapi/common"
	ledgerweb "github.com/amirasaad/topupledger/webapi/ledger"
	topupweb "github.com/amirasaad/topupledger/webapi/topup"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
)

// SetupApp Initialize Fiber with custom configuration
func SetupApp(a *app.App) *fiber.App {
	cfg := a.Config
	log := a.Deps.Logger

	fiberApp := fiber.New(fiber.Config{
		ErrorHandler: common.ErrorHandler,
	})
	fiberApp.Get("/swagger/*", swagger.New(swagger.Config{
		TryItOutEnabled:      true,
		WithCredentials:      true,
		PersistAuthorization: true,
	}))

	if cfg.RateLimit != nil && cfg.RateLimit.MaxRequests > 0 {
		fiberApp.Use(limiter.New(limiter.Config{
			Max:          cfg.RateLimit.MaxRequests,
			Expiration:   cfg.RateLimit.Window,
			Storage:      a.Deps.RateLimitStore,
			KeyGenerator: clientKey,
			// gateway webhooks are never throttled
			Next: func(c *fiber.Ctx) bool {
				return strings.HasPrefix(c.Path(), "/topup/webhook/")
			},
			LimitReached: func(c *fiber.Ctx) error {
				return common.ProblemDetailsJSON(
					c,
					"Too Many Requests",
					errors.New("rate limit exceeded"),
					fiber.StatusTooManyRequests,
				)
			},
		}))
	}
	fiberApp.Use(recover.New())
	fiberApp.Use(requestid.New())
	fiberApp.Use(middleware.AuditRequest)
	fiberApp.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))

	fiberApp.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("Top-up ledger API is running! 🚀")
	})
	fiberApp.Get("/health", Health(a))

	authCfg := cfg.Auth
	topupweb.Routes(fiberApp, a.TopUp, a.Deps.Gateway, a.Policy, authCfg, log)
	accountweb.Routes(fiberApp, a.Ledger, a.Policy, authCfg, log)
	ledgerweb.Routes(fiberApp, a.Ledger, a.VerifyChain, a.Policy, authCfg)
	if a.AuthService != nil {
		authweb.Routes(fiberApp, a.AuthService)
	}
	return fiberApp
}

// clientKey uses X-Forwarded-For when behind a proxy, then X-Real-IP, then
// the peer address.
func clientKey(c *fiber.Ctx) string {
	if forwardedFor := c.Get("X-Forwarded-For"); forwardedFor != "" {
		if commaIndex := strings.Index(forwardedFor, ","); commaIndex != -1 {
			return strings.TrimSpace(forwardedFor[:commaIndex])
		}
		return strings.TrimSpace(forwardedFor)
	}
	if realIP := c.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return c.IP()
}

// Health reports the reachability of every external dependency.
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} app.Health
// @Failure 503 {object} app.Health
// @Router /health [get]
func Health(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := a.Health(c.UserContext())
		if !h.OK() {
			return c.Status(fiber.StatusServiceUnavailable).JSON(h)
		}
		return c.JSON(h)
	}
}

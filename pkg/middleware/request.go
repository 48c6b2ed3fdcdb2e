package middleware

import (
	"strings"

	"github.com/amirasaad/topupledger/pkg/auditlog"
	"github.com/gofiber/fiber/v2"
)

// AuditRequest records "METHOD path request-id" as the request descriptor of
// any audit entry written while serving the request. It must run after the
// requestid middleware.
func AuditRequest(c *fiber.Ctx) error {
	desc := strings.TrimSpace(c.Method() + " " + c.Path() + " " + c.GetRespHeader(fiber.HeaderXRequestID))
	c.SetUserContext(auditlog.WithRequest(c.UserContext(), desc))
	return c.Next()
}

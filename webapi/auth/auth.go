package auth

import (
	"errors"

	"github.com/amirasaad/topupledger/pkg/authz"
	"github.com/amirasaad/topupledger/pkg/domain"
	authsvc "github.com/amirasaad/topupledger/pkg/service/auth"
	"github.com/amirasaad/topupledger/webapi/common"
	"github.com/gofiber/fiber/v2"
)

// Routes registers the login endpoint.
func Routes(app *fiber.App, authSvc *authsvc.Service) {
	app.Post("/auth/login", Login(authSvc))
}

// Login handles account holder authentication and returns a JWT token.
// @Summary Account holder login
// @Description Authenticate with the account contact and credential. The token carries the account id as subject and the user role.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginInput true "Login credentials"
// @Success 200 {object} common.Response
// @Failure 400 {object} common.ProblemDetails
// @Failure 401 {object} common.ProblemDetails
// @Failure 429 {object} common.ProblemDetails
// @Failure 500 {object} common.ProblemDetails
// @Router /auth/login [post]
func Login(authSvc *authsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[LoginInput](c)
		if input == nil {
			return err // Error already written by BindAndValidate
		}
		a, err := authSvc.Login(c.UserContext(), input.Contact, input.Credential)
		if err != nil {
			if errors.Is(err, domain.ErrUnauthorized) {
				return common.ProblemDetailsJSON(c, "Invalid contact or credential", err, "Contact or credential is incorrect", fiber.StatusUnauthorized)
			}
			return common.ProblemDetailsJSON(c, "Internal Server Error", err)
		}
		token, err := authSvc.GenerateToken(c.UserContext(), authz.Principal{
			Subject: a.ID.String(),
			Roles:   []authz.Role{authz.RoleUser},
		})
		if err != nil {
			return common.ProblemDetailsJSON(c, "Internal Server Error", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Success login", fiber.Map{"token": token})
	}
}

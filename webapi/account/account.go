package account

import (
	"log/slog"
	"time"

	"github.com/amirasaad/topupledger/pkg/authz"
	"github.com/amirasaad/topupledger/pkg/config"
	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/amirasaad/topupledger/pkg/ledger"
	"github.com/amirasaad/topupledger/pkg/middleware"
	"github.com/amirasaad/topupledger/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Routes registers the account endpoints. Reads are limited to the
// caller's own account unless the caller is staff.
//
// Routes:
//   - POST   /accounts                               : Open an account.
//   - GET    /accounts/:id                           : Current account row.
//   - PATCH  /accounts/:id                           : Partial update, archives the previous row.
//   - DELETE /accounts/:id                           : Remove the account, keeping its history.
//   - GET    /accounts/:id/history?as_of=            : Timeline, or the version valid at as_of.
//   - GET    /accounts/:id/balances                  : Current balances.
//   - GET    /accounts/:id/balances/:currency?as_of= : One balance, now or at as_of.
//   - GET    /accounts/:id/balances/:currency/history : Balance timeline.
func Routes(app *fiber.App, svc *ledger.Service, policy authz.Policy, cfg *config.Auth, logger *slog.Logger) {
	log := logger.With("component", "webapi.account")
	g := app.Group("/accounts", middleware.Protected(cfg))

	read := middleware.Require(policy, authz.CapAccountRead)
	write := middleware.Require(policy, authz.CapAccountWrite)

	g.Post("/", write, CreateAccount(svc, log))
	g.Get("/:id", read, GetAccount(svc, policy))
	g.Patch("/:id", write, UpdateAccount(svc, log))
	g.Delete("/:id", write, DeleteAccount(svc, log))
	g.Get("/:id/history", read, History(svc, policy))
	g.Get("/:id/balances", read, Balances(svc, policy))
	g.Get("/:id/balances/:currency", read, Balance(svc, policy))
	g.Get("/:id/balances/:currency/history", read, BalanceHistory(svc, policy))
}

// CreateAccount opens an account.
// @Summary Create an account
// @Description Opens an active account. The credential, when given, is stored as a bcrypt hash and enables login.
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body CreateAccountRequest true "Account"
// @Success 201 {object} common.Response "Account created successfully"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 403 {object} common.ProblemDetails "Forbidden"
// @Failure 409 {object} common.ProblemDetails "Contact already registered"
// @Router /accounts [post]
// @Security Bearer
func CreateAccount(svc *ledger.Service, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[CreateAccountRequest](c)
		if input == nil {
			return err
		}
		a, err := svc.CreateAccount(c.UserContext(), input.HolderName, input.Contact, input.Credential)
		if err != nil {
			logger.Warn("⚠️ Account creation failed", "error", err)
			return common.ProblemDetailsJSON(c, "Failed to create account", err)
		}
		logger.Info("✅ Account created", "account_id", a.ID)
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Account created successfully", a)
	}
}

// GetAccount returns the current row.
// @Summary Get an account
// @Tags accounts
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} common.Response
// @Failure 404 {object} common.ProblemDetails "Not found"
// @Router /accounts/{id} [get]
// @Security Bearer
func GetAccount(svc *ledger.Service, policy authz.Policy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := ownedAccount(c, policy)
		if err != nil {
			return err
		}
		a, err := svc.Account(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to load account", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Account fetched", a)
	}
}

// UpdateAccount applies a partial update.
// @Summary Update an account
// @Description The row being replaced is archived with its validity interval.
// @Tags accounts
// @Accept json
// @Produce json
// @Param id path string true "Account ID"
// @Param request body UpdateAccountRequest true "Changes"
// @Success 200 {object} common.Response
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 404 {object} common.ProblemDetails "Not found"
// @Router /accounts/{id} [patch]
// @Security Bearer
func UpdateAccount(svc *ledger.Service, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := common.ParseUUIDParam(c, "id")
		if err != nil {
			return err
		}
		input, err := common.BindAndValidate[UpdateAccountRequest](c)
		if input == nil {
			return err
		}
		a, err := svc.UpdateAccount(c.UserContext(), id, input.changes())
		if err != nil {
			logger.Warn("⚠️ Account update failed", "account_id", id, "error", err)
			return common.ProblemDetailsJSON(c, "Failed to update account", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Account updated", a)
	}
}

// DeleteAccount removes an account. Its history stays queryable.
// @Summary Delete an account
// @Tags accounts
// @Param id path string true "Account ID"
// @Success 204
// @Failure 404 {object} common.ProblemDetails "Not found"
// @Router /accounts/{id} [delete]
// @Security Bearer
func DeleteAccount(svc *ledger.Service, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := common.ParseUUIDParam(c, "id")
		if err != nil {
			return err
		}
		if err := svc.DeleteAccount(c.UserContext(), id); err != nil {
			logger.Warn("⚠️ Account deletion failed", "account_id", id, "error", err)
			return common.ProblemDetailsJSON(c, "Failed to delete account", err)
		}
		logger.Info("🗑️ Account deleted", "account_id", id)
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// History returns the account timeline, or the single version valid at as_of.
// @Summary Account history
// @Tags accounts
// @Produce json
// @Param id path string true "Account ID"
// @Param as_of query string false "RFC3339 instant"
// @Success 200 {object} AccountHistoryResponse
// @Failure 400 {object} common.ProblemDetails "Invalid as_of"
// @Failure 404 {object} common.ProblemDetails "No version at that instant"
// @Router /accounts/{id}/history [get]
// @Security Bearer
func History(svc *ledger.Service, policy authz.Policy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := ownedAccount(c, policy)
		if err != nil {
			return err
		}
		at, ok, err := asOf(c)
		if err != nil {
			return err
		}
		out := AccountHistoryResponse{AccountID: id.String()}
		if ok {
			a, err := svc.AccountAsOf(c.UserContext(), id, at)
			if err != nil {
				return common.ProblemDetailsJSON(c, "No account version at that instant", err)
			}
			out.AsOf = at.Format(time.RFC3339Nano)
			out.Account = a
			return c.JSON(out)
		}
		versions, err := svc.AccountTimeline(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to load account history", err)
		}
		out.Versions = versions
		return c.JSON(out)
	}
}

// Balances lists the current balance per currency.
// @Summary Account balances
// @Tags accounts
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {array} domain.Balance
// @Router /accounts/{id}/balances [get]
// @Security Bearer
func Balances(svc *ledger.Service, policy authz.Policy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := ownedAccount(c, policy)
		if err != nil {
			return err
		}
		bs, err := svc.Balances(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to load balances", err)
		}
		if bs == nil {
			bs = []*domain.Balance{}
		}
		return c.JSON(bs)
	}
}

// Balance returns one balance, now or at as_of.
// @Summary Account balance in one currency
// @Tags accounts
// @Produce json
// @Param id path string true "Account ID"
// @Param currency path string true "ISO 4217 code"
// @Param as_of query string false "RFC3339 instant"
// @Success 200 {object} domain.Balance
// @Failure 404 {object} common.ProblemDetails "No balance at that instant"
// @Router /accounts/{id}/balances/{currency} [get]
// @Security Bearer
func Balance(svc *ledger.Service, policy authz.Policy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := ownedAccount(c, policy)
		if err != nil {
			return err
		}
		at, ok, err := asOf(c)
		if err != nil {
			return err
		}
		if !ok {
			at = time.Now().UTC()
		}
		b, err := svc.BalanceAsOf(c.UserContext(), id, c.Params("currency"), at)
		if err != nil {
			return common.ProblemDetailsJSON(c, "No balance at that instant", err)
		}
		return c.JSON(b)
	}
}

// BalanceHistory returns every version of one balance.
// @Summary Balance timeline
// @Tags accounts
// @Produce json
// @Param id path string true "Account ID"
// @Param currency path string true "ISO 4217 code"
// @Success 200 {array} domain.BalanceVersion
// @Router /accounts/{id}/balances/{currency}/history [get]
// @Security Bearer
func BalanceHistory(svc *ledger.Service, policy authz.Policy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := ownedAccount(c, policy)
		if err != nil {
			return err
		}
		versions, err := svc.BalanceTimeline(c.UserContext(), id, c.Params("currency"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to load balance history", err)
		}
		if versions == nil {
			versions = []domain.BalanceVersion{}
		}
		return c.JSON(versions)
	}
}

// ownedAccount parses :id and checks the caller may read it. The returned
// error is always a *fiber.Error.
func ownedAccount(c *fiber.Ctx, policy authz.Policy) (uuid.UUID, error) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		return uuid.Nil, err
	}
	p, err := middleware.Principal(c)
	if err != nil {
		return uuid.Nil, err
	}
	if err := policy.CheckOwner(p, authz.CapAccountRead, id); err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusForbidden, err.Error())
	}
	return id, nil
}

func asOf(c *fiber.Ctx) (time.Time, bool, error) {
	raw := c.Query("as_of")
	if raw == "" {
		return time.Time{}, false, nil
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fiber.NewError(fiber.StatusBadRequest, "as_of must be an RFC3339 timestamp")
	}
	return at.UTC(), true, nil
}

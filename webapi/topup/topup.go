package topup

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/amirasaad/topupledger/pkg/authz"
	"github.com/amirasaad/topupledger/pkg/config"
	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/amirasaad/topupledger/pkg/middleware"
	"github.com/amirasaad/topupledger/pkg/provider/payment"
	topupsvc "github.com/amirasaad/topupledger/pkg/service/topup"
	"github.com/amirasaad/topupledger/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IdempotencyHeader carries the client's correlation key.
const IdempotencyHeader = "Idempotency-Key"

const maxWebhookBody = 64 << 10

// Routes registers the top-up endpoints.
//
// Routes:
//   - POST /topup/initiate                   : Start a top-up saga.
//   - GET  /topup/reconciliation             : Sagas waiting for an operator.
//   - GET  /topup/:id                        : Saga status.
//   - POST /topup/:id/cancel                 : Cancel before any external effect.
//   - POST /topup/webhook/visa_confirmation  : Card network confirmation callback.
//   - POST /topup/webhook/stripe             : Stripe event callback.
func Routes(
	app *fiber.App,
	svc *topupsvc.Service,
	gateway payment.Gateway,
	policy authz.Policy,
	cfg *config.Auth,
	logger *slog.Logger,
) {
	log := logger.With("component", "webapi.topup")
	g := app.Group("/topup")

	g.Post("/webhook/visa_confirmation", Webhook(gateway, "visa_sim", "", log))
	g.Post("/webhook/stripe", Webhook(gateway, "stripe", "Stripe-Signature", log))

	g.Post("/initiate",
		middleware.Protected(cfg), middleware.Require(policy, authz.CapTopUpInitiate),
		Initiate(svc, policy, log))
	g.Get("/reconciliation",
		middleware.Protected(cfg), middleware.Require(policy, authz.CapReconciliation),
		Reconciliation(svc))
	g.Get("/:id",
		middleware.Protected(cfg), middleware.Require(policy, authz.CapTopUpRead),
		Status(svc, policy))
	g.Post("/:id/cancel",
		middleware.Protected(cfg), middleware.Require(policy, authz.CapTopUpCancel),
		Cancel(svc, policy, log))
}

// Initiate starts a top-up.
// @Summary Initiate a top-up
// @Description Records a pending ledger transaction, submits the top-up to the settlement contract and charges the card. Repeating a request with the same Idempotency-Key returns the existing saga.
// @Tags topup
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Client correlation key"
// @Param request body InitiateRequest true "Top-up request"
// @Success 202 {object} InitiateResponse "Top-up accepted"
// @Success 200 {object} InitiateResponse "Duplicate request"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 403 {object} common.ProblemDetails "Forbidden"
// @Failure 404 {object} common.ProblemDetails "Account not found"
// @Failure 500 {object} common.ProblemDetails "Internal server error"
// @Router /topup/initiate [post]
// @Security Bearer
func Initiate(svc *topupsvc.Service, policy authz.Policy, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[InitiateRequest](c)
		if input == nil {
			return err
		}
		accountID, err := uuid.Parse(input.UserID)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid user_id", domain.ErrValidation, "user_id must be a valid UUID")
		}
		amount, err := decimal.NewFromString(input.Amount)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid amount", domain.ErrValidation, "amount must be a decimal number")
		}
		p, err := middleware.Principal(c)
		if err != nil {
			return err
		}
		if err := policy.CheckOwner(p, authz.CapTopUpInitiate, accountID); err != nil {
			return common.ProblemDetailsJSON(c, "Forbidden", err)
		}

		res, err := svc.Initiate(c.UserContext(), topupsvc.InitiateRequest{
			AccountID:      accountID,
			Amount:         amount,
			Currency:       input.Currency,
			CardLast4:      input.CardLast4,
			IdempotencyKey: c.Get(IdempotencyHeader),
		})
		if err != nil {
			logger.Warn("⚠️ Top-up initiation failed", "account_id", accountID, "error", err)
			if res != nil && res.Saga != nil {
				return common.ProblemDetailsJSON(c, initiateFailureTitle(err), err,
					toInitiateResponse(res.Saga.LastError, res))
			}
			return common.ProblemDetailsJSON(c, initiateFailureTitle(err), err)
		}
		if res.Duplicate {
			return c.Status(fiber.StatusOK).JSON(toInitiateResponse("Top-up already received", res))
		}
		return c.Status(fiber.StatusAccepted).JSON(toInitiateResponse(acceptedMessage(res), res))
	}
}

func initiateFailureTitle(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "Invalid top-up request"
	case errors.Is(err, domain.ErrNotFound):
		return "Account not found"
	case errors.Is(err, domain.ErrOnChainSubmission):
		return "Smart contract submission failed"
	case errors.Is(err, domain.ErrPaymentGateway):
		return "Payment gateway request failed"
	default:
		return "Failed to initiate top-up"
	}
}

func acceptedMessage(res *topupsvc.Result) string {
	if res.Charge == nil {
		return "Top-up recorded"
	}
	switch res.Charge.Status {
	case payment.ChargeSucceeded:
		return "Top-up charged, awaiting on-chain confirmation"
	case payment.ChargePending:
		return "Top-up initiated, awaiting confirmations"
	default:
		return "Top-up declined by card network"
	}
}

// Status returns one saga.
// @Summary Get top-up status
// @Tags topup
// @Produce json
// @Param id path string true "Saga ID"
// @Success 200 {object} SagaResponse
// @Failure 403 {object} common.ProblemDetails "Forbidden"
// @Failure 404 {object} common.ProblemDetails "Not found"
// @Router /topup/{id} [get]
// @Security Bearer
func Status(svc *topupsvc.Service, policy authz.Policy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := common.ParseUUIDParam(c, "id")
		if err != nil {
			return err
		}
		sg, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to load top-up", err)
		}
		if err := ownerCheck(c, policy, authz.CapTopUpRead, sg.AccountID); err != nil {
			return common.ProblemDetailsJSON(c, "Forbidden", err)
		}
		return c.JSON(toSagaResponse(sg))
	}
}

// Cancel aborts a saga that has not reached the contract yet.
// @Summary Cancel a top-up
// @Tags topup
// @Produce json
// @Param id path string true "Saga ID"
// @Success 200 {object} SagaResponse
// @Failure 404 {object} common.ProblemDetails "Not found"
// @Failure 409 {object} common.ProblemDetails "Top-up can no longer be cancelled"
// @Router /topup/{id}/cancel [post]
// @Security Bearer
func Cancel(svc *topupsvc.Service, policy authz.Policy, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := common.ParseUUIDParam(c, "id")
		if err != nil {
			return err
		}
		sg, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to load top-up", err)
		}
		if err := ownerCheck(c, policy, authz.CapTopUpCancel, sg.AccountID); err != nil {
			return common.ProblemDetailsJSON(c, "Forbidden", err)
		}
		sg, err = svc.Cancel(c.UserContext(), id)
		if err != nil {
			logger.Warn("⚠️ Cancel rejected", "saga_id", id, "error", err)
			return common.ProblemDetailsJSON(c, "Failed to cancel top-up", err)
		}
		return c.JSON(toSagaResponse(sg))
	}
}

// Reconciliation lists sagas flagged for manual review.
// @Summary List top-ups needing reconciliation
// @Tags topup
// @Produce json
// @Param limit query int false "Maximum number of sagas" default(100)
// @Success 200 {array} SagaResponse
// @Router /topup/reconciliation [get]
// @Security Bearer
func Reconciliation(svc *topupsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "100"))
		if err != nil || limit <= 0 {
			return common.ProblemDetailsJSON(c, "Invalid limit", domain.ErrValidation, "limit must be a positive integer")
		}
		sagas, err := svc.NeedsReconciliation(c.UserContext(), limit)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to list top-ups", err)
		}
		out := make([]SagaResponse, 0, len(sagas))
		for _, sg := range sagas {
			out = append(out, toSagaResponse(sg))
		}
		return c.JSON(out)
	}
}

// Webhook hands a gateway callback to the configured gateway. The route
// only exists for the gateway named want.
// @Summary Payment gateway callback
// @Tags topup
// @Accept json
// @Produce json
// @Success 200 {object} common.Response
// @Failure 400 {object} common.ProblemDetails "Invalid payload"
// @Failure 404 {object} common.ProblemDetails "Gateway not enabled"
// @Router /topup/webhook/visa_confirmation [post]
// @Router /topup/webhook/stripe [post]
func Webhook(gateway payment.Gateway, want, signatureHeader string, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if gateway == nil || gateway.Name() != want {
			return fiber.NewError(fiber.StatusNotFound, "Payment gateway "+want+" is not enabled")
		}
		body := c.Body()
		if len(body) > maxWebhookBody {
			return fiber.NewError(fiber.StatusRequestEntityTooLarge, "Webhook payload too large")
		}
		var signature string
		if signatureHeader != "" {
			signature = c.Get(signatureHeader)
		}
		res, err := gateway.HandleWebhook(c.UserContext(), body, signature)
		if err != nil {
			logger.Warn("⚠️ Webhook rejected", "gateway", want, "error", err)
			return common.ProblemDetailsJSON(c, "Webhook rejected", err)
		}
		if res == nil {
			return common.SuccessResponseJSON(c, fiber.StatusOK, "Event ignored", nil)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Webhook received and processed", fiber.Map{
			"status":         res.Status,
			"gateway_txn_id": res.GatewayTxnID,
			"request_id":     res.RequestID,
		})
	}
}

func ownerCheck(c *fiber.Ctx, policy authz.Policy, want authz.Capability, accountID uuid.UUID) error {
	p, err := middleware.Principal(c)
	if err != nil {
		return err
	}
	return policy.CheckOwner(p, want, accountID)
}

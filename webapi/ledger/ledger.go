// Package ledger exposes the read side of the ledger: transactions, the
// audit trail and integrity checks.
package ledger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/amirasaad/topupledger/pkg/authz"
	"github.com/amirasaad/topupledger/pkg/config"
	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/amirasaad/topupledger/pkg/hashchain"
	ledgersvc "github.com/amirasaad/topupledger/pkg/ledger"
	"github.com/amirasaad/topupledger/pkg/middleware"
	"github.com/amirasaad/topupledger/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	transactionsLimit = 100
	maxAuditLimit     = 500
)

// VerifyFunc runs a full chain verification.
type VerifyFunc func(ctx context.Context) (*hashchain.Report, error)

// Routes registers the ledger read endpoints.
//
// Routes:
//   - GET /transactions?user_id=      : Transactions of an account, newest first.
//   - GET /transactions/:id           : One transaction.
//   - GET /audit?table=&record_id=&since=&limit= : Audit trail, newest first.
//   - GET /ledger/verify              : Hash chain verification report.
//   - GET /ledger/intervals/:id       : Version timeline check of an account and its balances.
func Routes(app *fiber.App, svc *ledgersvc.Service, verify VerifyFunc, policy authz.Policy, cfg *config.Auth) {
	protected := middleware.Protected(cfg)
	app.Get("/transactions", protected, middleware.Require(policy, authz.CapTransactionRead), ListTransactions(svc, policy))
	app.Get("/transactions/:id", protected, middleware.Require(policy, authz.CapTransactionRead), GetTransaction(svc, policy))
	app.Get("/audit", protected, middleware.Require(policy, authz.CapAuditRead), AuditTrail(svc))
	app.Get("/ledger/verify", protected, middleware.Require(policy, authz.CapLedgerVerify), Verify(verify))
	app.Get("/ledger/intervals/:id", protected, middleware.Require(policy, authz.CapLedgerVerify), Intervals(svc))
}

// ListTransactions returns the transactions where the account is sender or receiver.
// @Summary List transactions of an account
// @Tags ledger
// @Produce json
// @Param user_id query string true "Account ID"
// @Success 200 {array} domain.Transaction
// @Failure 400 {object} common.ProblemDetails "Invalid user_id"
// @Failure 403 {object} common.ProblemDetails "Forbidden"
// @Router /transactions [get]
// @Security Bearer
func ListTransactions(svc *ledgersvc.Service, policy authz.Policy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Query("user_id"))
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid user_id", domain.ErrValidation, "user_id query parameter must be a valid UUID")
		}
		p, err := middleware.Principal(c)
		if err != nil {
			return err
		}
		if err := policy.CheckOwner(p, authz.CapTransactionRead, id); err != nil {
			return common.ProblemDetailsJSON(c, "Forbidden", err)
		}
		txs, err := svc.Transactions(c.UserContext(), id, transactionsLimit)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to list transactions", err)
		}
		if txs == nil {
			txs = []*domain.Transaction{}
		}
		return c.JSON(txs)
	}
}

// GetTransaction returns one transaction with its chain link.
// @Summary Get a transaction
// @Tags ledger
// @Produce json
// @Param id path string true "Transaction ID"
// @Success 200 {object} domain.Transaction
// @Failure 404 {object} common.ProblemDetails "Not found"
// @Router /transactions/{id} [get]
// @Security Bearer
func GetTransaction(svc *ledgersvc.Service, policy authz.Policy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := common.ParseUUIDParam(c, "id")
		if err != nil {
			return err
		}
		tx, err := svc.Transaction(c.UserContext(), id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to load transaction", err)
		}
		p, err := middleware.Principal(c)
		if err != nil {
			return err
		}
		if !canSee(policy, p, tx) {
			return common.ProblemDetailsJSON(c, "Forbidden", domain.ErrForbidden)
		}
		return c.JSON(tx)
	}
}

func canSee(policy authz.Policy, p authz.Principal, tx *domain.Transaction) bool {
	for _, id := range []*uuid.UUID{tx.SenderAccountID, tx.ReceiverAccountID} {
		if id != nil && policy.CheckOwner(p, authz.CapTransactionRead, *id) == nil {
			return true
		}
	}
	return false
}

// AuditTrail lists audit entries.
// @Summary Audit trail
// @Tags ledger
// @Produce json
// @Param table query string false "Table name"
// @Param record_id query string false "Record ID"
// @Param since query string false "RFC3339 lower bound"
// @Param limit query int false "Maximum entries" default(100)
// @Success 200 {array} domain.AuditEntry
// @Router /audit [get]
// @Security Bearer
func AuditTrail(svc *ledgersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "100"))
		if err != nil || limit <= 0 {
			return common.ProblemDetailsJSON(c, "Invalid limit", domain.ErrValidation, "limit must be a positive integer")
		}
		if limit > maxAuditLimit {
			limit = maxAuditLimit
		}
		f := domain.AuditFilter{
			TableName: c.Query("table"),
			RecordID:  c.Query("record_id"),
			Limit:     limit,
		}
		if raw := c.Query("since"); raw != "" {
			f.Since, err = time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				return common.ProblemDetailsJSON(c, "Invalid since", domain.ErrValidation, "since must be an RFC3339 timestamp")
			}
		}
		entries, err := svc.AuditTrail(c.UserContext(), f)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to read audit trail", err)
		}
		if entries == nil {
			entries = []*domain.AuditEntry{}
		}
		return c.JSON(entries)
	}
}

// Verify recomputes the hash chain. A broken chain is reported with 409 and
// the full report.
// @Summary Verify the transaction hash chain
// @Tags ledger
// @Produce json
// @Success 200 {object} hashchain.Report
// @Failure 409 {object} hashchain.Report "Chain violations found"
// @Failure 500 {object} common.ProblemDetails "Verification could not run"
// @Router /ledger/verify [get]
// @Security Bearer
func Verify(verify VerifyFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		report, err := verify(c.UserContext())
		if err != nil && !errors.Is(err, domain.ErrIntegrityViolation) {
			return common.ProblemDetailsJSON(c, "Chain verification failed", err, fiber.StatusInternalServerError)
		}
		if report == nil {
			return common.ProblemDetailsJSON(c, "Chain verification failed", err, fiber.StatusInternalServerError)
		}
		if !report.OK() {
			return c.Status(fiber.StatusConflict).JSON(report)
		}
		return c.JSON(report)
	}
}

// IntervalReport lists timeline breaks per entity.
type IntervalReport struct {
	AccountID string                                   `json:"account_id"`
	Account   []ledgersvc.IntervalViolation            `json:"account"`
	Balances  map[string][]ledgersvc.IntervalViolation `json:"balances"`
}

// OK reports whether every timeline is contiguous.
func (r IntervalReport) OK() bool {
	if len(r.Account) > 0 {
		return false
	}
	for _, v := range r.Balances {
		if len(v) > 0 {
			return false
		}
	}
	return true
}

// Intervals checks that the versions of an account and of each of its
// balances tile their lifetime without gaps or overlaps.
// @Summary Check version timelines
// @Tags ledger
// @Produce json
// @Param id path string true "Account ID"
// @Success 200 {object} IntervalReport
// @Failure 409 {object} IntervalReport "Timeline violations found"
// @Router /ledger/intervals/{id} [get]
// @Security Bearer
func Intervals(svc *ledgersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := common.ParseUUIDParam(c, "id")
		if err != nil {
			return err
		}
		ctx := c.UserContext()
		out := IntervalReport{AccountID: id.String(), Balances: map[string][]ledgersvc.IntervalViolation{}}
		out.Account, err = svc.CheckAccountIntervals(ctx, id)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to check account timeline", err)
		}
		balances, err := svc.Balances(ctx, id)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return common.ProblemDetailsJSON(c, "Failed to load balances", err)
		}
		for _, b := range balances {
			v, err := svc.CheckBalanceIntervals(ctx, id, b.Currency)
			if err != nil {
				return common.ProblemDetailsJSON(c, "Failed to check balance timeline", err)
			}
			out.Balances[b.Currency] = v
		}
		if !out.OK() {
			return c.Status(fiber.StatusConflict).JSON(out)
		}
		return c.JSON(out)
	}
}

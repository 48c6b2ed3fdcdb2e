package topup_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/amirasaad/topupledger/pkg/authz"
	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/amirasaad/topupledger/webapi/common"
	"github.com/amirasaad/topupledger/webapi/testutils"
	"github.com/amirasaad/topupledger/webapi/topup"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type TopUpTestSuite struct {
	testutils.E2ETestSuite
}

func TestTopUpTestSuite(t *testing.T) {
	suite.Run(t, new(TopUpTestSuite))
}

func (s *TopUpTestSuite) initiateBody(accountID uuid.UUID, amount, card string) string {
	return fmt.Sprintf(`{"user_id":%q,"amount":%q,"visa_card_last_four":%q}`, accountID, amount, card)
}

func (s *TopUpTestSuite) initiate(amount, card string, headers ...string) topup.InitiateResponse {
	resp := s.MakeRequest(fiber.MethodPost, "/topup/initiate", s.initiateBody(s.User.ID, amount, card), s.UserToken, headers...)
	s.Require().Equal(fiber.StatusAccepted, resp.StatusCode)
	var out topup.InitiateResponse
	s.DecodeJSON(resp, &out)
	return out
}

func (s *TopUpTestSuite) status(sagaID string) topup.SagaResponse {
	resp := s.MakeRequest(fiber.MethodGet, "/topup/"+sagaID, "", s.UserToken)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	var out topup.SagaResponse
	s.DecodeJSON(resp, &out)
	return out
}

func (s *TopUpTestSuite) balance(currency string) decimal.Decimal {
	resp := s.MakeRequest(fiber.MethodGet, "/accounts/"+s.User.ID.String()+"/balances/"+currency, "", s.UserToken)
	if resp.StatusCode == fiber.StatusNotFound {
		resp.Body.Close() //nolint: errcheck
		return decimal.Zero
	}
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	var b domain.Balance
	s.DecodeJSON(resp, &b)
	return b.Amount
}

func (s *TopUpTestSuite) TestInitiate_InstantCardCompletes() {
	out := s.initiate("100.00", "9999")
	s.NotEmpty(out.SagaID)
	s.NotEmpty(out.InternalTransactionID)
	s.NotEmpty(out.SmartContractTopUpID)
	s.NotEmpty(out.SmartContractTxHash)
	s.Equal("SUCCESS", out.VisaAPIStatus)
	s.NotEmpty(out.VisaTransactionID)

	s.Settle()
	sg := s.status(out.SagaID)
	s.Equal(domain.SagaCompleted, sg.State)
	s.True(sg.Terminal)
	s.True(decimal.RequireFromString("100").Equal(s.balance("USD")))

	resp := s.MakeRequest(fiber.MethodGet, "/transactions?user_id="+s.User.ID.String(), "", s.UserToken)
	var txs []domain.Transaction
	s.DecodeJSON(resp, &txs)
	s.Require().Len(txs, 1)
	s.Equal(domain.TransactionStatusCompleted, txs[0].Status)
	s.Equal(out.InternalTransactionID, txs[0].ID.String())
}

func (s *TopUpTestSuite) TestInitiate_PendingCardCompletesAfterConfirmations() {
	out := s.initiate("25.50", "4242")
	s.Equal("PENDING", out.VisaAPIStatus)
	s.False(domain.SagaState(out.State).Terminal())

	s.Settle()
	s.Equal(domain.SagaCompleted, s.status(out.SagaID).State)
	s.True(decimal.RequireFromString("25.50").Equal(s.balance("USD")))
}

func (s *TopUpTestSuite) TestInitiate_DeclinedCardFails() {
	out := s.initiate("10.00", "0000")
	s.Equal("ERROR", out.VisaAPIStatus)
	s.Equal(string(domain.SagaFailed), out.State)

	s.Settle()
	s.True(s.balance("USD").IsZero())
}

func (s *TopUpTestSuite) TestInitiate_OnChainFailureAfterPaymentNeedsReconciliation() {
	out := s.initiate("20000.00", "9999")
	s.Settle()
	s.Equal(domain.SagaNeedsReconciliation, s.status(out.SagaID).State)
	s.True(s.balance("USD").IsZero())

	s.Run("listed for operators", func() {
		resp := s.MakeRequest(fiber.MethodGet, "/topup/reconciliation", "", s.AdminToken)
		var list []topup.SagaResponse
		s.DecodeJSON(resp, &list)
		s.Require().Len(list, 1)
		s.Equal(out.SagaID, list[0].ID.String())
	})

	s.Run("hidden from account holders", func() {
		resp := s.MakeRequest(fiber.MethodGet, "/topup/reconciliation", "", s.UserToken)
		defer resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusForbidden, resp.StatusCode)
	})
}

func (s *TopUpTestSuite) TestInitiate_IdempotencyKey() {
	first := s.initiate("5.00", "9999", topup.IdempotencyHeader, "client-key-1")

	resp := s.MakeRequest(fiber.MethodPost, "/topup/initiate", s.initiateBody(s.User.ID, "5.00", "9999"), s.UserToken,
		topup.IdempotencyHeader, "client-key-1")
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	var second topup.InitiateResponse
	s.DecodeJSON(resp, &second)
	s.Equal(first.SagaID, second.SagaID)
	s.Equal("client-key-1", second.CorrelationKey)

	s.Settle()
	s.True(decimal.RequireFromString("5").Equal(s.balance("USD")))
}

func (s *TopUpTestSuite) TestInitiate_RepeatWithoutKeyTopsUpTwice() {
	first := s.initiate("7.00", "9999")
	second := s.initiate("7.00", "9999")
	s.NotEqual(first.SagaID, second.SagaID)
	s.NotEqual(first.CorrelationKey, second.CorrelationKey)

	s.Settle()
	s.Equal(domain.SagaCompleted, s.status(first.SagaID).State)
	s.Equal(domain.SagaCompleted, s.status(second.SagaID).State)
	s.True(decimal.RequireFromString("14").Equal(s.balance("USD")))
}

func (s *TopUpTestSuite) TestInitiate_Validation() {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"user_id":`},
		{"missing card", fmt.Sprintf(`{"user_id":%q,"amount":"1.00"}`, s.User.ID)},
		{"bad user id", `{"user_id":"nope","amount":"1.00","visa_card_last_four":"9999"}`},
		{"bad amount", s.initiateBody(s.User.ID, "ten", "9999")},
		{"negative amount", s.initiateBody(s.User.ID, "-1.00", "9999")},
		{"three decimals", s.initiateBody(s.User.ID, "1.005", "9999")},
		{"short card", s.initiateBody(s.User.ID, "1.00", "99")},
		{"bad currency", fmt.Sprintf(`{"user_id":%q,"amount":"1.00","currency":"US1","visa_card_last_four":"9999"}`, s.User.ID)},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			resp := s.MakeRequest(fiber.MethodPost, "/topup/initiate", tt.body, s.UserToken)
			s.Equal(fiber.StatusBadRequest, resp.StatusCode)
			s.Equal("application/problem+json", resp.Header.Get(fiber.HeaderContentType))
			var pd common.ProblemDetails
			s.DecodeJSON(resp, &pd)
			s.NotEmpty(pd.Error)
		})
	}
	resp := s.MakeRequest(fiber.MethodGet, "/transactions?user_id="+s.User.ID.String(), "", s.UserToken)
	var txs []domain.Transaction
	s.DecodeJSON(resp, &txs)
	s.Empty(txs)
}

func (s *TopUpTestSuite) TestInitiate_Authorization() {
	s.Run("missing token", func() {
		resp := s.MakeRequest(fiber.MethodPost, "/topup/initiate", s.initiateBody(s.User.ID, "1.00", "9999"), "")
		defer resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusBadRequest, resp.StatusCode)
	})
	s.Run("invalid token", func() {
		resp := s.MakeRequest(fiber.MethodPost, "/topup/initiate", s.initiateBody(s.User.ID, "1.00", "9999"), "not-a-jwt.x.y")
		defer resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusUnauthorized, resp.StatusCode)
	})
	s.Run("other account", func() {
		resp := s.MakeRequest(fiber.MethodPost, "/topup/initiate", s.initiateBody(uuid.New(), "1.00", "9999"), s.UserToken)
		defer resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusForbidden, resp.StatusCode)
	})
	s.Run("service role", func() {
		token, err := s.Token("webhook-relay", authz.RoleService)
		s.Require().NoError(err)
		resp := s.MakeRequest(fiber.MethodPost, "/topup/initiate", s.initiateBody(s.User.ID, "1.00", "9999"), token)
		defer resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusForbidden, resp.StatusCode)
	})
	s.Run("unknown account", func() {
		resp := s.MakeRequest(fiber.MethodPost, "/topup/initiate", s.initiateBody(uuid.New(), "1.00", "9999"), s.AdminToken)
		defer resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusNotFound, resp.StatusCode)
	})
}

func (s *TopUpTestSuite) TestStatus() {
	s.Run("unknown saga", func() {
		resp := s.MakeRequest(fiber.MethodGet, "/topup/"+uuid.NewString(), "", s.AdminToken)
		defer resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusNotFound, resp.StatusCode)
	})
	s.Run("malformed id", func() {
		resp := s.MakeRequest(fiber.MethodGet, "/topup/not-a-uuid", "", s.AdminToken)
		defer resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusBadRequest, resp.StatusCode)
	})
	s.Run("someone else's saga", func() {
		out := s.initiate("3.00", "9999")
		s.Settle()
		other := s.CreateAccount("Other", "other_"+uuid.NewString()[:8]+"@example.com", "")
		token, err := s.Token(other.ID.String(), authz.RoleUser)
		s.Require().NoError(err)
		resp := s.MakeRequest(fiber.MethodGet, "/topup/"+out.SagaID, "", token)
		defer resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusForbidden, resp.StatusCode)
	})
}

func (s *TopUpTestSuite) TestCancel_AfterSubmissionConflicts() {
	out := s.initiate("4.00", "9999")
	s.Settle()

	resp := s.MakeRequest(fiber.MethodPost, "/topup/"+out.SagaID+"/cancel", "", s.UserToken)
	s.Equal(fiber.StatusConflict, resp.StatusCode)
	var pd common.ProblemDetails
	s.DecodeJSON(resp, &pd)
	s.Equal(fiber.StatusConflict, pd.Status)
	s.Equal(domain.SagaCompleted, s.status(out.SagaID).State)
}

func (s *TopUpTestSuite) TestWebhook_StripeDisabledForCardSimulator() {
	resp := s.MakeRequest(fiber.MethodPost, "/topup/webhook/stripe", `{}`, "", "Stripe-Signature", "t=1,v1=abc")
	defer resp.Body.Close() //nolint: errcheck
	s.Equal(fiber.StatusNotFound, resp.StatusCode)
}

func (s *TopUpTestSuite) TestWebhook_InvalidPayload() {
	tests := []string{
		`not json`,
		`{"status":"SUCCESS"}`,
		`{"topUpId":"1","status":"MAYBE"}`,
	}
	for _, body := range tests {
		resp := s.MakeRequest(fiber.MethodPost, "/topup/webhook/visa_confirmation", body, "")
		resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusBadRequest, resp.StatusCode, body)
	}
}

// WebhookTestSuite holds the card network confirmation back so the
// webhook decides the payment outcome.
type WebhookTestSuite struct {
	testutils.E2ETestSuite
}

func TestWebhookTestSuite(t *testing.T) {
	suite.Run(t, new(WebhookTestSuite))
}

func (s *WebhookTestSuite) SetupTest() {
	cfg := testutils.TestConfig()
	cfg.PaymentProviders.VisaSim.ConfirmDelay = time.Hour
	s.Env = testutils.NewEnv(s.T(), cfg, nil)

	var err error
	s.AdminToken, err = s.Token("ops-admin", authz.RoleAdmin)
	s.Require().NoError(err)
	s.User = s.CreateAccount("Webhook Holder", "hook_"+uuid.NewString()[:8]+"@example.com", "")
	s.UserToken, err = s.Token(s.User.ID.String(), authz.RoleUser)
	s.Require().NoError(err)
}

func (s *WebhookTestSuite) pendingTopUp(amount string) topup.InitiateResponse {
	body := fmt.Sprintf(`{"user_id":%q,"amount":%q,"visa_card_last_four":"4242"}`, s.User.ID, amount)
	resp := s.MakeRequest(fiber.MethodPost, "/topup/initiate", body, s.UserToken)
	s.Require().Equal(fiber.StatusAccepted, resp.StatusCode)
	var out topup.InitiateResponse
	s.DecodeJSON(resp, &out)
	s.Require().Equal("PENDING", out.VisaAPIStatus)
	s.Contract.Wait()
	return out
}

func (s *WebhookTestSuite) confirm(out topup.InitiateResponse, status string) {
	body := fmt.Sprintf(`{"topUpId":%q,"status":%q,"message":"from card network","processor_transaction_id":%q}`,
		out.SmartContractTopUpID, status, out.VisaTransactionID)
	resp := s.MakeRequest(fiber.MethodPost, "/topup/webhook/visa_confirmation", body, "")
	defer resp.Body.Close() //nolint: errcheck
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
}

func (s *WebhookTestSuite) state(sagaID string) domain.SagaState {
	resp := s.MakeRequest(fiber.MethodGet, "/topup/"+sagaID, "", s.AdminToken)
	var sg topup.SagaResponse
	s.DecodeJSON(resp, &sg)
	return sg.State
}

func (s *WebhookTestSuite) TestSuccessCompletes() {
	out := s.pendingTopUp("12.00")
	s.Equal(domain.SagaOnChainConfirmed, s.state(out.SagaID))

	s.confirm(out, "SUCCESS")
	s.Equal(domain.SagaCompleted, s.state(out.SagaID))

	s.Run("replayed webhook is harmless", func() {
		s.confirm(out, "SUCCESS")
		s.Equal(domain.SagaCompleted, s.state(out.SagaID))
	})
}

func (s *WebhookTestSuite) TestFailureAfterOnChainConfirmationNeedsReconciliation() {
	out := s.pendingTopUp("12.00")
	s.confirm(out, "FAILED")
	s.Equal(domain.SagaNeedsReconciliation, s.state(out.SagaID))

	resp := s.MakeRequest(fiber.MethodGet, "/transactions/"+out.InternalTransactionID, "", s.UserToken)
	var tx domain.Transaction
	s.DecodeJSON(resp, &tx)
	s.Equal(domain.TransactionStatusPending, tx.Status)
}

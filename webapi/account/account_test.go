package account_test

import (
	"net/url"
	"testing"
	"time"

	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/amirasaad/topupledger/webapi/account"
	"github.com/amirasaad/topupledger/webapi/testutils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type AccountTestSuite struct {
	testutils.E2ETestSuite
}

func TestAccountTestSuite(t *testing.T) {
	suite.Run(t, new(AccountTestSuite))
}

func (s *AccountTestSuite) path(suffix string) string {
	return "/accounts/" + s.User.ID.String() + suffix
}

func (s *AccountTestSuite) history(query string) account.AccountHistoryResponse {
	resp := s.MakeRequest(fiber.MethodGet, s.path("/history")+query, "", s.UserToken)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	var out account.AccountHistoryResponse
	s.DecodeJSON(resp, &out)
	return out
}

func (s *AccountTestSuite) TestCreateAccount() {
	s.Run("duplicate contact", func() {
		body := `{"holder_name":"Dup","contact":"` + s.User.Contact + `"}`
		resp := s.MakeRequest(fiber.MethodPost, "/accounts", body, s.AdminToken)
		defer resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusConflict, resp.StatusCode)
	})
	s.Run("missing holder", func() {
		resp := s.MakeRequest(fiber.MethodPost, "/accounts", `{"contact":"a@example.com"}`, s.AdminToken)
		defer resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusBadRequest, resp.StatusCode)
	})
	s.Run("credential is never returned", func() {
		resp := s.MakeRequest(fiber.MethodGet, s.path(""), "", s.UserToken)
		var out struct {
			Data map[string]any `json:"data"`
		}
		s.DecodeJSON(resp, &out)
		s.NotContains(out.Data, "credential_hash")
		s.NotContains(out.Data, "CredentialHash")
		s.Equal(s.User.Contact, out.Data["contact"])
	})
}

func (s *AccountTestSuite) TestUpdateArchivesPreviousVersion() {
	before := time.Now().UTC()
	time.Sleep(5 * time.Millisecond)

	resp := s.MakeRequest(fiber.MethodPatch, s.path(""), `{"holder_name":"Renamed Holder"}`, s.AdminToken)
	resp.Body.Close() //nolint: errcheck
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)

	timeline := s.history("")
	s.Require().Len(timeline.Versions, 2)
	s.Equal("Test Holder", timeline.Versions[0].HolderName)
	s.Require().NotNil(timeline.Versions[0].ValidTo)
	s.Equal("Renamed Holder", timeline.Versions[1].HolderName)
	s.Nil(timeline.Versions[1].ValidTo)
	s.True(timeline.Versions[0].ValidTo.Equal(timeline.Versions[1].ValidFrom))

	s.Run("as_of before the update", func() {
		out := s.history("?as_of=" + url.QueryEscape(before.Format(time.RFC3339Nano)))
		s.Require().NotNil(out.Account)
		s.Equal("Test Holder", out.Account.HolderName)
	})
	s.Run("as_of now", func() {
		out := s.history("?as_of=" + url.QueryEscape(time.Now().UTC().Format(time.RFC3339Nano)))
		s.Require().NotNil(out.Account)
		s.Equal("Renamed Holder", out.Account.HolderName)
	})
	s.Run("as_of before creation", func() {
		q := "?as_of=" + url.QueryEscape(s.User.CreatedAt.Add(-time.Hour).Format(time.RFC3339Nano))
		resp := s.MakeRequest(fiber.MethodGet, s.path("/history")+q, "", s.UserToken)
		defer resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusNotFound, resp.StatusCode)
	})
	s.Run("malformed as_of", func() {
		resp := s.MakeRequest(fiber.MethodGet, s.path("/history?as_of=yesterday"), "", s.UserToken)
		defer resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusBadRequest, resp.StatusCode)
	})
	s.Run("audit trail records the update", func() {
		resp := s.MakeRequest(fiber.MethodGet, "/audit?table=accounts&record_id="+s.User.ID.String(), "", s.AdminToken)
		var entries []domain.AuditEntry
		s.DecodeJSON(resp, &entries)
		s.Require().Len(entries, 2)
		s.Equal(domain.AuditUpdate, entries[0].Action)
		s.Equal("ops-admin", entries[0].Actor)
		s.Contains(entries[0].Request, "PATCH /accounts/")
		s.Equal(domain.AuditInsert, entries[1].Action)
	})
}

func (s *AccountTestSuite) TestUpdateValidation() {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"unknown status", `{"status":"frozen"}`, fiber.StatusBadRequest},
		{"empty holder", `{"holder_name":"  "}`, fiber.StatusBadRequest},
		{"short credential", `{"credential":"short"}`, fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			resp := s.MakeRequest(fiber.MethodPatch, s.path(""), tt.body, s.AdminToken)
			defer resp.Body.Close() //nolint: errcheck
			s.Equal(tt.code, resp.StatusCode)
		})
	}
	s.Run("unknown account", func() {
		resp := s.MakeRequest(fiber.MethodPatch, "/accounts/"+uuid.NewString(), `{"holder_name":"X"}`, s.AdminToken)
		defer resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusNotFound, resp.StatusCode)
	})
	s.Run("account holders cannot write", func() {
		resp := s.MakeRequest(fiber.MethodPatch, s.path(""), `{"holder_name":"Me"}`, s.UserToken)
		defer resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusForbidden, resp.StatusCode)
	})
}

func (s *AccountTestSuite) TestDeleteKeepsHistory() {
	resp := s.MakeRequest(fiber.MethodDelete, s.path(""), "", s.AdminToken)
	resp.Body.Close() //nolint: errcheck
	s.Require().Equal(fiber.StatusNoContent, resp.StatusCode)

	resp = s.MakeRequest(fiber.MethodGet, s.path(""), "", s.AdminToken)
	resp.Body.Close() //nolint: errcheck
	s.Equal(fiber.StatusNotFound, resp.StatusCode)

	resp = s.MakeRequest(fiber.MethodGet, s.path("/history"), "", s.AdminToken)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	var out account.AccountHistoryResponse
	s.DecodeJSON(resp, &out)
	s.Require().Len(out.Versions, 1)
	s.NotNil(out.Versions[0].ValidTo)

	resp = s.MakeRequest(fiber.MethodDelete, s.path(""), "", s.AdminToken)
	defer resp.Body.Close() //nolint: errcheck
	s.Equal(fiber.StatusNotFound, resp.StatusCode)
}

func (s *AccountTestSuite) TestBalances() {
	s.Run("none yet", func() {
		resp := s.MakeRequest(fiber.MethodGet, s.path("/balances"), "", s.UserToken)
		var bs []domain.Balance
		s.DecodeJSON(resp, &bs)
		s.Empty(bs)

		resp = s.MakeRequest(fiber.MethodGet, s.path("/balances/USD"), "", s.UserToken)
		defer resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusNotFound, resp.StatusCode)
	})

	body := `{"user_id":"` + s.User.ID.String() + `","amount":"40.00","visa_card_last_four":"9999"}`
	resp := s.MakeRequest(fiber.MethodPost, "/topup/initiate", body, s.UserToken)
	resp.Body.Close() //nolint: errcheck
	s.Require().Equal(fiber.StatusAccepted, resp.StatusCode)
	beforeCredit := time.Now().UTC()
	s.Settle()

	s.Run("current", func() {
		resp := s.MakeRequest(fiber.MethodGet, s.path("/balances/usd"), "", s.UserToken)
		s.Require().Equal(fiber.StatusOK, resp.StatusCode)
		var b domain.Balance
		s.DecodeJSON(resp, &b)
		s.Equal("USD", b.Currency)
		s.True(decimal.RequireFromString("40").Equal(b.Amount))
	})
	s.Run("timeline", func() {
		resp := s.MakeRequest(fiber.MethodGet, s.path("/balances/USD/history"), "", s.UserToken)
		var versions []domain.BalanceVersion
		s.DecodeJSON(resp, &versions)
		s.Require().NotEmpty(versions)
		s.Nil(versions[len(versions)-1].ValidTo)
	})
	s.Run("as_of before the credit", func() {
		resp := s.MakeRequest(fiber.MethodGet, s.path("/balances/USD?as_of=")+url.QueryEscape(beforeCredit.Format(time.RFC3339Nano)), "", s.UserToken)
		defer resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusNotFound, resp.StatusCode)
	})
	s.Run("timelines are contiguous", func() {
		resp := s.MakeRequest(fiber.MethodGet, "/ledger/intervals/"+s.User.ID.String(), "", s.AdminToken)
		s.Equal(fiber.StatusOK, resp.StatusCode)
		var report struct {
			Account  []any            `json:"account"`
			Balances map[string][]any `json:"balances"`
		}
		s.DecodeJSON(resp, &report)
		s.Empty(report.Account)
		s.Contains(report.Balances, "USD")
		s.Empty(report.Balances["USD"])
	})
}

func (s *AccountTestSuite) TestReadsAreScopedToOwner() {
	other := s.CreateAccount("Other", "other_"+uuid.NewString()[:8]+"@example.com", "")
	for _, suffix := range []string{"", "/history", "/balances", "/balances/USD", "/balances/USD/history"} {
		resp := s.MakeRequest(fiber.MethodGet, "/accounts/"+other.ID.String()+suffix, "", s.UserToken)
		resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusForbidden, resp.StatusCode, suffix)
	}
}

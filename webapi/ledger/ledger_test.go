package ledger_test

import (
	"testing"

	"github.com/amirasaad/topupledger/pkg/authz"
	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/amirasaad/topupledger/pkg/hashchain"
	"github.com/amirasaad/topupledger/webapi/testutils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type LedgerTestSuite struct {
	testutils.E2ETestSuite
}

func TestLedgerTestSuite(t *testing.T) {
	suite.Run(t, new(LedgerTestSuite))
}

// completedTopUp runs one instant top-up to completion and returns its
// ledger transaction.
func (s *LedgerTestSuite) completedTopUp(amount string) *domain.Transaction {
	body := `{"user_id":"` + s.User.ID.String() + `","amount":"` + amount + `","visa_card_last_four":"9999"}`
	resp := s.MakeRequest(fiber.MethodPost, "/topup/initiate", body, s.UserToken)
	resp.Body.Close() //nolint: errcheck
	s.Require().Equal(fiber.StatusAccepted, resp.StatusCode)
	s.Settle()

	resp = s.MakeRequest(fiber.MethodGet, "/transactions?user_id="+s.User.ID.String(), "", s.UserToken)
	var txs []*domain.Transaction
	s.DecodeJSON(resp, &txs)
	s.Require().NotEmpty(txs)
	return txs[0]
}

func (s *LedgerTestSuite) verify() (int, hashchain.Report) {
	resp := s.MakeRequest(fiber.MethodGet, "/ledger/verify", "", s.AdminToken)
	code := resp.StatusCode
	var report hashchain.Report
	s.DecodeJSON(resp, &report)
	return code, report
}

func (s *LedgerTestSuite) TestTransactions() {
	tx := s.completedTopUp("25.00")
	s.Equal(domain.TransactionStatusCompleted, tx.Status)
	s.Equal(int64(1), tx.ChainSeq)
	s.Len(tx.CurrentHash, 64)

	s.Run("single transaction", func() {
		resp := s.MakeRequest(fiber.MethodGet, "/transactions/"+tx.ID.String(), "", s.UserToken)
		s.Require().Equal(fiber.StatusOK, resp.StatusCode)
		var got domain.Transaction
		s.DecodeJSON(resp, &got)
		s.Equal(tx.CurrentHash, got.CurrentHash)
	})
	s.Run("unknown transaction", func() {
		resp := s.MakeRequest(fiber.MethodGet, "/transactions/"+uuid.NewString(), "", s.UserToken)
		defer resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusNotFound, resp.StatusCode)
	})
	s.Run("invalid user_id", func() {
		resp := s.MakeRequest(fiber.MethodGet, "/transactions?user_id=abc", "", s.UserToken)
		defer resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusBadRequest, resp.StatusCode)
	})

	other := s.CreateAccount("Other", "other_"+uuid.NewString()[:8]+"@example.com", "")
	otherToken, err := s.Token(other.ID.String(), authz.RoleUser)
	s.Require().NoError(err)
	s.Run("other holders see neither the list nor the entry", func() {
		resp := s.MakeRequest(fiber.MethodGet, "/transactions?user_id="+s.User.ID.String(), "", otherToken)
		resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusForbidden, resp.StatusCode)

		resp = s.MakeRequest(fiber.MethodGet, "/transactions/"+tx.ID.String(), "", otherToken)
		resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusForbidden, resp.StatusCode)
	})
}

func (s *LedgerTestSuite) TestAuditTrail() {
	s.completedTopUp("10.00")

	s.Run("transactions table", func() {
		resp := s.MakeRequest(fiber.MethodGet, "/audit?table=transactions", "", s.AdminToken)
		var entries []domain.AuditEntry
		s.DecodeJSON(resp, &entries)
		s.Require().NotEmpty(entries)
		last := entries[len(entries)-1]
		s.Equal(domain.AuditInsert, last.Action)
		s.Nil(last.Before)
		s.NotEmpty(last.After)
		for _, e := range entries {
			s.Equal("transactions", e.TableName)
		}
	})
	s.Run("limit", func() {
		resp := s.MakeRequest(fiber.MethodGet, "/audit?limit=1", "", s.AdminToken)
		var entries []domain.AuditEntry
		s.DecodeJSON(resp, &entries)
		s.Len(entries, 1)
	})
	s.Run("invalid parameters", func() {
		for _, q := range []string{"?limit=0", "?limit=x", "?since=yesterday"} {
			resp := s.MakeRequest(fiber.MethodGet, "/audit"+q, "", s.AdminToken)
			resp.Body.Close() //nolint: errcheck
			s.Equal(fiber.StatusBadRequest, resp.StatusCode, q)
		}
	})
	s.Run("account holders cannot read it", func() {
		resp := s.MakeRequest(fiber.MethodGet, "/audit", "", s.UserToken)
		defer resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusForbidden, resp.StatusCode)
	})
}

func (s *LedgerTestSuite) TestVerify() {
	s.Run("empty chain", func() {
		code, report := s.verify()
		s.Equal(fiber.StatusOK, code)
		s.Zero(report.Checked)
	})

	s.completedTopUp("10.00")
	tx := s.completedTopUp("15.00")

	s.Run("intact chain", func() {
		code, report := s.verify()
		s.Equal(fiber.StatusOK, code)
		s.Equal(2, report.Checked)
		s.Equal(int64(2), report.HeadSeq)
		s.Equal(tx.CurrentHash, report.HeadHash)
		s.Empty(report.Violations)
	})
	s.Run("account holders cannot verify", func() {
		resp := s.MakeRequest(fiber.MethodGet, "/ledger/verify", "", s.UserToken)
		defer resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusForbidden, resp.StatusCode)
	})
	s.Run("tampered amount", func() {
		s.Require().NoError(s.DB.Exec("UPDATE transactions SET amount = ? WHERE id = ?", "1500.00", tx.ID).Error)
		code, report := s.verify()
		s.Equal(fiber.StatusConflict, code)
		s.Require().NotEmpty(report.Violations)
		s.Equal(hashchain.ContentMismatch, report.Violations[0].Kind)
		s.Equal(tx.ID, report.Violations[0].TransactionID)
	})
}

func (s *LedgerTestSuite) TestIntervals() {
	s.completedTopUp("5.00")
	s.completedTopUp("7.50")

	s.Run("contiguous", func() {
		resp := s.MakeRequest(fiber.MethodGet, "/ledger/intervals/"+s.User.ID.String(), "", s.AdminToken)
		s.Equal(fiber.StatusOK, resp.StatusCode)
		var report struct {
			AccountID string `json:"account_id"`
		}
		s.DecodeJSON(resp, &report)
		s.Equal(s.User.ID.String(), report.AccountID)
	})
	s.Run("overlapping versions", func() {
		s.Require().NoError(s.DB.Exec(
			"UPDATE balance_history SET valid_to = ? WHERE account_id = ?",
			"2999-01-01 00:00:00+00:00", s.User.ID,
		).Error)
		resp := s.MakeRequest(fiber.MethodGet, "/ledger/intervals/"+s.User.ID.String(), "", s.AdminToken)
		defer resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusConflict, resp.StatusCode)
	})
	s.Run("unknown account", func() {
		resp := s.MakeRequest(fiber.MethodGet, "/ledger/intervals/"+uuid.NewString(), "", s.AdminToken)
		defer resp.Body.Close() //nolint: errcheck
		s.Equal(fiber.StatusNotFound, resp.StatusCode)
	})
}

// Package testutils runs the whole HTTP stack in-process for route tests:
// a private SQLite database, the synchronous memory bus, the simulated
// contract and the simulated card network.
package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	infraeventbus "github.com/amirasaad/topupledger/infra/eventbus"
	"github.com/amirasaad/topupledger/infra/provider/simcontract"
	"github.com/amirasaad/topupledger/infra/provider/visasim"
	"github.com/amirasaad/topupledger/infra/repository"
	"github.com/amirasaad/topupledger/internal/fixtures"
	"github.com/amirasaad/topupledger/pkg/app"
	"github.com/amirasaad/topupledger/pkg/authz"
	"github.com/amirasaad/topupledger/pkg/config"
	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/amirasaad/topupledger/pkg/eventbus"
	"github.com/amirasaad/topupledger/pkg/provider/payment"
	"github.com/amirasaad/topupledger/webapi"
	"github.com/amirasaad/topupledger/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

// TestSecret signs the tokens minted by the fixture.
const TestSecret = "test-secret-do-not-use"

// TestConfig is an application config with short simulator delays and a
// generous rate limit.
func TestConfig() *config.App {
	return &config.App{
		Env:       "test",
		Server:    &config.Server{Scheme: "http", Host: "localhost", Port: 3000},
		Log:       &config.Log{Format: "text"},
		DB:        &config.DB{Driver: "sqlite"},
		Auth:      &config.Auth{Strategy: "jwt", Jwt: &config.Jwt{Secret: TestSecret, Expiry: time.Hour}},
		EventBus:  &config.EventBus{Driver: "memory"},
		RateLimit: &config.RateLimit{MaxRequests: 1000, Window: time.Minute},
		PaymentProviders: &config.PaymentProviders{
			Driver:  "visa_sim",
			VisaSim: &config.VisaSim{ConfirmDelay: 10 * time.Millisecond},
		},
		Chain: &config.Chain{Driver: "sim", ConfirmDelay: 100 * time.Millisecond, MaxAmountCents: 1_000_000},
		Saga: &config.Saga{
			CallTimeout:   time.Second,
			MaxRetries:    1,
			StaleAfter:    time.Hour,
			SweepInterval: time.Hour,
			Currency:      "USD",
		},
	}
}

// GatewayFactory builds the payment gateway on the fixture's bus.
type GatewayFactory func(bus eventbus.Bus, logger *slog.Logger) payment.Gateway

// Env is one in-process deployment.
type Env struct {
	App      *app.App
	Fiber    *fiber.App
	DB       *gorm.DB
	Bus      *infraeventbus.MemoryEventBus
	Contract *simcontract.Contract
	Gateway  payment.Gateway
}

// NewEnv builds an Env. A nil gateway factory selects the card network
// simulator.
func NewEnv(t testing.TB, cfg *config.App, gateway GatewayFactory) *Env {
	t.Helper()
	db := fixtures.NewTestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bus := infraeventbus.NewWithMemory(logger)
	contract := simcontract.New(bus, cfg.Chain, logger)
	var gw payment.Gateway
	if gateway != nil {
		gw = gateway(bus, logger)
	} else {
		gw = visasim.New(bus, cfg.PaymentProviders.VisaSim, logger)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	a := app.New(&app.Deps{
		Uow:      repository.NewUoW(db),
		EventBus: bus,
		Contract: contract,
		Gateway:  gw,
		Chain:    repository.NewChainSnapshot(db),
		PingDB:   sqlDB.PingContext,
		Logger:   logger,
	}, cfg)
	return &Env{
		App:      a,
		Fiber:    webapi.SetupApp(a),
		DB:       db,
		Bus:      bus,
		Contract: contract,
		Gateway:  gw,
	}
}

// Settle blocks until every simulated confirmation was delivered.
func (e *Env) Settle() {
	e.Contract.Wait()
	if g, ok := e.Gateway.(*visasim.Gateway); ok {
		g.Wait()
	}
}

// Token mints a token for subject with roles.
func (e *Env) Token(subject string, roles ...authz.Role) (string, error) {
	return e.App.AuthService.GenerateToken(context.Background(), authz.Principal{Subject: subject, Roles: roles})
}

// Request sends one request through the fiber stack. headers are
// name/value pairs.
func (e *Env) Request(method, path, body, token string, headers ...string) (*http.Response, error) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return e.Fiber.Test(req, -1)
}

// E2ETestSuite gives every test a fresh Env, an admin token and one
// account holder with a token of its own.
type E2ETestSuite struct {
	suite.Suite
	*Env
	AdminToken string
	User       *domain.Account
	UserToken  string
}

// SetupTest builds the Env with TestConfig and the card network simulator.
func (s *E2ETestSuite) SetupTest() {
	s.Env = NewEnv(s.T(), TestConfig(), nil)
	var err error
	s.AdminToken, err = s.Token("ops-admin", authz.RoleAdmin)
	s.Require().NoError(err)
	s.User = s.CreateAccount("Test Holder", fmt.Sprintf("holder_%s@example.com", uuid.NewString()[:8]), "password123")
	s.UserToken, err = s.Token(s.User.ID.String(), authz.RoleUser)
	s.Require().NoError(err)
}

// MakeRequest is Request that fails the test on transport errors.
func (s *E2ETestSuite) MakeRequest(method, path, body, token string, headers ...string) *http.Response {
	resp, err := s.Request(method, path, body, token, headers...)
	s.Require().NoError(err)
	return resp
}

// CreateAccount opens an account through POST /accounts as admin.
func (s *E2ETestSuite) CreateAccount(holder, contact, credential string) *domain.Account {
	body := fmt.Sprintf(`{"holder_name":%q,"contact":%q,"credential":%q}`, holder, contact, credential)
	resp := s.MakeRequest(http.MethodPost, "/accounts", body, s.AdminToken)
	defer resp.Body.Close() //nolint: errcheck
	s.Require().Equal(fiber.StatusCreated, resp.StatusCode)

	var out struct {
		common.Response
		Data *domain.Account `json:"data"`
	}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&out))
	s.Require().NotNil(out.Data)
	return out.Data
}

// DecodeJSON decodes the response body into v and closes it.
func (s *E2ETestSuite) DecodeJSON(resp *http.Response, v any) {
	defer resp.Body.Close() //nolint: errcheck
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(v))
}

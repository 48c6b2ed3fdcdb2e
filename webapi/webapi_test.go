package webapi_test

import (
	"encoding/json"
	"testing"

	infracache "github.com/amirasaad/topupledger/infra/cache"
	"github.com/amirasaad/topupledger/pkg/app"
	"github.com/amirasaad/topupledger/pkg/config"
	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/amirasaad/topupledger/pkg/middleware"
	"github.com/amirasaad/topupledger/webapi"
	"github.com/amirasaad/topupledger/webapi/common"
	"github.com/amirasaad/topupledger/webapi/testutils"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode[T any](t *testing.T, env *testutils.Env, method, path, body, token string, headers ...string) (int, T) {
	t.Helper()
	resp, err := env.Request(method, path, body, token, headers...)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint: errcheck
	var out T
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestRoot(t *testing.T) {
	env := testutils.NewEnv(t, testutils.TestConfig(), nil)
	resp, err := env.Request(fiber.MethodGet, "/", "", "")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint: errcheck
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))
}

func TestHealth(t *testing.T) {
	env := testutils.NewEnv(t, testutils.TestConfig(), nil)

	t.Run("all dependencies up", func(t *testing.T) {
		code, h := decode[app.Health](t, env, fiber.MethodGet, "/health", "", "")
		assert.Equal(t, fiber.StatusOK, code)
		assert.Equal(t, app.Health{Database: "ok", EthNode: "ok", Contract: "ok", EventBus: "ok"}, h)
	})

	t.Run("database down", func(t *testing.T) {
		sqlDB, err := env.DB.DB()
		require.NoError(t, err)
		require.NoError(t, sqlDB.Close())

		code, h := decode[app.Health](t, env, fiber.MethodGet, "/health", "", "")
		assert.Equal(t, fiber.StatusServiceUnavailable, code)
		assert.Equal(t, "unavailable", h.Database)
		assert.Equal(t, "ok", h.Contract)
	})
}

func TestRateLimit(t *testing.T) {
	cfg := testutils.TestConfig()
	cfg.RateLimit.MaxRequests = 2
	env := testutils.NewEnv(t, cfg, nil)

	t.Run("third request is rejected", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			code, _ := decode[map[string]any](t, env, fiber.MethodGet, "/", "", "", "X-Forwarded-For", "10.0.0.1")
			require.Equal(t, fiber.StatusOK, code)
		}
		code, pd := decode[common.ProblemDetails](t, env, fiber.MethodGet, "/", "", "", "X-Forwarded-For", "10.0.0.1")
		assert.Equal(t, fiber.StatusTooManyRequests, code)
		assert.Equal(t, "Too Many Requests", pd.Title)
	})

	t.Run("clients are limited separately", func(t *testing.T) {
		code, _ := decode[map[string]any](t, env, fiber.MethodGet, "/", "", "", "X-Forwarded-For", "10.0.0.2, 172.16.0.1")
		assert.Equal(t, fiber.StatusOK, code)
		code, _ = decode[map[string]any](t, env, fiber.MethodGet, "/", "", "", "X-Real-IP", "10.0.0.3")
		assert.Equal(t, fiber.StatusOK, code)
	})

	t.Run("webhooks are exempt", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			code, _ := decode[common.ProblemDetails](t, env, fiber.MethodPost, "/topup/webhook/visa_confirmation", `{}`, "", "X-Forwarded-For", "10.0.0.1")
			assert.Equal(t, fiber.StatusBadRequest, code)
		}
	})
}

func TestRateLimitSharedAcrossReplicas(t *testing.T) {
	cfg := testutils.TestConfig()
	cfg.RateLimit.MaxRequests = 2
	store := infracache.NewMemoryStore(0)
	t.Cleanup(func() { _ = store.Close() })

	replicas := make([]*testutils.Env, 2)
	for i := range replicas {
		env := testutils.NewEnv(t, cfg, nil)
		env.App.Deps.RateLimitStore = store
		env.Fiber = webapi.SetupApp(env.App)
		replicas[i] = env
	}

	for _, env := range replicas {
		code, _ := decode[map[string]any](t, env, fiber.MethodGet, "/", "", "", "X-Forwarded-For", "10.0.0.9")
		require.Equal(t, fiber.StatusOK, code)
	}
	code, _ := decode[common.ProblemDetails](t, replicas[0], fiber.MethodGet, "/", "", "", "X-Forwarded-For", "10.0.0.9")
	assert.Equal(t, fiber.StatusTooManyRequests, code)
	assert.Equal(t, 1, store.Len())
}

func TestNoAuthStrategy(t *testing.T) {
	cfg := testutils.TestConfig()
	cfg.Auth = &config.Auth{Strategy: "none"}
	env := testutils.NewEnv(t, cfg, nil)
	require.Nil(t, env.App.AuthService)

	body := `{"holder_name":"Dev Holder","contact":"dev@example.com"}`
	code, _ := decode[map[string]any](t, env, fiber.MethodPost, "/accounts", body, "", middleware.ActorHeader, "dev-operator")
	require.Equal(t, fiber.StatusCreated, code)

	code, entries := decode[[]domain.AuditEntry](t, env, fiber.MethodGet, "/audit?table=accounts", "", "")
	require.Equal(t, fiber.StatusOK, code)
	require.Len(t, entries, 1)
	assert.Equal(t, "dev-operator", entries[0].Actor)

	t.Run("login is not served", func(t *testing.T) {
		code, _ := decode[map[string]any](t, env, fiber.MethodPost, "/auth/login", `{"contact":"dev@example.com","credential":"x"}`, "")
		assert.Equal(t, fiber.StatusNotFound, code)
	})
}

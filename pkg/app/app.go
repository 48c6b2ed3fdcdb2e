// Package app assembles the services behind the HTTP surface and registers
// their event handlers on the bus.
package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/amirasaad/topupledger/pkg/authz"
	"github.com/amirasaad/topupledger/pkg/cache"
	"github.com/amirasaad/topupledger/pkg/config"
	"github.com/amirasaad/topupledger/pkg/eventbus"
	"github.com/amirasaad/topupledger/pkg/handler/common"
	"github.com/amirasaad/topupledger/pkg/hashchain"
	"github.com/amirasaad/topupledger/pkg/ledger"
	"github.com/amirasaad/topupledger/pkg/provider/onchain"
	"github.com/amirasaad/topupledger/pkg/provider/payment"
	"github.com/amirasaad/topupledger/pkg/repository"
	"github.com/amirasaad/topupledger/pkg/service/auth"
	"github.com/amirasaad/topupledger/pkg/service/topup"
)

// Deps contains the infrastructure the services are built on.
type Deps struct {
	Uow      repository.UnitOfWork
	EventBus eventbus.Bus
	Contract onchain.Contract
	Gateway  payment.Gateway
	// Chain is the consistent-snapshot reader used by the verifier.
	Chain  hashchain.Source
	PingDB func(ctx context.Context) error
	// RateLimitStore holds the limiter counters; nil keeps them per process.
	RateLimitStore cache.Store
	Logger         *slog.Logger
	// Closers are released in reverse order by Close.
	Closers []io.Closer
}

type App struct {
	Deps        *Deps
	Config      *config.App
	Policy      authz.Policy
	Ledger      *ledger.Service
	TopUp       *topup.Service
	AuthService *auth.Service
	Idempotency *common.IdempotencyTracker
}

func New(deps *Deps, cfg *config.App) *App {
	app := &App{
		Deps:        deps,
		Config:      cfg,
		Policy:      authz.DefaultPolicy(),
		Idempotency: common.NewIdempotencyTracker(0),
	}
	app.Ledger = ledger.New(deps.Uow, deps.Logger)
	app.TopUp = topup.New(
		app.Ledger,
		deps.Uow,
		deps.Contract,
		deps.Gateway,
		deps.EventBus,
		deps.Logger,
		topup.ConfigFrom(cfg.Saga),
	)
	if cfg.Auth != nil && cfg.Auth.Jwt != nil {
		app.AuthService = auth.NewWithJWT(app.Ledger, cfg.Auth.Jwt, deps.Logger)
	}
	app.setupEventBus()
	return app
}

// Start runs the background workers until ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	go a.TopUp.RunSweeper(ctx)
}

// VerifyChain walks the whole transaction chain.
func (a *App) VerifyChain(ctx context.Context) (*hashchain.Report, error) {
	return hashchain.Verify(ctx, a.Deps.Chain)
}

// Close releases the infrastructure in reverse order of acquisition.
func (a *App) Close() error {
	var first error
	for i := len(a.Deps.Closers) - 1; i >= 0; i-- {
		if err := a.Deps.Closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

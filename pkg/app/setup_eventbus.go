package app

import (
	topuphandler "github.com/amirasaad/topupledger/pkg/handler/topup"
)

// setupEventBus registers all event handlers with the provided event Bus.
func (a *App) setupEventBus() {
	topuphandler.Register(
		a.Deps.EventBus,
		a.TopUp,
		a.Idempotency,
		a.Deps.Logger,
	)
}

package app

import (
	"context"
	"log/slog"
	"time"
)

const (
	statusOK          = "ok"
	statusUnavailable = "unavailable"
	statusNotUsed     = "not_configured"
)

// Health is the reachability of every external dependency.
type Health struct {
	Database string `json:"database"`
	EthNode  string `json:"eth_node"`
	Contract string `json:"contract"`
	EventBus string `json:"event_bus"`
}

// OK reports whether nothing is unavailable.
func (h Health) OK() bool {
	for _, s := range []string{h.Database, h.EthNode, h.Contract, h.EventBus} {
		if s == statusUnavailable {
			return false
		}
	}
	return true
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Health checks the database, the chain node, the contract and the bus.
func (a *App) Health(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	log := a.Deps.Logger.With("context", "Health")

	h := Health{Database: statusNotUsed, EthNode: statusNotUsed, Contract: statusNotUsed, EventBus: statusOK}
	if a.Deps.PingDB != nil {
		h.Database = healthStatus(log, "database", a.Deps.PingDB(ctx))
	}
	if a.Deps.Contract != nil {
		ch := a.Deps.Contract.Health(ctx)
		h.EthNode = healthStatus(log, "eth_node", ch.Node)
		h.Contract = healthStatus(log, "contract", ch.Contract)
	}
	if p, ok := a.Deps.EventBus.(pinger); ok {
		h.EventBus = healthStatus(log, "event_bus", p.Ping(ctx))
	}
	return h
}

func healthStatus(log *slog.Logger, name string, err error) string {
	if err != nil {
		log.Warn("⚠️ Dependency unavailable", "dependency", name, "error", err)
		return statusUnavailable
	}
	return statusOK
}

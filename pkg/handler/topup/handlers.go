// Package topup holds the event bus handlers that feed contract and
// gateway outcomes into the top-up orchestrator.
package topup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/amirasaad/topupledger/pkg/domain/events"
	"github.com/amirasaad/topupledger/pkg/eventbus"
	"github.com/amirasaad/topupledger/pkg/handler/common"
	topupsvc "github.com/amirasaad/topupledger/pkg/service/topup"
)

// Orchestrator is the part of the top-up service the handlers drive.
type Orchestrator interface {
	ApplyOnChainOutcome(ctx context.Context, requestID, txRef string, success bool, reason string) (*domain.TopUpSaga, error)
	ApplyPaymentOutcome(ctx context.Context, o topupsvc.PaymentOutcome) (*domain.TopUpSaga, error)
}

// Register wires the top-up handlers on bus.
func Register(bus eventbus.Bus, svc Orchestrator, tracker *common.IdempotencyTracker, logger *slog.Logger) {
	bus.Register(events.EventTypeOnChainConfirmed, common.WithIdempotency(
		HandleOnChainOutcome(svc, logger), tracker, outcomeKey, "topup.HandleOnChainConfirmed", logger))
	bus.Register(events.EventTypeOnChainFailed, common.WithIdempotency(
		HandleOnChainOutcome(svc, logger), tracker, outcomeKey, "topup.HandleOnChainFailed", logger))
	bus.Register(events.EventTypePaymentConfirmed, common.WithIdempotency(
		HandlePaymentOutcome(svc, logger), tracker, outcomeKey, "topup.HandlePaymentConfirmed", logger))
	bus.Register(events.EventTypePaymentFailed, common.WithIdempotency(
		HandlePaymentOutcome(svc, logger), tracker, outcomeKey, "topup.HandlePaymentFailed", logger))

	for _, t := range []events.EventType{
		events.EventTypeTopUpCompleted,
		events.EventTypeTopUpFailed,
		events.EventTypeTopUpNeedsReconciliation,
	} {
		bus.Register(t, HandleResult(logger))
	}
}

// HandleOnChainOutcome applies OnChain.Confirmed and OnChain.Failed.
func HandleOnChainOutcome(svc Orchestrator, logger *slog.Logger) eventbus.HandlerFunc {
	return func(ctx context.Context, e events.Event) error {
		log := logger.With("handler", "topup.HandleOnChainOutcome", "event_type", e.Type())

		var (
			o       events.OnChainOutcome
			success bool
		)
		switch ev := e.(type) {
		case *events.OnChainConfirmed:
			o, success = ev.OnChainOutcome, true
		case *events.OnChainFailed:
			o = ev.OnChainOutcome
		default:
			log.Error("unexpected event type", "event_type", fmt.Sprintf("%T", e))
			return nil
		}
		log.Info("🟢 [START] On-chain outcome received", "request_id", o.RequestID, "tx_ref", o.TxRef)

		if _, err := svc.ApplyOnChainOutcome(ctx, o.RequestID, o.TxRef, success, o.Reason); err != nil {
			log.Error("❌ [ERROR] On-chain outcome not applied", "request_id", o.RequestID, "error", err)
			return err
		}
		return nil
	}
}

// HandlePaymentOutcome applies Payment.Confirmed and Payment.Failed.
func HandlePaymentOutcome(svc Orchestrator, logger *slog.Logger) eventbus.HandlerFunc {
	return func(ctx context.Context, e events.Event) error {
		log := logger.With("handler", "topup.HandlePaymentOutcome", "event_type", e.Type())

		var (
			p       events.PaymentOutcome
			success bool
		)
		switch ev := e.(type) {
		case *events.PaymentConfirmed:
			p, success = ev.PaymentOutcome, true
		case *events.PaymentFailed:
			p = ev.PaymentOutcome
		default:
			log.Error("unexpected event type", "event_type", fmt.Sprintf("%T", e))
			return nil
		}
		log.Info("🟢 [START] Payment outcome received",
			"correlation_key", p.CorrelationKey,
			"gateway_txn_id", p.GatewayTxnID,
			"request_id", p.RequestID,
		)

		_, err := svc.ApplyPaymentOutcome(ctx, topupsvc.PaymentOutcome{
			CorrelationKey: p.CorrelationKey,
			GatewayTxnID:   p.GatewayTxnID,
			RequestID:      p.RequestID,
			Success:        success,
			Reason:         p.Reason,
		})
		if err != nil {
			log.Error("❌ [ERROR] Payment outcome not applied", "error", err)
			return err
		}
		return nil
	}
}

// HandleResult logs terminal saga results.
func HandleResult(logger *slog.Logger) eventbus.HandlerFunc {
	return func(_ context.Context, e events.Event) error {
		log := logger.With("handler", "topup.HandleResult", "event_type", e.Type())
		var r events.TopUpResult
		switch ev := e.(type) {
		case *events.TopUpCompleted:
			r = ev.TopUpResult
		case *events.TopUpFailed:
			r = ev.TopUpResult
		case *events.TopUpNeedsReconciliation:
			r = ev.TopUpResult
			log.Warn("⚠️ Top-up needs reconciliation", "saga_id", r.SagaID, "reason", r.Reason)
			return nil
		default:
			return nil
		}
		log.Info("✅ Top-up finished", "saga_id", r.SagaID, "state", r.State, "reason", r.Reason)
		return nil
	}
}

// outcomeKey identifies an outcome by what it reports, so a redelivered
// or re-emitted outcome is recognised even under a new event id.
func outcomeKey(e events.Event) string {
	switch ev := e.(type) {
	case *events.OnChainConfirmed:
		return key("onchain", ev.RequestID, "confirmed")
	case *events.OnChainFailed:
		return key("onchain", ev.RequestID, "failed")
	case *events.PaymentConfirmed:
		return key("payment", paymentRef(ev.PaymentOutcome), "confirmed")
	case *events.PaymentFailed:
		return key("payment", paymentRef(ev.PaymentOutcome), "failed")
	}
	return ""
}

func paymentRef(p events.PaymentOutcome) string {
	for _, ref := range []string{p.CorrelationKey, p.GatewayTxnID, p.RequestID} {
		if ref != "" {
			return ref
		}
	}
	return ""
}

func key(kind, ref, outcome string) string {
	if ref == "" {
		return ""
	}
	return strings.Join([]string{kind, ref, outcome}, ":")
}

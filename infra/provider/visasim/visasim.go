// Package visasim simulates the card network gateway used for local
// development. Card endings select the outcome:
//
//	0000  declined, invalid card
//	1111  declined, suspected fraud
//	9999  captured immediately
//	other pending, confirmed later through a simulated webhook
package visasim

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/amirasaad/topupledger/pkg/config"
	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/amirasaad/topupledger/pkg/domain/events"
	"github.com/amirasaad/topupledger/pkg/eventbus"
	"github.com/amirasaad/topupledger/pkg/provider/payment"
	"github.com/google/uuid"
)

const (
	cardInvalid = "0000"
	cardFraud   = "1111"
	cardInstant = "9999"
)

// Gateway is the simulated card network.
type Gateway struct {
	bus    eventbus.Bus
	delay  time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	charges map[string]*payment.ChargeResult
	pending sync.WaitGroup
}

// New creates a simulated gateway that confirms pending charges after
// cfg.ConfirmDelay.
func New(bus eventbus.Bus, cfg *config.VisaSim, logger *slog.Logger) *Gateway {
	delay := 2 * time.Second
	if cfg != nil && cfg.ConfirmDelay >= 0 {
		delay = cfg.ConfirmDelay
	}
	return &Gateway{
		bus:     bus,
		delay:   delay,
		logger:  logger.With("provider", "visa_sim"),
		charges: make(map[string]*payment.ChargeResult),
	}
}

func (g *Gateway) Name() string { return "visa_sim" }

// Charge answers like the card network would. Repeating a charge with the
// same idempotency key returns the first answer.
func (g *Gateway) Charge(ctx context.Context, req *payment.ChargeRequest) (*payment.ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Transient(err)
	}
	g.mu.Lock()
	if prev, ok := g.charges[req.IdempotencyKey]; ok {
		g.mu.Unlock()
		out := *prev
		return &out, nil
	}

	var res *payment.ChargeResult
	switch req.CardLast4 {
	case cardInvalid:
		res = &payment.ChargeResult{Status: payment.ChargeDeclined, Message: "Invalid card details provided to Visa."}
	case cardFraud:
		res = &payment.ChargeResult{Status: payment.ChargeDeclined, Message: "Suspected fraud by Visa risk engine."}
	case cardInstant:
		res = &payment.ChargeResult{
			Status:       payment.ChargeSucceeded,
			GatewayTxnID: newTxnID(),
			Message:      "Top-up processed successfully by Visa immediately.",
		}
	default:
		res = &payment.ChargeResult{
			Status:       payment.ChargePending,
			GatewayTxnID: newTxnID(),
			Message:      "Top-up request received by Visa and is pending processing.",
		}
	}
	g.charges[req.IdempotencyKey] = res
	g.mu.Unlock()

	g.logger.Info("💳 Charge requested",
		"correlation_key", req.IdempotencyKey,
		"amount", req.Amount.StringFixed(2),
		"currency", req.Currency,
		"status", res.Status,
		"gateway_txn_id", res.GatewayTxnID,
	)
	if res.Status == payment.ChargePending {
		g.confirmLater(req.IdempotencyKey, req.RequestID, res.GatewayTxnID)
	}
	out := *res
	return &out, nil
}

func (g *Gateway) confirmLater(key, requestID, txnID string) {
	g.pending.Add(1)
	time.AfterFunc(g.delay, func() {
		defer g.pending.Done()
		evt := events.NewPaymentConfirmed(
			events.WithCorrelationKey(key),
			events.WithGatewayTxnID(txnID),
			events.WithRequestID(requestID),
		)
		if err := g.bus.Emit(context.Background(), evt); err != nil {
			g.logger.Error("❌ Failed to emit simulated confirmation", "gateway_txn_id", txnID, "error", err)
		}
	})
}

// Wait blocks until every scheduled confirmation was emitted.
func (g *Gateway) Wait() {
	g.pending.Wait()
}

// confirmationPayload is the body of the card network's confirmation webhook.
type confirmationPayload struct {
	TopUpID                string `json:"topUpId"`
	Status                 string `json:"status"`
	Message                string `json:"message"`
	ProcessorTransactionID string `json:"processor_transaction_id"`
}

// HandleWebhook parses a confirmation callback. topUpId is the on-chain
// request id. The simulator does not sign its callbacks.
func (g *Gateway) HandleWebhook(ctx context.Context, body []byte, _ string) (*payment.WebhookResult, error) {
	var p confirmationPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: invalid webhook body: %v", domain.ErrValidation, err)
	}
	p.TopUpID = strings.TrimSpace(p.TopUpID)
	if p.TopUpID == "" {
		return nil, fmt.Errorf("%w: topUpId is required", domain.ErrValidation)
	}

	res := &payment.WebhookResult{
		GatewayTxnID: p.ProcessorTransactionID,
		RequestID:    p.TopUpID,
		Status:       strings.ToUpper(p.Status),
		Message:      p.Message,
	}
	opts := []events.PaymentOutcomeOpt{
		events.WithRequestID(p.TopUpID),
		events.WithGatewayTxnID(p.ProcessorTransactionID),
	}
	var evt events.Event
	switch res.Status {
	case "SUCCESS", "COMPLETED":
		res.Success = true
		evt = events.NewPaymentConfirmed(opts...)
	case "FAILED", "ERROR":
		evt = events.NewPaymentFailed(append(opts, events.WithReason(p.Message))...)
	default:
		return nil, fmt.Errorf("%w: unsupported status %q", domain.ErrValidation, p.Status)
	}

	if err := g.bus.Emit(ctx, evt); err != nil {
		return nil, fmt.Errorf("emit %s: %w", evt.Type(), err)
	}
	g.logger.Info("📨 Confirmation webhook accepted", "request_id", p.TopUpID, "status", res.Status)
	return res, nil
}

func newTxnID() string {
	return "visa_" + uuid.NewString()
}

var _ payment.Gateway = (*Gateway)(nil)

// Package stripegateway charges top-ups through Stripe PaymentIntents and
// turns Stripe webhooks into payment events.
package stripegateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/amirasaad/topupledger/pkg/config"
	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/amirasaad/topupledger/pkg/domain/events"
	"github.com/amirasaad/topupledger/pkg/eventbus"
	"github.com/amirasaad/topupledger/pkg/provider/payment"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	metaCorrelationKey = "correlation_key"
	metaRequestID      = "request_id"
	metaAccountID      = "account_id"
)

type webhookHandler func(ctx context.Context, event stripe.Event, log *slog.Logger) (*payment.WebhookResult, error)

// Gateway implements payment.Gateway on Stripe.
type Gateway struct {
	client   *stripe.Client
	cfg      *config.Stripe
	bus      eventbus.Bus
	logger   *slog.Logger
	handlers map[stripe.EventType]webhookHandler
}

// New creates a Stripe gateway. opts are passed to the Stripe client.
func New(bus eventbus.Bus, cfg *config.Stripe, logger *slog.Logger, opts ...stripe.ClientOption) *Gateway {
	g := &Gateway{
		client: stripe.NewClient(cfg.ApiKey, opts...),
		cfg:    cfg,
		bus:    bus,
		logger: logger.With("provider", "stripe"),
	}
	g.handlers = map[stripe.EventType]webhookHandler{
		stripe.EventTypePaymentIntentSucceeded:     g.handlePaymentIntentSucceeded,
		stripe.EventTypePaymentIntentPaymentFailed: g.handlePaymentIntentFailed,
		stripe.EventTypePaymentIntentCanceled:      g.handlePaymentIntentFailed,
	}
	return g
}

func (g *Gateway) Name() string { return "stripe" }

// Charge creates and confirms a PaymentIntent. The correlation key is the
// Stripe idempotency key.
func (g *Gateway) Charge(ctx context.Context, req *payment.ChargeRequest) (*payment.ChargeResult, error) {
	log := g.logger.With(
		"handler", "stripe.Charge",
		"correlation_key", req.IdempotencyKey,
		"amount", req.Amount.StringFixed(2),
		"currency", req.Currency,
	)
	log.Info("🛒 [START] Charge")

	params := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(req.AmountCents()),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod: stripe.String(g.cfg.PaymentMethod),
		Confirm:       stripe.Bool(true),
		Description:   stripe.String("Card top-up ****" + req.CardLast4),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
		Metadata: map[string]string{
			metaCorrelationKey: req.IdempotencyKey,
			metaRequestID:      req.RequestID,
			metaAccountID:      req.AccountID.String(),
		},
	}
	params.SetIdempotencyKey(req.IdempotencyKey)

	pi, err := g.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return g.chargeError(log, err)
	}

	res := &payment.ChargeResult{GatewayTxnID: pi.ID, Status: chargeStatus(pi.Status)}
	if pi.LastPaymentError != nil {
		res.Message = pi.LastPaymentError.Msg
	}
	log.Info("✅ [SUCCESS] PaymentIntent created", "payment_intent_id", pi.ID, "status", pi.Status)
	return res, nil
}

// chargeError separates declines, which are answers, from gateway failures.
func (g *Gateway) chargeError(log *slog.Logger, err error) (*payment.ChargeResult, error) {
	var se *stripe.Error
	if !errors.As(err, &se) {
		log.Error("❌ [ERROR] Stripe unreachable", "error", err)
		return nil, domain.Transient(fmt.Errorf("%w: %w", domain.ErrPaymentGateway, err))
	}
	switch {
	case se.Type == stripe.ErrorTypeCard:
		res := &payment.ChargeResult{Status: payment.ChargeDeclined, Message: se.Msg}
		if se.PaymentIntent != nil {
			res.GatewayTxnID = se.PaymentIntent.ID
		}
		log.Warn("⚠️ Card declined", "code", se.Code, "message", se.Msg)
		return res, nil
	case se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= http.StatusInternalServerError:
		log.Error("❌ [ERROR] Stripe unavailable", "status", se.HTTPStatusCode, "error", se.Msg)
		return nil, domain.Transient(fmt.Errorf("%w: %s", domain.ErrPaymentGateway, se.Msg))
	default:
		log.Error("❌ [ERROR] Stripe rejected the request", "status", se.HTTPStatusCode, "error", se.Msg)
		return nil, fmt.Errorf("%w: %s", domain.ErrPaymentGateway, se.Msg)
	}
}

func chargeStatus(s stripe.PaymentIntentStatus) payment.ChargeStatus {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return payment.ChargeSucceeded
	case stripe.PaymentIntentStatusCanceled, stripe.PaymentIntentStatusRequiresPaymentMethod:
		return payment.ChargeDeclined
	default:
		return payment.ChargePending
	}
}

// HandleWebhook verifies the Stripe-Signature header and publishes the
// payment outcome. Event types without a handler are acknowledged and
// ignored with a nil result.
func (g *Gateway) HandleWebhook(ctx context.Context, payload []byte, signature string) (*payment.WebhookResult, error) {
	log := g.logger.With("handler", "stripe.HandleWebhook")
	if g.cfg.SigningSecret == "" {
		return nil, fmt.Errorf("%w: webhook signing secret not configured", domain.ErrPaymentGateway)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.cfg.SigningSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		log.Warn("⚠️ Webhook signature verification failed", "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	log = log.With("event_id", event.ID, "type", event.Type)
	handler, ok := g.handlers[event.Type]
	if !ok {
		log.Debug("🔁 [SKIP] Unhandled event type")
		return nil, nil
	}
	return handler(ctx, event, log)
}

func (g *Gateway) handlePaymentIntentSucceeded(ctx context.Context, event stripe.Event, log *slog.Logger) (*payment.WebhookResult, error) {
	pi, err := paymentIntentOf(event)
	if err != nil {
		return nil, err
	}
	res := webhookResult(pi, true)
	if err := g.bus.Emit(ctx, events.NewPaymentConfirmed(
		events.WithCorrelationKey(res.CorrelationKey),
		events.WithGatewayTxnID(pi.ID),
		events.WithRequestID(res.RequestID),
	)); err != nil {
		return nil, fmt.Errorf("emit payment confirmed: %w", err)
	}
	log.Info("✅ Payment intent succeeded", "payment_intent_id", pi.ID, "correlation_key", res.CorrelationKey)
	return res, nil
}

func (g *Gateway) handlePaymentIntentFailed(ctx context.Context, event stripe.Event, log *slog.Logger) (*payment.WebhookResult, error) {
	pi, err := paymentIntentOf(event)
	if err != nil {
		return nil, err
	}
	res := webhookResult(pi, false)
	if err := g.bus.Emit(ctx, events.NewPaymentFailed(
		events.WithCorrelationKey(res.CorrelationKey),
		events.WithGatewayTxnID(pi.ID),
		events.WithRequestID(res.RequestID),
		events.WithReason(res.Message),
	)); err != nil {
		return nil, fmt.Errorf("emit payment failed: %w", err)
	}
	log.Warn("⚠️ Payment intent failed", "payment_intent_id", pi.ID, "reason", res.Message)
	return res, nil
}

func paymentIntentOf(event stripe.Event) (*stripe.PaymentIntent, error) {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: event data is empty", domain.ErrValidation)
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: payment intent: %v", domain.ErrValidation, err)
	}
	if pi.ID == "" {
		return nil, fmt.Errorf("%w: payment intent id is empty", domain.ErrValidation)
	}
	return &pi, nil
}

func webhookResult(pi *stripe.PaymentIntent, success bool) *payment.WebhookResult {
	res := &payment.WebhookResult{
		CorrelationKey: pi.Metadata[metaCorrelationKey],
		RequestID:      pi.Metadata[metaRequestID],
		GatewayTxnID:   pi.ID,
		Success:        success,
		Status:         string(pi.Status),
	}
	if pi.LastPaymentError != nil {
		res.Message = pi.LastPaymentError.Msg
	} else if pi.CancellationReason != "" {
		res.Message = string(pi.CancellationReason)
	}
	return res
}

var _ payment.Gateway = (*Gateway)(nil)

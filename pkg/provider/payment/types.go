package payment

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ChargeStatus is the gateway's answer to a charge request.
type ChargeStatus string

const (
	// ChargeSucceeded means the funds were captured synchronously.
	ChargeSucceeded ChargeStatus = "SUCCESS"
	// ChargePending means the outcome will arrive by webhook.
	ChargePending ChargeStatus = "PENDING"
	// ChargeDeclined means the gateway refused the charge.
	ChargeDeclined ChargeStatus = "ERROR"
)

// ChargeRequest holds the parameters of one top-up charge.
type ChargeRequest struct {
	AccountID uuid.UUID
	Amount    decimal.Decimal
	Currency  string
	CardLast4 string
	// IdempotencyKey is the saga correlation key; retried charges with the
	// same key never capture twice.
	IdempotencyKey string
	// RequestID is the on-chain request id, echoed back by the gateway.
	RequestID string
}

// AmountCents returns the amount in minor units.
func (r *ChargeRequest) AmountCents() int64 {
	return r.Amount.Shift(2).IntPart()
}

// ChargeResult is the gateway's synchronous response.
type ChargeResult struct {
	Status       ChargeStatus
	GatewayTxnID string
	Message      string
}

// WebhookResult is a parsed and authenticated gateway callback.
type WebhookResult struct {
	CorrelationKey string
	GatewayTxnID   string
	RequestID      string
	Success        bool
	Status         string
	Message        string
}

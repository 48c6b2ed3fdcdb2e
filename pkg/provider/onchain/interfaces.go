// Package onchain describes the settlement contract the top-up saga talks to.
package onchain

import (
	"context"
)

// Contract submits top-up requests to the settlement contract. Outcomes of
// submitted requests are published on the event bus as OnChain.Confirmed or
// OnChain.Failed, correlated by request id.
type Contract interface {
	Submit(ctx context.Context, req *SubmitRequest) (*SubmitReceipt, error)
	// Confirm tells the contract how the payment side ended.
	Confirm(ctx context.Context, requestID string, success bool, message string) error
	Health(ctx context.Context) Health
}

// SubmitRequest is one top-up request.
type SubmitRequest struct {
	AmountCents    int64
	AccountRef     string
	CardLast4      string
	CorrelationKey string
}

// SubmitReceipt identifies an accepted submission.
type SubmitReceipt struct {
	RequestID string
	TxRef     string
}

// Health reports the node and contract reachability.
type Health struct {
	Node     error
	Contract error
}

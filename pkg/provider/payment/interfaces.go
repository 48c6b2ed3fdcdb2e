package payment

import (
	"context"
)

// Gateway charges a card for a top-up. Final outcomes of pending charges
// arrive through HandleWebhook and are published on the event bus.
type Gateway interface {
	// Charge requests the capture. Declines are reported in the result;
	// an error means the gateway could not be reached or misbehaved.
	Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error)

	// HandleWebhook authenticates and parses a gateway callback and emits
	// the matching payment event.
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error)

	Name() string
}

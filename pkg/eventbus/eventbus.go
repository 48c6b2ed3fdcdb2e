package eventbus

import (
	"context"

	"github.com/amirasaad/topupledger/pkg/domain/events"
)

// HandlerFunc processes one event. A returned error marks the delivery as
// failed; brokers route such messages to their dead letter queue.
type HandlerFunc func(ctx context.Context, e events.Event) error

// Bus carries confirmation and saga result events between components.
type Bus interface {
	Register(eventType events.EventType, handler HandlerFunc)
	Emit(ctx context.Context, event events.Event) error
}

package events

import (
	"time"

	"github.com/google/uuid"
)

// Event is anything that can travel on the event bus.
type Event interface {
	Type() string
}

// EventTypes builds empty events for decoding envelopes read from a broker.
var EventTypes = map[EventType]func() Event{
	EventTypeOnChainConfirmed:         func() Event { return &OnChainConfirmed{} },
	EventTypeOnChainFailed:            func() Event { return &OnChainFailed{} },
	EventTypePaymentConfirmed:         func() Event { return &PaymentConfirmed{} },
	EventTypePaymentFailed:            func() Event { return &PaymentFailed{} },
	EventTypeTopUpCompleted:           func() Event { return &TopUpCompleted{} },
	EventTypeTopUpFailed:              func() Event { return &TopUpFailed{} },
	EventTypeTopUpNeedsReconciliation: func() Event { return &TopUpNeedsReconciliation{} },
}

// Meta is embedded by every event.
type Meta struct {
	ID         uuid.UUID `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func newMeta() Meta {
	return Meta{ID: uuid.New(), OccurredAt: time.Now().UTC()}
}

// EventID returns the unique id of the event instance.
func (m Meta) EventID() uuid.UUID { return m.ID }

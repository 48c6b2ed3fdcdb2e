package events

import (
	"github.com/google/uuid"
)

// TopUpResult is published when a saga reaches a terminal state.
type TopUpResult struct {
	Meta
	SagaID         uuid.UUID  `json:"saga_id"`
	CorrelationKey string     `json:"correlation_key"`
	TransactionID  *uuid.UUID `json:"transaction_id,omitempty"`
	State          string     `json:"state"`
	Reason         string     `json:"reason,omitempty"`
}

type TopUpCompleted struct{ TopUpResult }
type TopUpFailed struct{ TopUpResult }
type TopUpNeedsReconciliation struct{ TopUpResult }

func (e TopUpCompleted) Type() string           { return EventTypeTopUpCompleted.String() }
func (e TopUpFailed) Type() string              { return EventTypeTopUpFailed.String() }
func (e TopUpNeedsReconciliation) Type() string { return EventTypeTopUpNeedsReconciliation.String() }

// NewTopUpResult fills the common fields of a saga result event.
func NewTopUpResult(sagaID uuid.UUID, key string, txID *uuid.UUID, state, reason string) TopUpResult {
	return TopUpResult{
		Meta:           newMeta(),
		SagaID:         sagaID,
		CorrelationKey: key,
		TransactionID:  txID,
		State:          state,
		Reason:         reason,
	}
}

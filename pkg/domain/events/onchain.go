package events

// OnChainOutcome is the payload shared by on-chain confirmation events.
// RequestID is the identifier returned by the contract on submission.
type OnChainOutcome struct {
	Meta
	RequestID string `json:"request_id"`
	TxRef     string `json:"tx_ref"`
	Reason    string `json:"reason,omitempty"`
}

// OnChainConfirmed is emitted when the settlement contract accepted a top-up request.
type OnChainConfirmed struct {
	OnChainOutcome
}

// OnChainFailed is emitted when the contract rejected or reverted a top-up request.
type OnChainFailed struct {
	OnChainOutcome
}

func (e OnChainConfirmed) Type() string { return EventTypeOnChainConfirmed.String() }
func (e OnChainFailed) Type() string    { return EventTypeOnChainFailed.String() }

// NewOnChainConfirmed creates an OnChainConfirmed event.
func NewOnChainConfirmed(requestID, txRef string) *OnChainConfirmed {
	return &OnChainConfirmed{OnChainOutcome{Meta: newMeta(), RequestID: requestID, TxRef: txRef}}
}

// NewOnChainFailed creates an OnChainFailed event.
func NewOnChainFailed(requestID, txRef, reason string) *OnChainFailed {
	return &OnChainFailed{OnChainOutcome{Meta: newMeta(), RequestID: requestID, TxRef: txRef, Reason: reason}}
}

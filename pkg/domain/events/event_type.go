package events

// EventType represents the type of an event in the system.
type EventType string

// Event type constants
const (
	// On-chain settlement events
	EventTypeOnChainConfirmed EventType = "OnChain.Confirmed"
	EventTypeOnChainFailed    EventType = "OnChain.Failed"

	// Payment gateway events
	EventTypePaymentConfirmed EventType = "Payment.Confirmed"
	EventTypePaymentFailed    EventType = "Payment.Failed"

	// Top-up saga events
	EventTypeTopUpCompleted           EventType = "TopUp.Completed"
	EventTypeTopUpFailed              EventType = "TopUp.Failed"
	EventTypeTopUpNeedsReconciliation EventType = "TopUp.NeedsReconciliation"
)

// String returns the string representation of the event type.
func (et EventType) String() string {
	return string(et)
}

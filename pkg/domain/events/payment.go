package events

// PaymentOutcome is the payload shared by gateway confirmation events.
// Any of CorrelationKey, GatewayTxnID or RequestID may identify the top-up;
// the first non-empty one wins.
type PaymentOutcome struct {
	Meta
	CorrelationKey string `json:"correlation_key,omitempty"`
	GatewayTxnID   string `json:"gateway_txn_id,omitempty"`
	RequestID      string `json:"request_id,omitempty"`
	Status         string `json:"status"`
	Reason         string `json:"reason,omitempty"`
}

// PaymentConfirmed is emitted when the gateway captured the funds.
type PaymentConfirmed struct {
	PaymentOutcome
}

// PaymentFailed is emitted when the gateway declined or errored.
type PaymentFailed struct {
	PaymentOutcome
}

func (e PaymentConfirmed) Type() string { return EventTypePaymentConfirmed.String() }
func (e PaymentFailed) Type() string    { return EventTypePaymentFailed.String() }

// PaymentOutcomeOpt configures a PaymentOutcome.
type PaymentOutcomeOpt func(*PaymentOutcome)

// WithCorrelationKey sets the saga correlation key.
func WithCorrelationKey(key string) PaymentOutcomeOpt {
	return func(p *PaymentOutcome) { p.CorrelationKey = key }
}

// WithGatewayTxnID sets the gateway transaction id.
func WithGatewayTxnID(id string) PaymentOutcomeOpt {
	return func(p *PaymentOutcome) { p.GatewayTxnID = id }
}

// WithRequestID sets the on-chain request id the gateway echoed back.
func WithRequestID(id string) PaymentOutcomeOpt {
	return func(p *PaymentOutcome) { p.RequestID = id }
}

// WithReason sets a human readable failure reason.
func WithReason(reason string) PaymentOutcomeOpt {
	return func(p *PaymentOutcome) { p.Reason = reason }
}

func newPaymentOutcome(status string, opts []PaymentOutcomeOpt) PaymentOutcome {
	p := PaymentOutcome{Meta: newMeta(), Status: status}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// NewPaymentConfirmed creates a PaymentConfirmed event.
func NewPaymentConfirmed(opts ...PaymentOutcomeOpt) *PaymentConfirmed {
	return &PaymentConfirmed{newPaymentOutcome("SUCCESS", opts)}
}

// NewPaymentFailed creates a PaymentFailed event.
func NewPaymentFailed(opts ...PaymentOutcomeOpt) *PaymentFailed {
	return &PaymentFailed{newPaymentOutcome("FAILED", opts)}
}

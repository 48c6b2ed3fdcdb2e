package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SagaState is the position of a top-up in its saga.
type SagaState string

const (
	SagaInitiated           SagaState = "INITIATED"
	SagaLedgerRecorded      SagaState = "LEDGER_RECORDED"
	SagaOnChainSubmitted    SagaState = "ONCHAIN_SUBMITTED"
	SagaOnChainConfirmed    SagaState = "ONCHAIN_CONFIRMED"
	SagaOnChainFailed       SagaState = "ONCHAIN_FAILED"
	SagaPaymentConfirmed    SagaState = "PAYMENT_CONFIRMED"
	SagaPaymentFailed       SagaState = "PAYMENT_FAILED"
	SagaCompleted           SagaState = "COMPLETED"
	SagaFailed              SagaState = "FAILED"
	SagaNeedsReconciliation SagaState = "NEEDS_RECONCILIATION"
	SagaCancelled           SagaState = "CANCELLED"
)

// Terminal reports whether the saga will not advance on its own.
func (s SagaState) Terminal() bool {
	switch s {
	case SagaCompleted, SagaFailed, SagaNeedsReconciliation, SagaOnChainFailed, SagaCancelled:
		return true
	}
	return false
}

// Cancellable reports whether no irreversible external effect has happened yet.
func (s SagaState) Cancellable() bool {
	return s == SagaInitiated || s == SagaLedgerRecorded
}

// InFlightStates are the non-terminal states the stale sweeper looks at.
var InFlightStates = []SagaState{
	SagaInitiated,
	SagaLedgerRecorded,
	SagaOnChainSubmitted,
	SagaOnChainConfirmed,
	SagaPaymentConfirmed,
	SagaPaymentFailed,
}

// Outcome is the confirmation observed from one external system.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeFailed    Outcome = "failed"
)

func outcomeOf(success bool) Outcome {
	if success {
		return OutcomeConfirmed
	}
	return OutcomeFailed
}

// Decision tells the orchestrator which ledger effect an applied outcome needs.
type Decision int

const (
	// DecisionNone means the event was a duplicate or changes nothing.
	DecisionNone Decision = iota
	// DecisionWait means the saga advanced and waits for the other confirmation.
	DecisionWait
	// DecisionFinalize completes the transaction and credits the balance.
	DecisionFinalize
	// DecisionFail marks the transaction failed. No money moved.
	DecisionFail
	// DecisionReconcile flags the saga for operator review.
	DecisionReconcile
)

func (d Decision) String() string {
	switch d {
	case DecisionWait:
		return "wait"
	case DecisionFinalize:
		return "finalize"
	case DecisionFail:
		return "fail"
	case DecisionReconcile:
		return "reconcile"
	}
	return "none"
}

// TopUpSaga correlates one top-up across the ledger, the settlement
// contract and the payment gateway.
type TopUpSaga struct {
	ID               uuid.UUID       `json:"id"`
	CorrelationKey   string          `json:"correlation_key"`
	AccountID        uuid.UUID       `json:"account_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	CardLast4        string          `json:"card_last4"`
	State            SagaState       `json:"state"`
	TransactionID    *uuid.UUID      `json:"transaction_id,omitempty"`
	OnChainRequestID string          `json:"onchain_request_id,omitempty"`
	OnChainTxRef     string          `json:"onchain_tx_ref,omitempty"`
	OnChainOutcome   Outcome         `json:"onchain_outcome"`
	GatewayTxnID     string          `json:"gateway_txn_id,omitempty"`
	GatewayStatus    string          `json:"gateway_status,omitempty"`
	PaymentOutcome   Outcome         `json:"payment_outcome"`
	LastError        string          `json:"last_error,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// NewTopUpSaga starts a saga in INITIATED.
func NewTopUpSaga(key string, accountID uuid.UUID, amount decimal.Decimal, currency, last4 string) *TopUpSaga {
	return &TopUpSaga{
		ID:             uuid.New(),
		CorrelationKey: key,
		AccountID:      accountID,
		Amount:         amount,
		Currency:       currency,
		CardLast4:      last4,
		State:          SagaInitiated,
		OnChainOutcome: OutcomePending,
		PaymentOutcome: OutcomePending,
	}
}

func (s *TopUpSaga) transitionError(to SagaState) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, s.State, to)
}

// MarkLedgerRecorded links the pending ledger transaction.
func (s *TopUpSaga) MarkLedgerRecorded(txID uuid.UUID) error {
	if s.State != SagaInitiated {
		return s.transitionError(SagaLedgerRecorded)
	}
	s.TransactionID = &txID
	s.State = SagaLedgerRecorded
	return nil
}

// MarkSubmitted records the contract request id and transaction reference.
func (s *TopUpSaga) MarkSubmitted(requestID, txRef string) error {
	if s.State != SagaLedgerRecorded {
		return s.transitionError(SagaOnChainSubmitted)
	}
	s.OnChainRequestID = requestID
	s.OnChainTxRef = txRef
	s.State = SagaOnChainSubmitted
	return nil
}

// MarkSubmissionFailed ends the saga when the contract never accepted the request.
func (s *TopUpSaga) MarkSubmissionFailed(reason string) error {
	if s.State != SagaLedgerRecorded {
		return s.transitionError(SagaOnChainFailed)
	}
	s.OnChainOutcome = OutcomeFailed
	s.LastError = reason
	s.State = SagaOnChainFailed
	return nil
}

// Cancel is only possible before any irreversible external effect.
func (s *TopUpSaga) Cancel() error {
	if !s.State.Cancellable() {
		return s.transitionError(SagaCancelled)
	}
	s.State = SagaCancelled
	return nil
}

// FlagReconciliation moves the saga to NEEDS_RECONCILIATION.
func (s *TopUpSaga) FlagReconciliation(reason string) {
	s.State = SagaNeedsReconciliation
	if reason != "" {
		s.LastError = reason
	}
}

// ApplyOnChain records the contract outcome and decides the ledger effect.
func (s *TopUpSaga) ApplyOnChain(success bool, reason string) Decision {
	outcome := outcomeOf(success)
	if s.OnChainOutcome != OutcomePending {
		if s.OnChainOutcome == outcome {
			return DecisionNone
		}
		s.FlagReconciliation(fmt.Sprintf("contradicting on-chain outcome %s after %s", outcome, s.OnChainOutcome))
		return DecisionReconcile
	}
	if s.State == SagaInitiated || s.State == SagaLedgerRecorded {
		return DecisionNone
	}
	s.OnChainOutcome = outcome
	if !success && reason != "" {
		s.LastError = reason
	}

	switch {
	case s.State == SagaNeedsReconciliation:
		return DecisionNone
	case s.State == SagaCancelled:
		if success {
			s.FlagReconciliation("on-chain request confirmed for a cancelled top-up")
			return DecisionReconcile
		}
		return DecisionNone
	case success && s.PaymentOutcome == OutcomeConfirmed:
		s.State = SagaCompleted
		return DecisionFinalize
	case success && s.PaymentOutcome == OutcomeFailed:
		s.FlagReconciliation("on-chain request confirmed after payment failed")
		return DecisionReconcile
	case success:
		s.State = SagaOnChainConfirmed
		return DecisionWait
	case s.PaymentOutcome == OutcomeConfirmed:
		s.FlagReconciliation("payment captured but on-chain request failed")
		return DecisionReconcile
	case s.PaymentOutcome == OutcomeFailed:
		return DecisionNone
	default:
		s.State = SagaOnChainFailed
		return DecisionFail
	}
}

// ApplyPayment records the gateway outcome and decides the ledger effect.
func (s *TopUpSaga) ApplyPayment(success bool, reason string) Decision {
	outcome := outcomeOf(success)
	if s.PaymentOutcome != OutcomePending {
		if s.PaymentOutcome == outcome {
			return DecisionNone
		}
		s.FlagReconciliation(fmt.Sprintf("contradicting payment outcome %s after %s", outcome, s.PaymentOutcome))
		return DecisionReconcile
	}
	if s.State == SagaInitiated || s.State == SagaLedgerRecorded {
		return DecisionNone
	}
	s.PaymentOutcome = outcome
	if !success && reason != "" {
		s.LastError = reason
	}

	switch {
	case s.State == SagaNeedsReconciliation:
		return DecisionNone
	case s.State == SagaCancelled:
		if success {
			s.FlagReconciliation("payment captured for a cancelled top-up")
			return DecisionReconcile
		}
		return DecisionNone
	case success && s.OnChainOutcome == OutcomeConfirmed:
		s.State = SagaCompleted
		return DecisionFinalize
	case success && s.OnChainOutcome == OutcomeFailed:
		s.FlagReconciliation("payment captured but on-chain request failed")
		return DecisionReconcile
	case success:
		s.State = SagaPaymentConfirmed
		return DecisionWait
	case s.OnChainOutcome == OutcomeConfirmed:
		s.FlagReconciliation("payment failed after on-chain confirmation")
		return DecisionReconcile
	case s.OnChainOutcome == OutcomeFailed:
		return DecisionNone
	default:
		s.State = SagaPaymentFailed
		return DecisionFail
	}
}

// MarkFailed closes a saga in PAYMENT_FAILED once the contract was told.
func (s *TopUpSaga) MarkFailed() error {
	if s.State != SagaPaymentFailed {
		return s.transitionError(SagaFailed)
	}
	s.State = SagaFailed
	return nil
}

package domain

import (
	"context"
	"errors"
	"net"
)

// Common domain errors
var (
	// ErrNotFound is returned when a requested resource is not found
	ErrNotFound = errors.New("resource not found")
	// ErrAlreadyExists is returned when trying to create a resource that already exists
	ErrAlreadyExists = errors.New("resource already exists")
	// ErrValidation is returned when input validation fails
	ErrValidation = errors.New("validation error")
	// ErrUnauthorized is returned when a user is not authorized to perform an action
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when a user is not allowed to perform an action
	ErrForbidden = errors.New("forbidden")
)

// Ledger and top-up errors
var (
	// ErrLedgerWrite is returned when a ledger mutation violates a constraint and is rolled back.
	ErrLedgerWrite = errors.New("ledger write failed")
	// ErrChainLinkConflict is returned when another writer linked to the same chain tail first.
	ErrChainLinkConflict = errors.New("chain link conflict")
	// ErrOnChainSubmission is returned when the settlement contract rejects or cannot receive a request.
	ErrOnChainSubmission = errors.New("on-chain submission failed")
	// ErrPaymentGateway is returned when the payment gateway call fails.
	ErrPaymentGateway = errors.New("payment gateway error")
	// ErrAuditLog marks a failed audit write. It is logged, never returned to callers.
	ErrAuditLog = errors.New("audit log write failed")
	// ErrIntegrityViolation is reported by the chain verifier.
	ErrIntegrityViolation = errors.New("chain integrity violation")
	// ErrInvalidStateTransition is returned when a saga cannot move to the requested state.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrInsufficientFunds is returned when a debit would take a balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrOutcomeUnknown marks a call that timed out after its request may have
	// been delivered. It is never retried.
	ErrOutcomeUnknown = errors.New("outcome unknown")
)

// TransientError marks a transport failure that may succeed when retried.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrOutcomeUnknown) {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

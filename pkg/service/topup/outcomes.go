package topup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/amirasaad/topupledger/pkg/domain/events"
	"github.com/amirasaad/topupledger/pkg/ledger"
	"github.com/amirasaad/topupledger/pkg/retry"
	"github.com/google/uuid"
)

type onChainOutcome struct {
	txRef    string
	success  bool
	reason   string
	parkedAt time.Time
}

// maxParked bounds the outcomes kept for unknown request ids.
const maxParked = 10_000

// PaymentOutcome is a gateway answer. CorrelationKey, RequestID and
// GatewayTxnID are tried in that order; the first one that names a saga
// selects it.
type PaymentOutcome struct {
	CorrelationKey string
	GatewayTxnID   string
	RequestID      string
	Success        bool
	Reason         string
}

// ApplyOnChainOutcome applies a contract confirmation or failure. Outcomes
// for a request id not stored yet are kept until the submission is
// recorded.
func (s *Service) ApplyOnChainOutcome(ctx context.Context, requestID, txRef string, success bool, reason string) (*domain.TopUpSaga, error) {
	log := s.logger.With("handler", "topup.ApplyOnChainOutcome", "request_id", requestID, "success", success)
	sg, err := s.findByRequestID(ctx, requestID)
	if errors.Is(err, domain.ErrNotFound) {
		s.parkMu.Lock()
		sg, err = s.findByRequestID(ctx, requestID)
		if errors.Is(err, domain.ErrNotFound) {
			if _, ok := s.parked[requestID]; !ok && len(s.parked) >= maxParked {
				s.parkMu.Unlock()
				log.Error("❌ Parked outcome limit reached, outcome dropped", "parked", maxParked)
				return nil, fmt.Errorf("%w: on-chain request %s", domain.ErrNotFound, requestID)
			}
			s.parked[requestID] = onChainOutcome{txRef: txRef, success: success, reason: reason, parkedAt: s.now()}
			s.parkMu.Unlock()
			log.Warn("⚠️ Outcome for an unrecorded request, parked")
			return nil, nil
		}
		s.parkMu.Unlock()
	}
	if err != nil {
		return nil, err
	}

	out, decision, err := s.apply(ctx, sg.ID, func(sg *domain.TopUpSaga) domain.Decision {
		if sg.OnChainTxRef == "" {
			sg.OnChainTxRef = txRef
		}
		return sg.ApplyOnChain(success, reason)
	})
	if err != nil {
		log.Error("❌ [ERROR] Applying on-chain outcome failed", "error", err)
		return nil, err
	}
	log.Info("✅ On-chain outcome applied", "saga_id", out.ID, "state", out.State, "decision", decision)
	return out, nil
}

func (s *Service) findByRequestID(ctx context.Context, requestID string) (*domain.TopUpSaga, error) {
	sagas, err := s.uow.SagaRepository()
	if err != nil {
		return nil, err
	}
	return sagas.FindByOnChainRequestID(ctx, requestID)
}

// evictParked drops parked outcomes older than cutoff and returns how many
// were dropped.
func (s *Service) evictParked(cutoff time.Time) int {
	s.parkMu.Lock()
	defer s.parkMu.Unlock()
	evicted := 0
	for id, o := range s.parked {
		if o.parkedAt.Before(cutoff) {
			delete(s.parked, id)
			evicted++
			s.logger.Warn("⚠️ Parked on-chain outcome expired", "request_id", id, "success", o.success, "parked_at", o.parkedAt)
		}
	}
	return evicted
}

func (s *Service) parkedLen() int {
	s.parkMu.Lock()
	defer s.parkMu.Unlock()
	return len(s.parked)
}

func (s *Service) releaseParked(ctx context.Context, requestID string) {
	s.parkMu.Lock()
	o, ok := s.parked[requestID]
	delete(s.parked, requestID)
	s.parkMu.Unlock()
	if !ok {
		return
	}
	if _, err := s.ApplyOnChainOutcome(ctx, requestID, o.txRef, o.success, o.reason); err != nil {
		s.logger.Error("❌ Applying parked on-chain outcome failed", "request_id", requestID, "error", err)
	}
}

// ApplyPaymentOutcome applies a gateway confirmation or failure and tells
// the contract how the payment ended.
func (s *Service) ApplyPaymentOutcome(ctx context.Context, o PaymentOutcome) (*domain.TopUpSaga, error) {
	log := s.logger.With(
		"handler", "topup.ApplyPaymentOutcome",
		"correlation_key", o.CorrelationKey,
		"gateway_txn_id", o.GatewayTxnID,
		"success", o.Success,
	)
	sg, err := s.resolvePayment(ctx, o)
	if err != nil {
		log.Warn("⚠️ No saga for payment outcome", "error", err)
		return nil, err
	}

	out, decision, err := s.apply(ctx, sg.ID, func(sg *domain.TopUpSaga) domain.Decision {
		if o.GatewayTxnID != "" && sg.GatewayTxnID == "" {
			sg.GatewayTxnID = o.GatewayTxnID
		}
		d := sg.ApplyPayment(o.Success, o.Reason)
		if d != domain.DecisionNone {
			sg.GatewayStatus = paymentStatus(o.Success)
		}
		return d
	})
	if err != nil {
		log.Error("❌ [ERROR] Applying payment outcome failed", "error", err)
		return nil, err
	}
	log.Info("✅ Payment outcome applied", "saga_id", out.ID, "state", out.State, "decision", decision)

	if decision != domain.DecisionNone && out.OnChainRequestID != "" {
		s.confirmOnChain(ctx, log, out.OnChainRequestID, o.Success, o.Reason)
	}
	if out.State != domain.SagaPaymentFailed {
		return out, nil
	}

	final, _, err := s.applyLocked(ctx, out.ID, func(sg *domain.TopUpSaga) domain.Decision {
		if err := sg.MarkFailed(); err != nil {
			log.Warn("⚠️ Saga moved before it could be closed", "state", sg.State)
		}
		return domain.DecisionNone
	})
	if err != nil {
		log.Error("❌ [ERROR] Closing failed saga failed", "error", err)
		return out, err
	}
	if final.State == domain.SagaFailed {
		s.emitResult(ctx, final, domain.DecisionFail)
	}
	return final, nil
}

func paymentStatus(success bool) string {
	if success {
		return "SUCCESS"
	}
	return "FAILED"
}

func (s *Service) resolvePayment(ctx context.Context, o PaymentOutcome) (*domain.TopUpSaga, error) {
	sagas, err := s.uow.SagaRepository()
	if err != nil {
		return nil, err
	}
	lookups := []struct {
		id   string
		find func(context.Context, string) (*domain.TopUpSaga, error)
	}{
		{o.CorrelationKey, sagas.FindByCorrelationKey},
		{o.RequestID, sagas.FindByOnChainRequestID},
		{o.GatewayTxnID, sagas.FindByGatewayTxnID},
	}
	tried := false
	for _, l := range lookups {
		if l.id == "" {
			continue
		}
		tried = true
		sg, err := l.find(ctx, l.id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		return sg, err
	}
	if !tried {
		return nil, fmt.Errorf("%w: payment outcome carries no identifier", domain.ErrValidation)
	}
	return nil, fmt.Errorf("%w: no saga for payment outcome", domain.ErrNotFound)
}

// confirmOnChain reports the payment outcome to the contract. Failures are
// logged only.
func (s *Service) confirmOnChain(ctx context.Context, log *slog.Logger, requestID string, success bool, reason string) {
	message := reason
	if success {
		message = "Payment confirmed."
	}
	err := retry.Do(ctx, s.cfg.Retry, log, "contract.Confirm", func(ctx context.Context) error {
		return s.contract.Confirm(ctx, requestID, success, message)
	})
	if err != nil {
		log.Warn("⚠️ Contract confirmation failed", "request_id", requestID, "error", err)
	}
}

// apply runs mutate on the locked saga and performs the ledger effect of
// its decision in the same database transaction. The result event is
// published after the lock is released.
func (s *Service) apply(
	ctx context.Context,
	sagaID uuid.UUID,
	mutate func(*domain.TopUpSaga) domain.Decision,
) (*domain.TopUpSaga, domain.Decision, error) {
	out, decision, err := s.applyLocked(ctx, sagaID, mutate)
	if err != nil {
		return nil, domain.DecisionNone, err
	}
	// PAYMENT_FAILED reports its result once the saga is closed.
	if out.State != domain.SagaPaymentFailed {
		s.emitResult(ctx, out, decision)
	}
	return out, decision, nil
}

func (s *Service) applyLocked(
	ctx context.Context,
	sagaID uuid.UUID,
	mutate func(*domain.TopUpSaga) domain.Decision,
) (*domain.TopUpSaga, domain.Decision, error) {
	mu := s.lockFor(sagaID)
	mu.Lock()
	defer mu.Unlock()

	var (
		out      *domain.TopUpSaga
		decision domain.Decision
	)
	err := s.ledger.Do(ctx, func(ctx context.Context, w *ledger.Writer) error {
		sagas, err := w.UnitOfWork().SagaRepository()
		if err != nil {
			return err
		}
		sg, err := sagas.GetForUpdate(ctx, sagaID)
		if err != nil {
			return err
		}
		before := *sg
		decision = mutate(sg)
		out = sg
		if decision == domain.DecisionNone && *sg == before {
			return nil
		}

		switch decision {
		case domain.DecisionFinalize:
			if _, err := w.SetTransactionStatus(ctx, *sg.TransactionID, domain.TransactionStatusCompleted); err != nil {
				return err
			}
			if _, err := w.CreditBalance(ctx, sg.AccountID, sg.Currency, sg.Amount); err != nil {
				return err
			}
		case domain.DecisionFail:
			if _, err := w.SetTransactionStatus(ctx, *sg.TransactionID, domain.TransactionStatusFailed); err != nil {
				return err
			}
		}
		sg.UpdatedAt = w.Now()
		return sagas.Update(ctx, sg)
	})
	if err != nil {
		return nil, domain.DecisionNone, err
	}
	return out, decision, nil
}

func (s *Service) emitResult(ctx context.Context, sg *domain.TopUpSaga, decision domain.Decision) {
	result := events.NewTopUpResult(sg.ID, sg.CorrelationKey, sg.TransactionID, string(sg.State), sg.LastError)
	var ev events.Event
	switch decision {
	case domain.DecisionFinalize:
		ev = &events.TopUpCompleted{TopUpResult: result}
	case domain.DecisionFail:
		ev = &events.TopUpFailed{TopUpResult: result}
	case domain.DecisionReconcile:
		ev = &events.TopUpNeedsReconciliation{TopUpResult: result}
	default:
		return
	}
	if err := s.bus.Emit(ctx, ev); err != nil {
		s.logger.Error("❌ Failed to publish saga result", "saga_id", sg.ID, "event_type", ev.Type(), "error", err)
	}
}

// Cancel stops a top-up that has not reached the contract yet. The ledger
// transaction is marked cancelled.
func (s *Service) Cancel(ctx context.Context, sagaID uuid.UUID) (*domain.TopUpSaga, error) {
	out, err := s.cancelLocked(ctx, sagaID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) cancelLocked(ctx context.Context, sagaID uuid.UUID) (*domain.TopUpSaga, error) {
	mu := s.lockFor(sagaID)
	mu.Lock()
	defer mu.Unlock()

	var out *domain.TopUpSaga
	err := s.ledger.Do(ctx, func(ctx context.Context, w *ledger.Writer) error {
		sagas, err := w.UnitOfWork().SagaRepository()
		if err != nil {
			return err
		}
		sg, err := sagas.GetForUpdate(ctx, sagaID)
		if err != nil {
			return err
		}
		if err := sg.Cancel(); err != nil {
			return err
		}
		if sg.TransactionID != nil {
			if _, err := w.SetTransactionStatus(ctx, *sg.TransactionID, domain.TransactionStatusCancelled); err != nil {
				return err
			}
		}
		sg.UpdatedAt = w.Now()
		out = sg
		return sagas.Update(ctx, sg)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

package topup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/amirasaad/topupledger/pkg/ledger"
	"github.com/amirasaad/topupledger/pkg/provider/onchain"
	"github.com/amirasaad/topupledger/pkg/provider/payment"
	"github.com/amirasaad/topupledger/pkg/retry"
	"github.com/google/uuid"
)

// Initiate starts a top-up. A request carrying an idempotency key that is
// already known returns the existing saga without executing anything
// again. A request without a key always starts a new saga.
//
// Validation errors wrap domain.ErrValidation and leave no trace. A
// contract that cannot be reached ends the saga in ONCHAIN_FAILED and the
// error wraps domain.ErrOnChainSubmission. A submission that timed out
// after it may have been delivered is not retried; the saga is flagged
// NEEDS_RECONCILIATION and the error also wraps domain.ErrOutcomeUnknown.
// A gateway that cannot be reached leaves the saga in flight for the
// sweeper and the error wraps domain.ErrPaymentGateway. In all of these
// cases the returned Result carries the saga.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (*Result, error) {
	req, err := s.normalize(req)
	if err != nil {
		return nil, err
	}
	key := req.IdempotencyKey
	if key == "" {
		return s.initiate(ctx, uuid.NewString(), false, req)
	}

	type outcome struct {
		res *Result
		err error
	}
	v, _, _ := s.inflight.Do(key, func() (any, error) {
		res, err := s.initiate(ctx, key, true, req)
		return outcome{res, err}, nil
	})
	o := v.(outcome)
	return o.res, o.err
}

func (s *Service) initiate(ctx context.Context, key string, supplied bool, req InitiateRequest) (*Result, error) {
	log := s.logger.With(
		"handler", "topup.Initiate",
		"correlation_key", key,
		"account_id", req.AccountID,
		"amount", req.Amount.StringFixed(2),
		"currency", req.Currency,
	)
	log.Info("🟢 [START] Top-up requested")

	if supplied {
		if existing, err := s.GetByCorrelationKey(ctx, key); err == nil {
			log.Info("🔁 [SKIP] Correlation key already known", "saga_id", existing.ID, "state", existing.State)
			return &Result{Saga: existing, Duplicate: true}, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	account, err := s.ledger.Account(ctx, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", req.AccountID, err)
	}
	if account.Status != domain.AccountStatusActive {
		return nil, fmt.Errorf("%w: account %s is %s", domain.ErrValidation, account.ID, account.Status)
	}

	sg, err := s.record(ctx, key, req)
	if errors.Is(err, domain.ErrAlreadyExists) {
		existing, findErr := s.GetByCorrelationKey(ctx, key)
		if findErr != nil {
			return nil, findErr
		}
		log.Info("🔁 [SKIP] Lost the race for the correlation key", "saga_id", existing.ID)
		return &Result{Saga: existing, Duplicate: true}, nil
	}
	if err != nil {
		log.Error("❌ [ERROR] Ledger record failed", "error", err)
		return nil, err
	}
	log = log.With("saga_id", sg.ID, "transaction_id", *sg.TransactionID)
	log.Info("✅ Ledger recorded")

	receipt, sg, err := s.submit(ctx, log, sg)
	if err != nil {
		switch sg.State {
		case domain.SagaOnChainFailed:
			s.emitResult(ctx, sg, domain.DecisionFail)
		case domain.SagaNeedsReconciliation:
			s.emitResult(ctx, sg, domain.DecisionReconcile)
		}
		return &Result{Saga: sg}, err
	}
	s.releaseParked(ctx, receipt.RequestID)

	charge, sg, err := s.charge(ctx, log, sg, receipt)
	if err != nil {
		return &Result{Saga: sg}, err
	}
	if charge == nil {
		return &Result{Saga: sg}, nil
	}

	log.Info("✅ [SUCCESS] Top-up initiated", "state", sg.State, "charge_status", charge.Status)
	return &Result{Saga: sg, Charge: charge}, nil
}

// record inserts the saga and its pending TOPUP transaction in one
// database transaction.
func (s *Service) record(ctx context.Context, key string, req InitiateRequest) (*domain.TopUpSaga, error) {
	sg := domain.NewTopUpSaga(key, req.AccountID, req.Amount, req.Currency, req.CardLast4)
	receiver := req.AccountID
	draft := domain.TransactionDraft{
		ReceiverAccountID: &receiver,
		Amount:            req.Amount,
		Currency:          req.Currency,
		Type:              domain.TransactionTypeTopUp,
		Description:       fmt.Sprintf("Card top-up ****%s", req.CardLast4),
	}
	_, err := s.ledger.Append(ctx, draft, func(ctx context.Context, w *ledger.Writer, t *domain.Transaction) error {
		sagas, err := w.UnitOfWork().SagaRepository()
		if err != nil {
			return err
		}
		if err := sg.MarkLedgerRecorded(t.ID); err != nil {
			return err
		}
		sg.CreatedAt = w.Now()
		sg.UpdatedAt = w.Now()
		return sagas.Create(ctx, sg)
	})
	if err != nil {
		return nil, err
	}
	return sg, nil
}

// submit sends the request to the contract. The saga lock is held until the
// request id is stored so a concurrent Cancel sees the submission.
func (s *Service) submit(ctx context.Context, log *slog.Logger, sg *domain.TopUpSaga) (*onchain.SubmitReceipt, *domain.TopUpSaga, error) {
	mu := s.lockFor(sg.ID)
	mu.Lock()
	defer mu.Unlock()

	current, err := s.Get(ctx, sg.ID)
	if err != nil {
		return nil, sg, err
	}
	if current.State != domain.SagaLedgerRecorded {
		log.Warn("⚠️ Saga moved before submission", "state", current.State)
		return nil, current, fmt.Errorf("%w: saga is %s", domain.ErrInvalidStateTransition, current.State)
	}

	var receipt *onchain.SubmitReceipt
	req := &onchain.SubmitRequest{
		AmountCents:    sg.Amount.Shift(2).IntPart(),
		AccountRef:     sg.AccountID.String(),
		CardLast4:      sg.CardLast4,
		CorrelationKey: sg.CorrelationKey,
	}
	err = retry.Do(ctx, s.cfg.Retry, log, "contract.Submit", func(actx context.Context) error {
		r, err := s.contract.Submit(actx, req)
		if err != nil && actx.Err() != nil && ctx.Err() == nil {
			// the attempt deadline passed while the request was out
			err = fmt.Errorf("%w: %w", domain.ErrOutcomeUnknown, err)
		}
		receipt = r
		return err
	})
	if err != nil {
		if !errors.Is(err, domain.ErrOnChainSubmission) {
			err = fmt.Errorf("%w: %w", domain.ErrOnChainSubmission, err)
		}
		if errors.Is(err, domain.ErrOutcomeUnknown) {
			log.Error("❌ [ERROR] Contract submission outcome unknown", "error", err)
			return nil, s.flagUnknownSubmission(ctx, log, sg, err), err
		}
		log.Error("❌ [ERROR] Contract submission failed", "error", err)
		failed, ferr := s.failSubmission(ctx, sg.ID, err.Error())
		if ferr != nil {
			log.Error("❌ [ERROR] Recording submission failure failed", "error", ferr)
			return nil, sg, errors.Join(err, ferr)
		}
		return nil, failed, err
	}
	log.Info("✅ Submitted on-chain", "request_id", receipt.RequestID, "tx_ref", receipt.TxRef)

	var out *domain.TopUpSaga
	err = s.ledger.Do(ctx, func(ctx context.Context, w *ledger.Writer) error {
		sagas, err := w.UnitOfWork().SagaRepository()
		if err != nil {
			return err
		}
		current, err := sagas.GetForUpdate(ctx, sg.ID)
		if err != nil {
			return err
		}
		if err := current.MarkSubmitted(receipt.RequestID, receipt.TxRef); err != nil {
			return err
		}
		current.UpdatedAt = w.Now()
		out = current
		return sagas.Update(ctx, current)
	})
	if err != nil {
		log.Error("❌ [ERROR] Recording submission failed", "request_id", receipt.RequestID, "error", err)
		return nil, sg, err
	}
	return receipt, out, nil
}

// flagUnknownSubmission hands a submission that may have reached the
// contract to an operator. The ledger transaction stays pending. The caller
// holds the saga lock.
func (s *Service) flagUnknownSubmission(ctx context.Context, log *slog.Logger, sg *domain.TopUpSaga, cause error) *domain.TopUpSaga {
	var out *domain.TopUpSaga
	err := s.ledger.Do(ctx, func(ctx context.Context, w *ledger.Writer) error {
		sagas, err := w.UnitOfWork().SagaRepository()
		if err != nil {
			return err
		}
		current, err := sagas.GetForUpdate(ctx, sg.ID)
		if err != nil {
			return err
		}
		if current.State != domain.SagaLedgerRecorded {
			out = current
			return nil
		}
		current.FlagReconciliation(cause.Error())
		current.UpdatedAt = w.Now()
		out = current
		return sagas.Update(ctx, current)
	})
	if err != nil {
		log.Error("❌ [ERROR] Flagging unknown submission failed, left for the sweeper", "error", err)
		return sg
	}
	return out
}

func (s *Service) failSubmission(ctx context.Context, sagaID uuid.UUID, reason string) (*domain.TopUpSaga, error) {
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
		if err := sg.MarkSubmissionFailed(reason); err != nil {
			return err
		}
		if _, err := w.SetTransactionStatus(ctx, *sg.TransactionID, domain.TransactionStatusFailed); err != nil {
			return err
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

// charge asks the gateway for the funds. Synchronous answers are applied
// right away; a pending charge waits for its webhook.
func (s *Service) charge(
	ctx context.Context,
	log *slog.Logger,
	sg *domain.TopUpSaga,
	receipt *onchain.SubmitReceipt,
) (*payment.ChargeResult, *domain.TopUpSaga, error) {
	current, err := s.Get(ctx, sg.ID)
	if err != nil {
		return nil, sg, err
	}
	if current.State.Terminal() {
		log.Warn("🔁 [SKIP] Saga ended before the charge", "state", current.State)
		return nil, current, nil
	}

	var res *payment.ChargeResult
	req := &payment.ChargeRequest{
		AccountID:      sg.AccountID,
		Amount:         sg.Amount,
		Currency:       sg.Currency,
		CardLast4:      sg.CardLast4,
		IdempotencyKey: sg.CorrelationKey,
		RequestID:      receipt.RequestID,
	}
	err = retry.Do(ctx, s.cfg.Retry, log, s.gateway.Name()+".Charge", func(ctx context.Context) error {
		r, err := s.gateway.Charge(ctx, req)
		res = r
		return err
	})
	if err != nil {
		if !errors.Is(err, domain.ErrPaymentGateway) {
			err = fmt.Errorf("%w: %w", domain.ErrPaymentGateway, err)
		}
		log.Error("❌ [ERROR] Gateway charge failed", "error", err)
		updated, uerr := s.noteGateway(ctx, sg.ID, "", "UNREACHABLE", err.Error())
		if uerr != nil {
			return nil, sg, errors.Join(err, uerr)
		}
		return nil, updated, err
	}
	log.Info("💳 Gateway answered", "status", res.Status, "gateway_txn_id", res.GatewayTxnID)

	updated, err := s.noteGateway(ctx, sg.ID, res.GatewayTxnID, string(res.Status), "")
	if err != nil {
		return res, sg, err
	}

	switch res.Status {
	case payment.ChargeSucceeded, payment.ChargeDeclined:
		outcome := PaymentOutcome{
			CorrelationKey: sg.CorrelationKey,
			GatewayTxnID:   res.GatewayTxnID,
			Success:        res.Status == payment.ChargeSucceeded,
			Reason:         res.Message,
		}
		applied, err := s.ApplyPaymentOutcome(ctx, outcome)
		if err != nil {
			return res, updated, err
		}
		return res, applied, nil
	default:
		return res, updated, nil
	}
}

// noteGateway stores what the gateway said about the charge without
// deciding anything.
func (s *Service) noteGateway(ctx context.Context, sagaID uuid.UUID, txnID, status, lastError string) (*domain.TopUpSaga, error) {
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
		if txnID != "" && sg.GatewayTxnID == "" {
			sg.GatewayTxnID = txnID
		}
		if sg.GatewayStatus == "" || sg.PaymentOutcome == domain.OutcomePending {
			sg.GatewayStatus = status
		}
		if lastError != "" {
			sg.LastError = lastError
		}
		sg.UpdatedAt = w.Now()
		out = sg
		return sagas.Update(ctx, sg)
	})
	return out, err
}

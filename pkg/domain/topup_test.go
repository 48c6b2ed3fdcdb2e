package domain_test

import (
	"testing"

	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submittedSaga(t *testing.T) *domain.TopUpSaga {
	t.Helper()
	s := domain.NewTopUpSaga("key", uuid.New(), decimal.RequireFromString("100.00"), "USD", "1234")
	require.NoError(t, s.MarkLedgerRecorded(uuid.New()))
	require.NoError(t, s.MarkSubmitted("7", "0xabc"))
	return s
}

func TestTopUpSaga_HappyPathOnChainFirst(t *testing.T) {
	s := submittedSaga(t)

	assert.Equal(t, domain.DecisionWait, s.ApplyOnChain(true, ""))
	assert.Equal(t, domain.SagaOnChainConfirmed, s.State)

	assert.Equal(t, domain.DecisionFinalize, s.ApplyPayment(true, ""))
	assert.Equal(t, domain.SagaCompleted, s.State)
}

func TestTopUpSaga_HappyPathPaymentFirst(t *testing.T) {
	s := submittedSaga(t)

	assert.Equal(t, domain.DecisionWait, s.ApplyPayment(true, ""))
	assert.Equal(t, domain.SagaPaymentConfirmed, s.State)

	assert.Equal(t, domain.DecisionFinalize, s.ApplyOnChain(true, ""))
	assert.Equal(t, domain.SagaCompleted, s.State)
}

func TestTopUpSaga_DuplicateOutcomesAreNoOps(t *testing.T) {
	s := submittedSaga(t)
	require.Equal(t, domain.DecisionWait, s.ApplyOnChain(true, ""))
	assert.Equal(t, domain.DecisionNone, s.ApplyOnChain(true, ""))
	require.Equal(t, domain.DecisionFinalize, s.ApplyPayment(true, ""))
	assert.Equal(t, domain.DecisionNone, s.ApplyPayment(true, ""))
	assert.Equal(t, domain.SagaCompleted, s.State)
}

func TestTopUpSaga_PaymentFailsAfterOnChainConfirmation(t *testing.T) {
	s := submittedSaga(t)
	require.Equal(t, domain.DecisionWait, s.ApplyOnChain(true, ""))

	assert.Equal(t, domain.DecisionReconcile, s.ApplyPayment(false, "declined"))
	assert.Equal(t, domain.SagaNeedsReconciliation, s.State)
	assert.Equal(t, "payment failed after on-chain confirmation", s.LastError)
}

func TestTopUpSaga_PaymentFailsBeforeOnChainConfirmation(t *testing.T) {
	s := submittedSaga(t)

	assert.Equal(t, domain.DecisionFail, s.ApplyPayment(false, "declined"))
	assert.Equal(t, domain.SagaPaymentFailed, s.State)
	assert.False(t, s.State.Terminal())
	require.NoError(t, s.MarkFailed())
	assert.Equal(t, domain.SagaFailed, s.State)
	assert.ErrorIs(t, s.MarkFailed(), domain.ErrInvalidStateTransition)

	// the request later lands on chain: money side failed, chain side did not
	assert.Equal(t, domain.DecisionReconcile, s.ApplyOnChain(true, ""))
	assert.Equal(t, domain.SagaNeedsReconciliation, s.State)
}

func TestTopUpSaga_OnChainFailsAfterPaymentCaptured(t *testing.T) {
	s := submittedSaga(t)
	require.Equal(t, domain.DecisionWait, s.ApplyPayment(true, ""))

	assert.Equal(t, domain.DecisionReconcile, s.ApplyOnChain(false, "reverted"))
	assert.Equal(t, domain.SagaNeedsReconciliation, s.State)
}

func TestTopUpSaga_OnChainFails(t *testing.T) {
	s := submittedSaga(t)
	assert.Equal(t, domain.DecisionFail, s.ApplyOnChain(false, "reverted"))
	assert.Equal(t, domain.SagaOnChainFailed, s.State)
	assert.Equal(t, "reverted", s.LastError)
}

func TestTopUpSaga_Cancel(t *testing.T) {
	s := domain.NewTopUpSaga("key", uuid.New(), decimal.NewFromInt(5), "USD", "1234")
	require.NoError(t, s.MarkLedgerRecorded(uuid.New()))
	require.NoError(t, s.Cancel())
	assert.Equal(t, domain.SagaCancelled, s.State)

	s = submittedSaga(t)
	err := s.Cancel()
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	assert.Equal(t, domain.SagaOnChainSubmitted, s.State)
}

func TestTopUpSaga_OutcomesIgnoredBeforeSubmission(t *testing.T) {
	s := domain.NewTopUpSaga("key", uuid.New(), decimal.NewFromInt(5), "USD", "1234")
	assert.Equal(t, domain.DecisionNone, s.ApplyOnChain(true, ""))
	assert.Equal(t, domain.DecisionNone, s.ApplyPayment(true, ""))
	assert.Equal(t, domain.SagaInitiated, s.State)
	assert.Equal(t, domain.OutcomePending, s.OnChainOutcome)
}

func TestTopUpSaga_SubmissionFailed(t *testing.T) {
	s := domain.NewTopUpSaga("key", uuid.New(), decimal.NewFromInt(5), "USD", "1234")
	require.NoError(t, s.MarkLedgerRecorded(uuid.New()))
	require.NoError(t, s.MarkSubmissionFailed("node unreachable"))
	assert.Equal(t, domain.SagaOnChainFailed, s.State)
	assert.True(t, s.State.Terminal())
	assert.ErrorIs(t, s.MarkSubmitted("1", "0x1"), domain.ErrInvalidStateTransition)
}

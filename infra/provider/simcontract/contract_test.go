package simcontract_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	infraeventbus "github.com/amirasaad/topupledger/infra/eventbus"
	"github.com/amirasaad/topupledger/infra/provider/simcontract"
	"github.com/amirasaad/topupledger/pkg/config"
	"github.com/amirasaad/topupledger/pkg/domain"
	"github.com/amirasaad/topupledger/pkg/domain/events"
	"github.com/amirasaad/topupledger/pkg/provider/onchain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContract() (*simcontract.Contract, *infraeventbus.MemoryEventBus) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := infraeventbus.NewWithMemory(logger)
	return simcontract.New(bus, &config.Chain{ConfirmDelay: 0, MaxAmountCents: 50_000}, logger), bus
}

func TestSubmit_ConfirmsAsynchronously(t *testing.T) {
	c, bus := newContract()

	r, err := c.Submit(context.Background(), &onchain.SubmitRequest{AmountCents: 10_000, CorrelationKey: "k1", CardLast4: "1234"})
	require.NoError(t, err)
	assert.Equal(t, "1", r.RequestID)
	assert.Regexp(t, `^0x[0-9a-f]{64}$`, r.TxRef)

	c.Wait()
	published := bus.Published()
	require.Len(t, published, 1)
	ev, ok := published[0].(*events.OnChainConfirmed)
	require.True(t, ok)
	assert.Equal(t, "1", ev.RequestID)
	assert.Equal(t, r.TxRef, ev.TxRef)
}

func TestSubmit_AboveLimitReverts(t *testing.T) {
	c, bus := newContract()

	r, err := c.Submit(context.Background(), &onchain.SubmitRequest{AmountCents: 50_001, CorrelationKey: "k1"})
	require.NoError(t, err)
	c.Wait()

	published := bus.Published()
	require.Len(t, published, 1)
	ev, ok := published[0].(*events.OnChainFailed)
	require.True(t, ok)
	assert.Equal(t, r.RequestID, ev.RequestID)
	assert.Contains(t, ev.Reason, "exceeds contract limit")
}

func TestSubmit_SameKeyReturnsSameReceipt(t *testing.T) {
	c, bus := newContract()
	req := &onchain.SubmitRequest{AmountCents: 100, CorrelationKey: "k1"}

	first, err := c.Submit(context.Background(), req)
	require.NoError(t, err)
	second, err := c.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := c.Submit(context.Background(), &onchain.SubmitRequest{AmountCents: 100, CorrelationKey: "k2"})
	require.NoError(t, err)
	assert.Equal(t, "2", other.RequestID)

	c.Wait()
	assert.Len(t, bus.Published(), 2)
}

func TestSubmit_RejectsNonPositiveAmount(t *testing.T) {
	c, _ := newContract()
	_, err := c.Submit(context.Background(), &onchain.SubmitRequest{AmountCents: 0, CorrelationKey: "k1"})
	assert.ErrorIs(t, err, domain.ErrOnChainSubmission)
	assert.False(t, domain.IsTransient(err))
}

func TestConfirm(t *testing.T) {
	c, _ := newContract()
	r, err := c.Submit(context.Background(), &onchain.SubmitRequest{AmountCents: 100, CorrelationKey: "k1"})
	require.NoError(t, err)
	c.Wait()

	require.NoError(t, c.Confirm(context.Background(), r.RequestID, true, "Visa payment processed successfully."))
	assert.Equal(t, []simcontract.Confirmation{{RequestID: r.RequestID, Success: true, Message: "Visa payment processed successfully."}}, c.Confirmations())

	assert.ErrorIs(t, c.Confirm(context.Background(), "99", false, ""), domain.ErrNotFound)
	h := c.Health(context.Background())
	assert.NoError(t, h.Node)
	assert.NoError(t, h.Contract)
}

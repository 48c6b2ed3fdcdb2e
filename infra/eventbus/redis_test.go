package eventbus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/amirasaad/topupledger/pkg/domain/events"
	"github.com/amirasaad/topupledger/pkg/eventbus"
	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRedisBus(t *testing.T) (*RedisEventBus, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := NewWithRedisClient(client, logger, &RedisEventBusConfig{Consumer: "test"})
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return bus, mock
}

func fixedOnChainConfirmed() *events.OnChainConfirmed {
	e := events.NewOnChainConfirmed("7", "0xabc")
	e.ID = uuid.MustParse("6f1c2b0e-8d2f-4f55-9d7a-2f3b1c0d9e11")
	e.OccurredAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return e
}

func TestRedisBus_EmitAppendsEnvelopeToTypeStream(t *testing.T) {
	bus, mock := newMockRedisBus(t)
	evt := fixedOnChainConfirmed()
	raw, err := encodeEnvelope(evt)
	require.NoError(t, err)

	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: "events:onchain:confirmed",
		Values: map[string]any{eventField: string(raw)},
	}).SetVal("1-0")

	require.NoError(t, bus.Emit(context.Background(), evt))
}

func TestRedisBus_EmitSurfacesRedisError(t *testing.T) {
	bus, mock := newMockRedisBus(t)
	evt := fixedOnChainConfirmed()
	raw, err := encodeEnvelope(evt)
	require.NoError(t, err)

	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: "events:onchain:confirmed",
		Values: map[string]any{eventField: string(raw)},
	}).SetErr(errors.New("connection refused"))

	err = bus.Emit(context.Background(), evt)
	assert.ErrorContains(t, err, "connection refused")
}

func TestRedisBus_HandleMessageDispatchesAndAcks(t *testing.T) {
	bus, mock := newMockRedisBus(t)
	raw, err := encodeEnvelope(fixedOnChainConfirmed())
	require.NoError(t, err)

	var got *events.OnChainConfirmed
	bus.handlers[events.EventTypeOnChainConfirmed] = append(bus.handlers[events.EventTypeOnChainConfirmed],
		func(_ context.Context, e events.Event) error {
			got = e.(*events.OnChainConfirmed)
			return nil
		})
	mock.ExpectXAck("events:onchain:confirmed", "group:onchain:confirmed", "1-0").SetVal(1)

	bus.handleMessage(context.Background(), events.EventTypeOnChainConfirmed, redis.XMessage{
		ID:     "1-0",
		Values: map[string]any{eventField: string(raw)},
	})

	require.NotNil(t, got)
	assert.Equal(t, "7", got.RequestID)
	assert.Equal(t, "0xabc", got.TxRef)
}

func TestRedisBus_FailedHandlerGoesToDLQ(t *testing.T) {
	bus, mock := newMockRedisBus(t)
	raw, err := encodeEnvelope(fixedOnChainConfirmed())
	require.NoError(t, err)

	bus.handlers[events.EventTypeOnChainConfirmed] = []eventbus.HandlerFunc{
		func(context.Context, events.Event) error { return errors.New("simulated failure") },
	}
	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: "dlq:onchain:confirmed",
		Values: map[string]any{eventField: string(raw)},
	}).SetVal("9-0")
	mock.ExpectXAck("events:onchain:confirmed", "group:onchain:confirmed", "1-0").SetVal(1)

	bus.handleMessage(context.Background(), events.EventTypeOnChainConfirmed, redis.XMessage{
		ID:     "1-0",
		Values: map[string]any{eventField: string(raw)},
	})
}

func TestRedisBus_PanickingHandlerGoesToDLQ(t *testing.T) {
	bus, mock := newMockRedisBus(t)
	raw, err := encodeEnvelope(fixedOnChainConfirmed())
	require.NoError(t, err)

	bus.handlers[events.EventTypeOnChainConfirmed] = []eventbus.HandlerFunc{
		func(context.Context, events.Event) error { panic("boom") },
	}
	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: "dlq:onchain:confirmed",
		Values: map[string]any{eventField: string(raw)},
	}).SetVal("9-0")
	mock.ExpectXAck("events:onchain:confirmed", "group:onchain:confirmed", "2-0").SetVal(1)

	bus.handleMessage(context.Background(), events.EventTypeOnChainConfirmed, redis.XMessage{
		ID:     "2-0",
		Values: map[string]any{eventField: string(raw)},
	})
}

func TestRedisBus_UndecodableEntryGoesToDLQ(t *testing.T) {
	bus, mock := newMockRedisBus(t)
	mock.ExpectXAdd(&redis.XAddArgs{
		Stream: "dlq:payment:failed",
		Values: map[string]any{eventField: "{not json"},
	}).SetVal("9-0")
	mock.ExpectXAck("events:payment:failed", "group:payment:failed", "3-0").SetVal(1)

	bus.handleMessage(context.Background(), events.EventTypePaymentFailed, redis.XMessage{
		ID:     "3-0",
		Values: map[string]any{eventField: "{not json"},
	})
}

func TestRedisBus_ReplayDLQ(t *testing.T) {
	bus, mock := newMockRedisBus(t)
	raw, err := encodeEnvelope(fixedOnChainConfirmed())
	require.NoError(t, err)
	values := map[string]any{eventField: string(raw)}

	mock.ExpectXRangeN("dlq:onchain:confirmed", "-", "+", 10).
		SetVal([]redis.XMessage{{ID: "9-0", Values: values}})
	mock.ExpectXAdd(&redis.XAddArgs{Stream: "events:onchain:confirmed", Values: values}).SetVal("10-0")
	mock.ExpectXDel("dlq:onchain:confirmed", "9-0").SetVal(1)

	moved, err := bus.ReplayDLQ(context.Background(), events.EventTypeOnChainConfirmed, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)
}

func TestNames(t *testing.T) {
	assert.Equal(t, "events:topup:needsreconciliation", streamNameFor(events.EventTypeTopUpNeedsReconciliation))
	assert.Equal(t, "dlq:payment:confirmed", dlqStreamName(events.EventTypePaymentConfirmed))
	assert.Equal(t, "group:onchain:failed", groupNameFor(events.EventTypeOnChainFailed))
	assert.Equal(t, "topupledger.events.topup.completed", topicNameFor("", events.EventTypeTopUpCompleted))
	assert.Equal(t, "ops.dlq.payment.failed", dlqTopicNameFor(" ops ", events.EventTypePaymentFailed))
	assert.Equal(t, []string{"a:9092", "b:9092"}, parseBrokers(" a:9092, ,b:9092"))
}

func TestEnvelopeRoundTripKeepsConcreteType(t *testing.T) {
	in := events.NewPaymentFailed(events.WithCorrelationKey("k1"), events.WithReason("declined"))
	raw, err := encodeEnvelope(in)
	require.NoError(t, err)

	out, err := decodeEnvelope(raw)
	require.NoError(t, err)
	pf, ok := out.(*events.PaymentFailed)
	require.True(t, ok)
	assert.Equal(t, "k1", pf.CorrelationKey)
	assert.Equal(t, "declined", pf.Reason)

	_, err = decodeEnvelope([]byte(`{"type":"Nope.Event","payload":{}}`))
	assert.ErrorContains(t, err, "unknown event type")
}

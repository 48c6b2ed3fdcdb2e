//go:build integration

package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amirasaad/topupledger/pkg/domain/events"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedisBus(tb testing.TB) *RedisEventBus {
	tb.Helper()
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7.2-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(tb, err)
	tb.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(tb, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(tb, err)

	bus, err := NewWithRedis("redis://"+host+":"+port.Port(), discardLogger, &RedisEventBusConfig{
		Block:    200 * time.Millisecond,
		Consumer: "it",
	})
	require.NoError(tb, err)
	tb.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestRedisBusIntegration_RoundTripAndDLQReplay(t *testing.T) {
	bus := setupRedisBus(t)
	ctx := context.Background()

	fail := make(chan bool, 2)
	fail <- true
	fail <- false
	received := make(chan string, 1)
	bus.Register(events.EventTypeOnChainConfirmed, func(_ context.Context, e events.Event) error {
		if <-fail {
			return errors.New("temporary failure")
		}
		received <- e.(*events.OnChainConfirmed).RequestID
		return nil
	})

	require.NoError(t, bus.Emit(ctx, events.NewOnChainConfirmed("7", "0xabc")))

	require.Eventually(t, func() bool {
		n, err := bus.client.XLen(ctx, dlqStreamName(events.EventTypeOnChainConfirmed)).Result()
		return err == nil && n == 1
	}, 5*time.Second, 50*time.Millisecond)

	moved, err := bus.ReplayDLQ(ctx, events.EventTypeOnChainConfirmed, 10)
	require.NoError(t, err)
	require.Equal(t, 1, moved)

	select {
	case id := <-received:
		require.Equal(t, "7", id)
	case <-time.After(5 * time.Second):
		t.Fatal("replayed event was not delivered")
	}
}

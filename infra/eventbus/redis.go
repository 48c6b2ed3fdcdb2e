package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/amirasaad/topupledger/pkg/domain/events"
	"github.com/amirasaad/topupledger/pkg/eventbus"
	"github.com/redis/go-redis/v9"
)

const eventField = "event"

// RedisEventBusConfig tunes the stream consumers.
type RedisEventBusConfig struct {
	// Block is how long one XREADGROUP call waits for new entries.
	Block time.Duration
	// Count is the batch size of one read.
	Count int64
	// Consumer names this process inside the consumer groups.
	Consumer string
}

// DefaultRedisEventBusConfig returns the consumer defaults.
func DefaultRedisEventBusConfig() *RedisEventBusConfig {
	host, _ := os.Hostname()
	return &RedisEventBusConfig{
		Block:    5 * time.Second,
		Count:    10,
		Consumer: fmt.Sprintf("consumer-%s-%d", host, os.Getpid()),
	}
}

// RedisEventBus publishes each event type to its own Redis stream and
// consumes it through a consumer group. Failed deliveries are copied to a
// per-type DLQ stream and acknowledged.
type RedisEventBus struct {
	client *redis.Client
	config *RedisEventBusConfig
	logger *slog.Logger

	handlers    map[events.EventType][]eventbus.HandlerFunc
	handlersMtx sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWithRedis connects to url (e.g. "redis://localhost:6379/0").
func NewWithRedis(url string, logger *slog.Logger, config *RedisEventBusConfig) (*RedisEventBus, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("redis event bus: url is required")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis event bus: invalid URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis event bus: connection failed: %w", err)
	}
	return NewWithRedisClient(client, logger, config), nil
}

// NewWithRedisClient builds the bus on an existing client.
func NewWithRedisClient(client *redis.Client, logger *slog.Logger, config *RedisEventBusConfig) *RedisEventBus {
	if config == nil {
		config = DefaultRedisEventBusConfig()
	}
	if config.Block <= 0 {
		config.Block = 5 * time.Second
	}
	if config.Count <= 0 {
		config.Count = 10
	}
	if config.Consumer == "" {
		config.Consumer = DefaultRedisEventBusConfig().Consumer
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisEventBus{
		client:   client,
		config:   config,
		logger:   logger.With("bus", "redis"),
		handlers: make(map[events.EventType][]eventbus.HandlerFunc),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Emit appends the event to the stream of its type.
func (b *RedisEventBus) Emit(ctx context.Context, event events.Event) error {
	data, err := encodeEnvelope(event)
	if err != nil {
		return fmt.Errorf("redis event bus: %w", err)
	}
	eventType := events.EventType(event.Type())
	if err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamNameFor(eventType),
		Values: map[string]any{eventField: string(data)},
	}).Err(); err != nil {
		return fmt.Errorf("redis event bus: emit %s: %w", eventType, err)
	}
	b.logger.Debug("event emitted", "event_type", eventType)
	return nil
}

// Register adds a handler and starts the consumer of that event type on its
// first registration.
func (b *RedisEventBus) Register(eventType events.EventType, handler eventbus.HandlerFunc) {
	b.handlersMtx.Lock()
	first := len(b.handlers[eventType]) == 0
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.handlersMtx.Unlock()
	if !first {
		return
	}

	stream, group := streamNameFor(eventType), groupNameFor(eventType)
	err := b.client.XGroupCreateMkStream(b.ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		b.logger.Error("❌ Failed to create consumer group", "stream", stream, "group", group, "error", err)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.consume(eventType)
	}()
	b.logger.Info("🟢 Consumer started", "event_type", eventType, "stream", stream, "consumer", b.config.Consumer)
}

func (b *RedisEventBus) consume(eventType events.EventType) {
	stream, group := streamNameFor(eventType), groupNameFor(eventType)
	for b.ctx.Err() == nil {
		res, err := b.client.XReadGroup(b.ctx, &redis.XReadGroupArgs{
			Group:    group,
			Consumer: b.config.Consumer,
			Streams:  []string{stream, ">"},
			Count:    b.config.Count,
			Block:    b.config.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if b.ctx.Err() != nil {
				return
			}
			b.logger.Error("❌ Error reading from stream", "stream", stream, "error", err)
			time.Sleep(time.Second)
			continue
		}
		for _, s := range res {
			for _, msg := range s.Messages {
				b.handleMessage(b.ctx, eventType, msg)
			}
		}
	}
}

// handleMessage decodes and dispatches one stream entry. Entries that cannot
// be decoded or whose handlers fail go to the DLQ; every entry is acked.
func (b *RedisEventBus) handleMessage(ctx context.Context, eventType events.EventType, msg redis.XMessage) {
	stream, group := streamNameFor(eventType), groupNameFor(eventType)
	defer func() {
		if err := b.client.XAck(ctx, stream, group, msg.ID).Err(); err != nil {
			b.logger.Error("❌ Failed to acknowledge message", "stream", stream, "msg_id", msg.ID, "error", err)
		}
	}()

	raw, ok := msg.Values[eventField].(string)
	if !ok {
		b.logger.Error("❌ Stream entry without event field", "stream", stream, "msg_id", msg.ID)
		return
	}
	evt, err := decodeEnvelope([]byte(raw))
	if err != nil {
		b.logger.Error("❌ Failed to decode event", "stream", stream, "msg_id", msg.ID, "error", err)
		b.pushToDLQ(ctx, eventType, raw)
		return
	}

	b.handlersMtx.RLock()
	handlers := append([]eventbus.HandlerFunc(nil), b.handlers[eventType]...)
	b.handlersMtx.RUnlock()

	failed := false
	for _, h := range handlers {
		if !dispatch(ctx, b.logger, eventType, evt, h) {
			failed = true
		}
	}
	if failed {
		b.pushToDLQ(ctx, eventType, raw)
	}
}

func (b *RedisEventBus) pushToDLQ(ctx context.Context, eventType events.EventType, raw string) {
	dlq := dlqStreamName(eventType)
	if err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: dlq,
		Values: map[string]any{eventField: raw},
	}).Err(); err != nil {
		b.logger.Error("❌ Failed to push to DLQ", "stream", dlq, "error", err)
		return
	}
	b.logger.Warn("⚠️ Event pushed to DLQ", "stream", dlq, "event_type", eventType)
}

// ReplayDLQ moves up to count entries of the event type's DLQ back onto its
// stream and returns how many were moved.
func (b *RedisEventBus) ReplayDLQ(ctx context.Context, eventType events.EventType, count int64) (int, error) {
	dlq := dlqStreamName(eventType)
	msgs, err := b.client.XRangeN(ctx, dlq, "-", "+", count).Result()
	if err != nil {
		return 0, fmt.Errorf("redis event bus: read dlq: %w", err)
	}
	moved := 0
	for _, msg := range msgs {
		if err := b.client.XAdd(ctx, &redis.XAddArgs{
			Stream: streamNameFor(eventType),
			Values: msg.Values,
		}).Err(); err != nil {
			return moved, fmt.Errorf("redis event bus: republish: %w", err)
		}
		if err := b.client.XDel(ctx, dlq, msg.ID).Err(); err != nil {
			return moved, fmt.Errorf("redis event bus: trim dlq: %w", err)
		}
		moved++
	}
	return moved, nil
}

// Ping reports whether Redis answers.
func (b *RedisEventBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close stops the consumers and the client.
func (b *RedisEventBus) Close() error {
	b.cancel()
	b.wg.Wait()
	return b.client.Close()
}

var _ eventbus.Bus = (*RedisEventBus)(nil)

package eventbus

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/amirasaad/topupledger/pkg/domain/events"
	"github.com/amirasaad/topupledger/pkg/eventbus"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// KafkaEventBusConfig holds configuration for the Kafka event bus.
type KafkaEventBusConfig struct {
	GroupID          string
	TopicPrefix      string
	DLQRetryInterval time.Duration
	DLQBatchSize     int
	SASLUsername     string
	SASLPassword     string
	TLSEnabled       bool
	TLSSkipVerify    bool
}

// DefaultKafkaEventBusConfig returns default configuration for KafkaEventBus.
func DefaultKafkaEventBusConfig() *KafkaEventBusConfig {
	return &KafkaEventBusConfig{
		GroupID:          "topupledger",
		TopicPrefix:      defaultTopicPrefix,
		DLQRetryInterval: 5 * time.Minute,
		DLQBatchSize:     10,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEventBus publishes each event type to its own topic. Messages whose
// handlers fail are written to a DLQ topic and periodically republished.
type KafkaEventBus struct {
	brokers []string
	writer  messageWriter
	dialer  *kafka.Dialer
	config  *KafkaEventBusConfig
	logger  *slog.Logger

	// createTopic is replaced in tests.
	createTopic func(ctx context.Context, topic string) error

	handlers    map[events.EventType][]eventbus.HandlerFunc
	handlersMtx sync.RWMutex
	readers     map[events.EventType]*kafka.Reader
	readersMtx  sync.Mutex
	topics      map[string]struct{}
	topicsMtx   sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWithKafka creates a Kafka-backed event bus.
// brokers: comma separated list, e.g. "localhost:9092,localhost:9093".
func NewWithKafka(brokers string, logger *slog.Logger, config *KafkaEventBusConfig) (*KafkaEventBus, error) {
	parsed := parseBrokers(brokers)
	if len(parsed) == 0 {
		return nil, fmt.Errorf("kafka event bus: brokers are required")
	}
	config = withKafkaDefaults(config)
	if logger == nil {
		logger = slog.Default()
	}

	dialer, transport, err := newKafkaDialer(config)
	if err != nil {
		return nil, err
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(parsed...),
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		Balancer:               &kafka.Hash{},
	}
	if transport != nil {
		writer.Transport = transport
	}

	bus := newKafkaBus(parsed, writer, dialer, logger, config)
	if err := bus.ping(bus.ctx); err != nil {
		_ = bus.Close()
		return nil, err
	}
	bus.startDLQRetryWorker()
	bus.logger.Info("🚀 Kafka event bus initialized",
		"group_id", config.GroupID,
		"brokers", parsed,
		"dlq_retry_interval", config.DLQRetryInterval,
		"tls_enabled", dialer.TLS != nil,
		"sasl_enabled", dialer.SASLMechanism != nil,
	)
	return bus, nil
}

func withKafkaDefaults(config *KafkaEventBusConfig) *KafkaEventBusConfig {
	if config == nil {
		return DefaultKafkaEventBusConfig()
	}
	c := *config
	if c.GroupID == "" {
		c.GroupID = "topupledger"
	}
	c.TopicPrefix = topicPrefix(c.TopicPrefix)
	if c.DLQBatchSize <= 0 {
		c.DLQBatchSize = 10
	}
	if c.DLQRetryInterval <= 0 {
		c.DLQRetryInterval = 5 * time.Minute
	}
	return &c
}

func newKafkaBus(
	brokers []string,
	writer messageWriter,
	dialer *kafka.Dialer,
	logger *slog.Logger,
	config *KafkaEventBusConfig,
) *KafkaEventBus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &KafkaEventBus{
		brokers:  brokers,
		writer:   writer,
		dialer:   dialer,
		config:   config,
		logger:   logger.With("bus", "kafka"),
		handlers: make(map[events.EventType][]eventbus.HandlerFunc),
		readers:  make(map[events.EventType]*kafka.Reader),
		topics:   make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	b.createTopic = b.dialCreateTopic
	return b
}

// Close stops background goroutines and closes network resources.
func (b *KafkaEventBus) Close() error {
	b.cancel()
	b.readersMtx.Lock()
	for _, r := range b.readers {
		_ = r.Close()
	}
	b.readersMtx.Unlock()
	b.wg.Wait()
	return b.writer.Close()
}

// Register registers a handler and starts a reader for the event type.
func (b *KafkaEventBus) Register(eventType events.EventType, handler eventbus.HandlerFunc) {
	b.handlersMtx.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.handlersMtx.Unlock()
	b.ensureConsumer(eventType)
}

// Emit publishes an event to the topic of its type, keyed by type.
func (b *KafkaEventBus) Emit(ctx context.Context, event events.Event) error {
	data, err := encodeEnvelope(event)
	if err != nil {
		return fmt.Errorf("kafka event bus: %w", err)
	}
	topic := topicNameFor(b.config.TopicPrefix, events.EventType(event.Type()))
	if err := b.ensureTopic(ctx, topic); err != nil {
		return err
	}
	if err := b.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(event.Type()),
		Value: data,
		Time:  time.Now(),
	}); err != nil {
		return fmt.Errorf("kafka event bus: publish failed: %w", err)
	}
	return nil
}

// Ping dials the first broker.
func (b *KafkaEventBus) Ping(ctx context.Context) error {
	return b.ping(ctx)
}

func (b *KafkaEventBus) ping(ctx context.Context) error {
	conn, err := b.dialer.DialContext(ctx, "tcp", b.brokers[0])
	if err != nil {
		return fmt.Errorf("kafka event bus: connection failed: %w", err)
	}
	return conn.Close()
}

func (b *KafkaEventBus) ensureConsumer(eventType events.EventType) {
	b.readersMtx.Lock()
	defer b.readersMtx.Unlock()
	if _, ok := b.readers[eventType]; ok {
		return
	}

	topic := topicNameFor(b.config.TopicPrefix, eventType)
	if err := b.ensureTopic(b.ctx, topic); err != nil {
		b.logger.Error("❌ Kafka ensure topic error", "error", err, "topic", topic)
		return
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     b.brokers,
		GroupID:     b.config.GroupID,
		Topic:       topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		Dialer:      b.dialer,
	})
	b.readers[eventType] = reader

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.consumeLoop(eventType, reader)
	}()
}

func (b *KafkaEventBus) consumeLoop(eventType events.EventType, reader *kafka.Reader) {
	for {
		msg, err := reader.FetchMessage(b.ctx)
		if err != nil {
			if b.ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			b.logger.Error("❌ Kafka consume error", "error", err, "event_type", eventType)
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if err := b.processMessage(b.ctx, eventType, msg); err != nil {
			// not committed, so the message is fetched again
			b.logger.Error("❌ Kafka message processing failed; will retry",
				"error", err, "topic", msg.Topic, "offset", msg.Offset)
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if err := reader.CommitMessages(b.ctx, msg); err != nil {
			b.logger.Error("❌ Kafka commit error", "error", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// processMessage returns an error only when the message must not be committed.
func (b *KafkaEventBus) processMessage(ctx context.Context, eventType events.EventType, msg kafka.Message) error {
	evt, err := decodeEnvelope(msg.Value)
	if err != nil {
		b.logger.Error("❌ Failed to decode event", "error", err, "topic", msg.Topic, "offset", msg.Offset)
		return b.publishToDLQ(ctx, eventType, msg.Value)
	}

	b.handlersMtx.RLock()
	handlers := append([]eventbus.HandlerFunc(nil), b.handlers[eventType]...)
	b.handlersMtx.RUnlock()
	if len(handlers) == 0 {
		b.logger.Warn("⚠️ No handlers registered for event type", "event_type", eventType)
		return nil
	}

	failed := false
	for _, h := range handlers {
		if !dispatch(ctx, b.logger, eventType, evt, h) {
			failed = true
		}
	}
	if !failed {
		return nil
	}
	return b.publishToDLQ(ctx, eventType, msg.Value)
}

func (b *KafkaEventBus) publishToDLQ(ctx context.Context, eventType events.EventType, raw []byte) error {
	topic := dlqTopicNameFor(b.config.TopicPrefix, eventType)
	if err := b.ensureTopic(ctx, topic); err != nil {
		return err
	}
	if err := b.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(eventType.String()),
		Value: raw,
		Time:  time.Now(),
	}); err != nil {
		return fmt.Errorf("kafka event bus: dlq publish failed: %w", err)
	}
	b.logger.Warn("⚠️ Message sent to DLQ", "event_type", eventType, "dlq_topic", topic)
	return nil
}

func (b *KafkaEventBus) ensureTopic(ctx context.Context, topic string) error {
	b.topicsMtx.Lock()
	_, ok := b.topics[topic]
	b.topicsMtx.Unlock()
	if ok {
		return nil
	}
	if err := b.createTopic(ctx, topic); err != nil {
		return err
	}
	b.topicsMtx.Lock()
	b.topics[topic] = struct{}{}
	b.topicsMtx.Unlock()
	return nil
}

func (b *KafkaEventBus) dialCreateTopic(ctx context.Context, topic string) error {
	conn, err := b.dialer.DialContext(ctx, "tcp", b.brokers[0])
	if err != nil {
		return fmt.Errorf("kafka event bus: dial failed: %w", err)
	}
	defer func() { _ = conn.Close() }()

	err = conn.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("kafka event bus: create topic failed: %w", err)
	}
	return nil
}

func (b *KafkaEventBus) startDLQRetryWorker() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.config.DLQRetryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-b.ctx.Done():
				return
			case <-ticker.C:
				b.processAllDLQs(b.ctx)
			}
		}
	}()
}

func (b *KafkaEventBus) processAllDLQs(ctx context.Context) {
	topics, err := b.listDLQTopics(ctx)
	if err != nil {
		b.logger.Error("❌ Failed to list DLQ topics", "error", err)
		return
	}
	for _, topic := range topics {
		b.retryDLQ(ctx, topic)
	}
}

func (b *KafkaEventBus) listDLQTopics(ctx context.Context) ([]string, error) {
	conn, err := b.dialer.DialContext(ctx, "tcp", b.brokers[0])
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return nil, err
	}
	prefix := b.config.TopicPrefix + ".dlq."
	seen := make(map[string]struct{})
	var out []string
	for _, p := range partitions {
		if !strings.HasPrefix(p.Topic, prefix) {
			continue
		}
		if _, ok := seen[p.Topic]; ok {
			continue
		}
		seen[p.Topic] = struct{}{}
		out = append(out, p.Topic)
	}
	return out, nil
}

// retryDLQ republishes up to DLQBatchSize messages of one DLQ topic to the
// topic of their envelope type.
func (b *KafkaEventBus) retryDLQ(ctx context.Context, dlqTopic string) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     b.brokers,
		GroupID:     b.config.GroupID + "-dlq-retry",
		Topic:       dlqTopic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     250 * time.Millisecond,
		Dialer:      b.dialer,
	})
	defer func() { _ = reader.Close() }()

	for i := 0; i < b.config.DLQBatchSize; i++ {
		fetchCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		msg, err := reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			return
		}
		evt, err := decodeEnvelope(msg.Value)
		if err != nil {
			// poison message, nothing to republish
			_ = reader.CommitMessages(ctx, msg)
			continue
		}
		topic := topicNameFor(b.config.TopicPrefix, events.EventType(evt.Type()))
		if err := b.writer.WriteMessages(ctx, kafka.Message{
			Topic: topic,
			Key:   []byte(evt.Type()),
			Value: msg.Value,
			Time:  time.Now(),
		}); err != nil {
			b.logger.Error("❌ Failed to republish DLQ message", "error", err, "topic", topic)
			return
		}
		_ = reader.CommitMessages(ctx, msg)
	}
}

func newKafkaDialer(config *KafkaEventBusConfig) (*kafka.Dialer, *kafka.Transport, error) {
	mechanism, err := buildKafkaSASLMechanism(config)
	if err != nil {
		return nil, nil, err
	}
	tlsConfig := buildKafkaTLSConfig(config)
	dialer := &kafka.Dialer{
		Timeout:       5 * time.Second,
		DualStack:     true,
		TLS:           tlsConfig,
		SASLMechanism: mechanism,
	}
	if tlsConfig == nil && mechanism == nil {
		return dialer, nil, nil
	}
	return dialer, &kafka.Transport{TLS: tlsConfig, SASL: mechanism}, nil
}

func buildKafkaTLSConfig(config *KafkaEventBusConfig) *tls.Config {
	if !config.TLSEnabled {
		return nil
	}
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: config.TLSSkipVerify, //nolint:gosec
	}
}

func buildKafkaSASLMechanism(config *KafkaEventBusConfig) (sasl.Mechanism, error) {
	username := strings.TrimSpace(config.SASLUsername)
	password := strings.TrimSpace(config.SASLPassword)
	if username == "" && password == "" {
		return nil, nil
	}
	if username == "" || password == "" {
		return nil, fmt.Errorf("kafka event bus: sasl username and password are required")
	}
	return plain.Mechanism{Username: username, Password: password}, nil
}

var _ eventbus.Bus = (*KafkaEventBus)(nil)

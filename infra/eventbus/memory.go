package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/amirasaad/topupledger/pkg/domain/events"
	"github.com/amirasaad/topupledger/pkg/eventbus"
)

// MemoryEventBus dispatches events synchronously to the registered handlers.
// Handler errors are logged; the emitter never sees them.
type MemoryEventBus struct {
	handlers  map[events.EventType][]eventbus.HandlerFunc
	mu        sync.RWMutex
	logger    *slog.Logger
	published []events.Event
}

// NewWithMemory creates a new in-memory event bus.
func NewWithMemory(logger *slog.Logger) *MemoryEventBus {
	return &MemoryEventBus{
		handlers: make(map[events.EventType][]eventbus.HandlerFunc),
		logger:   logger.With("bus", "memory"),
	}
}

// Register registers a handler for a specific event type.
func (b *MemoryEventBus) Register(eventType events.EventType, handler eventbus.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Emit dispatches the event to all registered handlers for its type.
func (b *MemoryEventBus) Emit(ctx context.Context, event events.Event) error {
	eventType := events.EventType(event.Type())
	b.mu.Lock()
	handlers := append([]eventbus.HandlerFunc(nil), b.handlers[eventType]...)
	b.published = append(b.published, event)
	b.mu.Unlock()

	for _, handler := range handlers {
		dispatch(ctx, b.logger, eventType, event, handler)
	}
	return nil
}

// Published returns the events emitted so far.
func (b *MemoryEventBus) Published() []events.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]events.Event(nil), b.published...)
}

// ClearPublished forgets the recorded events.
func (b *MemoryEventBus) ClearPublished() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = nil
}

var _ eventbus.Bus = (*MemoryEventBus)(nil)

type queuedEvent struct {
	ctx   context.Context
	event events.Event
}

// MemoryAsyncEventBus queues events and runs handlers on their own goroutines.
type MemoryAsyncEventBus struct {
	handlers map[events.EventType][]eventbus.HandlerFunc
	mu       sync.RWMutex
	eventCh  chan queuedEvent
	wg       sync.WaitGroup
	once     sync.Once
	log      *slog.Logger
}

// NewWithMemoryAsync creates a queued in-memory event bus.
func NewWithMemoryAsync(logger *slog.Logger) *MemoryAsyncEventBus {
	b := &MemoryAsyncEventBus{
		handlers: make(map[events.EventType][]eventbus.HandlerFunc),
		eventCh:  make(chan queuedEvent, 100),
		log:      logger.With("bus", "memory-async"),
	}
	go b.process()
	return b
}

func (b *MemoryAsyncEventBus) Register(eventType events.EventType, handler eventbus.HandlerFunc) {
	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.mu.Unlock()
}

// Emit queues the event. The handlers run with a context detached from the
// caller's cancellation.
func (b *MemoryAsyncEventBus) Emit(ctx context.Context, event events.Event) error {
	b.wg.Add(1)
	select {
	case b.eventCh <- queuedEvent{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	case <-ctx.Done():
		b.wg.Done()
		return ctx.Err()
	}
}

// Wait blocks until every queued event has been handled.
func (b *MemoryAsyncEventBus) Wait() {
	b.wg.Wait()
}

// Close stops the dispatcher after the queue drains. Emit must not be called
// afterwards.
func (b *MemoryAsyncEventBus) Close() error {
	b.once.Do(func() {
		b.wg.Wait()
		close(b.eventCh)
	})
	return nil
}

func (b *MemoryAsyncEventBus) process() {
	for q := range b.eventCh {
		go func(q queuedEvent) {
			defer b.wg.Done()
			eventType := events.EventType(q.event.Type())
			b.mu.RLock()
			handlers := append([]eventbus.HandlerFunc(nil), b.handlers[eventType]...)
			b.mu.RUnlock()
			for _, handler := range handlers {
				dispatch(q.ctx, b.log, eventType, q.event, handler)
			}
		}(q)
	}
}

var _ eventbus.Bus = (*MemoryAsyncEventBus)(nil)

// dispatch runs one handler and reports whether it succeeded. Panics are
// recovered and count as failures.
func dispatch(
	ctx context.Context,
	logger *slog.Logger,
	eventType events.EventType,
	event events.Event,
	handler eventbus.HandlerFunc,
) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("❌ Panic recovered in event handler", "event_type", eventType, "panic", r)
			ok = false
		}
	}()
	if err := handler(ctx, event); err != nil {
		logger.Error("❌ Failed to process event", "event_type", eventType, "error", err)
		return false
	}
	return true
}

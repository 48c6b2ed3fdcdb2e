// Package common holds middleware shared by event handlers.
package common

import (
	"context"
	"log/slog"
	"sync"

	"github.com/amirasaad/topupledger/pkg/domain/events"
	"github.com/amirasaad/topupledger/pkg/eventbus"
	"golang.org/x/sync/singleflight"
)

const defaultTrackerLimit = 10_000

// KeyExtractor extracts an idempotency key from an event
type KeyExtractor func(events.Event) string

// IdempotencyTracker remembers processed keys. It holds at most limit keys;
// the oldest are forgotten first.
type IdempotencyTracker struct {
	mu        sync.Mutex
	processed map[string]struct{}
	order     []string
	limit     int
	inflight  singleflight.Group
}

// NewIdempotencyTracker creates a tracker. A non-positive limit uses the default.
func NewIdempotencyTracker(limit int) *IdempotencyTracker {
	if limit <= 0 {
		limit = defaultTrackerLimit
	}
	return &IdempotencyTracker{processed: make(map[string]struct{}), limit: limit}
}

// Seen reports whether key was processed.
func (t *IdempotencyTracker) Seen(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.processed[key]
	return ok
}

// Store marks a key as processed
func (t *IdempotencyTracker) Store(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.processed[key]; ok {
		return
	}
	t.processed[key] = struct{}{}
	t.order = append(t.order, key)
	for len(t.order) > t.limit {
		delete(t.processed, t.order[0])
		t.order = t.order[1:]
	}
}

// Delete removes a key from the tracker
func (t *IdempotencyTracker) Delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.processed, key)
}

// Len is the number of remembered keys.
func (t *IdempotencyTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.processed)
}

// WithIdempotency skips events whose key was already handled successfully.
// Concurrent deliveries of one key share a single handler run; a failed run
// is not remembered so the next delivery tries again.
func WithIdempotency(
	handler eventbus.HandlerFunc,
	tracker *IdempotencyTracker,
	keyExtractor KeyExtractor,
	handlerName string,
	logger *slog.Logger,
) eventbus.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, e events.Event) error {
		key := keyExtractor(e)
		if key == "" {
			return handler(ctx, e)
		}

		log := logger.With(
			"handler", handlerName,
			"event_type", e.Type(),
			"idempotency_key", key,
		)
		if tracker.Seen(key) {
			log.Info("🔁 [SKIP] Event already processed")
			return nil
		}

		_, err, _ := tracker.inflight.Do(key, func() (any, error) {
			if tracker.Seen(key) {
				return nil, nil
			}
			if err := handler(ctx, e); err != nil {
				return nil, err
			}
			tracker.Store(key)
			return nil, nil
		})
		return err
	}
}

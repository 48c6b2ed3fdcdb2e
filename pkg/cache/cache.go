// Package cache defines the key/value store shared by rate limiting across
// server replicas.
package cache

import "time"

// Store is a byte store with per-key expiry. Its method set matches
// fiber.Storage so any Store can back the fiber limiter directly.
type Store interface {
	// Get returns nil, nil when the key is missing or expired.
	Get(key string) ([]byte, error)
	// Set stores val; a zero exp means no expiry.
	Set(key string, val []byte, exp time.Duration) error
	Delete(key string) error
	// Reset removes every key owned by the store.
	Reset() error
	Close() error
}

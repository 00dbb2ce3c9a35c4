// Package cache stores opaque byte payloads keyed by string.
//
// mybget uses it to keep the last successfully fetched registry payload of
// every source, so a "not modified" answer from a registry can be served
// from disk and a failed fetch never loses the previous content.
//
// Implementations:
//   - [FileCache]: one JSON envelope per key under a directory (CLI default)
//   - [NullCache]: stores nothing, used with --no-cache and in tests
//
// Use [WithPrefix] to give independent users of one backend their own key
// space.
package cache

import (
	"context"
	"time"
)

// Cache is the interface implemented by payload cache backends.
type Cache interface {
	// Get returns the stored bytes and whether the key was present and fresh.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of 0 means the entry never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// TTLRegistry is the lifetime of a cached registry payload. Registry
// payloads are validated with ETags instead of expiring.
const TTLRegistry time.Duration = 0

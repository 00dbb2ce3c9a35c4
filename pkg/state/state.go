// Package state persists the small pieces of mutable bookkeeping mybget
// keeps between runs: per-source ETags and fetch status, and install
// records.
//
// Keys are namespaced by convention:
//
//	etag:<source-id>       last ETag returned by a registry
//	source:<source-id>     JSON [SourceState] for the last fetch attempt
//	install:<module-id>    JSON install record
//
// Two backends are provided: [FileStore], one JSON file per key under the
// config directory (default), and [RedisStore] for setups that share state
// between machines or containers.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Key namespace prefixes.
const (
	PrefixETag    = "etag:"
	PrefixSource  = "source:"
	PrefixInstall = "install:"
)

// Store is a flat key-value store for persisted state.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns all keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Clear removes all keys starting with prefix. An empty prefix clears
	// everything.
	Clear(ctx context.Context, prefix string) error

	// Close releases backend resources.
	Close() error
}

// GetJSON loads key and decodes it into v. It reports false when the key
// does not exist.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	data, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}

func filterKeys(keys []string, prefix string) []string {
	out := keys[:0]
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

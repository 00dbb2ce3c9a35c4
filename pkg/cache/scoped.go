package cache

import (
	"context"
	"time"
)

// prefixed wraps a Cache and prepends a fixed prefix to every key.
type prefixed struct {
	inner  Cache
	prefix string
}

// WithPrefix returns a view of c whose keys are prefixed with prefix.
// Prefixes chain, so WithPrefix(WithPrefix(c, "a:"), "b:") uses "a:b:".
// Closing the view closes the underlying cache.
//
// Example usage:
//
//	registries := cache.WithPrefix(backend, "registry:")
//	registries.Set(ctx, "mybible.zone", payload, cache.TTLRegistry)
func WithPrefix(c Cache, prefix string) Cache {
	if c == nil {
		c = NewNullCache()
	}
	if p, ok := c.(*prefixed); ok {
		return &prefixed{inner: p.inner, prefix: p.prefix + prefix}
	}
	return &prefixed{inner: c, prefix: prefix}
}

func (p *prefixed) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return p.inner.Get(ctx, p.prefix+key)
}

func (p *prefixed) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return p.inner.Set(ctx, p.prefix+key, data, ttl)
}

func (p *prefixed) Delete(ctx context.Context, key string) error {
	return p.inner.Delete(ctx, p.prefix+key)
}

func (p *prefixed) Close() error {
	return p.inner.Close()
}

var _ Cache = (*prefixed)(nil)

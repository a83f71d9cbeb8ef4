package secret

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedProvider memoizes lookups of an inner provider. Credentials are read
// once at startup, but several providers often share one vault secret with
// different keys, so lookups of the same path are collapsed.
type CachedProvider struct {
	inner Provider
	cache *cache.Cache
}

// NewCachedProvider wraps inner with a cache whose entries live for ttl.
func NewCachedProvider(inner Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		inner: inner,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Get returns a cached value or fetches and caches it.
func (p *CachedProvider) Get(ctx context.Context, path string) (string, error) {
	if v, ok := p.cache.Get(path); ok {
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	v, err := p.inner.Get(ctx, path)
	if err != nil {
		return "", err
	}
	p.cache.SetDefault(path, v)
	return v, nil
}

// Invalidate drops a cached path.
func (p *CachedProvider) Invalidate(path string) {
	p.cache.Delete(path)
}

// Close closes the inner provider.
func (p *CachedProvider) Close() error {
	p.cache.Flush()
	return p.inner.Close()
}

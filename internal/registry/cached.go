package registry

import (
	"context"
	"time"

	"github.com/livetemplate/sandbox/internal/cache"
	"github.com/livetemplate/sandbox/internal/demo"
)

// CachedLoader wraps a Loader with a TTL cache keyed by demo name
type CachedLoader struct {
	inner Loader
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedLoader creates a new cached loader wrapper
func NewCachedLoader(inner Loader, c cache.Cache, ttl time.Duration) *CachedLoader {
	return &CachedLoader{inner: inner, cache: c, ttl: ttl}
}

// Name returns the demo name
func (l *CachedLoader) Name() string {
	return l.inner.Name()
}

// Load returns the cached definition or loads and caches a fresh one
func (l *CachedLoader) Load(ctx context.Context) (*demo.Definition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if def, found := l.cache.Get(l.Name()); found {
		return def, nil
	}

	def, err := l.inner.Load(ctx)
	if err != nil {
		return nil, err
	}
	l.cache.Set(l.Name(), def, l.ttl)
	return def, nil
}

// Invalidate removes this demo from the cache
func (l *CachedLoader) Invalidate() {
	l.cache.Invalidate(l.Name())
}

// Close closes the underlying loader
func (l *CachedLoader) Close() error {
	return l.inner.Close()
}

// Inner returns the wrapped loader
func (l *CachedLoader) Inner() Loader {
	return l.inner
}

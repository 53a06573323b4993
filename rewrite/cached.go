package rewrite

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/hupe1980/chatmesh/core"
)

// CacheOptions configure a Cached rewriter.
type CacheOptions struct {
	MaxEntries int64         // approximate number of cached rewrites; default 10000
	TTL        time.Duration // 0 = no expiry
}

// Cached memoizes another rewriter. Only rewrites that differ from the
// input are cached, so a transient failure (which returns the original
// query) is retried on the next call.
type Cached struct {
	next  core.QueryRewriter
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewCached wraps next with a ristretto cache.
func NewCached(next core.QueryRewriter, optFns ...func(o *CacheOptions)) (*Cached, error) {
	opts := CacheOptions{MaxEntries: 10000}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 10000
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: opts.MaxEntries * 10,
		MaxCost:     opts.MaxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cached{next: next, cache: cache, ttl: opts.TTL}, nil
}

// Rewrite implements core.QueryRewriter.
func (c *Cached) Rewrite(ctx context.Context, query string) string {
	if v, ok := c.cache.Get(query); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	out := c.next.Rewrite(ctx, query)
	if out != query && out != "" {
		c.cache.SetWithTTL(query, out, 1, c.ttl)
	}
	return out
}

// Wait blocks until pending cache writes are applied.
func (c *Cached) Wait() { c.cache.Wait() }

// Close releases the cache.
func (c *Cached) Close() { c.cache.Close() }

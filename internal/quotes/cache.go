package quotes

import (
	"context"
	"errors"
	"sync"
	"time"

	"portfolio-tracker/internal/valuation"
	"golang.org/x/sync/singleflight"
)

type cacheEntry struct {
	quote   valuation.Quote
	expires time.Time
}

// Cache keeps successful quotes from a Source for a fixed TTL. Failures are
// never cached. Concurrent misses for one symbol share a single upstream call.
type Cache struct {
	source Source
	ttl    time.Duration
	now    func() time.Time
	group  singleflight.Group

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// ensure Cache implements the interface
var _ Source = (*Cache)(nil)

// NewCache wraps source. A non-positive ttl disables caching.
func NewCache(source Source, ttl time.Duration) *Cache {
	return &Cache{
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// GetQuote serves symbol from the cache when fresh, otherwise from the source.
func (c *Cache) GetQuote(ctx context.Context, symbol string) (valuation.Quote, error) {
	if c.ttl <= 0 {
		return c.source.GetQuote(ctx, symbol)
	}

	key := NormalizeSymbol(symbol)
	now := c.now()

	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && now.Before(entry.expires) {
		c.mu.Unlock()
		return entry.quote, nil
	}
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	ch := c.group.DoChan(key, func() (any, error) {
		return c.fetch(ctx, key, symbol, now)
	})

	select {
	case res := <-ch:
		// The shared call ran on the first caller's context. If that caller
		// gave up while this one has time left, ask the source directly.
		if res.Err != nil && ctx.Err() == nil &&
			(errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded)) {
			return c.fetch(ctx, key, symbol, now)
		}
		if res.Err != nil {
			return valuation.Quote{}, res.Err
		}
		return res.Val.(valuation.Quote), nil
	case <-ctx.Done():
		return valuation.Quote{}, ctx.Err()
	}
}

func (c *Cache) fetch(ctx context.Context, key, symbol string, now time.Time) (valuation.Quote, error) {
	q, err := c.source.GetQuote(ctx, symbol)
	if err != nil {
		return valuation.Quote{}, err
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{quote: q, expires: now.Add(c.ttl)}
	c.mu.Unlock()
	return q, nil
}

// Purge drops every cached quote.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

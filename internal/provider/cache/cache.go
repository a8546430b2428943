// Package cache decorates a provider with a short-lived search-result cache.
// Search is the one capability callers tend to hammer interactively, and the
// upstream answer changes slowly, so results are held per query for a TTL.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"pricingcore/internal/date"
	"pricingcore/internal/pricing"
	"pricingcore/internal/provider"
)

// DefaultTTL is how long a search result stays valid when no TTL is set.
const DefaultTTL = 10 * time.Minute

type entry struct {
	expiresAt  time.Time
	candidates []pricing.Candidate
}

// SearchCache wraps a provider and caches Search results per query.
// All other capabilities pass straight through.
type SearchCache struct {
	P        provider.Provider
	TTL      time.Duration
	MaxItems int

	// now is swappable for tests.
	now func() time.Time

	mu    sync.RWMutex
	items map[string]entry // key: normalized query
}

func New(p provider.Provider, ttl time.Duration) *SearchCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SearchCache{P: p, TTL: ttl, MaxItems: 1024, now: time.Now}
}

func (c *SearchCache) Code() string        { return c.P.Code() }
func (c *SearchCache) DisplayName() string { return c.P.DisplayName() }

func (c *SearchCache) CurrentValue(ctx context.Context, ref provider.Ref) (pricing.PricePoint, error) {
	return c.P.CurrentValue(ctx, ref)
}

func (c *SearchCache) HistoricalSeries(ctx context.Context, ref provider.Ref, start, end date.Date) ([]pricing.PricePoint, error) {
	return c.P.HistoricalSeries(ctx, ref, start, end)
}

func (c *SearchCache) Metadata(ctx context.Context, ref provider.Ref) (*pricing.InstrumentAttributes, error) {
	return c.P.Metadata(ctx, ref)
}

// Search returns the cached result for query when still valid, otherwise asks
// the underlying provider and stores the answer. Errors (including
// ErrUnsupported) are never cached.
func (c *SearchCache) Search(ctx context.Context, query string) ([]pricing.Candidate, error) {
	key := strings.ToLower(strings.TrimSpace(query))
	now := c.now()

	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if ok && now.Before(e.expiresAt) {
		return e.candidates, nil
	}

	candidates, err := c.P.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.items == nil {
		c.items = make(map[string]entry)
	}
	c.items[key] = entry{expiresAt: now.Add(c.TTL), candidates: candidates}
	if c.MaxItems > 0 && len(c.items) > c.MaxItems {
		// drop expired entries first, then arbitrary ones until under the cap
		for k, v := range c.items {
			if len(c.items) <= c.MaxItems {
				break
			}
			if now.After(v.expiresAt) {
				delete(c.items, k)
			}
		}
		for k := range c.items {
			if len(c.items) <= c.MaxItems {
				break
			}
			delete(c.items, k)
		}
	}
	c.mu.Unlock()

	return candidates, nil
}

var _ provider.Provider = (*SearchCache)(nil)

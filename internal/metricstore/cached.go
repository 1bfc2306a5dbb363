package metricstore

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	cacheKeySnapshot    = "snapshot"
	cacheKeyPopulations = "populations"
)

// CachedProvider wraps a Provider with a short-lived cache so that a burst
// of rule executions or dashboard queries does not hammer the portal
// database. Event reads bypass the cache: their since window changes per
// call.
type CachedProvider struct {
	inner Provider
	cache *gocache.Cache
}

// NewCachedProvider wraps inner with the given TTL.
func NewCachedProvider(inner Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Snapshot returns the cached snapshot, refreshing it on expiry.
func (p *CachedProvider) Snapshot(ctx context.Context) ([]EntityMetrics, error) {
	if v, ok := p.cache.Get(cacheKeySnapshot); ok {
		return v.([]EntityMetrics), nil
	}
	snap, err := p.inner.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	p.cache.SetDefault(cacheKeySnapshot, snap)
	return snap, nil
}

// History returns cached history points for an entity.
func (p *CachedProvider) History(ctx context.Context, entityID uint, periods int) ([]HistoryPoint, error) {
	key := fmt.Sprintf("history:%d:%d", entityID, periods)
	if v, ok := p.cache.Get(key); ok {
		return v.([]HistoryPoint), nil
	}
	points, err := p.inner.History(ctx, entityID, periods)
	if err != nil {
		return nil, err
	}
	p.cache.SetDefault(key, points)
	return points, nil
}

// RecentEvents passes through to the underlying provider.
func (p *CachedProvider) RecentEvents(ctx context.Context, since time.Time) ([]EntityEvent, error) {
	return p.inner.RecentEvents(ctx, since)
}

// Populations returns the cached per-region entity counts.
func (p *CachedProvider) Populations(ctx context.Context) (map[string]int64, error) {
	if v, ok := p.cache.Get(cacheKeyPopulations); ok {
		return v.(map[string]int64), nil
	}
	pops, err := p.inner.Populations(ctx)
	if err != nil {
		return nil, err
	}
	p.cache.SetDefault(cacheKeyPopulations, pops)
	return pops, nil
}

// Flush drops all cached entries. Used after test fixtures change.
func (p *CachedProvider) Flush() {
	p.cache.Flush()
}

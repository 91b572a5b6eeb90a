// Package favorites fetches weather for each favorite city independently and
// exposes per-city results. One city failing never affects another; there is
// no aggregate all-or-nothing status.
package favorites

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/skydash/skydash/observability"
	"github.com/skydash/skydash/query"
	"github.com/skydash/skydash/weather"
)

// CityResult pairs a favorite's display name with its latest query result.
type CityResult struct {
	City   string
	Result query.Result
}

// Aggregator fans out through the query layer, one coalesced, independently
// cached fetch per favorite. Favorites lists are user-curated and small, so
// every city is fetched concurrently with no batching.
type Aggregator struct {
	layer  *query.Layer
	logger *zap.Logger

	mu        sync.RWMutex
	snapshots map[string]CityResult // keyed by canonical location key
}

// NewAggregator creates an Aggregator on top of the query layer.
func NewAggregator(layer *query.Layer, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		layer:     layer,
		logger:    logger,
		snapshots: make(map[string]CityResult),
	}
}

// Refresh fetches weather for every city concurrently and returns the
// per-city results keyed by display name. Each city goes through the query
// layer on its own cache key with its own staleness policy, so a city fetched
// recently is served from cache. Errors stay local to their city.
func (a *Aggregator) Refresh(ctx context.Context, cities []string) map[string]CityResult {
	results := make(map[string]CityResult, len(cities))
	if len(cities) == 0 {
		return results
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, city := range cities {
		wg.Add(1)
		go func(city string) {
			defer wg.Done()
			loc := weather.ByName(city)
			res := a.layer.GetOrFetch(ctx, loc)

			if res.Status == query.StatusError {
				observability.FavoriteRefreshTotal.WithLabelValues("error").Inc()
				a.logger.Warn("favorite refresh failed", zap.String("city", city), zap.Error(res.Err))
			} else {
				observability.FavoriteRefreshTotal.WithLabelValues("success").Inc()
			}

			entry := CityResult{City: city, Result: res}
			mu.Lock()
			results[city] = entry
			mu.Unlock()

			a.mu.Lock()
			a.snapshots[loc.CacheKey()] = entry
			a.mu.Unlock()
		}(city)
	}
	wg.Wait()
	return results
}

// Snapshot returns the last known result for city, if any.
func (a *Aggregator) Snapshot(city string) (CityResult, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	res, ok := a.snapshots[weather.ByName(city).CacheKey()]
	return res, ok
}

// Snapshots returns the last known result for every tracked city, keyed by
// display name.
func (a *Aggregator) Snapshots() map[string]CityResult {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]CityResult, len(a.snapshots))
	for _, entry := range a.snapshots {
		out[entry.City] = entry
	}
	return out
}

// Forget discards the snapshot for city and purges its cache entry. Called
// when the favorite is removed.
func (a *Aggregator) Forget(ctx context.Context, city string) {
	loc := weather.ByName(city)
	a.mu.Lock()
	delete(a.snapshots, loc.CacheKey())
	a.mu.Unlock()
	a.layer.Remove(ctx, loc)
}

// Package query wraps the weather client with key-based caching, staleness
// timing, de-duplication of concurrent identical requests, and bounded retry.
package query

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/skydash/skydash/observability"
	"github.com/skydash/skydash/weather"
)

// Defaults for the query layer.
const (
	DefaultTTL             = 10 * time.Minute
	DefaultRetryDelay      = 500 * time.Millisecond
	DefaultMaxRetries      = 1
	DefaultFetchTimeout    = 30 * time.Second
	defaultCoalesceTimeout = 60 * time.Second
)

// Status is the caller-visible state of a cache entry.
type Status int

const (
	StatusPending Status = iota
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Result is what a lookup or fetch yields: a status, the bundle on success,
// the error otherwise, and a staleness flag so consumers can always tell
// stale data from fresh.
type Result struct {
	Status    Status
	Bundle    *weather.Bundle
	Err       error
	FetchedAt time.Time
	Stale     bool
}

// Config holds the query layer's dependencies and tuning.
type Config struct {
	// Fetcher performs the actual provider calls (required).
	Fetcher weather.BundleFetcher

	// Backend stores successful bundles. Default: in-memory.
	Backend Backend

	// TTL is the staleness window. Default: 10 minutes.
	TTL time.Duration

	// RetryDelay is the fixed wait before the single retry. Default: 500ms.
	RetryDelay time.Duration

	// MaxRetries bounds retry attempts per fetch. Zero means the default
	// of 1; set NoRetry to run with no retries at all.
	MaxRetries uint64

	// NoRetry disables retries entirely. MaxRetries is ignored when set.
	NoRetry bool

	// FetchTimeout bounds background revalidation fetches. Default: 30s.
	FetchTimeout time.Duration

	// Logger for layer operations. Optional.
	Logger *zap.Logger
}

// Layer is the request cache between consumers and the weather client.
//
// Freshness rules: a fresh entry is served without any network call. A stale
// entry is served immediately with Stale=true while one background
// revalidation runs; if that revalidation fails the prior bundle is kept and
// the failure is only logged. Only a fetch with no prior cached value
// surfaces its error. For any key there is at most one outstanding fetch;
// concurrent callers attach to it.
type Layer struct {
	fetcher      weather.BundleFetcher
	backend      Backend
	ttl          time.Duration
	retryDelay   time.Duration
	maxRetries   uint64
	fetchTimeout time.Duration
	logger       *zap.Logger
	coalescer    *fetchCoalescer

	mu      sync.Mutex
	lastErr map[string]error // keys whose last fetch failed with nothing cached
}

// NewLayer creates a query layer from cfg.
func NewLayer(cfg Config) (*Layer, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("query: fetcher is required")
	}
	if cfg.Backend == nil {
		cfg.Backend = NewInMemoryBackend(0)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.NoRetry {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Layer{
		fetcher:      cfg.Fetcher,
		backend:      cfg.Backend,
		ttl:          cfg.TTL,
		retryDelay:   cfg.RetryDelay,
		maxRetries:   cfg.MaxRetries,
		fetchTimeout: cfg.FetchTimeout,
		logger:       cfg.Logger,
		coalescer:    newFetchCoalescer(defaultCoalesceTimeout),
		lastErr:      make(map[string]error),
	}, nil
}

// TTL returns the staleness window.
func (l *Layer) TTL() time.Duration {
	return l.ttl
}

// GetOrFetch returns the bundle for loc, serving from cache when possible.
// Fresh hit: returned synchronously with no network call. Stale hit: returned
// immediately with Stale=true, one revalidation kicked off in the background.
// Miss: blocks until the (possibly coalesced) fetch completes.
func (l *Layer) GetOrFetch(ctx context.Context, loc weather.Location) Result {
	key := loc.CacheKey()
	if key == "" {
		return Result{Status: StatusError, Err: fmt.Errorf("query: empty location")}
	}
	observability.BundleLookupsTotal.Inc()

	bundle, fetchedAt, ok, err := l.backend.Get(ctx, key)
	if err != nil {
		l.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		ok = false
	}

	if ok && time.Since(fetchedAt) < l.ttl {
		observability.CacheHitsTotal.WithLabelValues("fresh").Inc()
		l.logger.Debug("cache hit", zap.String("key", key))
		return Result{Status: StatusSuccess, Bundle: bundle, FetchedAt: fetchedAt}
	}

	if ok {
		// Stale but servable: revalidate in the background, serve what we have.
		observability.CacheHitsTotal.WithLabelValues("stale").Inc()
		observability.StaleServesTotal.Inc()
		l.revalidate(key, loc)
		l.logger.Debug("serving stale bundle", zap.String("key", key), zap.Duration("age", time.Since(fetchedAt)))
		return Result{Status: StatusSuccess, Bundle: bundle, FetchedAt: fetchedAt, Stale: true}
	}

	l.logger.Debug("cache miss, fetching upstream", zap.String("key", key))
	fetched, err := l.coalescer.GetOrDo(ctx, key, l.fetchFn(ctx, key, loc))
	if err != nil {
		return Result{Status: StatusError, Err: err}
	}
	return Result{Status: StatusSuccess, Bundle: fetched, FetchedAt: time.Now()}
}

// Lookup reports the current state for loc without triggering any fetch.
// The second return value is false when the key has never been requested.
func (l *Layer) Lookup(ctx context.Context, loc weather.Location) (Result, bool) {
	key := loc.CacheKey()
	if key == "" {
		return Result{}, false
	}

	bundle, fetchedAt, ok, err := l.backend.Get(ctx, key)
	if err == nil && ok {
		return Result{
			Status:    StatusSuccess,
			Bundle:    bundle,
			FetchedAt: fetchedAt,
			Stale:     time.Since(fetchedAt) >= l.ttl,
		}, true
	}
	if l.coalescer.InFlight(key) {
		return Result{Status: StatusPending}, true
	}
	l.mu.Lock()
	lastErr, errOk := l.lastErr[key]
	l.mu.Unlock()
	if errOk {
		return Result{Status: StatusError, Err: lastErr}, true
	}
	return Result{}, false
}

// Invalidate marks the entry for loc stale so the next access refetches.
// The cached bundle stays servable in the meantime (explicit refresh keeps
// showing old data until new data lands).
func (l *Layer) Invalidate(ctx context.Context, loc weather.Location) {
	key := loc.CacheKey()
	if key == "" {
		return
	}
	bundle, _, ok, err := l.backend.Get(ctx, key)
	if err != nil || !ok {
		return
	}
	// Backdate just past the TTL: stale, but inside the retention window.
	if err := l.backend.Set(ctx, key, bundle, time.Now().Add(-l.ttl)); err != nil {
		l.logger.Warn("invalidate failed", zap.String("key", key), zap.Error(err))
	}
}

// Remove discards the entry for loc entirely, including its error state.
// Used when a favorite is removed and its snapshot must go with it.
func (l *Layer) Remove(ctx context.Context, loc weather.Location) {
	key := loc.CacheKey()
	if key == "" {
		return
	}
	if err := l.backend.Delete(ctx, key); err != nil {
		l.logger.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
	}
	l.mu.Lock()
	delete(l.lastErr, key)
	l.mu.Unlock()
}

// Flush discards every cached bundle. Used when a fetch parameter that is not
// part of the cache key changes, such as the unit system.
func (l *Layer) Flush(ctx context.Context) {
	if err := l.backend.Flush(ctx); err != nil {
		l.logger.Warn("cache flush failed", zap.Error(err))
	}
	l.mu.Lock()
	l.lastErr = make(map[string]error)
	l.mu.Unlock()
}

// fetchFn builds the coalesced fetch closure for key: fetch with retry, store
// on success, record the error state only when nothing was cached before.
func (l *Layer) fetchFn(ctx context.Context, key string, loc weather.Location) func() (*weather.Bundle, error) {
	return func() (*weather.Bundle, error) {
		observability.BundleFetchesTotal.Inc()
		bundle, err := l.fetchWithRetry(ctx, loc)
		if err != nil {
			l.mu.Lock()
			l.lastErr[key] = err
			l.mu.Unlock()
			return nil, err
		}
		if setErr := l.backend.Set(ctx, key, bundle, time.Now()); setErr != nil {
			l.logger.Warn("cache set failed", zap.String("key", key), zap.Error(setErr))
		}
		l.mu.Lock()
		delete(l.lastErr, key)
		l.mu.Unlock()
		return bundle, nil
	}
}

// revalidate starts one background refetch for a stale key unless a fetch is
// already in flight. Failures are suppressed: the prior bundle stays.
func (l *Layer) revalidate(key string, loc weather.Location) {
	if l.coalescer.InFlight(key) {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), l.fetchTimeout)
		defer cancel()
		if _, err := l.coalescer.GetOrDo(ctx, key, l.fetchFn(ctx, key, loc)); err != nil {
			observability.RevalidationFailuresTotal.Inc()
			l.logger.Warn("background revalidation failed, keeping stale bundle",
				zap.String("key", key), zap.Error(err))
		}
	}()
}

// fetchWithRetry calls the fetcher with the configured retry budget: a fixed
// delay between attempts, non-retryable errors (not-found, bad key) abort
// immediately.
func (l *Layer) fetchWithRetry(ctx context.Context, loc weather.Location) (*weather.Bundle, error) {
	var bundle *weather.Bundle
	attempts := 0
	op := func() error {
		if attempts > 0 {
			observability.FetchRetriesTotal.Inc()
			l.logger.Debug("retrying fetch", zap.String("location", loc.String()), zap.Int("attempt", attempts))
		}
		attempts++
		b, err := l.fetcher.FetchBundle(ctx, loc)
		if err != nil {
			if !weather.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		bundle = b
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(l.retryDelay), l.maxRetries),
		ctx,
	)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("fetch bundle for %s: %w", loc.String(), err)
	}
	return bundle, nil
}

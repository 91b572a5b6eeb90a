// Package skydash wires the weather dashboard core together: the provider
// client, the request cache, the preference store, the theme resolver and the
// favorite-city aggregator. A UI shell drives it through Dashboard and renders
// the Views it produces; skydash itself opens no listener and draws nothing.
package skydash

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/skydash/skydash/config"
	"github.com/skydash/skydash/favorites"
	"github.com/skydash/skydash/prefs"
	"github.com/skydash/skydash/query"
	"github.com/skydash/skydash/theme"
	"github.com/skydash/skydash/weather"
)

// View is what the UI renders for the active location: the query result and
// the theme derived from it. The theme is recomputed on every bundle change,
// never stored.
type View struct {
	Location   weather.Location
	Result     query.Result
	Theme      theme.ID
	Descriptor theme.Descriptor
	Alerts     []weather.Alert
}

// Dashboard is the controller for the active location. Selecting a location
// updates the preference store, fetches through the cache layer, resolves the
// theme, and publishes a View. When the selection changes while a fetch is in
// flight, the late result still lands in the cache but is discarded for the
// view: latest selection wins, not last response.
type Dashboard struct {
	client *weather.Client
	layer  *query.Layer
	store  *prefs.Store
	favs   *favorites.Aggregator
	logger *zap.Logger

	generation atomic.Uint64

	mu   sync.RWMutex
	view View
}

// New builds a Dashboard from configuration: provider client, cache backend,
// query layer, preference store (SQLite-backed when a path is configured) and
// favorites aggregator.
func New(cfg *config.Config, logger *zap.Logger) (*Dashboard, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := weather.NewClient(weather.ClientConfig{
		APIKey:  cfg.WeatherAPIKey,
		BaseURL: cfg.WeatherAPIURL,
		GeoURL:  cfg.GeoAPIURL,
		Units:   cfg.Units,
		Timeout: cfg.WeatherAPITimeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("weather client: %w", err)
	}

	var backend query.Backend
	switch cfg.CacheBackend {
	case "memcached":
		backend, err = query.NewMemcachedBackend(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.CacheRetention)
		if err != nil {
			return nil, fmt.Errorf("memcached backend: %w", err)
		}
	default:
		backend = query.NewInMemoryBackend(cfg.CacheRetention)
	}

	layer, err := query.NewLayer(query.Config{
		Fetcher:    client,
		Backend:    backend,
		TTL:        cfg.CacheTTL,
		RetryDelay: cfg.RetryDelay,
		MaxRetries: uint64(cfg.MaxRetries),
		NoRetry:    cfg.MaxRetries == 0,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	var persister prefs.Persister = prefs.NopPersister{}
	if cfg.PrefsDBPath != "" {
		p, err := prefs.NewSQLitePersister(cfg.PrefsDBPath)
		if err != nil {
			// Fail open: run without durability rather than refuse to start.
			logger.Warn("preference storage unavailable, running in-memory", zap.Error(err))
		} else {
			persister = p
		}
	}

	store := prefs.NewStore(persister, prefs.State{
		City:  cfg.DefaultCity,
		Units: cfg.Units,
	}, logger)

	// Persisted units win over configured units.
	client.SetUnits(store.Get().Units)

	return &Dashboard{
		client: client,
		layer:  layer,
		store:  store,
		favs:   favorites.NewAggregator(layer, logger),
		logger: logger,
	}, nil
}

// Store exposes the preference store for direct toggles and subscriptions.
func (d *Dashboard) Store() *prefs.Store { return d.store }

// Layer exposes the query layer for non-blocking lookups.
func (d *Dashboard) Layer() *query.Layer { return d.layer }

// View returns the last published view.
func (d *Dashboard) View() View {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.view
}

// SelectCity makes name the active location (recording the search) and loads
// its weather. Returns the resulting view; the error is the fetch or
// validation error, with the view still usable for rendering an error state.
func (d *Dashboard) SelectCity(ctx context.Context, name string) (View, error) {
	if err := d.store.SetCity(name); err != nil {
		return d.View(), err
	}
	return d.load(ctx)
}

// SelectCoordinates makes a coordinate pair the active location (a
// geolocation event, not a search) and loads its weather.
func (d *Dashboard) SelectCoordinates(ctx context.Context, lat, lon float64) (View, error) {
	if err := d.store.SetCoordinates(lat, lon); err != nil {
		return d.View(), err
	}
	return d.load(ctx)
}

// Reload loads weather for the active location, serving cache when fresh.
// Call once at startup to populate the initial view.
func (d *Dashboard) Reload(ctx context.Context) (View, error) {
	return d.load(ctx)
}

// Refresh is the user-triggered refetch: it marks the active location's cache
// entry stale and reloads, so data is revalidated regardless of age.
func (d *Dashboard) Refresh(ctx context.Context) (View, error) {
	d.layer.Invalidate(ctx, d.store.Get().Location())
	return d.load(ctx)
}

// SetUnits switches the measurement system. Every cached bundle carries
// unit-dependent values, so the cache is flushed and the active location
// reloaded.
func (d *Dashboard) SetUnits(ctx context.Context, u weather.Units) (View, error) {
	d.store.SetUnits(u)
	d.client.SetUnits(u)
	d.layer.Flush(ctx)
	return d.load(ctx)
}

// AddFavorite saves a city to the favorites set.
func (d *Dashboard) AddFavorite(name string) error {
	return d.store.AddFavorite(name)
}

// RemoveFavorite drops a city from the favorites set and purges its cached
// snapshot.
func (d *Dashboard) RemoveFavorite(ctx context.Context, name string) {
	if d.store.RemoveFavorite(name) {
		d.favs.Forget(ctx, name)
	}
}

// RefreshFavorites fetches weather for every favorite, each independently.
func (d *Dashboard) RefreshFavorites(ctx context.Context) map[string]favorites.CityResult {
	return d.favs.Refresh(ctx, d.store.Get().Favorites)
}

// FavoriteSnapshots returns the last known per-favorite results without
// fetching.
func (d *Dashboard) FavoriteSnapshots() map[string]favorites.CityResult {
	return d.favs.Snapshots()
}

// SuggestCities proxies the provider's search-ahead endpoint.
func (d *Dashboard) SuggestCities(ctx context.Context, partial string, limit int) ([]weather.Place, error) {
	return d.client.SuggestCities(ctx, partial, limit)
}

// load fetches for the location active at call time and publishes the view
// unless a newer selection superseded it meanwhile.
func (d *Dashboard) load(ctx context.Context) (View, error) {
	gen := d.generation.Add(1)
	loc := d.store.Get().Location()
	if loc.IsZero() {
		return d.View(), fmt.Errorf("no active location")
	}

	res := d.layer.GetOrFetch(ctx, loc)
	view := buildView(loc, res)

	if d.generation.Load() != gen {
		// A newer selection landed while we fetched. The bundle is cached
		// for its own key; just don't show it.
		d.logger.Debug("discarding superseded result", zap.String("location", loc.String()))
		return view, res.Err
	}

	d.mu.Lock()
	d.view = view
	d.mu.Unlock()
	return view, res.Err
}

// buildView derives the theme for a result. Error or pending results render
// on the Default theme.
func buildView(loc weather.Location, res query.Result) View {
	id := theme.Default
	var alerts []weather.Alert
	if res.Status == query.StatusSuccess && res.Bundle != nil {
		cur := res.Bundle.Current
		id = theme.Resolve(cur.ConditionID, cur.IsDaytime())
		alerts = cur.Alerts()
	}
	return View{
		Location:   loc,
		Result:     res,
		Theme:      id,
		Descriptor: theme.Lookup(id),
		Alerts:     alerts,
	}
}

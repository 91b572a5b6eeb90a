package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// Provider API call rate per endpoint. Watch for: error vs success ratio.
	WeatherAPICallsTotal *prometheus.CounterVec

	// Provider API latency per request. Watch for: p95 > 2s (upstream degradation), p99 > 5s (timeout risk).
	WeatherAPIDuration *prometheus.HistogramVec

	// Provider API errors by stable category. Watch for: spikes in one category (key revoked, rate limit).
	WeatherAPIErrorsTotal *prometheus.CounterVec

	// Retry attempts in the query layer. Watch for: high retries = unstable upstream.
	FetchRetriesTotal prometheus.Counter

	// Total bundle lookups through the query layer. rate() gives QPS.
	BundleLookupsTotal prometheus.Counter

	// Cache hits by freshness. Hit rate = hits/(hits + fetches).
	CacheHitsTotal *prometheus.CounterVec

	// Bundle fetches started (cache misses that reached the provider).
	BundleFetchesTotal prometheus.Counter

	// Callers that attached to an already in-flight fetch instead of starting one.
	CoalescedWaitersTotal prometheus.Counter

	// Stale bundles served while a revalidation ran in the background.
	StaleServesTotal prometheus.Counter

	// Background revalidations that failed and were suppressed in favor of the prior bundle.
	RevalidationFailuresTotal prometheus.Counter

	// Preference persistence failures. Persistence is fail-open; this is the only trace.
	PrefsPersistErrorsTotal prometheus.Counter

	// Per-favorite refresh outcomes. Watch for: one city failing persistently.
	FavoriteRefreshTotal *prometheus.CounterVec

	// Auto-refresh scheduler runs.
	AutoRefreshRunsTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of provider API calls",
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "Provider API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	WeatherAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiErrorsTotal",
			Help: "Provider API errors by category",
		},
		[]string{"category"},
	)
	FetchRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fetchRetriesTotal",
			Help: "Total number of retry attempts for bundle fetches",
		},
	)
	BundleLookupsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bundleLookupsTotal",
			Help: "Total number of bundle lookups through the query layer",
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Cache hits by freshness (fresh or stale)",
		},
		[]string{"freshness"},
	)
	BundleFetchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bundleFetchesTotal",
			Help: "Bundle fetches started against the provider (cache misses)",
		},
	)
	CoalescedWaitersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coalescedWaitersTotal",
			Help: "Callers that attached to an in-flight fetch instead of starting a new one",
		},
	)
	StaleServesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "staleServesTotal",
			Help: "Stale bundles served while revalidating in the background",
		},
	)
	RevalidationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "revalidationFailuresTotal",
			Help: "Background revalidations that failed; prior bundle kept",
		},
	)
	PrefsPersistErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "prefsPersistErrorsTotal",
			Help: "Preference persistence failures (fail-open, state still mutated)",
		},
	)
	FavoriteRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "favoriteRefreshTotal",
			Help: "Per-favorite refresh outcomes",
		},
		[]string{"status"},
	)
	AutoRefreshRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "autoRefreshRunsTotal",
			Help: "Auto-refresh scheduler runs",
		},
	)

	registry.MustRegister(
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIErrorsTotal,
		FetchRetriesTotal,
		BundleLookupsTotal, CacheHitsTotal, BundleFetchesTotal,
		CoalescedWaitersTotal, StaleServesTotal, RevalidationFailuresTotal,
		PrefsPersistErrorsTotal, FavoriteRefreshTotal, AutoRefreshRunsTotal,
	)
}

// Registry returns the module's prometheus registry for embedding apps that
// aggregate collectors themselves.
func Registry() *prometheus.Registry {
	return registry
}

// Handler returns an http.Handler serving the registry in exposition format.
// The module opens no listener of its own; the embedding app mounts this.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

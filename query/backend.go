package query

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/skydash/skydash/weather"
)

// DefaultRetention is how long a bundle is kept at all. Staleness (the query
// layer's TTL) only makes an entry eligible for refetch; retention is the
// point past which it stops being servable even as stale data.
const DefaultRetention = time.Hour

// Backend stores fetched bundles keyed by canonical location. It holds only
// successful results and their fetch timestamps; in-flight and error state
// stay in the Layer.
type Backend interface {
	Get(ctx context.Context, key string) (*weather.Bundle, time.Time, bool, error)
	Set(ctx context.Context, key string, bundle *weather.Bundle, fetchedAt time.Time) error
	Delete(ctx context.Context, key string) error
	Flush(ctx context.Context) error
}

type memoryEntry struct {
	bundle    *weather.Bundle
	fetchedAt time.Time
}

// InMemoryBackend implements Backend with a mutex-guarded map. Entries older
// than the retention window are dropped on access.
type InMemoryBackend struct {
	mu        sync.Mutex
	data      map[string]memoryEntry
	retention time.Duration
}

// NewInMemoryBackend creates an in-memory backend. retention <= 0 uses
// DefaultRetention.
func NewInMemoryBackend(retention time.Duration) *InMemoryBackend {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &InMemoryBackend{
		data:      make(map[string]memoryEntry),
		retention: retention,
	}
}

func (b *InMemoryBackend) Get(ctx context.Context, key string) (*weather.Bundle, time.Time, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.data[key]
	if !ok {
		return nil, time.Time{}, false, nil
	}
	if time.Since(entry.fetchedAt) > b.retention {
		delete(b.data, key)
		return nil, time.Time{}, false, nil
	}
	return entry.bundle, entry.fetchedAt, true, nil
}

func (b *InMemoryBackend) Set(ctx context.Context, key string, bundle *weather.Bundle, fetchedAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = memoryEntry{bundle: bundle, fetchedAt: fetchedAt}
	return nil
}

func (b *InMemoryBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	return nil
}

func (b *InMemoryBackend) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = make(map[string]memoryEntry)
	return nil
}

const memcachedKeyPrefix = "bundle:"

// memcachedRecord is the serialized form stored in memcached; the fetch
// timestamp rides along so staleness works across backends.
type memcachedRecord struct {
	Bundle    *weather.Bundle `json:"bundle"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// MemcachedBackend implements Backend on memcached, for deployments that run
// several dashboard instances against one cache.
type MemcachedBackend struct {
	client    *memcache.Client
	retention time.Duration
}

// NewMemcachedBackend creates a MemcachedBackend. addrs is a comma-separated
// list (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and
// maxIdleConns use client defaults if zero; retention <= 0 uses
// DefaultRetention.
func NewMemcachedBackend(addrs string, timeout time.Duration, maxIdleConns int, retention time.Duration) (*MemcachedBackend, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemcachedBackend{client: client, retention: retention}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// key maps a canonical location key to a memcached key. Memcached keys must
// not contain whitespace; city names may.
func (b *MemcachedBackend) key(k string) string {
	return memcachedKeyPrefix + strings.ReplaceAll(k, " ", "_")
}

func (b *MemcachedBackend) Get(ctx context.Context, key string) (*weather.Bundle, time.Time, bool, error) {
	if ctx.Err() != nil {
		return nil, time.Time{}, false, ctx.Err()
	}
	item, err := b.client.Get(b.key(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return nil, time.Time{}, false, nil
		}
		return nil, time.Time{}, false, err
	}
	var rec memcachedRecord
	if err := json.Unmarshal(item.Value, &rec); err != nil {
		return nil, time.Time{}, false, err
	}
	if rec.Bundle == nil || time.Since(rec.FetchedAt) > b.retention {
		return nil, time.Time{}, false, nil
	}
	return rec.Bundle, rec.FetchedAt, true, nil
}

func (b *MemcachedBackend) Set(ctx context.Context, key string, bundle *weather.Bundle, fetchedAt time.Time) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(memcachedRecord{Bundle: bundle, FetchedAt: fetchedAt})
	if err != nil {
		return err
	}
	expSec := int32(b.retention.Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 3600
	}
	return b.client.Set(&memcache.Item{
		Key:        b.key(key),
		Value:      raw,
		Expiration: expSec,
	})
}

func (b *MemcachedBackend) Delete(ctx context.Context, key string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	err := b.client.Delete(b.key(key))
	if err == memcache.ErrCacheMiss {
		return nil
	}
	return err
}

func (b *MemcachedBackend) Flush(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return b.client.FlushAll()
}

// Ping checks if memcached is reachable. Used for health checks.
func (b *MemcachedBackend) Ping() error {
	return b.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (b *MemcachedBackend) Close() error {
	return b.client.Close()
}

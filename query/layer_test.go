package query

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/skydash/skydash/weather"
)

// stubFetcher scripts FetchBundle responses. errs[i] is the outcome of call
// i+1; calls past the script succeed. A non-nil block channel makes every
// call wait until the channel is closed.
type stubFetcher struct {
	mu     sync.Mutex
	calls  int
	errs   []error
	bundle *weather.Bundle
	block  chan struct{}
}

func (s *stubFetcher) FetchBundle(ctx context.Context, loc weather.Location) (*weather.Bundle, error) {
	s.mu.Lock()
	s.calls++
	n := s.calls
	var err error
	if n <= len(s.errs) {
		err = s.errs[n-1]
	}
	bundle := s.bundle
	block := s.block
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if bundle == nil {
		name, _ := loc.Name()
		bundle = testBundle(name, 20)
	}
	return bundle, nil
}

func (s *stubFetcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestLayer(t *testing.T, fetcher *stubFetcher, cfg Config) *Layer {
	t.Helper()
	cfg.Fetcher = fetcher
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	l, err := NewLayer(cfg)
	if err != nil {
		t.Fatalf("NewLayer() error = %v", err)
	}
	return l
}

func TestLayer_GetOrFetch_FreshHitSkipsNetwork(t *testing.T) {
	fetcher := &stubFetcher{}
	l := newTestLayer(t, fetcher, Config{TTL: 10 * time.Minute})
	loc := weather.ByName("Jakarta")

	first := l.GetOrFetch(context.Background(), loc)
	if first.Status != StatusSuccess {
		t.Fatalf("first GetOrFetch = %+v, want success", first)
	}
	if fetcher.callCount() != 1 {
		t.Fatalf("calls after miss = %d, want 1", fetcher.callCount())
	}

	second := l.GetOrFetch(context.Background(), loc)
	if second.Status != StatusSuccess || second.Stale {
		t.Errorf("second GetOrFetch = %+v, want fresh success", second)
	}
	if fetcher.callCount() != 1 {
		t.Errorf("calls after fresh hit = %d, want still 1", fetcher.callCount())
	}
}

func TestLayer_GetOrFetch_EquivalentKeysShareEntry(t *testing.T) {
	fetcher := &stubFetcher{}
	l := newTestLayer(t, fetcher, Config{})

	l.GetOrFetch(context.Background(), weather.ByName("Jakarta"))
	l.GetOrFetch(context.Background(), weather.ByName("  jakarta "))
	if fetcher.callCount() != 1 {
		t.Errorf("calls = %d, want 1 (same canonical key)", fetcher.callCount())
	}
}

func TestLayer_GetOrFetch_ConcurrentCallersSingleFetch(t *testing.T) {
	block := make(chan struct{})
	fetcher := &stubFetcher{block: block}
	l := newTestLayer(t, fetcher, Config{})
	loc := weather.ByName("London")

	const goroutines = 8
	var wg sync.WaitGroup
	results := make([]Result, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = l.GetOrFetch(context.Background(), loc)
		}(i)
	}

	// Let every caller attach before the fetch completes.
	deadline := time.Now().Add(time.Second)
	for fetcher.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("fetch never started")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(block)
	wg.Wait()

	if got := fetcher.callCount(); got != 1 {
		t.Errorf("fetches = %d, want 1 for concurrent callers", got)
	}
	for i, r := range results {
		if r.Status != StatusSuccess || r.Bundle == nil {
			t.Errorf("caller %d result = %+v, want success", i, r)
		}
	}
}

func TestLayer_GetOrFetch_RetriesOnceOnRetryable(t *testing.T) {
	fetcher := &stubFetcher{errs: []error{weather.ErrNetwork}}
	l := newTestLayer(t, fetcher, Config{MaxRetries: 1})

	res := l.GetOrFetch(context.Background(), weather.ByName("Tokyo"))
	if res.Status != StatusSuccess {
		t.Fatalf("GetOrFetch = %+v, want success after retry", res)
	}
	if fetcher.callCount() != 2 {
		t.Errorf("calls = %d, want 2 (initial + one retry)", fetcher.callCount())
	}
}

func TestLayer_GetOrFetch_RetryDefaultApplied(t *testing.T) {
	// A zero-value MaxRetries still gets the one-retry default.
	fetcher := &stubFetcher{errs: []error{weather.ErrNetwork}}
	l := newTestLayer(t, fetcher, Config{})

	res := l.GetOrFetch(context.Background(), weather.ByName("Tokyo"))
	if res.Status != StatusSuccess {
		t.Fatalf("GetOrFetch = %+v, want success after default retry", res)
	}
	if fetcher.callCount() != 2 {
		t.Errorf("calls = %d, want 2 (default retry budget is one)", fetcher.callCount())
	}
}

func TestLayer_GetOrFetch_NoRetry(t *testing.T) {
	fetcher := &stubFetcher{errs: []error{weather.ErrNetwork}}
	l := newTestLayer(t, fetcher, Config{NoRetry: true})

	res := l.GetOrFetch(context.Background(), weather.ByName("Tokyo"))
	if res.Status != StatusError || !errors.Is(res.Err, weather.ErrNetwork) {
		t.Fatalf("GetOrFetch = %+v, want error with retries disabled", res)
	}
	if fetcher.callCount() != 1 {
		t.Errorf("calls = %d, want 1 (NoRetry set)", fetcher.callCount())
	}
}

func TestLayer_GetOrFetch_RetryBudgetExhausted(t *testing.T) {
	fetcher := &stubFetcher{errs: []error{weather.ErrNetwork, weather.ErrNetwork, weather.ErrNetwork}}
	l := newTestLayer(t, fetcher, Config{MaxRetries: 1})

	res := l.GetOrFetch(context.Background(), weather.ByName("Tokyo"))
	if res.Status != StatusError || !errors.Is(res.Err, weather.ErrNetwork) {
		t.Fatalf("GetOrFetch = %+v, want network error", res)
	}
	if fetcher.callCount() != 2 {
		t.Errorf("calls = %d, want 2 (retry budget is one)", fetcher.callCount())
	}
}

func TestLayer_GetOrFetch_NoRetryOnNotFound(t *testing.T) {
	fetcher := &stubFetcher{errs: []error{weather.ErrLocationNotFound}}
	l := newTestLayer(t, fetcher, Config{MaxRetries: 1})

	res := l.GetOrFetch(context.Background(), weather.ByName("Nowhereville"))
	if res.Status != StatusError || !errors.Is(res.Err, weather.ErrLocationNotFound) {
		t.Fatalf("GetOrFetch = %+v, want not-found error", res)
	}
	if fetcher.callCount() != 1 {
		t.Errorf("calls = %d, want 1 (not-found must not retry)", fetcher.callCount())
	}
}

func TestLayer_GetOrFetch_ServesStaleAndRevalidates(t *testing.T) {
	fetcher := &stubFetcher{bundle: testBundle("Paris", 18)}
	backend := NewInMemoryBackend(time.Hour)
	l := newTestLayer(t, fetcher, Config{Backend: backend, TTL: 10 * time.Minute})
	loc := weather.ByName("Paris")

	old := testBundle("Paris", 5)
	staleAt := time.Now().Add(-15 * time.Minute)
	if err := backend.Set(context.Background(), loc.CacheKey(), old, staleAt); err != nil {
		t.Fatal(err)
	}

	res := l.GetOrFetch(context.Background(), loc)
	if res.Status != StatusSuccess || !res.Stale {
		t.Fatalf("GetOrFetch = %+v, want stale success", res)
	}
	if res.Bundle.Current.Temperature != 5 {
		t.Errorf("served temperature = %v, want the prior value 5", res.Bundle.Current.Temperature)
	}

	// Background revalidation replaces the entry.
	deadline := time.Now().Add(2 * time.Second)
	for {
		b, _, ok, _ := backend.Get(context.Background(), loc.CacheKey())
		if ok && b.Current.Temperature == 18 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("revalidation never stored the fresh bundle")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if fetcher.callCount() != 1 {
		t.Errorf("calls = %d, want 1 revalidation fetch", fetcher.callCount())
	}
}

func TestLayer_GetOrFetch_FailedRevalidationKeepsStale(t *testing.T) {
	fetcher := &stubFetcher{errs: []error{weather.ErrUpstream, weather.ErrUpstream}}
	backend := NewInMemoryBackend(time.Hour)
	l := newTestLayer(t, fetcher, Config{Backend: backend, TTL: 10 * time.Minute})
	loc := weather.ByName("Paris")

	old := testBundle("Paris", 5)
	if err := backend.Set(context.Background(), loc.CacheKey(), old, time.Now().Add(-15*time.Minute)); err != nil {
		t.Fatal(err)
	}

	res := l.GetOrFetch(context.Background(), loc)
	if res.Status != StatusSuccess || !res.Stale || res.Err != nil {
		t.Fatalf("GetOrFetch = %+v, want stale success with no surfaced error", res)
	}

	// Wait for the revalidation attempt, then confirm the old bundle survived.
	deadline := time.Now().Add(2 * time.Second)
	for fetcher.callCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("revalidation never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	b, _, ok, _ := backend.Get(context.Background(), loc.CacheKey())
	if !ok || b.Current.Temperature != 5 {
		t.Errorf("cached bundle after failed revalidation = %v, %+v; want the prior value kept", ok, b)
	}
}

func TestLayer_Lookup(t *testing.T) {
	fetcher := &stubFetcher{errs: []error{weather.ErrLocationNotFound}}
	l := newTestLayer(t, fetcher, Config{})
	loc := weather.ByName("Ghost Town")

	if _, ok := l.Lookup(context.Background(), loc); ok {
		t.Error("Lookup before any request reported an entry")
	}

	l.GetOrFetch(context.Background(), loc)
	res, ok := l.Lookup(context.Background(), loc)
	if !ok || res.Status != StatusError || !errors.Is(res.Err, weather.ErrLocationNotFound) {
		t.Errorf("Lookup after failed fetch = %+v, %v; want error state", res, ok)
	}

	// A later success clears the error state.
	l.GetOrFetch(context.Background(), loc)
	res, ok = l.Lookup(context.Background(), loc)
	if !ok || res.Status != StatusSuccess || res.Stale {
		t.Errorf("Lookup after success = %+v, %v; want fresh success", res, ok)
	}
}

func TestLayer_Lookup_PendingWhileInFlight(t *testing.T) {
	block := make(chan struct{})
	fetcher := &stubFetcher{block: block}
	l := newTestLayer(t, fetcher, Config{})
	loc := weather.ByName("Berlin")

	done := make(chan struct{})
	go func() {
		defer close(done)
		l.GetOrFetch(context.Background(), loc)
	}()

	deadline := time.Now().Add(time.Second)
	for fetcher.callCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("fetch never started")
		}
		time.Sleep(time.Millisecond)
	}

	res, ok := l.Lookup(context.Background(), loc)
	if !ok || res.Status != StatusPending {
		t.Errorf("Lookup during fetch = %+v, %v; want pending", res, ok)
	}

	close(block)
	<-done
}

func TestLayer_Invalidate(t *testing.T) {
	fetcher := &stubFetcher{}
	l := newTestLayer(t, fetcher, Config{TTL: 10 * time.Minute})
	loc := weather.ByName("Madrid")

	l.GetOrFetch(context.Background(), loc)
	l.Invalidate(context.Background(), loc)

	res, ok := l.Lookup(context.Background(), loc)
	if !ok || res.Status != StatusSuccess || !res.Stale {
		t.Errorf("Lookup after invalidate = %+v, %v; want stale but servable", res, ok)
	}
}

func TestLayer_Remove(t *testing.T) {
	fetcher := &stubFetcher{}
	l := newTestLayer(t, fetcher, Config{})
	loc := weather.ByName("Rome")

	l.GetOrFetch(context.Background(), loc)
	l.Remove(context.Background(), loc)

	if _, ok := l.Lookup(context.Background(), loc); ok {
		t.Error("Lookup after remove reported an entry")
	}
	l.GetOrFetch(context.Background(), loc)
	if fetcher.callCount() != 2 {
		t.Errorf("calls = %d, want 2 (refetch after removal)", fetcher.callCount())
	}
}

func TestLayer_Flush(t *testing.T) {
	fetcher := &stubFetcher{}
	l := newTestLayer(t, fetcher, Config{})

	cities := []string{"Oslo", "Cairo", "Lima"}
	for _, c := range cities {
		l.GetOrFetch(context.Background(), weather.ByName(c))
	}
	l.Flush(context.Background())

	for _, c := range cities {
		if _, ok := l.Lookup(context.Background(), weather.ByName(c)); ok {
			t.Errorf("Lookup(%q) after flush reported an entry", c)
		}
	}
	for _, c := range cities {
		l.GetOrFetch(context.Background(), weather.ByName(c))
	}
	if fetcher.callCount() != 2*len(cities) {
		t.Errorf("calls = %d, want %d (everything refetched)", fetcher.callCount(), 2*len(cities))
	}
}

func TestNewLayer_RequiresFetcher(t *testing.T) {
	if _, err := NewLayer(Config{}); err == nil {
		t.Error("NewLayer without fetcher succeeded, want error")
	}
}

func TestLayer_GetOrFetch_EmptyLocation(t *testing.T) {
	fetcher := &stubFetcher{}
	l := newTestLayer(t, fetcher, Config{})

	res := l.GetOrFetch(context.Background(), weather.Location{})
	if res.Status != StatusError || res.Err == nil {
		t.Errorf("GetOrFetch(zero location) = %+v, want error", res)
	}
	if fetcher.callCount() != 0 {
		t.Errorf("calls = %d, want 0", fetcher.callCount())
	}
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusPending, "pending"},
		{StatusSuccess, "success"},
		{StatusError, "error"},
		{Status(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

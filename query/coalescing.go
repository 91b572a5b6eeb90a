package query

import (
	"context"
	"sync"
	"time"

	"github.com/skydash/skydash/observability"
	"github.com/skydash/skydash/weather"
)

// inFlightFetch tracks a single upstream fetch that multiple callers may wait for.
type inFlightFetch struct {
	mu      sync.Mutex
	result  *weather.Bundle
	err     error
	done    bool
	waiters []chan struct{} // closed to notify waiters when the result is ready
}

// fetchCoalescer enforces the layer's one-fetch-per-key invariant: a second
// caller for a key with a fetch in flight attaches to it instead of starting
// another.
type fetchCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightFetch
	timeout  time.Duration
}

func newFetchCoalescer(timeout time.Duration) *fetchCoalescer {
	return &fetchCoalescer{
		inFlight: make(map[string]*inFlightFetch),
		timeout:  timeout,
	}
}

// InFlight reports whether a fetch for key is currently outstanding.
func (fc *fetchCoalescer) InFlight(key string) bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	_, ok := fc.inFlight[key]
	return ok
}

// GetOrDo returns the result of the in-flight fetch for key if one exists,
// otherwise registers fn as the fetch and runs it. Respects context
// cancellation and the coalescer timeout so waiters never block indefinitely.
func (fc *fetchCoalescer) GetOrDo(ctx context.Context, key string, fn func() (*weather.Bundle, error)) (*weather.Bundle, error) {
	fc.mu.Lock()
	req, exists := fc.inFlight[key]
	if exists {
		observability.CoalescedWaitersTotal.Inc()
		notify := make(chan struct{})
		req.mu.Lock()
		if req.done {
			result := req.result
			err := req.err
			req.mu.Unlock()
			fc.mu.Unlock()
			return result, err
		}
		req.waiters = append(req.waiters, notify)
		req.mu.Unlock()
		fc.mu.Unlock()

		return fc.wait(ctx, req, notify)
	}

	req = &inFlightFetch{
		waiters: make([]chan struct{}, 0),
	}
	fc.inFlight[key] = req
	fc.mu.Unlock()

	go func() {
		result, err := fn()

		req.mu.Lock()
		req.result = result
		req.err = err
		req.done = true
		waiters := req.waiters
		req.waiters = nil
		req.mu.Unlock()

		for _, notify := range waiters {
			close(notify)
		}

		fc.cleanup(key)
	}()

	notify := make(chan struct{})
	req.mu.Lock()
	if req.done {
		result := req.result
		err := req.err
		req.mu.Unlock()
		return result, err
	}
	req.waiters = append(req.waiters, notify)
	req.mu.Unlock()

	return fc.wait(ctx, req, notify)
}

func (fc *fetchCoalescer) wait(ctx context.Context, req *inFlightFetch, notify chan struct{}) (*weather.Bundle, error) {
	waitCtx, cancel := context.WithTimeout(ctx, fc.timeout)
	defer cancel()
	select {
	case <-notify:
		req.mu.Lock()
		result := req.result
		err := req.err
		req.mu.Unlock()
		return result, err
	case <-waitCtx.Done():
		return nil, waitCtx.Err()
	}
}

// cleanup removes the in-flight fetch for key. Must be called after the fetch completes.
func (fc *fetchCoalescer) cleanup(key string) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	delete(fc.inFlight, key)
}

package client

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/climate-dashboard/internal/observability"
)

// inFlightFetch tracks a single upstream fetch that multiple callers may wait for.
type inFlightFetch[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// group coalesces concurrent fetches for the same key into one upstream call.
// Many page loads at once share a single request per endpoint.
type group[T any] struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightFetch[T]
	timeout  time.Duration
}

func newGroup[T any](timeout time.Duration) *group[T] {
	return &group[T]{
		inFlight: make(map[string]*inFlightFetch[T]),
		timeout:  timeout,
	}
}

// Do returns the result of fn for key, joining an in-flight call if one exists.
// The shared call runs detached from any single caller's cancellation, bounded
// by the group timeout; each caller still stops waiting when its own ctx ends.
func (g *group[T]) Do(ctx context.Context, key string, fn func(context.Context) (T, error)) (T, error) {
	g.mu.Lock()
	call, exists := g.inFlight[key]
	if exists {
		g.mu.Unlock()
		observability.FetchCoalescedTotal.WithLabelValues(key).Inc()
		return g.wait(ctx, call)
	}

	call = &inFlightFetch[T]{done: make(chan struct{})}
	g.inFlight[key] = call
	g.mu.Unlock()

	go func() {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		defer cancel()

		call.result, call.err = fn(fetchCtx)
		g.cleanup(key)
		close(call.done)
	}()

	return g.wait(ctx, call)
}

func (g *group[T]) wait(ctx context.Context, call *inFlightFetch[T]) (T, error) {
	select {
	case <-call.done:
		return call.result, call.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// cleanup removes the in-flight fetch for key so the next caller starts a fresh one.
func (g *group[T]) cleanup(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, key)
}

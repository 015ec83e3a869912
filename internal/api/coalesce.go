package api

import (
	"context"
	"sync"

	"github.com/weatherdeck/weatherdeck/internal/observability"
)

// inflightCall is a single backend GET that multiple callers may wait on.
type inflightCall struct {
	done    chan struct{}
	payload []byte
	err     error
}

// getCoalescer de-duplicates concurrent GETs for the same request key: the
// aggregation fan-out and a saved-list refresh can race to identical URLs,
// and only one backend call should go out.
type getCoalescer struct {
	mu    sync.Mutex
	calls map[string]*inflightCall
}

func newGetCoalescer() *getCoalescer {
	return &getCoalescer{calls: make(map[string]*inflightCall)}
}

// Do executes fn for key, or waits for an identical in-flight call and shares
// its result. Waiting respects ctx cancellation; the leader's call is not
// cancelled by a waiter giving up.
func (g *getCoalescer) Do(ctx context.Context, key string, fn func() ([]byte, error)) ([]byte, error) {
	g.mu.Lock()
	if call, ok := g.calls[key]; ok {
		g.mu.Unlock()
		observability.CoalescedRequestsTotal.Inc()
		select {
		case <-call.done:
			return call.payload, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	call := &inflightCall{done: make(chan struct{})}
	g.calls[key] = call
	g.mu.Unlock()

	call.payload, call.err = fn()

	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
	close(call.done)

	return call.payload, call.err
}

package api

import "sync"

// authErrorNotifier fans an auth-error signal out to subscribed handlers.
// A subscription list rather than a single overwritable callback slot, so
// re-registration does not silently drop or stack handlers.
type authErrorNotifier struct {
	mu       sync.Mutex
	nextID   int
	handlers map[int]func()
}

func newAuthErrorNotifier() *authErrorNotifier {
	return &authErrorNotifier{handlers: make(map[int]func())}
}

// subscribe registers fn and returns its unsubscribe func. Unsubscribe is
// idempotent.
func (n *authErrorNotifier) subscribe(fn func()) func() {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.handlers[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.handlers, id)
		n.mu.Unlock()
	}
}

// notify invokes every subscribed handler once. Handlers run outside the lock
// so they may unsubscribe or issue requests.
func (n *authErrorNotifier) notify() {
	n.mu.Lock()
	fns := make([]func(), 0, len(n.handlers))
	for _, fn := range n.handlers {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

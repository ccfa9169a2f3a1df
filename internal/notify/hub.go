package notify

import "sync"

// Hub fans out empty "something changed" signals to subscribers. Observers
// re-read state after a signal instead of receiving payloads, so a slow
// subscriber can never see a stale payload, only a redundant wakeup.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan struct{}]struct{}
	closed bool
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[chan struct{}]struct{})}
}

// Subscribe registers a new observer. The returned channel receives one
// buffered signal per change burst; unsubscribe releases it.
func (h *Hub) Subscribe() (ch <-chan struct{}, unsubscribe func()) {
	c := make(chan struct{}, 1)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(c)
		return c, func() {}
	}
	h.subs[c] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return c, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, c)
			h.mu.Unlock()
		})
	}
}

// Changed wakes every subscriber. Signals coalesce: a subscriber that has
// not drained its pending signal gets no second one.
func (h *Hub) Changed() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.subs {
		select {
		case c <- struct{}{}:
		default:
		}
	}
}

// Close wakes and detaches all subscribers
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.subs {
		close(c)
		delete(h.subs, c)
	}
}

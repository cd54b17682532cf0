// Package broadcast fans authentication-state transitions out to
// independently mounted UI regions. Delivery is synchronous and in
// insertion order; there is no replay, late subscribers read Last on
// mount instead.
package broadcast

import (
	"sync"

	"github.com/resumade/resumade/pkg/authapi"
	"github.com/resumade/resumade/pkg/idx"
)

// AuthEvent is the immutable record published on every state transition.
type AuthEvent struct {
	ID              idx.ID               `json:"id"`
	IsAuthenticated bool                 `json:"is_authenticated"`
	User            *authapi.SessionUser `json:"user"`
}

// Subscriber receives each broadcast event. Callbacks run synchronously
// on the broadcasting goroutine and must not block.
type Subscriber func(AuthEvent)

// Hub is the process-wide auth-event broadcaster with a last-event cache.
type Hub struct {
	mu   sync.Mutex
	next int
	subs []subscription

	last    AuthEvent
	hasLast bool
}

type subscription struct {
	id int
	fn Subscriber
}

func NewHub() *Hub {
	return &Hub{}
}

// Subscribe registers fn and returns its unsubscribe function. The
// unsubscribe function is idempotent. A subscriber registered after a
// broadcast does not see that broadcast; it only sees the next one.
func (h *Hub) Subscribe(fn Subscriber) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	h.subs = append(h.subs, subscription{id: id, fn: fn})

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, sub := range h.subs {
			if sub.id == id {
				h.subs = append(h.subs[:i], h.subs[i+1:]...)
				return
			}
		}
	}
}

// Broadcast delivers event to every subscriber in insertion order and
// caches it as the last known event. Fire and forget: there is no error
// path and no queue.
func (h *Hub) Broadcast(event AuthEvent) {
	h.mu.Lock()
	h.last = event
	h.hasLast = true
	subs := make([]subscription, len(h.subs))
	copy(subs, h.subs)
	h.mu.Unlock()

	// Deliver outside the lock so a callback may subscribe or unsubscribe
	for _, sub := range subs {
		sub.fn(event)
	}
}

// Last returns the most recently broadcast event, if any.
func (h *Hub) Last() (AuthEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last, h.hasLast
}

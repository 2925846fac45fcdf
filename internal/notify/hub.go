// Package notify fans prediction notifications out to live subscribers.
//
// Every notification is broadcast to every subscriber. Each subscriber has a
// bounded buffer; when it is full the notification is dropped for that
// subscriber only, so a slow client never stalls the pipeline.
package notify

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ChuLiYu/artg-queue/pkg/types"
)

// DefaultBufferSize is the per-subscriber buffer used when Subscribe is
// given a non-positive size.
const DefaultBufferSize = 256

// Subscription is one live receiver of notifications.
type Subscription struct {
	ID string
	C  <-chan types.Notification

	ch     chan types.Notification
	mu     sync.Mutex
	closed bool
}

func (s *Subscription) send(n types.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- n:
		return true
	default:
		return false
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Hub is a broadcast point for notifications.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
	log    *slog.Logger

	onDrop func(event string)
}

// NewHub creates an empty hub. A nil logger uses slog.Default().
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs: make(map[string]*Subscription),
		log:  logger,
	}
}

// OnDrop registers a callback invoked for every dropped delivery. Set it
// before publishing.
func (h *Hub) OnDrop(fn func(event string)) {
	h.onDrop = fn
}

// Subscribe registers a new subscriber. The returned channel is closed by
// Unsubscribe or Close.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	ch := make(chan types.Notification, buffer)
	sub := &Subscription{ID: uuid.New().String(), C: ch, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.close()
		return sub
	}
	h.subs[sub.ID] = sub
	h.log.Info("Notification subscriber added", "subscriber_id", sub.ID, "subscribers", len(h.subs))
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Unknown ids are
// ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	delete(h.subs, id)
	remaining := len(h.subs)
	h.mu.Unlock()

	if ok {
		sub.close()
		h.log.Info("Notification subscriber removed", "subscriber_id", id, "subscribers", remaining)
	}
}

// Publish broadcasts n and returns how many subscribers received it.
func (h *Hub) Publish(n types.Notification) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for id, sub := range h.subs {
		if sub.send(n) {
			delivered++
			continue
		}
		h.log.Warn("Subscriber buffer full, dropping notification",
			"subscriber_id", id,
			"event", n.Event,
			"truck_id", n.TruckID)
		if h.onDrop != nil {
			h.onDrop(n.Event)
		}
	}
	return delivered
}

// Count returns the number of active subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscription. Later subscriptions are closed
// immediately and later publishes reach no one.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		sub.close()
		delete(h.subs, id)
	}
}

// Package broadcast fans out derived events to connected live-feed
// subscribers (the /events/ws/live WebSocket clients).
package broadcast

import (
	"sync"

	"github.com/whalewatch/engine/internal/models"
)

const subscriberBacklog = 64

// Broadcaster maintains a set of subscriber sinks and delivers events to
// each without ever blocking the producer. A subscriber whose backlog is
// full has the event dropped rather than stalling the whole system.
//
// Delivery order is preserved per-subscriber; no ordering is promised
// across subscribers.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[int64]chan *models.Event
	nextID      int64
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[int64]chan *models.Event)}
}

// Subscribe registers a new subscriber and returns its channel and an
// unsubscribe function. The subscriber only receives events published
// after this call; there is no replay of history.
func (b *Broadcaster) Subscribe() (<-chan *models.Event, func()) {
	ch := make(chan *models.Event, subscriberBacklog)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(existing)
		}
	}

	return ch, unsubscribe
}

// Publish delivers an event to every current subscriber. Sends are
// non-blocking: a subscriber whose channel is full misses the event.
func (b *Broadcaster) Publish(event *models.Event) {
	b.mu.RLock()
	sinks := make([]chan *models.Event, 0, len(b.subscribers))
	for _, ch := range b.subscribers {
		sinks = append(sinks, ch)
	}
	b.mu.RUnlock()

	for _, ch := range sinks {
		select {
		case ch <- event:
		default:
		}
	}
}

// SubscriberCount reports the number of currently connected subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

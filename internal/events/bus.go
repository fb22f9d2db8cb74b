package events

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Bus fans lifecycle events out to subscribers. Publish never blocks:
// subscribers with a full channel miss the event rather than stalling the
// dispatcher or execution engine.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[chan *Event]string
	closed      atomic.Bool
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[chan *Event]string),
	}
}

// Subscribe creates a buffered subscription channel for events
func (b *Bus) Subscribe(name string) chan *Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *Event, 100)
	b.subscribers[ch] = name
	return ch
}

// Unsubscribe removes a subscription channel
func (b *Bus) Unsubscribe(ch chan *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, ch)
}

// Publish emits an event to all subscribers. Publishing on a closed bus or
// to a slow subscriber is silently dropped; event delivery is best-effort
// and never affects control flow.
func (b *Bus) Publish(event *Event) {
	if b.closed.Load() {
		return
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is backed up; drop rather than block
		}
	}
}

// Close shuts down the bus and closes all subscriber channels
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, ch)
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

package relay

import (
	"sync"
	"sync/atomic"
)

const subscriberBufSize = 64

// Event is a single server-sent event.
type Event struct {
	Feed    string
	Payload string
}

// Broker fans out events to SSE clients and remembers the latest event per
// feed so late subscribers start from the current state.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	latest      map[string]Event
	nextID      atomic.Int64
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]chan Event),
		latest:      make(map[string]Event),
	}
}

// Subscribe registers a client and returns its id, a snapshot of the latest
// event of every feed, and a buffered channel for later events. Slow
// consumers have events dropped.
func (b *Broker) Subscribe() (int64, []Event, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	snapshot := make([]Event, 0, len(b.latest))
	for _, evt := range b.latest {
		snapshot = append(snapshot, evt)
	}
	b.mu.Unlock()
	return id, snapshot, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish records evt as the latest of its feed and sends it to all
// subscribers without blocking.
func (b *Broker) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest[evt.Feed] = evt
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Latest returns the most recent event published on feed.
func (b *Broker) Latest(feed string) (Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	evt, ok := b.latest[feed]
	return evt, ok
}

func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Package eventbus fans charging events out to the metrics, journal and
// MQTT consumers.
package eventbus

import (
	"sync"
	"sync/atomic"
)

// Event is any value published on the bus, normally one of core/events.
type Event = any

// DefaultBuffer is the channel capacity handed out by Subscribe.
const DefaultBuffer = 8

// EventBus implements a simple publish/subscribe event bus. Slow subscribers
// miss events instead of blocking the publisher.
type EventBus interface {
	Publish(Event)
	Subscribe() <-chan Event
	SubscribeSize(n int) <-chan Event
	Unsubscribe(<-chan Event)
	Close()
	// Dropped counts deliveries skipped because a subscriber was full.
	Dropped() uint64
}

// Bus is the default EventBus implementation using fan-out channels.
type Bus struct {
	mu      sync.RWMutex
	subs    []chan Event
	closed  bool
	dropped atomic.Uint64
}

// New creates a new Bus.
func New() *Bus { return &Bus{} }

// Publish sends the event to all subscribers. Delivery is non-blocking.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers a new subscriber and returns its channel.
func (b *Bus) Subscribe() <-chan Event { return b.SubscribeSize(DefaultBuffer) }

// SubscribeSize registers a subscriber whose channel holds n pending events.
// Journals use a larger buffer so bursts of status events are not dropped.
func (b *Bus) SubscribeSize(n int) <-chan Event {
	if n < 0 {
		n = 0
	}
	ch := make(chan Event, n)
	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subs = append(b.subs, ch)
	}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(ch)
			}
			return
		}
	}
}

// Close closes all subscriber channels and clears the list.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	b.mu.Unlock()
}

// Dropped returns the number of skipped deliveries since New.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

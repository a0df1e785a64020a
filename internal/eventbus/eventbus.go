// Package eventbus fans market events out to observers such as the metrics
// collector. Publishing never blocks the publishing phase: an event is
// dropped for a subscriber whose buffer is full.
package eventbus

import (
	"sync"
	"sync/atomic"
)

// Event is any market event. Observers switch on the concrete type.
type Event = any

// EventBus is the publish/subscribe surface used by the market subsystems.
type EventBus interface {
	Publish(Event)
	Subscribe() <-chan Event
	Unsubscribe(<-chan Event)
	Close()
}

const defaultBuffer = 64

// Bus is the default EventBus.
type Bus struct {
	buffer  int
	dropped atomic.Uint64

	mu     sync.RWMutex
	subs   []chan Event
	closed bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

func New(opts ...Option) *Bus {
	b := &Bus{buffer: defaultBuffer}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish hands e to every subscriber with room for it.
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

// Dropped returns the number of deliveries skipped because a subscriber was
// full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Subscribe returns a new subscription. After Close it returns a closed
// channel.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Unsubscribe removes sub and closes it. Unknown channels are ignored.
func (b *Bus) Unsubscribe(sub <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, ch := range b.subs {
		if ch != sub {
			continue
		}
		b.subs = append(b.subs[:i], b.subs[i+1:]...)
		close(ch)
		return
	}
}

// Close closes every subscription. Later publications are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}

// Package eventbus fans events out to in-process subscribers.
package eventbus

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the channel capacity of a subscriber.
const DefaultBuffer = 64

// TypedBus is a type-safe publish/subscribe bus for events of type T.
type TypedBus[T any] struct {
	mu      sync.RWMutex
	subs    []chan T
	closed  bool
	buffer  int
	dropped atomic.Int64
}

// NewTyped creates a new TypedBus whose subscribers buffer up to buffer
// events. A non-positive buffer selects DefaultBuffer.
func NewTyped[T any](buffer int) *TypedBus[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &TypedBus[T]{buffer: buffer}
}

// Publish sends the event to all subscribers. Delivery is non-blocking: an
// event is dropped for a subscriber whose buffer is full.
func (b *TypedBus[T]) Publish(e T) {
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

// Dropped returns the number of deliveries skipped on full buffers.
func (b *TypedBus[T]) Dropped() int64 { return b.dropped.Load() }

// Subscribe registers a subscriber and returns its channel.
func (b *TypedBus[T]) Subscribe() <-chan T {
	ch := make(chan T, b.buffer)
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
func (b *TypedBus[T]) Unsubscribe(sub <-chan T) {
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

// Close closes the bus and all subscriber channels.
func (b *TypedBus[T]) Close() {
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

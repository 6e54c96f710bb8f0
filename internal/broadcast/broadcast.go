// Package broadcast contains a fan-out primitive to notify
// multiple in-process listeners of the same values.
package broadcast

import "sync"

// Broadcaster publishes values to every subscribed listener.
//
// Publishing never blocks: listeners that are not keeping up
// miss the values published while their buffer is full.
type Broadcaster[T any] struct {
	mx        sync.RWMutex
	closed    bool
	nextID    int
	listeners map[int]chan T
}

// New creates a new, open Broadcaster.
func New[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{listeners: make(map[int]chan T)}
}

// Subscribe registers a new listener with the specified buffer size.
//
// The returned function detaches the listener and closes its channel.
// If the Broadcaster is closed already, the returned channel is closed too.
func (b *Broadcaster[T]) Subscribe(buffer int) (<-chan T, func()) {
	ch := make(chan T, max(buffer, 0))

	b.mx.Lock()
	defer b.mx.Unlock()

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.listeners[id] = ch

	var once sync.Once

	return ch, func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *Broadcaster[T]) unsubscribe(id int) {
	b.mx.Lock()
	defer b.mx.Unlock()

	if ch, ok := b.listeners[id]; ok {
		delete(b.listeners, id)
		close(ch)
	}
}

// Publish sends the value to all the listeners with room in their buffer,
// and returns the number of listeners that received it.
func (b *Broadcaster[T]) Publish(value T) int {
	b.mx.RLock()
	defer b.mx.RUnlock()

	delivered := 0

	for _, ch := range b.listeners {
		select {
		case ch <- value:
			delivered++
		default:
		}
	}

	return delivered
}

// Len returns the number of listeners currently subscribed.
func (b *Broadcaster[T]) Len() int {
	b.mx.RLock()
	defer b.mx.RUnlock()

	return len(b.listeners)
}

// Close detaches and closes all the listeners. Publishing on a closed
// Broadcaster is a no-op.
func (b *Broadcaster[T]) Close() {
	b.mx.Lock()
	defer b.mx.Unlock()

	if b.closed {
		return
	}

	b.closed = true

	for id, ch := range b.listeners {
		delete(b.listeners, id)
		close(ch)
	}
}

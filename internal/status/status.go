// Package status provides a single-writer observable value holder used to
// publish component lifecycle state to concurrent readers.
package status

import (
	"sync"

	"github.com/sagernet/sing/common/observable"
)

// Holder keeps an always-current snapshot of T and fans every update out to
// subscribers. Exactly one goroutine (the owning component) calls Set.
type Holder[T any] struct {
	access     sync.RWMutex
	current    T
	subscriber *observable.Subscriber[T]
	observer   *observable.Observer[T]
}

func NewHolder[T any](initial T) *Holder[T] {
	h := &Holder[T]{
		current:    initial,
		subscriber: observable.NewSubscriber[T](16),
	}
	h.observer = observable.NewObserver(h.subscriber, 8)
	return h
}

// Set publishes value as the current snapshot and emits it to subscribers.
// Holding the lock across the emit keeps the stream in snapshot order.
func (h *Holder[T]) Set(value T) {
	h.access.Lock()
	defer h.access.Unlock()
	h.current = value
	h.subscriber.Emit(value)
}

// Get returns the current snapshot.
func (h *Holder[T]) Get() T {
	h.access.RLock()
	defer h.access.RUnlock()
	return h.current
}

// Subscribe registers for updates emitted after the call. Callers that need
// the current value should Get it first.
func (h *Holder[T]) Subscribe() (observable.Subscription[T], <-chan struct{}, error) {
	return h.observer.Subscribe()
}

func (h *Holder[T]) UnSubscribe(sub observable.Subscription[T]) {
	h.observer.UnSubscribe(sub)
}

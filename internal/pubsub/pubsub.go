// Package pubsub provides the notify-on-mutation primitive both state
// machines are built on: subscribers receive a full state snapshot, in
// subscription order, every time the owning machine publishes.
package pubsub

import "sync"

// Broker delivers snapshots of type T to subscribers. Removal is by handle
// rather than callback identity, so two subscriptions of the same function
// are independent.
type Broker[T any] struct {
	mu   sync.Mutex
	next uint64
	subs []subscription[T]
}

type subscription[T any] struct {
	id uint64
	fn func(T)
}

// NewBroker creates an empty broker.
func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{}
}

// Subscribe registers fn and returns a cancel func that removes it.
// Cancelling during a Publish pass does not affect the pass already running;
// the remaining callbacks of that pass still fire.
func (b *Broker[T]) Subscribe(fn func(T)) func() {
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs = append(b.subs, subscription[T]{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		// Copy-on-remove keeps any in-flight Publish iterating over the
		// list it snapshotted at pass start.
		kept := make([]subscription[T], 0, len(b.subs))
		for _, s := range b.subs {
			if s.id != id {
				kept = append(kept, s)
			}
		}
		b.subs = kept
	}
}

// Publish invokes every callback subscribed at the time of the call, in
// subscription order, passing snapshot. Callbacks added during the pass
// take effect from the next Publish.
func (b *Broker[T]) Publish(snapshot T) {
	b.mu.Lock()
	pass := b.subs
	b.mu.Unlock()

	for _, s := range pass {
		s.fn(snapshot)
	}
}

// Len returns the current number of subscriptions.
func (b *Broker[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

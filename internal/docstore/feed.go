package docstore

import "sync"

// Feed fans snapshots out to subscribers. Each subscriber holds at most one
// pending snapshot; a newer one replaces it, so a slow reader only ever misses
// intermediate states and never blocks the publisher.
type Feed[T any] struct {
	mu   sync.Mutex
	subs map[chan T]struct{}
}

// NewFeed creates an empty feed.
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[chan T]struct{})}
}

// Subscribe registers a subscriber primed with initial. The caller must
// invoke cancel to release it.
func (f *Feed[T]) Subscribe(initial T) (<-chan T, func()) {
	ch := make(chan T, 1)

	f.mu.Lock()
	f.subs[ch] = struct{}{}
	ch <- initial
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subs[ch]; ok {
			delete(f.subs, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers v to every subscriber.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		Offer(ch, v)
	}
}

// Len reports the number of live subscribers.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Offer puts v on ch, replacing a pending value. Only safe when the caller is
// the channel's sole sender.
func Offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

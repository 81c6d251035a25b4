// Package buffer provides an unbounded FIFO whose producers never block.
package buffer

import "sync"

// Growable is a mutex-guarded ring buffer that doubles when full.
// Push never blocks; consumers block in PopBatch until items arrive or the
// buffer is closed.
type Growable[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   []T
	head   int
	count  int
	closed bool

	pushed int64
	popped int64
	grows  int
}

// NewGrowable creates a buffer with the given initial capacity.
func NewGrowable[T any](initialCapacity int) *Growable[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	b := &Growable[T]{ring: make([]T, initialCapacity)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Push appends item. Returns false if the buffer is closed.
func (b *Growable[T]) Push(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	if b.count == len(b.ring) {
		b.grow()
	}

	b.ring[(b.head+b.count)%len(b.ring)] = item
	b.count++
	b.pushed++
	b.cond.Signal()
	return true
}

// PopBatch blocks until at least one item is available, then removes up to
// max items (all of them if max <= 0). Returns ok=false once the buffer is
// closed and empty.
func (b *Growable[T]) PopBatch(max int) (items []T, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}
	if b.count == 0 {
		return nil, false
	}
	return b.take(max), true
}

// TryPopBatch removes up to max items without blocking.
func (b *Growable[T]) TryPopBatch(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	return b.take(max)
}

// take must be called with mu held and count > 0.
func (b *Growable[T]) take(max int) []T {
	n := b.count
	if max > 0 && max < n {
		n = max
	}

	var zero T
	out := make([]T, n)
	for i := range out {
		out[i] = b.ring[b.head]
		b.ring[b.head] = zero
		b.head = (b.head + 1) % len(b.ring)
	}
	b.count -= n
	b.popped += int64(n)
	return out
}

// Close stops accepting items and wakes blocked consumers. Items already
// buffered remain poppable.
func (b *Growable[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

// Len returns the number of buffered items.
func (b *Growable[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Stats describes buffer usage.
type Stats struct {
	Len    int
	Cap    int
	Pushed int64
	Popped int64
	Grows  int
}

// Stats returns a snapshot of buffer usage.
func (b *Growable[T]) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Len: b.count, Cap: len(b.ring), Pushed: b.pushed, Popped: b.popped, Grows: b.grows}
}

// grow doubles capacity and unwraps the ring. Must be called with mu held.
func (b *Growable[T]) grow() {
	next := make([]T, len(b.ring)*2)
	n := copy(next, b.ring[b.head:])
	copy(next[n:], b.ring[:b.head])
	b.ring = next
	b.head = 0
	b.grows++
}

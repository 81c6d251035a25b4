package metrics

import (
	"context"
	"sync"
	"sync/atomic"
)

// Latch counts down outstanding responses and releases waiters at zero.
// Counting down past zero is a no-op.
type Latch struct {
	remaining atomic.Int64
	done      chan struct{}
	once      sync.Once
}

// NewLatch creates a latch expecting n count downs.
func NewLatch(n int64) *Latch {
	l := &Latch{done: make(chan struct{})}
	l.remaining.Store(n)
	if n <= 0 {
		l.remaining.Store(0)
		close(l.done)
	}
	return l
}

// CountDown records one completion.
func (l *Latch) CountDown() {
	for {
		cur := l.remaining.Load()
		if cur <= 0 {
			return
		}
		if l.remaining.CompareAndSwap(cur, cur-1) {
			if cur == 1 {
				l.once.Do(func() { close(l.done) })
			}
			return
		}
	}
}

// Count returns the number of outstanding completions.
func (l *Latch) Count() int64 {
	return l.remaining.Load()
}

// Done is closed when the count reaches zero.
func (l *Latch) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until the count reaches zero or ctx is done.
func (l *Latch) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

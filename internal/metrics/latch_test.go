package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLatch_CountDown(t *testing.T) {
	l := NewLatch(3)

	l.CountDown()
	l.CountDown()
	if got := l.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
	select {
	case <-l.Done():
		t.Fatal("latch released early")
	default:
	}

	l.CountDown()
	l.CountDown() // past zero
	if got := l.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
	if err := l.Wait(context.Background()); err != nil {
		t.Errorf("Wait() = %v, want nil", err)
	}
}

func TestLatch_Zero(t *testing.T) {
	l := NewLatch(0)
	if err := l.Wait(context.Background()); err != nil {
		t.Errorf("Wait() = %v, want nil", err)
	}
}

func TestLatch_WaitTimeout(t *testing.T) {
	l := NewLatch(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() = %v, want DeadlineExceeded", err)
	}
}

func TestLatch_Concurrent(t *testing.T) {
	const n = 1000
	l := NewLatch(n)

	var wg sync.WaitGroup
	for i := 0; i < n+50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.CountDown()
		}()
	}
	wg.Wait()

	if got := l.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
	select {
	case <-l.Done():
	default:
		t.Error("Done() not closed")
	}
}

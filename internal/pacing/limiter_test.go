package pacing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNewLimiter_Disabled(t *testing.T) {
	for _, qps := range []float64{0, -5} {
		l := NewLimiter(qps)
		if l != nil {
			t.Errorf("NewLimiter(%v) = %v, want nil", qps, l)
		}
		if err := l.Acquire(context.Background()); err != nil {
			t.Errorf("nil limiter Acquire() = %v, want nil", err)
		}
	}
}

func TestNewLimiter_Interval(t *testing.T) {
	tests := []struct {
		qps  float64
		want time.Duration
	}{
		{qps: 1, want: time.Second},
		{qps: 1000, want: time.Millisecond},
		{qps: 4, want: 250 * time.Millisecond},
		{qps: 1e12, want: 1},
	}

	for _, tt := range tests {
		if got := NewLimiter(tt.qps).Interval(); got != tt.want {
			t.Errorf("Interval() for %v qps = %v, want %v", tt.qps, got, tt.want)
		}
	}
}

func TestLimiter_ReserveIsPeriodic(t *testing.T) {
	fixed := time.Unix(1000, 0)
	l := NewLimiter(10)
	l.now = func() time.Time { return fixed }

	for i := 0; i < 5; i++ {
		want := time.Duration(i) * 100 * time.Millisecond
		if got := l.Reserve(); got != want {
			t.Errorf("Reserve() #%d = %v, want %v", i, got, want)
		}
	}
}

func TestLimiter_NoBurstAfterIdle(t *testing.T) {
	now := time.Unix(1000, 0)
	l := NewLimiter(10)
	l.now = func() time.Time { return now }

	l.Reserve()
	now = now.Add(10 * time.Second)

	// Idle time is not banked: the first call is immediate, the second waits a full interval.
	if got := l.Reserve(); got != 0 {
		t.Errorf("Reserve() after idle = %v, want 0", got)
	}
	if got := l.Reserve(); got != 100*time.Millisecond {
		t.Errorf("second Reserve() after idle = %v, want 100ms", got)
	}
}

func TestLimiter_ConcurrentReservationsAreDistinct(t *testing.T) {
	fixed := time.Unix(1000, 0)
	l := NewLimiter(1000)
	l.now = func() time.Time { return fixed }

	const n = 200
	var mu sync.Mutex
	seen := make(map[time.Duration]bool)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := l.Reserve()
			mu.Lock()
			seen[d] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("distinct reservations = %d, want %d", len(seen), n)
	}
	if !seen[(n-1)*time.Millisecond] {
		t.Errorf("expected last slot at %v", (n-1)*time.Millisecond)
	}
}

func TestLimiter_AcquireCancelled(t *testing.T) {
	l := NewLimiter(0.1) // one permit per 10s
	l.Reserve()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := l.Acquire(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Acquire() took %v after cancellation", elapsed)
	}
}

func TestLimiter_AcquireRate(t *testing.T) {
	l := NewLimiter(200) // 5ms spacing
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 11; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("Acquire() = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 45*time.Millisecond {
		t.Errorf("11 permits at 200/s took %v, want >= 50ms", elapsed)
	}
}

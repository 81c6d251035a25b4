package buffer

import (
	"sync"
	"testing"
	"time"
)

func TestGrowable_FIFO(t *testing.T) {
	b := NewGrowable[int](4)

	for i := 0; i < 3; i++ {
		b.Push(i)
	}
	got := b.TryPopBatch(2)
	if len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("TryPopBatch(2) = %v, want [0 1]", got)
	}

	// Wrap around the ring before growing.
	for i := 3; i < 8; i++ {
		b.Push(i)
	}
	got = b.TryPopBatch(0)
	if len(got) != 6 {
		t.Fatalf("len(TryPopBatch(0)) = %d, want 6", len(got))
	}
	for i, v := range got {
		if v != i+2 {
			t.Errorf("item[%d] = %d, want %d", i, v, i+2)
		}
	}
}

func TestGrowable_GrowsWhenFull(t *testing.T) {
	b := NewGrowable[int](2)
	for i := 0; i < 100; i++ {
		if !b.Push(i) {
			t.Fatalf("Push(%d) returned false", i)
		}
	}

	stats := b.Stats()
	if stats.Len != 100 {
		t.Errorf("Len = %d, want 100", stats.Len)
	}
	if stats.Cap != 128 {
		t.Errorf("Cap = %d, want 128", stats.Cap)
	}
	if stats.Grows != 6 {
		t.Errorf("Grows = %d, want 6", stats.Grows)
	}
}

func TestGrowable_PopBatchBlocksUntilPush(t *testing.T) {
	b := NewGrowable[string](1)

	done := make(chan []string)
	go func() {
		items, _ := b.PopBatch(10)
		done <- items
	}()

	select {
	case <-done:
		t.Fatal("PopBatch returned before any Push")
	case <-time.After(20 * time.Millisecond):
	}

	b.Push("a")
	select {
	case items := <-done:
		if len(items) != 1 || items[0] != "a" {
			t.Errorf("PopBatch() = %v, want [a]", items)
		}
	case <-time.After(time.Second):
		t.Fatal("PopBatch did not wake up")
	}
}

func TestGrowable_CloseDrainsThenStops(t *testing.T) {
	b := NewGrowable[int](4)
	b.Push(1)
	b.Push(2)
	b.Close()

	if b.Push(3) {
		t.Error("Push after Close returned true")
	}

	items, ok := b.PopBatch(0)
	if !ok || len(items) != 2 {
		t.Errorf("PopBatch() = %v, %v, want 2 items", items, ok)
	}
	if _, ok := b.PopBatch(0); ok {
		t.Error("PopBatch on closed empty buffer returned ok")
	}
}

func TestGrowable_ConcurrentProducers(t *testing.T) {
	b := NewGrowable[int](8)
	const producers, perProducer = 8, 1000

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				b.Push(i)
			}
		}()
	}

	received := 0
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		for {
			items, ok := b.PopBatch(64)
			if !ok {
				return
			}
			received += len(items)
		}
	}()

	wg.Wait()
	b.Close()
	<-consumed

	if received != producers*perProducer {
		t.Errorf("received = %d, want %d", received, producers*perProducer)
	}
}

package priority

import (
	"testing"
	"time"
)

func TestHighBeforeLow(t *testing.T) {
	q := New[int](4, 4, 10)
	q.TryPushLow(1)
	q.TryPushHigh(2)

	got, ok := q.Pop()
	if !ok || got != 2 {
		t.Fatalf("Pop() = %d, %v, want high item 2", got, ok)
	}
	got, ok = q.Pop()
	if !ok || got != 1 {
		t.Fatalf("Pop() = %d, %v, want low item 1", got, ok)
	}
}

func TestFairnessGivesLowATurn(t *testing.T) {
	q := New[string](8, 8, 2)
	for i := 0; i < 4; i++ {
		q.TryPushHigh("high")
	}
	q.TryPushLow("low")

	var order []string
	for i := 0; i < 5; i++ {
		item, ok := q.Pop()
		if !ok {
			t.Fatal("queue closed unexpectedly")
		}
		order = append(order, item)
	}
	if order[0] != "high" || order[1] != "high" || order[2] != "low" {
		t.Fatalf("low item starved: %v", order)
	}
}

func TestTryPushRejectsWhenFull(t *testing.T) {
	q := New[int](1, 1, 3)
	if !q.TryPushHigh(1) || q.TryPushHigh(2) {
		t.Fatal("high capacity not enforced")
	}
	if !q.TryPushLow(1) || q.TryPushLow(2) {
		t.Fatal("low capacity not enforced")
	}
}

func TestCloseDrainsRemaining(t *testing.T) {
	q := New[int](4, 4, 3)
	q.TryPushHigh(1)
	q.TryPushLow(2)
	q.Close()

	if got, ok := q.Pop(); !ok || got != 1 {
		t.Fatalf("Pop() = %d, %v after close", got, ok)
	}
	if got, ok := q.Pop(); !ok || got != 2 {
		t.Fatalf("Pop() = %d, %v after close", got, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("expected closed signal once drained")
	}
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := New[int](1, 1, 3)
	done := make(chan int, 1)
	go func() {
		v, _ := q.Pop()
		done <- v
	}()

	time.Sleep(10 * time.Millisecond)
	q.TryPushHigh(7)

	select {
	case v := <-done:
		if v != 7 {
			t.Fatalf("Pop() = %d, want 7", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake after push")
	}
}

func TestStatsCounts(t *testing.T) {
	q := New[int](4, 4, 3)
	q.TryPushHigh(1)
	q.TryPushLow(2)
	q.Pop()
	q.Pop()

	s := q.Stats()
	if s.HighPush != 1 || s.LowPush != 1 || s.HighPop != 1 || s.LowPop != 1 {
		t.Fatalf("unexpected stats: %+v", s)
	}
}

package priority

import (
	"sync/atomic"
	"time"
)

type Stats struct {
	HighPush int64
	LowPush  int64
	HighPop  int64
	LowPop   int64
}

// Queue is a two-level queue. The precomputer schedules imminent-call
// warmups at high priority and speculative jobs at low priority; fairness
// keeps low-priority work from starving while high traffic is sustained.
type Queue[T any] struct {
	high     chan T
	low      chan T
	fairness int
	streak   int64
	closed   chan struct{}
	highPush int64
	lowPush  int64
	highPop  int64
	lowPop   int64
}

func New[T any](highCap, lowCap, fairness int) *Queue[T] {
	if highCap <= 0 {
		highCap = 64
	}
	if lowCap <= 0 {
		lowCap = 256
	}
	if fairness <= 0 {
		fairness = 3
	}
	return &Queue[T]{
		high:     make(chan T, highCap),
		low:      make(chan T, lowCap),
		fairness: fairness,
		closed:   make(chan struct{}),
	}
}

func (q *Queue[T]) TryPushHigh(item T) bool {
	select {
	case q.high <- item:
		atomic.AddInt64(&q.highPush, 1)
		return true
	default:
		return false
	}
}

func (q *Queue[T]) TryPushLow(item T) bool {
	select {
	case q.low <- item:
		atomic.AddInt64(&q.lowPush, 1)
		return true
	default:
		return false
	}
}

// Pop blocks until an item is available or the queue is closed. Items
// already queued are drained before close is honored. Every `fairness`
// consecutive high pops the low queue gets one turn first.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	for {
		if atomic.LoadInt64(&q.streak) >= int64(q.fairness) {
			select {
			case item := <-q.low:
				atomic.AddInt64(&q.lowPop, 1)
				atomic.StoreInt64(&q.streak, 0)
				return item, true
			default:
			}
		}
		select {
		case item := <-q.high:
			atomic.AddInt64(&q.highPop, 1)
			atomic.AddInt64(&q.streak, 1)
			return item, true
		default:
		}
		select {
		case item := <-q.low:
			atomic.AddInt64(&q.lowPop, 1)
			atomic.StoreInt64(&q.streak, 0)
			return item, true
		default:
		}
		select {
		case <-q.closed:
			return zero, false
		default:
		}
		time.Sleep(time.Millisecond)
	}
}

func (q *Queue[T]) Close() {
	select {
	case <-q.closed:
	default:
		close(q.closed)
	}
}

func (q *Queue[T]) Stats() Stats {
	return Stats{
		HighPush: atomic.LoadInt64(&q.highPush),
		LowPush:  atomic.LoadInt64(&q.lowPush),
		HighPop:  atomic.LoadInt64(&q.highPop),
		LowPop:   atomic.LoadInt64(&q.lowPop),
	}
}

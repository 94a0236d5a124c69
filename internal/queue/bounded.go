// Package queue provides bounded, drop-on-full queues used as the only
// contract between the station's tasks.
//
// Producers never block: TryPut either enqueues or drops the value and
// counts the drop. Consumers block on Get until a value arrives or their
// context ends, or on GetTimeout until a deadline passes.
package queue

import (
	"context"
	"sync/atomic"
	"time"
)

// Stats is a snapshot of a queue's counters.
type Stats struct {
	Accepted uint64
	Dropped  uint64
	Len      int
	Cap      int
}

// Bounded is a fixed-capacity FIFO safe for concurrent producers and
// consumers.
type Bounded[T any] struct {
	name     string
	ch       chan T
	accepted atomic.Uint64
	dropped  atomic.Uint64
}

// NewBounded creates a queue holding at most capacity values.
func NewBounded[T any](name string, capacity int) *Bounded[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Bounded[T]{
		name: name,
		ch:   make(chan T, capacity),
	}
}

func (q *Bounded[T]) Name() string { return q.name }

// TryPut enqueues v without blocking. It returns false, and counts a drop,
// when the queue is full.
func (q *Bounded[T]) TryPut(v T) bool {
	select {
	case q.ch <- v:
		q.accepted.Add(1)
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Get blocks until a value is available or ctx is done.
func (q *Bounded[T]) Get(ctx context.Context) (T, error) {
	select {
	case v := <-q.ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// GetTimeout blocks for at most d. The boolean is false on timeout.
func (q *Bounded[T]) GetTimeout(d time.Duration) (T, bool) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case v := <-q.ch:
		return v, true
	case <-timer.C:
		var zero T
		return zero, false
	}
}

// TryGet returns a queued value without blocking.
func (q *Bounded[T]) TryGet() (T, bool) {
	select {
	case v := <-q.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

func (q *Bounded[T]) Len() int { return len(q.ch) }
func (q *Bounded[T]) Cap() int { return cap(q.ch) }

func (q *Bounded[T]) Stats() Stats {
	return Stats{
		Accepted: q.accepted.Load(),
		Dropped:  q.dropped.Load(),
		Len:      len(q.ch),
		Cap:      cap(q.ch),
	}
}

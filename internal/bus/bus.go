// Package bus provides typed broadcast topics with dynamic subscription.
//
// A Topic delivers a copy of every published message to each subscriber
// registered at publish time. Subscribers own their channels; a full
// channel holds the publisher back for at most the publish timeout, after
// which the message is dropped for that subscriber and Publish reports
// ErrPublishTimeout. Publishing with no subscribers succeeds and the
// message goes unobserved.
//
// Subscription is keyed by id and idempotent: subscribing the same id with
// the same channel again is a no-op.
package bus

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrBusClosed          = errors.New("bus: topic is closed")
	ErrSubscriberExists   = errors.New("bus: subscriber id already registered with another channel")
	ErrSubscriberNotFound = errors.New("bus: subscriber not found")
	ErrNilChannel         = errors.New("bus: nil channel provided")
	ErrPublishTimeout     = errors.New("bus: publish timed out")
)

// SubscriberStats tracks delivery for a single subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

// TopicStats contains topic-wide and per-subscriber counters.
type TopicStats struct {
	Published   uint64
	Sent        uint64
	Dropped     uint64
	Subscribers map[string]SubscriberStats
}

type subscriber[T any] struct {
	id      string
	ch      chan<- T
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Topic is a named broadcast channel carrying values of type T.
type Topic[T any] struct {
	name string

	mu          sync.RWMutex
	subscribers map[string]*subscriber[T]
	closed      bool

	published atomic.Uint64
	// counters of subscribers that have since unsubscribed
	retiredSent    atomic.Uint64
	retiredDropped atomic.Uint64
}

// NewTopic creates an empty topic.
func NewTopic[T any](name string) *Topic[T] {
	return &Topic[T]{
		name:        name,
		subscribers: make(map[string]*subscriber[T]),
	}
}

func (t *Topic[T]) Name() string { return t.name }

// Subscribe registers ch under id. Registering an id again with the same
// channel is a no-op.
func (t *Topic[T]) Subscribe(id string, ch chan<- T) error {
	if ch == nil {
		return ErrNilChannel
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrBusClosed
	}

	if existing, ok := t.subscribers[id]; ok {
		if existing.ch == ch {
			return nil
		}
		return fmt.Errorf("%w: %s on %s", ErrSubscriberExists, id, t.name)
	}

	t.subscribers[id] = &subscriber[T]{id: id, ch: ch}
	return nil
}

// Unsubscribe removes the subscriber registered under id.
func (t *Topic[T]) Unsubscribe(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sub, ok := t.subscribers[id]
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrSubscriberNotFound, id, t.name)
	}

	t.retiredSent.Add(sub.sent.Load())
	t.retiredDropped.Add(sub.dropped.Load())
	delete(t.subscribers, id)
	return nil
}

// Publish delivers msg to every current subscriber, waiting at most
// timeout in total for subscribers whose channels are full.
func (t *Topic[T]) Publish(msg T, timeout time.Duration) error {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return ErrBusClosed
	}
	subs := make([]*subscriber[T], 0, len(t.subscribers))
	for _, sub := range t.subscribers {
		subs = append(subs, sub)
	}
	t.mu.RUnlock()

	t.published.Add(1)

	var (
		timer   *time.Timer
		expired bool
		missed  int
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for _, sub := range subs {
		select {
		case sub.ch <- msg:
			sub.sent.Add(1)
			continue
		default:
		}

		if expired {
			sub.dropped.Add(1)
			missed++
			continue
		}
		if timer == nil {
			timer = time.NewTimer(timeout)
		}

		select {
		case sub.ch <- msg:
			sub.sent.Add(1)
		case <-timer.C:
			expired = true
			sub.dropped.Add(1)
			missed++
		}
	}

	if missed > 0 {
		return fmt.Errorf("%w: %s: %d of %d subscribers did not accept within %s",
			ErrPublishTimeout, t.name, missed, len(subs), timeout)
	}
	return nil
}

// Stats returns a snapshot of the topic counters.
func (t *Topic[T]) Stats() TopicStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := TopicStats{
		Published:   t.published.Load(),
		Sent:        t.retiredSent.Load(),
		Dropped:     t.retiredDropped.Load(),
		Subscribers: make(map[string]SubscriberStats, len(t.subscribers)),
	}

	for id, sub := range t.subscribers {
		sent := sub.sent.Load()
		dropped := sub.dropped.Load()

		result.Sent += sent
		result.Dropped += dropped
		result.Subscribers[id] = SubscriberStats{Sent: sent, Dropped: dropped}
	}

	return result
}

// Close stops the topic. Subscribe and Publish then return ErrBusClosed.
// Subscriber channels are left open; they belong to the subscribers.
// Close is idempotent.
func (t *Topic[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
}

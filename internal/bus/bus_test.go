package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type trigger struct {
	Speed uint32
}

// TestPublishReachesEverySubscriber verifies broadcast delivery.
func TestPublishReachesEverySubscriber(t *testing.T) {
	topic := NewTopic[trigger]("camera.trigger")
	defer topic.Close()

	a := make(chan trigger, 1)
	b := make(chan trigger, 1)
	require.NoError(t, topic.Subscribe("a", a))
	require.NoError(t, topic.Subscribe("b", b))

	require.NoError(t, topic.Publish(trigger{Speed: 70}, 10*time.Millisecond))

	require.Equal(t, trigger{Speed: 70}, <-a)
	require.Equal(t, trigger{Speed: 70}, <-b)

	stats := topic.Stats()
	require.Equal(t, uint64(1), stats.Published)
	require.Equal(t, uint64(2), stats.Sent)
	require.Zero(t, stats.Dropped)
}

// TestPublishWithoutSubscribers verifies an unobserved publish succeeds.
func TestPublishWithoutSubscribers(t *testing.T) {
	topic := NewTopic[trigger]("camera.trigger")
	require.NoError(t, topic.Publish(trigger{Speed: 1}, time.Millisecond))
	require.Equal(t, uint64(1), topic.Stats().Published)
}

// TestSubscribeIdempotent verifies re-subscribing the same listener has no
// further observable effect.
func TestSubscribeIdempotent(t *testing.T) {
	topic := NewTopic[trigger]("camera.result")

	ch := make(chan trigger, 4)
	require.NoError(t, topic.Subscribe("enforcement", ch))
	require.NoError(t, topic.Subscribe("enforcement", ch))

	require.NoError(t, topic.Publish(trigger{Speed: 5}, 10*time.Millisecond))

	require.Len(t, ch, 1)
	stats := topic.Stats()
	require.Len(t, stats.Subscribers, 1)
	require.Equal(t, uint64(1), stats.Subscribers["enforcement"].Sent)
}

func TestSubscribeConflictingChannel(t *testing.T) {
	topic := NewTopic[trigger]("camera.result")

	require.NoError(t, topic.Subscribe("enforcement", make(chan trigger, 1)))
	err := topic.Subscribe("enforcement", make(chan trigger, 1))
	require.ErrorIs(t, err, ErrSubscriberExists)

	require.ErrorIs(t, topic.Subscribe("nil", nil), ErrNilChannel)
}

// TestPublishTimeout verifies a full subscriber holds the publisher back
// for at most the timeout and the message is dropped for it.
func TestPublishTimeout(t *testing.T) {
	topic := NewTopic[trigger]("camera.trigger")

	full := make(chan trigger, 1)
	full <- trigger{}
	ok := make(chan trigger, 1)
	require.NoError(t, topic.Subscribe("full", full))
	require.NoError(t, topic.Subscribe("ok", ok))

	start := time.Now()
	err := topic.Publish(trigger{Speed: 9}, 30*time.Millisecond)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrPublishTimeout)
	require.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
	require.Less(t, elapsed, time.Second)

	require.Equal(t, trigger{Speed: 9}, <-ok)
	stats := topic.Stats()
	require.Equal(t, uint64(1), stats.Subscribers["full"].Dropped)
	require.Equal(t, uint64(1), stats.Subscribers["ok"].Sent)
}

// TestPublishWaitsForSlowReader verifies a reader draining within the
// timeout still receives the message.
func TestPublishWaitsForSlowReader(t *testing.T) {
	topic := NewTopic[trigger]("camera.trigger")

	ch := make(chan trigger)
	require.NoError(t, topic.Subscribe("slow", ch))

	got := make(chan trigger, 1)
	go func() {
		time.Sleep(5 * time.Millisecond)
		got <- <-ch
	}()

	require.NoError(t, topic.Publish(trigger{Speed: 3}, time.Second))
	require.Equal(t, trigger{Speed: 3}, <-got)
}

func TestUnsubscribe(t *testing.T) {
	topic := NewTopic[trigger]("camera.trigger")

	ch := make(chan trigger, 1)
	require.NoError(t, topic.Subscribe("a", ch))
	require.NoError(t, topic.Publish(trigger{}, time.Millisecond))
	require.NoError(t, topic.Unsubscribe("a"))
	require.ErrorIs(t, topic.Unsubscribe("a"), ErrSubscriberNotFound)

	require.NoError(t, topic.Publish(trigger{}, time.Millisecond))
	require.Len(t, ch, 1)

	stats := topic.Stats()
	require.Equal(t, uint64(2), stats.Published)
	require.Equal(t, uint64(1), stats.Sent)
	require.Empty(t, stats.Subscribers)
}

func TestClose(t *testing.T) {
	topic := NewTopic[trigger]("camera.trigger")
	topic.Close()
	topic.Close()

	require.ErrorIs(t, topic.Subscribe("a", make(chan trigger)), ErrBusClosed)
	require.ErrorIs(t, topic.Publish(trigger{}, time.Millisecond), ErrBusClosed)
}

// TestConcurrentPublishSubscribe exercises the topic under the race detector.
func TestConcurrentPublishSubscribe(t *testing.T) {
	topic := NewTopic[trigger]("camera.trigger")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = topic.Publish(trigger{Speed: uint32(j)}, time.Microsecond)
			}
		}()
	}

	ch := make(chan trigger, 8)
	for i := 0; i < 50; i++ {
		_ = topic.Subscribe("reader", ch)
		select {
		case <-ch:
		default:
		}
	}
	wg.Wait()

	stats := topic.Stats()
	require.Equal(t, uint64(400), stats.Published)
}

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTryPutDropsWhenFull(t *testing.T) {
	q := NewBounded[int]("detections", 2)

	require.True(t, q.TryPut(1))
	require.True(t, q.TryPut(2))
	require.False(t, q.TryPut(3))

	stats := q.Stats()
	require.Equal(t, uint64(2), stats.Accepted)
	require.Equal(t, uint64(1), stats.Dropped)
	require.Equal(t, 2, stats.Len)
	require.Equal(t, 2, stats.Cap)

	v, err := q.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, v)
	v, ok := q.TryGet()
	require.True(t, ok)
	require.Equal(t, 2, v)
	_, ok = q.TryGet()
	require.False(t, ok)
}

func TestGetHonoursContext(t *testing.T) {
	q := NewBounded[string]("display", 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Get(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestGetTimeout(t *testing.T) {
	q := NewBounded[string]("display", 1)

	start := time.Now()
	_, ok := q.GetTimeout(20 * time.Millisecond)
	require.False(t, ok)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	go func() {
		time.Sleep(5 * time.Millisecond)
		q.TryPut("hello")
	}()
	v, ok := q.GetTimeout(time.Second)
	require.True(t, ok)
	require.Equal(t, "hello", v)
}

func TestMinimumCapacity(t *testing.T) {
	q := NewBounded[int]("tiny", 0)
	require.Equal(t, 1, q.Cap())
	require.Equal(t, "tiny", q.Name())
}

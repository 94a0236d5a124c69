package sensor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chrisdamba/radarsim/internal/logging"
	"github.com/chrisdamba/radarsim/internal/models"
	"github.com/chrisdamba/radarsim/internal/queue"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newMachine(t *testing.T, capacity int) (*Machine, *queue.Bounded[models.DetectionRecord], *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	out := queue.NewBounded[models.DetectionRecord]("detections", capacity)
	m := New(out,
		WithClock(clock.Now),
		WithAxleTimeout(2*time.Second),
		WithLogger(logging.Discard()),
	)
	return m, out, clock
}

func TestTwoAxleVehicle(t *testing.T) {
	m, out, clock := newMachine(t, 10)

	m.Sensor1Edge()
	clock.Advance(100 * time.Millisecond)
	m.Sensor1Edge()

	state, axles := m.State()
	require.Equal(t, models.SensorStateCountingAxles, state)
	require.Equal(t, uint32(2), axles)

	clock.Advance(30 * time.Millisecond)
	m.Sensor2Edge()
	state, _ = m.State()
	require.Equal(t, models.SensorStateMeasuringSpeed, state)

	clock.Advance(30 * time.Millisecond)
	m.Sensor2Edge()

	rec, ok := out.TryGet()
	require.True(t, ok)
	require.Equal(t, uint32(2), rec.AxleCount)
	require.Equal(t, models.VehicleTypeLight, rec.VehicleType)
	require.Equal(t, uint32(60), rec.TimeDeltaMs)
	require.NotEmpty(t, rec.ID)

	state, axles = m.State()
	require.Equal(t, models.SensorStateIdle, state)
	require.Zero(t, axles)
	require.Equal(t, uint64(1), m.Stats().Detections)
}

func TestHeavyVehicle(t *testing.T) {
	m, out, clock := newMachine(t, 10)

	for i := 0; i < 3; i++ {
		m.Sensor1Edge()
		clock.Advance(100 * time.Millisecond)
	}
	m.Sensor2Edge()
	clock.Advance(72 * time.Millisecond)
	m.Sensor2Edge()

	rec, ok := out.TryGet()
	require.True(t, ok)
	require.Equal(t, uint32(3), rec.AxleCount)
	require.Equal(t, models.VehicleTypeHeavy, rec.VehicleType)
	require.Equal(t, uint32(172), rec.TimeDeltaMs)
}

func TestAxleTimeoutRestartsCount(t *testing.T) {
	m, _, clock := newMachine(t, 10)

	m.Sensor1Edge()
	clock.Advance(2*time.Second + time.Millisecond)
	m.Sensor1Edge()

	state, axles := m.State()
	require.Equal(t, models.SensorStateCountingAxles, state)
	require.Equal(t, uint32(1), axles)
	require.Equal(t, uint64(1), m.Stats().Restarts)
}

func TestAxleAtExactTimeoutStillCounts(t *testing.T) {
	m, _, clock := newMachine(t, 10)

	m.Sensor1Edge()
	clock.Advance(2 * time.Second)
	m.Sensor1Edge()

	_, axles := m.State()
	require.Equal(t, uint32(2), axles)
}

func TestSensor2WhileIdleIgnored(t *testing.T) {
	m, out, _ := newMachine(t, 10)

	m.Sensor2Edge()

	state, axles := m.State()
	require.Equal(t, models.SensorStateIdle, state)
	require.Zero(t, axles)
	require.Zero(t, out.Len())
	require.Equal(t, uint64(1), m.Stats().Ignored)
}

func TestSensor1WhileMeasuringIgnored(t *testing.T) {
	m, out, clock := newMachine(t, 10)

	m.Sensor1Edge()
	clock.Advance(10 * time.Millisecond)
	m.Sensor2Edge()
	clock.Advance(10 * time.Millisecond)
	m.Sensor1Edge()
	m.Sensor1Edge()

	state, axles := m.State()
	require.Equal(t, models.SensorStateMeasuringSpeed, state)
	require.Equal(t, uint32(1), axles)

	clock.Advance(40 * time.Millisecond)
	m.Sensor2Edge()

	rec, ok := out.TryGet()
	require.True(t, ok)
	require.Equal(t, uint32(1), rec.AxleCount)
	// measured from the last counted axle, not the ignored pulses
	require.Equal(t, uint32(60), rec.TimeDeltaMs)
}

func TestSupervisorResetsStaleCount(t *testing.T) {
	m, _, clock := newMachine(t, 10)

	require.False(t, m.CheckTimeout())

	m.Sensor1Edge()
	clock.Advance(time.Second)
	require.False(t, m.CheckTimeout())

	clock.Advance(1500 * time.Millisecond)
	require.True(t, m.CheckTimeout())

	state, axles := m.State()
	require.Equal(t, models.SensorStateIdle, state)
	require.Zero(t, axles)
	require.Equal(t, uint64(1), m.Stats().TimeoutResets)
}

func TestSupervisorLeavesMeasuringAlone(t *testing.T) {
	m, _, clock := newMachine(t, 10)

	m.Sensor1Edge()
	m.Sensor2Edge()
	clock.Advance(time.Minute)

	require.False(t, m.CheckTimeout())
	state, _ := m.State()
	require.Equal(t, models.SensorStateMeasuringSpeed, state)
}

func TestFullQueueDropsDetection(t *testing.T) {
	m, out, clock := newMachine(t, 1)

	for i := 0; i < 2; i++ {
		m.Sensor1Edge()
		m.Sensor2Edge()
		clock.Advance(50 * time.Millisecond)
		m.Sensor2Edge()
	}

	require.Equal(t, 1, out.Len())
	stats := m.Stats()
	require.Equal(t, uint64(1), stats.Detections)
	require.Equal(t, uint64(1), stats.Dropped)
	require.Equal(t, uint64(1), out.Stats().Dropped)

	state, _ := m.State()
	require.Equal(t, models.SensorStateIdle, state)
}

func TestSupervise(t *testing.T) {
	clock := newFakeClock()
	out := queue.NewBounded[models.DetectionRecord]("detections", 1)
	m := New(out, WithClock(clock.Now), WithAxleTimeout(time.Second), WithLogger(logging.Discard()))

	m.Sensor1Edge()
	clock.Advance(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Supervise(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool {
		state, _ := m.State()
		return state == models.SensorStateIdle
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

// TestConcurrentEdges exercises the critical section under the race detector.
func TestConcurrentEdges(t *testing.T) {
	out := queue.NewBounded[models.DetectionRecord]("detections", 1000)
	m := New(out, WithLogger(logging.Discard()))

	var wg sync.WaitGroup
	for _, edge := range []func(){m.Sensor1Edge, m.Sensor2Edge, func() { m.CheckTimeout() }} {
		wg.Add(1)
		go func(edge func()) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				edge()
			}
		}(edge)
	}
	wg.Wait()

	state, axles := m.State()
	if state != models.SensorStateIdle {
		require.GreaterOrEqual(t, axles, uint32(1))
	}
}

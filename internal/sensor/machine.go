// Package sensor turns the edge streams of the two road sensors into
// detection records.
//
// Sensor 1 counts axles; sensor 2, placed a fixed distance downstream,
// marks the end of the speed measurement. Both edge handlers and the
// staleness supervisor share one critical section, so no caller ever sees
// a partially updated state.
//
// The supervisor polls rather than arming a timer per axle. A half-seen
// vehicle can therefore hold the machine in CountingAxles for up to one
// poll period past the axle timeout.
package sensor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chrisdamba/radarsim/internal/decision"
	"github.com/chrisdamba/radarsim/internal/models"
	"github.com/chrisdamba/radarsim/internal/queue"
	"github.com/lucsky/cuid"
)

const (
	DefaultAxleTimeout      = 2 * time.Second
	DefaultSupervisorPeriod = 500 * time.Millisecond
)

// Stats counts what the machine has seen since it started.
type Stats struct {
	Detections    uint64
	Dropped       uint64
	TimeoutResets uint64
	Restarts      uint64
	Ignored       uint64
}

type Machine struct {
	mu          sync.Mutex
	state       models.SensorState
	axleCount   uint32
	lastAxle    time.Time
	speedStart  time.Time
	axleTimeout time.Duration

	out   *queue.Bounded[models.DetectionRecord]
	now   func() time.Time
	newID func() string
	log   *slog.Logger

	detections    atomic.Uint64
	dropped       atomic.Uint64
	timeoutResets atomic.Uint64
	restarts      atomic.Uint64
	ignored       atomic.Uint64
}

type Option func(*Machine)

// WithClock replaces the wall clock, for tests and replays.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

func WithAxleTimeout(d time.Duration) Option {
	return func(m *Machine) { m.axleTimeout = d }
}

func WithLogger(log *slog.Logger) Option {
	return func(m *Machine) { m.log = log }
}

// New creates an idle machine emitting completed detections to out.
func New(out *queue.Bounded[models.DetectionRecord], opts ...Option) *Machine {
	m := &Machine{
		state:       models.SensorStateIdle,
		axleTimeout: DefaultAxleTimeout,
		out:         out,
		now:         time.Now,
		newID:       cuid.New,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With("component", "sensor")
	return m
}

// Sensor1Edge handles an axle pulse from the counting sensor.
func (m *Machine) Sensor1Edge() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	switch m.state {
	case models.SensorStateIdle:
		m.log.Debug("first axle detected")
		m.state = models.SensorStateCountingAxles
		m.axleCount = 1
		m.lastAxle = now

	case models.SensorStateCountingAxles:
		if now.Sub(m.lastAxle) > m.axleTimeout {
			// too late to belong to the same vehicle
			m.log.Warn("axle timeout, restarting count", "discarded_axles", m.axleCount)
			m.restarts.Add(1)
			m.axleCount = 1
		} else {
			m.axleCount++
			m.log.Debug("axle detected", "axles", m.axleCount)
		}
		m.lastAxle = now

	case models.SensorStateMeasuringSpeed:
		m.ignored.Add(1)
		m.log.Debug("ignoring sensor 1 pulse while waiting for sensor 2")
	}
}

// Sensor2Edge handles a pulse from the downstream sensor.
func (m *Machine) Sensor2Edge() {
	rec, ok := m.sensor2Edge()
	if !ok {
		return
	}

	if !m.out.TryPut(rec) {
		m.dropped.Add(1)
		m.log.Error("detection queue full, dropping detection",
			"detection", rec.ID, "axles", rec.AxleCount, "time_delta_ms", rec.TimeDeltaMs)
		return
	}
	m.detections.Add(1)
}

func (m *Machine) sensor2Edge() (models.DetectionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	switch m.state {
	case models.SensorStateIdle:
		m.ignored.Add(1)
		m.log.Warn("sensor 2 fired without a vehicle on sensor 1, ignoring")

	case models.SensorStateCountingAxles:
		m.log.Debug("vehicle reached sensor 2, measuring speed")
		m.state = models.SensorStateMeasuringSpeed
		m.speedStart = m.lastAxle

	case models.SensorStateMeasuringSpeed:
		delta := now.Sub(m.speedStart).Milliseconds()
		if delta < 0 {
			delta = 0
		}
		rec := models.DetectionRecord{
			ID:          m.newID(),
			TimeDeltaMs: uint32(delta),
			VehicleType: decision.ClassifyVehicle(m.axleCount),
			AxleCount:   m.axleCount,
			DetectedAt:  now,
		}
		m.log.Info("detection complete",
			"detection", rec.ID, "axles", rec.AxleCount, "time_delta_ms", rec.TimeDeltaMs)

		m.state = models.SensorStateIdle
		m.axleCount = 0
		return rec, true
	}

	return models.DetectionRecord{}, false
}

// CheckTimeout performs one supervisor poll, resetting a stale axle count.
// It reports whether a reset happened.
func (m *Machine) CheckTimeout() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != models.SensorStateCountingAxles {
		return false
	}
	if m.now().Sub(m.lastAxle) <= m.axleTimeout {
		return false
	}

	m.log.Warn("axle count timed out, resetting", "axles", m.axleCount)
	m.timeoutResets.Add(1)
	m.state = models.SensorStateIdle
	m.axleCount = 0
	return true
}

// Supervise polls CheckTimeout every period until ctx is done.
func (m *Machine) Supervise(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		period = DefaultSupervisorPeriod
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.CheckTimeout()
		}
	}
}

// State returns the current state and axle count.
func (m *Machine) State() (models.SensorState, uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.axleCount
}

func (m *Machine) Stats() Stats {
	return Stats{
		Detections:    m.detections.Load(),
		Dropped:       m.dropped.Load(),
		TimeoutResets: m.timeoutResets.Load(),
		Restarts:      m.restarts.Load(),
		Ignored:       m.ignored.Load(),
	}
}

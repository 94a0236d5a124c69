// Package traffic stands in for the GPIO edge driver. It builds vehicles,
// schedules the edges they would raise on the two road sensors and fires
// them in real time.
package traffic

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/chrisdamba/radarsim/internal/models"
	"github.com/schollz/progressbar/v3"
)

// EdgeSink receives sensor edges, already debounced.
type EdgeSink interface {
	Sensor1Edge()
	Sensor2Edge()
}

type Generator struct {
	cfg        models.TrafficConfig
	distanceMm uint32
	factory    *VehicleFactory
	sink       EdgeSink
	log        *slog.Logger
	progress   io.Writer

	vehicles atomic.Uint64
	edges    atomic.Uint64
}

type Option func(*Generator)

func WithLogger(log *slog.Logger) Option {
	return func(g *Generator) { g.log = log }
}

// WithProgressWriter redirects the progress bar, which otherwise goes to
// stderr when enabled.
func WithProgressWriter(w io.Writer) Option {
	return func(g *Generator) { g.progress = w }
}

func NewGenerator(cfg models.TrafficConfig, distanceMm uint32, sink EdgeSink, opts ...Option) *Generator {
	g := &Generator{
		cfg:        cfg,
		distanceMm: distanceMm,
		factory:    NewVehicleFactory(cfg.Seed, cfg.Scenario),
		sink:       sink,
		log:        slog.Default(),
		progress:   os.Stderr,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.With("component", "traffic")
	return g
}

// Run drives vehicles past the sensors, one at a time with cfg.Interval
// between them. It returns when the configured number of vehicles has
// passed, or when ctx is done.
func (g *Generator) Run(ctx context.Context) error {
	var bar *progressbar.ProgressBar
	if g.cfg.Progress && !g.cfg.Continuous {
		bar = progressbar.NewOptions(g.cfg.Vehicles,
			progressbar.OptionSetWriter(g.progress),
			progressbar.OptionSetDescription("vehicles"),
			progressbar.OptionShowCount(),
		)
		defer bar.Close()
	}

	for n := 0; g.cfg.Continuous || n < g.cfg.Vehicles; n++ {
		if n > 0 && !sleep(ctx, g.cfg.Interval) {
			return nil
		}

		v := g.factory.CreateVehicle()
		g.log.Info("vehicle approaching",
			"vehicle", v.ID, "type", v.Type, "speed_kmh", v.SpeedKmh, "axles", v.Axles)

		q := models.NewEventQueue()
		Schedule(q, v, 0, g.cfg.AxleGap, g.distanceMm)
		if !g.Drive(ctx, q) {
			return nil
		}
		g.vehicles.Add(1)

		if bar != nil {
			_ = bar.Add(1)
		}
	}

	g.log.Info("traffic finished", "vehicles", g.vehicles.Load())
	return nil
}

// Drive fires the events of q at their offsets from now. It reports false
// if ctx ended first.
func (g *Generator) Drive(ctx context.Context, q *models.EventQueue) bool {
	start := time.Now()

	for !q.IsEmpty() {
		next := q.Peek()
		if !sleep(ctx, next.At-time.Since(start)) {
			return false
		}
		for _, ev := range q.DequeueDue(time.Since(start)) {
			g.fire(ev)
		}
	}
	return true
}

func (g *Generator) fire(ev *models.Event) {
	g.edges.Add(1)
	switch ev.Type {
	case models.EventSensor1Edge:
		g.sink.Sensor1Edge()
	case models.EventSensor2Edge:
		g.sink.Sensor2Edge()
	default:
		g.log.Warn("unknown event type", "type", ev.Type)
	}
	if ev.Final {
		g.log.Debug("vehicle passed", "vehicle", ev.VehicleID)
	}
}

// Vehicles returns how many vehicles have fully passed.
func (g *Generator) Vehicles() uint64 {
	return g.vehicles.Load()
}

func (g *Generator) Edges() uint64 {
	return g.edges.Load()
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

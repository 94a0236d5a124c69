// Package station wires the speed-enforcement pipeline together: traffic
// edges feed the sensor state machine, detections flow through the
// enforcement orchestrator to the display, and violations go through the
// capture handshake with a local or remote camera.
package station

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/chrisdamba/radarsim/internal/bus"
	"github.com/chrisdamba/radarsim/internal/capture"
	"github.com/chrisdamba/radarsim/internal/decision"
	"github.com/chrisdamba/radarsim/internal/enforcement"
	"github.com/chrisdamba/radarsim/internal/models"
	"github.com/chrisdamba/radarsim/internal/mqttlink"
	"github.com/chrisdamba/radarsim/internal/output"
	"github.com/chrisdamba/radarsim/internal/queue"
	"github.com/chrisdamba/radarsim/internal/sensor"
	"github.com/chrisdamba/radarsim/internal/traffic"
	"golang.org/x/sync/errgroup"
)

const settlePoll = 50 * time.Millisecond

type Station struct {
	cfg *models.Config
	log *slog.Logger

	detections *queue.Bounded[models.DetectionRecord]
	display    *queue.Bounded[models.DisplayRecord]
	triggers   *bus.Topic[models.ViolationTrigger]
	results    *bus.Topic[models.CaptureResult]

	machine   *sensor.Machine
	orch      *enforcement.Orchestrator
	camera    *capture.Camera
	renderer  *output.Renderer
	generator *traffic.Generator
	dest      output.Destination

	stdout io.Writer
}

type Option func(*Station)

func WithLogger(log *slog.Logger) Option {
	return func(s *Station) { s.log = log }
}

// WithDestination replaces the destinations named in the output config.
func WithDestination(d output.Destination) Option {
	return func(s *Station) { s.dest = d }
}

// WithStdout sets where the console panel is drawn.
func WithStdout(w io.Writer) Option {
	return func(s *Station) { s.stdout = w }
}

// New builds a station from cfg. Nothing runs until Run.
func New(cfg *models.Config, opts ...Option) (*Station, error) {
	s := &Station{
		cfg:    cfg,
		log:    slog.Default(),
		stdout: os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("station", cfg.StationID)

	if s.dest == nil {
		dest, err := newDestination(cfg, s.stdout)
		if err != nil {
			return nil, err
		}
		s.dest = dest
	}

	s.detections = queue.NewBounded[models.DetectionRecord]("detections", cfg.QueueCapacity)
	s.display = queue.NewBounded[models.DisplayRecord]("display", cfg.QueueCapacity)
	s.triggers = bus.NewTopic[models.ViolationTrigger]("capture.trigger")
	s.results = bus.NewTopic[models.CaptureResult]("capture.result")

	s.machine = sensor.New(s.detections,
		sensor.WithAxleTimeout(cfg.AxleTimeout),
		sensor.WithLogger(s.log),
	)
	s.orch = enforcement.New(s.detections, s.display, s.triggers, s.results,
		decision.LimitsFromConfig(cfg),
		enforcement.WithCaptureTimeout(cfg.CaptureTimeout),
		enforcement.WithPublishTimeout(cfg.PublishTimeout),
		enforcement.WithResultBuffer(cfg.SubscriberBuffer),
		enforcement.WithLogger(s.log),
	)
	if cfg.Camera.Mode == models.CameraModeSimulated {
		s.camera = capture.New(s.triggers, s.results, cfg.Camera,
			capture.WithPublishTimeout(cfg.PublishTimeout),
			capture.WithBuffer(cfg.SubscriberBuffer),
			capture.WithLogger(s.log),
		)
	}
	s.renderer = output.NewRenderer(s.display, s.dest, s.log)
	s.generator = traffic.NewGenerator(cfg.Traffic, cfg.SensorDistanceMm, s.machine,
		traffic.WithLogger(s.log),
	)

	return s, nil
}

func newDestination(cfg *models.Config, stdout io.Writer) (output.Destination, error) {
	var dests output.Multi

	if cfg.Output.Console {
		dests = append(dests, output.NewConsoleOutput(stdout, false))
	}
	if cfg.Output.File != "" {
		j, err := output.NewJSONOutput(cfg.Output.File)
		if err != nil {
			_ = dests.Close()
			return nil, err
		}
		dests = append(dests, j)
	}
	if cfg.Kafka.Enabled {
		k, err := output.NewKafkaOutput(cfg.Kafka, cfg.StationID)
		if err != nil {
			_ = dests.Close()
			return nil, err
		}
		dests = append(dests, k)
	}
	return dests, nil
}

// Run operates the station until ctx is done or, for a finite traffic
// run, until every vehicle has passed and the pipeline has settled.
func (s *Station) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	defer s.close()

	var link *mqttlink.Link
	if s.cfg.Camera.Mode == models.CameraModeMQTT {
		var err error
		link, err = mqttlink.Dial(ctx, mqttlink.Options{
			Broker:    s.cfg.MQTT.Broker,
			ClientID:  s.cfg.MQTT.ClientID,
			KeepAlive: s.cfg.MQTT.KeepAlive,
			Logger:    s.log,
		})
		if err != nil {
			return fmt.Errorf("remote camera unavailable: %w", err)
		}
		defer link.Close()

		if err := mqttlink.Import(ctx, link, s.cfg.MQTT.ResultTopic, s.results, s.cfg.PublishTimeout); err != nil {
			return err
		}
	}

	s.log.Info("station starting",
		"camera", s.cfg.Camera.Mode,
		"distance_mm", s.cfg.SensorDistanceMm,
		"light_limit_kmh", s.cfg.SpeedLimitLightKmh,
		"heavy_limit_kmh", s.cfg.SpeedLimitHeavyKmh)

	g, gctx := errgroup.WithContext(ctx)

	// The renderer outlives the orchestrator, which may still be finishing
	// a capture wait and emit one more display record after cancellation.
	renderCtx, stopRenderer := context.WithCancel(context.Background())
	defer stopRenderer()

	g.Go(func() error { return s.machine.Supervise(gctx, s.cfg.SupervisorPeriod) })
	g.Go(func() error {
		defer stopRenderer()
		return s.orch.Run(gctx)
	})
	g.Go(func() error { return s.renderer.Run(renderCtx) })

	if s.camera != nil {
		g.Go(func() error { return s.camera.Run(gctx) })
	}
	if link != nil {
		g.Go(func() error {
			return mqttlink.Export(gctx, link, s.triggers, "mqtt", s.cfg.SubscriberBuffer, s.cfg.MQTT.TriggerTopic)
		})
	}

	g.Go(func() error {
		if err := s.generator.Run(gctx); err != nil {
			return err
		}
		if s.cfg.Traffic.Continuous || gctx.Err() != nil {
			return nil
		}
		s.settle(gctx)
		cancel()
		return nil
	})

	err := g.Wait()
	s.logSummary()
	return err
}

// settle waits for queued detections to be processed and for the last
// capture handshake to finish.
func (s *Station) settle(ctx context.Context) {
	s.log.Info("traffic done, waiting for the pipeline to settle")

	ticker := time.NewTicker(settlePoll)
	defer ticker.Stop()
	for s.detections.Len() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}

	timer := time.NewTimer(s.cfg.CaptureTimeout + 2*s.cfg.PublishTimeout + s.cfg.Camera.Latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (s *Station) close() {
	s.triggers.Close()
	s.results.Close()
	if err := s.dest.Close(); err != nil {
		s.log.Error("failed to close output", "error", err)
	}
}

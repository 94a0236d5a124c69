package station

import (
	"log/slog"

	"github.com/chrisdamba/radarsim/internal/bus"
	"github.com/chrisdamba/radarsim/internal/capture"
	"github.com/chrisdamba/radarsim/internal/enforcement"
	"github.com/chrisdamba/radarsim/internal/queue"
	"github.com/chrisdamba/radarsim/internal/sensor"
)

// Summary is a snapshot of every counter in the station.
type Summary struct {
	Vehicles    uint64
	Sensor      sensor.Stats
	Enforcement enforcement.Stats
	Camera      *capture.Stats
	Detections  queue.Stats
	Display     queue.Stats
	Triggers    bus.TopicStats
	Results     bus.TopicStats
	Rendered    uint64
	RenderFails uint64
}

func (s *Station) Summary() Summary {
	sum := Summary{
		Vehicles:    s.generator.Vehicles(),
		Sensor:      s.machine.Stats(),
		Enforcement: s.orch.Stats(),
		Detections:  s.detections.Stats(),
		Display:     s.display.Stats(),
		Triggers:    s.triggers.Stats(),
		Results:     s.results.Stats(),
	}
	if s.camera != nil {
		cs := s.camera.Stats()
		sum.Camera = &cs
	}
	sum.Rendered, sum.RenderFails = s.renderer.Rendered()
	return sum
}

func (s *Station) logSummary() {
	sum := s.Summary()

	s.log.Info("station stopped",
		"vehicles", sum.Vehicles,
		slog.Group("sensor",
			"detections", sum.Sensor.Detections,
			"dropped", sum.Sensor.Dropped,
			"timeout_resets", sum.Sensor.TimeoutResets,
			"restarts", sum.Sensor.Restarts,
			"ignored", sum.Sensor.Ignored),
		slog.Group("enforcement",
			"processed", sum.Enforcement.Processed,
			"violations", sum.Enforcement.Violations,
			"captured", sum.Enforcement.Captured,
			"capture_errors", sum.Enforcement.CaptureErrors,
			"malformed", sum.Enforcement.Malformed,
			"timeouts", sum.Enforcement.Timeouts,
			"publish_failures", sum.Enforcement.PublishFailures),
		slog.Group("display",
			"rendered", sum.Rendered,
			"render_failures", sum.RenderFails,
			"dropped", sum.Display.Dropped),
		slog.Group("bus",
			"triggers_dropped", sum.Triggers.Dropped,
			"results_dropped", sum.Results.Dropped),
	)
}

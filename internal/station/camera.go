package station

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chrisdamba/radarsim/internal/bus"
	"github.com/chrisdamba/radarsim/internal/capture"
	"github.com/chrisdamba/radarsim/internal/models"
	"github.com/chrisdamba/radarsim/internal/mqttlink"
	"golang.org/x/sync/errgroup"
)

// RunCamera runs the simulated camera as a remote capture subsystem,
// answering triggers from the broker until ctx is done.
func RunCamera(ctx context.Context, cfg *models.Config, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	clientID := cfg.MQTT.ClientID
	if clientID != "" {
		clientID += "-camera"
	}

	link, err := mqttlink.Dial(ctx, mqttlink.Options{
		Broker:    cfg.MQTT.Broker,
		ClientID:  clientID,
		KeepAlive: cfg.MQTT.KeepAlive,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("camera cannot reach broker: %w", err)
	}
	defer link.Close()

	triggers := bus.NewTopic[models.ViolationTrigger]("capture.trigger")
	results := bus.NewTopic[models.CaptureResult]("capture.result")
	defer triggers.Close()
	defer results.Close()

	camera := capture.New(triggers, results, cfg.Camera,
		capture.WithPublishTimeout(cfg.PublishTimeout),
		capture.WithBuffer(cfg.SubscriberBuffer),
		capture.WithLogger(log),
	)

	if err := mqttlink.Import(ctx, link, cfg.MQTT.TriggerTopic, triggers, cfg.PublishTimeout); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return camera.Run(gctx) })
	g.Go(func() error {
		return mqttlink.Export(gctx, link, results, "mqtt", cfg.SubscriberBuffer, cfg.MQTT.ResultTopic)
	})

	err = g.Wait()
	stats := camera.Stats()
	log.Info("camera stopped",
		"triggers", stats.Triggers,
		"captured", stats.Captured,
		"failed", stats.Failed,
		"silent", stats.Silent,
		"malformed", stats.Malformed)
	return err
}

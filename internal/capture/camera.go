// Package capture simulates the plate-capture camera that answers
// violation triggers.
//
// The camera subscribes to the trigger topic and, after a configurable
// latency, publishes at most one CaptureResult per trigger. A share of
// captures fails with an explicit error code, a share produces garbage,
// and a share produces nothing at all, so every path of the enforcement
// handshake gets exercised.
package capture

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chrisdamba/radarsim/internal/bus"
	"github.com/chrisdamba/radarsim/internal/models"
	"github.com/chrisdamba/radarsim/internal/plate"
	"github.com/jaswdr/faker"
)

const (
	SubscriberID          = "camera"
	DefaultPublishTimeout = 100 * time.Millisecond
)

// Plate templates for faker.Bothify: ? is a letter, # a digit.
var plateTemplates = []string{
	"???#?##", // Brazil
	"??###??", // Argentina
	"????###", // Paraguay
	"???####", // Uruguay
}

// Garbage always starts with a digit, which no Mercosul layout allows.
var garbageTemplates = []string{
	"#?#?#?#",
	"##??",
	"#########",
}

type kind int

const (
	kindCaptured kind = iota
	kindFailed
	kindSilent
	kindMalformed
)

type Stats struct {
	Triggers        uint64
	Captured        uint64
	Failed          uint64
	Silent          uint64
	Malformed       uint64
	PublishFailures uint64
}

type Camera struct {
	triggers *bus.Topic[models.ViolationTrigger]
	results  *bus.Topic[models.CaptureResult]
	cfg      models.CameraConfig

	fake           faker.Faker
	classifier     plate.Classifier
	publishTimeout time.Duration
	buffer         int
	log            *slog.Logger

	triggersSeen    atomic.Uint64
	captured        atomic.Uint64
	failed          atomic.Uint64
	silent          atomic.Uint64
	malformed       atomic.Uint64
	publishFailures atomic.Uint64
}

type Option func(*Camera)

func WithLogger(log *slog.Logger) Option {
	return func(c *Camera) { c.log = log }
}

func WithPublishTimeout(d time.Duration) Option {
	return func(c *Camera) { c.publishTimeout = d }
}

func WithClassifier(cl plate.Classifier) Option {
	return func(c *Camera) { c.classifier = cl }
}

// WithBuffer sets the depth of the camera's trigger subscription.
func WithBuffer(n int) Option {
	return func(c *Camera) { c.buffer = n }
}

// New creates a camera listening on triggers and answering on results.
func New(
	triggers *bus.Topic[models.ViolationTrigger],
	results *bus.Topic[models.CaptureResult],
	cfg models.CameraConfig,
	opts ...Option,
) *Camera {
	c := &Camera{
		triggers:       triggers,
		results:        results,
		cfg:            cfg,
		fake:           faker.NewWithSeed(rand.NewSource(cfg.Seed)),
		classifier:     plate.Mercosul{},
		publishTimeout: DefaultPublishTimeout,
		buffer:         4,
		log:            slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.buffer < 1 {
		c.buffer = 1
	}
	c.log = c.log.With("component", "camera")
	return c
}

// Run answers triggers until ctx is done.
func (c *Camera) Run(ctx context.Context) error {
	ch := make(chan models.ViolationTrigger, c.buffer)
	if err := c.triggers.Subscribe(SubscriberID, ch); err != nil {
		return err
	}
	defer func() {
		_ = c.triggers.Unsubscribe(SubscriberID)
	}()

	c.log.Info("camera ready", "latency", c.cfg.Latency)

	for {
		select {
		case <-ctx.Done():
			return nil
		case trig := <-ch:
			if !c.wait(ctx) {
				return nil
			}
			res, ok := c.Respond(trig)
			if !ok {
				continue
			}
			if err := c.results.Publish(res, c.publishTimeout); err != nil {
				c.publishFailures.Add(1)
				c.log.Error("failed to publish capture result", "error", err)
			}
		}
	}
}

func (c *Camera) wait(ctx context.Context) bool {
	if c.cfg.Latency <= 0 {
		return true
	}
	timer := time.NewTimer(c.cfg.Latency)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Respond produces the camera's answer to trig. The boolean is false when
// the camera stays silent.
func (c *Camera) Respond(trig models.ViolationTrigger) (models.CaptureResult, bool) {
	c.triggersSeen.Add(1)
	log := c.log.With("speed_kmh", trig.SpeedKmh, "vehicle_type", trig.VehicleType)

	res := models.CaptureResult{Timestamp: time.Now()}

	switch c.roll() {
	case kindFailed:
		c.failed.Add(1)
		code := c.fake.IntBetween(1, 999)
		res.Plate = models.ErrorPlate(code)
		res.ErrorCode = &code
		log.Warn("capture failed", "code", code)

	case kindSilent:
		c.silent.Add(1)
		log.Warn("capture lost, no result")
		return models.CaptureResult{}, false

	case kindMalformed:
		c.malformed.Add(1)
		res.Plate = c.bothify(garbageTemplates)
		log.Debug("capture produced garbage", "plate", res.Plate)

	default:
		c.captured.Add(1)
		res.Plate = c.bothify(plateTemplates)
		if c.cfg.WhitespaceQuirk {
			res.Plate = res.Plate[:3] + " " + res.Plate[3:]
		}
		log.Debug("plate captured", "plate", res.Plate)
	}

	if res.ErrorCode == nil {
		_, res.Valid = c.classifier.Classify(plate.Normalize(res.Plate))
	}
	return res, true
}

func (c *Camera) roll() kind {
	r := c.fake.IntBetween(1, 100)
	switch {
	case r <= c.cfg.FailureRatePercent:
		return kindFailed
	case r <= c.cfg.FailureRatePercent+c.cfg.SilenceRatePercent:
		return kindSilent
	case r <= c.cfg.FailureRatePercent+c.cfg.SilenceRatePercent+c.cfg.MalformedRatePercent:
		return kindMalformed
	default:
		return kindCaptured
	}
}

func (c *Camera) bothify(templates []string) string {
	tpl := templates[c.fake.IntBetween(0, len(templates)-1)]
	return strings.ToUpper(c.fake.Bothify(tpl))
}

func (c *Camera) Stats() Stats {
	return Stats{
		Triggers:        c.triggersSeen.Load(),
		Captured:        c.captured.Load(),
		Failed:          c.failed.Load(),
		Silent:          c.silent.Load(),
		Malformed:       c.malformed.Load(),
		PublishFailures: c.publishFailures.Load(),
	}
}

// Package enforcement runs the per-detection decision and capture
// handshake.
//
// The orchestrator is single threaded over the detection queue, so at
// most one trigger is outstanding at any time. Results carry no
// correlation id: the orchestrator registers its result subscription
// before publishing a trigger and discards anything already buffered on
// it, then takes the first result to arrive within the capture timeout.
package enforcement

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/chrisdamba/radarsim/internal/bus"
	"github.com/chrisdamba/radarsim/internal/decision"
	"github.com/chrisdamba/radarsim/internal/models"
	"github.com/chrisdamba/radarsim/internal/plate"
	"github.com/chrisdamba/radarsim/internal/queue"
)

const (
	DefaultCaptureTimeout = 2 * time.Second
	DefaultPublishTimeout = 100 * time.Millisecond

	// SubscriberID is the id the orchestrator uses on the result topic.
	SubscriberID = "enforcement"
)

// Outcome is how a single detection cycle ended.
type Outcome int

const (
	OutcomeNoViolation Outcome = iota
	OutcomePlateCaptured
	OutcomeCaptureError
	OutcomeMalformed
	OutcomeTimeout
	OutcomePublishFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoViolation:
		return "no_violation"
	case OutcomePlateCaptured:
		return "plate_captured"
	case OutcomeCaptureError:
		return "capture_error"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeTimeout:
		return "timeout"
	case OutcomePublishFailed:
		return "publish_failed"
	default:
		return "unknown"
	}
}

type Stats struct {
	Processed       uint64
	Violations      uint64
	Captured        uint64
	CaptureErrors   uint64
	Malformed       uint64
	Timeouts        uint64
	PublishFailures uint64
	StaleResults    uint64
	DisplayDropped  uint64
}

type Orchestrator struct {
	detections *queue.Bounded[models.DetectionRecord]
	display    *queue.Bounded[models.DisplayRecord]
	triggers   *bus.Topic[models.ViolationTrigger]
	results    *bus.Topic[models.CaptureResult]

	resultCh       chan models.CaptureResult
	limits         decision.Limits
	classifier     plate.Classifier
	captureTimeout time.Duration
	publishTimeout time.Duration
	log            *slog.Logger

	processed       atomic.Uint64
	violations      atomic.Uint64
	captured        atomic.Uint64
	captureErrors   atomic.Uint64
	malformed       atomic.Uint64
	timeouts        atomic.Uint64
	publishFailures atomic.Uint64
	staleResults    atomic.Uint64
	displayDropped  atomic.Uint64
}

type Option func(*Orchestrator)

func WithClassifier(c plate.Classifier) Option {
	return func(o *Orchestrator) { o.classifier = c }
}

func WithCaptureTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.captureTimeout = d }
}

func WithPublishTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.publishTimeout = d }
}

// WithResultBuffer sets the depth of the orchestrator's result subscription.
func WithResultBuffer(n int) Option {
	return func(o *Orchestrator) {
		if n < 1 {
			n = 1
		}
		o.resultCh = make(chan models.CaptureResult, n)
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// New creates an orchestrator reading detections and writing display
// records, using triggers and results for the capture handshake.
func New(
	detections *queue.Bounded[models.DetectionRecord],
	display *queue.Bounded[models.DisplayRecord],
	triggers *bus.Topic[models.ViolationTrigger],
	results *bus.Topic[models.CaptureResult],
	limits decision.Limits,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		detections:     detections,
		display:        display,
		triggers:       triggers,
		results:        results,
		resultCh:       make(chan models.CaptureResult, 1),
		limits:         limits,
		classifier:     plate.Mercosul{},
		captureTimeout: DefaultCaptureTimeout,
		publishTimeout: DefaultPublishTimeout,
		log:            slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.With("component", "enforcement")
	return o
}

// Run processes detections until ctx is done. A capture wait already in
// progress runs to its own deadline before Run returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.log.Info("enforcement started",
		"capture_timeout", o.captureTimeout, "publish_timeout", o.publishTimeout)
	defer func() {
		// best effort, the topic may already be closed
		_ = o.results.Unsubscribe(SubscriberID)
	}()

	for {
		rec, err := o.detections.Get(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		o.Process(rec)
	}
}

// Process runs one detection cycle to completion and reports how it ended.
func (o *Orchestrator) Process(rec models.DetectionRecord) Outcome {
	o.processed.Add(1)

	d := o.limits.Decide(rec)
	log := o.log.With("detection", rec.ID)
	log.Info("speed measured",
		"vehicle_type", rec.VehicleType,
		"axles", rec.AxleCount,
		"speed_kmh", d.SpeedKmh,
		"limit_kmh", d.ApplicableLimitKmh,
		"status", d.Status)

	shown := models.DisplayRecord{
		DetectionID:        rec.ID,
		SpeedKmh:           d.SpeedKmh,
		VehicleType:        rec.VehicleType,
		Status:             d.Status,
		ApplicableLimitKmh: d.ApplicableLimitKmh,
	}
	o.emit(log, shown)

	if d.Status != models.SpeedStatusViolation {
		return OutcomeNoViolation
	}
	o.violations.Add(1)

	// Listen before triggering so a fast camera cannot answer into the void.
	if err := o.results.Subscribe(SubscriberID, o.resultCh); err != nil {
		o.publishFailures.Add(1)
		log.Error("cannot subscribe to capture results", "error", err)
		return OutcomePublishFailed
	}
	o.drainStale(log)

	trigger := models.ViolationTrigger{SpeedKmh: d.SpeedKmh, VehicleType: rec.VehicleType}
	if err := o.triggers.Publish(trigger, o.publishTimeout); err != nil {
		o.publishFailures.Add(1)
		log.Error("failed to publish capture trigger", "error", err)
		return OutcomePublishFailed
	}
	log.Debug("capture triggered")

	res, ok := o.awaitResult()
	if !ok {
		o.timeouts.Add(1)
		log.Error("capture timed out", "timeout", o.captureTimeout)
		return OutcomeTimeout
	}

	return o.handleResult(log, shown, res)
}

// awaitResult waits for the first capture result. Only the deadline ends
// the wait.
func (o *Orchestrator) awaitResult() (models.CaptureResult, bool) {
	timer := time.NewTimer(o.captureTimeout)
	defer timer.Stop()

	select {
	case res := <-o.resultCh:
		return res, true
	case <-timer.C:
		return models.CaptureResult{}, false
	}
}

func (o *Orchestrator) drainStale(log *slog.Logger) {
	for {
		select {
		case res := <-o.resultCh:
			o.staleResults.Add(1)
			log.Warn("discarding stale capture result", "plate", res.Plate)
		default:
			return
		}
	}
}

func (o *Orchestrator) handleResult(log *slog.Logger, shown models.DisplayRecord, res models.CaptureResult) Outcome {
	if res.ErrorCode != nil {
		return o.captureError(log, shown, models.ErrorPlate(*res.ErrorCode))
	}

	normalized := plate.Normalize(res.Plate)
	if normalized == "" {
		return o.captureError(log, shown, models.PlateMarkerNull)
	}
	if res.Valid {
		country, known := o.classifier.Classify(normalized)
		if known {
			o.captured.Add(1)
			log.Info("plate captured", "plate", normalized, "country", country)
			shown.Plate = normalized
			o.emit(log, shown)
			return OutcomePlateCaptured
		}
	} else if models.IsErrorMarker(normalized) {
		return o.captureError(log, shown, normalized)
	}

	o.malformed.Add(1)
	log.Warn("malformed capture discarded", "plate", res.Plate, "valid", res.Valid)
	return OutcomeMalformed
}

func (o *Orchestrator) captureError(log *slog.Logger, shown models.DisplayRecord, marker string) Outcome {
	o.captureErrors.Add(1)
	log.Error("capture failed", "marker", marker)
	shown.Plate = marker
	o.emit(log, shown)
	return OutcomeCaptureError
}

func (o *Orchestrator) emit(log *slog.Logger, rec models.DisplayRecord) {
	if !o.display.TryPut(rec) {
		o.displayDropped.Add(1)
		log.Warn("display queue full, dropping display record", "plate", rec.Plate)
	}
}

func (o *Orchestrator) Stats() Stats {
	return Stats{
		Processed:       o.processed.Load(),
		Violations:      o.violations.Load(),
		Captured:        o.captured.Load(),
		CaptureErrors:   o.captureErrors.Load(),
		Malformed:       o.malformed.Load(),
		Timeouts:        o.timeouts.Load(),
		PublishFailures: o.publishFailures.Load(),
		StaleResults:    o.staleResults.Load(),
		DisplayDropped:  o.displayDropped.Load(),
	}
}

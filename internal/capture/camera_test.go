package capture

import (
	"context"
	"testing"
	"time"

	"github.com/chrisdamba/radarsim/internal/bus"
	"github.com/chrisdamba/radarsim/internal/logging"
	"github.com/chrisdamba/radarsim/internal/models"
	"github.com/chrisdamba/radarsim/internal/plate"
	"github.com/stretchr/testify/require"
)

func newCamera(cfg models.CameraConfig) (*Camera, *bus.Topic[models.ViolationTrigger], *bus.Topic[models.CaptureResult]) {
	triggers := bus.NewTopic[models.ViolationTrigger]("triggers")
	results := bus.NewTopic[models.CaptureResult]("results")
	return New(triggers, results, cfg, WithLogger(logging.Discard())), triggers, results
}

var trigger = models.ViolationTrigger{SpeedKmh: 72, VehicleType: models.VehicleTypeLight}

func TestRespondCaptured(t *testing.T) {
	cam, _, _ := newCamera(models.CameraConfig{Seed: 1})

	for i := 0; i < 50; i++ {
		res, ok := cam.Respond(trigger)
		require.True(t, ok)
		require.True(t, res.Valid, "plate %q", res.Plate)
		require.Nil(t, res.ErrorCode)
		require.Len(t, res.Plate, models.PlateWidth)
		require.False(t, res.Timestamp.IsZero())

		_, known := plate.Mercosul{}.Classify(res.Plate)
		require.True(t, known, "plate %q", res.Plate)
	}
	require.Equal(t, uint64(50), cam.Stats().Captured)
}

func TestRespondWhitespaceQuirk(t *testing.T) {
	cam, _, _ := newCamera(models.CameraConfig{Seed: 1, WhitespaceQuirk: true})

	res, ok := cam.Respond(trigger)
	require.True(t, ok)
	require.Len(t, res.Plate, models.PlateWidth+1)
	require.Equal(t, byte(' '), res.Plate[3])
	require.True(t, res.Valid)
}

func TestRespondFailure(t *testing.T) {
	cam, _, _ := newCamera(models.CameraConfig{Seed: 1, FailureRatePercent: 100})

	res, ok := cam.Respond(trigger)
	require.True(t, ok)
	require.NotNil(t, res.ErrorCode)
	require.False(t, res.Valid)
	require.Equal(t, models.ErrorPlate(*res.ErrorCode), res.Plate)
	require.True(t, models.IsErrorMarker(res.Plate))
}

func TestRespondSilent(t *testing.T) {
	cam, _, _ := newCamera(models.CameraConfig{Seed: 1, SilenceRatePercent: 100})

	_, ok := cam.Respond(trigger)
	require.False(t, ok)
	require.Equal(t, uint64(1), cam.Stats().Silent)
}

func TestRespondMalformed(t *testing.T) {
	cam, _, _ := newCamera(models.CameraConfig{Seed: 1, MalformedRatePercent: 100})

	for i := 0; i < 20; i++ {
		res, ok := cam.Respond(trigger)
		require.True(t, ok)
		require.False(t, res.Valid, "plate %q", res.Plate)
		require.Nil(t, res.ErrorCode)
		require.NotEmpty(t, res.Plate)
		require.False(t, models.IsErrorMarker(res.Plate))
	}
}

func TestRespondMix(t *testing.T) {
	cam, _, _ := newCamera(models.CameraConfig{
		Seed:                 3,
		FailureRatePercent:   25,
		SilenceRatePercent:   25,
		MalformedRatePercent: 25,
	})

	for i := 0; i < 400; i++ {
		cam.Respond(trigger)
	}

	stats := cam.Stats()
	require.Equal(t, uint64(400), stats.Triggers)
	require.Equal(t, stats.Triggers, stats.Captured+stats.Failed+stats.Silent+stats.Malformed)
	require.NotZero(t, stats.Captured)
	require.NotZero(t, stats.Failed)
	require.NotZero(t, stats.Silent)
	require.NotZero(t, stats.Malformed)
}

func TestSameSeedSamePlates(t *testing.T) {
	a, _, _ := newCamera(models.CameraConfig{Seed: 9})
	b, _, _ := newCamera(models.CameraConfig{Seed: 9})

	for i := 0; i < 10; i++ {
		ra, _ := a.Respond(trigger)
		rb, _ := b.Respond(trigger)
		require.Equal(t, ra.Plate, rb.Plate)
	}
}

func TestRunAnswersTriggers(t *testing.T) {
	cam, triggers, results := newCamera(models.CameraConfig{Seed: 1, Latency: 10 * time.Millisecond})

	resultCh := make(chan models.CaptureResult, 1)
	require.NoError(t, results.Subscribe("test", resultCh))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cam.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := triggers.Stats().Subscribers[SubscriberID]
		return ok
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, triggers.Publish(trigger, time.Second))

	select {
	case res := <-resultCh:
		require.True(t, res.Valid)
	case <-time.After(time.Second):
		t.Fatal("no capture result")
	}

	cancel()
	require.NoError(t, <-done)
	require.Empty(t, triggers.Stats().Subscribers)
}

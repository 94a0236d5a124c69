// Package decision turns a detection into a speed verdict. Every function
// here is pure and total.
package decision

import (
	"math"

	"github.com/chrisdamba/radarsim/internal/models"
)

// Limits holds the station parameters the verdict depends on.
type Limits struct {
	DistanceMm              uint32
	LightLimitKmh           uint32
	HeavyLimitKmh           uint32
	WarningThresholdPercent uint32
}

// LimitsFromConfig extracts the decision parameters from the station config.
func LimitsFromConfig(cfg *models.Config) Limits {
	return Limits{
		DistanceMm:              cfg.SensorDistanceMm,
		LightLimitKmh:           cfg.SpeedLimitLightKmh,
		HeavyLimitKmh:           cfg.SpeedLimitHeavyKmh,
		WarningThresholdPercent: cfg.WarningThresholdPercent,
	}
}

// SpeedKmh converts the time a vehicle took to cover distanceMm into km/h,
// rounding down. A zero time delta yields 0; speeds beyond the uint32 range
// saturate at math.MaxUint32.
//
//	km/h = (mm * 3600) / (ms * 1000)
func SpeedKmh(timeDeltaMs, distanceMm uint32) uint32 {
	if timeDeltaMs == 0 {
		return 0
	}
	speed := (uint64(distanceMm) * 3600) / (uint64(timeDeltaMs) * 1000)
	if speed > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(speed)
}

// ClassifyVehicle maps an axle count to a vehicle class.
func ClassifyVehicle(axleCount uint32) models.VehicleType {
	if axleCount <= 2 {
		return models.VehicleTypeLight
	}
	return models.VehicleTypeHeavy
}

func ApplicableLimit(vehicleType models.VehicleType, lightLimit, heavyLimit uint32) uint32 {
	if vehicleType == models.VehicleTypeLight {
		return lightLimit
	}
	return heavyLimit
}

// Status grades a speed against its limit. Reaching the limit is a
// violation; reaching floor(limit*threshold/100) is a warning.
func Status(speedKmh, limitKmh, warningThresholdPercent uint32) models.SpeedStatus {
	if speedKmh >= limitKmh {
		return models.SpeedStatusViolation
	}

	warningAt := (uint64(limitKmh) * uint64(warningThresholdPercent)) / 100
	if uint64(speedKmh) >= warningAt {
		return models.SpeedStatusWarning
	}

	return models.SpeedStatusNormal
}

// Decide runs the whole pipeline for one detection.
func (l Limits) Decide(rec models.DetectionRecord) models.SpeedDecision {
	speed := SpeedKmh(rec.TimeDeltaMs, l.DistanceMm)
	limit := ApplicableLimit(rec.VehicleType, l.LightLimitKmh, l.HeavyLimitKmh)

	return models.SpeedDecision{
		SpeedKmh:           speed,
		ApplicableLimitKmh: limit,
		Status:             Status(speed, limit, l.WarningThresholdPercent),
	}
}

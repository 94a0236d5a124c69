package models

import (
	"fmt"
	"strings"
	"time"
)

type SensorState int

func (s SensorState) String() string {
	switch s {
	case SensorStateIdle:
		return "idle"
	case SensorStateCountingAxles:
		return "counting_axles"
	case SensorStateMeasuringSpeed:
		return "measuring_speed"
	default:
		return fmt.Sprintf("sensor_state(%d)", int(s))
	}
}

type VehicleType int

func (v VehicleType) String() string {
	if v == VehicleTypeLight {
		return "light"
	}
	return "heavy"
}

// UnmarshalText lets configuration files name vehicle types.
func (v *VehicleType) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "light", "leve":
		*v = VehicleTypeLight
	case "heavy", "pesado":
		*v = VehicleTypeHeavy
	default:
		return fmt.Errorf("unknown vehicle type %q", string(text))
	}
	return nil
}

func (v VehicleType) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

type SpeedStatus int

func (s SpeedStatus) String() string {
	switch s {
	case SpeedStatusNormal:
		return "normal"
	case SpeedStatusWarning:
		return "warning"
	case SpeedStatusViolation:
		return "violation"
	default:
		return fmt.Sprintf("speed_status(%d)", int(s))
	}
}

func (s SpeedStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DetectionRecord is emitted once per completed detection cycle.
type DetectionRecord struct {
	ID          string      `json:"id"`
	TimeDeltaMs uint32      `json:"time_delta_ms"`
	VehicleType VehicleType `json:"vehicle_type"`
	AxleCount   uint32      `json:"axle_count"`
	DetectedAt  time.Time   `json:"detected_at"`
}

type SpeedDecision struct {
	SpeedKmh           uint32      `json:"speed_kmh"`
	ApplicableLimitKmh uint32      `json:"applicable_limit_kmh"`
	Status             SpeedStatus `json:"status"`
}

type ViolationTrigger struct {
	SpeedKmh    uint32      `json:"speed_kmh"`
	VehicleType VehicleType `json:"vehicle_type"`
}

// CaptureResult is what the capture subsystem answers to a ViolationTrigger.
// ErrorCode is set only when the subsystem reports an explicit failure.
type CaptureResult struct {
	Plate     string    `json:"plate"`
	Valid     bool      `json:"valid"`
	Timestamp time.Time `json:"timestamp"`
	ErrorCode *int      `json:"error_code,omitempty"`
}

type DisplayRecord struct {
	DetectionID        string      `json:"detection_id"`
	SpeedKmh           uint32      `json:"speed_kmh"`
	VehicleType        VehicleType `json:"vehicle_type"`
	Status             SpeedStatus `json:"status"`
	ApplicableLimitKmh uint32      `json:"applicable_limit_kmh"`
	Plate              string      `json:"plate,omitempty"`
}

// ErrorPlate formats the plate payload for an explicit capture error code.
func ErrorPlate(code int) string {
	return fmt.Sprintf("%s%03d", PlateErrorPrefix, code)
}

// IsErrorMarker reports whether a plate payload signals a failed capture
// rather than carrying a captured plate. Only the exact marker shapes
// match: ERR followed by three digits, NULL or UNKNOWN. Real plates such
// as ERR1D23 are not markers.
func IsErrorMarker(plate string) bool {
	switch plate {
	case PlateMarkerNull, PlateMarkerUnknown:
		return true
	}
	code, ok := strings.CutPrefix(plate, PlateErrorPrefix)
	if !ok || len(code) != 3 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

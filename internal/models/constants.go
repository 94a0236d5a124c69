package models

const (
	SensorStateIdle           SensorState = iota
	SensorStateCountingAxles
	SensorStateMeasuringSpeed
)

const (
	VehicleTypeLight VehicleType = iota
	VehicleTypeHeavy
)

const (
	SpeedStatusNormal SpeedStatus = iota
	SpeedStatusWarning
	SpeedStatusViolation
)

// Plate payloads the capture subsystem uses to signal a failed capture.
const (
	PlateMarkerNull    = "NULL"
	PlateMarkerUnknown = "UNKNOWN"
	PlateErrorPrefix   = "ERR"
)

const (
	CameraModeSimulated = "simulated"
	CameraModeMQTT      = "mqtt"
)

// PlateWidth is the number of significant characters in a Mercosul plate.
const PlateWidth = 7

package models

// Vehicle is a simulated vehicle crossing the sensor pair.
type Vehicle struct {
	ID       string      `json:"id"`
	Type     VehicleType `json:"type"`
	SpeedKmh uint32      `json:"speed_kmh"`
	Axles    uint32      `json:"axles"`
}

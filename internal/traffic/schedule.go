package traffic

import (
	"time"

	"github.com/chrisdamba/radarsim/internal/models"
)

// TravelTime is how long a vehicle at speedKmh takes to cover distanceMm.
func TravelTime(distanceMm, speedKmh uint32) time.Duration {
	if speedKmh == 0 {
		return 0
	}
	// mm * 3600 / km/h is microseconds
	return time.Duration(uint64(distanceMm)*3600/uint64(speedKmh)) * time.Microsecond
}

// Schedule enqueues the sensor edges of v starting at offset start and
// returns the offset of its final edge.
//
// Sensor 1 fires once per axle, axleGap apart. Sensor 2 fires twice: once
// halfway through the crossing and once a full travel time after the last
// axle, which is the interval the station measures.
func Schedule(q *models.EventQueue, v models.Vehicle, start, axleGap time.Duration, distanceMm uint32) time.Duration {
	at := start
	for i := uint32(0); i < v.Axles; i++ {
		if i > 0 {
			at += axleGap
		}
		q.Enqueue(&models.Event{At: at, Type: models.EventSensor1Edge, VehicleID: v.ID})
	}

	travel := TravelTime(distanceMm, v.SpeedKmh)
	q.Enqueue(&models.Event{At: at + travel/2, Type: models.EventSensor2Edge, VehicleID: v.ID})
	q.Enqueue(&models.Event{At: at + travel, Type: models.EventSensor2Edge, VehicleID: v.ID, Final: true})

	return at + travel
}

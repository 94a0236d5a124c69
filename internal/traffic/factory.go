package traffic

import (
	"math/rand"

	"github.com/chrisdamba/radarsim/internal/models"
	"github.com/jaswdr/faker"
	"github.com/lucsky/cuid"
)

// VehicleFactory builds vehicles from scenario entries, or at random when
// no scenario is configured.
type VehicleFactory struct {
	fake     faker.Faker
	scenario []models.VehicleSpec
	next     int
}

func NewVehicleFactory(seed int64, scenario []models.VehicleSpec) *VehicleFactory {
	return &VehicleFactory{
		fake:     faker.NewWithSeed(rand.NewSource(seed)),
		scenario: scenario,
	}
}

// CreateVehicle returns the next scenario vehicle, cycling through the
// scenario, or a random one.
func (vf *VehicleFactory) CreateVehicle() models.Vehicle {
	if len(vf.scenario) == 0 {
		return vf.randomVehicle()
	}

	spec := vf.scenario[vf.next%len(vf.scenario)]
	vf.next++

	axles := spec.Axles
	if axles == 0 {
		axles = 2
		if spec.Type == models.VehicleTypeHeavy {
			axles = 3
		}
	}

	return models.Vehicle{
		ID:       cuid.New(),
		Type:     spec.Type,
		SpeedKmh: spec.SpeedKmh,
		Axles:    axles,
	}
}

func (vf *VehicleFactory) randomVehicle() models.Vehicle {
	// roughly one heavy vehicle in five
	if vf.fake.IntBetween(1, 5) == 1 {
		return models.Vehicle{
			ID:       cuid.New(),
			Type:     models.VehicleTypeHeavy,
			SpeedKmh: uint32(vf.fake.IntBetween(25, 65)),
			Axles:    uint32(vf.fake.IntBetween(3, 6)),
		}
	}
	return models.Vehicle{
		ID:       cuid.New(),
		Type:     models.VehicleTypeLight,
		SpeedKmh: uint32(vf.fake.IntBetween(35, 85)),
		Axles:    2,
	}
}

// README: Matching requests, scored candidates and scoring weights.
package matching

import (
	"context"
	"time"

	"campusride/internal/modules/driver"
	"campusride/internal/modules/fare"
	"campusride/internal/types"
)

const (
	WeightDistance = 0.4
	WeightRating   = 0.3
	WeightVehicle  = 0.3
	// distanceHorizonKm is where the distance score reaches zero.
	distanceHorizonKm = 10.0
)

type Config struct {
	OracleTimeout   time.Duration
	MaxClaimRetries int
	Parallelism     int
}

func DefaultConfig() Config {
	return Config{OracleTimeout: 2 * time.Second, MaxClaimRetries: 3, Parallelism: 8}
}

type Request struct {
	RideID       types.ID
	VehicleClass fare.VehicleClass
	Pickup       types.Location
}

// ClaimFunc atomically binds the ride to driverID. It returns an error wrapping
// apperr.ErrConflict when the driver was taken first.
type ClaimFunc func(ctx context.Context, driverID types.ID) error

type Scored struct {
	Driver     driver.Driver
	DistanceKm float64
	Score      float64
	// Err is the oracle failure that forced Score to zero, if any.
	Err error
}

// Candidates is the slice of the driver pool matching reads from.
type Candidates interface {
	Candidates(class fare.VehicleClass) []driver.Driver
}

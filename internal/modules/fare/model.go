// README: Vehicle classes, rider roles and the per-class rate table.
package fare

import (
	"fmt"
	"math"

	"campusride/internal/apperr"
	"campusride/internal/types"
)

type VehicleClass string

const (
	ClassCab     VehicleClass = "cab"
	ClassToto    VehicleClass = "toto"
	ClassAuto    VehicleClass = "auto"
	ClassMoto    VehicleClass = "moto"
	ClassShuttle VehicleClass = "shuttle"
	ClassBike    VehicleClass = "bike"
)

var Classes = []VehicleClass{ClassCab, ClassToto, ClassAuto, ClassMoto, ClassShuttle, ClassBike}

func ParseVehicleClass(s string) (VehicleClass, error) {
	for _, c := range Classes {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown vehicle class %q", apperr.ErrInvalidInput, s)
}

type RiderRole string

const (
	RoleStudent RiderRole = "student"
	RoleCollege RiderRole = "college"
	RoleNormal  RiderRole = "normal_user"
)

func ParseRiderRole(s string) (RiderRole, error) {
	switch r := RiderRole(s); r {
	case RoleStudent, RoleCollege, RoleNormal:
		return r, nil
	case "":
		return RoleNormal, nil
	}
	return "", fmt.Errorf("%w: unknown rider role %q", apperr.ErrInvalidInput, s)
}

const (
	StudentDiscount = 0.5
	SharedDiscount  = 0.8
)

type Rate struct {
	PerKm   float64 `json:"per_km"`
	Minimum float64 `json:"minimum"`
}

type RateTable map[VehicleClass]Rate

// DefaultRates is the campus tariff. Bikes are free.
func DefaultRates() RateTable {
	return RateTable{
		ClassCab:     {PerKm: 15, Minimum: 100},
		ClassToto:    {PerKm: 10, Minimum: 50},
		ClassAuto:    {PerKm: 12, Minimum: 60},
		ClassMoto:    {PerKm: 8, Minimum: 40},
		ClassShuttle: {PerKm: 5, Minimum: 30},
		ClassBike:    {PerKm: 0, Minimum: 0},
	}
}

func (t RateTable) Validate() error {
	for _, c := range Classes {
		if _, ok := t[c]; !ok {
			return fmt.Errorf("%w: no rate for %s", apperr.ErrInvalidInput, c)
		}
	}
	for c, r := range t {
		if _, err := ParseVehicleClass(string(c)); err != nil {
			return err
		}
		if r.PerKm < 0 || r.Minimum < 0 || math.IsNaN(r.PerKm) || math.IsNaN(r.Minimum) {
			return fmt.Errorf("%w: negative rate for %s", apperr.ErrInvalidInput, c)
		}
	}
	return nil
}

// Participant is one rider's share of a shared trip.
type Participant struct {
	RiderID types.ID `json:"rider_id"`
	LegKm   float64  `json:"leg_km"`
}

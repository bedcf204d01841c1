// README: Driver aggregate as held by the in-memory pool.
package driver

import (
	"time"

	"campusride/internal/modules/fare"
	"campusride/internal/types"
)

const MaxRating = 5.0

type Driver struct {
	ID            types.ID          `json:"id"`
	Name          string            `json:"name"`
	Phone         string            `json:"phone"`
	VehicleNumber string            `json:"vehicle_number"`
	VehicleClass  fare.VehicleClass `json:"vehicle_class"`
	Available     bool              `json:"available"`
	// OffDuty hides an idle driver from matching. It never releases or claims a ride.
	OffDuty       bool              `json:"off_duty"`
	Location      types.Location    `json:"location"`
	Rating        float64           `json:"rating"`
	RatedRides    int               `json:"rated_rides"`
	ActiveRide    types.ID          `json:"active_ride,omitempty"`
	Seq           int64             `json:"seq"`
	RegisteredAt  time.Time         `json:"registered_at"`
	// Version increases on every change and orders mirror writes.
	Version       int64             `json:"version"`
}

// Busy reports whether the driver is held by a ride.
func (d Driver) Busy() bool {
	return d.ActiveRide != ""
}

// README: Ride aggregate, kind-specific details and the lifecycle state machine.
package ride

import (
	"time"

	"campusride/internal/modules/bargain"
	"campusride/internal/modules/fare"
	"campusride/internal/types"
)

type State string

const (
	StateNone       State = "none"
	StatePending    State = "pending"
	StateAccepted   State = "accepted"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateCancelled  State = "cancelled"
)

type Kind string

const (
	KindRealtime Kind = "realtime"
	KindShuttle  Kind = "shuttle"
	KindBike     Kind = "bike"
)

func KindFor(class fare.VehicleClass) Kind {
	switch class {
	case fare.ClassShuttle:
		return KindShuttle
	case fare.ClassBike:
		return KindBike
	default:
		return KindRealtime
	}
}

type ShuttleRoute string

const (
	RouteA ShuttleRoute = "A"
	RouteB ShuttleRoute = "B"
	RouteC ShuttleRoute = "C"
)

const DefaultShuttleCapacity = 20

type ShuttleDetails struct {
	Route      ShuttleRoute `json:"route"`
	Capacity   int          `json:"capacity"`
	Passengers []types.ID   `json:"passengers"`
}

type BikeType string

const (
	BikeCycle BikeType = "cycle"
	BikeE     BikeType = "e_bike"
)

type BikeDetails struct {
	BikeType BikeType `json:"bike_type"`
}

type BillingStatus string

const (
	BillingNone      BillingStatus = ""
	BillingPending   BillingStatus = "pending"
	BillingSettled   BillingStatus = "settled"
	BillingUnsettled BillingStatus = "unsettled"
	BillingRefunded  BillingStatus = "refunded"
)

type Billing struct {
	Status        BillingStatus `json:"status"`
	TransactionID string        `json:"transaction_id,omitempty"`
	RefundID      string        `json:"refund_id,omitempty"`
	LastError     string        `json:"last_error,omitempty"`
}

type Ride struct {
	ID           types.ID          `json:"id"`
	Kind         Kind              `json:"kind"`
	VehicleClass fare.VehicleClass `json:"vehicle_class"`
	State        State             `json:"state"`
	Version      int               `json:"version"`

	Pickup     types.Location `json:"pickup"`
	Dropoff    types.Location `json:"dropoff"`
	DistanceKm float64        `json:"distance_km"`
	EtaMinutes int            `json:"eta_minutes"`
	Fare       float64        `json:"fare"`

	RiderID   types.ID       `json:"rider_id"`
	RiderRole fare.RiderRole `json:"rider_role"`
	DriverID  types.ID       `json:"driver_id,omitempty"`
	OTP       string         `json:"otp"`

	Shared    bool                 `json:"shared"`
	CoRiders  []types.ID           `json:"co_riders,omitempty"`
	FareSplit map[types.ID]float64 `json:"fare_split,omitempty"`
	SplitLegs []fare.Participant   `json:"split_legs,omitempty"`

	Shuttle *ShuttleDetails `json:"shuttle,omitempty"`
	Bike    *BikeDetails    `json:"bike,omitempty"`

	Billing Billing `json:"billing"`
	Rated   bool    `json:"rated"`
	Rating  float64 `json:"rating,omitempty"`

	// BargainHistory is filled from the bargain ledger on reads and never stored with the ride.
	BargainHistory []bargain.Offer `json:"bargain_history,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	AcceptedAt   *time.Time `json:"accepted_at,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`
}

// Clone returns a deep copy so stores and callers never share mutable state.
func (r *Ride) Clone() *Ride {
	c := *r
	c.CoRiders = append([]types.ID(nil), r.CoRiders...)
	c.SplitLegs = append([]fare.Participant(nil), r.SplitLegs...)
	c.BargainHistory = append([]bargain.Offer(nil), r.BargainHistory...)
	if r.FareSplit != nil {
		c.FareSplit = make(map[types.ID]float64, len(r.FareSplit))
		for k, v := range r.FareSplit {
			c.FareSplit[k] = v
		}
	}
	if r.Shuttle != nil {
		s := *r.Shuttle
		s.Passengers = append([]types.ID(nil), r.Shuttle.Passengers...)
		c.Shuttle = &s
	}
	if r.Bike != nil {
		b := *r.Bike
		c.Bike = &b
	}
	c.AcceptedAt = cloneTime(r.AcceptedAt)
	c.StartedAt = cloneTime(r.StartedAt)
	c.CompletedAt = cloneTime(r.CompletedAt)
	c.CancelledAt = cloneTime(r.CancelledAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

const (
	ActorRider    = "rider"
	ActorDriver   = "driver"
	ActorOperator = "operator"
	ActorSystem   = "system"
)

type Event struct {
	ID        int64     `json:"id"`
	RideID    types.ID  `json:"ride_id"`
	From      State     `json:"from"`
	To        State     `json:"to"`
	ActorType string    `json:"actor_type"`
	ActorID   types.ID  `json:"actor_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AllowedTransitions is the ride lifecycle as code. Completed and cancelled are terminal.
var AllowedTransitions = map[State][]State{
	StatePending:    {StateAccepted, StateCancelled},
	StateAccepted:   {StateInProgress, StateCancelled},
	StateInProgress: {StateCompleted, StateCancelled},
}

func CanTransition(from, to State) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// HoldsDriver reports whether a ride in state s must have a driver assigned.
func (s State) HoldsDriver() bool {
	return s == StateAccepted || s == StateInProgress || s == StateCompleted
}

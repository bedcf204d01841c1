// README: Ride service implements the lifecycle transitions and keeps ride and driver in step.
package ride

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"go.uber.org/zap"

	"campusride/internal/apperr"
	"campusride/internal/events"
	"campusride/internal/geo"
	"campusride/internal/logging"
	"campusride/internal/modules/bargain"
	"campusride/internal/modules/driver"
	"campusride/internal/modules/fare"
	"campusride/internal/modules/matching"
	"campusride/internal/observability"
	"campusride/internal/payment"
	"campusride/internal/types"
)

// Drivers is the part of the driver pool the lifecycle mutates.
type Drivers interface {
	Claim(ctx context.Context, driverID, rideID types.ID, commit func() error) error
	Release(ctx context.Context, driverID, rideID types.ID, commit func() error) error
	RecordRating(ctx context.Context, id types.ID, rating float64) (float64, error)
}

type Matcher interface {
	Match(ctx context.Context, req matching.Request, claim matching.ClaimFunc) (*driver.Driver, error)
}

type Config struct {
	PaymentTimeout  time.Duration
	ShuttleCapacity int
}

type Deps struct {
	Store     Store
	Fares     *fare.Engine
	Drivers   Drivers
	Matcher   Matcher
	Ledger    *bargain.Ledger
	Oracle    geo.Oracle
	Payments  payment.Oracle
	Publisher events.Publisher
	Logger    *zap.Logger
	Metrics   *observability.Metrics
}

type Service struct {
	store     Store
	fares     *fare.Engine
	drivers   Drivers
	matcher   Matcher
	ledger    *bargain.Ledger
	oracle    geo.Oracle
	payments  payment.Oracle
	publisher events.Publisher
	log       *zap.Logger
	metrics   *observability.Metrics
	cfg       Config

	locks *keyedMutex
	now   func() time.Time
	otp   func() (string, error)
}

func NewService(deps Deps, cfg Config) *Service {
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = 5 * time.Second
	}
	if cfg.ShuttleCapacity <= 0 {
		cfg.ShuttleCapacity = DefaultShuttleCapacity
	}
	log := logging.OrNop(deps.Logger)
	pub := deps.Publisher
	if pub == nil {
		pub = events.NewLogPublisher(log)
	}
	return &Service{
		store:     deps.Store,
		fares:     deps.Fares,
		drivers:   deps.Drivers,
		matcher:   deps.Matcher,
		ledger:    deps.Ledger,
		oracle:    deps.Oracle,
		payments:  deps.Payments,
		publisher: pub,
		log:       log,
		metrics:   deps.Metrics,
		cfg:       cfg,
		locks:     newKeyedMutex(),
		now:       time.Now,
		otp:       newOTP,
	}
}

type CreateCommand struct {
	RiderID      types.ID
	RiderRole    fare.RiderRole
	VehicleClass fare.VehicleClass
	Pickup       types.Location
	Dropoff      types.Location
	Shared       bool
	ShuttleRoute ShuttleRoute
	BikeType     BikeType
}

type MatchCommand struct {
	RideID types.ID
}

type StartCommand struct {
	RideID   types.ID
	DriverID types.ID
	OTP      string
}

type CompleteCommand struct {
	RideID   types.ID
	DriverID types.ID
}

type CancelCommand struct {
	RideID    types.ID
	ActorType string
	ActorID   types.ID
	Reason    string
}

type RateCommand struct {
	RideID  types.ID
	RiderID types.ID
	Rating  float64
}

type BargainCommand struct {
	RideID    types.ID
	OfferedBy types.ID
	Amount    float64
}

type AcceptOfferCommand struct {
	RideID  types.ID
	ActorID types.ID
	// OfferID, when set, must still be the latest offer.
	OfferID int64
}

type SplitCommand struct {
	RideID       types.ID
	Participants []fare.Participant
}

type BookSeatCommand struct {
	RideID    types.ID
	RiderID   types.ID
	RiderRole fare.RiderRole
}

type RefundCommand struct {
	RideID    types.ID
	ActorType string
	Reason    string
}

// Create quotes and stores a pending ride, then tries to match it once. Finding no driver
// is not an error: the ride stays pending and Match can be retried.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Ride, error) {
	r, err := s.newRide(cmd)
	if err != nil {
		return nil, err
	}

	route, err := s.oracle.RouteInfo(ctx, cmd.Pickup, cmd.Dropoff)
	if err != nil {
		if !errors.Is(err, apperr.ErrInvalidInput) && !errors.Is(err, apperr.ErrOracleTimeout) {
			err = fmt.Errorf("%w: %v", apperr.ErrOracleTimeout, err)
		}
		return nil, err
	}
	r.DistanceKm = route.DistanceKm
	r.EtaMinutes = route.EtaMinutes
	if r.Fare, err = s.fares.Quote(route.DistanceKm, r.VehicleClass, r.RiderRole, r.Shared); err != nil {
		return nil, err
	}
	if r.OTP, err = s.otp(); err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}

	if err := s.store.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create ride: %w", err)
	}
	s.record(ctx, r, StateNone, ActorRider, r.RiderID)

	matched, err := s.Match(ctx, MatchCommand{RideID: r.ID})
	switch {
	case err == nil:
		return matched, nil
	case errors.Is(err, apperr.ErrUnavailable), errors.Is(err, apperr.ErrInvalidTransition):
		s.log.Info("ride left pending", zap.String("ride_id", string(r.ID)), zap.Error(err))
		return s.Get(ctx, r.ID)
	default:
		return nil, err
	}
}

func (s *Service) newRide(cmd CreateCommand) (*Ride, error) {
	if cmd.RiderID == "" {
		return nil, fmt.Errorf("%w: rider is required", apperr.ErrInvalidInput)
	}
	class, err := fare.ParseVehicleClass(string(cmd.VehicleClass))
	if err != nil {
		return nil, err
	}
	role, err := fare.ParseRiderRole(string(cmd.RiderRole))
	if err != nil {
		return nil, err
	}
	if cmd.Pickup == "" || cmd.Dropoff == "" {
		return nil, fmt.Errorf("%w: pickup and dropoff are required", apperr.ErrInvalidInput)
	}

	r := &Ride{
		ID:           types.NewID(),
		Kind:         KindFor(class),
		VehicleClass: class,
		State:        StatePending,
		Pickup:       cmd.Pickup,
		Dropoff:      cmd.Dropoff,
		RiderID:      cmd.RiderID,
		RiderRole:    role,
		Shared:       cmd.Shared,
		CreatedAt:    s.now().UTC(),
	}
	switch r.Kind {
	case KindShuttle:
		if role != fare.RoleStudent {
			return nil, fmt.Errorf("%w: shuttles are for students only", apperr.ErrForbidden)
		}
		switch cmd.ShuttleRoute {
		case RouteA, RouteB, RouteC:
		default:
			return nil, fmt.Errorf("%w: unknown shuttle route %q", apperr.ErrInvalidInput, cmd.ShuttleRoute)
		}
		r.Shuttle = &ShuttleDetails{
			Route:      cmd.ShuttleRoute,
			Capacity:   s.cfg.ShuttleCapacity,
			Passengers: []types.ID{cmd.RiderID},
		}
	case KindBike:
		switch cmd.BikeType {
		case BikeCycle, BikeE:
		default:
			return nil, fmt.Errorf("%w: unknown bike type %q", apperr.ErrInvalidInput, cmd.BikeType)
		}
		r.Bike = &BikeDetails{BikeType: cmd.BikeType}
	}
	return r, nil
}

// Match asks the matching engine for a driver. The ride lock is only taken inside the
// claim, so a concurrent cancel never waits on distance lookups.
func (s *Service) Match(ctx context.Context, cmd MatchCommand) (*Ride, error) {
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(r.State, StateAccepted) {
		return nil, fmt.Errorf("%w: cannot match a %s ride", apperr.ErrInvalidTransition, r.State)
	}

	var accepted *Ride
	claim := func(ctx context.Context, driverID types.ID) error {
		unlock := s.locks.Lock(cmd.RideID)
		defer unlock()

		cur, err := s.store.Get(ctx, cmd.RideID)
		if err != nil {
			return err
		}
		if !CanTransition(cur.State, StateAccepted) {
			return fmt.Errorf("%w: ride %s is %s", apperr.ErrInvalidTransition, cur.ID, cur.State)
		}
		from := cur.State
		next := cur.Clone()
		next.State = StateAccepted
		next.DriverID = driverID
		next.AcceptedAt = s.timestamp()

		err = s.drivers.Claim(ctx, driverID, cur.ID, func() error {
			if err := s.write(ctx, next, from); err != nil {
				if errors.Is(err, apperr.ErrConflict) {
					return fmt.Errorf("%w: ride %s changed while claiming", apperr.ErrInvalidTransition, cur.ID)
				}
				return err
			}
			return nil
		})
		if err != nil {
			return err
		}
		s.record(ctx, next, from, ActorSystem, "")
		accepted = next
		return nil
	}

	if _, err := s.matcher.Match(ctx, matching.Request{
		RideID:       r.ID,
		VehicleClass: r.VehicleClass,
		Pickup:       r.Pickup,
	}, claim); err != nil {
		return nil, err
	}
	return s.withHistory(ctx, accepted)
}

func (s *Service) Start(ctx context.Context, cmd StartCommand) (*Ride, error) {
	unlock := s.locks.Lock(cmd.RideID)
	defer unlock()

	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(r.State, StateInProgress) {
		return nil, fmt.Errorf("%w: cannot start a %s ride", apperr.ErrInvalidTransition, r.State)
	}
	if cmd.DriverID != r.DriverID {
		return nil, fmt.Errorf("%w: only the assigned driver can start the ride", apperr.ErrForbidden)
	}
	if cmd.OTP != r.OTP {
		return nil, fmt.Errorf("%w: wrong otp", apperr.ErrInvalidInput)
	}

	from := r.State
	next := r.Clone()
	next.State = StateInProgress
	next.StartedAt = s.timestamp()
	if err := s.write(ctx, next, from); err != nil {
		return nil, err
	}
	s.record(ctx, next, from, ActorDriver, cmd.DriverID)
	return s.withHistory(ctx, next)
}

// Complete finishes the trip and frees the driver in one step, then charges the rider.
// A failed charge leaves the ride completed with billing unsettled and returns the ride
// together with the payment error.
func (s *Service) Complete(ctx context.Context, cmd CompleteCommand) (*Ride, error) {
	next, err := s.complete(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return s.charge(ctx, next.ID)
}

func (s *Service) complete(ctx context.Context, cmd CompleteCommand) (*Ride, error) {
	unlock := s.locks.Lock(cmd.RideID)
	defer unlock()

	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(r.State, StateCompleted) {
		return nil, fmt.Errorf("%w: cannot complete a %s ride", apperr.ErrInvalidTransition, r.State)
	}
	if cmd.DriverID != r.DriverID {
		return nil, fmt.Errorf("%w: only the assigned driver can complete the ride", apperr.ErrForbidden)
	}

	from := r.State
	next := r.Clone()
	next.State = StateCompleted
	next.CompletedAt = s.timestamp()
	next.Billing = Billing{Status: BillingPending}
	if err := s.release(ctx, r, func() error {
		return s.write(ctx, next, from)
	}); err != nil {
		return nil, err
	}
	s.record(ctx, next, from, ActorDriver, cmd.DriverID)
	return next, nil
}

// SettleBilling retries the charge for a completed ride whose payment failed.
func (s *Service) SettleBilling(ctx context.Context, id types.ID) (*Ride, error) {
	unlock := s.locks.Lock(id)
	r, err := s.store.Get(ctx, id)
	if err != nil {
		unlock()
		return nil, err
	}
	if r.State != StateCompleted || r.Billing.Status != BillingUnsettled {
		unlock()
		return nil, fmt.Errorf("%w: billing is %q on a %s ride", apperr.ErrInvalidTransition, r.Billing.Status, r.State)
	}
	next := r.Clone()
	next.Billing.Status = BillingPending
	err = s.write(ctx, next, next.State)
	unlock()
	if err != nil {
		return nil, err
	}
	return s.charge(ctx, id)
}

// charge calls the payment oracle without holding the ride lock and records the outcome.
// The ride must be completed with billing pending.
func (s *Service) charge(ctx context.Context, id types.ID) (*Ride, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	billing := Billing{Status: BillingSettled}
	var payErr error
	if r.Fare > 0 {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.PaymentTimeout)
		tx, err := s.payments.Charge(callCtx, payment.ChargeRequest{RideID: r.ID, RiderID: r.RiderID, Amount: r.Fare})
		cancel()
		if tx != nil {
			billing.TransactionID = tx.ID
		}
		if err != nil {
			payErr = paymentError(err)
			billing.Status = BillingUnsettled
			billing.LastError = err.Error()
		}
	}
	s.observePayment("charge", payErr)

	unlock := s.locks.Lock(id)
	defer unlock()
	cur, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next := cur.Clone()
	next.Billing = billing
	if err := s.write(ctx, next, next.State); err != nil {
		return nil, err
	}
	s.publish(ctx, next.ID, "ride.billing", next.Billing)
	if payErr != nil {
		s.log.Warn("charge failed, billing left unsettled",
			zap.String("ride_id", string(id)), zap.Error(payErr))
		out, _ := s.withHistory(ctx, next)
		return out, payErr
	}
	return s.withHistory(ctx, next)
}

func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Ride, error) {
	if cmd.ActorType != ActorRider && cmd.ActorType != ActorOperator {
		return nil, fmt.Errorf("%w: only riders and operators can cancel", apperr.ErrForbidden)
	}

	unlock := s.locks.Lock(cmd.RideID)
	defer unlock()

	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(r.State, StateCancelled) {
		return nil, fmt.Errorf("%w: cannot cancel a %s ride", apperr.ErrInvalidTransition, r.State)
	}
	if cmd.ActorType == ActorRider && cmd.ActorID != r.RiderID {
		return nil, fmt.Errorf("%w: ride belongs to another rider", apperr.ErrForbidden)
	}

	from := r.State
	next := r.Clone()
	next.State = StateCancelled
	next.DriverID = ""
	next.CancelledAt = s.timestamp()
	next.CancelReason = cmd.Reason
	commit := func() error { return s.write(ctx, next, from) }
	if r.DriverID != "" {
		err = s.release(ctx, r, commit)
	} else {
		err = commit()
	}
	if err != nil {
		return nil, err
	}
	s.record(ctx, next, from, cmd.ActorType, cmd.ActorID)
	return s.withHistory(ctx, next)
}

// Rate folds the rider's rating into the driver's average. Each ride can be rated once.
func (s *Service) Rate(ctx context.Context, cmd RateCommand) (*Ride, error) {
	if cmd.Rating < 0 || cmd.Rating > driver.MaxRating || math.IsNaN(cmd.Rating) {
		return nil, fmt.Errorf("%w: rating must be within [0,5]", apperr.ErrInvalidInput)
	}

	unlock := s.locks.Lock(cmd.RideID)
	defer unlock()

	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if r.State != StateCompleted || r.DriverID == "" {
		return nil, fmt.Errorf("%w: only completed rides can be rated", apperr.ErrInvalidTransition)
	}
	if cmd.RiderID != r.RiderID {
		return nil, fmt.Errorf("%w: ride belongs to another rider", apperr.ErrForbidden)
	}
	if r.Rated {
		return nil, fmt.Errorf("%w: ride already rated", apperr.ErrConflict)
	}

	if _, err := s.drivers.RecordRating(ctx, r.DriverID, cmd.Rating); err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("record driver rating: %w", err)
		}
		s.log.Warn("rated driver is not in the pool",
			zap.String("ride_id", string(r.ID)), zap.String("driver_id", string(r.DriverID)))
	}

	next := r.Clone()
	next.Rated = true
	next.Rating = cmd.Rating
	if err := s.write(ctx, next, next.State); err != nil {
		return nil, err
	}
	return s.withHistory(ctx, next)
}

// Bargain records a counter-offer. Offers are only taken while the ride is pending.
func (s *Service) Bargain(ctx context.Context, cmd BargainCommand) (*bargain.Offer, error) {
	unlock := s.locks.Lock(cmd.RideID)
	defer unlock()

	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if r.State != StatePending {
		return nil, fmt.Errorf("%w: cannot bargain on a %s ride", apperr.ErrInvalidTransition, r.State)
	}
	offer, err := s.ledger.RecordOffer(ctx, r.ID, cmd.OfferedBy, cmd.Amount)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, r.ID, "ride.offer", offer)
	return offer, nil
}

func (s *Service) LatestOffer(ctx context.Context, rideID types.ID) (*bargain.Offer, error) {
	if _, err := s.store.Get(ctx, rideID); err != nil {
		return nil, err
	}
	offer, ok, err := s.ledger.LatestOffer(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no offers on ride %s", apperr.ErrNotFound, rideID)
	}
	return offer, nil
}

// AcceptOffer sets the fare to the latest offer. The bidder cannot accept their own offer.
func (s *Service) AcceptOffer(ctx context.Context, cmd AcceptOfferCommand) (*Ride, error) {
	unlock := s.locks.Lock(cmd.RideID)
	defer unlock()

	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if r.State != StatePending {
		return nil, fmt.Errorf("%w: cannot accept an offer on a %s ride", apperr.ErrInvalidTransition, r.State)
	}
	offer, ok, err := s.ledger.LatestOffer(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no offers on ride %s", apperr.ErrNotFound, r.ID)
	}
	if cmd.OfferID != 0 && cmd.OfferID != offer.ID {
		return nil, fmt.Errorf("%w: offer %d is no longer the latest", apperr.ErrConflict, cmd.OfferID)
	}
	if cmd.ActorID == "" || cmd.ActorID == offer.OfferedBy {
		return nil, fmt.Errorf("%w: an offer must be accepted by the other party", apperr.ErrForbidden)
	}

	next := r.Clone()
	next.Fare = offer.Amount
	if len(next.SplitLegs) > 0 {
		if next.FareSplit, err = s.fares.SplitFare(next.Fare, next.SplitLegs); err != nil {
			return nil, err
		}
	}
	if err := s.write(ctx, next, next.State); err != nil {
		return nil, err
	}
	s.publish(ctx, next.ID, "ride.fare_agreed", offer)
	return s.withHistory(ctx, next)
}

// SplitFare divides a shared ride's fare. The booking rider must be one of the participants.
func (s *Service) SplitFare(ctx context.Context, cmd SplitCommand) (*Ride, error) {
	unlock := s.locks.Lock(cmd.RideID)
	defer unlock()

	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if !r.Shared {
		return nil, fmt.Errorf("%w: cannot split fare on a non-shared ride", apperr.ErrInvalidInput)
	}
	if r.State == StateCancelled {
		return nil, fmt.Errorf("%w: ride is cancelled", apperr.ErrInvalidTransition)
	}
	split, err := s.fares.SplitFare(r.Fare, cmd.Participants)
	if err != nil {
		return nil, err
	}
	if _, ok := split[r.RiderID]; !ok {
		return nil, fmt.Errorf("%w: booking rider must share the fare", apperr.ErrInvalidInput)
	}

	next := r.Clone()
	next.FareSplit = split
	next.SplitLegs = append([]fare.Participant(nil), cmd.Participants...)
	next.CoRiders = next.CoRiders[:0]
	for _, p := range cmd.Participants {
		if p.RiderID != r.RiderID {
			next.CoRiders = append(next.CoRiders, p.RiderID)
		}
	}
	if err := s.write(ctx, next, next.State); err != nil {
		return nil, err
	}
	return s.withHistory(ctx, next)
}

// BookSeat adds a student passenger to a shuttle that has not left yet.
func (s *Service) BookSeat(ctx context.Context, cmd BookSeatCommand) (*Ride, error) {
	if cmd.RiderID == "" {
		return nil, fmt.Errorf("%w: rider is required", apperr.ErrInvalidInput)
	}
	unlock := s.locks.Lock(cmd.RideID)
	defer unlock()

	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if r.Kind != KindShuttle || r.Shuttle == nil {
		return nil, fmt.Errorf("%w: seats can only be booked on shuttles", apperr.ErrInvalidInput)
	}
	if r.State != StatePending && r.State != StateAccepted {
		return nil, fmt.Errorf("%w: cannot book a seat on a %s shuttle", apperr.ErrInvalidTransition, r.State)
	}
	if cmd.RiderRole != fare.RoleStudent {
		return nil, fmt.Errorf("%w: shuttles are for students only", apperr.ErrForbidden)
	}
	for _, p := range r.Shuttle.Passengers {
		if p == cmd.RiderID {
			return nil, fmt.Errorf("%w: rider %s already booked", apperr.ErrConflict, cmd.RiderID)
		}
	}
	if len(r.Shuttle.Passengers) >= r.Shuttle.Capacity {
		return nil, fmt.Errorf("%w: shuttle is full", apperr.ErrConflict)
	}

	next := r.Clone()
	next.Shuttle.Passengers = append(next.Shuttle.Passengers, cmd.RiderID)
	if err := s.write(ctx, next, next.State); err != nil {
		return nil, err
	}
	return s.withHistory(ctx, next)
}

// Refund reverses the settled charge of a completed ride. The ride state is unchanged.
func (s *Service) Refund(ctx context.Context, cmd RefundCommand) (*Ride, error) {
	if cmd.ActorType != ActorOperator {
		return nil, fmt.Errorf("%w: only operators can refund", apperr.ErrForbidden)
	}
	unlock := s.locks.Lock(cmd.RideID)
	defer unlock()

	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if r.State != StateCompleted || r.Billing.Status != BillingSettled || r.Billing.TransactionID == "" {
		return nil, fmt.Errorf("%w: nothing to refund on ride %s", apperr.ErrInvalidTransition, r.ID)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.PaymentTimeout)
	tx, err := s.payments.Refund(callCtx, r.Billing.TransactionID)
	cancel()
	if err != nil {
		err = paymentError(err)
		s.observePayment("refund", err)
		return nil, err
	}
	s.observePayment("refund", nil)

	next := r.Clone()
	next.Billing.Status = BillingRefunded
	next.Billing.RefundID = tx.ID
	next.Billing.LastError = ""
	if err := s.write(ctx, next, next.State); err != nil {
		return nil, err
	}
	s.log.Info("ride refunded",
		zap.String("ride_id", string(r.ID)),
		zap.String("refund_id", tx.ID),
		zap.String("reason", cmd.Reason))
	s.publish(ctx, next.ID, "ride.billing", next.Billing)
	return s.withHistory(ctx, next)
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Ride, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withHistory(ctx, r)
}

func (s *Service) Events(ctx context.Context, id types.ID) ([]Event, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Events(ctx, id)
}

// release frees the ride's driver and commits the ride change under the pool lock. A driver
// the pool no longer knows, for example after a restart without the Redis mirror, cannot
// hold the ride back: the change is committed on its own.
func (s *Service) release(ctx context.Context, r *Ride, commit func() error) error {
	called := false
	err := s.drivers.Release(ctx, r.DriverID, r.ID, func() error {
		called = true
		return commit()
	})
	if err == nil || called || !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	s.log.Warn("driver missing from pool, committing ride without release",
		zap.String("ride_id", string(r.ID)), zap.String("driver_id", string(r.DriverID)))
	return commit()
}

func (s *Service) write(ctx context.Context, next *Ride, from State) error {
	ok, err := s.store.Update(ctx, next, from)
	if err != nil {
		return fmt.Errorf("update ride: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: ride %s changed concurrently", apperr.ErrConflict, next.ID)
	}
	return nil
}

// record appends the audit event and publishes it. Both are best-effort.
func (s *Service) record(ctx context.Context, r *Ride, from State, actorType string, actorID types.ID) {
	e := &Event{
		RideID:    r.ID,
		From:      from,
		To:        r.State,
		ActorType: actorType,
		ActorID:   actorID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.AppendEvent(ctx, e); err != nil {
		s.log.Warn("append ride event failed", zap.String("ride_id", string(r.ID)), zap.Error(err))
	}
	s.metrics.Transition(string(from), string(r.State))
	s.log.Info("ride transition",
		zap.String("ride_id", string(r.ID)),
		zap.String("from", string(from)),
		zap.String("to", string(r.State)),
		zap.String("actor_type", actorType))
	s.publish(ctx, r.ID, "ride.transition", e)
}

type message struct {
	Type   string    `json:"type"`
	RideID types.ID  `json:"ride_id"`
	At     time.Time `json:"at"`
	Data   any       `json:"data"`
}

func (s *Service) publish(ctx context.Context, rideID types.ID, typ string, data any) {
	msg := message{Type: typ, RideID: rideID, At: s.now().UTC(), Data: data}
	if err := s.publisher.Publish(ctx, string(rideID), msg); err != nil {
		s.log.Warn("publish ride event failed", zap.String("ride_id", string(rideID)), zap.String("type", typ), zap.Error(err))
	}
}

func (s *Service) withHistory(ctx context.Context, r *Ride) (*Ride, error) {
	out := r.Clone()
	if s.ledger == nil {
		return out, nil
	}
	history, err := s.ledger.History(ctx, r.ID)
	if err != nil {
		return nil, fmt.Errorf("load bargain history: %w", err)
	}
	out.BargainHistory = history
	return out, nil
}

func (s *Service) observePayment(op string, err error) {
	if err == nil {
		s.metrics.Payment(op, "success")
		return
	}
	if errors.Is(err, apperr.ErrOracleTimeout) {
		s.metrics.OracleFailure("payment")
	}
	s.metrics.Payment(op, "failed")
}

func (s *Service) timestamp() *time.Time {
	t := s.now().UTC()
	return &t
}

// paymentError keeps declines and lookup errors as they are and treats everything else,
// deadlines included, as an oracle failure.
func paymentError(err error) error {
	for _, known := range []error{
		apperr.ErrPaymentFailed,
		apperr.ErrInvalidTransition,
		apperr.ErrInvalidInput,
		apperr.ErrNotFound,
		apperr.ErrConflict,
		apperr.ErrOracleTimeout,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: payment: %v", apperr.ErrOracleTimeout, err)
}

func newOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

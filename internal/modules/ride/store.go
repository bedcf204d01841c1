// README: Ride persistence with optimistic status_version checks: in-memory and PostgreSQL.
package ride

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campusride/internal/apperr"
	"campusride/internal/modules/fare"
	"campusride/internal/types"
)

type Store interface {
	Create(ctx context.Context, r *Ride) error
	Get(ctx context.Context, id types.ID) (*Ride, error)
	// Update persists r only while the stored ride is still in state from at r.Version.
	// It reports false when another writer got there first, and bumps r.Version on success.
	Update(ctx context.Context, r *Ride, from State) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
	Events(ctx context.Context, id types.ID) ([]Event, error)
}

type MemoryStore struct {
	mu     sync.RWMutex
	rides  map[types.ID]*Ride
	events map[types.ID][]Event
	nextEv int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[types.ID]*Ride), events: make(map[types.ID][]Event)}
}

func (s *MemoryStore) Create(_ context.Context, r *Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rides[r.ID]; exists {
		return fmt.Errorf("%w: ride %s exists", apperr.ErrConflict, r.ID)
	}
	c := r.Clone()
	c.BargainHistory = nil
	s.rides[r.ID] = c
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id types.ID) (*Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rides[id]
	if !ok {
		return nil, fmt.Errorf("%w: ride %s", apperr.ErrNotFound, id)
	}
	return r.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, r *Ride, from State) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rides[r.ID]
	if !ok {
		return false, fmt.Errorf("%w: ride %s", apperr.ErrNotFound, r.ID)
	}
	if cur.State != from || cur.Version != r.Version {
		return false, nil
	}
	r.Version++
	c := r.Clone()
	c.BargainHistory = nil
	s.rides[r.ID] = c
	return true, nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEv++
	e.ID = s.nextEv
	s.events[e.RideID] = append(s.events[e.RideID], *e)
	return nil
}

func (s *MemoryStore) Events(_ context.Context, id types.ID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.events[id]...), nil
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const rideColumns = `
	id, kind, vehicle_class, status, status_version,
	pickup, dropoff, distance_km, eta_minutes, fare,
	rider_id, rider_role, driver_id, otp,
	shared, co_riders, fare_split, split_legs, shuttle, bike,
	billing_status, transaction_id, refund_id, billing_error, rated, rating,
	created_at, accepted_at, started_at, completed_at, cancelled_at, cancel_reason`

func (s *PGStore) Create(ctx context.Context, r *Ride) error {
	args, err := rideArgs(r)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO rides (`+rideColumns+`
		) VALUES (
			@id, @kind, @vehicle_class, @status, @version,
			@pickup, @dropoff, @distance_km, @eta_minutes, @fare,
			@rider_id, @rider_role, @driver_id, @otp,
			@shared, @co_riders, @fare_split, @split_legs, @shuttle, @bike,
			@billing_status, @transaction_id, @refund_id, @billing_error, @rated, @rating,
			@created_at, @accepted_at, @started_at, @completed_at, @cancelled_at, @cancel_reason
		)`, args)
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, string(id))
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: ride %s", apperr.ErrNotFound, id)
	}
	return r, err
}

func (s *PGStore) Update(ctx context.Context, r *Ride, from State) (bool, error) {
	args, err := rideArgs(r)
	if err != nil {
		return false, err
	}
	args["from_status"] = string(from)
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET status = @status,
		    status_version = status_version + 1,
		    distance_km = @distance_km, eta_minutes = @eta_minutes, fare = @fare,
		    driver_id = @driver_id,
		    co_riders = @co_riders, fare_split = @fare_split, split_legs = @split_legs,
		    shuttle = @shuttle, bike = @bike,
		    billing_status = @billing_status, transaction_id = @transaction_id,
		    refund_id = @refund_id, billing_error = @billing_error,
		    rated = @rated, rating = @rating,
		    accepted_at = @accepted_at, started_at = @started_at,
		    completed_at = @completed_at, cancelled_at = @cancelled_at,
		    cancel_reason = @cancel_reason
		WHERE id = @id AND status = @from_status AND status_version = @version`,
		args,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	r.Version++
	return true, nil
}

func (s *PGStore) AppendEvent(ctx context.Context, e *Event) error {
	return s.db.QueryRow(ctx, `
		INSERT INTO ride_state_events (
			ride_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		string(e.RideID),
		string(e.From),
		string(e.To),
		e.ActorType,
		nullString(string(e.ActorID)),
		e.CreatedAt,
	).Scan(&e.ID)
}

func (s *PGStore) Events(ctx context.Context, id types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, ride_id, from_status, to_status, actor_type, actor_id, created_at
		FROM ride_state_events
		WHERE ride_id = $1
		ORDER BY id`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var rideID, from, to string
		var actorID sql.NullString
		if err := rows.Scan(&e.ID, &rideID, &from, &to, &e.ActorType, &actorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.RideID = types.ID(rideID)
		e.From = State(from)
		e.To = State(to)
		e.ActorID = types.ID(actorID.String)
		out = append(out, e)
	}
	return out, rows.Err()
}

func rideArgs(r *Ride) (pgx.NamedArgs, error) {
	split, err := json.Marshal(r.FareSplit)
	if err != nil {
		return nil, fmt.Errorf("encode fare split: %w", err)
	}
	legs, err := json.Marshal(r.SplitLegs)
	if err != nil {
		return nil, fmt.Errorf("encode split legs: %w", err)
	}
	shuttle, err := json.Marshal(r.Shuttle)
	if err != nil {
		return nil, fmt.Errorf("encode shuttle: %w", err)
	}
	bike, err := json.Marshal(r.Bike)
	if err != nil {
		return nil, fmt.Errorf("encode bike: %w", err)
	}
	coRiders := make([]string, len(r.CoRiders))
	for i, id := range r.CoRiders {
		coRiders[i] = string(id)
	}
	return pgx.NamedArgs{
		"id":             string(r.ID),
		"kind":           string(r.Kind),
		"vehicle_class":  string(r.VehicleClass),
		"status":         string(r.State),
		"version":        r.Version,
		"pickup":         string(r.Pickup),
		"dropoff":        string(r.Dropoff),
		"distance_km":    r.DistanceKm,
		"eta_minutes":    r.EtaMinutes,
		"fare":           r.Fare,
		"rider_id":       string(r.RiderID),
		"rider_role":     string(r.RiderRole),
		"driver_id":      nullString(string(r.DriverID)),
		"otp":            r.OTP,
		"shared":         r.Shared,
		"co_riders":      coRiders,
		"fare_split":     split,
		"split_legs":     legs,
		"shuttle":        shuttle,
		"bike":           bike,
		"billing_status": string(r.Billing.Status),
		"transaction_id": nullString(r.Billing.TransactionID),
		"refund_id":      nullString(r.Billing.RefundID),
		"billing_error":  nullString(r.Billing.LastError),
		"rated":          r.Rated,
		"rating":         r.Rating,
		"created_at":     r.CreatedAt,
		"accepted_at":    r.AcceptedAt,
		"started_at":     r.StartedAt,
		"completed_at":   r.CompletedAt,
		"cancelled_at":   r.CancelledAt,
		"cancel_reason":  nullString(r.CancelReason),
	}, nil
}

func scanRide(row pgx.Row) (*Ride, error) {
	var r Ride
	var id, kind, class, status, pickup, dropoff, riderID, role, billing string
	var driverID, txID, refundID, billingErr, cancelReason sql.NullString
	var coRiders []string
	var split, legs, shuttle, bike []byte
	var acceptedAt, startedAt, completedAt, cancelledAt sql.NullTime

	err := row.Scan(
		&id, &kind, &class, &status, &r.Version,
		&pickup, &dropoff, &r.DistanceKm, &r.EtaMinutes, &r.Fare,
		&riderID, &role, &driverID, &r.OTP,
		&r.Shared, &coRiders, &split, &legs, &shuttle, &bike,
		&billing, &txID, &refundID, &billingErr, &r.Rated, &r.Rating,
		&r.CreatedAt, &acceptedAt, &startedAt, &completedAt, &cancelledAt, &cancelReason,
	)
	if err != nil {
		return nil, err
	}

	r.ID = types.ID(id)
	r.Kind = Kind(kind)
	r.VehicleClass = fare.VehicleClass(class)
	r.State = State(status)
	r.Pickup = types.Location(pickup)
	r.Dropoff = types.Location(dropoff)
	r.RiderID = types.ID(riderID)
	r.RiderRole = fare.RiderRole(role)
	r.DriverID = types.ID(driverID.String)
	r.Billing = Billing{
		Status:        BillingStatus(billing),
		TransactionID: txID.String,
		RefundID:      refundID.String,
		LastError:     billingErr.String,
	}
	r.CancelReason = cancelReason.String
	for _, c := range coRiders {
		r.CoRiders = append(r.CoRiders, types.ID(c))
	}
	if err := decodeJSON(split, &r.FareSplit); err != nil {
		return nil, fmt.Errorf("decode fare split: %w", err)
	}
	if err := decodeJSON(legs, &r.SplitLegs); err != nil {
		return nil, fmt.Errorf("decode split legs: %w", err)
	}
	if err := decodeJSON(shuttle, &r.Shuttle); err != nil {
		return nil, fmt.Errorf("decode shuttle: %w", err)
	}
	if err := decodeJSON(bike, &r.Bike); err != nil {
		return nil, fmt.Errorf("decode bike: %w", err)
	}
	r.AcceptedAt = toTimePtr(acceptedAt)
	r.StartedAt = toTimePtr(startedAt)
	r.CompletedAt = toTimePtr(completedAt)
	r.CancelledAt = toTimePtr(cancelledAt)
	return &r, nil
}

func decodeJSON(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

func nullString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// README: Driver pool: registration, availability flips and atomic claim/release for rides.
package driver

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"campusride/internal/apperr"
	"campusride/internal/logging"
	"campusride/internal/modules/fare"
	"campusride/internal/types"
)

// Mirror persists pool snapshots outside the process. Writes are best-effort.
type Mirror interface {
	Save(ctx context.Context, d Driver) error
	Load(ctx context.Context) ([]Driver, error)
}

// Pool is the authoritative set of drivers. A single RWMutex guards every driver so that
// candidate snapshots never observe a half-applied claim.
type Pool struct {
	mu      sync.RWMutex
	drivers map[types.ID]*Driver
	seq     int64
	now     func() time.Time

	mirror Mirror
	log    *zap.Logger

	// mirrorMu orders mirror writes; mirrored holds the last version written per driver.
	mirrorMu sync.Mutex
	mirrored map[types.ID]int64
}

func NewPool(mirror Mirror, log *zap.Logger) *Pool {
	return &Pool{
		drivers:  make(map[types.ID]*Driver),
		now:      time.Now,
		mirror:   mirror,
		log:      logging.OrNop(log),
		mirrored: make(map[types.ID]int64),
	}
}

type RegisterCommand struct {
	ID            types.ID
	Name          string
	Phone         string
	VehicleNumber string
	VehicleClass  fare.VehicleClass
	Location      types.Location
	Rating        float64
}

// Register adds an available driver and assigns the next registration sequence.
func (p *Pool) Register(ctx context.Context, cmd RegisterCommand) (*Driver, error) {
	if _, err := fare.ParseVehicleClass(string(cmd.VehicleClass)); err != nil {
		return nil, err
	}
	if cmd.Rating < 0 || cmd.Rating > MaxRating || math.IsNaN(cmd.Rating) {
		return nil, fmt.Errorf("%w: rating must be within [0,5]", apperr.ErrInvalidInput)
	}
	if cmd.ID == "" {
		cmd.ID = types.NewID()
	}

	p.mu.Lock()
	if _, exists := p.drivers[cmd.ID]; exists {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: driver %s already registered", apperr.ErrConflict, cmd.ID)
	}
	p.seq++
	d := &Driver{
		ID:            cmd.ID,
		Name:          cmd.Name,
		Phone:         cmd.Phone,
		VehicleNumber: cmd.VehicleNumber,
		VehicleClass:  cmd.VehicleClass,
		Available:     true,
		Location:      cmd.Location,
		Rating:        cmd.Rating,
		Seq:           p.seq,
		RegisteredAt:  p.now().UTC(),
		Version:       1,
	}
	p.drivers[d.ID] = d
	snap := *d
	p.mu.Unlock()

	p.mirrorSave(ctx, snap)
	return &snap, nil
}

func (p *Pool) Get(id types.ID) (*Driver, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	d, ok := p.drivers[id]
	if !ok {
		return nil, fmt.Errorf("%w: driver %s", apperr.ErrNotFound, id)
	}
	snap := *d
	return &snap, nil
}

// Candidates returns copies of the available, on-duty drivers of class in registration order.
func (p *Pool) Candidates(class fare.VehicleClass) []Driver {
	p.mu.RLock()
	out := make([]Driver, 0, len(p.drivers))
	for _, d := range p.drivers {
		if d.Available && !d.OffDuty && d.VehicleClass == class {
			out = append(out, *d)
		}
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// MarkUnavailable flips the availability flag. Rides go through Claim instead, which also
// records the holding ride. It is a no-op for a driver already unavailable.
func (p *Pool) MarkUnavailable(ctx context.Context, id types.ID) error {
	return p.update(ctx, id, func(d *Driver) error {
		d.Available = false
		return nil
	})
}

// MarkAvailable flips the availability flag back. A driver still held by a ride must be
// released through Release instead.
func (p *Pool) MarkAvailable(ctx context.Context, id types.ID) error {
	return p.update(ctx, id, func(d *Driver) error {
		if d.Busy() {
			return fmt.Errorf("%w: driver %s is on ride %s", apperr.ErrConflict, id, d.ActiveRide)
		}
		d.Available = true
		return nil
	})
}

// SetDuty moves a driver on or off duty. An off-duty driver keeps any ride it holds but is
// not offered to new ones until it comes back on duty.
func (p *Pool) SetDuty(ctx context.Context, id types.ID, onDuty bool) error {
	return p.update(ctx, id, func(d *Driver) error {
		d.OffDuty = !onDuty
		return nil
	})
}

// Claim runs commit while holding the pool lock and, when it succeeds, assigns the driver
// to rideID. A driver that is not available or is off duty yields ErrConflict without
// calling commit.
func (p *Pool) Claim(ctx context.Context, driverID, rideID types.ID, commit func() error) error {
	return p.update(ctx, driverID, func(d *Driver) error {
		if !d.Available {
			return fmt.Errorf("%w: driver %s is not available", apperr.ErrConflict, driverID)
		}
		if d.OffDuty {
			return fmt.Errorf("%w: driver %s is off duty", apperr.ErrConflict, driverID)
		}
		if commit != nil {
			if err := commit(); err != nil {
				return err
			}
		}
		d.Available = false
		d.ActiveRide = rideID
		return nil
	})
}

// Release runs commit while holding the pool lock and frees the driver from rideID. The
// duty flag is left as it is.
func (p *Pool) Release(ctx context.Context, driverID, rideID types.ID, commit func() error) error {
	return p.update(ctx, driverID, func(d *Driver) error {
		if d.ActiveRide != rideID {
			return fmt.Errorf("%w: driver %s is not held by ride %s", apperr.ErrConflict, driverID, rideID)
		}
		if commit != nil {
			if err := commit(); err != nil {
				return err
			}
		}
		d.Available = true
		d.ActiveRide = ""
		return nil
	})
}

// RecordRating folds rating into the running average and returns the new average.
func (p *Pool) RecordRating(ctx context.Context, id types.ID, rating float64) (float64, error) {
	if rating < 0 || rating > MaxRating || math.IsNaN(rating) {
		return 0, fmt.Errorf("%w: rating must be within [0,5]", apperr.ErrInvalidInput)
	}
	var avg float64
	err := p.update(ctx, id, func(d *Driver) error {
		n := float64(d.RatedRides)
		avg = (d.Rating*n + rating) / (n + 1)
		avg = math.Min(MaxRating, math.Max(0, avg))
		d.Rating = avg
		d.RatedRides++
		return nil
	})
	return avg, err
}

func (p *Pool) UpdateLocation(ctx context.Context, id types.ID, loc types.Location) error {
	if loc == "" {
		return fmt.Errorf("%w: empty location", apperr.ErrInvalidInput)
	}
	return p.update(ctx, id, func(d *Driver) error {
		d.Location = loc
		return nil
	})
}

// Restore replaces the pool contents with the mirror's snapshot.
func (p *Pool) Restore(ctx context.Context) (int, error) {
	if p.mirror == nil {
		return 0, nil
	}
	drivers, err := p.mirror.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load driver mirror: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mirrorMu.Lock()
	defer p.mirrorMu.Unlock()
	p.drivers = make(map[types.ID]*Driver, len(drivers))
	p.mirrored = make(map[types.ID]int64, len(drivers))
	p.seq = 0
	for i := range drivers {
		d := drivers[i]
		p.drivers[d.ID] = &d
		p.mirrored[d.ID] = d.Version
		if d.Seq > p.seq {
			p.seq = d.Seq
		}
	}
	return len(p.drivers), nil
}

func (p *Pool) update(ctx context.Context, id types.ID, fn func(d *Driver) error) error {
	p.mu.Lock()
	d, ok := p.drivers[id]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: driver %s", apperr.ErrNotFound, id)
	}
	before := *d
	if err := fn(d); err != nil {
		*d = before
		p.mu.Unlock()
		return err
	}
	if *d == before {
		p.mu.Unlock()
		return nil
	}
	d.Version = before.Version + 1
	snap := *d
	p.mu.Unlock()

	p.mirrorSave(ctx, snap)
	return nil
}

// mirrorSave writes snapshots outside the pool lock. Two updates of one driver can reach
// here in either order, so a snapshot older than the last one written is dropped.
func (p *Pool) mirrorSave(ctx context.Context, d Driver) {
	if p.mirror == nil {
		return
	}
	p.mirrorMu.Lock()
	defer p.mirrorMu.Unlock()
	if d.Version <= p.mirrored[d.ID] {
		return
	}
	if err := p.mirror.Save(ctx, d); err != nil {
		p.log.Warn("mirror driver failed", zap.String("driver_id", string(d.ID)), zap.Error(err))
		return
	}
	p.mirrored[d.ID] = d.Version
}

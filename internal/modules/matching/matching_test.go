package matching

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"campusride/internal/apperr"
	"campusride/internal/geo"
	"campusride/internal/modules/driver"
	"campusride/internal/modules/fare"
	"campusride/internal/types"
)

// fakeOracle resolves driver locations to a fixed distance from any pickup.
type fakeOracle struct {
	km    map[types.Location]float64
	slow  map[types.Location]bool
	mu    sync.Mutex
	calls int
}

func (f *fakeOracle) DistanceKm(ctx context.Context, a, _ types.Location) (float64, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.slow[a] {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	km, ok := f.km[a]
	if !ok {
		return 0, fmt.Errorf("%w: cannot resolve %q", apperr.ErrInvalidInput, a)
	}
	return km, nil
}

func (f *fakeOracle) RouteInfo(ctx context.Context, a, b types.Location) (geo.Route, error) {
	km, err := f.DistanceKm(ctx, a, b)
	return geo.Route{DistanceKm: km}, err
}

func newPool(t *testing.T, drivers ...driver.RegisterCommand) *driver.Pool {
	t.Helper()
	p := driver.NewPool(nil, nil)
	for _, d := range drivers {
		if _, err := p.Register(context.Background(), d); err != nil {
			t.Fatalf("register %s: %v", d.ID, err)
		}
	}
	return p
}

func claimVia(p *driver.Pool, rideID types.ID) ClaimFunc {
	return func(ctx context.Context, driverID types.ID) error {
		return p.Claim(ctx, driverID, rideID, nil)
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		km, rating, want float64
	}{
		{1, 5, 0.96},
		{0.5, 3, 0.86},
		{0, 5, 1},
		{10, 0, 0.3},
		{25, 0, 0.3},
	}
	for _, tt := range tests {
		if got := Score(tt.km, tt.rating); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Score(%v, %v) = %v, want %v", tt.km, tt.rating, got, tt.want)
		}
	}
}

func TestMatchPrefersHigherScoreOverCloserDriver(t *testing.T) {
	pool := newPool(t,
		driver.RegisterCommand{ID: "Y", VehicleClass: fare.ClassCab, Rating: 3.0, Location: "locY"},
		driver.RegisterCommand{ID: "X", VehicleClass: fare.ClassCab, Rating: 5.0, Location: "locX"},
	)
	oracle := &fakeOracle{km: map[types.Location]float64{"locX": 1, "locY": 0.5}}
	svc := NewService(pool, oracle, DefaultConfig(), nil, nil)

	d, err := svc.Match(context.Background(), Request{RideID: "r1", VehicleClass: fare.ClassCab, Pickup: "A"}, claimVia(pool, "r1"))
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if d.ID != "X" {
		t.Fatalf("expected X, got %s", d.ID)
	}
	x, _ := pool.Get("X")
	y, _ := pool.Get("Y")
	if x.Available || x.ActiveRide != "r1" || !y.Available {
		t.Fatalf("pool after match: X=%+v Y=%+v", x, y)
	}
}

func TestMatchOnlyConsidersRequestedClass(t *testing.T) {
	pool := newPool(t,
		driver.RegisterCommand{ID: "auto", VehicleClass: fare.ClassAuto, Rating: 5, Location: "near"},
		driver.RegisterCommand{ID: "cab", VehicleClass: fare.ClassCab, Rating: 1, Location: "far"},
	)
	oracle := &fakeOracle{km: map[types.Location]float64{"near": 0, "far": 9}}
	svc := NewService(pool, oracle, DefaultConfig(), nil, nil)

	d, err := svc.Match(context.Background(), Request{RideID: "r1", VehicleClass: fare.ClassCab}, claimVia(pool, "r1"))
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if d.VehicleClass != fare.ClassCab {
		t.Fatalf("matched %s driver for a cab ride", d.VehicleClass)
	}

	if _, err := svc.Match(context.Background(), Request{RideID: "r2", VehicleClass: fare.ClassMoto}, claimVia(pool, "r2")); !errors.Is(err, apperr.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestRankUnresolvableIsLastResort(t *testing.T) {
	pool := newPool(t,
		driver.RegisterCommand{ID: "lost", VehicleClass: fare.ClassCab, Rating: 5, Location: "Hostel 4"},
		driver.RegisterCommand{ID: "far", VehicleClass: fare.ClassCab, Rating: 0, Location: "far"},
	)
	oracle := &fakeOracle{km: map[types.Location]float64{"far": 50}}
	svc := NewService(pool, oracle, DefaultConfig(), nil, nil)

	ranked := svc.Rank(context.Background(), Request{RideID: "r1", VehicleClass: fare.ClassCab}, nil)
	if len(ranked) != 2 || ranked[0].Driver.ID != "far" {
		t.Fatalf("ranked = %+v", ranked)
	}
	if ranked[1].Score != 0 || ranked[1].Err == nil {
		t.Fatalf("unresolvable candidate should score 0 with an error: %+v", ranked[1])
	}

	only := newPool(t, driver.RegisterCommand{ID: "lost", VehicleClass: fare.ClassCab, Location: "Hostel 4"})
	svc = NewService(only, oracle, DefaultConfig(), nil, nil)
	d, err := svc.Match(context.Background(), Request{RideID: "r1", VehicleClass: fare.ClassCab}, claimVia(only, "r1"))
	if err != nil || d.ID != "lost" {
		t.Fatalf("last-resort candidate should still be matched: %+v %v", d, err)
	}
}

func TestRankSlowOracleTimesOut(t *testing.T) {
	pool := newPool(t,
		driver.RegisterCommand{ID: "slow", VehicleClass: fare.ClassCab, Rating: 5, Location: "slow"},
		driver.RegisterCommand{ID: "ok", VehicleClass: fare.ClassCab, Rating: 1, Location: "ok"},
	)
	oracle := &fakeOracle{
		km:   map[types.Location]float64{"ok": 3},
		slow: map[types.Location]bool{"slow": true},
	}
	svc := NewService(pool, oracle, Config{OracleTimeout: 20 * time.Millisecond}, nil, nil)

	start := time.Now()
	ranked := svc.Rank(context.Background(), Request{RideID: "r1", VehicleClass: fare.ClassCab}, nil)
	if time.Since(start) > time.Second {
		t.Fatal("rank blocked on a slow oracle")
	}
	if ranked[0].Driver.ID != "ok" || ranked[1].Score != 0 {
		t.Fatalf("ranked = %+v", ranked)
	}
}

func TestRankTiesBreakByRegistrationOrder(t *testing.T) {
	pool := newPool(t,
		driver.RegisterCommand{ID: "first", VehicleClass: fare.ClassToto, Rating: 4, Location: "same"},
		driver.RegisterCommand{ID: "second", VehicleClass: fare.ClassToto, Rating: 4, Location: "same"},
		driver.RegisterCommand{ID: "third", VehicleClass: fare.ClassToto, Rating: 4, Location: "same"},
	)
	oracle := &fakeOracle{km: map[types.Location]float64{"same": 2}}
	svc := NewService(pool, oracle, DefaultConfig(), nil, nil)

	for i := 0; i < 20; i++ {
		ranked := svc.Rank(context.Background(), Request{VehicleClass: fare.ClassToto}, nil)
		if ranked[0].Driver.ID != "first" || ranked[1].Driver.ID != "second" || ranked[2].Driver.ID != "third" {
			t.Fatalf("unstable tie-break: %v %v %v", ranked[0].Driver.ID, ranked[1].Driver.ID, ranked[2].Driver.ID)
		}
	}
}

func TestMatchRetriesAfterConflict(t *testing.T) {
	pool := newPool(t,
		driver.RegisterCommand{ID: "best", VehicleClass: fare.ClassCab, Rating: 5, Location: "a"},
		driver.RegisterCommand{ID: "next", VehicleClass: fare.ClassCab, Rating: 4, Location: "a"},
	)
	oracle := &fakeOracle{km: map[types.Location]float64{"a": 1}}
	svc := NewService(pool, oracle, DefaultConfig(), nil, nil)

	var tried []types.ID
	claim := func(ctx context.Context, driverID types.ID) error {
		tried = append(tried, driverID)
		if driverID == "best" {
			return fmt.Errorf("%w: taken", apperr.ErrConflict)
		}
		return pool.Claim(ctx, driverID, "r1", nil)
	}
	d, err := svc.Match(context.Background(), Request{RideID: "r1", VehicleClass: fare.ClassCab}, claim)
	if err != nil || d.ID != "next" {
		t.Fatalf("match: %+v %v", d, err)
	}
	if len(tried) != 2 || tried[0] != "best" {
		t.Fatalf("claims tried = %v", tried)
	}
}

func TestMatchGivesUpAfterMaxRetries(t *testing.T) {
	var cmds []driver.RegisterCommand
	for i := 0; i < 5; i++ {
		cmds = append(cmds, driver.RegisterCommand{ID: types.ID(fmt.Sprintf("d%d", i)), VehicleClass: fare.ClassCab, Location: "a"})
	}
	pool := newPool(t, cmds...)
	oracle := &fakeOracle{km: map[types.Location]float64{"a": 1}}
	svc := NewService(pool, oracle, Config{MaxClaimRetries: 3}, nil, nil)

	attempts := 0
	claim := func(context.Context, types.ID) error {
		attempts++
		return apperr.ErrConflict
	}
	if _, err := svc.Match(context.Background(), Request{RideID: "r1", VehicleClass: fare.ClassCab}, claim); !errors.Is(err, apperr.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestMatchAbortsOnNonConflictClaimError(t *testing.T) {
	pool := newPool(t, driver.RegisterCommand{ID: "d", VehicleClass: fare.ClassCab, Location: "a"})
	svc := NewService(pool, &fakeOracle{km: map[types.Location]float64{"a": 1}}, DefaultConfig(), nil, nil)

	claim := func(context.Context, types.ID) error { return apperr.ErrInvalidTransition }
	if _, err := svc.Match(context.Background(), Request{RideID: "r1", VehicleClass: fare.ClassCab}, claim); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestConcurrentMatchesNeverShareADriver(t *testing.T) {
	pool := newPool(t,
		driver.RegisterCommand{ID: "d1", VehicleClass: fare.ClassCab, Rating: 5, Location: "a"},
		driver.RegisterCommand{ID: "d2", VehicleClass: fare.ClassCab, Rating: 4, Location: "a"},
	)
	svc := NewService(pool, &fakeOracle{km: map[types.Location]float64{"a": 1}}, DefaultConfig(), nil, nil)

	rides := []types.ID{"r1", "r2", "r3", "r4", "r5", "r6"}
	type result struct {
		ride   types.ID
		driver types.ID
		err    error
	}
	results := make(chan result, len(rides))
	start := make(chan struct{})
	var wg sync.WaitGroup
	for _, rideID := range rides {
		wg.Add(1)
		go func(rid types.ID) {
			defer wg.Done()
			<-start
			d, err := svc.Match(context.Background(), Request{RideID: rid, VehicleClass: fare.ClassCab}, claimVia(pool, rid))
			r := result{ride: rid, err: err}
			if d != nil {
				r.driver = d.ID
			}
			results <- r
		}(rideID)
	}
	close(start)
	wg.Wait()
	close(results)

	owner := map[types.ID]types.ID{}
	for r := range results {
		if r.err != nil {
			if !errors.Is(r.err, apperr.ErrUnavailable) {
				t.Fatalf("unexpected error: %v", r.err)
			}
			continue
		}
		if prev, taken := owner[r.driver]; taken {
			t.Fatalf("driver %s matched to both %s and %s", r.driver, prev, r.ride)
		}
		owner[r.driver] = r.ride
	}
	if len(owner) != 2 {
		t.Fatalf("expected both drivers matched, got %v", owner)
	}
	for driverID, rideID := range owner {
		d, _ := pool.Get(driverID)
		if d.Available || d.ActiveRide != rideID {
			t.Fatalf("driver %s = %+v, want held by %s", driverID, d, rideID)
		}
	}
}

package geo

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"googlemaps.github.io/maps"

	"campusride/internal/apperr"
	"campusride/internal/types"
)

func TestHaversineKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      types.Point
		wantKm    float64
		tolerance float64
	}{
		{name: "same point", a: types.Point{Lat: 12.9716, Lng: 77.5946}, b: types.Point{Lat: 12.9716, Lng: 77.5946}, wantKm: 0, tolerance: 0.001},
		{name: "one degree of latitude", a: types.Point{Lat: 0, Lng: 0}, b: types.Point{Lat: 1, Lng: 0}, wantKm: 111.19, tolerance: 0.1},
		{name: "New York to Los Angeles", a: types.Point{Lat: 40.7128, Lng: -74.0060}, b: types.Point{Lat: 34.0522, Lng: -118.2437}, wantKm: 3944, tolerance: 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineKm(tt.a, tt.b)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("HaversineKm() = %f, want %f (±%f)", got, tt.wantKm, tt.tolerance)
			}
		})
	}
}

func TestHaversineKm_Symmetry(t *testing.T) {
	a := types.Point{Lat: 25, Lng: 121}
	b := types.Point{Lat: 26, Lng: 122}
	if d1, d2 := HaversineKm(a, b), HaversineKm(b, a); math.Abs(d1-d2) > 0.0001 {
		t.Errorf("haversine is not symmetric: %f vs %f", d1, d2)
	}
}

func TestEtaMinutes(t *testing.T) {
	tests := map[float64]int{0: 0, -1: 0, 1: 2, 15: 30, 1.1: 3}
	for km, want := range tests {
		if got := EtaMinutes(km); got != want {
			t.Errorf("EtaMinutes(%v) = %d, want %d", km, got, want)
		}
	}
}

func TestHaversineOracle_Unresolvable(t *testing.T) {
	_, err := HaversineOracle{}.DistanceKm(context.Background(), "library", "0,0")
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestHaversineOracle_RouteInfo(t *testing.T) {
	r, err := HaversineOracle{}.RouteInfo(context.Background(), "0,0", "1,0")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if math.Abs(r.DistanceKm-111.19) > 0.1 {
		t.Errorf("distance = %f", r.DistanceKm)
	}
	if r.EtaMinutes != EtaMinutes(r.DistanceKm) {
		t.Errorf("eta = %d", r.EtaMinutes)
	}
}

type stubOracle struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	err   error
	km    float64
}

func (s *stubOracle) DistanceKm(ctx context.Context, a, b types.Location) (float64, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if s.err != nil {
		return 0, s.err
	}
	return s.km, nil
}

func (s *stubOracle) RouteInfo(ctx context.Context, a, b types.Location) (Route, error) {
	km, err := s.DistanceKm(ctx, a, b)
	if err != nil {
		return Route{}, err
	}
	return Route{DistanceKm: km, EtaMinutes: 7}, nil
}

func (s *stubOracle) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestWithTimeout(t *testing.T) {
	tests := []struct {
		name    string
		stub    *stubOracle
		wantErr error
	}{
		{name: "slow", stub: &stubOracle{delay: time.Second}, wantErr: apperr.ErrOracleTimeout},
		{name: "backend error", stub: &stubOracle{err: errors.New("quota")}, wantErr: apperr.ErrOracleTimeout},
		{name: "unresolvable", stub: &stubOracle{err: apperr.ErrInvalidInput}, wantErr: apperr.ErrInvalidInput},
		{name: "ok", stub: &stubOracle{km: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := WithTimeout(tt.stub, 20*time.Millisecond, nil)
			km, err := o.DistanceKm(context.Background(), "a", "b")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil || km != 2 {
				t.Fatalf("km=%v err=%v", km, err)
			}
		})
	}
}

func TestCached(t *testing.T) {
	stub := &stubOracle{km: 3}
	c := NewCached(stub, time.Minute)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.RouteInfo(ctx, "a", "b"); err != nil {
			t.Fatalf("route: %v", err)
		}
	}
	if stub.callCount() != 1 {
		t.Fatalf("expected 1 backend call, got %d", stub.callCount())
	}

	now = now.Add(2 * time.Minute)
	r, err := c.RouteInfo(ctx, "a", "b")
	if err != nil || r.EtaMinutes != 7 {
		t.Fatalf("route=%+v err=%v", r, err)
	}
	if stub.callCount() != 2 {
		t.Fatalf("expected refresh after ttl, got %d calls", stub.callCount())
	}

	stub.err = errors.New("down")
	if _, err := c.DistanceKm(ctx, "x", "y"); err == nil {
		t.Fatal("expected error")
	}
	stub.err = nil
	if km, err := c.DistanceKm(ctx, "x", "y"); err != nil || km != 3 {
		t.Fatalf("failures must not be cached: km=%v err=%v", km, err)
	}
}

func TestRouteFromMatrix(t *testing.T) {
	ok := &maps.DistanceMatrixResponse{Rows: []maps.DistanceMatrixElementsRow{{
		Elements: []*maps.DistanceMatrixElement{{
			Status:   "OK",
			Distance: maps.Distance{Meters: 2500},
			Duration: 4*time.Minute + 10*time.Second,
		}},
	}}}
	r, err := routeFromMatrix(ok)
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if r.DistanceKm != 2.5 || r.EtaMinutes != 5 {
		t.Errorf("route = %+v", r)
	}

	notFound := &maps.DistanceMatrixResponse{Rows: []maps.DistanceMatrixElementsRow{{
		Elements: []*maps.DistanceMatrixElement{{Status: "NOT_FOUND"}},
	}}}
	if _, err := routeFromMatrix(notFound); err == nil {
		t.Error("expected error for NOT_FOUND")
	}
	if _, err := routeFromMatrix(&maps.DistanceMatrixResponse{}); err == nil {
		t.Error("expected error for empty response")
	}
}

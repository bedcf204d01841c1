// README: Distance oracle contract plus the haversine implementation for "lat,lng" locations.
package geo

import (
	"context"
	"fmt"
	"math"

	"campusride/internal/apperr"
	"campusride/internal/types"
)

const (
	earthRadiusKm = 6371.0
	// AverageSpeedKmh is the assumed campus travel speed for ETA estimates.
	AverageSpeedKmh = 30.0
)

type Route struct {
	DistanceKm float64
	EtaMinutes int
}

// Oracle resolves distances between opaque locations. It may be slow or fail.
type Oracle interface {
	DistanceKm(ctx context.Context, a, b types.Location) (float64, error)
	RouteInfo(ctx context.Context, origin, destination types.Location) (Route, error)
}

// HaversineOracle resolves "lat,lng" pairs locally and rejects anything else.
type HaversineOracle struct{}

func (HaversineOracle) DistanceKm(ctx context.Context, a, b types.Location) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	pa, ok := types.ParsePoint(a)
	if !ok {
		return 0, fmt.Errorf("%w: cannot resolve location %q", apperr.ErrInvalidInput, a)
	}
	pb, ok := types.ParsePoint(b)
	if !ok {
		return 0, fmt.Errorf("%w: cannot resolve location %q", apperr.ErrInvalidInput, b)
	}
	return HaversineKm(pa, pb), nil
}

func (h HaversineOracle) RouteInfo(ctx context.Context, origin, destination types.Location) (Route, error) {
	km, err := h.DistanceKm(ctx, origin, destination)
	if err != nil {
		return Route{}, err
	}
	return Route{DistanceKm: km, EtaMinutes: EtaMinutes(km)}, nil
}

// HaversineKm returns the great-circle distance between two points.
func HaversineKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)
	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// EtaMinutes rounds the travel time at AverageSpeedKmh up to whole minutes.
func EtaMinutes(km float64) int {
	if km <= 0 {
		return 0
	}
	return int(math.Ceil(km * 60 / AverageSpeedKmh))
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// README: Google Maps Distance Matrix backed oracle.
package geo

import (
	"context"
	"errors"
	"fmt"
	"math"

	"googlemaps.github.io/maps"

	"campusride/internal/types"
)

// GoogleOracle asks the Distance Matrix API for driving distance and duration.
type GoogleOracle struct {
	client *maps.Client
}

func NewGoogleOracle(apiKey string) (*GoogleOracle, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleOracle{client: client}, nil
}

func (g *GoogleOracle) DistanceKm(ctx context.Context, a, b types.Location) (float64, error) {
	r, err := g.RouteInfo(ctx, a, b)
	if err != nil {
		return 0, err
	}
	return r.DistanceKm, nil
}

func (g *GoogleOracle) RouteInfo(ctx context.Context, origin, destination types.Location) (Route, error) {
	req := &maps.DistanceMatrixRequest{
		Origins:      []string{string(origin)},
		Destinations: []string{string(destination)},
		Mode:         maps.TravelModeDriving,
		Units:        maps.UnitsMetric,
	}
	resp, err := g.client.DistanceMatrix(ctx, req)
	if err != nil {
		return Route{}, fmt.Errorf("distance matrix request failed: %w", err)
	}
	return routeFromMatrix(resp)
}

func routeFromMatrix(resp *maps.DistanceMatrixResponse) (Route, error) {
	if resp == nil || len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return Route{}, errors.New("no route found")
	}
	el := resp.Rows[0].Elements[0]
	if el == nil || el.Status != "OK" {
		status := "missing"
		if el != nil {
			status = el.Status
		}
		return Route{}, fmt.Errorf("route element status %s", status)
	}
	return Route{
		DistanceKm: float64(el.Distance.Meters) / 1000,
		EtaMinutes: int(math.Ceil(el.Duration.Minutes())),
	}, nil
}

// README: Matching service scores available drivers and claims the best one for a ride.
package matching

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"campusride/internal/apperr"
	"campusride/internal/geo"
	"campusride/internal/logging"
	"campusride/internal/modules/driver"
	"campusride/internal/observability"
	"campusride/internal/types"
)

type Service struct {
	pool    Candidates
	oracle  geo.Oracle
	cfg     Config
	log     *zap.Logger
	metrics *observability.Metrics
}

func NewService(pool Candidates, oracle geo.Oracle, cfg Config, log *zap.Logger, metrics *observability.Metrics) *Service {
	def := DefaultConfig()
	if cfg.OracleTimeout <= 0 {
		cfg.OracleTimeout = def.OracleTimeout
	}
	if cfg.MaxClaimRetries <= 0 {
		cfg.MaxClaimRetries = def.MaxClaimRetries
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = def.Parallelism
	}
	return &Service{pool: pool, oracle: oracle, cfg: cfg, log: logging.OrNop(log), metrics: metrics}
}

// Score weighs proximity, rating and vehicle fit. Every candidate already matches the
// requested class, so the vehicle component is always full.
func Score(distanceKm, rating float64) float64 {
	distance := math.Max(0, 1-distanceKm/distanceHorizonKm)
	return WeightDistance*distance + WeightRating*(rating/driver.MaxRating) + WeightVehicle*1.0
}

// Rank scores every available driver of the requested class except those in exclude,
// best first. Ties go to the earlier registration.
func (s *Service) Rank(ctx context.Context, req Request, exclude map[types.ID]struct{}) []Scored {
	candidates := s.pool.Candidates(req.VehicleClass)
	scored := make([]Scored, 0, len(candidates))
	for _, d := range candidates {
		if _, skip := exclude[d.ID]; skip {
			continue
		}
		scored = append(scored, Scored{Driver: d})
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.Parallelism)
	for i := range scored {
		c := &scored[i]
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, s.cfg.OracleTimeout)
			defer cancel()
			km, err := s.oracle.DistanceKm(callCtx, c.Driver.Location, req.Pickup)
			if err != nil {
				c.Err = err
				c.Score = 0
				return nil
			}
			c.DistanceKm = km
			c.Score = Score(km, c.Driver.Rating)
			return nil
		})
	}
	_ = g.Wait()

	for _, c := range scored {
		if c.Err != nil {
			s.metrics.OracleFailure("distance")
			s.log.Warn("scoring driver without distance",
				zap.String("ride_id", string(req.RideID)),
				zap.String("driver_id", string(c.Driver.ID)),
				zap.Error(c.Err))
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Driver.Seq < scored[j].Driver.Seq
	})
	return scored
}

// Match claims the best-ranked driver. A lost claim excludes that driver and ranks again,
// up to MaxClaimRetries attempts. Any other claim error is returned as is.
func (s *Service) Match(ctx context.Context, req Request, claim ClaimFunc) (*driver.Driver, error) {
	exclude := make(map[types.ID]struct{})
	for attempt := 1; attempt <= s.cfg.MaxClaimRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ranked := s.Rank(ctx, req, exclude)
		if len(ranked) == 0 {
			s.metrics.Match("no_candidates")
			return nil, fmt.Errorf("%w: no %s driver for ride %s", apperr.ErrUnavailable, req.VehicleClass, req.RideID)
		}

		best := ranked[0]
		err := claim(ctx, best.Driver.ID)
		if err == nil {
			s.metrics.Match("matched")
			s.log.Info("driver matched",
				zap.String("ride_id", string(req.RideID)),
				zap.String("driver_id", string(best.Driver.ID)),
				zap.Float64("score", best.Score),
				zap.Int("attempt", attempt))
			d := best.Driver
			d.Available = false
			d.ActiveRide = req.RideID
			return &d, nil
		}
		if !errors.Is(err, apperr.ErrConflict) {
			s.metrics.Match("aborted")
			return nil, err
		}
		s.metrics.Conflict()
		s.log.Debug("claim conflict, retrying",
			zap.String("ride_id", string(req.RideID)),
			zap.String("driver_id", string(best.Driver.ID)),
			zap.Int("attempt", attempt))
		exclude[best.Driver.ID] = struct{}{}
	}
	s.metrics.Match("exhausted")
	return nil, fmt.Errorf("%w: ride %s lost %d claims", apperr.ErrUnavailable, req.RideID, s.cfg.MaxClaimRetries)
}

// README: Oracle decorators: per-call timeout with error normalization and a TTL route cache.
package geo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"campusride/internal/apperr"
	"campusride/internal/logging"
	"campusride/internal/types"
)

type timeoutOracle struct {
	next    Oracle
	timeout time.Duration
	log     *zap.Logger
}

// WithTimeout bounds every call by timeout. Resolution errors stay ErrInvalidInput; every
// other failure, including the deadline, becomes ErrOracleTimeout.
func WithTimeout(next Oracle, timeout time.Duration, log *zap.Logger) Oracle {
	return &timeoutOracle{next: next, timeout: timeout, log: logging.OrNop(log)}
}

func (o *timeoutOracle) DistanceKm(ctx context.Context, a, b types.Location) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	km, err := o.next.DistanceKm(ctx, a, b)
	if err != nil {
		return 0, o.normalize(err, a, b)
	}
	return km, nil
}

func (o *timeoutOracle) RouteInfo(ctx context.Context, origin, destination types.Location) (Route, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	r, err := o.next.RouteInfo(ctx, origin, destination)
	if err != nil {
		return Route{}, o.normalize(err, origin, destination)
	}
	return r, nil
}

func (o *timeoutOracle) normalize(err error, a, b types.Location) error {
	if errors.Is(err, apperr.ErrInvalidInput) || errors.Is(err, apperr.ErrOracleTimeout) {
		return err
	}
	o.log.Warn("distance oracle failed",
		zap.String("from", string(a)), zap.String("to", string(b)), zap.Error(err))
	return fmt.Errorf("%w: %v", apperr.ErrOracleTimeout, err)
}

// Cached memoizes successful lookups for ttl. Failures are never cached.
type Cached struct {
	next Oracle
	ttl  time.Duration
	now  func() time.Time

	mu    sync.RWMutex
	store map[string]cacheEntry
}

type cacheEntry struct {
	route Route
	ts    time.Time
}

func NewCached(next Oracle, ttl time.Duration) *Cached {
	return &Cached{next: next, ttl: ttl, now: time.Now, store: make(map[string]cacheEntry)}
}

func keyFor(kind string, a, b types.Location) string {
	return kind + "|" + string(a) + "->" + string(b)
}

func (c *Cached) DistanceKm(ctx context.Context, a, b types.Location) (float64, error) {
	if r, ok := c.get("km", a, b); ok {
		return r.DistanceKm, nil
	}
	km, err := c.next.DistanceKm(ctx, a, b)
	if err != nil {
		return 0, err
	}
	c.set("km", a, b, Route{DistanceKm: km})
	return km, nil
}

func (c *Cached) RouteInfo(ctx context.Context, origin, destination types.Location) (Route, error) {
	if r, ok := c.get("route", origin, destination); ok {
		return r, nil
	}
	r, err := c.next.RouteInfo(ctx, origin, destination)
	if err != nil {
		return Route{}, err
	}
	c.set("route", origin, destination, r)
	return r, nil
}

func (c *Cached) get(kind string, a, b types.Location) (Route, bool) {
	k := keyFor(kind, a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return Route{}, false
	}
	if c.now().Sub(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return Route{}, false
	}
	return e.route, true
}

func (c *Cached) set(kind string, a, b types.Location, r Route) {
	c.mu.Lock()
	c.store[keyFor(kind, a, b)] = cacheEntry{route: r, ts: c.now()}
	c.mu.Unlock()
}

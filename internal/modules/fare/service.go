// README: Fare engine: base fare, discounts, quotes and shared-ride splits. Pure computation.
package fare

import (
	"fmt"
	"math"
	"sync"

	"campusride/internal/apperr"
	"campusride/internal/types"
)

type Engine struct {
	mu    sync.RWMutex
	rates RateTable
}

// NewEngine copies table; a nil table means DefaultRates.
func NewEngine(table RateTable) (*Engine, error) {
	if table == nil {
		table = DefaultRates()
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	rates := make(RateTable, len(table))
	for c, r := range table {
		rates[c] = r
	}
	return &Engine{rates: rates}, nil
}

func (e *Engine) Rate(class VehicleClass) (Rate, error) {
	e.mu.RLock()
	r, ok := e.rates[class]
	e.mu.RUnlock()
	if !ok {
		return Rate{}, fmt.Errorf("%w: unknown vehicle class %q", apperr.ErrInvalidInput, class)
	}
	return r, nil
}

// SetRate replaces one class's tariff. Quotes already issued keep their fare.
func (e *Engine) SetRate(class VehicleClass, r Rate) error {
	if _, err := ParseVehicleClass(string(class)); err != nil {
		return err
	}
	if r.PerKm < 0 || r.Minimum < 0 || math.IsNaN(r.PerKm) || math.IsNaN(r.Minimum) {
		return fmt.Errorf("%w: negative rate for %s", apperr.ErrInvalidInput, class)
	}
	e.mu.Lock()
	e.rates[class] = r
	e.mu.Unlock()
	return nil
}

// Rates returns a copy of the current table.
func (e *Engine) Rates() RateTable {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(RateTable, len(e.rates))
	for c, r := range e.rates {
		out[c] = r
	}
	return out
}

// BaseFare is max(distance * per-km rate, minimum) for the class.
func (e *Engine) BaseFare(distanceKm float64, class VehicleClass) (float64, error) {
	if distanceKm < 0 || math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) {
		return 0, fmt.Errorf("%w: distance must be a non-negative number", apperr.ErrInvalidInput)
	}
	r, err := e.Rate(class)
	if err != nil {
		return 0, err
	}
	return math.Max(distanceKm*r.PerKm, r.Minimum), nil
}

// ApplyDiscounts composes the student and shared multipliers, then rounds once.
func (e *Engine) ApplyDiscounts(amount float64, role RiderRole, shared bool) float64 {
	if role == RoleStudent {
		amount *= StudentDiscount
	}
	if shared {
		amount *= SharedDiscount
	}
	return types.RoundMoney(amount)
}

func (e *Engine) Quote(distanceKm float64, class VehicleClass, role RiderRole, shared bool) (float64, error) {
	base, err := e.BaseFare(distanceKm, class)
	if err != nil {
		return 0, err
	}
	return e.ApplyDiscounts(base, role, shared), nil
}

// SplitFare divides total in proportion to each leg, or equally when every leg is zero.
// Shares are rounded independently and may not add up to total exactly.
func (e *Engine) SplitFare(total float64, participants []Participant) (map[types.ID]float64, error) {
	if total < 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return nil, fmt.Errorf("%w: total fare must be a non-negative number", apperr.ErrInvalidInput)
	}
	if len(participants) == 0 {
		return nil, fmt.Errorf("%w: no participants", apperr.ErrInvalidInput)
	}
	seen := make(map[types.ID]struct{}, len(participants))
	var legs float64
	for _, p := range participants {
		if p.RiderID == "" {
			return nil, fmt.Errorf("%w: participant without rider id", apperr.ErrInvalidInput)
		}
		if _, dup := seen[p.RiderID]; dup {
			return nil, fmt.Errorf("%w: duplicate participant %s", apperr.ErrInvalidInput, p.RiderID)
		}
		if p.LegKm < 0 || math.IsNaN(p.LegKm) || math.IsInf(p.LegKm, 0) {
			return nil, fmt.Errorf("%w: negative leg for %s", apperr.ErrInvalidInput, p.RiderID)
		}
		seen[p.RiderID] = struct{}{}
		legs += p.LegKm
	}

	shares := make(map[types.ID]float64, len(participants))
	for _, p := range participants {
		if legs == 0 {
			shares[p.RiderID] = types.RoundMoney(total / float64(len(participants)))
			continue
		}
		shares[p.RiderID] = types.RoundMoney(total * p.LegKm / legs)
	}
	return shares, nil
}

// README: Bargain ledger: append-only offer history with strictly increasing timestamps.
package bargain

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"campusride/internal/apperr"
	"campusride/internal/types"
)

// Ledger records offers. It never touches a ride's fare; the ride service decides when an
// offer is accepted and whether the ride may still be bargained over.
type Ledger struct {
	store Store
	now   func() time.Time

	mu   sync.Mutex
	last time.Time
}

func NewLedger(store Store, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: store, now: now}
}

func (l *Ledger) RecordOffer(ctx context.Context, rideID, offeredBy types.ID, amount float64) (*Offer, error) {
	if rideID == "" || offeredBy == "" {
		return nil, fmt.Errorf("%w: ride and bidder are required", apperr.ErrInvalidInput)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return nil, fmt.Errorf("%w: offer must be a positive amount", apperr.ErrInvalidInput)
	}
	amount = types.RoundMoney(amount)
	if amount <= 0 {
		return nil, fmt.Errorf("%w: offer rounds to zero", apperr.ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	o, err := l.store.Append(ctx, Offer{
		RideID:    rideID,
		OfferedBy: offeredBy,
		Amount:    amount,
		CreatedAt: l.tick(),
	})
	if err != nil {
		return nil, fmt.Errorf("record offer: %w", err)
	}
	return &o, nil
}

func (l *Ledger) LatestOffer(ctx context.Context, rideID types.ID) (*Offer, bool, error) {
	offers, err := l.store.List(ctx, rideID)
	if err != nil {
		return nil, false, err
	}
	if len(offers) == 0 {
		return nil, false, nil
	}
	latest := offers[len(offers)-1]
	return &latest, true, nil
}

func (l *Ledger) History(ctx context.Context, rideID types.ID) ([]Offer, error) {
	return l.store.List(ctx, rideID)
}

// tick returns a timestamp strictly after the previous one, at the microsecond precision
// Postgres keeps. Callers hold l.mu.
func (l *Ledger) tick() time.Time {
	t := l.now().UTC().Truncate(time.Microsecond)
	if !t.After(l.last) {
		t = l.last.Add(time.Microsecond)
	}
	l.last = t
	return t
}

// README: Deterministic in-process payment gateway used when no Stripe key is configured.
package payment

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"campusride/internal/apperr"
	"campusride/internal/types"
)

// Decider reports whether a charge succeeds.
type Decider func(req ChargeRequest) bool

// SeededDecider succeeds with probability successRate using a seeded source, so a given
// seed always produces the same sequence of outcomes.
func SeededDecider(seed int64, successRate float64) Decider {
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(seed))
	return func(ChargeRequest) bool {
		mu.Lock()
		defer mu.Unlock()
		return rng.Float64() < successRate
	}
}

func AlwaysSucceed(ChargeRequest) bool { return true }
func AlwaysDecline(ChargeRequest) bool { return false }

type MockGateway struct {
	ledger   Ledger
	decide   Decider
	currency string
	now      func() time.Time
	mu       sync.Mutex
}

func NewMockGateway(ledger Ledger, decide Decider, currency string) *MockGateway {
	if decide == nil {
		decide = SeededDecider(1, 0.9)
	}
	return &MockGateway{ledger: ledger, decide: decide, currency: currency, now: time.Now}
}

func (g *MockGateway) Charge(ctx context.Context, req ChargeRequest) (*Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Amount < 0 {
		return nil, fmt.Errorf("%w: negative charge", apperr.ErrInvalidInput)
	}
	tx := Transaction{
		ID:        "TXN-" + string(types.NewID()),
		Kind:      KindCharge,
		RideID:    req.RideID,
		RiderID:   req.RiderID,
		Amount:    req.Amount,
		Currency:  g.currency,
		Status:    StatusSuccess,
		CreatedAt: g.now().UTC(),
	}
	ok := g.decide(req)
	if !ok {
		tx.Status = StatusFailed
		tx.Error = "payment processing failed"
	}
	if err := g.ledger.Save(ctx, tx); err != nil {
		return nil, fmt.Errorf("record charge: %w", err)
	}
	if !ok {
		return &tx, fmt.Errorf("%w: %s", apperr.ErrPaymentFailed, tx.Error)
	}
	return &tx, nil
}

func (g *MockGateway) Refund(ctx context.Context, transactionID string) (*Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	orig, err := refundable(ctx, g.ledger, transactionID)
	if err != nil {
		return nil, err
	}
	refund := Transaction{
		ID:         "REF-" + string(types.NewID()),
		Kind:       KindRefund,
		RideID:     orig.RideID,
		RiderID:    orig.RiderID,
		Amount:     orig.Amount,
		Currency:   orig.Currency,
		Status:     StatusSuccess,
		OriginalID: orig.ID,
		CreatedAt:  g.now().UTC(),
	}
	if err := g.ledger.Save(ctx, refund); err != nil {
		return nil, fmt.Errorf("record refund: %w", err)
	}
	orig.RefundID = refund.ID
	if err := g.ledger.Save(ctx, *orig); err != nil {
		return nil, fmt.Errorf("mark refunded: %w", err)
	}
	return &refund, nil
}

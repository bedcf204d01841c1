package payment

import (
	"context"
	"errors"
	"testing"

	"campusride/internal/apperr"
	"campusride/internal/testutil/pgtest"
)

func TestPGLedgerRefundFlow(t *testing.T) {
	ledger := NewPGLedger(pgtest.Open(t, "payment_transactions"))
	g := NewMockGateway(ledger, AlwaysSucceed, "inr")
	ctx := context.Background()

	paid, err := g.Charge(ctx, ChargeRequest{RideID: "r1", RiderID: "u1", Amount: 42.5})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	refund, err := g.Refund(ctx, paid.ID)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}

	got, err := ledger.Get(ctx, paid.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RefundID != refund.ID || got.Amount != 42.5 || got.Kind != KindCharge {
		t.Fatalf("charge after refund = %+v", got)
	}
	if _, err := g.Refund(ctx, paid.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("expected ErrConflict on second refund, got %v", err)
	}
	if _, err := ledger.Get(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

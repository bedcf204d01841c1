// README: Stripe PaymentIntents backed gateway.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"campusride/internal/apperr"
	"campusride/internal/types"
)

type StripeGateway struct {
	client        *client.API
	ledger        Ledger
	currency      string
	paymentMethod string
	mu            sync.Mutex
}

// NewStripeGateway confirms charges immediately against paymentMethod, the rider's saved
// method on the platform account.
func NewStripeGateway(secretKey, currency, paymentMethod string, ledger Ledger) *StripeGateway {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &StripeGateway{
		client:        sc,
		ledger:        ledger,
		currency:      currency,
		paymentMethod: paymentMethod,
	}
}

func (s *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (*Transaction, error) {
	if req.Amount < 0 {
		return nil, fmt.Errorf("%w: negative charge", apperr.ErrInvalidInput)
	}
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(types.MinorUnits(req.Amount)),
		Currency:      stripe.String(s.currency),
		PaymentMethod: stripe.String(s.paymentMethod),
		Description:   stripe.String("ride " + string(req.RideID)),
		Confirm:       stripe.Bool(true),
	}
	params.Context = ctx
	params.AddMetadata("ride_id", string(req.RideID))
	params.AddMetadata("rider_id", string(req.RiderID))

	tx := Transaction{
		ID:        "TXN-" + string(types.NewID()),
		Kind:      KindCharge,
		RideID:    req.RideID,
		RiderID:   req.RiderID,
		Amount:    req.Amount,
		Currency:  s.currency,
		CreatedAt: time.Now().UTC(),
	}

	pi, err := s.client.PaymentIntents.New(params)
	if err != nil {
		var serr *stripe.Error
		if !errors.As(err, &serr) || serr.Type != stripe.ErrorTypeCard {
			return nil, fmt.Errorf("failed to create payment intent: %w", err)
		}
		tx.Status = StatusFailed
		tx.Error = serr.Msg
	} else {
		tx.ProviderRef = pi.ID
		tx.Status = statusFromIntent(pi.Status)
		if tx.Status == StatusFailed {
			tx.Error = "payment intent " + string(pi.Status)
		}
	}

	if err := s.ledger.Save(ctx, tx); err != nil {
		return nil, fmt.Errorf("record charge: %w", err)
	}
	if tx.Status != StatusSuccess {
		return &tx, fmt.Errorf("%w: %s", apperr.ErrPaymentFailed, tx.Error)
	}
	return &tx, nil
}

func (s *StripeGateway) Refund(ctx context.Context, transactionID string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orig, err := refundable(ctx, s.ledger, transactionID)
	if err != nil {
		return nil, err
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(orig.ProviderRef),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	r, err := s.client.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create refund: %w", err)
	}

	refund := Transaction{
		ID:          "REF-" + string(types.NewID()),
		Kind:        KindRefund,
		RideID:      orig.RideID,
		RiderID:     orig.RiderID,
		Amount:      types.FromMinorUnits(r.Amount),
		Currency:    orig.Currency,
		Status:      StatusSuccess,
		OriginalID:  orig.ID,
		ProviderRef: r.ID,
		CreatedAt:   time.Now().UTC(),
	}
	if r.Status == stripe.RefundStatusFailed || r.Status == stripe.RefundStatusCanceled {
		refund.Status = StatusFailed
		refund.Error = "refund " + string(r.Status)
	}
	if err := s.ledger.Save(ctx, refund); err != nil {
		return nil, fmt.Errorf("record refund: %w", err)
	}
	if refund.Status != StatusSuccess {
		return &refund, fmt.Errorf("%w: %s", apperr.ErrPaymentFailed, refund.Error)
	}
	orig.RefundID = refund.ID
	if err := s.ledger.Save(ctx, *orig); err != nil {
		return nil, fmt.Errorf("mark refunded: %w", err)
	}
	return &refund, nil
}

// Charges are confirmed synchronously; anything short of succeeded is a failed charge.
func statusFromIntent(st stripe.PaymentIntentStatus) Status {
	if st == stripe.PaymentIntentStatusSucceeded {
		return StatusSuccess
	}
	return StatusFailed
}

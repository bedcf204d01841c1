// README: Payment oracle contract, transaction records and the ledger they are kept in.
package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"campusride/internal/apperr"
	"campusride/internal/types"
)

type Kind string

const (
	KindCharge Kind = "charge"
	KindRefund Kind = "refund"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

type Transaction struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	RideID      types.ID  `json:"ride_id"`
	RiderID     types.ID  `json:"rider_id"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	OriginalID  string    `json:"original_id,omitempty"`
	RefundID    string    `json:"refund_id,omitempty"`
	ProviderRef string    `json:"provider_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type ChargeRequest struct {
	RideID  types.ID
	RiderID types.ID
	Amount  float64
}

// Oracle charges and refunds. A declined charge returns the failed transaction together
// with an error wrapping apperr.ErrPaymentFailed.
type Oracle interface {
	Charge(ctx context.Context, req ChargeRequest) (*Transaction, error)
	Refund(ctx context.Context, transactionID string) (*Transaction, error)
}

type Ledger interface {
	Save(ctx context.Context, tx Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
}

type MemoryLedger struct {
	mu  sync.RWMutex
	txs map[string]Transaction
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{txs: make(map[string]Transaction)}
}

func (l *MemoryLedger) Save(_ context.Context, tx Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.txs[tx.ID] = tx
	return nil
}

func (l *MemoryLedger) Get(_ context.Context, id string) (*Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tx, ok := l.txs[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", apperr.ErrNotFound, id)
	}
	return &tx, nil
}

// refundable loads a charge and checks it can be refunded.
func refundable(ctx context.Context, ledger Ledger, id string) (*Transaction, error) {
	tx, err := ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Kind != KindCharge || tx.Status != StatusSuccess {
		return nil, fmt.Errorf("%w: cannot refund %s %s transaction", apperr.ErrInvalidTransition, tx.Status, tx.Kind)
	}
	if tx.RefundID != "" {
		return nil, fmt.Errorf("%w: transaction %s already refunded by %s", apperr.ErrConflict, tx.ID, tx.RefundID)
	}
	return tx, nil
}

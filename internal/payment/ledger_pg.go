// README: Postgres-backed payment ledger; Save upserts so refunds can link back to their charge.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campusride/internal/apperr"
	"campusride/internal/types"
)

type PGLedger struct {
	db *pgxpool.Pool
}

func NewPGLedger(db *pgxpool.Pool) *PGLedger {
	return &PGLedger{db: db}
}

func (l *PGLedger) Save(ctx context.Context, tx Transaction) error {
	_, err := l.db.Exec(ctx, `
		INSERT INTO payment_transactions (
			id, kind, ride_id, rider_id, amount, currency, status, error,
			original_id, refund_id, provider_ref, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
		    error = EXCLUDED.error,
		    refund_id = EXCLUDED.refund_id,
		    provider_ref = EXCLUDED.provider_ref`,
		tx.ID,
		string(tx.Kind),
		string(tx.RideID),
		string(tx.RiderID),
		tx.Amount,
		tx.Currency,
		string(tx.Status),
		tx.Error,
		tx.OriginalID,
		tx.RefundID,
		tx.ProviderRef,
		tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save transaction %s: %w", tx.ID, err)
	}
	return nil
}

func (l *PGLedger) Get(ctx context.Context, id string) (*Transaction, error) {
	var tx Transaction
	var kind, rideID, riderID, status string
	err := l.db.QueryRow(ctx, `
		SELECT id, kind, ride_id, rider_id, amount, currency, status, error,
		       original_id, refund_id, provider_ref, created_at
		FROM payment_transactions
		WHERE id = $1`, id,
	).Scan(
		&tx.ID, &kind, &rideID, &riderID, &tx.Amount, &tx.Currency, &status, &tx.Error,
		&tx.OriginalID, &tx.RefundID, &tx.ProviderRef, &tx.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %s", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	tx.Kind = Kind(kind)
	tx.RideID = types.ID(rideID)
	tx.RiderID = types.ID(riderID)
	tx.Status = Status(status)
	return &tx, nil
}

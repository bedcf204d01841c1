// README: Rate table overrides backed by PostgreSQL.
package fare

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"campusride/internal/apperr"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// LoadRates overlays rows from fare_rates on DefaultRates.
func (s *Store) LoadRates(ctx context.Context) (RateTable, error) {
	rows, err := s.db.Query(ctx, `SELECT vehicle_class, per_km, minimum FROM fare_rates`)
	if err != nil {
		return nil, fmt.Errorf("query fare_rates: %w", err)
	}
	defer rows.Close()

	table := DefaultRates()
	for rows.Next() {
		var class string
		var r Rate
		if err := rows.Scan(&class, &r.PerKm, &r.Minimum); err != nil {
			return nil, err
		}
		c, err := ParseVehicleClass(class)
		if err != nil {
			return nil, err
		}
		table[c] = r
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

func (s *Store) SaveRate(ctx context.Context, class VehicleClass, r Rate) error {
	if _, err := ParseVehicleClass(string(class)); err != nil {
		return err
	}
	if r.PerKm < 0 || r.Minimum < 0 {
		return fmt.Errorf("%w: negative rate for %s", apperr.ErrInvalidInput, class)
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO fare_rates (vehicle_class, per_km, minimum, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (vehicle_class) DO UPDATE
		SET per_km = EXCLUDED.per_km, minimum = EXCLUDED.minimum, updated_at = NOW()`,
		string(class), r.PerKm, r.Minimum,
	)
	return err
}

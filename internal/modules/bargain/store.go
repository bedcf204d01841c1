// README: Offer persistence: in-memory and PostgreSQL.
package bargain

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"campusride/internal/types"
)

// Store is append-only. Append assigns the offer ID.
type Store interface {
	Append(ctx context.Context, o Offer) (Offer, error)
	List(ctx context.Context, rideID types.ID) ([]Offer, error)
}

type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	offers map[types.ID][]Offer
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{offers: make(map[types.ID][]Offer)}
}

func (s *MemoryStore) Append(_ context.Context, o Offer) (Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	o.ID = s.nextID
	s.offers[o.RideID] = append(s.offers[o.RideID], o)
	return o, nil
}

func (s *MemoryStore) List(_ context.Context, rideID types.ID) ([]Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Offer, len(s.offers[rideID]))
	copy(out, s.offers[rideID])
	return out, nil
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, o Offer) (Offer, error) {
	err := s.db.QueryRow(ctx, `
		INSERT INTO bargain_offers (ride_id, offered_by, amount, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		string(o.RideID), string(o.OfferedBy), o.Amount, o.CreatedAt,
	).Scan(&o.ID)
	return o, err
}

func (s *PGStore) List(ctx context.Context, rideID types.ID) ([]Offer, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, ride_id, offered_by, amount, created_at
		FROM bargain_offers
		WHERE ride_id=$1
		ORDER BY created_at, id`, string(rideID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Offer
	for rows.Next() {
		var o Offer
		var rid, by string
		if err := rows.Scan(&o.ID, &rid, &by, &o.Amount, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.RideID = types.ID(rid)
		o.OfferedBy = types.ID(by)
		out = append(out, o)
	}
	return out, rows.Err()
}

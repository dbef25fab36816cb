package profile

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridehail/internal/types"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) GetDriver(ctx context.Context, id types.ID) (*Driver, error) {
	row := s.db.QueryRow(ctx, `
		SELECT d.id, d.name, d.phone,
		       COALESCE(AVG(r.score), 0)::float8, COUNT(r.id)
		FROM drivers d
		LEFT JOIN driver_reviews r ON r.driver_id = d.id
		WHERE d.id = $1
		GROUP BY d.id, d.name, d.phone`, string(id),
	)
	var d Driver
	err := row.Scan(&d.ID, &d.Name, &d.Phone, &d.Rating, &d.ReviewCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// MemoryStore is a fixed set of drivers, for tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	drivers map[types.ID]Driver
}

func NewMemoryStore(drivers ...Driver) *MemoryStore {
	s := &MemoryStore{drivers: make(map[types.ID]Driver, len(drivers))}
	for _, d := range drivers {
		s.drivers[d.ID] = d
	}
	return s
}

func (s *MemoryStore) Put(d Driver) {
	s.mu.Lock()
	s.drivers[d.ID] = d
	s.mu.Unlock()
}

func (s *MemoryStore) GetDriver(_ context.Context, id types.ID) (*Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

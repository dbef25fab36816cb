package presence

import (
	"context"
	"sort"
	"sync"

	"ridehail/internal/types"
)

// MemoryStore keeps presence in process. It hands out copies only.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[types.ID]Presence
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[types.ID]Presence)}
}

func (s *MemoryStore) Get(ctx context.Context, driverID types.ID) (*Presence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.rows[driverID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) Save(ctx context.Context, p *Presence) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.rows[p.DriverID] = *p
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]Presence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]Presence, 0, len(s.rows))
	for _, p := range s.rows {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	return out, nil
}

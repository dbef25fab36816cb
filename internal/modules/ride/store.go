// README: Ride store contract and its in-memory implementation.
package ride

import (
	"context"
	"sort"
	"sync"

	"ridehail/internal/errs"
	"ridehail/internal/types"
)

var ErrNotFound = errs.New(errs.CodeNotFound, "ride not found")

// Store persists rides. UpdateCAS writes the mutable fields of r only when the
// stored version still equals expected, and stores version expected+1.
// ListByDriver covers rides assigned to the driver and unassigned rides the
// driver created. Lists are newest first.
type Store interface {
	Create(ctx context.Context, r *Ride) error
	Get(ctx context.Context, id types.ID) (*Ride, error)
	UpdateCAS(ctx context.Context, r *Ride, expected int) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
	ListByDriver(ctx context.Context, driverID types.ID, activeOnly bool) ([]Ride, error)
	ListByPassenger(ctx context.Context, passengerID types.ID, activeOnly bool) ([]Ride, error)
}

type MemoryStore struct {
	mu     sync.RWMutex
	rides  map[types.ID]*Ride
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[types.ID]*Ride)}
}

func (s *MemoryStore) Create(ctx context.Context, r *Ride) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rides[r.ID]; ok {
		return errs.Newf(errs.CodeConflict, "ride %s already exists", r.ID)
	}
	s.rides[r.ID] = r.clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id types.ID) (*Ride, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.clone(), nil
}

func (s *MemoryStore) UpdateCAS(ctx context.Context, r *Ride, expected int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rides[r.ID]
	if !ok {
		return false, ErrNotFound
	}
	if cur.Version != expected {
		return false, nil
	}
	next := r.clone()
	next.Version = expected + 1
	s.rides[r.ID] = next
	return true, nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, e *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := *e
	ev.ID = int64(len(s.events) + 1)
	s.events = append(s.events, ev)
	return nil
}

// Events returns the audit log of one ride in append order.
func (s *MemoryStore) Events(rideID types.ID) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.RideID == rideID {
			out = append(out, e)
		}
	}
	return out
}

func (s *MemoryStore) ListByDriver(ctx context.Context, driverID types.ID, activeOnly bool) ([]Ride, error) {
	return s.list(ctx, activeOnly, func(r *Ride) bool {
		return r.isDriver(driverID) || (r.DriverID == nil && r.CreatedBy == driverID)
	})
}

func (s *MemoryStore) ListByPassenger(ctx context.Context, passengerID types.ID, activeOnly bool) ([]Ride, error) {
	return s.list(ctx, activeOnly, func(r *Ride) bool {
		return r.isPassenger(passengerID)
	})
}

func (s *MemoryStore) list(ctx context.Context, activeOnly bool, match func(r *Ride) bool) ([]Ride, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := []Ride{}
	for _, r := range s.rides {
		if !match(r) || (activeOnly && r.Status.Terminal()) {
			continue
		}
		out = append(out, *r.clone())
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(rides []Ride) {
	sort.Slice(rides, func(i, j int) bool {
		if !rides[i].CreatedAt.Equal(rides[j].CreatedAt) {
			return rides[i].CreatedAt.After(rides[j].CreatedAt)
		}
		return rides[i].ID > rides[j].ID
	})
}

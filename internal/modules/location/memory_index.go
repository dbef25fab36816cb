// README: In-process geo index with lock-free reads.
package location

import (
	"context"
	"sort"
	"sync"

	"ridehail/internal/modules/pricing"
	"ridehail/internal/types"
)

// MemoryIndex keeps one immutable Entry per driver in a sync.Map. Writers
// replace the whole value, so a concurrent search sees either the old or the
// new entry and never a partial one.
type MemoryIndex struct {
	entries sync.Map // types.ID -> Entry
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

func (m *MemoryIndex) Upsert(_ context.Context, e Entry) error {
	m.entries.Store(e.DriverID, e)
	return nil
}

func (m *MemoryIndex) Remove(_ context.Context, driverID types.ID) error {
	m.entries.Delete(driverID)
	return nil
}

func (m *MemoryIndex) NearbyParked(ctx context.Context, center types.Point, radiusKm float64) ([]Nearby, error) {
	if err := pricing.ValidatePoint(center); err != nil {
		return nil, err
	}
	radiusKm = effectiveRadius(radiusKm)

	result := []Nearby{}
	m.entries.Range(func(_, v any) bool {
		e := v.(Entry)
		if !e.Discoverable() {
			return true
		}
		d := pricing.Haversine(center, e.Location)
		if d <= radiusKm {
			result = append(result, Nearby{DriverID: e.DriverID, DistanceKm: d, Location: e.Location})
		}
		return ctx.Err() == nil
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sortByDistance(result)
	return result, nil
}

func (m *MemoryIndex) DriverIDs(ctx context.Context) ([]types.ID, error) {
	var ids []types.ID
	m.entries.Range(func(k, _ any) bool {
		ids = append(ids, k.(types.ID))
		return true
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Len returns the number of indexed drivers, discoverable or not.
func (m *MemoryIndex) Len() int {
	n := 0
	m.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

package location

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridehail/internal/errs"
	"ridehail/internal/types"
)

var redSquare = types.Point{Lat: 55.753215, Lng: 37.622504}

func TestMemoryIndex_NearbyParkedFiltersFlags(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	require.NoError(t, idx.Upsert(ctx, Entry{DriverID: "parked", Location: redSquare, ParkingMode: true, OnLine: true}))
	require.NoError(t, idx.Upsert(ctx, Entry{DriverID: "online_only", Location: redSquare, OnLine: true}))
	require.NoError(t, idx.Upsert(ctx, Entry{DriverID: "offline_parked", Location: redSquare, ParkingMode: true}))

	hits, err := idx.NearbyParked(ctx, redSquare, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, types.ID("parked"), hits[0].DriverID)
	assert.InDelta(t, 0, hits[0].DistanceKm, 0.0001)
	assert.Equal(t, redSquare, hits[0].Location)
}

func TestMemoryIndex_NearbyParkedRadius(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	near := types.Point{Lat: 55.751244, Lng: 37.618423} // ~0.34 km
	far := types.Point{Lat: 55.7963, Lng: 37.5379}      // ~7 km
	require.NoError(t, idx.Upsert(ctx, Entry{DriverID: "near", Location: near, ParkingMode: true, OnLine: true}))
	require.NoError(t, idx.Upsert(ctx, Entry{DriverID: "far", Location: far, ParkingMode: true, OnLine: true}))

	hits, err := idx.NearbyParked(ctx, redSquare, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, types.ID("near"), hits[0].DriverID)

	hits, err = idx.NearbyParked(ctx, redSquare, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1, "default radius is 5km")

	hits, err = idx.NearbyParked(ctx, redSquare, 20)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, types.ID("near"), hits[0].DriverID)
	assert.Equal(t, types.ID("far"), hits[1].DriverID)
	for _, h := range hits {
		assert.LessOrEqual(t, h.DistanceKm, 20.0)
	}
}

func TestMemoryIndex_UpsertReplacesAndRemove(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	require.NoError(t, idx.Upsert(ctx, Entry{DriverID: "d1", Location: redSquare, ParkingMode: true, OnLine: true}))
	require.NoError(t, idx.Upsert(ctx, Entry{DriverID: "d1", Location: redSquare, ParkingMode: false, OnLine: true}))
	assert.Equal(t, 1, idx.Len())

	hits, err := idx.NearbyParked(ctx, redSquare, 1)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, idx.Remove(ctx, "d1"))
	assert.Equal(t, 0, idx.Len())
	require.NoError(t, idx.Remove(ctx, "unknown"))
}

func TestMemoryIndex_InvalidCenter(t *testing.T) {
	_, err := NewMemoryIndex().NearbyParked(context.Background(), types.Point{Lat: 91, Lng: 0}, 1)
	assert.True(t, errs.Is(err, errs.CodeInvalidCoordinate))
}

func TestMemoryIndex_DriverIDs(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()
	require.NoError(t, idx.Upsert(ctx, Entry{DriverID: "b", Location: redSquare, OnLine: true}))
	require.NoError(t, idx.Upsert(ctx, Entry{DriverID: "a", Location: redSquare, ParkingMode: true, OnLine: true}))

	ids, err := idx.DriverIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"a", "b"}, ids)

	require.NoError(t, idx.Remove(ctx, "a"))
	ids, err = idx.DriverIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"b"}, ids)
}

func TestNearby_JSONCoordinates(t *testing.T) {
	b, err := json.Marshal([]Nearby{{DriverID: "d1", DistanceKm: 0.25, Location: types.Point{Lat: 43.2, Lng: 76.9}}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"driverId":"d1","distance":0.25,"coordinates":{"latitude":43.2,"longitude":76.9}}]`, string(b))
}

// TestMemoryIndex_ConcurrentReadersAndWriters is meant to be run with -race.
func TestMemoryIndex_ConcurrentReadersAndWriters(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	const writers = 8
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := types.ID(fmt.Sprintf("d%d", w))
			for i := 0; i < 200; i++ {
				_ = idx.Upsert(ctx, Entry{DriverID: id, Location: redSquare, ParkingMode: i%2 == 0, OnLine: true})
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				hits, err := idx.NearbyParked(ctx, redSquare, 1)
				if err != nil {
					t.Errorf("nearby: %v", err)
					return
				}
				for _, h := range hits {
					if h.Location != redSquare {
						t.Errorf("partial entry observed: %+v", h)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, writers, idx.Len())
}

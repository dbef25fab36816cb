// README: Geo index entries and nearby-search results.
package location

import (
	"context"
	"encoding/json"

	"ridehail/internal/types"
)

// DefaultRadiusKm applies when a search is issued without a positive radius.
const DefaultRadiusKm = 5.0

// Entry is the indexed view of one driver's presence.
type Entry struct {
	DriverID    types.ID
	Location    types.Point
	ParkingMode bool
	OnLine      bool
}

// Discoverable reports whether the entry may appear in a nearby-parked search.
func (e Entry) Discoverable() bool {
	return e.ParkingMode && e.OnLine
}

// Nearby is a single nearby-search hit.
type Nearby struct {
	DriverID   types.ID    `json:"driverId"`
	DistanceKm float64     `json:"distance"`
	Location   types.Point `json:"coordinates"`
}

// MarshalJSON writes coordinates as {"latitude","longitude"}, the shape
// clients send parking locations in.
func (n Nearby) MarshalJSON() ([]byte, error) {
	type coordinates struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	return json.Marshal(struct {
		DriverID    types.ID    `json:"driverId"`
		DistanceKm  float64     `json:"distance"`
		Coordinates coordinates `json:"coordinates"`
	}{n.DriverID, n.DistanceKm, coordinates{n.Location.Lat, n.Location.Lng}})
}

// Index answers radius queries over driver presence. It is a cache derived
// from the presence store; DriverIDs lists what it holds so a rebuild can
// drop drivers the store no longer knows.
type Index interface {
	Upsert(ctx context.Context, e Entry) error
	Remove(ctx context.Context, driverID types.ID) error
	NearbyParked(ctx context.Context, center types.Point, radiusKm float64) ([]Nearby, error)
	DriverIDs(ctx context.Context) ([]types.ID, error)
}

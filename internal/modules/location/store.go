// README: Geo index backed by a Redis GEO set.
package location

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ridehail/internal/modules/pricing"
	"ridehail/internal/types"
)

const parkedGeoKey = "geo:parked"

// radiusSlack widens the Redis search so that points Redis places just past the
// radius (its earth radius differs from ours) are still considered.
const radiusSlack = 1.01

// RedisIndex stores only discoverable drivers; anything else is removed from
// the set on upsert. Redis applies each GEOADD/ZREM atomically.
type RedisIndex struct {
	redis *redis.Client
	key   string
}

func NewRedisIndex(rdb *redis.Client) *RedisIndex {
	return &RedisIndex{redis: rdb, key: parkedGeoKey}
}

func (s *RedisIndex) Upsert(ctx context.Context, e Entry) error {
	if !e.Discoverable() {
		return s.Remove(ctx, e.DriverID)
	}
	return s.redis.GeoAdd(ctx, s.key, &redis.GeoLocation{
		Name:      string(e.DriverID),
		Longitude: e.Location.Lng,
		Latitude:  e.Location.Lat,
	}).Err()
}

func (s *RedisIndex) Remove(ctx context.Context, driverID types.ID) error {
	return s.redis.ZRem(ctx, s.key, string(driverID)).Err()
}

func (s *RedisIndex) NearbyParked(ctx context.Context, center types.Point, radiusKm float64) ([]Nearby, error) {
	if err := pricing.ValidatePoint(center); err != nil {
		return nil, err
	}
	radiusKm = effectiveRadius(radiusKm)

	locs, err := s.redis.GeoSearchLocation(ctx, s.key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Lng,
			Latitude:   center.Lat,
			Radius:     radiusKm * radiusSlack,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithCoord: true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geo search: %w", err)
	}

	result := make([]Nearby, 0, len(locs))
	for _, l := range locs {
		p := types.Point{Lat: l.Latitude, Lng: l.Longitude}
		d := pricing.Haversine(center, p)
		if d > radiusKm {
			continue
		}
		result = append(result, Nearby{DriverID: types.ID(l.Name), DistanceKm: d, Location: p})
	}
	sortByDistance(result)
	return result, nil
}

// DriverIDs returns the members of the GEO set, i.e. the discoverable drivers.
func (s *RedisIndex) DriverIDs(ctx context.Context) ([]types.ID, error) {
	names, err := s.redis.ZRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list geo members: %w", err)
	}
	ids := make([]types.ID, 0, len(names))
	for _, n := range names {
		ids = append(ids, types.ID(n))
	}
	return ids, nil
}

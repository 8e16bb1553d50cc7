// README: Matching store backed by Redis GEO. It is the driver registry's spatial index.
package matching

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ridebook/internal/types"
)

type Store struct {
	redis *redis.Client
	key   string
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis, key: driverGeoKey}
}

func (s *Store) AddDriver(ctx context.Context, id types.ID, p types.Point) error {
	err := s.redis.GeoAdd(ctx, s.key, &redis.GeoLocation{
		Name:      string(id),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
	if err != nil {
		return fmt.Errorf("geo add %s: %w", id, err)
	}
	return nil
}

func (s *Store) RemoveDriver(ctx context.Context, id types.ID) error {
	if err := s.redis.ZRem(ctx, s.key, string(id)).Err(); err != nil {
		return fmt.Errorf("geo remove %s: %w", id, err)
	}
	return nil
}

// NearbyDrivers returns drivers within radiusKm of p, nearest first.
func (s *Store) NearbyDrivers(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error) {
	results, err := s.redis.GeoSearch(ctx, s.key, &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geo search: %w", err)
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}

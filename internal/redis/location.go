package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	driverPositionsKey = "drivers:positions"
	driverSeenKey      = "drivers:seen"
)

// LocationStore keeps drivers' last-known positions in a Redis GEO set,
// with the time each position was reported in a companion hash.
type LocationStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client *redis.Client) *LocationStore {
	return &LocationStore{client: client, now: time.Now}
}

// UpdateLocation records the driver's position and report time atomically.
func (s *LocationStore) UpdateLocation(ctx context.Context, driverID string, lat, lng float64) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.GeoAdd(ctx, driverPositionsKey, &redis.GeoLocation{
			Name:      driverID,
			Longitude: lng,
			Latitude:  lat,
		})
		pipe.HSet(ctx, driverSeenKey, driverID, s.now().UTC().Unix())
		return nil
	})
	return err
}

// RemoveLocation drops the driver from both keys, e.g. when going offline.
func (s *LocationStore) RemoveLocation(ctx context.Context, driverID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, driverPositionsKey, driverID)
		pipe.HDel(ctx, driverSeenKey, driverID)
		return nil
	})
	return err
}

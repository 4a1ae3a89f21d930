package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aditya/go-saathi/internal/notify"
)

const (
	locationKeyPrefix = "saathi:location:"
	locationTTL       = 5 * time.Minute
)

// RideLocation is the rider's last reported position for a ride in progress.
type RideLocation struct {
	RideID     string    `json:"ride_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Heading    float64   `json:"heading,omitempty"`
	ReportedAt time.Time `json:"reported_at"`
}

// RideLocationCache keeps live ride positions in Redis. Positions expire on
// their own so a ride that stops reporting simply vanishes from tracking.
type RideLocationCache struct {
	client *redis.Client
}

func NewRideLocationCache(client *redis.Client) *RideLocationCache {
	return &RideLocationCache{client: client}
}

// UpdateLocation stores the latest position and fans it out on the ride's
// pub/sub channel for any tracking subscribers.
func (c *RideLocationCache) UpdateLocation(ctx context.Context, loc *RideLocation) error {
	if loc.ReportedAt.IsZero() {
		loc.ReportedAt = time.Now()
	}

	data, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("marshal location: %w", err)
	}

	key := locationKeyPrefix + loc.RideID
	if err := c.client.Set(ctx, key, data, locationTTL).Err(); err != nil {
		return fmt.Errorf("cache location: %w", err)
	}

	return c.client.Publish(ctx, notify.RideChannelPrefix+loc.RideID, data).Err()
}

// GetLocation returns the last known position, or nil if the ride has not
// reported recently.
func (c *RideLocationCache) GetLocation(ctx context.Context, rideID string) (*RideLocation, error) {
	data, err := c.client.Get(ctx, locationKeyPrefix+rideID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var loc RideLocation
	if err := json.Unmarshal(data, &loc); err != nil {
		return nil, fmt.Errorf("unmarshal location: %w", err)
	}
	return &loc, nil
}

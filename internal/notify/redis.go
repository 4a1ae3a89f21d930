package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/atomic"
)

const (
	// EventsChannel carries every event for fan-out consumers
	EventsChannel = "saathi:events"
	// RideChannelPrefix + rideID feeds per-ride subscribers (SSE tracking)
	RideChannelPrefix = "saathi:rides:"
)

// RedisSink publishes events over Redis pub/sub: once to the global channel
// and once to the ride's own channel.
type RedisSink struct {
	client  *redis.Client
	dropped atomic.Int64
}

func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client}
}

func (s *RedisSink) Publish(ctx context.Context, ev Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		s.dropped.Inc()
		return err
	}

	if err := s.client.Publish(ctx, EventsChannel, data).Err(); err != nil {
		s.dropped.Inc()
		return err
	}

	if ev.RideID != "" {
		if err := s.client.Publish(ctx, RideChannelPrefix+ev.RideID, data).Err(); err != nil {
			s.dropped.Inc()
			return err
		}
	}

	return nil
}

// Dropped reports how many publishes failed since startup
func (s *RedisSink) Dropped() int64 {
	return s.dropped.Load()
}

package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/atomic"
)

// KafkaSink writes events to a Kafka topic, keyed by ride so events for one
// ride stay ordered within a partition.
type KafkaSink struct {
	writer  *kafka.Writer
	dropped atomic.Int64
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (s *KafkaSink) Publish(ctx context.Context, ev Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		s.dropped.Inc()
		return err
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.RideID),
		Value: data,
	})
	if err != nil {
		s.dropped.Inc()
	}
	return err
}

// Dropped reports how many publishes failed since startup
func (s *KafkaSink) Dropped() int64 {
	return s.dropped.Load()
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

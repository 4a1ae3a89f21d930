package notify

import (
	"context"
	"log"
)

// LogSink writes events to the process log. Used when no broker is
// configured and in tests.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) Publish(_ context.Context, ev Event) error {
	log.Printf("event %s ride=%s booking=%s data=%v", ev.Type, ev.RideID, ev.BookingID, ev.Data)
	return nil
}

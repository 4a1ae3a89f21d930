// Package notify is the boundary between the booking state machine and
// whatever delivers messages to users. The core publishes typed events after
// each committed state change; delivery (email, SMS, push, sockets) belongs
// to external collaborators consuming a sink.
package notify

import (
	"context"
	"time"
)

// Event types emitted by the booking core
const (
	EventBookingCreated         = "booking.created"
	EventBookingAccepted        = "booking.accepted"
	EventBookingRejected        = "booking.rejected"
	EventBookingCancelled       = "booking.cancelled"
	EventBookingPickupOTPIssued = "booking.pickupOTPIssued"
	EventBookingPickupVerified  = "booking.pickupVerified"
	EventBookingDropoffVerified = "booking.dropoffVerified"
	EventBookingPaymentSettled  = "booking.paymentSettled"
	EventRideStarted            = "ride.started"
	EventRideCancelled          = "ride.cancelled"
	EventRideCompleted          = "ride.completed"
)

// Event carries enough data for a consumer to render a message without
// querying the core back.
type Event struct {
	Type        string                 `json:"type"`
	RideID      string                 `json:"ride_id,omitempty"`
	BookingID   string                 `json:"booking_id,omitempty"`
	RiderID     string                 `json:"rider_id,omitempty"`
	PassengerID string                 `json:"passenger_id,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}

// Sink receives events. Publish is best-effort from the caller's point of
// view: a failing sink must never roll back the state change that produced
// the event.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

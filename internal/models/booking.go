package models

import (
	"time"
)

// Booking status constants
const (
	BookingStatusPending       = "pending"
	BookingStatusConfirmed     = "confirmed"
	BookingStatusPickupPending = "pickup_pending"
	BookingStatusPickedUp      = "picked_up"
	BookingStatusDroppedOff    = "dropped_off"
	BookingStatusCompleted     = "completed"
	BookingStatusRejected      = "rejected"
	BookingStatusCancelled     = "cancelled"
)

// Payment status constants (booking payment sub-record)
const (
	PaymentStatusPending  = "pending"
	PaymentStatusSettled  = "settled"
	PaymentStatusRefunded = "refunded"
)

// Valid booking state transitions. Cancellation is passenger-initiated and
// only allowed before pickup.
var ValidBookingTransitions = map[string][]string{
	BookingStatusPending:       {BookingStatusConfirmed, BookingStatusRejected, BookingStatusCancelled},
	BookingStatusConfirmed:     {BookingStatusPickupPending, BookingStatusPickedUp, BookingStatusCancelled},
	BookingStatusPickupPending: {BookingStatusPickedUp},
	BookingStatusPickedUp:      {BookingStatusDroppedOff},
	BookingStatusDroppedOff:    {BookingStatusCompleted},
	BookingStatusCompleted:     {},
	BookingStatusRejected:      {},
	BookingStatusCancelled:     {},
}

type Booking struct {
	ID             string  `db:"id" json:"id"`
	RideID         string  `db:"ride_id" json:"ride_id"`
	PassengerID    string  `db:"passenger_id" json:"passenger_id"`
	RiderID        string  `db:"rider_id" json:"rider_id"`
	Seats          int     `db:"seats" json:"seats"`
	PickupLat      float64 `db:"pickup_lat" json:"pickup_lat"`
	PickupLng      float64 `db:"pickup_lng" json:"pickup_lng"`
	PickupAddress  *string `db:"pickup_address" json:"pickup_address,omitempty"`
	DropoffLat     float64 `db:"dropoff_lat" json:"dropoff_lat"`
	DropoffLng     float64 `db:"dropoff_lng" json:"dropoff_lng"`
	DropoffAddress *string `db:"dropoff_address" json:"dropoff_address,omitempty"`
	Status         string  `db:"status" json:"status"`

	// Payment sub-record
	PaymentMethod      string     `db:"payment_method" json:"payment_method"`
	RideFare           float64    `db:"ride_fare" json:"ride_fare"`
	Commission         float64    `db:"commission" json:"commission"`
	TotalAmount        float64    `db:"total_amount" json:"total_amount"`
	PaymentStatus      string     `db:"payment_status" json:"payment_status"`
	PaymentConfirmedBy *string    `db:"payment_confirmed_by" json:"payment_confirmed_by,omitempty"`
	PaymentConfirmedAt *time.Time `db:"payment_confirmed_at" json:"payment_confirmed_at,omitempty"`
	RefundIssued       bool       `db:"refund_issued" json:"refund_issued"`

	// Verification sub-record. The dropoff code is only generated once
	// pickup verification succeeds and carries no expiry.
	PickupOTP           *string    `db:"pickup_otp" json:"-"`
	PickupOTPExpiresAt  *time.Time `db:"pickup_otp_expires_at" json:"-"`
	PickupAttempts      int        `db:"pickup_attempts" json:"pickup_attempts"`
	PickupVerified      bool       `db:"pickup_verified" json:"pickup_verified"`
	PickupVerifiedAt    *time.Time `db:"pickup_verified_at" json:"pickup_verified_at,omitempty"`
	DropoffOTP          *string    `db:"dropoff_otp" json:"-"`
	DropoffOTPExpiresAt *time.Time `db:"dropoff_otp_expires_at" json:"-"`
	DropoffAttempts     int        `db:"dropoff_attempts" json:"dropoff_attempts"`
	DropoffVerified     bool       `db:"dropoff_verified" json:"dropoff_verified"`
	DropoffVerifiedAt   *time.Time `db:"dropoff_verified_at" json:"dropoff_verified_at,omitempty"`

	// Journey record
	JourneyStartedAt    *time.Time `db:"journey_started_at" json:"journey_started_at,omitempty"`
	JourneyEndedAt      *time.Time `db:"journey_ended_at" json:"journey_ended_at,omitempty"`
	JourneyDurationMins *int       `db:"journey_duration_mins" json:"journey_duration_mins,omitempty"`

	// Acceptance / cancellation record
	AcceptedAt         *time.Time `db:"accepted_at" json:"accepted_at,omitempty"`
	AcceptanceMessage  *string    `db:"acceptance_message" json:"acceptance_message,omitempty"`
	CancelledBy        *string    `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`

	// SeatsReleased guards against double-releasing seat inventory on
	// reject/cancel retries.
	SeatsReleased bool `db:"seats_released" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type CreateBookingRequest struct {
	RideID        string   `json:"ride_id" validate:"required,uuid"`
	PassengerID   string   `json:"passenger_id" validate:"required,uuid"`
	Seats         int      `json:"seats" validate:"required,min=1,max=8"`
	Pickup        Location `json:"pickup" validate:"required"`
	Dropoff       Location `json:"dropoff" validate:"required"`
	PaymentMethod string   `json:"payment_method" validate:"required,oneof=cash upi wallet"`
}

type AcceptBookingRequest struct {
	Message string `json:"message,omitempty" validate:"max=500"`
}

type RejectBookingRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

type VerifyOTPRequest struct {
	OTP string `json:"otp" validate:"required,len=6,numeric"`
}

type PaymentInfo struct {
	Method      string     `json:"method"`
	RideFare    float64    `json:"ride_fare"`
	Commission  float64    `json:"commission"`
	TotalAmount float64    `json:"total_amount"`
	Status      string     `json:"status"`
	ConfirmedBy *string    `json:"confirmed_by,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	Refunded    bool       `json:"refunded"`
}

type VerificationPhaseInfo struct {
	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	Attempts   int        `json:"attempts"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

type BookingResponse struct {
	ID           string                `json:"id"`
	RideID       string                `json:"ride_id"`
	PassengerID  string                `json:"passenger_id"`
	RiderID      string                `json:"rider_id"`
	Status       string                `json:"status"`
	Seats        int                   `json:"seats"`
	Pickup       Location              `json:"pickup"`
	Dropoff      Location              `json:"dropoff"`
	Payment      PaymentInfo           `json:"payment"`
	PickupPhase  VerificationPhaseInfo `json:"pickup_verification"`
	DropoffPhase VerificationPhaseInfo `json:"dropoff_verification"`
	JourneyStart *time.Time            `json:"journey_started_at,omitempty"`
	JourneyEnd   *time.Time            `json:"journey_ended_at,omitempty"`
	DurationMins *int                  `json:"journey_duration_mins,omitempty"`
	CancelledBy  *string               `json:"cancelled_by,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

func (b *Booking) ToResponse() *BookingResponse {
	resp := &BookingResponse{
		ID:          b.ID,
		RideID:      b.RideID,
		PassengerID: b.PassengerID,
		RiderID:     b.RiderID,
		Status:      b.Status,
		Seats:       b.Seats,
		Pickup: Location{
			Lat: b.PickupLat,
			Lng: b.PickupLng,
		},
		Dropoff: Location{
			Lat: b.DropoffLat,
			Lng: b.DropoffLng,
		},
		Payment: PaymentInfo{
			Method:      b.PaymentMethod,
			RideFare:    b.RideFare,
			Commission:  b.Commission,
			TotalAmount: b.TotalAmount,
			Status:      b.PaymentStatus,
			ConfirmedBy: b.PaymentConfirmedBy,
			ConfirmedAt: b.PaymentConfirmedAt,
			Refunded:    b.RefundIssued,
		},
		PickupPhase: VerificationPhaseInfo{
			Verified:   b.PickupVerified,
			VerifiedAt: b.PickupVerifiedAt,
			Attempts:   b.PickupAttempts,
			ExpiresAt:  b.PickupOTPExpiresAt,
		},
		DropoffPhase: VerificationPhaseInfo{
			Verified:   b.DropoffVerified,
			VerifiedAt: b.DropoffVerifiedAt,
			Attempts:   b.DropoffAttempts,
			ExpiresAt:  b.DropoffOTPExpiresAt,
		},
		JourneyStart: b.JourneyStartedAt,
		JourneyEnd:   b.JourneyEndedAt,
		DurationMins: b.JourneyDurationMins,
		CancelledBy:  b.CancelledBy,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}

	if b.PickupAddress != nil {
		resp.Pickup.Address = *b.PickupAddress
	}
	if b.DropoffAddress != nil {
		resp.Dropoff.Address = *b.DropoffAddress
	}

	return resp
}

// CanTransitionTo checks if a booking can transition to a new status
func (b *Booking) CanTransitionTo(newStatus string) bool {
	validNextStates, exists := ValidBookingTransitions[b.Status]
	if !exists {
		return false
	}

	for _, state := range validNextStates {
		if state == newStatus {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transition is possible
func (b *Booking) IsTerminal() bool {
	return b.Status == BookingStatusCompleted ||
		b.Status == BookingStatusRejected ||
		b.Status == BookingStatusCancelled
}

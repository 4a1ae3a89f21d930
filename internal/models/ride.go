package models

import (
	"time"
)

// Ride status constants
const (
	RideStatusActive     = "active"
	RideStatusInProgress = "in_progress"
	RideStatusCompleted  = "completed"
	RideStatusCancelled  = "cancelled"
)

// Valid ride state transitions
var ValidRideTransitions = map[string][]string{
	RideStatusActive:     {RideStatusInProgress, RideStatusCancelled},
	RideStatusInProgress: {RideStatusCompleted},
	RideStatusCompleted:  {},
	RideStatusCancelled:  {},
}

// Payment methods
const (
	PaymentMethodCash   = "cash"
	PaymentMethodUPI    = "upi"
	PaymentMethodWallet = "wallet"
)

// Actor roles recorded on transitions
const (
	ActorRider     = "rider"
	ActorPassenger = "passenger"
	ActorSystem    = "system"
)

type Location struct {
	Lat     float64 `json:"lat" validate:"required,latitude"`
	Lng     float64 `json:"lng" validate:"required,longitude"`
	Address string  `json:"address,omitempty"`
}

type Ride struct {
	ID                 string    `db:"id" json:"id"`
	RiderID            string    `db:"rider_id" json:"rider_id"`
	OriginLat          float64   `db:"origin_lat" json:"origin_lat"`
	OriginLng          float64   `db:"origin_lng" json:"origin_lng"`
	OriginAddress      *string   `db:"origin_address" json:"origin_address,omitempty"`
	DestinationLat     float64   `db:"destination_lat" json:"destination_lat"`
	DestinationLng     float64   `db:"destination_lng" json:"destination_lng"`
	DestinationAddress *string   `db:"destination_address" json:"destination_address,omitempty"`
	DepartureTime      time.Time `db:"departure_time" json:"departure_time"`
	TotalSeats         int       `db:"total_seats" json:"total_seats"`
	AvailableSeats     int       `db:"available_seats" json:"available_seats"`
	PricePerSeat       float64   `db:"price_per_seat" json:"price_per_seat"`
	AutoAccept         bool      `db:"auto_accept" json:"auto_accept"`
	AllowedGender      *string   `db:"allowed_gender" json:"allowed_gender,omitempty"`
	Status             string    `db:"status" json:"status"`
	DistanceKm         *float64  `db:"distance_km" json:"distance_km,omitempty"`
	Earnings           float64   `db:"earnings" json:"earnings"`
	CancelledBy        *string   `db:"cancelled_by" json:"cancelled_by,omitempty"`
	CancellationReason *string   `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

type CreateRideRequest struct {
	RiderID       string    `json:"rider_id" validate:"required,uuid"`
	Origin        Location  `json:"origin" validate:"required"`
	Destination   Location  `json:"destination" validate:"required"`
	DepartureTime time.Time `json:"departure_time" validate:"required"`
	TotalSeats    int       `json:"total_seats" validate:"required,min=1,max=8"`
	PricePerSeat  float64   `json:"price_per_seat" validate:"required,gt=0"`
	AutoAccept    bool      `json:"auto_accept"`
	AllowedGender string    `json:"allowed_gender,omitempty" validate:"omitempty,oneof=male female other"`
}

type CancelRideRequest struct {
	Reason string `json:"reason,omitempty"`
}

type RideResponse struct {
	ID             string        `json:"id"`
	Status         string        `json:"status"`
	Rider          *UserResponse `json:"rider,omitempty"`
	Origin         Location      `json:"origin"`
	Destination    Location      `json:"destination"`
	DepartureTime  time.Time     `json:"departure_time"`
	TotalSeats     int           `json:"total_seats"`
	AvailableSeats int           `json:"available_seats"`
	PricePerSeat   float64       `json:"price_per_seat"`
	AutoAccept     bool          `json:"auto_accept"`
	DistanceKm     *float64      `json:"distance_km,omitempty"`
	Earnings       float64       `json:"earnings"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (r *Ride) ToResponse() *RideResponse {
	resp := &RideResponse{
		ID:     r.ID,
		Status: r.Status,
		Origin: Location{
			Lat: r.OriginLat,
			Lng: r.OriginLng,
		},
		Destination: Location{
			Lat: r.DestinationLat,
			Lng: r.DestinationLng,
		},
		DepartureTime:  r.DepartureTime,
		TotalSeats:     r.TotalSeats,
		AvailableSeats: r.AvailableSeats,
		PricePerSeat:   r.PricePerSeat,
		AutoAccept:     r.AutoAccept,
		DistanceKm:     r.DistanceKm,
		Earnings:       r.Earnings,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}

	if r.OriginAddress != nil {
		resp.Origin.Address = *r.OriginAddress
	}
	if r.DestinationAddress != nil {
		resp.Destination.Address = *r.DestinationAddress
	}

	return resp
}

// CanTransitionTo checks if a ride can transition to a new status
func (r *Ride) CanTransitionTo(newStatus string) bool {
	validNextStates, exists := ValidRideTransitions[r.Status]
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

// IsOpen returns true if the ride still accepts new bookings
func (r *Ride) IsOpen() bool {
	return r.Status == RideStatusActive
}

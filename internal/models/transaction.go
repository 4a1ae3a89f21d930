package models

import (
	"time"
)

// Transaction status constants
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusRefunded  = "refunded"
)

// Transaction is the platform ledger row co-created with a booking. Amounts
// never change after creation; only the status and confirming actor do.
type Transaction struct {
	ID          string    `db:"id" json:"id"`
	BookingID   string    `db:"booking_id" json:"booking_id"`
	RideID      string    `db:"ride_id" json:"ride_id"`
	PassengerID string    `db:"passenger_id" json:"passenger_id"`
	RiderID     string    `db:"rider_id" json:"rider_id"`
	RideFare    float64   `db:"ride_fare" json:"ride_fare"`
	Commission  float64   `db:"commission" json:"commission"`
	Amount      float64   `db:"amount" json:"amount"`
	Currency    string    `db:"currency" json:"currency"`
	Status      string    `db:"status" json:"status"`
	ConfirmedBy *string   `db:"confirmed_by" json:"confirmed_by,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// FareBreakdown is the fare/commission split for a booking
type FareBreakdown struct {
	RideFare   float64 `json:"ride_fare"`
	Commission float64 `json:"commission"`
	Total      float64 `json:"total"`
}

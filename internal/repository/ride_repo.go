package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/aditya/go-saathi/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type RideRepository interface {
	Create(ctx context.Context, ride *models.Ride) error
	GetByID(ctx context.Context, id string) (*models.Ride, error)
	GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Ride, error)
	UpdateStatusIf(ctx context.Context, id, from, to string) (bool, error)
	ReserveSeats(ctx context.Context, tx *sqlx.Tx, rideID string, seats int) (bool, error)
	ReleaseSeats(ctx context.Context, tx *sqlx.Tx, rideID string, seats int) error
	MarkCancelled(ctx context.Context, tx *sqlx.Tx, id, cancelledBy, reason string) (bool, error)
	CompleteIfInProgress(ctx context.Context, id string, earnings float64) (bool, error)
	ListOpenByRider(ctx context.Context, riderID string) ([]models.Ride, error)
}

type rideRepository struct {
	db *sqlx.DB
}

func NewRideRepository(db *sqlx.DB) RideRepository {
	return &rideRepository{db: db}
}

func (r *rideRepository) Create(ctx context.Context, ride *models.Ride) error {
	if ride.ID == "" {
		ride.ID = uuid.New().String()
	}
	ride.CreatedAt = time.Now()
	ride.UpdatedAt = time.Now()
	ride.Status = models.RideStatusActive
	ride.AvailableSeats = ride.TotalSeats

	query := `
		INSERT INTO rides (id, rider_id, origin_lat, origin_lng, origin_address,
			destination_lat, destination_lng, destination_address, departure_time,
			total_seats, available_seats, price_per_seat, auto_accept, allowed_gender,
			status, distance_km, earnings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	_, err := r.db.ExecContext(ctx, query,
		ride.ID, ride.RiderID, ride.OriginLat, ride.OriginLng, ride.OriginAddress,
		ride.DestinationLat, ride.DestinationLng, ride.DestinationAddress, ride.DepartureTime,
		ride.TotalSeats, ride.AvailableSeats, ride.PricePerSeat, ride.AutoAccept, ride.AllowedGender,
		ride.Status, ride.DistanceKm, ride.Earnings, ride.CreatedAt, ride.UpdatedAt)
	return err
}

func (r *rideRepository) GetByID(ctx context.Context, id string) (*models.Ride, error) {
	var ride models.Ride
	query := `SELECT * FROM rides WHERE id = $1`
	err := r.db.GetContext(ctx, &ride, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &ride, err
}

// GetByIDForUpdate gets a ride with a FOR UPDATE row lock. Seat mutations and
// cascading cancellation must hold this lock for the whole transaction.
func (r *rideRepository) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Ride, error) {
	var ride models.Ride
	query := `SELECT * FROM rides WHERE id = $1 FOR UPDATE`
	err := tx.GetContext(ctx, &ride, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &ride, err
}

// UpdateStatusIf writes the new status only if the current status matches the
// expected one. The returned bool reports whether this caller won the write.
func (r *rideRepository) UpdateStatusIf(ctx context.Context, id, from, to string) (bool, error) {
	query := `UPDATE rides SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, to, time.Now(), id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ReserveSeats decrements available seats in a single guarded UPDATE. It
// never splits the check and the write across round trips, so two passengers
// racing for the last seat resolve to exactly one winner.
func (r *rideRepository) ReserveSeats(ctx context.Context, tx *sqlx.Tx, rideID string, seats int) (bool, error) {
	query := `
		UPDATE rides
		SET available_seats = available_seats - $2, updated_at = $3
		WHERE id = $1 AND status = $4 AND available_seats >= $2
	`
	res, err := tx.ExecContext(ctx, query, rideID, seats, time.Now(), models.RideStatusActive)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ReleaseSeats returns seats to the pool, capped at total_seats. Callers are
// responsible for calling it at most once per booking (see
// BookingRepository.MarkSeatsReleased).
func (r *rideRepository) ReleaseSeats(ctx context.Context, tx *sqlx.Tx, rideID string, seats int) error {
	query := `
		UPDATE rides
		SET available_seats = LEAST(total_seats, available_seats + $2), updated_at = $3
		WHERE id = $1
	`
	_, err := tx.ExecContext(ctx, query, rideID, seats, time.Now())
	return err
}

func (r *rideRepository) MarkCancelled(ctx context.Context, tx *sqlx.Tx, id, cancelledBy, reason string) (bool, error) {
	query := `
		UPDATE rides
		SET status = $2, cancelled_by = $3, cancellation_reason = $4, updated_at = $5
		WHERE id = $1 AND status = $6
	`
	res, err := tx.ExecContext(ctx, query,
		id, models.RideStatusCancelled, cancelledBy, reason, time.Now(), models.RideStatusActive)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CompleteIfInProgress is the ride-completion idempotency gate: the status
// transition and the earnings rollup land together, and only one caller ever
// sees rows affected.
func (r *rideRepository) CompleteIfInProgress(ctx context.Context, id string, earnings float64) (bool, error) {
	query := `
		UPDATE rides
		SET status = $2, earnings = $3, updated_at = $4
		WHERE id = $1 AND status = $5
	`
	res, err := r.db.ExecContext(ctx, query,
		id, models.RideStatusCompleted, earnings, time.Now(), models.RideStatusInProgress)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *rideRepository) ListOpenByRider(ctx context.Context, riderID string) ([]models.Ride, error) {
	var rides []models.Ride
	query := `
		SELECT * FROM rides
		WHERE rider_id = $1 AND status IN ($2, $3)
		ORDER BY departure_time ASC
	`
	err := r.db.SelectContext(ctx, &rides, query, riderID, models.RideStatusActive, models.RideStatusInProgress)
	return rides, err
}

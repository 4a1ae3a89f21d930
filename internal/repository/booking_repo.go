package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/aditya/go-saathi/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type BookingRepository interface {
	Create(ctx context.Context, tx *sqlx.Tx, booking *models.Booking) error
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Booking, error)
	GetActiveByRideAndPassenger(ctx context.Context, rideID, passengerID string) (*models.Booking, error)
	ListByRide(ctx context.Context, rideID string) ([]models.Booking, error)
	ListByRideAndStatus(ctx context.Context, rideID string, statuses ...string) ([]models.Booking, error)
	CountUnfinishedByRide(ctx context.Context, rideID string) (int, error)
	Accept(ctx context.Context, id, message string) (bool, error)
	MarkRejected(ctx context.Context, tx *sqlx.Tx, id, reason string) (bool, error)
	MarkCancelled(ctx context.Context, tx *sqlx.Tx, id, cancelledBy, reason string, refund bool) (bool, error)
	MarkSeatsReleased(ctx context.Context, tx *sqlx.Tx, id string) (bool, error)
	SetPickupOTP(ctx context.Context, id, code string, expiresAt *time.Time) (bool, error)
	IncrementPickupAttempts(ctx context.Context, id string) (int, error)
	IncrementDropoffAttempts(ctx context.Context, id string) (int, error)
	MarkPickupVerified(ctx context.Context, id, dropoffCode string) (bool, error)
	MarkDropoffVerified(ctx context.Context, id string, durationMins int) (bool, error)
	SettlePayment(ctx context.Context, tx *sqlx.Tx, id, confirmedBy string) (bool, error)
}

type bookingRepository struct {
	db *sqlx.DB
}

func NewBookingRepository(db *sqlx.DB) BookingRepository {
	return &bookingRepository{db: db}
}

func (r *bookingRepository) Create(ctx context.Context, tx *sqlx.Tx, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.New().String()
	}
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = time.Now()
	booking.PaymentStatus = models.PaymentStatusPending

	query := `
		INSERT INTO bookings (id, ride_id, passenger_id, rider_id, seats,
			pickup_lat, pickup_lng, pickup_address, dropoff_lat, dropoff_lng, dropoff_address,
			status, payment_method, ride_fare, commission, total_amount, payment_status,
			refund_issued, pickup_attempts, dropoff_attempts, pickup_verified, dropoff_verified,
			seats_released, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			false, 0, 0, false, false, false, $18, $19)
	`
	_, err := tx.ExecContext(ctx, query,
		booking.ID, booking.RideID, booking.PassengerID, booking.RiderID, booking.Seats,
		booking.PickupLat, booking.PickupLng, booking.PickupAddress,
		booking.DropoffLat, booking.DropoffLng, booking.DropoffAddress,
		booking.Status, booking.PaymentMethod, booking.RideFare, booking.Commission,
		booking.TotalAmount, booking.PaymentStatus, booking.CreatedAt, booking.UpdatedAt)
	return err
}

func (r *bookingRepository) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT * FROM bookings WHERE id = $1`
	err := r.db.GetContext(ctx, &booking, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &booking, err
}

func (r *bookingRepository) GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT * FROM bookings WHERE id = $1 FOR UPDATE`
	err := tx.GetContext(ctx, &booking, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &booking, err
}

// GetActiveByRideAndPassenger returns the passenger's non-terminal booking on
// a ride, if any. A passenger may hold at most one.
func (r *bookingRepository) GetActiveByRideAndPassenger(ctx context.Context, rideID, passengerID string) (*models.Booking, error) {
	var booking models.Booking
	query := `
		SELECT * FROM bookings
		WHERE ride_id = $1 AND passenger_id = $2 AND status NOT IN ($3, $4, $5)
		ORDER BY created_at DESC
		LIMIT 1
	`
	err := r.db.GetContext(ctx, &booking, query, rideID, passengerID,
		models.BookingStatusCompleted, models.BookingStatusRejected, models.BookingStatusCancelled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &booking, err
}

func (r *bookingRepository) ListByRide(ctx context.Context, rideID string) ([]models.Booking, error) {
	var bookings []models.Booking
	query := `SELECT * FROM bookings WHERE ride_id = $1 ORDER BY created_at ASC`
	err := r.db.SelectContext(ctx, &bookings, query, rideID)
	return bookings, err
}

func (r *bookingRepository) ListByRideAndStatus(ctx context.Context, rideID string, statuses ...string) ([]models.Booking, error) {
	var bookings []models.Booking
	query := `SELECT * FROM bookings WHERE ride_id = $1 AND status = ANY($2) ORDER BY created_at ASC`
	err := r.db.SelectContext(ctx, &bookings, query, rideID, pq.Array(statuses))
	return bookings, err
}

// CountUnfinishedByRide counts bookings that still stand between the ride and
// completion: anything not yet COMPLETED and not a terminal failure.
func (r *bookingRepository) CountUnfinishedByRide(ctx context.Context, rideID string) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM bookings
		WHERE ride_id = $1 AND status NOT IN ($2, $3, $4)
	`
	err := r.db.GetContext(ctx, &count, query, rideID,
		models.BookingStatusCompleted, models.BookingStatusRejected, models.BookingStatusCancelled)
	return count, err
}

// Accept moves PENDING to CONFIRMED. No pickup OTP is issued here; that
// happens when the ride actually starts.
func (r *bookingRepository) Accept(ctx context.Context, id, message string) (bool, error) {
	now := time.Now()
	var msg *string
	if message != "" {
		msg = &message
	}
	query := `
		UPDATE bookings
		SET status = $2, accepted_at = $3, acceptance_message = $4, updated_at = $3
		WHERE id = $1 AND status = $5
	`
	res, err := r.db.ExecContext(ctx, query,
		id, models.BookingStatusConfirmed, now, msg, models.BookingStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *bookingRepository) MarkRejected(ctx context.Context, tx *sqlx.Tx, id, reason string) (bool, error) {
	now := time.Now()
	var rsn *string
	if reason != "" {
		rsn = &reason
	}
	query := `
		UPDATE bookings
		SET status = $2, cancelled_by = $3, cancellation_reason = $4, cancelled_at = $5, updated_at = $5
		WHERE id = $1 AND status = $6
	`
	res, err := tx.ExecContext(ctx, query,
		id, models.BookingStatusRejected, models.ActorRider, rsn, now, models.BookingStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkCancelled terminalizes a PENDING or CONFIRMED booking. When refund is
// true the payment sub-record flips to REFUNDED in the same write.
func (r *bookingRepository) MarkCancelled(ctx context.Context, tx *sqlx.Tx, id, cancelledBy, reason string, refund bool) (bool, error) {
	now := time.Now()
	var rsn *string
	if reason != "" {
		rsn = &reason
	}

	query := `
		UPDATE bookings
		SET status = $2, cancelled_by = $3, cancellation_reason = $4, cancelled_at = $5, updated_at = $5
		WHERE id = $1 AND status IN ($6, $7)
	`
	args := []interface{}{id, models.BookingStatusCancelled, cancelledBy, rsn, now,
		models.BookingStatusPending, models.BookingStatusConfirmed}

	if refund {
		query = `
			UPDATE bookings
			SET status = $2, cancelled_by = $3, cancellation_reason = $4, cancelled_at = $5, updated_at = $5,
				payment_status = $8, refund_issued = true
			WHERE id = $1 AND status IN ($6, $7)
		`
		args = append(args, models.PaymentStatusRefunded)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkSeatsReleased flips the per-booking release guard. Only the caller that
// sees rows affected may return seats to the ride, which keeps Release
// idempotent under retries.
func (r *bookingRepository) MarkSeatsReleased(ctx context.Context, tx *sqlx.Tx, id string) (bool, error) {
	query := `UPDATE bookings SET seats_released = true, updated_at = $2 WHERE id = $1 AND seats_released = false`
	res, err := tx.ExecContext(ctx, query, id, time.Now())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetPickupOTP stores a freshly issued pickup code and moves the booking to
// PICKUP_PENDING. Valid only from CONFIRMED.
func (r *bookingRepository) SetPickupOTP(ctx context.Context, id, code string, expiresAt *time.Time) (bool, error) {
	query := `
		UPDATE bookings
		SET pickup_otp = $2, pickup_otp_expires_at = $3, status = $4, updated_at = $5
		WHERE id = $1 AND status = $6
	`
	res, err := r.db.ExecContext(ctx, query,
		id, code, expiresAt, models.BookingStatusPickupPending, time.Now(), models.BookingStatusConfirmed)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// IncrementPickupAttempts bumps the counter and returns the value the
// database recorded, so concurrent submissions each see their own slot
// against the attempt limit.
func (r *bookingRepository) IncrementPickupAttempts(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE bookings SET pickup_attempts = pickup_attempts + 1, updated_at = $2
		WHERE id = $1
		RETURNING pickup_attempts
	`
	var attempts int
	err := r.db.GetContext(ctx, &attempts, query, id, time.Now())
	return attempts, err
}

func (r *bookingRepository) IncrementDropoffAttempts(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE bookings SET dropoff_attempts = dropoff_attempts + 1, updated_at = $2
		WHERE id = $1
		RETURNING dropoff_attempts
	`
	var attempts int
	err := r.db.GetContext(ctx, &attempts, query, id, time.Now())
	return attempts, err
}

// MarkPickupVerified records pickup, starts the journey clock, stores the
// just-generated dropoff code (no expiry) and moves to PICKED_UP, all as one
// conditional write.
func (r *bookingRepository) MarkPickupVerified(ctx context.Context, id, dropoffCode string) (bool, error) {
	now := time.Now()
	query := `
		UPDATE bookings
		SET pickup_verified = true, pickup_verified_at = $2, journey_started_at = $2,
			dropoff_otp = $3, status = $4, updated_at = $2
		WHERE id = $1 AND status IN ($5, $6) AND pickup_verified = false
	`
	res, err := r.db.ExecContext(ctx, query,
		id, now, dropoffCode, models.BookingStatusPickedUp,
		models.BookingStatusConfirmed, models.BookingStatusPickupPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *bookingRepository) MarkDropoffVerified(ctx context.Context, id string, durationMins int) (bool, error) {
	now := time.Now()
	query := `
		UPDATE bookings
		SET dropoff_verified = true, dropoff_verified_at = $2, journey_ended_at = $2,
			journey_duration_mins = $3, status = $4, updated_at = $2
		WHERE id = $1 AND status = $5 AND dropoff_verified = false
	`
	res, err := r.db.ExecContext(ctx, query,
		id, now, durationMins, models.BookingStatusDroppedOff, models.BookingStatusPickedUp)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SettlePayment is the single settlement entry point for both the rider and
// the passenger path. The settlement flag, confirming actor and COMPLETED
// status flip in one check-and-set; concurrent callers resolve to exactly
// one winner. Runs tx-scoped so the ledger row completes in the same
// transaction or not at all.
func (r *bookingRepository) SettlePayment(ctx context.Context, tx *sqlx.Tx, id, confirmedBy string) (bool, error) {
	now := time.Now()
	query := `
		UPDATE bookings
		SET payment_status = $2, payment_confirmed_by = $3, payment_confirmed_at = $4,
			status = $5, updated_at = $4
		WHERE id = $1 AND status = $6 AND payment_status = $7
	`
	res, err := tx.ExecContext(ctx, query,
		id, models.PaymentStatusSettled, confirmedBy, now,
		models.BookingStatusCompleted, models.BookingStatusDroppedOff, models.PaymentStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

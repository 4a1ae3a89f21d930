package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/aditya/go-saathi/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type TransactionRepository interface {
	Create(ctx context.Context, tx *sqlx.Tx, txn *models.Transaction) error
	GetByBookingID(ctx context.Context, bookingID string) (*models.Transaction, error)
	MarkCompleted(ctx context.Context, tx *sqlx.Tx, bookingID, confirmedBy string) error
	MarkRefunded(ctx context.Context, tx *sqlx.Tx, bookingID string) error
}

type transactionRepository struct {
	db *sqlx.DB
}

func NewTransactionRepository(db *sqlx.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(ctx context.Context, tx *sqlx.Tx, txn *models.Transaction) error {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	txn.CreatedAt = time.Now()
	txn.UpdatedAt = time.Now()
	txn.Status = models.TransactionStatusPending
	if txn.Currency == "" {
		txn.Currency = "INR"
	}

	query := `
		INSERT INTO transactions (id, booking_id, ride_id, passenger_id, rider_id,
			ride_fare, commission, amount, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := tx.ExecContext(ctx, query,
		txn.ID, txn.BookingID, txn.RideID, txn.PassengerID, txn.RiderID,
		txn.RideFare, txn.Commission, txn.Amount, txn.Currency, txn.Status,
		txn.CreatedAt, txn.UpdatedAt)
	return err
}

func (r *transactionRepository) GetByBookingID(ctx context.Context, bookingID string) (*models.Transaction, error) {
	var txn models.Transaction
	query := `SELECT * FROM transactions WHERE booking_id = $1`
	err := r.db.GetContext(ctx, &txn, query, bookingID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &txn, err
}

// MarkCompleted updates the ledger row in place; amounts are immutable so
// only status and the confirming actor change. Tx-scoped: it commits with
// the booking's settlement.
func (r *transactionRepository) MarkCompleted(ctx context.Context, tx *sqlx.Tx, bookingID, confirmedBy string) error {
	query := `
		UPDATE transactions
		SET status = $2, confirmed_by = $3, updated_at = $4
		WHERE booking_id = $1 AND status = $5
	`
	_, err := tx.ExecContext(ctx, query,
		bookingID, models.TransactionStatusCompleted, confirmedBy, time.Now(),
		models.TransactionStatusPending)
	return err
}

func (r *transactionRepository) MarkRefunded(ctx context.Context, tx *sqlx.Tx, bookingID string) error {
	query := `
		UPDATE transactions
		SET status = $2, updated_at = $3
		WHERE booking_id = $1
	`
	_, err := tx.ExecContext(ctx, query, bookingID, models.TransactionStatusRefunded, time.Now())
	return err
}

package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/aditya/go-saathi/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
	IncrementPassengerStats(ctx context.Context, id string, distanceKm, carbonKg float64) error
	IncrementRiderStats(ctx context.Context, id string, distanceKm, carbonKg float64) error
}

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	user.Rating = 5.0

	query := `
		INSERT INTO users (id, phone, name, email, gender, rating,
			rides_taken, rides_offered, total_distance_km, carbon_saved_kg,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, 0, 0, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Phone, user.Name, user.Email, user.Gender, user.Rating,
		user.CreatedAt, user.UpdatedAt)
	return err
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	query := `SELECT * FROM users WHERE id = $1`
	err := r.db.GetContext(ctx, &user, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &user, err
}

func (r *userRepository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	var user models.User
	query := `SELECT * FROM users WHERE phone = $1`
	err := r.db.GetContext(ctx, &user, query, phone)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return &user, err
}

// IncrementPassengerStats bumps the passenger's completed-ride statistics.
// Called exactly once per booking, at settlement.
func (r *userRepository) IncrementPassengerStats(ctx context.Context, id string, distanceKm, carbonKg float64) error {
	query := `
		UPDATE users
		SET rides_taken = rides_taken + 1,
			total_distance_km = total_distance_km + $2,
			carbon_saved_kg = carbon_saved_kg + $3,
			updated_at = $4
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, distanceKm, carbonKg, time.Now())
	return err
}

// IncrementRiderStats bumps the rider's statistics. Called exactly once per
// ride, gated by the ride's IN_PROGRESS -> COMPLETED transition.
func (r *userRepository) IncrementRiderStats(ctx context.Context, id string, distanceKm, carbonKg float64) error {
	query := `
		UPDATE users
		SET rides_offered = rides_offered + 1,
			total_distance_km = total_distance_km + $2,
			carbon_saved_kg = carbon_saved_kg + $3,
			updated_at = $4
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, distanceKm, carbonKg, time.Now())
	return err
}

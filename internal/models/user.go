package models

import (
	"time"
)

type User struct {
	ID              string    `db:"id" json:"id"`
	Phone           string    `db:"phone" json:"phone"`
	Name            string    `db:"name" json:"name"`
	Email           *string   `db:"email" json:"email,omitempty"`
	Gender          string    `db:"gender" json:"gender"`
	Rating          float64   `db:"rating" json:"rating"`
	RidesTaken      int       `db:"rides_taken" json:"rides_taken"`
	RidesOffered    int       `db:"rides_offered" json:"rides_offered"`
	TotalDistanceKm float64   `db:"total_distance_km" json:"total_distance_km"`
	CarbonSavedKg   float64   `db:"carbon_saved_kg" json:"carbon_saved_kg"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

type CreateUserRequest struct {
	Phone  string `json:"phone" validate:"required,min=10,max=15"`
	Name   string `json:"name" validate:"required,min=2,max=100"`
	Email  string `json:"email,omitempty" validate:"omitempty,email"`
	Gender string `json:"gender" validate:"required,oneof=male female other"`
}

type UserResponse struct {
	ID              string  `json:"id"`
	Phone           string  `json:"phone"`
	Name            string  `json:"name"`
	Email           *string `json:"email,omitempty"`
	Gender          string  `json:"gender"`
	Rating          float64 `json:"rating"`
	RidesTaken      int     `json:"rides_taken"`
	RidesOffered    int     `json:"rides_offered"`
	TotalDistanceKm float64 `json:"total_distance_km"`
	CarbonSavedKg   float64 `json:"carbon_saved_kg"`
}

func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		ID:              u.ID,
		Phone:           u.Phone,
		Name:            u.Name,
		Email:           u.Email,
		Gender:          u.Gender,
		Rating:          u.Rating,
		RidesTaken:      u.RidesTaken,
		RidesOffered:    u.RidesOffered,
		TotalDistanceKm: u.TotalDistanceKm,
		CarbonSavedKg:   u.CarbonSavedKg,
	}
}

//go:build ignore

package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/aditya/go-saathi/internal/config"
	"github.com/aditya/go-saathi/internal/database"
	"github.com/aditya/go-saathi/internal/models"
	"github.com/aditya/go-saathi/internal/repository"
	"github.com/aditya/go-saathi/internal/service"
)

// Bangalore coordinates
const (
	baseLat = 12.9716
	baseLng = 77.5946
)

var (
	firstNames = []string{"Rahul", "Priya", "Amit", "Sneha", "Vikram", "Anita", "Raj", "Neha", "Suresh", "Kavita",
		"Arun", "Deepa", "Kiran", "Meera", "Sanjay", "Ritu", "Vijay", "Pooja", "Manoj", "Swati"}
	lastNames = []string{"Kumar", "Sharma", "Patel", "Singh", "Reddy", "Rao", "Gupta", "Joshi", "Nair", "Menon"}
	genders   = []string{"male", "female", "other"}
)

func main() {
	rand.Seed(time.Now().UnixNano())

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.DatabaseURL, cfg.DBMaxConnections, cfg.DBMaxIdleConnections)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	userRepo := repository.NewUserRepository(db.DB)
	rideRepo := repository.NewRideRepository(db.DB)
	fareService := service.NewFareService()

	// Create users
	log.Println("Creating 50 users...")
	userIDs := make([]string, 0)
	for i := 0; i < 50; i++ {
		user := &models.User{
			Phone:  fmt.Sprintf("98%08d", rand.Intn(100000000)),
			Name:   fmt.Sprintf("%s %s", firstNames[rand.Intn(len(firstNames))], lastNames[rand.Intn(len(lastNames))]),
			Gender: genders[rand.Intn(len(genders))],
			Rating: 4.0 + rand.Float64(),
		}

		if err := userRepo.Create(ctx, user); err != nil {
			log.Printf("Failed to create user: %v", err)
			continue
		}
		userIDs = append(userIDs, user.ID)
	}
	log.Printf("Created %d users", len(userIDs))

	// Create rides departing over the next few hours
	log.Println("Creating 30 rides...")
	created := 0
	for i := 0; i < 30; i++ {
		riderID := userIDs[rand.Intn(len(userIDs))]

		originLat := baseLat + (rand.Float64()-0.5)*0.2
		originLng := baseLng + (rand.Float64()-0.5)*0.2
		destLat := baseLat + (rand.Float64()-0.5)*0.2
		destLng := baseLng + (rand.Float64()-0.5)*0.2
		distance := fareService.EstimateDistance(originLat, originLng, destLat, destLng)

		ride := &models.Ride{
			RiderID:        riderID,
			OriginLat:      originLat,
			OriginLng:      originLng,
			DestinationLat: destLat,
			DestinationLng: destLng,
			DepartureTime:  time.Now().Add(time.Duration(30+rand.Intn(240)) * time.Minute),
			TotalSeats:     1 + rand.Intn(4),
			PricePerSeat:   float64(50 + rand.Intn(200)),
			AutoAccept:     rand.Intn(3) == 0,
			DistanceKm:     &distance,
		}

		if err := rideRepo.Create(ctx, ride); err != nil {
			log.Printf("Failed to create ride: %v", err)
			continue
		}
		created++
	}
	log.Printf("Created %d rides", created)

	log.Println("Seed complete")
}

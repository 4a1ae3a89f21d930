package service

import (
	"math"

	"github.com/aditya/go-saathi/internal/models"
)

// carbonPerSeatKm is the CO2 saved (kg) per passenger-km by sharing a seat
// instead of driving alone.
const carbonPerSeatKm = 0.12

type FareService interface {
	ComputeFare(pricePerSeat float64, seats int, commission float64) *models.FareBreakdown
	EstimateDistance(originLat, originLng, destLat, destLng float64) float64
	CarbonSaved(distanceKm float64, seats int) float64
}

type fareService struct{}

func NewFareService() FareService {
	return &fareService{}
}

// ComputeFare splits a booking's total into the rider's fare and the flat
// platform commission. Pure; used at booking creation and for later audits.
func (s *fareService) ComputeFare(pricePerSeat float64, seats int, commission float64) *models.FareBreakdown {
	rideFare := pricePerSeat * float64(seats)

	return &models.FareBreakdown{
		RideFare:   round(rideFare),
		Commission: round(commission),
		Total:      round(rideFare + commission),
	}
}

// EstimateDistance calculates straight-line distance and multiplies by road factor
func (s *fareService) EstimateDistance(originLat, originLng, destLat, destLng float64) float64 {
	straightLine := haversineDistance(originLat, originLng, destLat, destLng)
	// Multiply by 1.3 to account for actual road distance
	return round(straightLine * 1.3)
}

// CarbonSaved estimates CO2 saved by filling seats on an existing trip
func (s *fareService) CarbonSaved(distanceKm float64, seats int) float64 {
	if distanceKm <= 0 || seats <= 0 {
		return 0
	}
	return round(distanceKm * carbonPerSeatKm * float64(seats))
}

// haversineDistance calculates the distance between two points on Earth
func haversineDistance(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadius = 6371 // km

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

func round(f float64) float64 {
	return math.Round(f*100) / 100
}

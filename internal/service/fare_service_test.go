package service

import (
	"testing"
)

func TestComputeFare(t *testing.T) {
	fs := NewFareService()

	tests := []struct {
		name         string
		pricePerSeat float64
		seats        int
		commission   float64
		wantFare     float64
		wantTotal    float64
	}{
		{
			name:         "single seat",
			pricePerSeat: 100,
			seats:        1,
			commission:   5,
			wantFare:     100,
			wantTotal:    105,
		},
		{
			name:         "multiple seats",
			pricePerSeat: 75,
			seats:        3,
			commission:   5,
			wantFare:     225,
			wantTotal:    230,
		},
		{
			name:         "fractional price rounds to paise",
			pricePerSeat: 33.335,
			seats:        2,
			commission:   5,
			wantFare:     66.67,
			wantTotal:    71.67,
		},
		{
			name:         "zero commission",
			pricePerSeat: 50,
			seats:        2,
			commission:   0,
			wantFare:     100,
			wantTotal:    100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fs.ComputeFare(tt.pricePerSeat, tt.seats, tt.commission)
			if got.RideFare != tt.wantFare {
				t.Errorf("ComputeFare() ride fare = %v, want %v", got.RideFare, tt.wantFare)
			}
			if got.Commission != tt.commission {
				t.Errorf("ComputeFare() commission = %v, want %v", got.Commission, tt.commission)
			}
			if got.Total != tt.wantTotal {
				t.Errorf("ComputeFare() total = %v, want %v", got.Total, tt.wantTotal)
			}
		})
	}
}

func TestEstimateDistance(t *testing.T) {
	fs := NewFareService()

	// MG Road to Whitefield, Bangalore: ~14km straight line
	got := fs.EstimateDistance(12.9758, 77.6045, 12.9698, 77.7500)

	// With the 1.3 road factor expect roughly 18-22km
	if got < 15 || got > 25 {
		t.Errorf("EstimateDistance() = %v km, want 15-25km", got)
	}

	if d := fs.EstimateDistance(12.9716, 77.5946, 12.9716, 77.5946); d != 0 {
		t.Errorf("EstimateDistance() same point = %v, want 0", d)
	}
}

func TestCarbonSaved(t *testing.T) {
	fs := NewFareService()

	tests := []struct {
		name       string
		distanceKm float64
		seats      int
		want       float64
	}{
		{"10km one seat", 10, 1, 1.2},
		{"10km three seats", 10, 3, 3.6},
		{"zero distance", 0, 2, 0},
		{"zero seats", 10, 0, 0},
		{"negative distance", -5, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fs.CarbonSaved(tt.distanceKm, tt.seats); got != tt.want {
				t.Errorf("CarbonSaved(%v, %d) = %v, want %v", tt.distanceKm, tt.seats, got, tt.want)
			}
		})
	}
}

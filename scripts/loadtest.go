//go:build ignore

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const (
	baseURL = "http://localhost:8080"
	baseLat = 12.9716
	baseLng = 77.5946
)

type Stats struct {
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	TotalLatency    int64
	MinLatency      int64
	MaxLatency      int64
}

func main() {
	rand.Seed(time.Now().UnixNano())

	fmt.Println("Saathi Load Test")
	fmt.Println("================")

	fmt.Println("\n1. Creating test data...")
	userIDs, rideIDs := createTestData()

	if len(userIDs) == 0 || len(rideIDs) == 0 {
		log.Fatal("Failed to create test data")
	}

	fmt.Printf("Created %d users and %d rides\n", len(userIDs), len(rideIDs))

	fmt.Println("\n2. Testing Booking Creation (200 bookings, 20 concurrent)...")
	stats := testBookingCreation(userIDs, rideIDs, 200, 20)
	printStats("Booking Creation", stats)

	fmt.Println("\n3. Testing Ride Reads (1000 reads, 50 concurrent)...")
	stats = testRideReads(rideIDs, 1000, 50)
	printStats("Ride Reads", stats)

	fmt.Println("\nLoad test completed!")
}

func createTestData() ([]string, []string) {
	userIDs := make([]string, 0)
	rideIDs := make([]string, 0)
	genders := []string{"male", "female", "other"}

	// Create users
	for i := 0; i < 30; i++ {
		user := map[string]string{
			"phone":  fmt.Sprintf("98%08d", rand.Intn(100000000)),
			"name":   fmt.Sprintf("LoadTest User %d", i),
			"gender": genders[rand.Intn(len(genders))],
		}
		body, _ := json.Marshal(user)
		resp, err := http.Post(baseURL+"/v1/users", "application/json", bytes.NewBuffer(body))
		if err != nil {
			continue
		}
		defer resp.Body.Close()

		if resp.StatusCode == 201 {
			var result map[string]interface{}
			json.NewDecoder(resp.Body).Decode(&result)
			if id, ok := result["id"].(string); ok {
				userIDs = append(userIDs, id)
			}
		}
	}

	// Create rides
	for i := 0; i < 20 && len(userIDs) > 0; i++ {
		ride := map[string]interface{}{
			"rider_id": userIDs[rand.Intn(len(userIDs))],
			"origin": map[string]float64{
				"lat": baseLat + (rand.Float64()-0.5)*0.1,
				"lng": baseLng + (rand.Float64()-0.5)*0.1,
			},
			"destination": map[string]float64{
				"lat": baseLat + (rand.Float64()-0.5)*0.1,
				"lng": baseLng + (rand.Float64()-0.5)*0.1,
			},
			"departure_time": time.Now().Add(2 * time.Hour).Format(time.RFC3339),
			"total_seats":    4,
			"price_per_seat": float64(50 + rand.Intn(200)),
			"auto_accept":    rand.Intn(2) == 0,
		}
		body, _ := json.Marshal(ride)
		resp, err := http.Post(baseURL+"/v1/rides", "application/json", bytes.NewBuffer(body))
		if err != nil {
			continue
		}
		defer resp.Body.Close()

		if resp.StatusCode == 201 {
			var result map[string]interface{}
			json.NewDecoder(resp.Body).Decode(&result)
			if id, ok := result["id"].(string); ok {
				rideIDs = append(rideIDs, id)
			}
		}
	}

	return userIDs, rideIDs
}

func testBookingCreation(userIDs, rideIDs []string, numRequests, concurrency int) *Stats {
	stats := &Stats{MinLatency: int64(^uint64(0) >> 1)}
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, concurrency)

	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(idx int, passengerID, rideID string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			booking := map[string]interface{}{
				"ride_id":      rideID,
				"passenger_id": passengerID,
				"seats":        1,
				"pickup": map[string]float64{
					"lat": baseLat + (rand.Float64()-0.5)*0.1,
					"lng": baseLng + (rand.Float64()-0.5)*0.1,
				},
				"dropoff": map[string]float64{
					"lat": baseLat + (rand.Float64()-0.5)*0.1,
					"lng": baseLng + (rand.Float64()-0.5)*0.1,
				},
				"payment_method": "cash",
			}
			body, _ := json.Marshal(booking)

			req, _ := http.NewRequest("POST", baseURL+"/v1/bookings", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Idempotency-Key", fmt.Sprintf("load-test-booking-%d-%d", idx, time.Now().UnixNano()))

			start := time.Now()
			resp, err := http.DefaultClient.Do(req)
			latency := time.Since(start).Milliseconds()

			atomic.AddInt64(&stats.TotalRequests, 1)
			atomic.AddInt64(&stats.TotalLatency, latency)

			// Seat races and duplicates legitimately answer 409 under load
			if err != nil || (resp.StatusCode != 201 && resp.StatusCode != 409 && resp.StatusCode != 400) {
				atomic.AddInt64(&stats.FailedRequests, 1)
				if resp != nil {
					io.Copy(io.Discard, resp.Body)
					resp.Body.Close()
				}
				return
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			atomic.AddInt64(&stats.SuccessRequests, 1)
			recordLatency(stats, latency)
		}(i, userIDs[rand.Intn(len(userIDs))], rideIDs[rand.Intn(len(rideIDs))])
	}

	wg.Wait()
	return stats
}

func testRideReads(rideIDs []string, numRequests, concurrency int) *Stats {
	stats := &Stats{MinLatency: int64(^uint64(0) >> 1)}
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, concurrency)

	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(rideID string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			start := time.Now()
			resp, err := http.Get(baseURL + "/v1/rides/" + rideID)
			latency := time.Since(start).Milliseconds()

			atomic.AddInt64(&stats.TotalRequests, 1)
			atomic.AddInt64(&stats.TotalLatency, latency)

			if err != nil || resp.StatusCode != 200 {
				atomic.AddInt64(&stats.FailedRequests, 1)
				if resp != nil {
					io.Copy(io.Discard, resp.Body)
					resp.Body.Close()
				}
				return
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			atomic.AddInt64(&stats.SuccessRequests, 1)
			recordLatency(stats, latency)
		}(rideIDs[rand.Intn(len(rideIDs))])
	}

	wg.Wait()
	return stats
}

func recordLatency(stats *Stats, latency int64) {
	for {
		old := atomic.LoadInt64(&stats.MinLatency)
		if latency >= old || atomic.CompareAndSwapInt64(&stats.MinLatency, old, latency) {
			break
		}
	}
	for {
		old := atomic.LoadInt64(&stats.MaxLatency)
		if latency <= old || atomic.CompareAndSwapInt64(&stats.MaxLatency, old, latency) {
			break
		}
	}
}

func printStats(name string, stats *Stats) {
	total := atomic.LoadInt64(&stats.TotalRequests)
	if total == 0 {
		fmt.Printf("%s: no requests completed\n", name)
		return
	}

	avgLatency := atomic.LoadInt64(&stats.TotalLatency) / total
	fmt.Printf("%s results:\n", name)
	fmt.Printf("  Total:      %d\n", total)
	fmt.Printf("  Success:    %d\n", atomic.LoadInt64(&stats.SuccessRequests))
	fmt.Printf("  Failed:     %d\n", atomic.LoadInt64(&stats.FailedRequests))
	fmt.Printf("  Avg latency: %dms\n", avgLatency)
	fmt.Printf("  Min latency: %dms\n", atomic.LoadInt64(&stats.MinLatency))
	fmt.Printf("  Max latency: %dms\n", atomic.LoadInt64(&stats.MaxLatency))
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aditya/go-saathi/internal/cache"
	"github.com/aditya/go-saathi/internal/config"
	"github.com/aditya/go-saathi/internal/database"
	"github.com/aditya/go-saathi/internal/handler"
	"github.com/aditya/go-saathi/internal/middleware"
	"github.com/aditya/go-saathi/internal/notify"
	"github.com/aditya/go-saathi/internal/repository"
	"github.com/aditya/go-saathi/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/newrelic/go-agent/v3/newrelic"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize New Relic (optional)
	var nrApp *newrelic.Application
	if cfg.NewRelicEnabled && cfg.NewRelicLicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelicAppName),
			newrelic.ConfigLicense(cfg.NewRelicLicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
			newrelic.ConfigInfoLogger(os.Stdout),
		)
		if err != nil {
			log.Printf("Warning: Failed to initialize New Relic: %v", err)
		} else {
			log.Println("New Relic initialized successfully")
			if err := nrApp.WaitForConnection(10 * time.Second); err != nil {
				log.Printf("Warning: New Relic connection timeout: %v", err)
			}
		}
	}

	// Initialize PostgreSQL
	db, err := database.NewPostgres(
		cfg.DatabaseURL,
		cfg.DBMaxConnections,
		cfg.DBMaxIdleConnections,
	)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()
	log.Println("Connected to PostgreSQL")

	// Initialize Redis
	redis, err := database.NewRedis(cfg.RedisURL, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()
	log.Println("Connected to Redis")

	// Notification sink
	var sink notify.Sink
	switch cfg.NotifyBackend {
	case "kafka":
		kafkaSink := notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafkaSink.Close()
		sink = kafkaSink
		log.Printf("Publishing events to Kafka topic %s", cfg.KafkaTopic)
	case "log":
		sink = notify.NewLogSink()
	default:
		sink = notify.NewRedisSink(redis.Client)
	}

	// Initialize cache
	locationCache := cache.NewRideLocationCache(redis.Client)

	// Initialize repositories
	txManager := repository.NewTxManager(db.DB)
	userRepo := repository.NewUserRepository(db.DB)
	rideRepo := repository.NewRideRepository(db.DB)
	bookingRepo := repository.NewBookingRepository(db.DB)
	txnRepo := repository.NewTransactionRepository(db.DB)

	// Initialize services
	fareService := service.NewFareService()
	userService := service.NewUserService(userRepo)
	rideService := service.NewRideService(txManager, rideRepo, bookingRepo, txnRepo, userRepo,
		fareService, sink, cfg.PickupOTPExpiryMins)
	bookingService := service.NewBookingService(txManager, bookingRepo, rideRepo, txnRepo, userRepo,
		fareService, rideService, sink, service.BookingConfig{
			CommissionAmount:    cfg.CommissionAmount,
			PickupOTPExpiryMins: cfg.PickupOTPExpiryMins,
			OTPMaxAttempts:      cfg.OTPMaxAttempts,
		})

	// Initialize handlers
	userHandler := handler.NewUserHandler(userService)
	rideHandler := handler.NewRideHandler(rideService)
	bookingHandler := handler.NewBookingHandler(bookingService)
	trackHandler := handler.NewTrackHandler(rideRepo, locationCache, redis.Client)

	// Create router
	r := chi.NewRouter()

	// Apply middleware
	r.Use(middleware.Recovery)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Actor-ID"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Actor)

	// New Relic middleware
	if nrApp != nil {
		r.Use(middleware.NewRelicMiddleware(nrApp))
	}

	// Rate limiter (100 requests per minute per IP)
	rateLimiter := middleware.NewRateLimiter(redis.Client, 100, time.Minute)
	r.Use(rateLimiter.Handler)

	// Idempotency middleware
	idempotencyMw := middleware.NewIdempotencyMiddleware(redis.Client)
	r.Use(idempotencyMw.Handler)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if err := db.Health(ctx); err != nil {
			http.Error(w, "database unhealthy", http.StatusServiceUnavailable)
			return
		}

		if err := redis.Health(ctx); err != nil {
			http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","services":{"database":"up","redis":"up"}}`))
	})

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		userHandler.RegisterRoutes(r)
		rideHandler.RegisterRoutes(r)
		bookingHandler.RegisterRoutes(r)
		trackHandler.RegisterRoutes(r)
	})

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	log.Printf("Server starting on port %s", cfg.Port)
	log.Println("API endpoints:")
	log.Println("  POST /v1/users                        - Create user")
	log.Println("  POST /v1/rides                        - Offer ride")
	log.Println("  GET  /v1/rides/{id}                   - Get ride")
	log.Println("  POST /v1/rides/{id}/start             - Start ride (issues pickup codes)")
	log.Println("  POST /v1/rides/{id}/cancel            - Cancel ride")
	log.Println("  POST /v1/bookings                     - Book seats")
	log.Println("  POST /v1/bookings/{id}/accept         - Accept booking")
	log.Println("  POST /v1/bookings/{id}/reject         - Reject booking")
	log.Println("  POST /v1/bookings/{id}/cancel         - Cancel booking")
	log.Println("  POST /v1/bookings/{id}/pickup/verify  - Verify pickup code")
	log.Println("  POST /v1/bookings/{id}/dropoff/verify - Verify dropoff code")
	log.Println("  POST /v1/bookings/{id}/settle         - Settle payment")
	log.Println("  GET  /v1/rides/{id}/track             - SSE live tracking")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server stopped gracefully")
}

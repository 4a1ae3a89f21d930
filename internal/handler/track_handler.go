package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aditya/go-saathi/internal/cache"
	"github.com/aditya/go-saathi/internal/middleware"
	"github.com/aditya/go-saathi/internal/models"
	"github.com/aditya/go-saathi/internal/notify"
	"github.com/aditya/go-saathi/internal/repository"
	"github.com/aditya/go-saathi/pkg/utils"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

// TrackHandler streams live ride events and positions over SSE. Every event
// published to a ride's channel (booking transitions, location updates) fans
// out to that ride's subscribers.
type TrackHandler struct {
	rideRepo      repository.RideRepository
	locationCache *cache.RideLocationCache
	redis         *redis.Client
	clients       map[string]map[chan []byte]bool // rideID -> clients
	mu            sync.RWMutex
}

func NewTrackHandler(rideRepo repository.RideRepository, locationCache *cache.RideLocationCache, redisClient *redis.Client) *TrackHandler {
	handler := &TrackHandler{
		rideRepo:      rideRepo,
		locationCache: locationCache,
		redis:         redisClient,
		clients:       make(map[string]map[chan []byte]bool),
	}

	go handler.startPubSubListener()

	return handler
}

func (h *TrackHandler) RegisterRoutes(r chi.Router) {
	r.Get("/rides/{id}/track", h.TrackRide)
	r.Post("/rides/{id}/location", h.ReportLocation)
}

// GET /v1/rides/{id}/track
func (h *TrackHandler) TrackRide(w http.ResponseWriter, r *http.Request) {
	rideID := chi.URLParam(r, "id")
	if rideID == "" {
		http.Error(w, "ride id required", http.StatusBadRequest)
		return
	}

	ride, err := h.rideRepo.GetByID(r.Context(), rideID)
	if err != nil || ride == nil {
		http.Error(w, "ride not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	clientChan := make(chan []byte, 10)

	h.registerClient(rideID, clientChan)
	defer h.unregisterClient(rideID, clientChan)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// Send last known position so the client can render immediately
	if loc, err := h.locationCache.GetLocation(r.Context(), rideID); err == nil && loc != nil {
		data, _ := json.Marshal(loc)
		fmt.Fprintf(w, "event: location\ndata: %s\n\n", data)
		flusher.Flush()
	}

	ctx := r.Context()
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-clientChan:
			fmt.Fprintf(w, "event: update\ndata: %s\n\n", msg)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, "event: heartbeat\ndata: {\"time\": \"%s\"}\n\n", time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}

// POST /v1/rides/{id}/location
func (h *TrackHandler) ReportLocation(w http.ResponseWriter, r *http.Request) {
	rideID := chi.URLParam(r, "id")
	actorID := middleware.ActorID(r.Context())
	if actorID == "" {
		utils.BadRequest(w, "actor id header is required")
		return
	}

	ride, err := h.rideRepo.GetByID(r.Context(), rideID)
	if err != nil {
		utils.InternalError(w, "failed to load ride")
		return
	}
	if ride == nil {
		utils.NotFound(w, "ride")
		return
	}
	if ride.RiderID != actorID {
		utils.BadRequest(w, "only the rider may report ride location")
		return
	}
	if ride.Status != models.RideStatusInProgress {
		utils.BadRequest(w, "ride is not in progress")
		return
	}

	var loc cache.RideLocation
	if err := json.NewDecoder(r.Body).Decode(&loc); err != nil {
		utils.BadRequest(w, "invalid request body")
		return
	}
	loc.RideID = rideID

	if err := h.locationCache.UpdateLocation(r.Context(), &loc); err != nil {
		utils.InternalError(w, "failed to store location")
		return
	}

	utils.NoContent(w)
}

func (h *TrackHandler) registerClient(rideID string, ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[rideID] == nil {
		h.clients[rideID] = make(map[chan []byte]bool)
	}
	h.clients[rideID][ch] = true
}

func (h *TrackHandler) unregisterClient(rideID string, ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.clients[rideID]; ok {
		delete(clients, ch)
		if len(clients) == 0 {
			delete(h.clients, rideID)
		}
	}
	close(ch)
}

func (h *TrackHandler) broadcast(rideID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if clients, ok := h.clients[rideID]; ok {
		for ch := range clients {
			select {
			case ch <- data:
			default:
				// Client too slow, skip
			}
		}
	}
}

// startPubSubListener subscribes to every per-ride channel and fans messages
// out to the connected SSE clients of that ride.
func (h *TrackHandler) startPubSubListener() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, notify.RideChannelPrefix+"*")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		rideID := msg.Channel[len(notify.RideChannelPrefix):]
		if rideID == "" {
			continue
		}
		h.broadcast(rideID, []byte(msg.Payload))
	}
}

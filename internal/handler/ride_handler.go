package handler

import (
	"encoding/json"
	"net/http"

	"github.com/aditya/go-saathi/internal/middleware"
	"github.com/aditya/go-saathi/internal/models"
	"github.com/aditya/go-saathi/internal/service"
	"github.com/aditya/go-saathi/pkg/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type RideHandler struct {
	rideService service.RideService
	validate    *validator.Validate
}

func NewRideHandler(rideService service.RideService) *RideHandler {
	return &RideHandler{
		rideService: rideService,
		validate:    validator.New(),
	}
}

func (h *RideHandler) RegisterRoutes(r chi.Router) {
	r.Post("/rides", h.CreateRide)
	r.Get("/rides/{id}", h.GetRide)
	r.Get("/rides/{id}/bookings", h.ListBookings)
	r.Post("/rides/{id}/start", h.StartRide)
	r.Post("/rides/{id}/cancel", h.CancelRide)
}

// POST /v1/rides
func (h *RideHandler) CreateRide(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		utils.BadRequest(w, err.Error())
		return
	}

	ride, err := h.rideService.CreateRide(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Created(w, ride.ToResponse())
}

// GET /v1/rides/{id}
func (h *RideHandler) GetRide(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		utils.BadRequest(w, "ride id is required")
		return
	}

	ride, err := h.rideService.GetRide(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, ride)
}

// GET /v1/rides/{id}/bookings
func (h *RideHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actorID := middleware.ActorID(r.Context())
	if actorID == "" {
		utils.BadRequest(w, "actor id header is required")
		return
	}

	bookings, err := h.rideService.ListBookings(r.Context(), id, actorID)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, bookings)
}

// POST /v1/rides/{id}/start
func (h *RideHandler) StartRide(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actorID := middleware.ActorID(r.Context())
	if actorID == "" {
		utils.BadRequest(w, "actor id header is required")
		return
	}

	if err := h.rideService.StartRide(r.Context(), id, actorID); err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, map[string]string{
		"status":  "in_progress",
		"message": "ride started, pickup codes sent to confirmed passengers",
	})
}

// POST /v1/rides/{id}/cancel
func (h *RideHandler) CancelRide(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actorID := middleware.ActorID(r.Context())
	if actorID == "" {
		utils.BadRequest(w, "actor id header is required")
		return
	}

	var req models.CancelRideRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.BadRequest(w, "invalid request body")
			return
		}
	}

	if err := h.rideService.CancelRide(r.Context(), id, actorID, req.Reason); err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, map[string]string{
		"status":  "cancelled",
		"message": "ride cancelled, open bookings were cancelled and seats returned",
	})
}

package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/aditya/go-saathi/internal/errors"
	"github.com/aditya/go-saathi/internal/middleware"
	"github.com/aditya/go-saathi/internal/models"
	"github.com/aditya/go-saathi/internal/service"
	"github.com/aditya/go-saathi/pkg/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type BookingHandler struct {
	bookingService service.BookingService
	validate       *validator.Validate
}

func NewBookingHandler(bookingService service.BookingService) *BookingHandler {
	return &BookingHandler{
		bookingService: bookingService,
		validate:       validator.New(),
	}
}

func (h *BookingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/bookings", h.CreateBooking)
	r.Get("/bookings/{id}", h.GetBooking)
	r.Post("/bookings/{id}/accept", h.AcceptBooking)
	r.Post("/bookings/{id}/reject", h.RejectBooking)
	r.Post("/bookings/{id}/cancel", h.CancelBooking)
	r.Post("/bookings/{id}/pickup/verify", h.VerifyPickup)
	r.Post("/bookings/{id}/dropoff/verify", h.VerifyDropoff)
	r.Post("/bookings/{id}/settle", h.SettlePayment)
}

// POST /v1/bookings
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req models.CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		utils.BadRequest(w, err.Error())
		return
	}

	booking, autoAccepted, err := h.bookingService.Create(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	resp := booking.ToResponse()
	utils.Created(w, map[string]interface{}{
		"booking":       resp,
		"auto_accepted": autoAccepted,
	})
}

// GET /v1/bookings/{id}
func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		utils.BadRequest(w, "booking id is required")
		return
	}

	booking, err := h.bookingService.Get(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, booking)
}

// POST /v1/bookings/{id}/accept
func (h *BookingHandler) AcceptBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actorID := middleware.ActorID(r.Context())
	if actorID == "" {
		utils.BadRequest(w, "actor id header is required")
		return
	}

	var req models.AcceptBookingRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.BadRequest(w, "invalid request body")
			return
		}
	}

	if err := h.bookingService.Accept(r.Context(), id, actorID, req.Message); err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, map[string]string{
		"status":  "confirmed",
		"message": "booking accepted",
	})
}

// POST /v1/bookings/{id}/reject
func (h *BookingHandler) RejectBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actorID := middleware.ActorID(r.Context())
	if actorID == "" {
		utils.BadRequest(w, "actor id header is required")
		return
	}

	var req models.RejectBookingRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.BadRequest(w, "invalid request body")
			return
		}
	}

	if err := h.bookingService.Reject(r.Context(), id, actorID, req.Reason); err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, map[string]string{
		"status":  "rejected",
		"message": "booking rejected, seats returned",
	})
}

// POST /v1/bookings/{id}/cancel
func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actorID := middleware.ActorID(r.Context())
	if actorID == "" {
		utils.BadRequest(w, "actor id header is required")
		return
	}

	var req models.CancelBookingRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.BadRequest(w, "invalid request body")
			return
		}
	}

	if err := h.bookingService.Cancel(r.Context(), id, actorID, req.Reason); err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, map[string]string{
		"status":  "cancelled",
		"message": "booking cancelled",
	})
}

// POST /v1/bookings/{id}/pickup/verify
func (h *BookingHandler) VerifyPickup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actorID := middleware.ActorID(r.Context())
	if actorID == "" {
		utils.BadRequest(w, "actor id header is required")
		return
	}

	var req models.VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		utils.BadRequest(w, err.Error())
		return
	}

	booking, err := h.bookingService.VerifyPickup(r.Context(), id, actorID, req.OTP)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, booking.ToResponse())
}

// POST /v1/bookings/{id}/dropoff/verify
func (h *BookingHandler) VerifyDropoff(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actorID := middleware.ActorID(r.Context())
	if actorID == "" {
		utils.BadRequest(w, "actor id header is required")
		return
	}

	var req models.VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		utils.BadRequest(w, err.Error())
		return
	}

	booking, err := h.bookingService.VerifyDropoff(r.Context(), id, actorID, req.OTP)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, booking.ToResponse())
}

// POST /v1/bookings/{id}/settle
func (h *BookingHandler) SettlePayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actorID := middleware.ActorID(r.Context())
	if actorID == "" {
		utils.BadRequest(w, "actor id header is required")
		return
	}

	booking, err := h.bookingService.SettlePayment(r.Context(), id, actorID)
	if err != nil {
		handleError(w, err)
		return
	}

	utils.Success(w, http.StatusOK, booking.ToResponse())
}

func handleError(w http.ResponseWriter, err error) {
	var apiErr *apperrors.APIError
	if errors.As(err, &apiErr) {
		utils.Error(w, apiErr)
		return
	}

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		utils.NotFound(w, "resource")
	case errors.Is(err, apperrors.ErrInvalidTransition):
		utils.Error(w, apperrors.NewAPIError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, apperrors.ErrAlreadySettled):
		utils.Error(w, apperrors.AlreadySettled())
	case errors.Is(err, apperrors.ErrInsufficientSeats):
		utils.Error(w, apperrors.NewAPIError("insufficient_seats", err.Error(), http.StatusConflict))
	default:
		utils.InternalError(w, "internal server error")
	}
}

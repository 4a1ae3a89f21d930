package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors
var (
	ErrNotFound          = errors.New("resource not found")
	ErrConflict          = errors.New("resource conflict")
	ErrBadRequest        = errors.New("bad request")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInternalServer    = errors.New("internal server error")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrAlreadySettled    = errors.New("payment already settled")
	ErrInsufficientSeats = errors.New("insufficient seats")
)

// APIError represents a structured API error
type APIError struct {
	Code       string `json:"error"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}

// NewAPIError creates a new API error
func NewAPIError(code, message string, statusCode int) *APIError {
	return &APIError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Common API errors
func NotFound(resource string) *APIError {
	return NewAPIError("not_found", fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func BadRequest(message string) *APIError {
	return NewAPIError("bad_request", message, http.StatusBadRequest)
}

func Conflict(message string) *APIError {
	return NewAPIError("conflict", message, http.StatusConflict)
}

func InternalError(message string) *APIError {
	return NewAPIError("internal_error", message, http.StatusInternalServerError)
}

func Unauthorized(message string) *APIError {
	return NewAPIError("unauthorized", message, http.StatusUnauthorized)
}

// Booking state machine errors. Every error carries the context the client
// needs to render an actionable message.

func InvalidTransition(from, to string) *APIError {
	return NewAPIError("invalid_transition", fmt.Sprintf("cannot transition from %s to %s", from, to), http.StatusConflict)
}

func NotAuthorized(role, action string) *APIError {
	return NewAPIError("not_authorized", fmt.Sprintf("only the %s may %s", role, action), http.StatusForbidden)
}

func InsufficientSeats(requested, available int) *APIError {
	return NewAPIError("insufficient_seats", fmt.Sprintf("requested %d seats but only %d available", requested, available), http.StatusConflict)
}

func DuplicateBooking() *APIError {
	return NewAPIError("duplicate_booking", "you already have an active booking for this ride", http.StatusConflict)
}

func SelfBooking() *APIError {
	return NewAPIError("self_booking", "you cannot book a seat on your own ride", http.StatusBadRequest)
}

func GenderRestricted() *APIError {
	return NewAPIError("gender_restricted", "this ride is restricted to a different gender", http.StatusForbidden)
}

func RideUnavailable(status string) *APIError {
	return NewAPIError("ride_unavailable", fmt.Sprintf("ride is %s and not accepting bookings", status), http.StatusConflict)
}

func RideNoLongerAvailable(status string) *APIError {
	return NewAPIError("ride_no_longer_available", fmt.Sprintf("ride has moved to %s", status), http.StatusConflict)
}

func InvalidOTP() *APIError {
	return NewAPIError("invalid_otp", "the code you entered is incorrect", http.StatusBadRequest)
}

func OTPExpired() *APIError {
	return NewAPIError("otp_expired", "the code has expired, ask for a new one", http.StatusBadRequest)
}

func TooManyAttempts() *APIError {
	return NewAPIError("too_many_attempts", "maximum verification attempts exceeded", http.StatusTooManyRequests)
}

func AlreadySettled() *APIError {
	return NewAPIError("already_settled", "payment for this booking is already settled", http.StatusConflict)
}

package service

import (
	"context"
	"log"
	"time"

	apperrors "github.com/aditya/go-saathi/internal/errors"
	"github.com/aditya/go-saathi/internal/models"
	"github.com/aditya/go-saathi/internal/notify"
	"github.com/aditya/go-saathi/internal/otp"
	"github.com/aditya/go-saathi/internal/repository"
	"github.com/jmoiron/sqlx"
)

// RideCompleter re-evaluates ride-level completion whenever a booking
// reaches a terminal state.
type RideCompleter interface {
	OnBookingTerminalized(ctx context.Context, rideID string) error
}

type BookingService interface {
	Create(ctx context.Context, req *models.CreateBookingRequest) (*models.Booking, bool, error)
	Get(ctx context.Context, id string) (*models.BookingResponse, error)
	Accept(ctx context.Context, bookingID, actorID, message string) error
	Reject(ctx context.Context, bookingID, actorID, reason string) error
	Cancel(ctx context.Context, bookingID, actorID, reason string) error
	VerifyPickup(ctx context.Context, bookingID, actorID, code string) (*models.Booking, error)
	VerifyDropoff(ctx context.Context, bookingID, actorID, code string) (*models.Booking, error)
	SettlePayment(ctx context.Context, bookingID, actorID string) (*models.Booking, error)
}

type BookingConfig struct {
	CommissionAmount    float64
	PickupOTPExpiryMins int
	OTPMaxAttempts      int
}

type bookingService struct {
	txm         repository.TxManager
	bookingRepo repository.BookingRepository
	rideRepo    repository.RideRepository
	txnRepo     repository.TransactionRepository
	userRepo    repository.UserRepository
	fareService FareService
	completer   RideCompleter
	sink        notify.Sink
	cfg         BookingConfig
}

func NewBookingService(
	txm repository.TxManager,
	bookingRepo repository.BookingRepository,
	rideRepo repository.RideRepository,
	txnRepo repository.TransactionRepository,
	userRepo repository.UserRepository,
	fareService FareService,
	completer RideCompleter,
	sink notify.Sink,
	cfg BookingConfig,
) BookingService {
	return &bookingService{
		txm:         txm,
		bookingRepo: bookingRepo,
		rideRepo:    rideRepo,
		txnRepo:     txnRepo,
		userRepo:    userRepo,
		fareService: fareService,
		completer:   completer,
		sink:        sink,
		cfg:         cfg,
	}
}

// Create reserves seats and opens a booking in PENDING, or CONFIRMED when the
// ride auto-accepts. The matching ledger transaction is co-created in the
// same database transaction. The returned bool is the auto-accept flag.
func (s *bookingService) Create(ctx context.Context, req *models.CreateBookingRequest) (*models.Booking, bool, error) {
	passenger, err := s.userRepo.GetByID(ctx, req.PassengerID)
	if err != nil {
		return nil, false, err
	}
	if passenger == nil {
		return nil, false, apperrors.NotFound("passenger")
	}

	ride, err := s.rideRepo.GetByID(ctx, req.RideID)
	if err != nil {
		return nil, false, err
	}
	if ride == nil {
		return nil, false, apperrors.NotFound("ride")
	}

	if ride.RiderID == req.PassengerID {
		return nil, false, apperrors.SelfBooking()
	}
	if !ride.IsOpen() {
		return nil, false, apperrors.RideUnavailable(ride.Status)
	}
	if ride.AllowedGender != nil && passenger.Gender != *ride.AllowedGender {
		return nil, false, apperrors.GenderRestricted()
	}

	existing, err := s.bookingRepo.GetActiveByRideAndPassenger(ctx, req.RideID, req.PassengerID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return nil, false, apperrors.DuplicateBooking()
	}

	fare := s.fareService.ComputeFare(ride.PricePerSeat, req.Seats, s.cfg.CommissionAmount)

	status := models.BookingStatusPending
	autoAccepted := false
	if ride.AutoAccept {
		status = models.BookingStatusConfirmed
		autoAccepted = true
	}

	booking := &models.Booking{
		RideID:        req.RideID,
		PassengerID:   req.PassengerID,
		RiderID:       ride.RiderID,
		Seats:         req.Seats,
		PickupLat:     req.Pickup.Lat,
		PickupLng:     req.Pickup.Lng,
		DropoffLat:    req.Dropoff.Lat,
		DropoffLng:    req.Dropoff.Lng,
		Status:        status,
		PaymentMethod: req.PaymentMethod,
		RideFare:      fare.RideFare,
		Commission:    fare.Commission,
		TotalAmount:   fare.Total,
	}
	if req.Pickup.Address != "" {
		booking.PickupAddress = &req.Pickup.Address
	}
	if req.Dropoff.Address != "" {
		booking.DropoffAddress = &req.Dropoff.Address
	}

	err = s.txm.WithinTx(ctx, func(tx *sqlx.Tx) error {
		locked, err := s.rideRepo.GetByIDForUpdate(ctx, tx, req.RideID)
		if err != nil {
			return err
		}
		if locked == nil {
			return apperrors.NotFound("ride")
		}
		if !locked.IsOpen() {
			return apperrors.RideUnavailable(locked.Status)
		}

		// Re-check under the ride lock. Concurrent creates by the same
		// passenger serialize here, so only the first one survives.
		dup, err := s.bookingRepo.GetActiveByRideAndPassenger(ctx, req.RideID, req.PassengerID)
		if err != nil {
			return err
		}
		if dup != nil {
			return apperrors.DuplicateBooking()
		}

		reserved, err := s.rideRepo.ReserveSeats(ctx, tx, req.RideID, req.Seats)
		if err != nil {
			return err
		}
		if !reserved {
			return apperrors.InsufficientSeats(req.Seats, locked.AvailableSeats)
		}

		if err := s.bookingRepo.Create(ctx, tx, booking); err != nil {
			return err
		}

		txn := &models.Transaction{
			BookingID:   booking.ID,
			RideID:      booking.RideID,
			PassengerID: booking.PassengerID,
			RiderID:     booking.RiderID,
			RideFare:    fare.RideFare,
			Commission:  fare.Commission,
			Amount:      fare.Total,
		}
		return s.txnRepo.Create(ctx, tx, txn)
	})
	if err != nil {
		return nil, false, err
	}

	s.emit(ctx, notify.Event{
		Type:        notify.EventBookingCreated,
		RideID:      booking.RideID,
		BookingID:   booking.ID,
		RiderID:     booking.RiderID,
		PassengerID: booking.PassengerID,
		Data: map[string]interface{}{
			"auto_accepted": autoAccepted,
			"seats":         booking.Seats,
			"total_amount":  booking.TotalAmount,
		},
	})

	return booking, autoAccepted, nil
}

func (s *bookingService) Get(ctx context.Context, id string) (*models.BookingResponse, error) {
	booking, err := s.bookingRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, apperrors.NotFound("booking")
	}
	return booking.ToResponse(), nil
}

// Accept confirms a pending booking. It deliberately does not issue a pickup
// OTP; a code minted now would be stale for a trip days away. The OTP is
// issued when the ride starts.
func (s *bookingService) Accept(ctx context.Context, bookingID, actorID, message string) error {
	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking == nil {
		return apperrors.NotFound("booking")
	}
	if booking.RiderID != actorID {
		return apperrors.NotAuthorized(models.ActorRider, "accept a booking")
	}

	ride, err := s.rideRepo.GetByID(ctx, booking.RideID)
	if err != nil {
		return err
	}
	if ride == nil {
		return apperrors.NotFound("ride")
	}
	if !ride.IsOpen() {
		return apperrors.RideNoLongerAvailable(ride.Status)
	}

	accepted, err := s.bookingRepo.Accept(ctx, bookingID, message)
	if err != nil {
		return err
	}
	if !accepted {
		// Lost to a concurrent Cancel/Reject, or the booking already left
		// PENDING. Report the current state.
		current, err := s.bookingRepo.GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		return apperrors.InvalidTransition(current.Status, models.BookingStatusConfirmed)
	}

	s.emit(ctx, notify.Event{
		Type:        notify.EventBookingAccepted,
		RideID:      booking.RideID,
		BookingID:   booking.ID,
		RiderID:     booking.RiderID,
		PassengerID: booking.PassengerID,
	})
	return nil
}

// Reject terminalizes a pending booking and returns its seats. Safe to retry:
// the seats_released guard makes the release a no-op on the second call.
func (s *bookingService) Reject(ctx context.Context, bookingID, actorID, reason string) error {
	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking == nil {
		return apperrors.NotFound("booking")
	}
	if booking.RiderID != actorID {
		return apperrors.NotAuthorized(models.ActorRider, "reject a booking")
	}

	ride, err := s.rideRepo.GetByID(ctx, booking.RideID)
	if err != nil {
		return err
	}
	if ride == nil {
		return apperrors.NotFound("ride")
	}
	if !ride.IsOpen() {
		return apperrors.RideNoLongerAvailable(ride.Status)
	}

	err = s.txm.WithinTx(ctx, func(tx *sqlx.Tx) error {
		// Lock the ride once; all seat math in this operation uses this row.
		locked, err := s.rideRepo.GetByIDForUpdate(ctx, tx, booking.RideID)
		if err != nil {
			return err
		}
		if locked == nil {
			return apperrors.NotFound("ride")
		}

		rejected, err := s.bookingRepo.MarkRejected(ctx, tx, bookingID, reason)
		if err != nil {
			return err
		}
		if !rejected {
			return apperrors.InvalidTransition(booking.Status, models.BookingStatusRejected)
		}

		return s.releaseSeatsOnce(ctx, tx, bookingID, booking.RideID, booking.Seats)
	})
	if err != nil {
		return err
	}

	s.emit(ctx, notify.Event{
		Type:        notify.EventBookingRejected,
		RideID:      booking.RideID,
		BookingID:   booking.ID,
		RiderID:     booking.RiderID,
		PassengerID: booking.PassengerID,
		Data:        map[string]interface{}{"reason": reason},
	})
	return nil
}

// Cancel is the passenger's exit, allowed only before pickup. If payment had
// already settled, the refund is flagged and the ledger row flips to
// REFUNDED in the same transaction.
func (s *bookingService) Cancel(ctx context.Context, bookingID, actorID, reason string) error {
	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking == nil {
		return apperrors.NotFound("booking")
	}
	if booking.PassengerID != actorID {
		return apperrors.NotAuthorized(models.ActorPassenger, "cancel a booking")
	}

	refundIssued := false
	err = s.txm.WithinTx(ctx, func(tx *sqlx.Tx) error {
		locked, err := s.rideRepo.GetByIDForUpdate(ctx, tx, booking.RideID)
		if err != nil {
			return err
		}
		if locked == nil {
			return apperrors.NotFound("ride")
		}

		current, err := s.bookingRepo.GetByIDForUpdate(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if current == nil {
			return apperrors.NotFound("booking")
		}

		refund := current.PaymentStatus == models.PaymentStatusSettled

		cancelled, err := s.bookingRepo.MarkCancelled(ctx, tx, bookingID, models.ActorPassenger, reason, refund)
		if err != nil {
			return err
		}
		if !cancelled {
			return apperrors.InvalidTransition(current.Status, models.BookingStatusCancelled)
		}

		if refund {
			refundIssued = true
			if err := s.txnRepo.MarkRefunded(ctx, tx, bookingID); err != nil {
				return err
			}
		}

		return s.releaseSeatsOnce(ctx, tx, bookingID, booking.RideID, booking.Seats)
	})
	if err != nil {
		return err
	}

	s.emit(ctx, notify.Event{
		Type:        notify.EventBookingCancelled,
		RideID:      booking.RideID,
		BookingID:   booking.ID,
		RiderID:     booking.RiderID,
		PassengerID: booking.PassengerID,
		Data: map[string]interface{}{
			"reason":        reason,
			"refund_issued": refundIssued,
		},
	})

	// This may have been the last unfinished booking on a ride already
	// underway, e.g. one left PENDING past ride start.
	if err := s.completer.OnBookingTerminalized(ctx, booking.RideID); err != nil {
		log.Printf("ride completion check failed for ride %s: %v", booking.RideID, err)
	}
	return nil
}

// VerifyPickup checks the passenger's pickup code. On success the booking
// moves to PICKED_UP, the journey clock starts, and the dropoff code is
// generated at this moment, with no expiry, since trip duration is
// unpredictable. Failures never change the booking status, but the attempt
// counter always moves.
func (s *bookingService) VerifyPickup(ctx context.Context, bookingID, actorID, code string) (*models.Booking, error) {
	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, apperrors.NotFound("booking")
	}
	if booking.RiderID != actorID {
		return nil, apperrors.NotAuthorized(models.ActorRider, "verify pickup")
	}
	if booking.Status != models.BookingStatusConfirmed && booking.Status != models.BookingStatusPickupPending {
		return nil, apperrors.InvalidTransition(booking.Status, models.BookingStatusPickedUp)
	}
	if booking.PickupOTP == nil {
		return nil, apperrors.BadRequest("pickup code has not been issued yet")
	}

	// Attempts count on every call, success or failure. The limit check uses
	// the count the increment returned, so concurrent submissions cannot
	// slip under it together.
	attempts, err := s.bookingRepo.IncrementPickupAttempts(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	rec := otp.Record{
		Code:      *booking.PickupOTP,
		ExpiresAt: booking.PickupOTPExpiresAt,
		Attempts:  attempts,
		Verified:  booking.PickupVerified,
	}
	if res := otp.Verify(code, rec, s.cfg.OTPMaxAttempts); !res.Valid {
		return nil, s.otpError(res.Reason, booking.Status, models.BookingStatusPickedUp)
	}

	dropoff, err := otp.Generate(nil)
	if err != nil {
		return nil, err
	}

	verified, err := s.bookingRepo.MarkPickupVerified(ctx, bookingID, dropoff.Code)
	if err != nil {
		return nil, err
	}
	if !verified {
		current, err := s.bookingRepo.GetByID(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		return nil, apperrors.InvalidTransition(current.Status, models.BookingStatusPickedUp)
	}

	updated, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, notify.Event{
		Type:        notify.EventBookingPickupVerified,
		RideID:      booking.RideID,
		BookingID:   booking.ID,
		RiderID:     booking.RiderID,
		PassengerID: booking.PassengerID,
		Data:        map[string]interface{}{"dropoff_code": dropoff.Code},
	})
	return updated, nil
}

// VerifyDropoff checks the dropoff code and moves the booking to
// DROPPED_OFF. Completion waits for explicit payment settlement, so cash/UPI
// collection stays a separate, auditable step.
func (s *bookingService) VerifyDropoff(ctx context.Context, bookingID, actorID, code string) (*models.Booking, error) {
	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, apperrors.NotFound("booking")
	}
	if booking.RiderID != actorID {
		return nil, apperrors.NotAuthorized(models.ActorRider, "verify dropoff")
	}
	if booking.Status != models.BookingStatusPickedUp {
		return nil, apperrors.InvalidTransition(booking.Status, models.BookingStatusDroppedOff)
	}
	if booking.DropoffOTP == nil {
		return nil, apperrors.BadRequest("dropoff code has not been issued yet")
	}

	attempts, err := s.bookingRepo.IncrementDropoffAttempts(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	rec := otp.Record{
		Code:      *booking.DropoffOTP,
		ExpiresAt: booking.DropoffOTPExpiresAt,
		Attempts:  attempts,
		Verified:  booking.DropoffVerified,
	}
	if res := otp.Verify(code, rec, s.cfg.OTPMaxAttempts); !res.Valid {
		return nil, s.otpError(res.Reason, booking.Status, models.BookingStatusDroppedOff)
	}

	durationMins := 0
	if booking.JourneyStartedAt != nil {
		durationMins = int(time.Since(*booking.JourneyStartedAt).Minutes())
		if durationMins < 1 {
			durationMins = 1
		}
	}

	verified, err := s.bookingRepo.MarkDropoffVerified(ctx, bookingID, durationMins)
	if err != nil {
		return nil, err
	}
	if !verified {
		current, err := s.bookingRepo.GetByID(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		return nil, apperrors.InvalidTransition(current.Status, models.BookingStatusDroppedOff)
	}

	updated, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, notify.Event{
		Type:        notify.EventBookingDropoffVerified,
		RideID:      booking.RideID,
		BookingID:   booking.ID,
		RiderID:     booking.RiderID,
		PassengerID: booking.PassengerID,
		Data:        map[string]interface{}{"duration_mins": durationMins},
	})
	return updated, nil
}

// SettlePayment marks the fare as collected. Rider and passenger share this
// single entry point; whoever lands the check-and-set first wins and the
// other caller sees AlreadySettled. The winner also rolls up passenger
// statistics and asks the ride aggregator to re-check completion.
func (s *bookingService) SettlePayment(ctx context.Context, bookingID, actorID string) (*models.Booking, error) {
	booking, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, apperrors.NotFound("booking")
	}

	var confirmedBy string
	switch actorID {
	case booking.RiderID:
		confirmedBy = models.ActorRider
	case booking.PassengerID:
		confirmedBy = models.ActorPassenger
	default:
		return nil, apperrors.NotAuthorized("rider or passenger", "settle this payment")
	}

	var settled bool
	err = s.txm.WithinTx(ctx, func(tx *sqlx.Tx) error {
		won, err := s.bookingRepo.SettlePayment(ctx, tx, bookingID, confirmedBy)
		if err != nil {
			return err
		}
		settled = won
		if !won {
			return nil
		}
		// The ledger row completes with the settlement or not at all.
		return s.txnRepo.MarkCompleted(ctx, tx, bookingID, confirmedBy)
	})
	if err != nil {
		return nil, err
	}
	if !settled {
		current, err := s.bookingRepo.GetByID(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		if current.PaymentStatus == models.PaymentStatusSettled {
			return nil, apperrors.AlreadySettled()
		}
		return nil, apperrors.InvalidTransition(current.Status, models.BookingStatusCompleted)
	}

	distance := s.fareService.EstimateDistance(
		booking.PickupLat, booking.PickupLng,
		booking.DropoffLat, booking.DropoffLng,
	)
	carbon := s.fareService.CarbonSaved(distance, booking.Seats)
	if err := s.userRepo.IncrementPassengerStats(ctx, booking.PassengerID, distance, carbon); err != nil {
		log.Printf("failed to update passenger stats for %s: %v", booking.PassengerID, err)
	}

	if err := s.completer.OnBookingTerminalized(ctx, booking.RideID); err != nil {
		log.Printf("ride completion check failed for ride %s: %v", booking.RideID, err)
	}

	updated, err := s.bookingRepo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, notify.Event{
		Type:        notify.EventBookingPaymentSettled,
		RideID:      booking.RideID,
		BookingID:   booking.ID,
		RiderID:     booking.RiderID,
		PassengerID: booking.PassengerID,
		Data: map[string]interface{}{
			"amount":       booking.TotalAmount,
			"confirmed_by": confirmedBy,
		},
	})
	return updated, nil
}

// releaseSeatsOnce returns a booking's seats to the ride, guarded so a retry
// never releases twice.
func (s *bookingService) releaseSeatsOnce(ctx context.Context, tx *sqlx.Tx, bookingID, rideID string, seats int) error {
	first, err := s.bookingRepo.MarkSeatsReleased(ctx, tx, bookingID)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}
	return s.rideRepo.ReleaseSeats(ctx, tx, rideID, seats)
}

func (s *bookingService) otpError(reason, from, to string) error {
	switch reason {
	case otp.ReasonExpired:
		return apperrors.OTPExpired()
	case otp.ReasonMaxAttempts:
		return apperrors.TooManyAttempts()
	case otp.ReasonAlreadyVerified:
		return apperrors.InvalidTransition(from, to)
	default:
		return apperrors.InvalidOTP()
	}
}

func (s *bookingService) emit(ctx context.Context, ev notify.Event) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Publish(ctx, ev); err != nil {
		log.Printf("failed to publish %s event: %v", ev.Type, err)
	}
}

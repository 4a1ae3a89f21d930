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

type RideService interface {
	CreateRide(ctx context.Context, req *models.CreateRideRequest) (*models.Ride, error)
	GetRide(ctx context.Context, id string) (*models.RideResponse, error)
	ListBookings(ctx context.Context, rideID, actorID string) ([]*models.BookingResponse, error)
	StartRide(ctx context.Context, rideID, actorID string) error
	CancelRide(ctx context.Context, rideID, actorID, reason string) error
	OnBookingTerminalized(ctx context.Context, rideID string) error
}

type rideService struct {
	txm                 repository.TxManager
	rideRepo            repository.RideRepository
	bookingRepo         repository.BookingRepository
	txnRepo             repository.TransactionRepository
	userRepo            repository.UserRepository
	fareService         FareService
	sink                notify.Sink
	pickupOTPExpiryMins int
}

func NewRideService(
	txm repository.TxManager,
	rideRepo repository.RideRepository,
	bookingRepo repository.BookingRepository,
	txnRepo repository.TransactionRepository,
	userRepo repository.UserRepository,
	fareService FareService,
	sink notify.Sink,
	pickupOTPExpiryMins int,
) RideService {
	return &rideService{
		txm:                 txm,
		rideRepo:            rideRepo,
		bookingRepo:         bookingRepo,
		txnRepo:             txnRepo,
		userRepo:            userRepo,
		fareService:         fareService,
		sink:                sink,
		pickupOTPExpiryMins: pickupOTPExpiryMins,
	}
}

func (s *rideService) CreateRide(ctx context.Context, req *models.CreateRideRequest) (*models.Ride, error) {
	rider, err := s.userRepo.GetByID(ctx, req.RiderID)
	if err != nil {
		return nil, err
	}
	if rider == nil {
		return nil, apperrors.NotFound("rider")
	}

	distance := s.fareService.EstimateDistance(
		req.Origin.Lat, req.Origin.Lng,
		req.Destination.Lat, req.Destination.Lng,
	)

	ride := &models.Ride{
		RiderID:        req.RiderID,
		OriginLat:      req.Origin.Lat,
		OriginLng:      req.Origin.Lng,
		DestinationLat: req.Destination.Lat,
		DestinationLng: req.Destination.Lng,
		DepartureTime:  req.DepartureTime,
		TotalSeats:     req.TotalSeats,
		PricePerSeat:   req.PricePerSeat,
		AutoAccept:     req.AutoAccept,
		DistanceKm:     &distance,
	}
	if req.Origin.Address != "" {
		ride.OriginAddress = &req.Origin.Address
	}
	if req.Destination.Address != "" {
		ride.DestinationAddress = &req.Destination.Address
	}
	if req.AllowedGender != "" {
		ride.AllowedGender = &req.AllowedGender
	}

	if err := s.rideRepo.Create(ctx, ride); err != nil {
		return nil, err
	}
	return ride, nil
}

func (s *rideService) GetRide(ctx context.Context, id string) (*models.RideResponse, error) {
	ride, err := s.rideRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ride == nil {
		return nil, apperrors.NotFound("ride")
	}

	response := ride.ToResponse()

	rider, err := s.userRepo.GetByID(ctx, ride.RiderID)
	if err == nil && rider != nil {
		response.Rider = rider.ToResponse()
	}

	return response, nil
}

func (s *rideService) ListBookings(ctx context.Context, rideID, actorID string) ([]*models.BookingResponse, error) {
	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride == nil {
		return nil, apperrors.NotFound("ride")
	}
	if ride.RiderID != actorID {
		return nil, apperrors.NotAuthorized(models.ActorRider, "list ride bookings")
	}

	bookings, err := s.bookingRepo.ListByRide(ctx, rideID)
	if err != nil {
		return nil, err
	}

	responses := make([]*models.BookingResponse, 0, len(bookings))
	for i := range bookings {
		responses = append(responses, bookings[i].ToResponse())
	}
	return responses, nil
}

// StartRide moves the ride to IN_PROGRESS. This is the moment pickup OTPs
// are issued: every confirmed booking gets a fresh bounded-expiry code and
// moves to PICKUP_PENDING, and each passenger is sent their code.
func (s *rideService) StartRide(ctx context.Context, rideID, actorID string) error {
	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return err
	}
	if ride == nil {
		return apperrors.NotFound("ride")
	}
	if ride.RiderID != actorID {
		return apperrors.NotAuthorized(models.ActorRider, "start the ride")
	}

	started, err := s.rideRepo.UpdateStatusIf(ctx, rideID, models.RideStatusActive, models.RideStatusInProgress)
	if err != nil {
		return err
	}
	if !started {
		return apperrors.InvalidTransition(ride.Status, models.RideStatusInProgress)
	}

	confirmed, err := s.bookingRepo.ListByRideAndStatus(ctx, rideID, models.BookingStatusConfirmed)
	if err != nil {
		return err
	}

	expiry := time.Duration(s.pickupOTPExpiryMins) * time.Minute
	for i := range confirmed {
		booking := &confirmed[i]

		rec, err := otp.Generate(&expiry)
		if err != nil {
			log.Printf("failed to generate pickup code for booking %s: %v", booking.ID, err)
			continue
		}

		issued, err := s.bookingRepo.SetPickupOTP(ctx, booking.ID, rec.Code, rec.ExpiresAt)
		if err != nil || !issued {
			log.Printf("failed to issue pickup code for booking %s: %v", booking.ID, err)
			continue
		}

		s.emit(ctx, notify.Event{
			Type:        notify.EventBookingPickupOTPIssued,
			RideID:      rideID,
			BookingID:   booking.ID,
			RiderID:     booking.RiderID,
			PassengerID: booking.PassengerID,
			Data: map[string]interface{}{
				"code":       rec.Code,
				"expires_at": rec.ExpiresAt,
			},
		})
	}

	s.emit(ctx, notify.Event{
		Type:    notify.EventRideStarted,
		RideID:  rideID,
		RiderID: ride.RiderID,
	})
	return nil
}

// CancelRide cancels an ACTIVE ride and terminalizes every open booking on
// it, returning seats and flagging refunds where payment had settled.
func (s *rideService) CancelRide(ctx context.Context, rideID, actorID, reason string) error {
	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return err
	}
	if ride == nil {
		return apperrors.NotFound("ride")
	}
	if ride.RiderID != actorID {
		return apperrors.NotAuthorized(models.ActorRider, "cancel the ride")
	}

	var cancelled []models.Booking
	err = s.txm.WithinTx(ctx, func(tx *sqlx.Tx) error {
		locked, err := s.rideRepo.GetByIDForUpdate(ctx, tx, rideID)
		if err != nil {
			return err
		}
		if locked == nil {
			return apperrors.NotFound("ride")
		}

		won, err := s.rideRepo.MarkCancelled(ctx, tx, rideID, models.ActorRider, reason)
		if err != nil {
			return err
		}
		if !won {
			return apperrors.InvalidTransition(locked.Status, models.RideStatusCancelled)
		}

		open, err := s.bookingRepo.ListByRideAndStatus(ctx, rideID,
			models.BookingStatusPending, models.BookingStatusConfirmed)
		if err != nil {
			return err
		}

		for i := range open {
			booking := &open[i]
			refund := booking.PaymentStatus == models.PaymentStatusSettled

			ok, err := s.bookingRepo.MarkCancelled(ctx, tx, booking.ID, models.ActorRider, reason, refund)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if refund {
				if err := s.txnRepo.MarkRefunded(ctx, tx, booking.ID); err != nil {
					return err
				}
			}

			first, err := s.bookingRepo.MarkSeatsReleased(ctx, tx, booking.ID)
			if err != nil {
				return err
			}
			if first {
				if err := s.rideRepo.ReleaseSeats(ctx, tx, rideID, booking.Seats); err != nil {
					return err
				}
			}

			cancelled = append(cancelled, *booking)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for i := range cancelled {
		booking := &cancelled[i]
		s.emit(ctx, notify.Event{
			Type:        notify.EventBookingCancelled,
			RideID:      rideID,
			BookingID:   booking.ID,
			RiderID:     booking.RiderID,
			PassengerID: booking.PassengerID,
			Data: map[string]interface{}{
				"reason":        reason,
				"refund_issued": booking.PaymentStatus == models.PaymentStatusSettled,
			},
		})
	}

	s.emit(ctx, notify.Event{
		Type:    notify.EventRideCancelled,
		RideID:  rideID,
		RiderID: ride.RiderID,
		Data:    map[string]interface{}{"reason": reason},
	})
	return nil
}

// OnBookingTerminalized re-checks whether every booking on the ride has
// reached a terminal state. If so and the ride is IN_PROGRESS, the ride
// completes: earnings roll up from completed bookings and rider statistics
// bump exactly once, gated by the conditional status transition rather than
// a counter.
func (s *rideService) OnBookingTerminalized(ctx context.Context, rideID string) error {
	unfinished, err := s.bookingRepo.CountUnfinishedByRide(ctx, rideID)
	if err != nil {
		return err
	}
	if unfinished > 0 {
		return nil
	}

	ride, err := s.rideRepo.GetByID(ctx, rideID)
	if err != nil {
		return err
	}
	if ride == nil || ride.Status != models.RideStatusInProgress {
		return nil
	}

	completed, err := s.bookingRepo.ListByRideAndStatus(ctx, rideID, models.BookingStatusCompleted)
	if err != nil {
		return err
	}

	var earnings float64
	var seats int
	for i := range completed {
		earnings += completed[i].RideFare
		seats += completed[i].Seats
	}

	won, err := s.rideRepo.CompleteIfInProgress(ctx, rideID, earnings)
	if err != nil {
		return err
	}
	if !won {
		// Another settlement path got here first.
		return nil
	}

	var distance float64
	if ride.DistanceKm != nil {
		distance = *ride.DistanceKm
	}
	carbon := s.fareService.CarbonSaved(distance, seats)
	if err := s.userRepo.IncrementRiderStats(ctx, ride.RiderID, distance, carbon); err != nil {
		log.Printf("failed to update rider stats for %s: %v", ride.RiderID, err)
	}

	s.emit(ctx, notify.Event{
		Type:    notify.EventRideCompleted,
		RideID:  rideID,
		RiderID: ride.RiderID,
		Data:    map[string]interface{}{"earnings": earnings},
	})
	return nil
}

func (s *rideService) emit(ctx context.Context, ev notify.Event) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Publish(ctx, ev); err != nil {
		log.Printf("failed to publish %s event: %v", ev.Type, err)
	}
}

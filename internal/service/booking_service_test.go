package service

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/aditya/go-saathi/internal/errors"
	"github.com/aditya/go-saathi/internal/models"
	"github.com/aditya/go-saathi/internal/notify"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// In-memory fakes. Each mutating method mirrors the guarded-UPDATE semantics
// of the real repository: check and write in one step, report rows affected
// as a bool. Reads return copies so service code never aliases stored state.

type fakeTxManager struct{}

func (f *fakeTxManager) WithinTx(_ context.Context, fn func(tx *sqlx.Tx) error) error {
	return fn(nil)
}

type fakeRideRepo struct {
	rides map[string]*models.Ride

	// onLock runs when a ride row is locked, to interleave a competing
	// writer at the point where the real database would serialize it.
	onLock func()
}

func newFakeRideRepo() *fakeRideRepo {
	return &fakeRideRepo{rides: make(map[string]*models.Ride)}
}

func (f *fakeRideRepo) Create(_ context.Context, ride *models.Ride) error {
	if ride.ID == "" {
		ride.ID = uuid.New().String()
	}
	ride.Status = models.RideStatusActive
	ride.AvailableSeats = ride.TotalSeats
	cp := *ride
	f.rides[ride.ID] = &cp
	return nil
}

func (f *fakeRideRepo) GetByID(_ context.Context, id string) (*models.Ride, error) {
	r, ok := f.rides[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRideRepo) GetByIDForUpdate(ctx context.Context, _ *sqlx.Tx, id string) (*models.Ride, error) {
	if f.onLock != nil {
		f.onLock()
	}
	return f.GetByID(ctx, id)
}

func (f *fakeRideRepo) UpdateStatusIf(_ context.Context, id, from, to string) (bool, error) {
	r, ok := f.rides[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	return true, nil
}

func (f *fakeRideRepo) ReserveSeats(_ context.Context, _ *sqlx.Tx, rideID string, seats int) (bool, error) {
	r, ok := f.rides[rideID]
	if !ok || r.Status != models.RideStatusActive || r.AvailableSeats < seats {
		return false, nil
	}
	r.AvailableSeats -= seats
	return true, nil
}

func (f *fakeRideRepo) ReleaseSeats(_ context.Context, _ *sqlx.Tx, rideID string, seats int) error {
	r, ok := f.rides[rideID]
	if !ok {
		return errors.New("ride not found")
	}
	r.AvailableSeats += seats
	if r.AvailableSeats > r.TotalSeats {
		r.AvailableSeats = r.TotalSeats
	}
	return nil
}

func (f *fakeRideRepo) MarkCancelled(_ context.Context, _ *sqlx.Tx, id, cancelledBy, reason string) (bool, error) {
	r, ok := f.rides[id]
	if !ok || r.Status != models.RideStatusActive {
		return false, nil
	}
	r.Status = models.RideStatusCancelled
	r.CancelledBy = &cancelledBy
	r.CancellationReason = &reason
	return true, nil
}

func (f *fakeRideRepo) CompleteIfInProgress(_ context.Context, id string, earnings float64) (bool, error) {
	r, ok := f.rides[id]
	if !ok || r.Status != models.RideStatusInProgress {
		return false, nil
	}
	r.Status = models.RideStatusCompleted
	r.Earnings = earnings
	return true, nil
}

func (f *fakeRideRepo) ListOpenByRider(_ context.Context, riderID string) ([]models.Ride, error) {
	var out []models.Ride
	for _, r := range f.rides {
		if r.RiderID == riderID && (r.Status == models.RideStatusActive || r.Status == models.RideStatusInProgress) {
			out = append(out, *r)
		}
	}
	return out, nil
}

type fakeBookingRepo struct {
	bookings map[string]*models.Booking

	// beforePickupIncrement interleaves a competing writer ahead of the
	// attempt counter bump.
	beforePickupIncrement func()
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{bookings: make(map[string]*models.Booking)}
}

func (f *fakeBookingRepo) Create(_ context.Context, _ *sqlx.Tx, b *models.Booking) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	b.PaymentStatus = models.PaymentStatusPending
	cp := *b
	f.bookings[b.ID] = &cp
	return nil
}

func (f *fakeBookingRepo) GetByID(_ context.Context, id string) (*models.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBookingRepo) GetByIDForUpdate(ctx context.Context, _ *sqlx.Tx, id string) (*models.Booking, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeBookingRepo) GetActiveByRideAndPassenger(_ context.Context, rideID, passengerID string) (*models.Booking, error) {
	for _, b := range f.bookings {
		if b.RideID == rideID && b.PassengerID == passengerID && !b.IsTerminal() {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeBookingRepo) ListByRide(_ context.Context, rideID string) ([]models.Booking, error) {
	var out []models.Booking
	for _, b := range f.bookings {
		if b.RideID == rideID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBookingRepo) ListByRideAndStatus(_ context.Context, rideID string, statuses ...string) ([]models.Booking, error) {
	var out []models.Booking
	for _, b := range f.bookings {
		if b.RideID != rideID {
			continue
		}
		for _, s := range statuses {
			if b.Status == s {
				out = append(out, *b)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeBookingRepo) CountUnfinishedByRide(_ context.Context, rideID string) (int, error) {
	count := 0
	for _, b := range f.bookings {
		if b.RideID == rideID && !b.IsTerminal() {
			count++
		}
	}
	return count, nil
}

func (f *fakeBookingRepo) Accept(_ context.Context, id, message string) (bool, error) {
	b, ok := f.bookings[id]
	if !ok || b.Status != models.BookingStatusPending {
		return false, nil
	}
	b.Status = models.BookingStatusConfirmed
	now := time.Now()
	b.AcceptedAt = &now
	if message != "" {
		b.AcceptanceMessage = &message
	}
	return true, nil
}

func (f *fakeBookingRepo) MarkRejected(_ context.Context, _ *sqlx.Tx, id, reason string) (bool, error) {
	b, ok := f.bookings[id]
	if !ok || b.Status != models.BookingStatusPending {
		return false, nil
	}
	b.Status = models.BookingStatusRejected
	by := models.ActorRider
	b.CancelledBy = &by
	if reason != "" {
		b.CancellationReason = &reason
	}
	return true, nil
}

func (f *fakeBookingRepo) MarkCancelled(_ context.Context, _ *sqlx.Tx, id, cancelledBy, reason string, refund bool) (bool, error) {
	b, ok := f.bookings[id]
	if !ok || (b.Status != models.BookingStatusPending && b.Status != models.BookingStatusConfirmed) {
		return false, nil
	}
	b.Status = models.BookingStatusCancelled
	b.CancelledBy = &cancelledBy
	if reason != "" {
		b.CancellationReason = &reason
	}
	if refund {
		b.PaymentStatus = models.PaymentStatusRefunded
		b.RefundIssued = true
	}
	return true, nil
}

func (f *fakeBookingRepo) MarkSeatsReleased(_ context.Context, _ *sqlx.Tx, id string) (bool, error) {
	b, ok := f.bookings[id]
	if !ok || b.SeatsReleased {
		return false, nil
	}
	b.SeatsReleased = true
	return true, nil
}

func (f *fakeBookingRepo) SetPickupOTP(_ context.Context, id, code string, expiresAt *time.Time) (bool, error) {
	b, ok := f.bookings[id]
	if !ok || b.Status != models.BookingStatusConfirmed {
		return false, nil
	}
	b.PickupOTP = &code
	b.PickupOTPExpiresAt = expiresAt
	b.Status = models.BookingStatusPickupPending
	return true, nil
}

func (f *fakeBookingRepo) IncrementPickupAttempts(_ context.Context, id string) (int, error) {
	if f.beforePickupIncrement != nil {
		f.beforePickupIncrement()
	}
	b, ok := f.bookings[id]
	if !ok {
		return 0, errors.New("booking not found")
	}
	b.PickupAttempts++
	return b.PickupAttempts, nil
}

func (f *fakeBookingRepo) IncrementDropoffAttempts(_ context.Context, id string) (int, error) {
	b, ok := f.bookings[id]
	if !ok {
		return 0, errors.New("booking not found")
	}
	b.DropoffAttempts++
	return b.DropoffAttempts, nil
}

func (f *fakeBookingRepo) MarkPickupVerified(_ context.Context, id, dropoffCode string) (bool, error) {
	b, ok := f.bookings[id]
	if !ok || b.PickupVerified {
		return false, nil
	}
	if b.Status != models.BookingStatusConfirmed && b.Status != models.BookingStatusPickupPending {
		return false, nil
	}
	now := time.Now()
	b.PickupVerified = true
	b.PickupVerifiedAt = &now
	b.JourneyStartedAt = &now
	b.DropoffOTP = &dropoffCode
	b.Status = models.BookingStatusPickedUp
	return true, nil
}

func (f *fakeBookingRepo) MarkDropoffVerified(_ context.Context, id string, durationMins int) (bool, error) {
	b, ok := f.bookings[id]
	if !ok || b.Status != models.BookingStatusPickedUp || b.DropoffVerified {
		return false, nil
	}
	now := time.Now()
	b.DropoffVerified = true
	b.DropoffVerifiedAt = &now
	b.JourneyEndedAt = &now
	b.JourneyDurationMins = &durationMins
	b.Status = models.BookingStatusDroppedOff
	return true, nil
}

func (f *fakeBookingRepo) SettlePayment(_ context.Context, _ *sqlx.Tx, id, confirmedBy string) (bool, error) {
	b, ok := f.bookings[id]
	if !ok || b.Status != models.BookingStatusDroppedOff || b.PaymentStatus != models.PaymentStatusPending {
		return false, nil
	}
	now := time.Now()
	b.PaymentStatus = models.PaymentStatusSettled
	b.PaymentConfirmedBy = &confirmedBy
	b.PaymentConfirmedAt = &now
	b.Status = models.BookingStatusCompleted
	return true, nil
}

type fakeTxnRepo struct {
	txns map[string]*models.Transaction // keyed by booking ID
}

func newFakeTxnRepo() *fakeTxnRepo {
	return &fakeTxnRepo{txns: make(map[string]*models.Transaction)}
}

func (f *fakeTxnRepo) Create(_ context.Context, _ *sqlx.Tx, txn *models.Transaction) error {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	txn.Status = models.TransactionStatusPending
	cp := *txn
	f.txns[txn.BookingID] = &cp
	return nil
}

func (f *fakeTxnRepo) GetByBookingID(_ context.Context, bookingID string) (*models.Transaction, error) {
	t, ok := f.txns[bookingID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTxnRepo) MarkCompleted(_ context.Context, _ *sqlx.Tx, bookingID, confirmedBy string) error {
	t, ok := f.txns[bookingID]
	if !ok {
		return errors.New("transaction not found")
	}
	if t.Status == models.TransactionStatusPending {
		t.Status = models.TransactionStatusCompleted
		t.ConfirmedBy = &confirmedBy
	}
	return nil
}

func (f *fakeTxnRepo) MarkRefunded(_ context.Context, _ *sqlx.Tx, bookingID string) error {
	t, ok := f.txns[bookingID]
	if !ok {
		return errors.New("transaction not found")
	}
	t.Status = models.TransactionStatusRefunded
	return nil
}

type fakeUserRepo struct {
	users map[string]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*models.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) GetByPhone(_ context.Context, phone string) (*models.User, error) {
	for _, u := range f.users {
		if u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) IncrementPassengerStats(_ context.Context, id string, distanceKm, carbonKg float64) error {
	u, ok := f.users[id]
	if !ok {
		return errors.New("user not found")
	}
	u.RidesTaken++
	u.TotalDistanceKm += distanceKm
	u.CarbonSavedKg += carbonKg
	return nil
}

func (f *fakeUserRepo) IncrementRiderStats(_ context.Context, id string, distanceKm, carbonKg float64) error {
	u, ok := f.users[id]
	if !ok {
		return errors.New("user not found")
	}
	u.RidesOffered++
	u.TotalDistanceKm += distanceKm
	u.CarbonSavedKg += carbonKg
	return nil
}

type fakeSink struct {
	events []notify.Event
}

func (f *fakeSink) Publish(_ context.Context, ev notify.Event) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeSink) eventsOfType(typ string) []notify.Event {
	var out []notify.Event
	for _, ev := range f.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// testEnv wires the booking and ride services over the fakes the same way
// main does over the real repositories.
type testEnv struct {
	bookings *fakeBookingRepo
	rides    *fakeRideRepo
	txns     *fakeTxnRepo
	users    *fakeUserRepo
	sink     *fakeSink

	bookingService BookingService
	rideService    RideService

	rider     *models.User
	passenger *models.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		bookings: newFakeBookingRepo(),
		rides:    newFakeRideRepo(),
		txns:     newFakeTxnRepo(),
		users:    newFakeUserRepo(),
		sink:     &fakeSink{},
	}

	txm := &fakeTxManager{}
	fareService := NewFareService()

	env.rideService = NewRideService(txm, env.rides, env.bookings, env.txns, env.users,
		fareService, env.sink, 30)
	env.bookingService = NewBookingService(txm, env.bookings, env.rides, env.txns, env.users,
		fareService, env.rideService, env.sink, BookingConfig{
			CommissionAmount:    5,
			PickupOTPExpiryMins: 30,
			OTPMaxAttempts:      5,
		})

	env.rider = &models.User{Name: "Rider", Phone: "9800000001", Gender: "male"}
	env.passenger = &models.User{Name: "Passenger", Phone: "9800000002", Gender: "female"}
	env.users.Create(context.Background(), env.rider)
	env.users.Create(context.Background(), env.passenger)

	return env
}

func (env *testEnv) createRide(t *testing.T, totalSeats int, autoAccept bool) *models.Ride {
	t.Helper()
	ride := &models.Ride{
		RiderID:        env.rider.ID,
		OriginLat:      12.97,
		OriginLng:      77.59,
		DestinationLat: 12.93,
		DestinationLng: 77.62,
		DepartureTime:  time.Now().Add(2 * time.Hour),
		TotalSeats:     totalSeats,
		PricePerSeat:   100,
		AutoAccept:     autoAccept,
	}
	if err := env.rides.Create(context.Background(), ride); err != nil {
		t.Fatalf("create ride: %v", err)
	}
	return ride
}

func (env *testEnv) bookingRequest(rideID, passengerID string, seats int) *models.CreateBookingRequest {
	return &models.CreateBookingRequest{
		RideID:        rideID,
		PassengerID:   passengerID,
		Seats:         seats,
		Pickup:        models.Location{Lat: 12.96, Lng: 77.60},
		Dropoff:       models.Location{Lat: 12.94, Lng: 77.61},
		PaymentMethod: models.PaymentMethodCash,
	}
}

func assertAPIError(t *testing.T, err error, wantCode string) *apperrors.APIError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", wantCode)
	}
	apiErr, ok := err.(*apperrors.APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Code != wantCode {
		t.Fatalf("error code = %q, want %q (message: %s)", apiErr.Code, wantCode, apiErr.Message)
	}
	return apiErr
}

func TestCreateBookingPending(t *testing.T) {
	env := newTestEnv(t)
	ride := env.createRide(t, 3, false)
	ctx := context.Background()

	booking, autoAccepted, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, env.passenger.ID, 2))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if autoAccepted {
		t.Error("expected manual-accept booking")
	}
	if booking.Status != models.BookingStatusPending {
		t.Errorf("status = %s, want pending", booking.Status)
	}
	if booking.RideFare != 200 || booking.Commission != 5 || booking.TotalAmount != 205 {
		t.Errorf("fare = %v/%v/%v, want 200/5/205", booking.RideFare, booking.Commission, booking.TotalAmount)
	}

	stored, _ := env.rides.GetByID(ctx, ride.ID)
	if stored.AvailableSeats != 1 {
		t.Errorf("available seats = %d, want 1", stored.AvailableSeats)
	}

	txn, _ := env.txns.GetByBookingID(ctx, booking.ID)
	if txn == nil {
		t.Fatal("expected ledger transaction to be created with the booking")
	}
	if txn.Status != models.TransactionStatusPending || txn.Amount != 205 {
		t.Errorf("transaction = %s/%v, want pending/205", txn.Status, txn.Amount)
	}

	if got := env.sink.eventsOfType(notify.EventBookingCreated); len(got) != 1 {
		t.Errorf("booking.created events = %d, want 1", len(got))
	}
}

func TestCreateBookingAutoAccept(t *testing.T) {
	env := newTestEnv(t)
	ride := env.createRide(t, 3, true)

	booking, autoAccepted, err := env.bookingService.Create(context.Background(),
		env.bookingRequest(ride.ID, env.passenger.ID, 1))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !autoAccepted {
		t.Error("expected auto-accepted booking")
	}
	if booking.Status != models.BookingStatusConfirmed {
		t.Errorf("status = %s, want confirmed", booking.Status)
	}
	if booking.PickupOTP != nil {
		t.Error("pickup code must not be issued at acceptance")
	}
}

func TestCreateBookingInsufficientSeats(t *testing.T) {
	env := newTestEnv(t)
	ride := env.createRide(t, 2, false)
	ctx := context.Background()

	if _, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, env.passenger.ID, 2)); err != nil {
		t.Fatalf("first booking error = %v", err)
	}

	other := &models.User{Name: "Second", Phone: "9800000003", Gender: "male"}
	env.users.Create(ctx, other)

	_, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, other.ID, 1))
	assertAPIError(t, err, "insufficient_seats")

	stored, _ := env.rides.GetByID(ctx, ride.ID)
	if stored.AvailableSeats != 0 {
		t.Errorf("available seats = %d, want 0 (failed booking must not change inventory)", stored.AvailableSeats)
	}
}

func TestCreateBookingGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("self booking", func(t *testing.T) {
		ride := env.createRide(t, 2, false)
		_, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, env.rider.ID, 1))
		assertAPIError(t, err, "self_booking")
	})

	t.Run("duplicate booking", func(t *testing.T) {
		ride := env.createRide(t, 4, false)
		if _, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, env.passenger.ID, 1)); err != nil {
			t.Fatalf("first booking error = %v", err)
		}
		_, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, env.passenger.ID, 1))
		assertAPIError(t, err, "duplicate_booking")
	})

	t.Run("gender restricted", func(t *testing.T) {
		ride := env.createRide(t, 2, false)
		female := "female"
		env.rides.rides[ride.ID].AllowedGender = &female

		male := &models.User{Name: "M", Phone: "9800000009", Gender: "male"}
		env.users.Create(ctx, male)

		_, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, male.ID, 1))
		assertAPIError(t, err, "gender_restricted")
	})

	t.Run("ride not open", func(t *testing.T) {
		ride := env.createRide(t, 2, false)
		env.rides.rides[ride.ID].Status = models.RideStatusInProgress

		other := &models.User{Name: "Late", Phone: "9800000010", Gender: "female"}
		env.users.Create(ctx, other)

		_, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, other.ID, 1))
		assertAPIError(t, err, "ride_unavailable")
	})
}

func TestCreateBookingDuplicateUnderLock(t *testing.T) {
	env := newTestEnv(t)
	ride := env.createRide(t, 4, false)
	ctx := context.Background()

	// A create by the same passenger commits between the pre-check and the
	// ride lock. The in-transaction re-check must catch it.
	env.rides.onLock = func() {
		env.rides.onLock = nil
		competing := &models.Booking{
			RideID:      ride.ID,
			PassengerID: env.passenger.ID,
			RiderID:     env.rider.ID,
			Seats:       1,
			Status:      models.BookingStatusPending,
		}
		env.bookings.Create(ctx, nil, competing)
		env.rides.rides[ride.ID].AvailableSeats--
	}

	_, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, env.passenger.ID, 1))
	assertAPIError(t, err, "duplicate_booking")

	if n, _ := env.bookings.CountUnfinishedByRide(ctx, ride.ID); n != 1 {
		t.Errorf("active bookings = %d, want 1 (one booking per passenger per ride)", n)
	}

	stored, _ := env.rides.GetByID(ctx, ride.ID)
	if stored.AvailableSeats != 3 {
		t.Errorf("available seats = %d, want 3 (loser must not reserve)", stored.AvailableSeats)
	}
}

func TestAcceptBooking(t *testing.T) {
	env := newTestEnv(t)
	ride := env.createRide(t, 3, false)
	ctx := context.Background()

	booking, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, env.passenger.ID, 1))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("only the rider may accept", func(t *testing.T) {
		err := env.bookingService.Accept(ctx, booking.ID, env.passenger.ID, "")
		assertAPIError(t, err, "not_authorized")
	})

	t.Run("accept confirms", func(t *testing.T) {
		if err := env.bookingService.Accept(ctx, booking.ID, env.rider.ID, "see you at the gate"); err != nil {
			t.Fatalf("Accept() error = %v", err)
		}
		stored, _ := env.bookings.GetByID(ctx, booking.ID)
		if stored.Status != models.BookingStatusConfirmed {
			t.Errorf("status = %s, want confirmed", stored.Status)
		}
		if stored.AcceptedAt == nil {
			t.Error("accepted_at not recorded")
		}
		if stored.PickupOTP != nil {
			t.Error("pickup code must not be issued at acceptance")
		}
	})

	t.Run("second accept is an invalid transition", func(t *testing.T) {
		err := env.bookingService.Accept(ctx, booking.ID, env.rider.ID, "")
		assertAPIError(t, err, "invalid_transition")
	})
}

func TestAcceptAfterRideLeftActive(t *testing.T) {
	env := newTestEnv(t)
	ride := env.createRide(t, 3, false)
	ctx := context.Background()

	booking, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, env.passenger.ID, 1))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	env.rides.rides[ride.ID].Status = models.RideStatusCancelled

	err = env.bookingService.Accept(ctx, booking.ID, env.rider.ID, "")
	assertAPIError(t, err, "ride_no_longer_available")

	err = env.bookingService.Reject(ctx, booking.ID, env.rider.ID, "")
	assertAPIError(t, err, "ride_no_longer_available")
}

func TestRejectBookingReleasesSeatsOnce(t *testing.T) {
	env := newTestEnv(t)
	ride := env.createRide(t, 4, false)
	ctx := context.Background()

	booking, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, env.passenger.ID, 2))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := env.bookingService.Reject(ctx, booking.ID, env.rider.ID, "car is full"); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}

	stored, _ := env.bookings.GetByID(ctx, booking.ID)
	if stored.Status != models.BookingStatusRejected {
		t.Errorf("status = %s, want rejected", stored.Status)
	}

	rideStored, _ := env.rides.GetByID(ctx, ride.ID)
	if rideStored.AvailableSeats != 4 {
		t.Errorf("available seats = %d, want 4", rideStored.AvailableSeats)
	}

	// A retry fails the transition and must not release again
	err = env.bookingService.Reject(ctx, booking.ID, env.rider.ID, "again")
	assertAPIError(t, err, "invalid_transition")

	rideStored, _ = env.rides.GetByID(ctx, ride.ID)
	if rideStored.AvailableSeats != 4 {
		t.Errorf("available seats after retry = %d, want 4", rideStored.AvailableSeats)
	}
}

func TestCancelBooking(t *testing.T) {
	env := newTestEnv(t)
	ride := env.createRide(t, 4, true)
	ctx := context.Background()

	booking, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, env.passenger.ID, 2))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("only the passenger may cancel", func(t *testing.T) {
		err := env.bookingService.Cancel(ctx, booking.ID, env.rider.ID, "")
		assertAPIError(t, err, "not_authorized")
	})

	t.Run("cancel before pickup releases seats", func(t *testing.T) {
		if err := env.bookingService.Cancel(ctx, booking.ID, env.passenger.ID, "change of plans"); err != nil {
			t.Fatalf("Cancel() error = %v", err)
		}

		stored, _ := env.bookings.GetByID(ctx, booking.ID)
		if stored.Status != models.BookingStatusCancelled {
			t.Errorf("status = %s, want cancelled", stored.Status)
		}
		if stored.RefundIssued {
			t.Error("no refund expected for unsettled payment")
		}

		rideStored, _ := env.rides.GetByID(ctx, ride.ID)
		if rideStored.AvailableSeats != 4 {
			t.Errorf("available seats = %d, want 4", rideStored.AvailableSeats)
		}
	})
}

func TestCancelBookingRefundsSettledPayment(t *testing.T) {
	env := newTestEnv(t)
	ride := env.createRide(t, 4, true)
	ctx := context.Background()

	booking, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, env.passenger.ID, 1))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Wallet payments settle up front
	env.bookings.bookings[booking.ID].PaymentStatus = models.PaymentStatusSettled

	if err := env.bookingService.Cancel(ctx, booking.ID, env.passenger.ID, "emergency"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	stored, _ := env.bookings.GetByID(ctx, booking.ID)
	if !stored.RefundIssued {
		t.Error("expected refund to be flagged")
	}
	if stored.PaymentStatus != models.PaymentStatusRefunded {
		t.Errorf("payment status = %s, want refunded", stored.PaymentStatus)
	}

	txn, _ := env.txns.GetByBookingID(ctx, booking.ID)
	if txn.Status != models.TransactionStatusRefunded {
		t.Errorf("transaction status = %s, want refunded", txn.Status)
	}
}

func TestCancelAfterPickupForbidden(t *testing.T) {
	env := newTestEnv(t)
	ride := env.createRide(t, 4, true)
	ctx := context.Background()

	booking := env.bookToPickedUp(t, ride)

	err := env.bookingService.Cancel(ctx, booking.ID, env.passenger.ID, "too late")
	assertAPIError(t, err, "invalid_transition")

	stored, _ := env.bookings.GetByID(ctx, booking.ID)
	if stored.Status != models.BookingStatusPickedUp {
		t.Errorf("status = %s, want picked_up (cancel must not touch it)", stored.Status)
	}
}

// bookToPickedUp runs create -> start ride -> verify pickup and returns the
// picked-up booking.
func (env *testEnv) bookToPickedUp(t *testing.T, ride *models.Ride) *models.Booking {
	t.Helper()
	ctx := context.Background()

	booking, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, env.passenger.ID, 1))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if booking.Status != models.BookingStatusConfirmed {
		if err := env.bookingService.Accept(ctx, booking.ID, env.rider.ID, ""); err != nil {
			t.Fatalf("Accept() error = %v", err)
		}
	}

	if err := env.rideService.StartRide(ctx, ride.ID, env.rider.ID); err != nil {
		t.Fatalf("StartRide() error = %v", err)
	}

	stored, _ := env.bookings.GetByID(ctx, booking.ID)
	if stored.PickupOTP == nil {
		t.Fatal("pickup code not issued at ride start")
	}

	updated, err := env.bookingService.VerifyPickup(ctx, booking.ID, env.rider.ID, *stored.PickupOTP)
	if err != nil {
		t.Fatalf("VerifyPickup() error = %v", err)
	}
	return updated
}

func TestStartRideIssuesPickupCodes(t *testing.T) {
	env := newTestEnv(t)
	ride := env.createRide(t, 4, true)
	ctx := context.Background()

	booking, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, env.passenger.ID, 1))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := env.rideService.StartRide(ctx, ride.ID, env.rider.ID); err != nil {
		t.Fatalf("StartRide() error = %v", err)
	}

	rideStored, _ := env.rides.GetByID(ctx, ride.ID)
	if rideStored.Status != models.RideStatusInProgress {
		t.Errorf("ride status = %s, want in_progress", rideStored.Status)
	}

	stored, _ := env.bookings.GetByID(ctx, booking.ID)
	if stored.Status != models.BookingStatusPickupPending {
		t.Errorf("booking status = %s, want pickup_pending", stored.Status)
	}
	if stored.PickupOTP == nil || len(*stored.PickupOTP) != 6 {
		t.Error("expected a 6-digit pickup code")
	}
	if stored.PickupOTPExpiresAt == nil {
		t.Error("pickup code must carry an expiry")
	}

	if got := env.sink.eventsOfType(notify.EventBookingPickupOTPIssued); len(got) != 1 {
		t.Errorf("pickup OTP events = %d, want 1", len(got))
	}

	// Starting again is an invalid transition
	err = env.rideService.StartRide(ctx, ride.ID, env.rider.ID)
	assertAPIError(t, err, "invalid_transition")
}

func TestVerifyPickup(t *testing.T) {
	env := newTestEnv(t)
	ride := env.createRide(t, 4, true)
	ctx := context.Background()

	booking, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, env.passenger.ID, 1))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := env.rideService.StartRide(ctx, ride.ID, env.rider.ID); err != nil {
		t.Fatalf("StartRide() error = %v", err)
	}

	stored, _ := env.bookings.GetByID(ctx, booking.ID)
	code := *stored.PickupOTP

	t.Run("wrong code counts an attempt and keeps state", func(t *testing.T) {
		_, err := env.bookingService.VerifyPickup(ctx, booking.ID, env.rider.ID, "000000")
		assertAPIError(t, err, "invalid_otp")

		after, _ := env.bookings.GetByID(ctx, booking.ID)
		if after.PickupAttempts != 1 {
			t.Errorf("attempts = %d, want 1", after.PickupAttempts)
		}
		if after.Status != models.BookingStatusPickupPending {
			t.Errorf("status = %s, want pickup_pending", after.Status)
		}
	})

	t.Run("correct code picks up and mints dropoff code", func(t *testing.T) {
		updated, err := env.bookingService.VerifyPickup(ctx, booking.ID, env.rider.ID, code)
		if err != nil {
			t.Fatalf("VerifyPickup() error = %v", err)
		}
		if updated.Status != models.BookingStatusPickedUp {
			t.Errorf("status = %s, want picked_up", updated.Status)
		}
		if !updated.PickupVerified || updated.JourneyStartedAt == nil {
			t.Error("pickup verification record incomplete")
		}
		if updated.DropoffOTP == nil || len(*updated.DropoffOTP) != 6 {
			t.Error("expected a 6-digit dropoff code")
		}
		if updated.DropoffOTPExpiresAt != nil {
			t.Error("dropoff code must not expire")
		}
		// Success consumed an attempt too
		if updated.PickupAttempts != 2 {
			t.Errorf("attempts = %d, want 2", updated.PickupAttempts)
		}
	})

	t.Run("verifying again is an invalid transition", func(t *testing.T) {
		_, err := env.bookingService.VerifyPickup(ctx, booking.ID, env.rider.ID, code)
		assertAPIError(t, err, "invalid_transition")
	})
}

func TestVerifyPickupExpiredCode(t *testing.T) {
	env := newTestEnv(t)
	ride := env.createRide(t, 4, true)
	ctx := context.Background()

	booking, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, env.passenger.ID, 1))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := env.rideService.StartRide(ctx, ride.ID, env.rider.ID); err != nil {
		t.Fatalf("StartRide() error = %v", err)
	}

	past := time.Now().Add(-time.Minute)
	env.bookings.bookings[booking.ID].PickupOTPExpiresAt = &past

	stored, _ := env.bookings.GetByID(ctx, booking.ID)
	_, err = env.bookingService.VerifyPickup(ctx, booking.ID, env.rider.ID, *stored.PickupOTP)
	assertAPIError(t, err, "otp_expired")
}

func TestVerifyPickupAttemptLimit(t *testing.T) {
	env := newTestEnv(t)
	ride := env.createRide(t, 4, true)
	ctx := context.Background()

	booking, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, env.passenger.ID, 1))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := env.rideService.StartRide(ctx, ride.ID, env.rider.ID); err != nil {
		t.Fatalf("StartRide() error = %v", err)
	}

	for i := 0; i < 5; i++ {
		_, err := env.bookingService.VerifyPickup(ctx, booking.ID, env.rider.ID, "000000")
		assertAPIError(t, err, "invalid_otp")
	}

	// Sixth attempt trips the limit even with the correct code
	stored, _ := env.bookings.GetByID(ctx, booking.ID)
	_, err = env.bookingService.VerifyPickup(ctx, booking.ID, env.rider.ID, *stored.PickupOTP)
	assertAPIError(t, err, "too_many_attempts")
}

func TestVerifyPickupLimitCountsConcurrentAttempts(t *testing.T) {
	env := newTestEnv(t)
	ride := env.createRide(t, 4, true)
	ctx := context.Background()

	booking, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, env.passenger.ID, 1))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := env.rideService.StartRide(ctx, ride.ID, env.rider.ID); err != nil {
		t.Fatalf("StartRide() error = %v", err)
	}

	// Other submissions land between this call's read and its counter bump.
	// The limit check must use the count the database recorded, not the
	// stale read.
	env.bookings.beforePickupIncrement = func() {
		env.bookings.beforePickupIncrement = nil
		env.bookings.bookings[booking.ID].PickupAttempts = 5
	}

	stored, _ := env.bookings.GetByID(ctx, booking.ID)
	_, err = env.bookingService.VerifyPickup(ctx, booking.ID, env.rider.ID, *stored.PickupOTP)
	assertAPIError(t, err, "too_many_attempts")

	after, _ := env.bookings.GetByID(ctx, booking.ID)
	if after.Status != models.BookingStatusPickupPending {
		t.Errorf("status = %s, want pickup_pending", after.Status)
	}
}

func TestVerifyDropoffBeforePickup(t *testing.T) {
	env := newTestEnv(t)
	ride := env.createRide(t, 4, true)
	ctx := context.Background()

	booking, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, env.passenger.ID, 1))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	_, err = env.bookingService.VerifyDropoff(ctx, booking.ID, env.rider.ID, "123456")
	assertAPIError(t, err, "invalid_transition")
}

func TestVerifyDropoff(t *testing.T) {
	env := newTestEnv(t)
	ride := env.createRide(t, 4, true)
	ctx := context.Background()

	booking := env.bookToPickedUp(t, ride)
	code := *booking.DropoffOTP

	t.Run("wrong code", func(t *testing.T) {
		_, err := env.bookingService.VerifyDropoff(ctx, booking.ID, env.rider.ID, "000000")
		assertAPIError(t, err, "invalid_otp")
	})

	t.Run("correct code drops off", func(t *testing.T) {
		updated, err := env.bookingService.VerifyDropoff(ctx, booking.ID, env.rider.ID, code)
		if err != nil {
			t.Fatalf("VerifyDropoff() error = %v", err)
		}
		if updated.Status != models.BookingStatusDroppedOff {
			t.Errorf("status = %s, want dropped_off", updated.Status)
		}
		if updated.JourneyDurationMins == nil || *updated.JourneyDurationMins < 1 {
			t.Error("journey duration should be recorded, minimum 1 minute")
		}
		if updated.PaymentStatus != models.PaymentStatusPending {
			t.Errorf("payment status = %s, want pending (settlement is explicit)", updated.PaymentStatus)
		}
	})
}

func TestSettlePaymentExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ride := env.createRide(t, 4, true)
	ctx := context.Background()

	booking := env.bookToPickedUp(t, ride)
	if _, err := env.bookingService.VerifyDropoff(ctx, booking.ID, env.rider.ID, *booking.DropoffOTP); err != nil {
		t.Fatalf("VerifyDropoff() error = %v", err)
	}

	t.Run("stranger cannot settle", func(t *testing.T) {
		_, err := env.bookingService.SettlePayment(ctx, booking.ID, uuid.New().String())
		assertAPIError(t, err, "not_authorized")
	})

	t.Run("passenger settles", func(t *testing.T) {
		updated, err := env.bookingService.SettlePayment(ctx, booking.ID, env.passenger.ID)
		if err != nil {
			t.Fatalf("SettlePayment() error = %v", err)
		}
		if updated.Status != models.BookingStatusCompleted {
			t.Errorf("status = %s, want completed", updated.Status)
		}
		if updated.PaymentStatus != models.PaymentStatusSettled {
			t.Errorf("payment status = %s, want settled", updated.PaymentStatus)
		}
		if updated.PaymentConfirmedBy == nil || *updated.PaymentConfirmedBy != models.ActorPassenger {
			t.Error("confirmed_by should record the passenger path")
		}

		txn, _ := env.txns.GetByBookingID(ctx, booking.ID)
		if txn.Status != models.TransactionStatusCompleted {
			t.Errorf("transaction status = %s, want completed", txn.Status)
		}

		passenger, _ := env.users.GetByID(ctx, env.passenger.ID)
		if passenger.RidesTaken != 1 {
			t.Errorf("rides taken = %d, want 1", passenger.RidesTaken)
		}
	})

	t.Run("second settlement path loses", func(t *testing.T) {
		_, err := env.bookingService.SettlePayment(ctx, booking.ID, env.rider.ID)
		assertAPIError(t, err, "already_settled")

		passenger, _ := env.users.GetByID(ctx, env.passenger.ID)
		if passenger.RidesTaken != 1 {
			t.Errorf("rides taken = %d, want 1 (loser must not bump stats)", passenger.RidesTaken)
		}
	})
}

func TestRideCompletesWhenLastBookingSettles(t *testing.T) {
	env := newTestEnv(t)
	ride := env.createRide(t, 4, true)
	ctx := context.Background()

	second := &models.User{Name: "Second", Phone: "9800000020", Gender: "male"}
	env.users.Create(ctx, second)

	b1, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, env.passenger.ID, 1))
	if err != nil {
		t.Fatalf("Create() b1 error = %v", err)
	}
	b2, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, second.ID, 2))
	if err != nil {
		t.Fatalf("Create() b2 error = %v", err)
	}

	if err := env.rideService.StartRide(ctx, ride.ID, env.rider.ID); err != nil {
		t.Fatalf("StartRide() error = %v", err)
	}

	settle := func(id string) {
		t.Helper()
		stored, _ := env.bookings.GetByID(ctx, id)
		updated, err := env.bookingService.VerifyPickup(ctx, id, env.rider.ID, *stored.PickupOTP)
		if err != nil {
			t.Fatalf("VerifyPickup(%s) error = %v", id, err)
		}
		if _, err := env.bookingService.VerifyDropoff(ctx, id, env.rider.ID, *updated.DropoffOTP); err != nil {
			t.Fatalf("VerifyDropoff(%s) error = %v", id, err)
		}
		if _, err := env.bookingService.SettlePayment(ctx, id, env.rider.ID); err != nil {
			t.Fatalf("SettlePayment(%s) error = %v", id, err)
		}
	}

	settle(b1.ID)

	rideStored, _ := env.rides.GetByID(ctx, ride.ID)
	if rideStored.Status != models.RideStatusInProgress {
		t.Fatalf("ride status = %s, want in_progress while a booking is unfinished", rideStored.Status)
	}

	settle(b2.ID)

	rideStored, _ = env.rides.GetByID(ctx, ride.ID)
	if rideStored.Status != models.RideStatusCompleted {
		t.Fatalf("ride status = %s, want completed", rideStored.Status)
	}
	if rideStored.Earnings != 300 { // 100 + 200 ride fares, commission excluded
		t.Errorf("earnings = %v, want 300", rideStored.Earnings)
	}

	rider, _ := env.users.GetByID(ctx, env.rider.ID)
	if rider.RidesOffered != 1 {
		t.Errorf("rides offered = %d, want exactly 1", rider.RidesOffered)
	}

	if got := env.sink.eventsOfType(notify.EventRideCompleted); len(got) != 1 {
		t.Errorf("ride.completed events = %d, want 1", len(got))
	}
}

func TestRideCompletionCountsRejectedAndCancelled(t *testing.T) {
	env := newTestEnv(t)
	ride := env.createRide(t, 4, false)
	ctx := context.Background()

	second := &models.User{Name: "Second", Phone: "9800000021", Gender: "male"}
	env.users.Create(ctx, second)

	b1, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, env.passenger.ID, 1))
	if err != nil {
		t.Fatalf("Create() b1 error = %v", err)
	}
	b2, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, second.ID, 1))
	if err != nil {
		t.Fatalf("Create() b2 error = %v", err)
	}

	if err := env.bookingService.Accept(ctx, b1.ID, env.rider.ID, ""); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if err := env.bookingService.Reject(ctx, b2.ID, env.rider.ID, "full"); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}

	if err := env.rideService.StartRide(ctx, ride.ID, env.rider.ID); err != nil {
		t.Fatalf("StartRide() error = %v", err)
	}

	stored, _ := env.bookings.GetByID(ctx, b1.ID)
	updated, err := env.bookingService.VerifyPickup(ctx, b1.ID, env.rider.ID, *stored.PickupOTP)
	if err != nil {
		t.Fatalf("VerifyPickup() error = %v", err)
	}
	if _, err := env.bookingService.VerifyDropoff(ctx, b1.ID, env.rider.ID, *updated.DropoffOTP); err != nil {
		t.Fatalf("VerifyDropoff() error = %v", err)
	}
	if _, err := env.bookingService.SettlePayment(ctx, b1.ID, env.passenger.ID); err != nil {
		t.Fatalf("SettlePayment() error = %v", err)
	}

	// The rejected booking does not block completion, and contributes nothing
	rideStored, _ := env.rides.GetByID(ctx, ride.ID)
	if rideStored.Status != models.RideStatusCompleted {
		t.Fatalf("ride status = %s, want completed", rideStored.Status)
	}
	if rideStored.Earnings != 100 {
		t.Errorf("earnings = %v, want 100", rideStored.Earnings)
	}
}

func TestCancelLastBookingCompletesRide(t *testing.T) {
	env := newTestEnv(t)
	ride := env.createRide(t, 4, false)
	ctx := context.Background()

	second := &models.User{Name: "Second", Phone: "9800000030", Gender: "male"}
	env.users.Create(ctx, second)

	b1, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, env.passenger.ID, 1))
	if err != nil {
		t.Fatalf("Create() b1 error = %v", err)
	}
	// b2 never gets a decision and rides out the start still PENDING
	b2, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, second.ID, 1))
	if err != nil {
		t.Fatalf("Create() b2 error = %v", err)
	}

	if err := env.bookingService.Accept(ctx, b1.ID, env.rider.ID, ""); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if err := env.rideService.StartRide(ctx, ride.ID, env.rider.ID); err != nil {
		t.Fatalf("StartRide() error = %v", err)
	}

	stored, _ := env.bookings.GetByID(ctx, b1.ID)
	updated, err := env.bookingService.VerifyPickup(ctx, b1.ID, env.rider.ID, *stored.PickupOTP)
	if err != nil {
		t.Fatalf("VerifyPickup() error = %v", err)
	}
	if _, err := env.bookingService.VerifyDropoff(ctx, b1.ID, env.rider.ID, *updated.DropoffOTP); err != nil {
		t.Fatalf("VerifyDropoff() error = %v", err)
	}
	if _, err := env.bookingService.SettlePayment(ctx, b1.ID, env.passenger.ID); err != nil {
		t.Fatalf("SettlePayment() error = %v", err)
	}

	rideStored, _ := env.rides.GetByID(ctx, ride.ID)
	if rideStored.Status != models.RideStatusInProgress {
		t.Fatalf("ride status = %s, want in_progress while the stale booking stands", rideStored.Status)
	}

	// The stale booking's cancellation is the last terminal event
	if err := env.bookingService.Cancel(ctx, b2.ID, second.ID, "missed the ride"); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	rideStored, _ = env.rides.GetByID(ctx, ride.ID)
	if rideStored.Status != models.RideStatusCompleted {
		t.Fatalf("ride status = %s, want completed after the last booking terminalizes", rideStored.Status)
	}
	if rideStored.Earnings != 100 {
		t.Errorf("earnings = %v, want 100 (cancelled booking contributes nothing)", rideStored.Earnings)
	}

	rider, _ := env.users.GetByID(ctx, env.rider.ID)
	if rider.RidesOffered != 1 {
		t.Errorf("rides offered = %d, want 1", rider.RidesOffered)
	}

	if got := env.sink.eventsOfType(notify.EventRideCompleted); len(got) != 1 {
		t.Errorf("ride.completed events = %d, want 1", len(got))
	}
}

func TestCancelRideCascades(t *testing.T) {
	env := newTestEnv(t)
	ride := env.createRide(t, 4, false)
	ctx := context.Background()

	second := &models.User{Name: "Second", Phone: "9800000022", Gender: "male"}
	env.users.Create(ctx, second)

	b1, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, env.passenger.ID, 1))
	if err != nil {
		t.Fatalf("Create() b1 error = %v", err)
	}
	b2, _, err := env.bookingService.Create(ctx, env.bookingRequest(ride.ID, second.ID, 2))
	if err != nil {
		t.Fatalf("Create() b2 error = %v", err)
	}
	if err := env.bookingService.Accept(ctx, b1.ID, env.rider.ID, ""); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	if err := env.rideService.CancelRide(ctx, ride.ID, env.rider.ID, "vehicle breakdown"); err != nil {
		t.Fatalf("CancelRide() error = %v", err)
	}

	rideStored, _ := env.rides.GetByID(ctx, ride.ID)
	if rideStored.Status != models.RideStatusCancelled {
		t.Errorf("ride status = %s, want cancelled", rideStored.Status)
	}
	if rideStored.AvailableSeats != 4 {
		t.Errorf("available seats = %d, want 4 after cascade", rideStored.AvailableSeats)
	}

	for _, id := range []string{b1.ID, b2.ID} {
		stored, _ := env.bookings.GetByID(ctx, id)
		if stored.Status != models.BookingStatusCancelled {
			t.Errorf("booking %s status = %s, want cancelled", id, stored.Status)
		}
	}

	if got := env.sink.eventsOfType(notify.EventBookingCancelled); len(got) != 2 {
		t.Errorf("booking.cancelled events = %d, want 2", len(got))
	}
	if got := env.sink.eventsOfType(notify.EventRideCancelled); len(got) != 1 {
		t.Errorf("ride.cancelled events = %d, want 1", len(got))
	}
}

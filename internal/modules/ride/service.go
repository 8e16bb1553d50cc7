// README: Ride service implements the lifecycle state machine, assignment and persistence.
package ride

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ridebook/internal/geo"
	"ridebook/internal/modules/driver"
	"ridebook/internal/modules/notify"
	"ridebook/internal/modules/otp"
	"ridebook/internal/modules/pricing"
	"ridebook/internal/modules/user"
	"ridebook/internal/types"
)

var (
	ErrNotFound        = errors.New("ride not found")
	ErrForbidden       = errors.New("not allowed to act on this ride")
	ErrBlocked         = fmt.Errorf("%w: account blocked due to excessive cancellations", ErrForbidden)
	ErrInvalidState    = errors.New("invalid state transition")
	ErrInvalidOTP      = errors.New("invalid otp")
	ErrWindowExpired   = errors.New("cancellation window expired")
	ErrPaymentRequired = errors.New("payment not completed yet")
	ErrBadRequest      = errors.New("bad request")
	ErrConflict        = errors.New("ride state conflict")
	ErrDriverBusy      = fmt.Errorf("%w: driver already holds an active ride", ErrConflict)
)

// maxAssignAttempts bounds how often one assignment retries after losing its driver to another ride.
const maxAssignAttempts = 3

// errUnchanged aborts a mutation without writing; the caller still gets the ride.
var errUnchanged = errors.New("unchanged")

type Store interface {
	Create(ctx context.Context, r *Ride) error
	Get(ctx context.Context, id types.ID) (*Ride, error)
	// Update writes r if the stored version still equals expectedVersion and bumps r.Version.
	// A lost race returns ErrConflict.
	Update(ctx context.Context, r *Ride, expectedVersion int) error
	// FindByDriver returns the most recent ride of driverID in one of statuses.
	FindByDriver(ctx context.Context, driverID types.ID, statuses ...Status) (*Ride, error)
	ListUnassigned(ctx context.Context, limit int) ([]*Ride, error)
	// BusyDrivers lists drivers holding a non-terminal ride.
	BusyDrivers(ctx context.Context) ([]types.ID, error)
	// CancelWithPenalty stores r like Update and records the client's cancellation
	// in the same transaction.
	CancelWithPenalty(ctx context.Context, r *Ride, expectedVersion int, at time.Time) (*user.User, error)
}

type Pricer interface {
	Estimate(ctx context.Context, req pricing.PricingRequest) (pricing.FareBreakdown, error)
}

type DriverFinder interface {
	FindNearest(ctx context.Context, q driver.NearestQuery) (*driver.Candidate, error)
}

type Users interface {
	Get(ctx context.Context, id types.ID) (*user.User, error)
}

// DistanceEstimator gives a road distance when the client did not send one.
type DistanceEstimator interface {
	DistanceKm(ctx context.Context, from, to types.Point) (float64, error)
}

type Service struct {
	store    Store
	pricer   Pricer
	drivers  DriverFinder
	users    Users
	notifier notify.Notifier
	distance DistanceEstimator
	log      *zap.Logger
	now      func() time.Time

	locks *keyedMutex
}

func NewService(store Store, pricer Pricer, drivers DriverFinder, users Users, notifier notify.Notifier, log *zap.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:    store,
		pricer:   pricer,
		drivers:  drivers,
		users:    users,
		notifier: notifier,
		log:      log,
		now:      time.Now,
		locks:    newKeyedMutex(),
	}
}

func (s *Service) WithDistanceEstimator(d DistanceEstimator) *Service {
	s.distance = d
	return s
}

type CreateCommand struct {
	ClientID        types.ID
	BookingType     pricing.BookingType
	BookingDuration float64
	Pickup          types.Place
	Drop            types.Place
	RideType        pricing.RideType
	DistanceKm      float64
	PaymentMode     PaymentMode
}

type DriverAction struct {
	RideID   types.ID
	DriverID types.ID
}

type VerifyOTPCommand struct {
	RideID   types.ID
	DriverID types.ID
	OTP      string
}

type CancelCommand struct {
	RideID   types.ID
	ClientID types.ID
}

// Create persists a REQUESTED ride and tries to assign a driver right away.
// It reports whether a driver was assigned.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Ride, bool, error) {
	if err := validateCreate(cmd); err != nil {
		return nil, false, err
	}
	u, err := s.users.Get(ctx, cmd.ClientID)
	if errors.Is(err, user.ErrNotFound) {
		return nil, false, ErrForbidden
	}
	if err != nil {
		return nil, false, err
	}
	now := s.now()
	if u.Role != types.RoleClient {
		return nil, false, ErrForbidden
	}
	if u.Blocked(now) {
		return nil, false, ErrBlocked
	}

	r := &Ride{
		ID:              types.ID(uuid.NewString()),
		ClientID:        cmd.ClientID,
		BookingType:     cmd.BookingType,
		BookingDuration: cmd.BookingDuration,
		Pickup:          cmd.Pickup,
		Drop:            cmd.Drop,
		RideType:        cmd.RideType,
		DistanceKm:      s.resolveDistance(ctx, cmd),
		PaymentMode:     cmd.PaymentMode,
		PaymentStatus:   PaymentUnpaid,
		Status:          StatusRequested,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	fare, err := s.pricer.Estimate(ctx, r.pricingRequest())
	if errors.Is(err, pricing.ErrBadRequest) {
		return nil, false, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if err != nil {
		return nil, false, fmt.Errorf("price ride: %w", err)
	}
	r.Fare = fare
	if r.OTP, err = otp.GenerateNumericCode(PickupOTPLength); err != nil {
		return nil, false, fmt.Errorf("generate pickup otp: %w", err)
	}

	if err := s.store.Create(ctx, r); err != nil {
		return nil, false, err
	}
	s.log.Info("ride requested",
		zap.String("ride_id", string(r.ID)),
		zap.String("client_id", string(r.ClientID)),
		zap.Int64("total_fare", r.Fare.TotalFare))

	assigned, err := s.AssignDriver(ctx, r.ID)
	if err != nil {
		s.log.Warn("assignment failed, ride left for retry", zap.String("ride_id", string(r.ID)), zap.Error(err))
		return r, false, nil
	}
	if assigned == nil {
		return r, false, nil
	}
	return assigned, true, nil
}

func validateCreate(cmd CreateCommand) error {
	if cmd.ClientID == "" {
		return fmt.Errorf("%w: client required", ErrBadRequest)
	}
	if cmd.PaymentMode != PayNow && cmd.PaymentMode != PayAfterRide {
		return fmt.Errorf("%w: paymentMode must be pay_now or pay_after_ride", ErrBadRequest)
	}
	if !geo.ValidPoint(cmd.Pickup.Point) {
		return fmt.Errorf("%w: pickup location required", ErrBadRequest)
	}
	if cmd.BookingType == pricing.BookingDistanceBased && !geo.ValidPoint(cmd.Drop.Point) {
		return fmt.Errorf("%w: drop location required", ErrBadRequest)
	}
	if cmd.DistanceKm < 0 || cmd.BookingDuration < 0 {
		return fmt.Errorf("%w: negative distance or duration", ErrBadRequest)
	}
	return nil
}

func (s *Service) resolveDistance(ctx context.Context, cmd CreateCommand) float64 {
	if cmd.DistanceKm > 0 || cmd.BookingType != pricing.BookingDistanceBased {
		return cmd.DistanceKm
	}
	if s.distance != nil {
		km, err := s.distance.DistanceKm(ctx, cmd.Pickup.Point, cmd.Drop.Point)
		if err == nil && km > 0 {
			return km
		}
		s.log.Warn("route distance unavailable, using straight line", zap.Error(err))
	}
	return geo.HaversineKm(cmd.Pickup.Point, cmd.Drop.Point)
}

// AssignDriver binds the nearest free online driver to a REQUESTED ride without one.
// It returns nil, nil when no driver is available; the ride is then left untouched.
// Rides are assigned concurrently; the store refuses a driver who already holds a
// live ride, and the next nearest driver is tried instead.
func (s *Service) AssignDriver(ctx context.Context, rideID types.ID) (*Ride, error) {
	busy, err := s.store.BusyDrivers(ctx)
	if err != nil {
		return nil, err
	}
	exclude := make(map[types.ID]bool, len(busy))
	for _, id := range busy {
		exclude[id] = true
	}

	for attempt := 0; attempt < maxAssignAttempts; attempt++ {
		var picked types.ID
		r, err := s.mutate(ctx, rideID, func(r *Ride, now time.Time) error {
			if r.Status != StatusRequested || r.DriverID != nil {
				return ErrInvalidState
			}
			c, err := s.drivers.FindNearest(ctx, driver.NearestQuery{Pickup: r.Pickup.Point, Exclude: exclude})
			if err != nil {
				return err
			}
			if c == nil {
				return errUnchanged
			}
			picked = c.DriverID
			expires := now.Add(RequestTTL)
			r.DriverID = &picked
			r.AssignedAt = &now
			r.RequestExpiresAt = &expires
			return nil
		})
		if errors.Is(err, ErrDriverBusy) {
			s.log.Debug("driver taken by another ride, retrying",
				zap.String("ride_id", string(rideID)),
				zap.String("driver_id", string(picked)))
			exclude[picked] = true
			continue
		}
		if err != nil || picked == "" {
			return nil, err
		}
		s.announceAssignment(ctx, r)
		return r, nil
	}
	return nil, nil
}

func (s *Service) announceAssignment(ctx context.Context, r *Ride) {
	s.log.Info("driver assigned", zap.String("ride_id", string(r.ID)), zap.String("driver_id", string(*r.DriverID)))
	s.publish(ctx, notify.DriverChannel(*r.DriverID), notify.Event{
		Name: notify.EventRideRequest,
		Data: notify.RideRequestPayload{
			RideID:    r.ID,
			Pickup:    r.Pickup,
			Drop:      r.Drop,
			TotalFare: r.Fare.TotalFare,
			ExpiresAt: r.RequestExpiresAt.Unix(),
		},
	})
}

func (s *Service) AcceptRide(ctx context.Context, cmd DriverAction) (*Ride, error) {
	r, err := s.mutate(ctx, cmd.RideID, func(r *Ride, now time.Time) error {
		if !r.AssignedTo(cmd.DriverID) {
			return ErrForbidden
		}
		if !CanTransition(r.Status, StatusAccepted) {
			return ErrInvalidState
		}
		r.Status = StatusAccepted
		r.AcceptedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishStatus(ctx, r)
	return r, nil
}

func (s *Service) RejectRide(ctx context.Context, cmd DriverAction) (*Ride, error) {
	r, err := s.mutate(ctx, cmd.RideID, func(r *Ride, now time.Time) error {
		if !r.AssignedTo(cmd.DriverID) {
			return ErrForbidden
		}
		if !CanTransition(r.Status, StatusCancelledByDriver) {
			return ErrInvalidState
		}
		r.Status = StatusCancelledByDriver
		r.CancelledAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishStatus(ctx, r)
	return r, nil
}

func (s *Service) MarkArrived(ctx context.Context, cmd DriverAction) (*Ride, error) {
	r, err := s.mutate(ctx, cmd.RideID, func(r *Ride, now time.Time) error {
		if !r.AssignedTo(cmd.DriverID) {
			return ErrForbidden
		}
		if !CanTransition(r.Status, StatusDriverArrived) {
			return ErrInvalidState
		}
		r.Status = StatusDriverArrived
		r.ArrivedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishStatus(ctx, r)
	return r, nil
}

// VerifyOTP starts the ride once the client's pickup code matches. Waiting time since
// arrival is billed by re-pricing the ride at this point.
func (s *Service) VerifyOTP(ctx context.Context, cmd VerifyOTPCommand) (*Ride, error) {
	r, err := s.mutate(ctx, cmd.RideID, func(r *Ride, now time.Time) error {
		if !r.AssignedTo(cmd.DriverID) {
			return ErrForbidden
		}
		if !CanTransition(r.Status, StatusOnRide) {
			return ErrInvalidState
		}
		if r.OTP != cmd.OTP {
			return ErrInvalidOTP
		}
		if r.ArrivedAt != nil && now.After(*r.ArrivedAt) {
			r.WaitingTime = int(now.Sub(*r.ArrivedAt) / time.Minute)
		}
		if !r.FinalFareLocked {
			fare, err := s.pricer.Estimate(ctx, r.pricingRequest())
			if err != nil {
				return fmt.Errorf("re-price ride: %w", err)
			}
			r.Fare = fare
		}
		r.OTPVerified = true
		r.Status = StatusOnRide
		r.StartedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishStatus(ctx, r)
	return r, nil
}

// CancelByClient cancels within CancellationWindow of creation and charges the
// client's daily cancellation count. The ride and the count are stored together:
// if either fails, neither is written and no event goes out.
func (s *Service) CancelByClient(ctx context.Context, cmd CancelCommand) (*Ride, error) {
	var u *user.User
	persist := func(ctx context.Context, r *Ride, expected int) error {
		var err error
		u, err = s.store.CancelWithPenalty(ctx, r, expected, *r.CancelledAt)
		return err
	}
	r, err := s.mutateWith(ctx, cmd.RideID, func(r *Ride, now time.Time) error {
		if r.ClientID != cmd.ClientID {
			return ErrForbidden
		}
		if !CanTransition(r.Status, StatusCancelledByClient) {
			return ErrInvalidState
		}
		if now.Sub(r.CreatedAt) > CancellationWindow {
			return ErrWindowExpired
		}
		r.Status = StatusCancelledByClient
		r.CancelledAt = &now
		return nil
	}, persist)
	if err != nil {
		return nil, err
	}
	s.publishStatus(ctx, r)

	if u != nil && u.BlockedUntil != nil && u.Blocked(*r.CancelledAt) {
		s.log.Info("client blocked",
			zap.String("client_id", string(u.ID)),
			zap.Int("cancel_count_today", u.CancelCountToday),
			zap.Time("blocked_until", *u.BlockedUntil))
	}
	return r, nil
}

// MarkPaymentReceived is orthogonal to status; repeating it is a no-op.
func (s *Service) MarkPaymentReceived(ctx context.Context, cmd DriverAction) (*Ride, error) {
	changed := false
	r, err := s.mutate(ctx, cmd.RideID, func(r *Ride, now time.Time) error {
		if !r.AssignedTo(cmd.DriverID) {
			return ErrForbidden
		}
		if r.Status.Terminal() && r.Status != StatusCompleted {
			return ErrInvalidState
		}
		if r.PaymentStatus == PaymentPaid {
			return errUnchanged
		}
		r.PaymentStatus = PaymentPaid
		r.PaymentReceivedAt = &now
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.publish(ctx, notify.RideChannel(r.ID), notify.PaymentReceived())
	}
	return r, nil
}

func (s *Service) Complete(ctx context.Context, cmd DriverAction) (*Ride, error) {
	r, err := s.mutate(ctx, cmd.RideID, func(r *Ride, now time.Time) error {
		if !r.AssignedTo(cmd.DriverID) {
			return ErrForbidden
		}
		if r.PaymentStatus != PaymentPaid {
			return ErrPaymentRequired
		}
		if !CanTransition(r.Status, StatusCompleted) {
			return ErrInvalidState
		}
		r.Status = StatusCompleted
		r.CompletedAt = &now
		r.FinalFareLocked = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishStatus(ctx, r)
	return r, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Ride, error) {
	return s.store.Get(ctx, id)
}

// GetForActor returns the ride as seen by its client or its driver.
func (s *Service) GetForActor(ctx context.Context, id types.ID, who types.Identity) (*Ride, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case who.UserID == r.ClientID:
		return r, nil
	case r.AssignedTo(who.UserID):
		v := r.ForDriver()
		return &v, nil
	}
	return nil, ErrForbidden
}

// CanJoinRide lets the client and the assigned driver into the ride's channel.
func (s *Service) CanJoinRide(ctx context.Context, rideID types.ID, who types.Identity) (bool, error) {
	_, err := s.GetForActor(ctx, rideID, who)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) {
		return false, nil
	}
	return err == nil, err
}

// ActiveForDriver is the driver's ride at pickup or in progress.
func (s *Service) ActiveForDriver(ctx context.Context, driverID types.ID) (*Ride, error) {
	r, err := s.store.FindByDriver(ctx, driverID, StatusDriverArrived, StatusOnRide)
	if err != nil {
		return nil, err
	}
	v := r.ForDriver()
	return &v, nil
}

// PendingRequest is the ride offered to the driver and not yet answered. An offer
// past RequestExpiresAt is still returned; the driver keeps it until they accept or reject.
func (s *Service) PendingRequest(ctx context.Context, driverID types.ID) (*Ride, error) {
	r, err := s.store.FindByDriver(ctx, driverID, StatusRequested)
	if err != nil {
		return nil, err
	}
	v := r.ForDriver()
	return &v, nil
}

func (s *Service) ListUnassigned(ctx context.Context, limit int) ([]*Ride, error) {
	return s.store.ListUnassigned(ctx, limit)
}

// mutate runs fn on the current ride under the ride's lock and persists the result
// with a version check. Nothing is written when fn fails.
func (s *Service) mutate(ctx context.Context, id types.ID, fn func(r *Ride, now time.Time) error) (*Ride, error) {
	return s.mutateWith(ctx, id, fn, s.store.Update)
}

func (s *Service) mutateWith(
	ctx context.Context,
	id types.ID,
	fn func(r *Ride, now time.Time) error,
	persist func(ctx context.Context, r *Ride, expectedVersion int) error,
) (*Ride, error) {
	unlock := s.locks.Lock(string(id))
	defer unlock()

	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	expected := r.Version
	now := s.now()
	if err := fn(r, now); err != nil {
		if errors.Is(err, errUnchanged) {
			return r, nil
		}
		return nil, err
	}
	r.UpdatedAt = now
	if err := persist(ctx, r, expected); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) publishStatus(ctx context.Context, r *Ride) {
	s.publish(ctx, notify.RideChannel(r.ID), notify.StatusUpdate(string(r.Status)))
}

// publish runs after the transition is stored. Delivery is at-most-once, so a
// failure is logged and the transition stands.
func (s *Service) publish(ctx context.Context, channel string, ev notify.Event) {
	if err := s.notifier.Publish(ctx, channel, ev); err != nil {
		s.log.Error("notify failed",
			zap.String("channel", channel),
			zap.String("event", ev.Name),
			zap.Error(err))
	}
}

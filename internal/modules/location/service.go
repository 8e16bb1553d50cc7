// README: Location service handles driver position reports for a ride.
package location

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ridebook/internal/geo"
	"ridebook/internal/modules/driver"
	"ridebook/internal/modules/notify"
	"ridebook/internal/modules/ride"
	"ridebook/internal/types"
)

var (
	ErrBadRequest   = errors.New("invalid location report")
	ErrNotFound     = errors.New("ride not found")
	ErrForbidden    = errors.New("ride is not assigned to this driver")
	ErrInvalidState = errors.New("ride is already finished")
)

type RideReader interface {
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
}

type DriverLocator interface {
	UpdateLocation(ctx context.Context, driverID types.ID, p types.Point) error
}

type Store interface {
	AppendSnapshot(ctx context.Context, snap *Snapshot) error
	ListForRide(ctx context.Context, rideID types.ID, limit int) ([]Snapshot, error)
}

// Mirror copies the latest driver position to an external live view.
type Mirror interface {
	PutDriver(ctx context.Context, driverID types.ID, p types.Point, at time.Time) error
}

type Service struct {
	rides    RideReader
	drivers  DriverLocator
	store    Store
	notifier notify.Notifier
	mirror   Mirror
	log      *zap.Logger
	now      func() time.Time
}

func NewService(rides RideReader, drivers DriverLocator, store Store, notifier notify.Notifier, log *zap.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		rides:    rides,
		drivers:  drivers,
		store:    store,
		notifier: notifier,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithMirror(m Mirror) *Service {
	s.mirror = m
	return s
}

// Report records a position from the ride's driver and broadcasts it on the ride channel.
func (s *Service) Report(ctx context.Context, rep Report) (*Snapshot, error) {
	if rep.RideID == "" || rep.DriverID == "" || !geo.ValidPoint(rep.Position) {
		return nil, ErrBadRequest
	}
	r, err := s.rides.Get(ctx, rep.RideID)
	if errors.Is(err, ride.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !r.AssignedTo(rep.DriverID) {
		return nil, ErrForbidden
	}
	if r.Status.Terminal() {
		return nil, ErrInvalidState
	}

	// An offline driver still finishing a ride keeps streaming to the client.
	if err := s.drivers.UpdateLocation(ctx, rep.DriverID, rep.Position); err != nil {
		if !errors.Is(err, driver.ErrOffline) && !errors.Is(err, driver.ErrNotFound) {
			return nil, fmt.Errorf("update driver location: %w", err)
		}
		s.log.Debug("location report from offline driver", zap.String("driver_id", string(rep.DriverID)))
	}

	snap := &Snapshot{
		DriverID:   rep.DriverID,
		RideID:     rep.RideID,
		Position:   rep.Position,
		RecordedAt: s.now(),
	}
	if err := s.store.AppendSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("append snapshot: %w", err)
	}

	ev := notify.LocationUpdate(rep.RideID, rep.Position)
	if err := s.notifier.Publish(ctx, notify.RideChannel(rep.RideID), ev); err != nil {
		s.log.Warn("publish location failed", zap.String("ride_id", string(rep.RideID)), zap.Error(err))
	}
	if s.mirror != nil {
		if err := s.mirror.PutDriver(ctx, rep.DriverID, rep.Position, snap.RecordedAt); err != nil {
			s.log.Warn("mirror location failed", zap.String("driver_id", string(rep.DriverID)), zap.Error(err))
		}
	}
	return snap, nil
}

// History returns the recorded path of a ride to its client or driver.
func (s *Service) History(ctx context.Context, rideID types.ID, who types.Identity) ([]Snapshot, error) {
	r, err := s.rides.Get(ctx, rideID)
	if errors.Is(err, ride.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if r.ClientID != who.UserID && !r.AssignedTo(who.UserID) {
		return nil, ErrForbidden
	}
	return s.store.ListForRide(ctx, rideID, maxHistory)
}

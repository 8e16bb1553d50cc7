// README: Matching service re-attempts driver assignment for rides still waiting for one.
package matching

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"ridebook/internal/config"
	"ridebook/internal/modules/ride"
	"ridebook/internal/types"
)

// RideAssigner is the part of the ride service the sweep drives.
type RideAssigner interface {
	ListUnassigned(ctx context.Context, limit int) ([]*ride.Ride, error)
	AssignDriver(ctx context.Context, rideID types.ID) (*ride.Ride, error)
}

type Service struct {
	rides RideAssigner
	cfg   config.MatchingConfig
	log   *zap.Logger
}

func NewService(rides RideAssigner, cfg config.MatchingConfig, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{rides: rides, cfg: cfg, log: log}
}

// Sweep tries to assign a driver to every REQUESTED ride that has none.
// It never cancels a ride or takes it away from an assigned driver.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	rides, err := s.rides.ListUnassigned(ctx, sweepBatch)
	if err != nil {
		return res, err
	}
	for _, r := range rides {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Scanned++
		assigned, err := s.rides.AssignDriver(ctx, r.ID)
		switch {
		case errors.Is(err, ride.ErrInvalidState), errors.Is(err, ride.ErrConflict):
			// Someone else got there first.
		case err != nil:
			res.Failed++
			s.log.Warn("assignment retry failed", zap.String("ride_id", string(r.ID)), zap.Error(err))
		case assigned != nil && assigned.DriverID != nil:
			res.Assigned++
			s.log.Info("ride assigned by sweep",
				zap.String("ride_id", string(r.ID)),
				zap.String("driver_id", string(*assigned.DriverID)))
		}
	}
	return res, nil
}

// RunScheduler sweeps on every tick until ctx is cancelled.
func (s *Service) RunScheduler(ctx context.Context) {
	tick := time.Duration(s.cfg.TickSeconds) * time.Second
	if tick <= 0 {
		tick = defaultTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("assignment sweep", zap.Error(err))
			}
		}
	}
}

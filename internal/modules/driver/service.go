// README: Driver availability registry: online/offline toggling (KYC-gated) and nearest-driver lookup.
package driver

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"ridebook/internal/geo"
	"ridebook/internal/types"
)

var (
	ErrNotFound   = errors.New("driver status not found")
	ErrForbidden  = errors.New("kyc approval required to go online")
	ErrBadRequest = errors.New("invalid driver status request")
	ErrOffline    = errors.New("driver is offline")
)

type Store interface {
	Upsert(ctx context.Context, st *Status) error
	Get(ctx context.Context, driverID types.ID) (*Status, error)
	ListOnline(ctx context.Context) ([]Status, error)
}

// KYCChecker is the trust-verification collaborator.
type KYCChecker interface {
	IsApproved(ctx context.Context, driverID types.ID) (bool, error)
}

// GeoIndex is an optional spatial index over online drivers.
type GeoIndex interface {
	AddDriver(ctx context.Context, id types.ID, p types.Point) error
	RemoveDriver(ctx context.Context, id types.ID) error
	NearbyDrivers(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error)
}

type Service struct {
	store    Store
	kyc      KYCChecker
	geo      GeoIndex
	radiusKm float64
	log      *zap.Logger
	now      func() time.Time
}

func NewService(store Store, kyc KYCChecker, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, kyc: kyc, log: log, now: time.Now}
}

// WithGeoIndex makes FindNearest draw candidates from idx within radiusKm of the pickup.
func (s *Service) WithGeoIndex(idx GeoIndex, radiusKm float64) *Service {
	s.geo = idx
	s.radiusKm = radiusKm
	return s
}

func (s *Service) SetStatus(ctx context.Context, cmd SetStatusCommand) (*Status, error) {
	if cmd.DriverID == "" {
		return nil, ErrBadRequest
	}
	if cmd.IsOnline {
		if cmd.Location != nil && !geo.ValidPoint(*cmd.Location) {
			return nil, ErrBadRequest
		}
		ok, err := s.kyc.IsApproved(ctx, cmd.DriverID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrForbidden
		}
	}

	now := s.now()
	st := &Status{
		DriverID:  cmd.DriverID,
		IsOnline:  cmd.IsOnline,
		LastSeen:  now,
		UpdatedAt: now,
	}
	if cmd.IsOnline && cmd.Location != nil {
		loc := *cmd.Location
		st.Location = &loc
	}
	if err := s.store.Upsert(ctx, st); err != nil {
		return nil, err
	}
	s.syncIndex(ctx, st)
	return st, nil
}

// Get returns the driver's availability. A driver who never toggled is offline.
func (s *Service) Get(ctx context.Context, driverID types.ID) (*Status, error) {
	st, err := s.store.Get(ctx, driverID)
	if errors.Is(err, ErrNotFound) {
		return &Status{DriverID: driverID}, nil
	}
	return st, err
}

// UpdateLocation moves an online driver. Offline drivers keep a nil location.
func (s *Service) UpdateLocation(ctx context.Context, driverID types.ID, p types.Point) error {
	if !geo.ValidPoint(p) {
		return ErrBadRequest
	}
	st, err := s.store.Get(ctx, driverID)
	if err != nil {
		return err
	}
	if !st.IsOnline {
		return ErrOffline
	}
	now := s.now()
	st.Location = &p
	st.LastSeen = now
	st.UpdatedAt = now
	if err := s.store.Upsert(ctx, st); err != nil {
		return err
	}
	s.syncIndex(ctx, st)
	return nil
}

// FindNearest returns the closest eligible online driver, or nil when there is none.
// Candidates are ordered by distance and then by driver ID.
func (s *Service) FindNearest(ctx context.Context, q NearestQuery) (*Candidate, error) {
	online, err := s.store.ListOnline(ctx)
	if err != nil {
		return nil, err
	}

	hasPickup := geo.ValidPoint(q.Pickup)
	var allowed map[types.ID]bool
	if s.geo != nil && hasPickup {
		ids, err := s.geo.NearbyDrivers(ctx, q.Pickup, s.radiusKm)
		if err != nil {
			return nil, err
		}
		allowed = make(map[types.ID]bool, len(ids))
		for _, id := range ids {
			allowed[id] = true
		}
	}

	candidates := make([]Candidate, 0, len(online))
	for _, st := range online {
		if !st.IsOnline || st.Location == nil || q.Exclude[st.DriverID] {
			continue
		}
		if allowed != nil && !allowed[st.DriverID] {
			continue
		}
		c := Candidate{DriverID: st.DriverID, Location: *st.Location}
		if hasPickup {
			c.Distance = geo.HaversineKm(q.Pickup, c.Location)
		}
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	geo.SortByDistance(candidates,
		func(c Candidate) float64 { return c.Distance },
		func(c Candidate) string { return string(c.DriverID) },
	)
	best := candidates[0]
	return &best, nil
}

func (s *Service) syncIndex(ctx context.Context, st *Status) {
	if s.geo == nil {
		return
	}
	var err error
	if st.IsOnline && st.Location != nil {
		err = s.geo.AddDriver(ctx, st.DriverID, *st.Location)
	} else {
		err = s.geo.RemoveDriver(ctx, st.DriverID)
	}
	if err != nil {
		s.log.Warn("driver geo index out of sync", zap.String("driver_id", string(st.DriverID)), zap.Error(err))
	}
}

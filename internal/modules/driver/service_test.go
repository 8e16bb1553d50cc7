package driver

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"ridebook/internal/types"
)

// memStore is an in-memory Store for testing.
type memStore struct {
	mu       sync.Mutex
	statuses map[types.ID]Status
}

func newMemStore() *memStore {
	return &memStore{statuses: make(map[types.ID]Status)}
}

func (m *memStore) Upsert(_ context.Context, st *Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *st
	if prev, ok := m.statuses[st.DriverID]; ok {
		cp.CreatedAt = prev.CreatedAt
	}
	m.statuses[st.DriverID] = cp
	return nil
}

func (m *memStore) Get(_ context.Context, id types.ID) (*Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.statuses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &st, nil
}

func (m *memStore) ListOnline(_ context.Context) ([]Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Status
	for _, st := range m.statuses {
		if st.IsOnline && st.Location != nil {
			out = append(out, st)
		}
	}
	// Map order is random; FindNearest must not depend on it.
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID > out[j].DriverID })
	return out, nil
}

type kycStub map[types.ID]bool

func (k kycStub) IsApproved(_ context.Context, id types.ID) (bool, error) {
	return k[id], nil
}

type fakeGeo struct {
	mu      sync.Mutex
	members map[types.ID]types.Point
	nearby  []types.ID
}

func (g *fakeGeo) AddDriver(_ context.Context, id types.ID, p types.Point) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members[id] = p
	return nil
}

func (g *fakeGeo) RemoveDriver(_ context.Context, id types.ID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.members, id)
	return nil
}

func (g *fakeGeo) NearbyDrivers(_ context.Context, _ types.Point, _ float64) ([]types.ID, error) {
	return g.nearby, nil
}

func pt(lat, lng float64) *types.Point { return &types.Point{Lat: lat, Lng: lng} }

func TestSetStatus_OnlineRequiresKYC(t *testing.T) {
	svc := NewService(newMemStore(), kycStub{"d_ok": true}, nil)
	ctx := context.Background()

	if _, err := svc.SetStatus(ctx, SetStatusCommand{DriverID: "d_new", IsOnline: true, Location: pt(28.6, 77.2)}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden without KYC, got %v", err)
	}
	st, err := svc.SetStatus(ctx, SetStatusCommand{DriverID: "d_ok", IsOnline: true, Location: pt(28.6, 77.2)})
	if err != nil {
		t.Fatalf("go online: %v", err)
	}
	if !st.IsOnline || st.Location == nil {
		t.Fatalf("expected online with location, got %+v", st)
	}
}

func TestSetStatus_OfflineNeedsNoKYCAndClearsLocation(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, kycStub{"d1": true}, nil)
	ctx := context.Background()

	if _, err := svc.SetStatus(ctx, SetStatusCommand{DriverID: "d1", IsOnline: true, Location: pt(28.6, 77.2)}); err != nil {
		t.Fatalf("online: %v", err)
	}
	st, err := svc.SetStatus(ctx, SetStatusCommand{DriverID: "d1", IsOnline: false, Location: pt(28.7, 77.3)})
	if err != nil {
		t.Fatalf("offline: %v", err)
	}
	if st.Location != nil {
		t.Fatalf("offline driver must have no location, got %+v", st.Location)
	}
	stored, _ := store.Get(ctx, "d1")
	if stored.IsOnline || stored.Location != nil {
		t.Fatalf("stored status violates offline invariant: %+v", stored)
	}

	// A driver without KYC can still go offline.
	if _, err := svc.SetStatus(ctx, SetStatusCommand{DriverID: "d_nokyc", IsOnline: false}); err != nil {
		t.Fatalf("offline without kyc: %v", err)
	}
}

func TestGet_UnknownDriverIsOffline(t *testing.T) {
	svc := NewService(newMemStore(), kycStub{}, nil)
	st, err := svc.Get(context.Background(), "d_new")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if st.DriverID != "d_new" || st.IsOnline || st.Location != nil {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestSetStatus_InvalidLocation(t *testing.T) {
	svc := NewService(newMemStore(), kycStub{"d1": true}, nil)
	_, err := svc.SetStatus(context.Background(), SetStatusCommand{DriverID: "d1", IsOnline: true, Location: pt(120, 77)})
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
}

func TestFindNearest_PicksClosestDeterministically(t *testing.T) {
	svc := NewService(newMemStore(), kycStub{"d_far": true, "d_near": true, "d_mid": true, "d_off": true}, nil)
	ctx := context.Background()
	pickup := types.Point{Lat: 28.6139, Lng: 77.2090}

	mustOnline(t, svc, "d_far", pt(28.70, 77.30))
	mustOnline(t, svc, "d_near", pt(28.615, 77.210))
	mustOnline(t, svc, "d_mid", pt(28.63, 77.22))
	mustOnline(t, svc, "d_off", pt(28.6139, 77.2090))
	if _, err := svc.SetStatus(ctx, SetStatusCommand{DriverID: "d_off", IsOnline: false}); err != nil {
		t.Fatalf("offline: %v", err)
	}

	for i := 0; i < 5; i++ {
		c, err := svc.FindNearest(ctx, NearestQuery{Pickup: pickup})
		if err != nil {
			t.Fatalf("find nearest: %v", err)
		}
		if c == nil || c.DriverID != "d_near" {
			t.Fatalf("expected d_near, got %+v", c)
		}
	}

	c, _ := svc.FindNearest(ctx, NearestQuery{Pickup: pickup, Exclude: map[types.ID]bool{"d_near": true}})
	if c == nil || c.DriverID != "d_mid" {
		t.Fatalf("expected d_mid when d_near is busy, got %+v", c)
	}
}

func TestFindNearest_TieBreakByID(t *testing.T) {
	svc := NewService(newMemStore(), kycStub{"b": true, "a": true, "c": true}, nil)
	for _, id := range []types.ID{"c", "b", "a"} {
		mustOnline(t, svc, id, pt(28.62, 77.21))
	}
	c, err := svc.FindNearest(context.Background(), NearestQuery{Pickup: types.Point{Lat: 28.6, Lng: 77.2}})
	if err != nil || c == nil {
		t.Fatalf("find nearest: %v %v", c, err)
	}
	if c.DriverID != "a" {
		t.Fatalf("expected tie broken by smallest id, got %s", c.DriverID)
	}

	// Without a pickup every candidate is at distance 0: smallest id wins.
	c, _ = svc.FindNearest(context.Background(), NearestQuery{})
	if c == nil || c.DriverID != "a" {
		t.Fatalf("expected a without pickup, got %+v", c)
	}
}

func TestFindNearest_NoDrivers(t *testing.T) {
	svc := NewService(newMemStore(), kycStub{}, nil)
	c, err := svc.FindNearest(context.Background(), NearestQuery{Pickup: types.Point{Lat: 28.6, Lng: 77.2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != nil {
		t.Fatalf("expected no candidate, got %+v", c)
	}
}

func TestFindNearest_UsesGeoIndexAsFilter(t *testing.T) {
	idx := &fakeGeo{members: make(map[types.ID]types.Point)}
	svc := NewService(newMemStore(), kycStub{"d1": true, "d2": true}, nil).WithGeoIndex(idx, 3)
	mustOnline(t, svc, "d1", pt(28.6140, 77.2091))
	mustOnline(t, svc, "d2", pt(28.70, 77.30))

	if len(idx.members) != 2 {
		t.Fatalf("expected both drivers indexed, got %d", len(idx.members))
	}

	idx.nearby = []types.ID{"d2"}
	c, _ := svc.FindNearest(context.Background(), NearestQuery{Pickup: types.Point{Lat: 28.6139, Lng: 77.2090}})
	if c == nil || c.DriverID != "d2" {
		t.Fatalf("expected only indexed candidate d2, got %+v", c)
	}

	if _, err := svc.SetStatus(context.Background(), SetStatusCommand{DriverID: "d2", IsOnline: false}); err != nil {
		t.Fatalf("offline: %v", err)
	}
	if _, ok := idx.members["d2"]; ok {
		t.Fatal("offline driver should be removed from the geo index")
	}
}

func TestUpdateLocation(t *testing.T) {
	svc := NewService(newMemStore(), kycStub{"d1": true}, nil)
	ctx := context.Background()

	if err := svc.UpdateLocation(ctx, "d1", types.Point{Lat: 28.6, Lng: 77.2}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown driver, got %v", err)
	}
	mustOnline(t, svc, "d1", pt(28.6, 77.2))
	if err := svc.UpdateLocation(ctx, "d1", types.Point{Lat: 28.7, Lng: 77.3}); err != nil {
		t.Fatalf("update: %v", err)
	}
	st, _ := svc.Get(ctx, "d1")
	if st.Location == nil || st.Location.Lat != 28.7 {
		t.Fatalf("location not updated: %+v", st.Location)
	}

	_, _ = svc.SetStatus(ctx, SetStatusCommand{DriverID: "d1", IsOnline: false})
	if err := svc.UpdateLocation(ctx, "d1", types.Point{Lat: 28.8, Lng: 77.4}); !errors.Is(err, ErrOffline) {
		t.Fatalf("expected ErrOffline, got %v", err)
	}
}

func mustOnline(t *testing.T, svc *Service, id types.ID, loc *types.Point) {
	t.Helper()
	if _, err := svc.SetStatus(context.Background(), SetStatusCommand{DriverID: id, IsOnline: true, Location: loc}); err != nil {
		t.Fatalf("online %s: %v", id, err)
	}
}

// README: Matching tests: sweep logic with an in-memory ride service, GEO store against Redis.
package matching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ridebook/internal/config"
	"ridebook/internal/modules/ride"
	"ridebook/internal/testutil"
	"ridebook/internal/types"
)

// mockRideService is an in-memory RideAssigner.
type mockRideService struct {
	mu       sync.Mutex
	open     []*ride.Ride
	drivers  map[types.ID]types.ID // ride -> driver handed out on AssignDriver
	errs     map[types.ID]error
	attempts map[types.ID]int
	listErr  error
}

func newMockRideService(ids ...types.ID) *mockRideService {
	m := &mockRideService{
		drivers:  make(map[types.ID]types.ID),
		errs:     make(map[types.ID]error),
		attempts: make(map[types.ID]int),
	}
	for _, id := range ids {
		m.open = append(m.open, &ride.Ride{ID: id, Status: ride.StatusRequested})
	}
	return m
}

func (m *mockRideService) ListUnassigned(_ context.Context, limit int) ([]*ride.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*ride.Ride
	for _, r := range m.open {
		if r.DriverID == nil && len(out) < limit {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRideService) AssignDriver(_ context.Context, id types.ID) (*ride.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[id]++
	if err := m.errs[id]; err != nil {
		return nil, err
	}
	for _, r := range m.open {
		if r.ID != id {
			continue
		}
		d, ok := m.drivers[id]
		if !ok {
			return nil, nil
		}
		r.DriverID = &d
		cp := *r
		return &cp, nil
	}
	return nil, ride.ErrNotFound
}

func (m *mockRideService) attemptsFor(id types.ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[id]
}

func TestSweep_AssignsWhereDriversAppear(t *testing.T) {
	rides := newMockRideService("r1", "r2", "r3")
	rides.drivers["r1"] = "d1"
	rides.drivers["r3"] = "d3"

	svc := NewService(rides, config.MatchingConfig{TickSeconds: 1}, nil)
	res, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Scanned != 3 || res.Assigned != 2 || res.Failed != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	// Only r2 is still open on the next pass.
	res, _ = svc.Sweep(context.Background())
	if res.Scanned != 1 || res.Assigned != 0 {
		t.Fatalf("second pass %+v", res)
	}
	if rides.attemptsFor("r1") != 1 || rides.attemptsFor("r2") != 2 {
		t.Fatalf("attempts r1=%d r2=%d", rides.attemptsFor("r1"), rides.attemptsFor("r2"))
	}
}

func TestSweep_LostRacesAreNotFailures(t *testing.T) {
	rides := newMockRideService("r1", "r2", "r3")
	rides.errs["r1"] = ride.ErrInvalidState
	rides.errs["r2"] = ride.ErrConflict
	rides.errs["r3"] = errors.New("db down")

	res, err := NewService(rides, config.MatchingConfig{}, nil).Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.Scanned != 3 || res.Failed != 1 || res.Assigned != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSweep_ListError(t *testing.T) {
	rides := newMockRideService()
	rides.listErr = errors.New("boom")
	if _, err := NewService(rides, config.MatchingConfig{}, nil).Sweep(context.Background()); err == nil {
		t.Fatal("expected list error")
	}
}

func TestSweep_BatchLimit(t *testing.T) {
	ids := make([]types.ID, sweepBatch+5)
	for i := range ids {
		ids[i] = types.ID(fmt.Sprintf("r%02d", i))
	}
	rides := newMockRideService(ids...)
	res, _ := NewService(rides, config.MatchingConfig{}, nil).Sweep(context.Background())
	if res.Scanned != sweepBatch {
		t.Fatalf("scanned %d, want %d", res.Scanned, sweepBatch)
	}
}

func TestRunScheduler_StopsOnCancel(t *testing.T) {
	rides := newMockRideService("r1")
	svc := NewService(rides, config.MatchingConfig{TickSeconds: 1}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.RunScheduler(ctx)
		close(done)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for rides.attemptsFor("r1") == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if rides.attemptsFor("r1") == 0 {
		t.Fatal("scheduler never swept")
	}
}

func TestStore_NearbyDrivers(t *testing.T) {
	ctx := context.Background()
	store := NewStore(testutil.NewRedis(t))

	pickup := types.Point{Lat: 28.6315, Lng: 77.2167}
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(store.AddDriver(ctx, "near", types.Point{Lat: 28.6320, Lng: 77.2170}))
	must(store.AddDriver(ctx, "mid", types.Point{Lat: 28.6400, Lng: 77.2200}))
	must(store.AddDriver(ctx, "far", types.Point{Lat: 28.9000, Lng: 77.5000}))

	got, err := store.NearbyDrivers(ctx, pickup, 5)
	if err != nil {
		t.Fatalf("nearby: %v", err)
	}
	if len(got) != 2 || got[0] != "near" || got[1] != "mid" {
		t.Fatalf("nearby = %v", got)
	}

	must(store.RemoveDriver(ctx, "near"))
	got, _ = store.NearbyDrivers(ctx, pickup, 5)
	if len(got) != 1 || got[0] != "mid" {
		t.Fatalf("after remove = %v", got)
	}
}

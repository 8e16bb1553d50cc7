package maps

import (
	"context"
	"errors"
	"testing"

	"googlemaps.github.io/maps"

	"ridebook/internal/types"
)

type stubDirections struct {
	routes []maps.Route
	err    error
	req    *maps.DirectionsRequest
}

func (s *stubDirections) Directions(_ context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error) {
	s.req = r
	return s.routes, nil, s.err
}

func TestDistanceKm(t *testing.T) {
	stub := &stubDirections{routes: []maps.Route{{Legs: []*maps.Leg{
		{Distance: maps.Distance{Meters: 4200}},
		{Distance: maps.Distance{Meters: 800}},
	}}}}
	svc := &RouteService{client: stub}

	km, err := svc.DistanceKm(context.Background(), types.Point{Lat: 28.6315, Lng: 77.2167}, types.Point{Lat: 28.6129, Lng: 77.2295})
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if km != 5 {
		t.Fatalf("km = %v, want 5", km)
	}
	if stub.req.Origin != "28.631500,77.216700" || stub.req.Mode != maps.TravelModeDriving {
		t.Fatalf("request = %+v", stub.req)
	}
}

func TestDistanceKm_Failures(t *testing.T) {
	svc := &RouteService{client: &stubDirections{}}
	if _, err := svc.DistanceKm(context.Background(), types.Point{Lat: 1, Lng: 1}, types.Point{Lat: 2, Lng: 2}); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("empty routes: %v", err)
	}
	svc = &RouteService{client: &stubDirections{err: errors.New("quota")}}
	if _, err := svc.DistanceKm(context.Background(), types.Point{Lat: 1, Lng: 1}, types.Point{Lat: 2, Lng: 2}); err == nil {
		t.Fatal("api error must surface")
	}
}

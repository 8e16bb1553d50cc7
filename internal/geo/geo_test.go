package geo

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"ridebook/internal/types"
)

func TestHaversineKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      types.Point
		wantKm    float64
		tolerance float64
	}{
		{
			name:      "same point",
			a:         types.Point{Lat: 28.6139, Lng: 77.2090},
			b:         types.Point{Lat: 28.6139, Lng: 77.2090},
			wantKm:    0,
			tolerance: 0.001,
		},
		{
			name:      "Connaught Place to India Gate (~2.4km)",
			a:         types.Point{Lat: 28.6315, Lng: 77.2167},
			b:         types.Point{Lat: 28.6129, Lng: 77.2295},
			wantKm:    2.4,
			tolerance: 0.5,
		},
		{
			name:      "New York to Los Angeles (~3944km)",
			a:         types.Point{Lat: 40.7128, Lng: -74.0060},
			b:         types.Point{Lat: 34.0522, Lng: -118.2437},
			wantKm:    3944,
			tolerance: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineKm(tt.a, tt.b)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("HaversineKm() = %f, want %f (±%f)", got, tt.wantKm, tt.tolerance)
			}
		})
	}
}

func TestHaversineKm_Symmetry(t *testing.T) {
	a := types.Point{Lat: 25.0, Lng: 121.0}
	b := types.Point{Lat: 26.0, Lng: 122.0}
	if d1, d2 := HaversineKm(a, b), HaversineKm(b, a); math.Abs(d1-d2) > 0.0001 {
		t.Errorf("haversine is not symmetric: %f vs %f", d1, d2)
	}
}

type item struct {
	id   string
	dist float64
}

func TestSortByDistance(t *testing.T) {
	items := []item{{"c", 5.0}, {"a", 1.0}, {"b", 3.0}}
	SortByDistance(items, func(i item) float64 { return i.dist }, func(i item) string { return i.id })
	if items[0].id != "a" || items[1].id != "b" || items[2].id != "c" {
		t.Errorf("unexpected sort order: %v", items)
	}
}

func TestSortByDistance_TieBreakByKey(t *testing.T) {
	items := []item{{"z", 2.0}, {"m", 2.0}, {"a", 2.0}, {"q", 1.0}}
	SortByDistance(items, func(i item) float64 { return i.dist }, func(i item) string { return i.id })
	want := []string{"q", "a", "m", "z"}
	for i, w := range want {
		if items[i].id != w {
			t.Fatalf("position %d: got %s, want %s (%v)", i, items[i].id, w, items)
		}
	}
}

func TestSortByDistance_EmptyAndSingle(t *testing.T) {
	var empty []item
	SortByDistance(empty, func(i item) float64 { return i.dist }, func(i item) string { return i.id })

	single := []item{{"a", 2.0}}
	SortByDistance(single, func(i item) float64 { return i.dist }, func(i item) string { return i.id })
	if single[0].id != "a" {
		t.Errorf("single element sort failed")
	}
}

func TestSortByDistance_ManyCandidates(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	items := make([]item, 2000)
	for i := range items {
		items[i] = item{id: fmt.Sprintf("d%04d", rng.Intn(500)), dist: float64(rng.Intn(50)) / 10}
	}
	SortByDistance(items, func(i item) float64 { return i.dist }, func(i item) string { return i.id })
	for i := 1; i < len(items); i++ {
		a, b := items[i-1], items[i]
		if a.dist > b.dist || (a.dist == b.dist && a.id > b.id) {
			t.Fatalf("out of order at %d: %v before %v", i, a, b)
		}
	}
}

func TestValidPoint(t *testing.T) {
	cases := []struct {
		p    types.Point
		want bool
	}{
		{types.Point{}, false},
		{types.Point{Lat: 28.6, Lng: 77.2}, true},
		{types.Point{Lat: 91, Lng: 0.1}, false},
		{types.Point{Lat: 10, Lng: -181}, false},
	}
	for _, c := range cases {
		if got := ValidPoint(c.p); got != c.want {
			t.Errorf("ValidPoint(%v) = %v, want %v", c.p, got, c.want)
		}
	}
}

package location

import (
	"context"
	"testing"
	"time"

	"ridebook/internal/testutil"
	"ridebook/internal/types"
)

func TestPGStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	store := NewStore(testutil.NewPool(t, "location_snapshots"))

	base := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		snap := &Snapshot{
			DriverID:   "d1",
			RideID:     "r_loc",
			Position:   types.Point{Lat: 28.6 + float64(i)/100, Lng: 77.2},
			RecordedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.AppendSnapshot(ctx, snap); err != nil {
			t.Fatalf("append: %v", err)
		}
		if snap.ID == 0 {
			t.Fatal("expected generated id")
		}
	}
	if err := store.AppendSnapshot(ctx, &Snapshot{DriverID: "d2", RideID: "r_other", Position: types.Point{Lat: 1, Lng: 1}, RecordedAt: base}); err != nil {
		t.Fatal(err)
	}

	got, err := store.ListForRide(ctx, "r_loc", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || !got[0].RecordedAt.Equal(base) || !got[1].RecordedAt.Equal(base.Add(time.Second)) {
		t.Fatalf("unexpected snapshots %+v", got)
	}
}

// README: Firebase Realtime Database mirror of live driver positions for the mobile apps.
package location

import (
	"context"
	"fmt"
	"time"

	"firebase.google.com/go/v4/db"

	"ridebook/internal/types"
)

// driverLocationsRef is the RTDB node the apps listen on.
const driverLocationsRef = "driver_locations"

// rtdbDriverEntry is one driver entry stored under /driver_locations.
type rtdbDriverEntry struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Status    string  `json:"status"`
	Timestamp int64   `json:"timestamp"`
}

// RefWriter sets a value at an RTDB path.
type RefWriter interface {
	Set(ctx context.Context, path string, v any) error
}

// DBWriter adapts a Firebase RTDB client to RefWriter.
type DBWriter struct {
	Client *db.Client
}

func (w DBWriter) Set(ctx context.Context, path string, v any) error {
	return w.Client.NewRef(path).Set(ctx, v)
}

type RTDBMirror struct {
	w RefWriter
}

func NewRTDBMirror(w RefWriter) *RTDBMirror {
	return &RTDBMirror{w: w}
}

func (m *RTDBMirror) PutDriver(ctx context.Context, driverID types.ID, p types.Point, at time.Time) error {
	entry := rtdbDriverEntry{
		Lat:       p.Lat,
		Lng:       p.Lng,
		Status:    "on_ride",
		Timestamp: at.UnixMilli(),
	}
	path := driverLocationsRef + "/" + string(driverID)
	if err := m.w.Set(ctx, path, entry); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

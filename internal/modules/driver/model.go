// README: Driver availability record and matching candidates.
package driver

import (
	"time"

	"ridebook/internal/types"
)

// Status is the single availability record per driver. Location is nil whenever
// IsOnline is false.
type Status struct {
	DriverID  types.ID
	IsOnline  bool
	Location  *types.Point
	LastSeen  time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type SetStatusCommand struct {
	DriverID types.ID
	IsOnline bool
	Location *types.Point
}

// NearestQuery selects one driver for a pickup. Exclude holds drivers that are
// already busy with a ride.
type NearestQuery struct {
	Pickup  types.Point
	Exclude map[types.ID]bool
}

type Candidate struct {
	DriverID types.ID
	Location types.Point
	Distance float64 // km from the pickup, 0 when no pickup was given
}

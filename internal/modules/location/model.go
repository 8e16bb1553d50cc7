// README: Location snapshots recorded while a driver reports its position on a ride.
package location

import (
	"time"

	"ridebook/internal/types"
)

type Snapshot struct {
	ID         int64       `json:"id"`
	DriverID   types.ID    `json:"driverId"`
	RideID     types.ID    `json:"rideId"`
	Position   types.Point `json:"position"`
	RecordedAt time.Time   `json:"recordedAt"`
}

// Report is one position sent by the driver assigned to RideID.
type Report struct {
	RideID   types.ID
	DriverID types.ID
	Position types.Point
}

const (
	// maxHistory caps how many snapshots one history read returns.
	maxHistory = 500
)

// README: Matching settings for the driver GEO index and the assignment sweep.
package matching

import "time"

const (
	// driverGeoKey holds every online driver's last reported position.
	driverGeoKey = "matching:drivers"
	// sweepBatch bounds how many unassigned rides one tick looks at.
	sweepBatch = 50
	// defaultTick is used when the configured tick is not positive.
	defaultTick = 3 * time.Second
)

// SweepResult summarises one pass over the unassigned rides.
type SweepResult struct {
	Scanned  int
	Assigned int
	Failed   int
}

// README: Location snapshot store backed by Postgres.
package location

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"ridebook/internal/types"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) AppendSnapshot(ctx context.Context, snap *Snapshot) error {
	return s.db.QueryRow(ctx, `
		INSERT INTO location_snapshots (driver_id, ride_id, lat, lng, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		string(snap.DriverID), string(snap.RideID), snap.Position.Lat, snap.Position.Lng, snap.RecordedAt,
	).Scan(&snap.ID)
}

// ListForRide returns the ride's snapshots oldest first.
func (s *PGStore) ListForRide(ctx context.Context, rideID types.ID, limit int) ([]Snapshot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, driver_id, ride_id, lat, lng, recorded_at
		FROM location_snapshots
		WHERE ride_id = $1
		ORDER BY recorded_at, id
		LIMIT $2`, string(rideID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.ID, &snap.DriverID, &snap.RideID, &snap.Position.Lat, &snap.Position.Lng, &snap.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// README: Driver status and KYC stores backed by PostgreSQL.
package driver

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridebook/internal/types"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Upsert(ctx context.Context, st *Status) error {
	var lat, lng *float64
	if st.Location != nil {
		lat, lng = &st.Location.Lat, &st.Location.Lng
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO driver_status (driver_id, is_online, lat, lng, last_seen, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5, $5)
		ON CONFLICT (driver_id) DO UPDATE
		SET is_online = EXCLUDED.is_online,
		    lat = EXCLUDED.lat,
		    lng = EXCLUDED.lng,
		    last_seen = EXCLUDED.last_seen,
		    updated_at = EXCLUDED.updated_at`,
		string(st.DriverID), st.IsOnline, lat, lng, st.LastSeen,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, driverID types.ID) (*Status, error) {
	row := s.db.QueryRow(ctx, `
		SELECT driver_id, is_online, lat, lng, last_seen, created_at, updated_at
		FROM driver_status
		WHERE driver_id = $1`, string(driverID),
	)
	st, err := scanStatus(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return st, err
}

func (s *PGStore) ListOnline(ctx context.Context) ([]Status, error) {
	rows, err := s.db.Query(ctx, `
		SELECT driver_id, is_online, lat, lng, last_seen, created_at, updated_at
		FROM driver_status
		WHERE is_online AND lat IS NOT NULL AND lng IS NOT NULL
		ORDER BY driver_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Status
	for rows.Next() {
		st, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func scanStatus(row pgx.Row) (*Status, error) {
	var st Status
	var lat, lng *float64
	if err := row.Scan(&st.DriverID, &st.IsOnline, &lat, &lng, &st.LastSeen, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		st.Location = &types.Point{Lat: *lat, Lng: *lng}
	}
	return &st, nil
}

// KYCStore reads the outcome of the external KYC review.
type KYCStore struct {
	db *pgxpool.Pool
}

func NewKYCStore(db *pgxpool.Pool) *KYCStore {
	return &KYCStore{db: db}
}

func (s *KYCStore) IsApproved(ctx context.Context, driverID types.ID) (bool, error) {
	var status string
	err := s.db.QueryRow(ctx, `SELECT status FROM driver_kyc WHERE driver_id = $1`, string(driverID)).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status == "approved", nil
}

// README: Ride store backed by PostgreSQL. Updates are conditional on the version column.
package ride

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridebook/internal/modules/user"
	"ridebook/internal/types"
)

// execer is satisfied by both the pool and an open transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PGStore struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const rideColumns = `id, client_id, driver_id, booking_type, booking_duration,
	pickup_address, pickup_lat, pickup_lng, drop_address, drop_lat, drop_lng,
	ride_type, distance_km, waiting_time,
	base_fare, distance_fare, time_fare, waiting_charge, total_fare,
	payment_mode, payment_status, otp, otp_verified, status, final_fare_locked, version,
	assigned_at, request_expires_at, accepted_at, arrived_at, started_at,
	cancelled_at, payment_received_at, completed_at, created_at, updated_at`

// nonTerminal is the SQL list of statuses that keep a driver busy.
const nonTerminal = `('REQUESTED','ACCEPTED','DRIVER_ARRIVED','ON_RIDE')`

func (s *PGStore) Create(ctx context.Context, r *Ride) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO rides (`+rideColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
		        $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34, $35, $36)`,
		string(r.ID), string(r.ClientID), idPtr(r.DriverID), string(r.BookingType), r.BookingDuration,
		r.Pickup.Address, r.Pickup.Lat, r.Pickup.Lng, r.Drop.Address, r.Drop.Lat, r.Drop.Lng,
		string(r.RideType), r.DistanceKm, r.WaitingTime,
		r.Fare.BaseFare, r.Fare.DistanceFare, r.Fare.TimeFare, r.Fare.WaitingCharge, r.Fare.TotalFare,
		string(r.PaymentMode), string(r.PaymentStatus), r.OTP, r.OTPVerified, string(r.Status), r.FinalFareLocked, r.Version,
		r.AssignedAt, r.RequestExpiresAt, r.AcceptedAt, r.ArrivedAt, r.StartedAt,
		r.CancelledAt, r.PaymentReceivedAt, r.CompletedAt, r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Ride, error) {
	return scanRide(s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, string(id)))
}

// Update never touches the fare columns of a ride whose fare was already locked.
// Giving a driver a second live ride fails with ErrDriverBusy.
func (s *PGStore) Update(ctx context.Context, r *Ride, expectedVersion int) error {
	if err := updateRide(ctx, s.db, r, expectedVersion); err != nil {
		return err
	}
	r.Version = expectedVersion + 1
	return nil
}

// CancelWithPenalty writes the cancelled ride and the client's cancellation
// counters in one transaction. Nothing is written if either step fails.
func (s *PGStore) CancelWithPenalty(ctx context.Context, r *Ride, expectedVersion int, at time.Time) (*user.User, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := updateRide(ctx, tx, r, expectedVersion); err != nil {
		return nil, err
	}
	u, err := user.RecordCancellation(ctx, tx, r.ClientID, at)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	r.Version = expectedVersion + 1
	return u, nil
}

func updateRide(ctx context.Context, db execer, r *Ride, expectedVersion int) error {
	tag, err := db.Exec(ctx, `
		UPDATE rides
		SET driver_id = $1,
		    waiting_time = $2,
		    base_fare = CASE WHEN final_fare_locked THEN base_fare ELSE $3 END,
		    distance_fare = CASE WHEN final_fare_locked THEN distance_fare ELSE $4 END,
		    time_fare = CASE WHEN final_fare_locked THEN time_fare ELSE $5 END,
		    waiting_charge = CASE WHEN final_fare_locked THEN waiting_charge ELSE $6 END,
		    total_fare = CASE WHEN final_fare_locked THEN total_fare ELSE $7 END,
		    payment_status = $8,
		    otp_verified = $9,
		    status = $10,
		    final_fare_locked = $11,
		    assigned_at = $12,
		    request_expires_at = $13,
		    accepted_at = $14,
		    arrived_at = $15,
		    started_at = $16,
		    cancelled_at = $17,
		    payment_received_at = $18,
		    completed_at = $19,
		    updated_at = $20,
		    version = version + 1
		WHERE id = $21 AND version = $22`,
		idPtr(r.DriverID), r.WaitingTime,
		r.Fare.BaseFare, r.Fare.DistanceFare, r.Fare.TimeFare, r.Fare.WaitingCharge, r.Fare.TotalFare,
		string(r.PaymentStatus), r.OTPVerified, string(r.Status), r.FinalFareLocked,
		r.AssignedAt, r.RequestExpiresAt, r.AcceptedAt, r.ArrivedAt, r.StartedAt,
		r.CancelledAt, r.PaymentReceivedAt, r.CompletedAt, r.UpdatedAt,
		string(r.ID), expectedVersion,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDriverBusy
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrConflict
	}
	return nil
}

func (s *PGStore) FindByDriver(ctx context.Context, driverID types.ID, statuses ...Status) (*Ride, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	return scanRide(s.db.QueryRow(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE driver_id = $1 AND status = ANY($2)
		ORDER BY created_at DESC
		LIMIT 1`, string(driverID), names))
}

func (s *PGStore) ListUnassigned(ctx context.Context, limit int) ([]*Ride, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+rideColumns+` FROM rides
		WHERE status = 'REQUESTED' AND driver_id IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) BusyDrivers(ctx context.Context) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT driver_id FROM rides
		WHERE driver_id IS NOT NULL AND status IN `+nonTerminal)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, types.ID(id))
	}
	return out, rows.Err()
}

func scanRide(row pgx.Row) (*Ride, error) {
	var r Ride
	var driverID *string
	err := row.Scan(
		&r.ID, &r.ClientID, &driverID, &r.BookingType, &r.BookingDuration,
		&r.Pickup.Address, &r.Pickup.Lat, &r.Pickup.Lng, &r.Drop.Address, &r.Drop.Lat, &r.Drop.Lng,
		&r.RideType, &r.DistanceKm, &r.WaitingTime,
		&r.Fare.BaseFare, &r.Fare.DistanceFare, &r.Fare.TimeFare, &r.Fare.WaitingCharge, &r.Fare.TotalFare,
		&r.PaymentMode, &r.PaymentStatus, &r.OTP, &r.OTPVerified, &r.Status, &r.FinalFareLocked, &r.Version,
		&r.AssignedAt, &r.RequestExpiresAt, &r.AcceptedAt, &r.ArrivedAt, &r.StartedAt,
		&r.CancelledAt, &r.PaymentReceivedAt, &r.CompletedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if driverID != nil {
		d := types.ID(*driverID)
		r.DriverID = &d
	}
	return &r, nil
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

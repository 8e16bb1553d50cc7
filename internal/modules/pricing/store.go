// README: Rate card store backed by PostgreSQL.
package pricing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// GetRates returns the active rate card, falling back to DefaultRates when the
// table has no row for the booking type.
func (s *Store) GetRates(ctx context.Context, bookingType BookingType) (Rates, error) {
	r := Rates{BookingType: bookingType}
	err := s.db.QueryRow(ctx, `
		SELECT base_fare, per_km, per_hour, per_waiting_minute, free_waiting_minutes
		FROM fare_rates
		WHERE booking_type = $1`, string(bookingType),
	).Scan(&r.BaseFare, &r.PerKm, &r.PerHour, &r.PerWaitingMinute, &r.FreeWaitingMinutes)
	if errors.Is(err, pgx.ErrNoRows) {
		if def, ok := DefaultRates[bookingType]; ok {
			return def, nil
		}
		return Rates{}, ErrBadRequest
	}
	if err != nil {
		return Rates{}, err
	}
	return r, nil
}

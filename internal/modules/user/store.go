// README: User store backed by PostgreSQL.
package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridebook/internal/types"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered")
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const userColumns = `id, name, email, mobile, password_hash, role, is_verified,
	cancel_count_today, cancel_count_day, blocked_until, created_at, updated_at`

func (s *Store) Create(ctx context.Context, u *User) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		string(u.ID), u.Name, strings.ToLower(u.Email), u.Mobile, u.PasswordHash, string(u.Role), u.IsVerified,
		u.CancelCountToday, u.CancelCountDay, u.BlockedUntil, u.CreatedAt, u.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrEmailTaken
	}
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*User, error) {
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, string(id)))
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(email))))
}

// RecordCancellation applies the cancellation policy under a row lock inside tx.
// The caller owns the transaction, so the penalty commits with whatever else tx writes.
func RecordCancellation(ctx context.Context, tx pgx.Tx, id types.ID, at time.Time) (*User, error) {
	u, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, string(id)))
	if err != nil {
		return nil, err
	}
	ApplyCancellation(u, at)
	if _, err := tx.Exec(ctx, `
		UPDATE users
		SET cancel_count_today = $1, cancel_count_day = $2, blocked_until = $3, updated_at = $4
		WHERE id = $5`,
		u.CancelCountToday, u.CancelCountDay, u.BlockedUntil, u.UpdatedAt, string(id),
	); err != nil {
		return nil, err
	}
	return u, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role string
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.Mobile, &u.PasswordHash, &role, &u.IsVerified,
		&u.CancelCountToday, &u.CancelCountDay, &u.BlockedUntil, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = types.Role(role)
	return &u, nil
}

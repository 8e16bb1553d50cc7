// README: User identity record and the client cancellation penalty policy.
package user

import (
	"time"

	"ridebook/internal/types"
)

const (
	// CancelThreshold is the number of same-day cancellations that blocks a client.
	CancelThreshold = 3
	BlockDuration   = 24 * time.Hour
)

type User struct {
	ID               types.ID
	Name             string
	Email            string
	Mobile           string
	PasswordHash     string
	Role             types.Role
	IsVerified       bool
	CancelCountToday int
	CancelCountDay   string // UTC date the counter belongs to, "2006-01-02"
	BlockedUntil     *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Blocked reports whether the account may not request rides at now.
func (u *User) Blocked(now time.Time) bool {
	return u.BlockedUntil != nil && u.BlockedUntil.After(now)
}

// ApplyCancellation records one client cancellation at `at`. The counter starts over
// on a new UTC day; the threshold is re-checked on every cancellation, so each one at
// or past the threshold pushes BlockedUntil to at+BlockDuration.
func ApplyCancellation(u *User, at time.Time) {
	day := at.UTC().Format("2006-01-02")
	if u.CancelCountDay != day {
		u.CancelCountDay = day
		u.CancelCountToday = 0
	}
	u.CancelCountToday++
	if u.CancelCountToday >= CancelThreshold {
		until := at.Add(BlockDuration)
		u.BlockedUntil = &until
	}
	u.UpdatedAt = at
}

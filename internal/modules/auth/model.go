// README: Auth commands and the session returned to a signed-in user.
package auth

import (
	"time"

	"ridebook/internal/modules/user"
	"ridebook/internal/types"
)

const minPasswordLength = 6

type SignupCommand struct {
	Name     string
	Email    string
	Mobile   string
	Password string
	Role     types.Role
	OTP      string
}

// LoginCommand authenticates with the OTP when one is given, else with the password.
type LoginCommand struct {
	Email    string
	Password string
	OTP      string
}

type Session struct {
	Token string     `json:"token"`
	Role  types.Role `json:"role"`
}

// Profile is the public view of a user.
type Profile struct {
	ID           types.ID   `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Mobile       string     `json:"mobile"`
	Role         types.Role `json:"role"`
	IsVerified   bool       `json:"isVerified"`
	BlockedUntil *time.Time `json:"blockedUntil,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func profileOf(u *user.User) *Profile {
	return &Profile{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Mobile:       u.Mobile,
		Role:         u.Role,
		IsVerified:   u.IsVerified,
		BlockedUntil: u.BlockedUntil,
		CreatedAt:    u.CreatedAt,
	}
}

// README: Shared identifiers and geo value objects used across modules.
package types

type ID string

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Place is an address with its coordinates; Lat/Lng serialize flat next to the address.
type Place struct {
	Address string `json:"address"`
	Point
}

// Role of an authenticated user.
type Role string

const (
	RoleClient Role = "client"
	RoleDriver Role = "driver"
)

// Identity is what the core trusts about the caller once authentication resolved it.
type Identity struct {
	UserID ID
	Role   Role
}

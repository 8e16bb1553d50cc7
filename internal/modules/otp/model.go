// README: One-time code entries bound to an address with an absolute expiry.
package otp

import (
	"strings"
	"time"
)

const (
	CodeLength = 6
	DefaultTTL = 5 * time.Minute
)

type Entry struct {
	Address   string
	Code      string
	ExpiresAt time.Time
}

// Expired reports whether the entry must be treated as absent at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// NormalizeAddress lower-cases and trims an email address so lookups are case-insensitive.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// README: HS256 session tokens for users who sign in with email.
package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ridebook/internal/types"
)

type JWTManager struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time
}

func NewJWTManager(signingKey string, ttl time.Duration) *JWTManager {
	return &JWTManager{signingKey: []byte(signingKey), ttl: ttl, now: time.Now}
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

func (m *JWTManager) Issue(userID types.ID, role types.Role) (string, error) {
	now := m.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		Role: string(role),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.signingKey)
}

// VerifyIDToken lets the manager serve as a TokenVerifier.
func (m *JWTManager) VerifyIDToken(_ context.Context, tokenStr string) (*Token, error) {
	tok, err := jwt.ParseWithClaims(tokenStr, &sessionClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return m.signingKey, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, err
	}
	claims, ok := tok.Claims.(*sessionClaims)
	if !ok || !tok.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return &Token{UID: claims.Subject, Claims: map[string]interface{}{"role": claims.Role}}, nil
}

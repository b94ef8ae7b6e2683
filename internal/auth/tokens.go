package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Token lifetimes.
const (
	AdminTokenTTL      = 12 * 24 * time.Hour
	AuthPlayerTokenTTL = 2 * 24 * time.Hour
)

// Claims is the payload of issued identity tokens.
type Claims struct {
	Role            Role             `json:"role"`
	AuthPlayerRoles []AuthPlayerRole `json:"authPlayerRoles,omitempty"`
	jwt.RegisteredClaims
}

var errEmptySecret = errors.New("auth: signing secret not configured")

// SignToken signs claims with HS256, stamping iat and exp from now and ttl.
func SignToken(secret []byte, claims Claims, now time.Time, ttl time.Duration) (string, time.Time, error) {
	if len(secret) == 0 {
		return "", time.Time{}, errEmptySecret
	}
	exp := now.Add(ttl)
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(exp)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, exp, nil
}

// VerifyToken checks signature, algorithm and expiry. Every failure wraps ErrInvalidToken.
func VerifyToken(raw string, secret []byte, now time.Time) (*Claims, error) {
	if len(secret) == 0 {
		return nil, errEmptySecret
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

package credentials

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of token claims worth reporting.
type Claims struct {
	Subject     string
	Issuer      string
	Audience    []string
	HexIdentity string // Identity the service derived from (issuer, subject)
	IssuedAt    time.Time
	ExpiresAt   time.Time // Zero when the token never expires
}

// Expired reports whether the token carries an expiry that has passed.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

type tokenClaims struct {
	jwt.RegisteredClaims
	HexIdentity string `json:"hex_identity"`
}

// Inspect decodes a token's claims without verifying its signature.
func Inspect(token string) (Claims, error) {
	var parsed tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &parsed); err != nil {
		return Claims{}, fmt.Errorf("parse token: %w", err)
	}

	c := Claims{
		Subject:     parsed.Subject,
		Issuer:      parsed.Issuer,
		Audience:    parsed.Audience,
		HexIdentity: parsed.HexIdentity,
	}
	if parsed.IssuedAt != nil {
		c.IssuedAt = parsed.IssuedAt.Time
	}
	if parsed.ExpiresAt != nil {
		c.ExpiresAt = parsed.ExpiresAt.Time
	}
	return c, nil
}

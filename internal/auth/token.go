package auth

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrNoJWKS       = errors.New("no JWKS URL provided")
)

// StandardClaims represents the standard claims in a JWT token.
type StandardClaims struct {
	Sub    string `json:"sub"`
	UserId string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// UserID returns the stable user identifier: sub, then user_id, then email.
func (c *StandardClaims) UserID() string {
	switch {
	case c.Sub != "":
		return c.Sub
	case c.UserId != "":
		return c.UserId
	default:
		return c.Email
	}
}

// TokenValidator checks a bearer token and returns the user it belongs to.
type TokenValidator interface {
	ValidateToken(ctx context.Context, tokenString string) (userID string, err error)
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/lestrrat-go/jwx/jwk"
)

// JWTTokenValidator is a concrete implementation of TokenValidator for JWT tokens.
//
// It verifies tokens against a JWKS (keys looked up by kid) or a shared HMAC
// secret. Without either it runs in development mode and trusts the claims
// of unverified tokens.
type JWTTokenValidator struct {
	mu      sync.RWMutex
	keySet  jwk.Set
	jwksURL string

	secret  []byte
	devMode bool
	now     func() time.Time
}

var _ TokenValidator = (*JWTTokenValidator)(nil)

// NewTokenValidator creates a new JWT token validator with the given JWKS URL.
// An empty URL selects development mode.
func NewTokenValidator(ctx context.Context, jwksURL string) (*JWTTokenValidator, error) {
	if jwksURL == "" {
		return &JWTTokenValidator{devMode: true, now: time.Now}, nil
	}

	keySet, err := jwk.Fetch(ctx, jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", jwksURL, err)
	}

	return &JWTTokenValidator{
		keySet:  keySet,
		jwksURL: jwksURL,
		now:     time.Now,
	}, nil
}

// NewHMACValidator verifies HS256/HS384/HS512 tokens signed with secret.
func NewHMACValidator(secret string) (*JWTTokenValidator, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: empty HMAC secret", ErrInvalidToken)
	}
	return &JWTTokenValidator{secret: []byte(secret), now: time.Now}, nil
}

// RefreshKeys refreshes the JWKS from the URL.
func (v *JWTTokenValidator) RefreshKeys(ctx context.Context) error {
	if v.jwksURL == "" {
		return ErrNoJWKS
	}

	keySet, err := jwk.Fetch(ctx, v.jwksURL)
	if err != nil {
		return fmt.Errorf("failed to refresh JWKS from %s: %w", v.jwksURL, err)
	}

	v.mu.Lock()
	v.keySet = keySet
	v.mu.Unlock()
	return nil
}

// ValidateToken validates a JWT token and returns the user ID.
func (v *JWTTokenValidator) ValidateToken(ctx context.Context, tokenString string) (string, error) {
	claims, err := v.parse(ctx, tokenString)
	if err != nil {
		return "", err
	}

	userID := claims.UserID()
	if userID == "" {
		return "", fmt.Errorf("%w: no sub, user_id, or email found in token claims", ErrInvalidToken)
	}
	return userID, nil
}

func (v *JWTTokenValidator) parse(ctx context.Context, tokenString string) (*StandardClaims, error) {
	if v.devMode {
		token, _, err := new(jwt.Parser).ParseUnverified(tokenString, &StandardClaims{})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		claims, ok := token.Claims.(*StandardClaims)
		if !ok {
			return nil, ErrInvalidToken
		}
		return claims, nil
	}

	validatedToken, err := jwt.ParseWithClaims(tokenString, &StandardClaims{}, func(token *jwt.Token) (any, error) {
		if v.secret != nil {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return v.secret, nil
		}
		return v.lookupKey(ctx, token)
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := validatedToken.Claims.(*StandardClaims)
	if !ok || !validatedToken.Valid {
		return nil, ErrInvalidToken
	}

	if !claims.VerifyExpiresAt(v.now(), true) {
		return nil, ErrExpiredToken
	}
	return claims, nil
}

// lookupKey finds the verification key for token, refreshing the JWKS once
// when the kid is unknown.
func (v *JWTTokenValidator) lookupKey(ctx context.Context, token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
		return nil, fmt.Errorf("HMAC tokens are not accepted with a JWKS")
	}

	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("token header missing kid")
	}

	v.mu.RLock()
	keySet := v.keySet
	v.mu.RUnlock()
	if keySet == nil {
		return nil, ErrNoJWKS
	}

	key, found := keySet.LookupKeyID(kid)
	if !found {
		if err := v.RefreshKeys(ctx); err != nil {
			return nil, fmt.Errorf("key with ID %s not found and failed to refresh keys: %v", kid, err)
		}

		v.mu.RLock()
		key, found = v.keySet.LookupKeyID(kid)
		v.mu.RUnlock()
		if !found {
			return nil, fmt.Errorf("key with ID %s not found", kid)
		}
	}

	var rawKey any
	if err := key.Raw(&rawKey); err != nil {
		return nil, fmt.Errorf("failed to get raw key: %v", err)
	}
	return rawKey, nil
}

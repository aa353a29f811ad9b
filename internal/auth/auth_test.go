package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/lestrrat-go/jwx/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func signHS256(t *testing.T, secret string, claims StandardClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func expiresIn(d time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(d))}
}

func TestHMACValidator(t *testing.T) {
	v, err := NewHMACValidator("s3cret")
	require.NoError(t, err)
	ctx := context.Background()

	userID, err := v.ValidateToken(ctx, signHS256(t, "s3cret", StandardClaims{Sub: "user-1", Email: "a@b.c", RegisteredClaims: expiresIn(time.Hour)}))
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	userID, err = v.ValidateToken(ctx, signHS256(t, "s3cret", StandardClaims{Email: "a@b.c", RegisteredClaims: expiresIn(time.Hour)}))
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", userID)

	_, err = v.ValidateToken(ctx, signHS256(t, "other", StandardClaims{Sub: "user-1", RegisteredClaims: expiresIn(time.Hour)}))
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.ValidateToken(ctx, signHS256(t, "s3cret", StandardClaims{Sub: "user-1", RegisteredClaims: expiresIn(-time.Minute)}))
	assert.ErrorIs(t, err, ErrExpiredToken)

	_, err = v.ValidateToken(ctx, signHS256(t, "s3cret", StandardClaims{Sub: "user-1"}))
	assert.ErrorIs(t, err, ErrExpiredToken, "tokens without exp are rejected")

	_, err = NewHMACValidator("")
	assert.Error(t, err)
}

func TestDevModeTrustsClaims(t *testing.T) {
	v, err := NewTokenValidator(context.Background(), "")
	require.NoError(t, err)

	userID, err := v.ValidateToken(context.Background(), signHS256(t, "anything", StandardClaims{UserId: "uid-7"}))
	require.NoError(t, err)
	assert.Equal(t, "uid-7", userID)

	_, err = v.ValidateToken(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWKSValidatorRefreshesUnknownKid(t *testing.T) {
	oldKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	newKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	publicSet := func(kid string, key *rsa.PrivateKey) []byte {
		k, err := jwk.New(&key.PublicKey)
		require.NoError(t, err)
		require.NoError(t, k.Set(jwk.KeyIDKey, kid))
		require.NoError(t, k.Set(jwk.AlgorithmKey, "RS256"))
		set := jwk.NewSet()
		set.Add(k)
		body, err := json.Marshal(set)
		require.NoError(t, err)
		return body
	}

	var rotated atomic.Bool
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if rotated.Load() {
			_, _ = w.Write(publicSet("kid-2", newKey))
			return
		}
		_, _ = w.Write(publicSet("kid-1", oldKey))
	}))
	defer srv.Close()

	v, err := NewTokenValidator(context.Background(), srv.URL)
	require.NoError(t, err)

	sign := func(kid string, key *rsa.PrivateKey) string {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, &StandardClaims{Sub: "user-9", RegisteredClaims: expiresIn(time.Hour)})
		token.Header["kid"] = kid
		s, err := token.SignedString(key)
		require.NoError(t, err)
		return s
	}

	userID, err := v.ValidateToken(context.Background(), sign("kid-1", oldKey))
	require.NoError(t, err)
	assert.Equal(t, "user-9", userID)
	assert.Equal(t, int32(1), fetches.Load())

	rotated.Store(true)
	userID, err = v.ValidateToken(context.Background(), sign("kid-2", newKey))
	require.NoError(t, err)
	assert.Equal(t, "user-9", userID)
	assert.Equal(t, int32(2), fetches.Load())

	_, err = v.ValidateToken(context.Background(), signHS256(t, "secret", StandardClaims{Sub: "x", RegisteredClaims: expiresIn(time.Hour)}))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequireAuth(t *testing.T) {
	v, err := NewHMACValidator("s3cret")
	require.NoError(t, err)

	router := gin.New()
	router.GET("/me", NewMiddleware(v).RequireAuth(), func(c *gin.Context) {
		userID, ok := GetUserID(c)
		require.True(t, ok)
		c.String(http.StatusOK, userID)
	})

	valid := signHS256(t, "s3cret", StandardClaims{Sub: "user-1", RegisteredClaims: expiresIn(time.Hour)})

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid", "Bearer " + valid, http.StatusOK, "user-1"},
		{"missing", "", http.StatusUnauthorized, `"code":"unauthorized"`},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "Bearer token"},
		{"empty token", "Bearer ", http.StatusUnauthorized, "empty"},
		{"bad token", "Bearer nope", http.StatusUnauthorized, "Invalid or expired token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}

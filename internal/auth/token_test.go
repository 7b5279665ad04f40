package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signClaims(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	return token
}

func TestTokenExpired(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	t.Run("expired jwt", func(t *testing.T) {
		token := signClaims(t, jwt.MapClaims{"exp": now.Add(-time.Minute).Unix()})
		assert.True(t, tokenExpired(token, now))
	})

	t.Run("live jwt", func(t *testing.T) {
		token := signClaims(t, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()})
		assert.False(t, tokenExpired(token, now))
	})

	t.Run("jwt without exp", func(t *testing.T) {
		token := signClaims(t, jwt.MapClaims{"sub": "7"})
		assert.False(t, tokenExpired(token, now))
	})

	t.Run("opaque token", func(t *testing.T) {
		assert.False(t, tokenExpired("not-a-jwt-at-all", now))
	})

	t.Run("empty token", func(t *testing.T) {
		assert.False(t, tokenExpired("", now))
	})
}

// internal/auth/token_probe_test.go
package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/dripper/api/schemas"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)
	return s
}

func TestTokenExpiry(t *testing.T) {
	sooner := time.Now().Add(1 * time.Hour).Truncate(time.Second)
	later := time.Now().Add(2 * time.Hour).Truncate(time.Second)

	t.Run("Earliest Expiry Wins", func(t *testing.T) {
		cookies := []schemas.Cookie{
			{Name: "session", Value: signedToken(t, jwt.MapClaims{"exp": later.Unix()})},
			{Name: "refresh", Value: signedToken(t, jwt.MapClaims{"exp": sooner.Unix()})},
			{Name: "csrf", Value: "plain-opaque-value"},
		}

		got, ok := TokenExpiry(cookies)
		require.True(t, ok)
		assert.True(t, got.Equal(sooner), "expected %v, got %v", sooner, got)
	})

	t.Run("No JWT Cookies", func(t *testing.T) {
		cookies := []schemas.Cookie{
			{Name: "a", Value: "opaque"},
			{Name: "b", Value: "also.not.ajwt"},
		}

		got, ok := TokenExpiry(cookies)
		assert.False(t, ok)
		assert.True(t, got.IsZero())
	})

	t.Run("JWT Without Expiry Is Skipped", func(t *testing.T) {
		cookies := []schemas.Cookie{
			{Name: "session", Value: signedToken(t, jwt.MapClaims{"sub": "account"})},
		}

		_, ok := TokenExpiry(cookies)
		assert.False(t, ok)
	})

	t.Run("Empty Cookie List", func(t *testing.T) {
		_, ok := TokenExpiry(nil)
		assert.False(t, ok)
	})
}

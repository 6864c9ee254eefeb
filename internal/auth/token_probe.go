// internal/auth/token_probe.go
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xkilldash9x/dripper/api/schemas"
)

// parserUnverified inspects token contents without checking the signature.
// The site signs its session cookies with its own key; only the expiry claim
// matters here, not authenticity.
var parserUnverified = new(jwt.Parser)

// TokenExpiry scans the session cookies for JWT-shaped values and returns the
// earliest expiry claim found. ok is false when no cookie carries one. Cookies
// that are not JWTs, or JWTs without an exp claim, are skipped silently; this
// is a staleness hint, not a validation.
func TokenExpiry(cookies []schemas.Cookie) (time.Time, bool) {
	var earliest time.Time
	for _, c := range cookies {
		token, _, err := parserUnverified.ParseUnverified(c.Value, jwt.MapClaims{})
		if err != nil {
			continue
		}
		exp, err := token.Claims.GetExpirationTime()
		if err != nil || exp == nil {
			continue
		}
		if earliest.IsZero() || exp.Time.Before(earliest) {
			earliest = exp.Time
		}
	}
	return earliest, !earliest.IsZero()
}

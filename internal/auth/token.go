package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenExpired reports whether the stored bearer carries an exp claim in the
// past. The client holds no signing key, so claims are read unverified; this
// only prevents the client from treating a known-dead token as a live
// session. The backend remains the authority and still rejects bad tokens
// with a 401.
//
// Opaque (non-JWT) tokens and JWTs without exp are assumed live.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}

// Package auth provides the client-side token cache. Token issuance and
// verification belong to the server; this package only decides whether a
// cached token is still worth sending.
package auth

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource caches a bearer token for API and stream requests. JWTs with
// an expired exp claim are withheld so requests fail fast locally instead
// of bouncing off the server; opaque tokens pass through untouched.
type TokenSource struct {
	mu    sync.RWMutex
	token string

	// now is swappable for tests
	now func() time.Time
}

// NewTokenSource creates a token source with an initial token, which may be
// empty for unauthenticated sessions.
func NewTokenSource(token string) *TokenSource {
	return &TokenSource{token: token, now: time.Now}
}

// SetToken replaces the cached token
func (t *TokenSource) SetToken(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.token = token
}

// Token returns the cached token, or an empty string when no usable token
// is present.
func (t *TokenSource) Token() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.token == "" || t.expiredLocked() {
		return ""
	}
	return t.token
}

// Valid reports whether a usable token is present
func (t *TokenSource) Valid() bool {
	return t.Token() != ""
}

// expiredLocked checks the exp claim without verifying the signature; the
// server remains the verification authority.
func (t *TokenSource) expiredLocked() bool {
	claims := jwt.MapClaims{}
	_, _, err := jwt.NewParser().ParseUnverified(t.token, claims)
	if err != nil {
		// Not a JWT; treat as an opaque token
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(t.now())
}

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when no bearer token is present.
	ErrMissingToken = errors.New("missing authentication token")
	// ErrInvalidToken is returned when the token fails validation.
	ErrInvalidToken = errors.New("invalid authentication token")
)

// Authenticator validates a request before the trace stream upgrades.
type Authenticator interface {
	Authenticate(r *http.Request) (subject string, err error)
}

// JWTAuth validates bearer tokens signed with an HMAC secret. It accepts
// the token from the Authorization header or, since browsers can't set
// arbitrary headers on a websocket upgrade, a "token" query parameter.
type JWTAuth struct {
	secret []byte
}

// NewJWTAuth builds a JWTAuth around secret.
func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{secret: []byte(secret)}
}

func (a *JWTAuth) Authenticate(r *http.Request) (string, error) {
	raw := bearerToken(r)
	if raw == "" {
		return "", ErrMissingToken
	}

	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// NoAuth allows every request; used when no secret is configured.
type NoAuth struct{}

func (NoAuth) Authenticate(r *http.Request) (string, error) { return "anonymous", nil }

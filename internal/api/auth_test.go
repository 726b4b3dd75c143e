package api

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, secret, subject string, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJWTAuthAcceptsValidBearerToken(t *testing.T) {
	auth := NewJWTAuth("s3cret")
	token := signedToken(t, "s3cret", "operator-1", time.Now().Add(time.Hour))

	req := httptest.NewRequest("GET", "/v1/workflow/pres-1/trace/stream", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	subject, err := auth.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "operator-1", subject)
}

func TestJWTAuthAcceptsQueryToken(t *testing.T) {
	auth := NewJWTAuth("s3cret")
	token := signedToken(t, "s3cret", "operator-1", time.Now().Add(time.Hour))

	req := httptest.NewRequest("GET", "/v1/workflow/pres-1/trace/stream?token="+token, nil)

	_, err := auth.Authenticate(req)
	require.NoError(t, err)
}

func TestJWTAuthRejectsMissingToken(t *testing.T) {
	auth := NewJWTAuth("s3cret")
	req := httptest.NewRequest("GET", "/v1/workflow/pres-1/trace/stream", nil)

	_, err := auth.Authenticate(req)
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestJWTAuthRejectsExpiredToken(t *testing.T) {
	auth := NewJWTAuth("s3cret")
	token := signedToken(t, "s3cret", "operator-1", time.Now().Add(-time.Hour))

	req := httptest.NewRequest("GET", "/v1/workflow/pres-1/trace/stream", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	_, err := auth.Authenticate(req)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTAuthRejectsWrongSecret(t *testing.T) {
	auth := NewJWTAuth("s3cret")
	token := signedToken(t, "wrong-secret", "operator-1", time.Now().Add(time.Hour))

	req := httptest.NewRequest("GET", "/v1/workflow/pres-1/trace/stream", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	_, err := auth.Authenticate(req)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNoAuthAlwaysSucceeds(t *testing.T) {
	auth := NoAuth{}
	req := httptest.NewRequest("GET", "/", nil)
	subject, err := auth.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "anonymous", subject)
}

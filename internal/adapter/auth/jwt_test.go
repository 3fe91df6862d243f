package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/campus-orders/internal/core/domain"
)

func TestParse_RoundTrip(t *testing.T) {
	a := NewJWTAuthenticator("secret")
	want := domain.Principal{ID: "u1", Email: "u1@uni.edu", IsAdmin: true}

	token, err := a.Sign(want, time.Minute)
	require.NoError(t, err)

	got, err := a.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParse_Errors(t *testing.T) {
	a := NewJWTAuthenticator("secret")

	expired, err := a.Sign(domain.Principal{ID: "u1"}, -time.Minute)
	require.NoError(t, err)
	_, err = a.Parse(expired)
	assert.ErrorIs(t, err, ErrExpiredToken)

	other, err := NewJWTAuthenticator("other").Sign(domain.Principal{ID: "u1"}, time.Minute)
	require.NoError(t, err)
	_, err = a.Parse(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		StandardClaims: jwt.StandardClaims{ExpiresAt: time.Now().Add(time.Minute).Unix()},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = a.Parse(noUser)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	a := NewJWTAuthenticator("secret")
	var seen domain.Principal
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := a.Sign(domain.Principal{ID: "u1"}, time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "u1", seen.ID)
}

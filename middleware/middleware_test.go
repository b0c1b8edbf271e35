package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripy/apperr"
	"tripy/utils"
)

func TestVerify(t *testing.T) {
	v := NewJWTVerifier("s3cret")
	tok, err := v.Sign("user-9", jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))})
	require.NoError(t, err)

	id, err := v.Verify("Bearer " + tok)
	require.NoError(t, err)
	assert.Equal(t, "user-9", id)

	id, err = v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-9", id)

	_, err = NewJWTVerifier("other").Verify(tok)
	assert.True(t, apperr.Is(err, apperr.AuthenticationFailed))

	expired, err := v.Sign("user-9", jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))})
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.True(t, apperr.Is(err, apperr.AuthenticationFailed))

	_, err = v.Verify("")
	assert.True(t, apperr.Is(err, apperr.AuthenticationFailed))
}

func TestAuthenticate(t *testing.T) {
	v := NewJWTVerifier("s3cret")
	tok, err := v.Sign("user-9", jwt.RegisteredClaims{})
	require.NoError(t, err)

	var seen string
	h := v.Authenticate(func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		seen = utils.GetUserIDFromRequest(r)
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/trips/x", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	h(rec, req, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "user-9", seen)

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/api/trips/x", nil), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), string(apperr.AuthenticationFailed))
}

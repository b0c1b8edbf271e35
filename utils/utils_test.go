package utils

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripy/apperr"
)

func TestWithRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")

	tagged, id := WithRequestID(rec, req)
	assert.Equal(t, "abc-123", id)
	assert.Equal(t, "abc-123", RequestID(tagged.Context()))
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	_, fresh := WithRequestID(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, fresh, 36)
}

func TestRespondWithAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithAppError(rec, apperr.New(apperr.EditConflict, "trip changed"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":{"kind":"edit_conflict","message":"trip changed"}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	RespondWithAppError(rec, errors.New("disk on fire"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk on fire")
}

func TestDecodeJSON(t *testing.T) {
	var v struct{ Name string }
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"Name":"Lisbon"}`))
	require.NoError(t, DecodeJSON(req, &v))
	assert.Equal(t, "Lisbon", v.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.True(t, apperr.Is(DecodeJSON(req, &v), apperr.InvalidRequest))
}

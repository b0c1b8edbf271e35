package utils

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"tripy/apperr"
	"tripy/logger"
)

// Sends a JSON response
func RespondWithJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Get().Warn("encode response", zap.Error(err))
	}
}

// ErrorBody is the wire shape of every failure: a stable kind plus a summary.
type ErrorBody struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

// RespondWithAppError renders err with the status its kind maps to. Internal
// causes are logged, not sent.
func RespondWithAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		logger.Get().Error("request failed", zap.String("kind", string(kind)), zap.Error(err))
	}
	RespondWithJSON(w, status, map[string]ErrorBody{
		"error": {Kind: kind, Message: apperr.Message(err)},
	})
}

// DecodeJSON reads a bounded JSON body into v.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(apperr.InvalidRequest, err, "invalid request payload")
	}
	return nil
}

type M map[string]any

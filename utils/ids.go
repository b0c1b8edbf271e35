package utils

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"tripy/globals"
)

func GetUUID() string {
	return uuid.New().String()
}

// WithRequestID tags the request context with the caller's X-Request-ID, or
// a fresh one, and echoes it on the response.
func WithRequestID(w http.ResponseWriter, r *http.Request) (*http.Request, string) {
	id := r.Header.Get("X-Request-ID")
	if id == "" || len(id) > 64 {
		id = GetUUID()
	}
	w.Header().Set("X-Request-ID", id)
	return r.WithContext(context.WithValue(r.Context(), globals.RequestIDKey, id)), id
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(globals.RequestIDKey).(string)
	return id
}

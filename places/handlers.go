package places

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"tripy/apperr"
	"tripy/utils"
)

// SearchHandler serves GET /api/places/search?query=&location=.
func SearchHandler(svc Resolver) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		query := strings.TrimSpace(r.URL.Query().Get("query"))
		if len(query) < 2 || len(query) > 200 {
			utils.RespondWithAppError(w, apperr.New(apperr.InvalidRequest, "query must be 2-200 characters"))
			return
		}
		location := strings.TrimSpace(r.URL.Query().Get("location"))

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		utils.RespondWithJSON(w, http.StatusOK, svc.Resolve(ctx, query, location))
	}
}

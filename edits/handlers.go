package edits

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"tripy/apperr"
	"tripy/db"
	"tripy/itinerary"
	"tripy/models"
	"tripy/utils"
)

// POST /api/trips/:id/edits
func EditHandler(p *Pipeline, store db.Store, timeout time.Duration) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		tripID := ps.ByName("id")

		var cmd models.EditCommand
		if err := utils.DecodeJSON(r, &cmd); err != nil {
			utils.RespondWithAppError(w, err)
			return
		}
		cmd.TripID = tripID
		if err := models.Validator().Struct(cmd); err != nil {
			utils.RespondWithAppError(w, apperr.Wrap(apperr.InvalidRequest, err, "command must be 3-500 characters"))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if _, err := itinerary.LoadForUser(ctx, store, tripID, utils.GetUserIDFromRequest(r)); err != nil {
			utils.RespondWithAppError(w, err)
			return
		}

		res, err := p.Apply(ctx, tripID, cmd.Command)
		if err != nil {
			utils.RespondWithJSON(w, apperr.HTTPStatus(apperr.KindOf(err)), res)
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, res)
	}
}

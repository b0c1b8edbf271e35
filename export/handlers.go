package export

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"tripy/apperr"
	"tripy/db"
	"tripy/itinerary"
	"tripy/logger"
	"tripy/models"
	"tripy/utils"
)

// GET /api/trips/:id/export.pdf
func PDFHandler(e *Exporter, store db.Store) httprouter.Handle {
	return serve(store, "application/pdf", "pdf", e.PDF)
}

// GET /api/trips/:id/export.ics
func ICSHandler(e *Exporter, store db.Store) httprouter.Handle {
	return serve(store, "text/calendar; charset=utf-8", "ics", e.ICS)
}

func serve(store db.Store, contentType, ext string, render func(w io.Writer, trip models.Trip) error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		tripID := ps.ByName("id")
		trip, err := itinerary.LoadForUser(ctx, store, tripID, utils.GetUserIDFromRequest(r))
		if err != nil {
			utils.RespondWithAppError(w, err)
			return
		}

		var buf bytes.Buffer
		if err := render(&buf, trip); err != nil {
			logger.Get().Error("export trip", zap.String("trip_id", tripID), zap.String("format", ext), zap.Error(err))
			utils.RespondWithAppError(w, apperr.Wrap(apperr.Internal, err, "export failed"))
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", "attachment; filename=trip-"+tripID+"."+ext)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}

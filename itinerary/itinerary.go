package itinerary

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"tripy/apperr"
	"tripy/budget"
	"tripy/config"
	"tripy/db"
	"tripy/logger"
	"tripy/models"
	"tripy/utils"
)

// Assembler builds and persists a trip for an accepted request.
type Assembler interface {
	Assemble(ctx context.Context, ownerID string, req models.TripRequest) (*models.Trip, error)
}

// LoadForUser fetches a trip and checks userID may see it.
func LoadForUser(ctx context.Context, store db.Store, tripID, userID string) (models.Trip, error) {
	if userID == "" {
		return models.Trip{}, apperr.New(apperr.AuthenticationFailed, "authentication required")
	}
	trip, err := store.Get(ctx, tripID)
	if err != nil {
		return models.Trip{}, err
	}
	if !trip.CanAccess(userID) {
		return models.Trip{}, apperr.Newf(apperr.AccessDenied, "no access to trip %s", tripID)
	}
	return trip, nil
}

type createResponse struct {
	Trip     *models.Trip `json:"trip"`
	Warnings []string     `json:"warnings,omitempty"`
}

// POST /api/trips
func CreateTripHandler(a Assembler, limits config.Limits, timeout time.Duration) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		userID := utils.GetUserIDFromRequest(r)
		if userID == "" {
			utils.RespondWithAppError(w, apperr.New(apperr.AuthenticationFailed, "authentication required"))
			return
		}

		var body models.TripRequest
		if err := utils.DecodeJSON(r, &body); err != nil {
			utils.RespondWithAppError(w, err)
			return
		}
		req, err := models.NewTripRequest(body, limits)
		if err != nil {
			utils.RespondWithAppError(w, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		trip, err := a.Assemble(ctx, userID, req)
		if err != nil {
			utils.RespondWithAppError(w, err)
			return
		}
		utils.RespondWithJSON(w, http.StatusCreated, createResponse{
			Trip:     trip,
			Warnings: append(req.Advisories(), budget.Warnings(trip.Budget)...),
		})
	}
}

// GET /api/trips/:id
func GetTripHandler(store db.Store) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		trip, err := LoadForUser(ctx, store, ps.ByName("id"), utils.GetUserIDFromRequest(r))
		if err != nil {
			utils.RespondWithAppError(w, err)
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, trip)
	}
}

type validation struct {
	Valid    bool                    `json:"valid"`
	Errors   []string                `json:"errors,omitempty"`
	Warnings []string                `json:"warnings,omitempty"`
	Budget   *models.BudgetBreakdown `json:"budget,omitempty"`
	Days     int                     `json:"days,omitempty"`
}

// Preview checks a request without generating anything: field errors,
// advisories, and the budget split it would get.
func Preview(body models.TripRequest, limits config.Limits) validation {
	req, err := models.NewTripRequest(body, limits)
	if err != nil {
		return validation{Errors: []string{apperr.Message(err)}}
	}
	out := validation{Valid: true, Warnings: req.Advisories(), Days: req.Days()}
	b, err := budget.ForRequest(req)
	if err != nil {
		logger.Get().Warn("budget preview", zap.Error(err))
		return out
	}
	out.Budget = &b
	out.Warnings = append(out.Warnings, budget.Warnings(b)...)
	return out
}

// POST /api/trip-requests/validate
func ValidateRequestHandler(limits config.Limits) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var body models.TripRequest
		if err := utils.DecodeJSON(r, &body); err != nil {
			utils.RespondWithAppError(w, err)
			return
		}
		utils.RespondWithJSON(w, http.StatusOK, Preview(body, limits))
	}
}

package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tripy/config"
	"tripy/db"
	"tripy/edits"
	"tripy/export"
	"tripy/itinerary"
	"tripy/middleware"
	"tripy/newchat"
	"tripy/places"
	"tripy/ratelim"
	"tripy/suggestions"
	"tripy/utils"
)

// Deps is everything the HTTP surface needs, built once in main.
type Deps struct {
	Config      config.Config
	Store       db.Store
	Auth        *middleware.JWTVerifier
	Limiter     *ratelim.RateLimiter
	Assembler   itinerary.Assembler
	Edits       *edits.Pipeline
	Suggestions *suggestions.Service
	Places      places.Resolver
	Exporter    *export.Exporter
	Chat        *newchat.Manager
	Gatherer    prometheus.Gatherer
	// Shutdown is cancelled when the server starts draining.
	Shutdown context.Context
}

func AddTripRoutes(router *httprouter.Router, d Deps) {
	auth, limit := d.Auth.Authenticate, d.Limiter.Limit

	router.POST("/api/trips", limit(auth(itinerary.CreateTripHandler(d.Assembler, d.Config.Limits, 3*time.Minute))))
	router.POST("/api/trip-requests/validate", d.Auth.OptionalAuth(itinerary.ValidateRequestHandler(d.Config.Limits)))
	router.GET("/api/trips/:id", auth(itinerary.GetTripHandler(d.Store)))
	router.POST("/api/trips/:id/edits", limit(auth(edits.EditHandler(d.Edits, d.Store, 2*time.Minute))))
	router.GET("/api/trips/:id/suggestions", auth(suggestions.Handler(d.Suggestions, d.Store)))
	router.GET("/api/trips/:id/export.pdf", auth(export.PDFHandler(d.Exporter, d.Store)))
	router.GET("/api/trips/:id/export.ics", auth(export.ICSHandler(d.Exporter, d.Store)))
}

func AddPlaceRoutes(router *httprouter.Router, d Deps) {
	router.GET("/api/places/search", d.Limiter.Limit(d.Auth.Authenticate(places.SearchHandler(d.Places))))
}

// AddChatRoutes registers the websocket route. The token travels in the
// first frame, so no auth middleware here.
func AddChatRoutes(router *httprouter.Router, d Deps) {
	router.GET("/api/trips/:id/chat", newchat.WebSocketHandler(d.Chat, d.Shutdown))
}

func AddUtilityRoutes(router *httprouter.Router, d Deps) {
	router.GET("/health", Index)
	metrics := promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})
	router.GET("/metrics", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		metrics.ServeHTTP(w, r)
	})
}

// Index is a simple health check handler.
func Index(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"status": "ok"})
}

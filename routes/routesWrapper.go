package routes

import (
	"github.com/julienschmidt/httprouter"
)

func RoutesWrapper(router *httprouter.Router, d Deps) {
	AddTripRoutes(router, d)
	AddPlaceRoutes(router, d)
	AddChatRoutes(router, d)
	AddUtilityRoutes(router, d)
}

// Package router registers the HTTP routes of the reservation service.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tourism-reservation/internal/handler"
)

// RegisterRoutes registers routes that need no authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// ReservationMiddleware groups the middleware applied around the
// reservation routes.  Nil entries are skipped.
type ReservationMiddleware struct {
	Auth       echo.MiddlewareFunc // bearer auth, nil when JWT_SECRET is unset
	Cache      echo.MiddlewareFunc // response cache for reads
	Invalidate echo.MiddlewareFunc // bumps the cache generation on writes
	CreateRate echo.MiddlewareFunc // token bucket on POST /reservations
}

// RegisterReservations mounts the /reservations resource.  The static
// availability route is registered next to the :id routes; echo prefers
// static segments so it never matches as an id.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, mw ReservationMiddleware) {
	g := e.Group("/reservations", compact(mw.Auth, mw.Invalidate)...)

	reads := compact(mw.Cache)
	g.GET("", h.List, reads...)
	g.GET("/check/availability", h.CheckAvailability)
	g.GET("/:id", h.Get, reads...)

	g.POST("", h.Create, compact(mw.CreateRate)...)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

func compact(mws ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(mws))
	for _, m := range mws {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

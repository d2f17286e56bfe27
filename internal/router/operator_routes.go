package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flight-seat-reservation/internal/handler"
	"github.com/iliyamo/flight-seat-reservation/internal/middleware"
)

// RegisterOperator registers catalogue management under /v1/operator.
// Only tokens carrying the OPERATOR role are accepted.
func RegisterOperator(e *echo.Echo, h *handler.OperatorHandler, jwtSecret string) {
	g := e.Group(
		"/v1/operator",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleOperator),
	)
	g.POST("/flights", h.CreateFlight)
	g.DELETE("/flights/:id", h.DeleteFlight)
	g.GET("/flights/:id/audit", h.Audit)
}

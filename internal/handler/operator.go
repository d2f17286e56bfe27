package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/flight-seat-reservation/internal/reservation"
	"github.com/iliyamo/flight-seat-reservation/internal/schedule"
)

// OperatorHandler manages the flight catalogue.  Routes are restricted to
// the OPERATOR role.
type OperatorHandler struct {
	Engine *reservation.Engine
}

func NewOperatorHandler(engine *reservation.Engine) *OperatorHandler {
	if engine == nil {
		panic("nil engine passed to NewOperatorHandler")
	}
	return &OperatorHandler{Engine: engine}
}

// CreateFlight handles POST /v1/operator/flights.  The body uses the same
// shape as a schedule file entry, with RFC 3339 times and decimal string
// prices.
func (h *OperatorHandler) CreateFlight(c echo.Context) error {
	var body schedule.Entry
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	f, err := body.Flight()
	if err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.Engine.ScheduleFlight(c.Request().Context(), f); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, newFlightView(f))
}

// DeleteFlight handles DELETE /v1/operator/flights/:id.  Flights with
// confirmed reservations cannot be removed (409).
func (h *OperatorHandler) DeleteFlight(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid flight id")
	}
	if err := h.Engine.RemoveFlight(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Audit handles GET /v1/operator/flights/:id/audit and reports every class
// whose seat counter disagrees with the confirmed reservations.
func (h *OperatorHandler) Audit(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid flight id")
	}
	diffs, err := h.Engine.Reconcile(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"flight_id":     id,
		"consistent":    len(diffs) == 0,
		"discrepancies": diffs,
	})
}
